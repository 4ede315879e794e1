package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-grades/internal/course"
	"github.com/mind-engage/mindengage-grades/internal/dojo"
	"github.com/mind-engage/mindengage-grades/internal/export"
	"github.com/mind-engage/mindengage-grades/internal/grading"
)

func newCheckCmd() *cobra.Command {
	var coursePath, dojoID string
	var strict bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a course policy file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := course.Load(coursePath)
			if err != nil {
				return err
			}
			if _, err := grading.NewDeadlines(c); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dojoID != "" {
				a, err := openApp(cmd, false)
				if err != nil {
					return err
				}
				defer closeApp(cmd, a)
				modules, err := a.Store.Modules(cmd.Context(), dojoID)
				if err != nil {
					return err
				}
				opts := []grading.Option{}
				if strict || a.Config.GradesStrictRequired {
					opts = append(opts, grading.WithStrictRequired())
				}
				e, err := grading.New(c, modules, opts...)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %d gradable items against dojo %s\n", coursePath, len(e.Items()), dojoID)
			}
			fmt.Fprintf(out, "%s: ok (%d assessments, %d letter grades)\n", coursePath, len(c.Assessments), len(c.LetterGrades))
			return nil
		},
	}
	cmd.Flags().StringVar(&coursePath, "course", "", "course policy file (YAML or JSON)")
	cmd.Flags().StringVar(&dojoID, "dojo", "", "also compile the policy against this dojo's modules")
	cmd.Flags().BoolVar(&strict, "strict", false, "reject assessments whose module requires no challenges")
	_ = cmd.MarkFlagRequired("course")
	return cmd
}

func newCourseCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "course", Short: "Manage stored course policies"}

	var coursePath, name string
	set := &cobra.Command{
		Use:   "set DOJO",
		Short: "Store a course policy for a dojo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(coursePath)
			if err != nil {
				return fmt.Errorf("read course: %w", err)
			}
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer closeApp(cmd, a)
			if name == "" {
				name = args[0]
			}
			if err := a.Store.PutDojo(cmd.Context(), dojo.Dojo{ID: args[0], Name: name}, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored course for %s\n", args[0])
			return nil
		},
	}
	set.Flags().StringVar(&coursePath, "course", "", "course policy file (YAML or JSON)")
	set.Flags().StringVar(&name, "name", "", "dojo display name (default: the dojo id)")
	_ = set.MarkFlagRequired("course")

	cmd.AddCommand(set)
	return cmd
}

func newReportCmd() *cobra.Command {
	var dojoID string
	var userID int64
	var inMemory bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print grades for a dojo, or one user's breakdown",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, inMemory)
			if err != nil {
				return err
			}
			defer closeApp(cmd, a)
			ctx, out := cmd.Context(), cmd.OutOrStdout()

			if userID != 0 {
				rep, err := a.Service.Report(ctx, dojoID, userID)
				if err != nil {
					return err
				}
				return export.RenderReport(out, rep)
			}
			reports, err := a.Service.Reports(ctx, dojoID)
			if err != nil {
				return err
			}
			n, err := export.RenderSummary(out, reports)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "no students enrolled in %s\n", dojoID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dojoID, "dojo", "", "dojo id")
	cmd.Flags().Int64Var(&userID, "user", 0, "user id for a single breakdown")
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "count solves in memory instead of in SQL")
	_ = cmd.MarkFlagRequired("dojo")
	return cmd
}

func newExportCmd() *cobra.Command {
	var dojoID, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a dojo's grades to an XLSX workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !strings.HasSuffix(output, ".xlsx") {
				return errors.New("output must end in .xlsx")
			}
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer closeApp(cmd, a)

			reports, err := a.Service.Reports(cmd.Context(), dojoID)
			if err != nil {
				return err
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			n, err := export.WriteXLSX(f, reports)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(output)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d students to %s\n", n, output)
			return nil
		},
	}
	cmd.Flags().StringVar(&dojoID, "dojo", "", "dojo id")
	cmd.Flags().StringVarP(&output, "output", "o", "grades.xlsx", "output workbook")
	_ = cmd.MarkFlagRequired("dojo")
	return cmd
}

func newSyncCmd() *cobra.Command {
	var dojoID string
	var userID int64
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pass overall grades back to the LMS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer closeApp(cmd, a)
			if a.Syncer == nil {
				return errors.New("LMS passback is not configured (set LTI_TOKEN_URL)")
			}
			ctx, out := cmd.Context(), cmd.OutOrStdout()

			if userID != 0 {
				rep, err := a.Service.Report(ctx, dojoID, userID)
				if err != nil {
					return err
				}
				if err := a.Syncer.SyncReport(ctx, dojoID, rep); err != nil {
					return err
				}
				fmt.Fprintf(out, "synced user %d\n", userID)
				return nil
			}
			reports, err := a.Service.Reports(ctx, dojoID)
			if err != nil {
				return err
			}
			sum, err := a.Syncer.SyncAll(ctx, dojoID, reports)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "synced %d, failed %d\n", sum.OK, sum.Failed)
			if sum.Failed > 0 {
				return fmt.Errorf("%d users failed to sync", sum.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dojoID, "dojo", "", "dojo id")
	cmd.Flags().Int64Var(&userID, "user", 0, "sync a single user")
	_ = cmd.MarkFlagRequired("dojo")
	return cmd
}
