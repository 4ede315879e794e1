// Package main provides gradectl, the operator CLI for dojo course grades.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-grades/internal/app"
	"github.com/mind-engage/mindengage-grades/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "gradectl",
		Short:         "Grade dojo courses from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newCourseCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newSyncCmd())
	return rootCmd
}

// openApp loads the environment configuration and connects the stores.
// inMemory forces the in-memory counting path.
func openApp(cmd *cobra.Command, inMemory bool) (*app.App, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	pushdown := cfg.GradesPushdown && !inMemory
	return app.Open(cmd.Context(), cfg, app.NewLogger(cfg), pushdown)
}

func closeApp(cmd *cobra.Command, a *app.App) {
	if err := a.Close(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "close: %v\n", err)
	}
}
