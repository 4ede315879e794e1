// Package export renders grade reports for people: terminal tables and
// spreadsheets.
package export

import (
	"fmt"
	"io"
	"iter"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/mind-engage/mindengage-grades/internal/grading"
)

func percent(v float64) string { return fmt.Sprintf("%.2f%%", v*100) }

// RenderReport writes one user's grade lines.
func RenderReport(w io.Writer, r grading.Report) error {
	table := tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{
				PerColumn: []tw.Align{tw.AlignLeft, tw.AlignLeft, tw.AlignRight, tw.AlignRight, tw.AlignRight},
			},
		},
	}))
	table.Header("Name", "Date", "Weight", "Progress", "Credit")
	for _, l := range r.Grades {
		weight := ""
		if l.Weighted() {
			weight = strconv.FormatFloat(*l.Weight, 'f', -1, 64)
		}
		if err := table.Append(l.Name, l.Date, weight, l.Progress, percent(l.Credit)); err != nil {
			return err
		}
	}
	table.Footer("User "+strconv.FormatInt(r.UserID, 10), "", "", "Overall:", percent(r.OverallGrade)+" "+r.LetterGrade)
	return table.Render()
}

// RenderSummary writes one row per report and returns how many it wrote.
func RenderSummary(w io.Writer, reports iter.Seq2[grading.Report, error]) (int, error) {
	table := tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{
				PerColumn: []tw.Align{tw.AlignRight, tw.AlignRight, tw.AlignLeft},
			},
		},
	}))
	table.Header("User", "Overall", "Letter")
	n := 0
	for r, err := range reports {
		if err != nil {
			return n, err
		}
		if err := table.Append(strconv.FormatInt(r.UserID, 10), percent(r.OverallGrade), r.LetterGrade); err != nil {
			return n, err
		}
		n++
	}
	return n, table.Render()
}
