package export

import (
	"fmt"
	"io"
	"iter"

	"github.com/xuri/excelize/v2"

	"github.com/mind-engage/mindengage-grades/internal/grading"
)

const Sheet = "Grades"

// header is laid out from the first report; every report of a course has the
// same lines in the same order.
func header(first *grading.Report) []any {
	cols := []any{"User ID"}
	if first != nil {
		for _, l := range first.Grades {
			cols = append(cols, l.Name)
		}
	}
	return append(cols, "Overall", "Letter")
}

func row(r grading.Report) []any {
	cells := []any{r.UserID}
	for _, l := range r.Grades {
		cells = append(cells, l.Credit)
	}
	return append(cells, r.OverallGrade, r.LetterGrade)
}

// WriteXLSX streams reports into a single-sheet workbook, one row per user
// with each line's credit, and returns the number of users written.
func WriteXLSX(w io.Writer, reports iter.Seq2[grading.Report, error]) (int, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", Sheet); err != nil {
		return 0, err
	}
	sw, err := f.NewStreamWriter(Sheet)
	if err != nil {
		return 0, err
	}

	line, users := 0, 0
	put := func(cells []any) error {
		line++
		cell, err := excelize.CoordinatesToCellName(1, line)
		if err != nil {
			return err
		}
		return sw.SetRow(cell, cells)
	}
	for r, err := range reports {
		if err != nil {
			return users, err
		}
		if line == 0 {
			if err := put(header(&r)); err != nil {
				return 0, err
			}
		}
		if err := put(row(r)); err != nil {
			return users, fmt.Errorf("row for user %d: %w", r.UserID, err)
		}
		users++
	}
	if line == 0 {
		if err := put(header(nil)); err != nil {
			return 0, err
		}
	}
	if err := sw.Flush(); err != nil {
		return users, err
	}
	if _, err := f.WriteTo(w); err != nil {
		return users, err
	}
	return users, nil
}
