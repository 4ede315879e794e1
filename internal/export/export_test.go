package export

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/mind-engage/mindengage-grades/internal/grading"
	"github.com/mind-engage/mindengage-grades/internal/grading/gradingtest"
)

func w(v float64) *float64 { return &v }

func sampleReports() []grading.Report {
	lines := func(cp, due, ctf float64) []grading.Line {
		return []grading.Line{
			{Name: "Intro Checkpoint", Date: "2024-01-01 00:00:00+00:00", Weight: w(10), Progress: "1 / 1", Credit: cp},
			{Name: "Intro", Date: "2024-01-08 00:00:00+00:00 *", Weight: w(50), Progress: "2 (+1) / 3", Credit: due},
			{Name: "CTF Experience", Weight: w(20), Progress: "3 / 6", Credit: ctf},
		}
	}
	return []grading.Report{
		{UserID: 1, Grades: lines(1, 0.8333, 0.2), OverallGrade: 0.7, LetterGrade: "C"},
		{UserID: 2, Grades: lines(0, 0, 0), OverallGrade: 0, LetterGrade: "?"},
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteXLSX(&buf, gradingtest.Seq(sampleReports()))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != 2 {
		t.Fatalf("wrote %d users", n)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(Sheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	wantHeader := []string{"User ID", "Intro Checkpoint", "Intro", "CTF Experience", "Overall", "Letter"}
	if strings.Join(rows[0], "|") != strings.Join(wantHeader, "|") {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][0] != "1" || rows[1][5] != "C" || rows[2][5] != "?" {
		t.Fatalf("rows = %v", rows[1:])
	}
}

func TestWriteXLSXEmptyAndFailing(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteXLSX(&buf, gradingtest.Seq[grading.Report](nil))
	if err != nil || n != 0 {
		t.Fatalf("empty: %d %v", n, err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if v, _ := f.GetCellValue(Sheet, "B1"); v != "Overall" {
		t.Fatalf("empty header B1 = %q", v)
	}

	boom := errors.New("boom")
	failing := func(yield func(grading.Report, error) bool) {
		if !yield(sampleReports()[0], nil) {
			return
		}
		yield(grading.Report{}, boom)
	}
	if n, err := WriteXLSX(&bytes.Buffer{}, failing); !errors.Is(err, boom) || n != 1 {
		t.Fatalf("failing stream: %d %v", n, err)
	}
}

func TestRenderTables(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderReport(&buf, sampleReports()[0]); err != nil {
		t.Fatalf("render report: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Intro Checkpoint", "2 (+1) / 3", "83.33%", "CTF Experience"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report table missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	n, err := RenderSummary(&buf, gradingtest.Seq(sampleReports()))
	if err != nil || n != 2 {
		t.Fatalf("summary: %d %v", n, err)
	}
	if !strings.Contains(buf.String(), "70.00%") {
		t.Fatalf("summary missing overall:\n%s", buf.String())
	}
}
