package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mind-engage/mindengage-grades/internal/db"
	"github.com/mind-engage/mindengage-grades/internal/dojo"
	"github.com/mind-engage/mindengage-grades/internal/export"
)

const policy = `
assessments:
  - {id: intro, type: due, weight: 100, date: "2024-01-10T00:00:00Z"}
letter_grades: {A: 0.9, B: 0.8, C: 0.5}
`

// setupEnv points the configuration at a fresh sqlite file and writes the
// policy next to it.
func setupEnv(t *testing.T) (dir, dsn string) {
	t.Helper()
	dir = t.TempDir()
	t.Chdir(dir)
	dsn = "file:" + filepath.Join(dir, "grades.db") + "?_pragma=busy_timeout(5000)"
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", dsn)
	t.Setenv("REDIS_URL", "")
	t.Setenv("LTI_TOKEN_URL", "")
	t.Setenv("LOG_LEVEL", "error")
	if err := os.WriteFile(filepath.Join(dir, "course.yaml"), []byte(policy), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, dsn
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedDojo(t *testing.T, dsn string) {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	s := dojo.NewSQLStore(conn, string(db.DriverSQLite))
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(s.PutDojo(ctx, dojo.Dojo{ID: "cse365", Name: "CSE 365"}, nil))
	must(s.PutModule(ctx, "cse365", 0, "intro", "Intro"))
	must(s.PutChallenge(ctx, "cse365", dojo.Challenge{ID: 1, ModuleID: "intro"}))
	must(s.PutChallenge(ctx, "cse365", dojo.Challenge{ID: 2, ModuleID: "intro"}))
	for _, id := range []int64{1, 2} {
		must(s.PutUser(ctx, dojo.User{ID: id, Username: "u" + string(rune('0'+id))}, ""))
		must(s.Enroll(ctx, "cse365", id))
	}
	solved := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	must(s.RecordSolve(ctx, 1, 1, solved))
	must(s.RecordSolve(ctx, 1, 2, solved))
}

func TestCheck(t *testing.T) {
	dir, _ := setupEnv(t)
	out, err := run(t, "check", "--course", "course.yaml")
	if err != nil || !strings.Contains(out, "ok (1 assessments, 3 letter grades)") {
		t.Fatalf("check: %v\n%s", err, out)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("assessments: []\nletter_grades: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "check", "--course", bad); err == nil {
		t.Fatal("empty letter table accepted")
	}
}

func TestCourseSetReportAndExport(t *testing.T) {
	dir, dsn := setupEnv(t)
	seedDojo(t, dsn)

	if _, err := run(t, "report", "--dojo", "cse365"); err == nil {
		t.Fatal("report without a stored course should fail")
	}
	if out, err := run(t, "course", "set", "cse365", "--course", "course.yaml", "--name", "CSE 365"); err != nil {
		t.Fatalf("course set: %v\n%s", err, out)
	}

	// intro is fully solved on time by user 1; the CTF line weighs 20.
	for _, args := range [][]string{
		{"report", "--dojo", "cse365"},
		{"report", "--dojo", "cse365", "--in-memory"},
	} {
		out, err := run(t, args...)
		if err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		if !strings.Contains(out, "83.33%") || !strings.Contains(out, "0.00%") {
			t.Fatalf("%v output:\n%s", args, out)
		}
	}

	out, err := run(t, "report", "--dojo", "cse365", "--user", "1")
	if err != nil || !strings.Contains(out, "2 / 2") || !strings.Contains(out, "CTF Experience") {
		t.Fatalf("single report: %v\n%s", err, out)
	}

	path := filepath.Join(dir, "out.xlsx")
	if out, err := run(t, "export", "--dojo", "cse365", "-o", path); err != nil || !strings.Contains(out, "wrote 2 students") {
		t.Fatalf("export: %v\n%s", err, out)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(export.Sheet)
	if err != nil || len(rows) != 3 {
		t.Fatalf("rows %v %v", rows, err)
	}
}

func TestSyncRequiresPassbackConfig(t *testing.T) {
	_, dsn := setupEnv(t)
	seedDojo(t, dsn)
	if _, err := run(t, "sync", "--dojo", "cse365"); err == nil || !strings.Contains(err.Error(), "LTI_TOKEN_URL") {
		t.Fatalf("sync without passback: %v", err)
	}
}
