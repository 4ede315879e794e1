package dojo_test

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/mind-engage/mindengage-grades/internal/dojo"
	"github.com/mind-engage/mindengage-grades/internal/grading"
)

func allReports(t *testing.T, svc *dojo.Service, dojoID string) []grading.Report {
	t.Helper()
	seq, err := svc.Reports(context.Background(), dojoID)
	if err != nil {
		t.Fatalf("reports: %v", err)
	}
	var out []grading.Report
	for r, err := range seq {
		if err != nil {
			t.Fatalf("report stream: %v", err)
		}
		out = append(out, r)
	}
	return out
}

func TestServiceCountingPathsAgree(t *testing.T) {
	s := openStore(t)
	seed(t, s)

	inMemory := allReports(t, dojo.NewService(s), "cse365")
	pushed := allReports(t, dojo.NewService(s, dojo.WithPushdown(true)), "cse365")
	if len(inMemory) != 3 {
		t.Fatalf("expected a report per enrolled student, got %d", len(inMemory))
	}
	if !reflect.DeepEqual(inMemory, pushed) {
		t.Fatalf("paths disagree:\n%+v\n%+v", inMemory, pushed)
	}

	u1 := inMemory[0]
	if u1.UserID != 1 || len(u1.Grades) != 4 {
		t.Fatalf("user 1 report: %+v", u1)
	}
	// intro checkpoint 1/1, intro due 2 (+1) / 3, crypto due 1/2, writeups 3
	want := (1*5 + (2+0.5)/3*20 + 0.5*20 + 0.2*20) / 65
	if math.Abs(u1.OverallGrade-want) > 1e-9 {
		t.Fatalf("user 1 overall %v, want %v", u1.OverallGrade, want)
	}
	if u1.Grades[1].Progress != "2 (+1) / 3" || u1.Grades[1].Date != "2024-01-11 00:00:00+00:00 *" {
		t.Fatalf("user 1 intro due line: %+v", u1.Grades[1])
	}
}

func TestServiceSingleReport(t *testing.T) {
	s := openStore(t)
	seed(t, s)
	svc := dojo.NewService(s, dojo.WithPushdown(true))
	ctx := context.Background()

	r, err := svc.Report(ctx, "cse365", 4)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if r.UserID != 4 || r.Grades[2].Progress != "1 / 2" {
		t.Fatalf("unenrolled user report: %+v", r)
	}
	if _, err := svc.Report(ctx, "cse365", 99); !errors.Is(err, dojo.ErrNotFound) {
		t.Fatalf("unknown user: %v", err)
	}
	if _, err := svc.Reports(ctx, "other"); !errors.Is(err, dojo.ErrNoCourse) {
		t.Fatalf("dojo without course: %v", err)
	}
}

type countingCounter struct {
	calls int
	n     int
}

func (c *countingCounter) CountWriteups(context.Context, int64) (int, error) {
	c.calls++
	return c.n, nil
}

func TestServiceUsesInjectedWriteupCounter(t *testing.T) {
	s := openStore(t)
	seed(t, s)
	cc := &countingCounter{n: 6}
	reports := allReports(t, dojo.NewService(s, dojo.WithWriteupCounter(cc)), "cse365")
	if cc.calls == 0 {
		t.Fatalf("counter not used")
	}
	for _, r := range reports {
		if line := r.Grades[len(r.Grades)-1]; line.Name != "CTF Experience" || line.Credit != 1 {
			t.Fatalf("user %d external line %+v", r.UserID, line)
		}
	}
}

func TestServiceIdentity(t *testing.T) {
	s := openStore(t)
	seed(t, s)
	ctx := context.Background()
	if err := s.PutDojo(ctx, dojo.Dojo{ID: "ids", Name: "IDs"}, []byte(`
student_id: ASU ID
students: ["1234"]
assessments: []
letter_grades: {A: 0.9}
`)); err != nil {
		t.Fatalf("put dojo: %v", err)
	}
	svc := dojo.NewService(s)

	check := func(dojoID string, userID int64, label, value, linked string) {
		t.Helper()
		id, err := svc.Identity(ctx, dojoID, userID)
		if err != nil {
			t.Fatalf("identity: %v", err)
		}
		got := ""
		if id.Value != nil {
			got = *id.Value
		}
		if id.Label != label || got != value || id.Linked != linked {
			t.Fatalf("%s/%d: %+v (value %q)", dojoID, userID, id, got)
		}
	}

	check("ids", 4, "ASU ID", "", dojo.LinkIncomplete)
	if err := s.SetIdentity(ctx, "ids", 4, "9999"); err != nil {
		t.Fatalf("set identity: %v", err)
	}
	check("ids", 4, "ASU ID", "9999", dojo.LinkUnknown)
	if err := s.SetIdentity(ctx, "ids", 4, "1234"); err != nil {
		t.Fatalf("set identity: %v", err)
	}
	check("ids", 4, "ASU ID", "1234", dojo.LinkComplete)
	if roster, _ := s.Roster(ctx, "ids"); !reflect.DeepEqual(roster, []int64{4}) {
		t.Fatalf("identity did not enroll: %v", roster)
	}

	// enrolled through the roster, never identified
	check("cse365", 1, "Identity", "", dojo.LinkUnknown)

	if err := s.SetIdentity(ctx, "nope", 4, "1"); !errors.Is(err, dojo.ErrNotFound) {
		t.Fatalf("unknown dojo: %v", err)
	}
}
