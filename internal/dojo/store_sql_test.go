package dojo_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-grades/internal/course"
	"github.com/mind-engage/mindengage-grades/internal/db"
	"github.com/mind-engage/mindengage-grades/internal/dojo"
	"github.com/mind-engage/mindengage-grades/internal/grading"
)

const policy = `
assessments:
  - {id: intro, type: checkpoint, weight: 5, date: "2024-01-03T00:00:00Z", extensions: {"2": 2}}
  - {id: intro, type: due, weight: 20, date: "2024-01-08T00:00:00Z", late_penalty: 0.5, extensions: {"1": 3}}
  - {id: crypto, type: due, weight: 20, date: "2024-01-15T00:00:00Z"}
letter_grades: {A: 0.9, B: 0.8, C: 0.5}
`

func day(d int) time.Time { return time.Date(2024, 1, d, 12, 0, 0, 0, time.UTC) }

func openStore(t *testing.T) *dojo.SQLStore {
	t.Helper()
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "grades.db") + "?_pragma=busy_timeout(5000)"
	conn, err := db.Open(ctx, db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return dojo.NewSQLStore(conn, string(db.DriverSQLite))
}

// seed builds dojo "cse365" (intro: 3 challenges, crypto: 2) with students
// 1-3 enrolled and user 4 known but not enrolled. Challenge 9 belongs to
// another dojo.
func seed(t *testing.T, s *dojo.SQLStore) {
	t.Helper()
	ctx := context.Background()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(s.PutDojo(ctx, dojo.Dojo{ID: "cse365", Name: "CSE 365"}, []byte(policy)))
	must(s.PutDojo(ctx, dojo.Dojo{ID: "other", Name: "Other"}, nil))
	must(s.PutModule(ctx, "cse365", 0, "intro", "Intro"))
	must(s.PutModule(ctx, "cse365", 1, "crypto", "Cryptography"))
	must(s.PutModule(ctx, "other", 0, "x", "X"))
	for id, mod := range map[int64]string{1: "intro", 2: "intro", 3: "intro", 4: "crypto", 5: "crypto"} {
		must(s.PutChallenge(ctx, "cse365", dojo.Challenge{ID: id, ModuleID: mod}))
	}
	must(s.PutChallenge(ctx, "other", dojo.Challenge{ID: 9, ModuleID: "x"}))
	for id := int64(1); id <= 4; id++ {
		must(s.PutUser(ctx, dojo.User{ID: id, Username: "user" + string(rune('0'+id))}, ""))
		if id <= 3 {
			must(s.Enroll(ctx, "cse365", id))
		}
	}

	must(s.RecordSolve(ctx, 1, 1, day(2)))
	must(s.RecordSolve(ctx, 1, 2, day(9)))
	must(s.RecordSolve(ctx, 1, 3, day(12)))
	must(s.RecordSolve(ctx, 1, 4, day(14)))
	must(s.RecordSolve(ctx, 1, 9, day(1)))
	must(s.RecordSolve(ctx, 1, 1, day(20))) // repeat, ignored
	must(s.RecordSolve(ctx, 2, 1, day(4)))
	must(s.RecordSolve(ctx, 2, 5, day(20)))
	must(s.RecordSolve(ctx, 4, 4, day(10)))
	for i := 0; i < 3; i++ {
		must(s.AddWriteup(ctx, 1, "https://example.test/w", day(1)))
	}
}

func collectFacts(t *testing.T, seq func(func(grading.SolveFact, error) bool)) []grading.SolveFact {
	t.Helper()
	var out []grading.SolveFact
	for f, err := range seq {
		if err != nil {
			t.Fatalf("facts: %v", err)
		}
		out = append(out, f)
	}
	return out
}

func collectRows(t *testing.T, seq func(func(grading.CountRow, error) bool)) []grading.CountRow {
	t.Helper()
	var out []grading.CountRow
	for r, err := range seq {
		if err != nil {
			t.Fatalf("rows: %v", err)
		}
		out = append(out, r)
	}
	return out
}

func TestModulesAndRoster(t *testing.T) {
	s := openStore(t)
	seed(t, s)
	ctx := context.Background()

	mods, err := s.Modules(ctx, "cse365")
	if err != nil {
		t.Fatalf("modules: %v", err)
	}
	want := []course.Module{{ID: "intro", Name: "Intro", ChallengeCount: 3}, {ID: "crypto", Name: "Cryptography", ChallengeCount: 2}}
	if !reflect.DeepEqual(mods, want) {
		t.Fatalf("modules = %+v", mods)
	}
	roster, err := s.Roster(ctx, "cse365")
	if err != nil || !reflect.DeepEqual(roster, []int64{1, 2, 3}) {
		t.Fatalf("roster = %v (%v)", roster, err)
	}
	if n, err := s.CountWriteups(ctx, 1); err != nil || n != 3 {
		t.Fatalf("writeups = %d (%v)", n, err)
	}
}

func TestSolveFactsLeftJoin(t *testing.T) {
	s := openStore(t)
	seed(t, s)
	facts := collectFacts(t, s.SolveFacts(context.Background(), "cse365", dojo.RosterScope()))

	want := []grading.SolveFact{
		{UserID: 1, ModuleID: "intro", SolvedAt: day(2)},
		{UserID: 1, ModuleID: "intro", SolvedAt: day(9)},
		{UserID: 1, ModuleID: "intro", SolvedAt: day(12)},
		{UserID: 1, ModuleID: "crypto", SolvedAt: day(14)},
		{UserID: 2, ModuleID: "intro", SolvedAt: day(4)},
		{UserID: 2, ModuleID: "crypto", SolvedAt: day(20)},
		{UserID: 3},
	}
	if len(facts) != len(want) {
		t.Fatalf("got %d facts: %+v", len(facts), facts)
	}
	for i := range want {
		if facts[i].UserID != want[i].UserID || facts[i].ModuleID != want[i].ModuleID || !facts[i].SolvedAt.Equal(want[i].SolvedAt) {
			t.Fatalf("fact %d = %+v, want %+v", i, facts[i], want[i])
		}
	}

	single := collectFacts(t, s.SolveFacts(context.Background(), "cse365", dojo.UserScope(4)))
	if len(single) != 1 || single[0].UserID != 4 || single[0].ModuleID != "crypto" {
		t.Fatalf("unenrolled user facts = %+v", single)
	}
}

func TestCountRowsMatchesAggregate(t *testing.T) {
	s := openStore(t)
	seed(t, s)
	ctx := context.Background()
	c, err := s.Course(ctx, "cse365")
	if err != nil {
		t.Fatalf("course: %v", err)
	}
	d, err := grading.NewDeadlines(c)
	if err != nil {
		t.Fatalf("deadlines: %v", err)
	}

	for _, scope := range []dojo.Scope{dojo.RosterScope(), dojo.UserScope(1), dojo.UserScope(4)} {
		pushed := collectRows(t, s.CountRows(ctx, "cse365", scope, d))
		inMemory := collectRows(t, grading.Aggregate(d, s.SolveFacts(ctx, "cse365", scope)))
		if !reflect.DeepEqual(pushed, inMemory) {
			t.Fatalf("scope %+v:\n pushed   %+v\n inMemory %+v", scope, pushed, inMemory)
		}
	}

	rows := collectRows(t, s.CountRows(ctx, "cse365", dojo.RosterScope(), d))
	want := []grading.CountRow{
		{UserID: 1, ModuleID: "intro", Counts: grading.Counts{Checkpoint: 1, Due: 2, All: 3}},
		{UserID: 1, ModuleID: "crypto", Counts: grading.Counts{Due: 1, All: 1}},
		{UserID: 2, ModuleID: "intro", Counts: grading.Counts{Checkpoint: 1, Due: 1, All: 1}},
		{UserID: 2, ModuleID: "crypto", Counts: grading.Counts{All: 1}},
		{UserID: 3},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestCourseLookup(t *testing.T) {
	s := openStore(t)
	seed(t, s)
	ctx := context.Background()

	c, err := s.Course(ctx, "cse365")
	if err != nil {
		t.Fatalf("course: %v", err)
	}
	var letters []string
	for _, g := range c.LetterGrades {
		letters = append(letters, g.Letter)
	}
	if !reflect.DeepEqual(letters, []string{"A", "B", "C"}) {
		t.Fatalf("letter order lost: %v", letters)
	}
	if _, err := s.Course(ctx, "other"); !errors.Is(err, dojo.ErrNoCourse) {
		t.Fatalf("expected ErrNoCourse, got %v", err)
	}
	if _, err := s.Course(ctx, "missing"); !errors.Is(err, dojo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	err = s.PutDojo(ctx, dojo.Dojo{ID: "bad"}, []byte("assessments: []\nletter_grades: {}\n"))
	if !errors.Is(err, course.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	if err := s.PutUser(ctx, dojo.User{ID: 10, Username: "admin", Role: "admin"}, "s3cret"); err != nil {
		t.Fatalf("put user: %v", err)
	}
	u, err := s.Authenticate(ctx, "admin", "s3cret")
	if err != nil || u.ID != 10 || u.Role != "admin" {
		t.Fatalf("authenticate: %+v %v", u, err)
	}
	if _, err := s.Authenticate(ctx, "admin", "nope"); !errors.Is(err, dojo.ErrBadCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := s.Authenticate(ctx, "ghost", "s3cret"); !errors.Is(err, dojo.ErrBadCredentials) {
		t.Fatalf("unknown user: %v", err)
	}
}

func TestChangePasswordAndBootstrapAdmin(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	if err := s.PutUser(ctx, dojo.User{ID: 3, Username: "student"}, "old"); err != nil {
		t.Fatalf("put user: %v", err)
	}
	if err := s.ChangePassword(ctx, 3, "wrong", "new"); !errors.Is(err, dojo.ErrBadCredentials) {
		t.Fatalf("wrong old password: %v", err)
	}
	if err := s.ChangePassword(ctx, 3, "old", "new"); err != nil {
		t.Fatalf("change: %v", err)
	}
	if _, err := s.Authenticate(ctx, "student", "new"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	if err := s.ChangePassword(ctx, 99, "x", "y"); !errors.Is(err, dojo.ErrNotFound) {
		t.Fatalf("unknown user: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("root"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	admin, err := s.EnsureAdmin(ctx, "admin", string(hash))
	if err != nil || admin.ID != 4 {
		t.Fatalf("ensure admin: %+v %v", admin, err)
	}
	again, err := s.EnsureAdmin(ctx, "admin", string(hash))
	if err != nil || again.ID != admin.ID {
		t.Fatalf("second ensure: %+v %v", again, err)
	}
	u, err := s.Authenticate(ctx, "admin", "root")
	if err != nil || u.Role != "admin" {
		t.Fatalf("admin login: %+v %v", u, err)
	}
	if _, err := s.EnsureAdmin(ctx, "admin", "plain"); err == nil {
		t.Fatal("accepted a non-bcrypt hash")
	}
}
