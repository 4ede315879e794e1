package grading

import (
	"iter"
	"time"

	"github.com/mind-engage/mindengage-grades/internal/course"
)

// Deadline is a module deadline with per-user extension days.
type Deadline struct {
	At         time.Time
	Extensions map[int64]int
}

// For returns the user's effective deadline.
func (d Deadline) For(userID int64) time.Time {
	return course.ExtendDeadline(d.At, d.Extensions[userID])
}

// Extended reports whether the user has a non-zero extension.
func (d Deadline) Extended(userID int64) bool {
	return d.Extensions[userID] != 0
}

// Deadlines maps module id to the checkpoint and due deadlines of a course.
// A module missing from one of the maps is not counted for that type.
type Deadlines struct {
	Checkpoint map[string]Deadline
	Due        map[string]Deadline
}

// NewDeadlines collects the dated assessments of a validated course. A later
// assessment of the same type and module replaces an earlier one.
func NewDeadlines(c *course.Course) (Deadlines, error) {
	d := Deadlines{Checkpoint: map[string]Deadline{}, Due: map[string]Deadline{}}
	for _, a := range c.Assessments {
		if !a.Dated() {
			continue
		}
		at, err := a.Deadline()
		if err != nil {
			return Deadlines{}, &course.DataFault{Assessment: a.ID, Field: "date", Value: a.Date, Err: err}
		}
		ext, err := a.ExtensionDays()
		if err != nil {
			return Deadlines{}, err
		}
		dl := Deadline{At: at, Extensions: ext}
		if a.Type == course.KindCheckpoint {
			d.Checkpoint[a.ID] = dl
		} else {
			d.Due[a.ID] = dl
		}
	}
	return d, nil
}

// Count tallies one fact into c.
func (d Deadlines) Count(c Counts, f SolveFact) Counts {
	if dl, ok := d.Checkpoint[f.ModuleID]; ok && f.SolvedAt.Before(dl.For(f.UserID)) {
		c.Checkpoint++
	}
	if dl, ok := d.Due[f.ModuleID]; ok && f.SolvedAt.Before(dl.For(f.UserID)) {
		c.Due++
	}
	c.All++
	return c
}

// Aggregate folds a fact stream ordered by user then module into one
// CountRow per (user, module) group in a single pass. Placeholder facts
// (empty ModuleID) come through as rows with zero counts.
func Aggregate(d Deadlines, facts iter.Seq2[SolveFact, error]) iter.Seq2[CountRow, error] {
	return func(yield func(CountRow, error) bool) {
		var cur CountRow
		open := false
		for f, err := range facts {
			if err != nil {
				yield(CountRow{}, err)
				return
			}
			if open && (f.UserID != cur.UserID || f.ModuleID != cur.ModuleID) {
				if !yield(cur, nil) {
					return
				}
				open = false
			}
			if !open {
				cur = CountRow{UserID: f.UserID, ModuleID: f.ModuleID}
				open = true
			}
			if f.ModuleID != "" {
				cur.Counts = d.Count(cur.Counts, f)
			}
		}
		if open {
			yield(cur, nil)
		}
	}
}
