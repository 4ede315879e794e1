package grading

import "time"

// SolveFact is one distinct challenge solved by a user in a module. A fact
// with an empty ModuleID marks a roster user with no solves at all.
type SolveFact struct {
	UserID   int64
	ModuleID string
	SolvedAt time.Time
}

// Counts are a user's solves in one module.
type Counts struct {
	Checkpoint int // solved before the user's checkpoint deadline
	Due        int // solved before the user's due deadline
	All        int
}

// Late is the number of solves after the due deadline.
func (c Counts) Late() int {
	if n := c.All - c.Due; n > 0 {
		return n
	}
	return 0
}

func (c Counts) add(o Counts) Counts {
	return Counts{Checkpoint: c.Checkpoint + o.Checkpoint, Due: c.Due + o.Due, All: c.All + o.All}
}

// CountRow is the aggregated solve counts of one (user, module) pair. Rows
// with an empty ModuleID keep users without solves in the stream.
type CountRow struct {
	UserID   int64
	ModuleID string
	Counts   Counts
}

// Line is one graded item of a report. A nil Weight marks additive extra
// credit.
type Line struct {
	Name     string   `json:"name"`
	Date     string   `json:"date,omitempty"`
	Weight   *float64 `json:"weight,omitempty"`
	Progress string   `json:"progress"`
	Credit   float64  `json:"credit"`
}

// Weighted reports whether the line takes part in the weighted average.
func (l Line) Weighted() bool { return l.Weight != nil }

// Report is a user's full grade breakdown.
type Report struct {
	UserID       int64   `json:"user_id"`
	Grades       []Line  `json:"grades"`
	OverallGrade float64 `json:"overall_grade"`
	LetterGrade  string  `json:"letter_grade"`
}

func weight(w float64) *float64 { return &w }
