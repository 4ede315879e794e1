package grading

import (
	"context"
	"iter"
)

type runState int

const (
	awaitingFirstRow runState = iota
	accumulatingUser
)

// Run grades a course from aggregated rows grouped by user. Rows of one user
// must be contiguous; their module order does not matter. Reports are
// produced lazily, one per user, holding only the current user's counts. The
// sequence is single-pass and stops at the first error.
func (e *Engine) Run(ctx context.Context, rows iter.Seq2[CountRow, error]) iter.Seq2[Report, error] {
	return func(yield func(Report, error) bool) {
		state := awaitingFirstRow
		var userID int64
		counts := map[string]Counts{}

		emit := func() bool {
			r, err := e.Grade(ctx, userID, counts)
			if err != nil {
				yield(Report{}, err)
				return false
			}
			e.logger.Debug("grade report built", "user_id", userID, "overall", r.OverallGrade, "letter", r.LetterGrade)
			return yield(r, nil)
		}

		for row, err := range rows {
			if err != nil {
				yield(Report{}, err)
				return
			}
			switch {
			case state == awaitingFirstRow:
				state = accumulatingUser
				userID = row.UserID
			case row.UserID != userID:
				if !emit() {
					return
				}
				counts = map[string]Counts{}
				userID = row.UserID
			}
			if row.ModuleID != "" {
				counts[row.ModuleID] = counts[row.ModuleID].add(row.Counts)
			}
		}
		if state == accumulatingUser {
			emit()
		}
	}
}

// RunFacts aggregates raw facts in memory and grades them.
func (e *Engine) RunFacts(ctx context.Context, facts iter.Seq2[SolveFact, error]) iter.Seq2[Report, error] {
	return e.Run(ctx, Aggregate(e.deadlines, facts))
}

// ReportFor grades a single user. Rows for other users are ignored; a user
// without rows still gets a report.
func (e *Engine) ReportFor(ctx context.Context, userID int64, rows iter.Seq2[CountRow, error]) (Report, error) {
	mine := func(yield func(CountRow, error) bool) {
		for row, err := range rows {
			if err == nil && row.UserID != userID {
				continue
			}
			if !yield(row, err) {
				return
			}
		}
	}
	for r, err := range e.Run(ctx, mine) {
		return r, err
	}
	return e.Grade(ctx, userID, nil)
}
