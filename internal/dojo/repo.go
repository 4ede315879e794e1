package dojo

import (
	"context"
	"iter"

	"github.com/mind-engage/mindengage-grades/internal/course"
	"github.com/mind-engage/mindengage-grades/internal/grading"
)

// Store is the read-only feed grading needs.
type Store interface {
	Course(ctx context.Context, dojoID string) (*course.Course, error)
	Modules(ctx context.Context, dojoID string) ([]course.Module, error) // by module_index
	Roster(ctx context.Context, dojoID string) ([]int64, error)          // by user id
	// StudentToken is the user's identity in the dojo; enrolled is false
	// when the user has no dojo_students row.
	StudentToken(ctx context.Context, dojoID string, userID int64) (token *string, enrolled bool, err error)
	User(ctx context.Context, id int64) (User, error)

	// SolveFacts streams raw facts ordered by user then module, with a
	// placeholder for every user in scope who solved nothing.
	SolveFacts(ctx context.Context, dojoID string, scope Scope) iter.Seq2[grading.SolveFact, error]
	// CountRows is SolveFacts already counted against the deadlines.
	CountRows(ctx context.Context, dojoID string, scope Scope, d grading.Deadlines) iter.Seq2[grading.CountRow, error]

	CountWriteups(ctx context.Context, userID int64) (int, error)
}
