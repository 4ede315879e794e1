package grading

import (
	"context"
	"fmt"
)

// Category describes the line an ExternalCreditSource contributes.
type Category struct {
	Name   string
	Weight float64
	Goal   int // shown as the progress denominator
}

// ExternalCreditSource supplies credit that does not come from module
// solves. Caching belongs to the source.
type ExternalCreditSource interface {
	Category() Category
	Progress(ctx context.Context, userID int64) (int, error)
	Credit(ctx context.Context, userID int64) (float64, error)
}

// Scorer is implemented by sources that can derive progress and credit from
// a single lookup. The engine prefers it so a report sees one consistent
// count.
type Scorer interface {
	Score(ctx context.Context, userID int64) (progress int, credit float64, err error)
}

// WriteupCounter counts a user's CTF writeup submissions.
type WriteupCounter interface {
	CountWriteups(ctx context.Context, userID int64) (int, error)
}

// writeupPoints is indexed by submission count; counts past the end clamp to
// the last entry.
var writeupPoints = [...]float64{0, 1, 2, 4, 7, 12, 20}

const writeupMaxPoints = 20.0

// WriteupScore maps a submission count onto the CTF Experience curve.
func WriteupScore(n int) float64 {
	if n < 0 {
		n = 0
	}
	if n >= len(writeupPoints) {
		n = len(writeupPoints) - 1
	}
	return writeupPoints[n] / writeupMaxPoints
}

// WriteupCredit is the "CTF Experience" category.
type WriteupCredit struct {
	Counter WriteupCounter
}

func NewWriteupCredit(c WriteupCounter) *WriteupCredit { return &WriteupCredit{Counter: c} }

func (w *WriteupCredit) Category() Category {
	return Category{Name: "CTF Experience", Weight: writeupMaxPoints, Goal: len(writeupPoints) - 1}
}

func (w *WriteupCredit) Progress(ctx context.Context, userID int64) (int, error) {
	return w.Counter.CountWriteups(ctx, userID)
}

func (w *WriteupCredit) Credit(ctx context.Context, userID int64) (float64, error) {
	_, credit, err := w.Score(ctx, userID)
	return credit, err
}

func (w *WriteupCredit) Score(ctx context.Context, userID int64) (int, float64, error) {
	n, err := w.Counter.CountWriteups(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	return n, WriteupScore(n), nil
}

func externalLine(ctx context.Context, src ExternalCreditSource, userID int64) (Line, error) {
	cat := src.Category()
	var (
		n      int
		credit float64
		err    error
	)
	if sc, ok := src.(Scorer); ok {
		n, credit, err = sc.Score(ctx, userID)
	} else {
		n, err = src.Progress(ctx, userID)
		if err == nil {
			credit, err = src.Credit(ctx, userID)
		}
	}
	if err != nil {
		return Line{}, err
	}
	return Line{
		Name:     cat.Name,
		Weight:   weight(cat.Weight),
		Progress: fmt.Sprintf("%d / %d", n, cat.Goal),
		Credit:   credit,
	}, nil
}
