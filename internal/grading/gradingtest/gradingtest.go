// Package gradingtest builds in-memory streams for tests of the grading
// runner and its consumers.
package gradingtest

import (
	"iter"
	"slices"

	"github.com/mind-engage/mindengage-grades/internal/grading"
)

// Seq adapts a slice to the stream shape used by the runner.
func Seq[T any](items []T) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, it := range items {
			if !yield(it, nil) {
				return
			}
		}
	}
}

// LeftJoin orders facts the way a storage feed would: roster order, then
// module, with a placeholder for users who solved nothing. Facts for users
// outside the roster are dropped.
func LeftJoin(roster []int64, facts []grading.SolveFact) iter.Seq2[grading.SolveFact, error] {
	byUser := make(map[int64][]grading.SolveFact)
	for _, f := range facts {
		byUser[f.UserID] = append(byUser[f.UserID], f)
	}
	return func(yield func(grading.SolveFact, error) bool) {
		for _, u := range roster {
			fs := byUser[u]
			if len(fs) == 0 {
				if !yield(grading.SolveFact{UserID: u}, nil) {
					return
				}
				continue
			}
			fs = slices.Clone(fs)
			slices.SortStableFunc(fs, func(a, b grading.SolveFact) int {
				if c := compareString(a.ModuleID, b.ModuleID); c != 0 {
					return c
				}
				return a.SolvedAt.Compare(b.SolvedAt)
			})
			for _, f := range fs {
				if !yield(f, nil) {
					return
				}
			}
		}
	}
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
