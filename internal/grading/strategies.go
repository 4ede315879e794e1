package grading

import (
	"fmt"
	"math"
)

// --- Strategies ---

// checkpointStrategy is pass/fail: enough solves by the deadline or nothing.
type checkpointStrategy struct{}

func (checkpointStrategy) Evaluate(it Item, userID int64, c Counts) (Line, bool) {
	if !it.Resolved {
		return Line{}, false
	}
	credit := 0.0
	if c.Checkpoint >= it.Required {
		credit = 1
	}
	return Line{
		Name:     it.Module.Name + " Checkpoint",
		Date:     it.DateLabel(userID),
		Weight:   weight(*it.Weight),
		Progress: fmt.Sprintf("%d / %d", c.Checkpoint, it.Required),
		Credit:   credit,
	}, true
}

// dueStrategy gives partial credit, with late solves discounted by the penalty.
type dueStrategy struct{}

func (dueStrategy) Evaluate(it Item, userID int64, c Counts) (Line, bool) {
	if !it.Resolved {
		return Line{}, false
	}
	late := c.Late()
	progress := fmt.Sprintf("%d / %d", c.Due, it.Required)
	if late > 0 {
		progress = fmt.Sprintf("%d (+%d) / %d", c.Due, late, it.Required)
	}
	return Line{
		Name:     it.Module.Name,
		Date:     it.DateLabel(userID),
		Weight:   weight(*it.Weight),
		Progress: progress,
		Credit:   DueCredit(c.Due, late, it.Required, it.LatePenalty),
	}, true
}

// DueCredit is min((due + (1-penalty)*late) / required, 1). Nothing required
// means full credit.
func DueCredit(due, late, required int, penalty float64) float64 {
	if required <= 0 {
		return 1
	}
	lateValue := 1 - penalty
	return math.Min((float64(due)+lateValue*float64(late))/float64(required), 1)
}

type manualStrategy struct{}

func (manualStrategy) Evaluate(it Item, userID int64, _ Counts) (Line, bool) {
	return Line{
		Name:     it.Name,
		Weight:   weight(*it.Weight),
		Progress: it.ProgressFor(userID),
		Credit:   it.CreditFor(userID),
	}, true
}

// extraStrategy is manual credit added on top of the weighted average.
type extraStrategy struct{}

func (extraStrategy) Evaluate(it Item, userID int64, _ Counts) (Line, bool) {
	return Line{
		Name:     it.Name,
		Progress: it.ProgressFor(userID),
		Credit:   it.CreditFor(userID),
	}, true
}
