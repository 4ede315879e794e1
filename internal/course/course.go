// Package course holds a dojo course's grading policy: its assessments, the
// letter-grade threshold table and the module metadata the policy refers to.
package course

import (
	"fmt"
	"slices"
	"strconv"
	"time"
)

// Kind is the assessment type as written in the course policy.
type Kind string

const (
	KindCheckpoint Kind = "checkpoint"
	KindDue        Kind = "due"
	KindManual     Kind = "manual"
	KindExtra      Kind = "extra"
)

// Default fraction of a module's challenges needed for full credit.
const (
	DefaultCheckpointPercent = 0.334
	DefaultDuePercent        = 1.0
)

// Assessment is one entry of the course's "assessments" list. Checkpoint and
// due assessments reference a module by ID; manual and extra carry their own
// name and per-user progress/credit keyed by the user id as a string.
type Assessment struct {
	ID              string             `json:"id,omitempty" yaml:"id,omitempty"`
	Type            Kind               `json:"type" yaml:"type" validate:"required,oneof=checkpoint due manual extra"`
	Name            string             `json:"name,omitempty" yaml:"name,omitempty"`
	Weight          *float64           `json:"weight,omitempty" yaml:"weight,omitempty" validate:"omitempty,gte=0"`
	Date            string             `json:"date,omitempty" yaml:"date,omitempty"`
	PercentRequired *float64           `json:"percent_required,omitempty" yaml:"percent_required,omitempty" validate:"omitempty,gte=0,lte=1"`
	LatePenalty     float64            `json:"late_penalty,omitempty" yaml:"late_penalty,omitempty" validate:"gte=0,lte=1"`
	Extensions      map[string]int     `json:"extensions,omitempty" yaml:"extensions,omitempty"`
	Progress        map[string]any     `json:"progress,omitempty" yaml:"progress,omitempty"`
	Credit          map[string]float64 `json:"credit,omitempty" yaml:"credit,omitempty"`
}

// Dated reports whether the assessment is bound to a module deadline.
func (a Assessment) Dated() bool {
	return a.Type == KindCheckpoint || a.Type == KindDue
}

// Percent returns percent_required, falling back to the per-kind default.
func (a Assessment) Percent() float64 {
	if a.PercentRequired != nil {
		return *a.PercentRequired
	}
	if a.Type == KindCheckpoint {
		return DefaultCheckpointPercent
	}
	return DefaultDuePercent
}

// Deadline parses the assessment date. Call Validate first to surface a
// malformed date as a DataFault.
func (a Assessment) Deadline() (time.Time, error) {
	return ParseDate(a.Date)
}

// ExtensionDays returns the parsed extension table. Keys that are not
// integers are a DataFault.
func (a Assessment) ExtensionDays() (map[int64]int, error) {
	out := make(map[int64]int, len(a.Extensions))
	for k, days := range a.Extensions {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, &DataFault{Assessment: a.label(), Field: "extensions", Value: k, Err: err}
		}
		out[id] = days
	}
	return out, nil
}

// ProgressFor returns the manual progress string for a user, "" when absent.
func (a Assessment) ProgressFor(userID int64) string {
	v, ok := a.Progress[strconv.FormatInt(userID, 10)]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// CreditFor returns the manual credit for a user, 0 when absent.
func (a Assessment) CreditFor(userID int64) float64 {
	return a.Credit[strconv.FormatInt(userID, 10)]
}

func (a Assessment) label() string {
	if a.ID != "" {
		return fmt.Sprintf("%s %q", a.Type, a.ID)
	}
	if a.Name != "" {
		return fmt.Sprintf("%s %q", a.Type, a.Name)
	}
	return string(a.Type)
}

// Course is the grading policy of one dojo.
type Course struct {
	Assessments  []Assessment `json:"assessments" yaml:"assessments" validate:"dive"`
	LetterGrades LetterTable  `json:"letter_grades" yaml:"letter_grades"`

	// StudentID names the identity students link to their account, e.g.
	// "ASU ID". Students lists the identities the instructor expects.
	StudentID string   `json:"student_id,omitempty" yaml:"student_id,omitempty"`
	Students  []string `json:"students,omitempty" yaml:"students,omitempty"`
}

// IdentityLabel is StudentID, or "Identity" when unset.
func (c *Course) IdentityLabel() string {
	if c.StudentID == "" {
		return "Identity"
	}
	return c.StudentID
}

// ExpectsStudent reports whether token is on the course's student list.
func (c *Course) ExpectsStudent(token string) bool {
	return slices.Contains(c.Students, token)
}

// Module is the slice of dojo structure grading needs.
type Module struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ChallengeCount int    `json:"challenge_count"`
}
