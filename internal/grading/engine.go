// Package grading turns a course policy and a stream of solve facts into
// per-user grade reports.
package grading

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/mind-engage/mindengage-grades/internal/course"
)

// Item is an assessment compiled against the dojo's modules.
type Item struct {
	course.Assessment
	Module   course.Module // zero for manual and extra
	Resolved bool          // module found; always true for manual and extra
	Deadline Deadline
	Required int // floor(challenge_count * percent_required)
}

// DateLabel renders the user's effective deadline.
func (it Item) DateLabel(userID int64) string {
	return course.FormatDeadline(it.Deadline.For(userID), it.Deadline.Extended(userID))
}

// Strategy grades one kind of assessment for one user. ok=false emits no line.
type Strategy interface {
	Evaluate(it Item, userID int64, c Counts) (line Line, ok bool)
}

// Engine options

type Option func(*config)

type config struct {
	External       ExternalCreditSource
	Logger         *slog.Logger
	StrictRequired bool // required == 0 is a ConfigurationError
	Strategies     map[course.Kind]Strategy
}

func WithExternalCredit(s ExternalCreditSource) Option { return func(c *config) { c.External = s } }
func WithLogger(l *slog.Logger) Option                 { return func(c *config) { c.Logger = l } }
func WithStrictRequired() Option                       { return func(c *config) { c.StrictRequired = true } }

// WithStrategy overrides the built-in strategy for a kind.
func WithStrategy(k course.Kind, s Strategy) Option {
	return func(c *config) { c.Strategies[k] = s }
}

func defaultStrategies() map[course.Kind]Strategy {
	return map[course.Kind]Strategy{
		course.KindCheckpoint: checkpointStrategy{},
		course.KindDue:        dueStrategy{},
		course.KindManual:     manualStrategy{},
		course.KindExtra:      extraStrategy{},
	}
}

// Engine grades one course. It holds no per-user state, so Grade may be
// called from several goroutines.
type Engine struct {
	items      []Item
	deadlines  Deadlines
	letters    course.LetterTable
	strategies map[course.Kind]Strategy
	external   ExternalCreditSource
	logger     *slog.Logger
}

// New compiles the course against its modules. Every ConfigurationError and
// DataFault surfaces here, before any report is produced.
func New(c *course.Course, modules []course.Module, opts ...Option) (*Engine, error) {
	cfg := &config{Strategies: defaultStrategies()}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	deadlines, err := NewDeadlines(c)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]course.Module, len(modules))
	for _, m := range modules {
		byID[m.ID] = m
	}

	e := &Engine{
		deadlines:  deadlines,
		letters:    c.LetterGrades,
		strategies: cfg.Strategies,
		external:   cfg.External,
		logger:     cfg.Logger,
	}
	weights := 0.0
	for i, a := range c.Assessments {
		it := Item{Assessment: a, Resolved: true}
		if a.Dated() {
			m, ok := byID[a.ID]
			if !ok || m.Name == "" {
				it.Resolved = false
				e.logger.Debug("assessment module not found; line skipped",
					"assessment", a.ID, "type", a.Type)
			} else {
				it.Module = m
				it.Required = int(math.Floor(float64(m.ChallengeCount) * a.Percent()))
				if a.Type == course.KindCheckpoint {
					it.Deadline = deadlines.Checkpoint[a.ID]
				} else {
					it.Deadline = deadlines.Due[a.ID]
				}
				if it.Required == 0 && cfg.StrictRequired {
					return nil, &course.ConfigurationError{
						Assessment: fmt.Sprintf("assessments[%d] %s %q", i, a.Type, a.ID),
						Field:      "percent_required",
						Reason:     fmt.Sprintf("requires 0 of %d challenges", m.ChallengeCount),
					}
				}
			}
		}
		if it.Resolved && a.Type != course.KindExtra && a.Weight != nil {
			weights += *a.Weight
		}
		e.items = append(e.items, it)
	}
	if e.external != nil {
		weights += e.external.Category().Weight
	}
	if weights == 0 {
		return nil, &course.ConfigurationError{Field: "weight", Reason: "no weighted assessments to average"}
	}
	return e, nil
}

// Deadlines exposes the compiled deadline table, e.g. for pushing the
// counting down into a storage query.
func (e *Engine) Deadlines() Deadlines { return e.deadlines }

// Items returns the compiled assessments in policy order.
func (e *Engine) Items() []Item { return append([]Item(nil), e.items...) }

// Grade builds one user's report from their per-module counts. Modules the
// user never touched count as zero.
func (e *Engine) Grade(ctx context.Context, userID int64, counts map[string]Counts) (Report, error) {
	lines := make([]Line, 0, len(e.items)+1)
	for _, it := range e.items {
		s, ok := e.strategies[it.Type]
		if !ok {
			continue
		}
		line, ok := s.Evaluate(it, userID, counts[it.ID])
		if !ok {
			continue
		}
		lines = append(lines, line)
	}
	if e.external != nil {
		line, err := externalLine(ctx, e.external, userID)
		if err != nil {
			return Report{}, fmt.Errorf("external credit for user %d: %w", userID, err)
		}
		lines = append(lines, line)
	}
	return BuildReport(userID, lines, e.letters)
}
