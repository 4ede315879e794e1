package dojo

import (
	"context"
	"iter"
	"log/slog"

	"github.com/mind-engage/mindengage-grades/internal/grading"
)

// Service grades a dojo's course out of a Store.
type Service struct {
	store    Store
	writeups grading.WriteupCounter
	pushdown bool
	strict   bool
	logger   *slog.Logger
}

type ServiceOption func(*Service)

// WithPushdown counts solves in SQL instead of in memory.
func WithPushdown(on bool) ServiceOption { return func(s *Service) { s.pushdown = on } }

func WithStrictRequired(on bool) ServiceOption { return func(s *Service) { s.strict = on } }

// WithWriteupCounter replaces the store as the CTF writeup counter, e.g. with
// a cached one.
func WithWriteupCounter(c grading.WriteupCounter) ServiceOption {
	return func(s *Service) { s.writeups = c }
}

func WithServiceLogger(l *slog.Logger) ServiceOption { return func(s *Service) { s.logger = l } }

func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{store: store, writeups: store, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Engine compiles the dojo's course against its modules.
func (s *Service) Engine(ctx context.Context, dojoID string) (*grading.Engine, error) {
	c, err := s.store.Course(ctx, dojoID)
	if err != nil {
		return nil, err
	}
	modules, err := s.store.Modules(ctx, dojoID)
	if err != nil {
		return nil, err
	}
	opts := []grading.Option{
		grading.WithLogger(s.logger.With("dojo", dojoID)),
		grading.WithExternalCredit(grading.NewWriteupCredit(s.writeups)),
	}
	if s.strict {
		opts = append(opts, grading.WithStrictRequired())
	}
	return grading.New(c, modules, opts...)
}

func (s *Service) rows(ctx context.Context, e *grading.Engine, dojoID string, scope Scope) iter.Seq2[grading.CountRow, error] {
	if s.pushdown {
		return s.store.CountRows(ctx, dojoID, scope, e.Deadlines())
	}
	return grading.Aggregate(e.Deadlines(), s.store.SolveFacts(ctx, dojoID, scope))
}

// Report grades one user, enrolled or not. Unknown users are ErrNotFound.
func (s *Service) Report(ctx context.Context, dojoID string, userID int64) (grading.Report, error) {
	if _, err := s.store.User(ctx, userID); err != nil {
		return grading.Report{}, err
	}
	e, err := s.Engine(ctx, dojoID)
	if err != nil {
		return grading.Report{}, err
	}
	return e.ReportFor(ctx, userID, s.rows(ctx, e, dojoID, UserScope(userID)))
}

// Reports grades every enrolled student. Course errors are returned before
// the first report; feed errors end the sequence.
func (s *Service) Reports(ctx context.Context, dojoID string) (iter.Seq2[grading.Report, error], error) {
	e, err := s.Engine(ctx, dojoID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("grading dojo", "dojo", dojoID, "pushdown", s.pushdown)
	return e.Run(ctx, s.rows(ctx, e, dojoID, RosterScope())), nil
}

// Identity reports the user's student identity and whether it matches the
// course's student list.
func (s *Service) Identity(ctx context.Context, dojoID string, userID int64) (Identity, error) {
	c, err := s.store.Course(ctx, dojoID)
	if err != nil {
		return Identity{}, err
	}
	tok, enrolled, err := s.store.StudentToken(ctx, dojoID, userID)
	if err != nil {
		return Identity{}, err
	}
	id := Identity{Label: c.IdentityLabel(), Value: tok, Linked: LinkIncomplete}
	switch {
	case tok != nil && c.ExpectsStudent(*tok):
		id.Linked = LinkComplete
	case enrolled:
		id.Linked = LinkUnknown
	}
	return id, nil
}
