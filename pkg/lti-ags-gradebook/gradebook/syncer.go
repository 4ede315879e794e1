package gradebook

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"time"

	"github.com/mind-engage/mindengage-grades/internal/grading"
)

// ScoreMaximum is the LMS scale; an overall grade of 1.0 posts 100.
const ScoreMaximum = 100.0

type Clock func() time.Time

type Syncer struct {
	Store  Store
	AGS    AGSClient
	Now    Clock
	Logger *slog.Logger
}

func New(store Store, ags AGSClient, now Clock) *Syncer {
	if now == nil {
		now = time.Now
	}
	return &Syncer{Store: store, AGS: ags, Now: now, Logger: slog.Default()}
}

// EnsureLineItem finds or creates the LMS line item for a dojo's course. A
// line item already on the platform for the same resource is reused.
func (s *Syncer) EnsureLineItem(ctx context.Context, dojoID string) (GradebookLineItem, error) {
	link, err := s.Store.GetCourseLink(ctx, dojoID)
	if err != nil {
		return GradebookLineItem{}, fmt.Errorf("no LTI link for dojo %q: %w", dojoID, err)
	}
	if li, err := s.Store.FindLineItem(ctx, dojoID, link.PlatformIssuer, link.DeploymentID, link.ContextID, link.ResourceLinkID); err == nil && li.LineItemURL != "" {
		return li, nil
	}
	if link.LineItemsURL == "" {
		return GradebookLineItem{}, errors.New("missing lineitems_url")
	}
	label := link.Title
	if label == "" {
		label = dojoID
	}
	local := GradebookLineItem{
		DojoID: dojoID, PlatformIssuer: link.PlatformIssuer, DeploymentID: link.DeploymentID,
		ContextID: link.ContextID, ResourceLinkID: link.ResourceLinkID,
	}

	items, err := s.AGS.ListLineItems(ctx, link.LineItemsURL, map[string]string{
		"resource_id":      dojoID,
		"resource_link_id": link.ResourceLinkID,
	})
	if err == nil {
		for _, it := range items {
			if it.ResourceID == dojoID && it.ResourceLinkID == link.ResourceLinkID {
				local.Label, local.ScoreMax, local.LineItemURL = it.Label, it.ScoreMaximum, it.ID
				return s.Store.UpsertLineItem(ctx, local)
			}
		}
	}
	created, err := s.AGS.CreateLineItem(ctx, link.LineItemsURL, CreateLineItemReq{
		Label: label, ScoreMaximum: ScoreMaximum, ResourceID: dojoID, ResourceLinkID: link.ResourceLinkID,
	})
	if err != nil {
		return GradebookLineItem{}, fmt.Errorf("create line item: %w", err)
	}
	local.Label, local.ScoreMax, local.LineItemURL = created.Label, created.ScoreMaximum, created.ID
	return s.Store.UpsertLineItem(ctx, local)
}

// SyncReport posts one user's overall grade, with the letter as comment.
func (s *Syncer) SyncReport(ctx context.Context, dojoID string, r grading.Report) error {
	_ = s.Store.MarkSyncPending(ctx, dojoID, r.UserID)
	fail := func(err error) error {
		_ = s.Store.MarkSyncFailed(ctx, dojoID, r.UserID, err.Error())
		return err
	}

	li, err := s.EnsureLineItem(ctx, dojoID)
	if err != nil {
		return fail(err)
	}
	platformUserID, err := s.Store.GetPlatformUserID(ctx, li.PlatformIssuer, strconv.FormatInt(r.UserID, 10))
	if err != nil || platformUserID == "" {
		return fail(fmt.Errorf("no platform user mapping for %d", r.UserID))
	}
	scoreMax := li.ScoreMax
	if scoreMax <= 0 {
		scoreMax = ScoreMaximum
	}
	if err := s.AGS.PostScore(ctx, li.LineItemURL, Score{
		UserID:           platformUserID,
		ScoreGiven:       r.OverallGrade * scoreMax,
		ScoreMaximum:     scoreMax,
		Comment:          r.LetterGrade,
		ActivityProgress: "Completed",
		GradingProgress:  "FullyGraded",
		Timestamp:        s.Now(),
	}); err != nil {
		return fail(err)
	}
	return s.Store.MarkSyncOK(ctx, dojoID, r.UserID)
}

type Summary struct {
	OK     int `json:"ok"`
	Failed int `json:"failed"`
}

// SyncAll posts every report. A user that fails is recorded and skipped; an
// error from the report stream itself aborts.
func (s *Syncer) SyncAll(ctx context.Context, dojoID string, reports iter.Seq2[grading.Report, error]) (Summary, error) {
	var sum Summary
	for r, err := range reports {
		if err != nil {
			return sum, err
		}
		if err := s.SyncReport(ctx, dojoID, r); err != nil {
			s.Logger.Warn("grade passback failed", "dojo", dojoID, "user_id", r.UserID, "error", err)
			sum.Failed++
			continue
		}
		sum.OK++
	}
	s.Logger.Info("grade passback done", "dojo", dojoID, "ok", sum.OK, "failed", sum.Failed)
	return sum, nil
}
