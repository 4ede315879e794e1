// Package gradebook passes a dojo's overall course grades back to an LMS
// line item through LTI Assignment and Grade Services.
package gradebook

import (
	"context"
	"time"
)

// CourseLink is the LMS placement of a dojo's course, captured at launch.
type CourseLink struct {
	DojoID, Title                                           string
	PlatformIssuer, DeploymentID, ContextID, ResourceLinkID string
	LineItemsURL                                            string
	Scopes                                                  []string
}

type GradebookLineItem struct {
	ID                                                              int64
	DojoID, PlatformIssuer, DeploymentID, ContextID, ResourceLinkID string
	Label                                                           string
	ScoreMax                                                        float64
	LineItemURL                                                     string // absolute URL
}

type SyncStatus struct {
	DojoID  string
	UserID  int64
	Status  string // pending|ok|failed
	Retries int
	LastErr string
}

// Store: implement this in your app, or use pkg/sqlstore.Store
type Store interface {
	GetCourseLink(ctx context.Context, dojoID string) (CourseLink, error)
	UpsertLineItem(ctx context.Context, li GradebookLineItem) (GradebookLineItem, error)
	FindLineItem(ctx context.Context, dojoID, issuer, dep, ctxID, rl string) (GradebookLineItem, error)
	GetPlatformUserID(ctx context.Context, issuer, localUserID string) (string, error)

	MarkSyncPending(ctx context.Context, dojoID string, userID int64) error
	MarkSyncOK(ctx context.Context, dojoID string, userID int64) error
	MarkSyncFailed(ctx context.Context, dojoID string, userID int64, lastErr string) error
}

type LineItem struct {
	ID, Label, ResourceID, ResourceLinkID string
	ScoreMaximum                          float64
}

type CreateLineItemReq struct {
	Label          string
	ScoreMaximum   float64
	ResourceID     string
	ResourceLinkID string
}

type Score struct {
	UserID, ActivityProgress, GradingProgress string
	ScoreGiven, ScoreMaximum                  float64
	Comment                                   string
	Timestamp                                 time.Time
}

type AGSClient interface {
	ListLineItems(ctx context.Context, lineItemsURL string, q map[string]string) ([]LineItem, error)
	CreateLineItem(ctx context.Context, lineItemsURL string, req CreateLineItemReq) (LineItem, error)
	PostScore(ctx context.Context, lineItemURL string, s Score) error
}
