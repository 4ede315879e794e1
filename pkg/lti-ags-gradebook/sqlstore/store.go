package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/mind-engage/mindengage-grades/pkg/lti-ags-gradebook/gradebook"
)

// Store reads the dojo title from the app's dojos table; everything else
// lives in the gradebook migration.
type Store struct{ DB *sql.DB }

var _ gradebook.Store = (*Store)(nil)

func (s *Store) GetCourseLink(ctx context.Context, dojoID string) (gradebook.CourseLink, error) {
	var link gradebook.CourseLink
	var lineItems, scopes sql.NullString
	err := s.DB.QueryRowContext(ctx, `
		SELECT l.dojo_id, COALESCE(d.name, ''), l.platform_issuer, l.deployment_id, l.context_id, l.resource_link_id,
		       l.lineitems_url, l.scopes
		FROM lti_links l
		LEFT JOIN dojos d ON d.id = l.dojo_id
		WHERE l.dojo_id=$1
		ORDER BY l.updated_at DESC, l.id DESC LIMIT 1`, dojoID).
		Scan(&link.DojoID, &link.Title, &link.PlatformIssuer, &link.DeploymentID, &link.ContextID, &link.ResourceLinkID,
			&lineItems, &scopes)
	if err != nil {
		return gradebook.CourseLink{}, err
	}
	link.LineItemsURL = lineItems.String
	if scopes.Valid {
		_ = json.Unmarshal([]byte(scopes.String), &link.Scopes)
	}
	return link, nil
}

// PutPlatform registers an LMS issuer.
func (s *Store) PutPlatform(ctx context.Context, issuer, clientID, tokenURL string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO lti_platforms (issuer, client_id, token_url) VALUES ($1,$2,$3)
		ON CONFLICT (issuer) DO UPDATE SET client_id=EXCLUDED.client_id, token_url=EXCLUDED.token_url`,
		issuer, clientID, tokenURL)
	return err
}

// PutCourseLink records where a dojo's course is placed on a platform.
func (s *Store) PutCourseLink(ctx context.Context, l gradebook.CourseLink) error {
	scopes, err := json.Marshal(l.Scopes)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO lti_links (dojo_id, platform_issuer, deployment_id, context_id, resource_link_id, lineitems_url, scopes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (platform_issuer, deployment_id, context_id, resource_link_id)
		DO UPDATE SET dojo_id=EXCLUDED.dojo_id, lineitems_url=EXCLUDED.lineitems_url, scopes=EXCLUDED.scopes, updated_at=CURRENT_TIMESTAMP`,
		l.DojoID, l.PlatformIssuer, l.DeploymentID, l.ContextID, l.ResourceLinkID, l.LineItemsURL, string(scopes))
	return err
}

// MapUser links a platform subject to a local user id.
func (s *Store) MapUser(ctx context.Context, issuer, platformSub, localUserID string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO lti_user_map (platform_issuer, platform_sub, local_user_id) VALUES ($1,$2,$3)
		ON CONFLICT (platform_issuer, platform_sub) DO UPDATE SET local_user_id=EXCLUDED.local_user_id`,
		issuer, platformSub, localUserID)
	return err
}

func (s *Store) UpsertLineItem(ctx context.Context, li gradebook.GradebookLineItem) (gradebook.GradebookLineItem, error) {
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO gradebook_lineitems (dojo_id, platform_issuer, deployment_id, context_id, resource_link_id, label, score_max, line_item_url)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (dojo_id, platform_issuer, deployment_id, context_id, resource_link_id)
		DO UPDATE SET
			label=EXCLUDED.label,
			score_max=EXCLUDED.score_max,
			line_item_url=EXCLUDED.line_item_url,
			updated_at=CURRENT_TIMESTAMP
		RETURNING id`,
		li.DojoID, li.PlatformIssuer, li.DeploymentID, li.ContextID, li.ResourceLinkID, li.Label, li.ScoreMax, li.LineItemURL).
		Scan(&li.ID)
	return li, err
}

func (s *Store) FindLineItem(ctx context.Context, dojoID, issuer, dep, ctxID, rlID string) (gradebook.GradebookLineItem, error) {
	var li gradebook.GradebookLineItem
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, dojo_id, platform_issuer, deployment_id, context_id, resource_link_id, label, score_max, line_item_url
		FROM gradebook_lineitems
		WHERE dojo_id=$1 AND platform_issuer=$2 AND deployment_id=$3 AND context_id=$4 AND resource_link_id=$5`,
		dojoID, issuer, dep, ctxID, rlID).
		Scan(&li.ID, &li.DojoID, &li.PlatformIssuer, &li.DeploymentID, &li.ContextID, &li.ResourceLinkID, &li.Label, &li.ScoreMax, &li.LineItemURL)
	return li, err
}

func (s *Store) GetPlatformUserID(ctx context.Context, issuer, localUserID string) (string, error) {
	var sub string
	err := s.DB.QueryRowContext(ctx, `SELECT platform_sub FROM lti_user_map WHERE platform_issuer=$1 AND local_user_id=$2`,
		issuer, localUserID).Scan(&sub)
	return sub, err
}

func (s *Store) MarkSyncPending(ctx context.Context, dojoID string, userID int64) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO grade_sync_status (dojo_id, user_id, status, retries, updated_at)
		VALUES ($1,$2,'pending',0,CURRENT_TIMESTAMP)
		ON CONFLICT (dojo_id, user_id)
		DO UPDATE SET status='pending', updated_at=CURRENT_TIMESTAMP`,
		dojoID, userID)
	return err
}

func (s *Store) MarkSyncOK(ctx context.Context, dojoID string, userID int64) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE grade_sync_status
		   SET status='ok', last_error=NULL, updated_at=CURRENT_TIMESTAMP
		 WHERE dojo_id=$1 AND user_id=$2`, dojoID, userID)
	return err
}

func (s *Store) MarkSyncFailed(ctx context.Context, dojoID string, userID int64, lastErr string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO grade_sync_status (dojo_id, user_id, status, retries, last_error, updated_at)
		VALUES ($1,$2,'failed',1,$3,CURRENT_TIMESTAMP)
		ON CONFLICT (dojo_id, user_id)
		DO UPDATE SET
			status='failed',
			retries=grade_sync_status.retries+1,
			last_error=EXCLUDED.last_error,
			updated_at=CURRENT_TIMESTAMP`,
		dojoID, userID, lastErr)
	return err
}

// SyncStatus reports the last passback outcome for a user; sql.ErrNoRows
// when the user was never synced.
func (s *Store) SyncStatus(ctx context.Context, dojoID string, userID int64) (gradebook.SyncStatus, error) {
	st := gradebook.SyncStatus{DojoID: dojoID, UserID: userID}
	var lastErr sql.NullString
	err := s.DB.QueryRowContext(ctx, `
		SELECT status, retries, last_error FROM grade_sync_status WHERE dojo_id=$1 AND user_id=$2`,
		dojoID, userID).Scan(&st.Status, &st.Retries, &lastErr)
	if errors.Is(err, sql.ErrNoRows) {
		return st, err
	}
	st.LastErr = lastErr.String
	return st, err
}
