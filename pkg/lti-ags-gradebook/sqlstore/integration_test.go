package sqlstore_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-grades/internal/db"
	"github.com/mind-engage/mindengage-grades/internal/grading"
	"github.com/mind-engage/mindengage-grades/internal/grading/gradingtest"
	"github.com/mind-engage/mindengage-grades/pkg/lti-ags-gradebook/agshttp"
	gb "github.com/mind-engage/mindengage-grades/pkg/lti-ags-gradebook/gradebook"
	"github.com/mind-engage/mindengage-grades/pkg/lti-ags-gradebook/sqlstore"
)

type fakeLMS struct {
	mu      sync.Mutex
	created int
	scores  []map[string]any
}

func (f *fakeLMS) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/lti/lineitems", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.ims.lis.v2.lineitem+json")
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode([]any{})
		case http.MethodPost:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.mu.Lock()
			f.created++
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":             "http://" + r.Host + "/lti/lineitems/123",
				"label":          body["label"],
				"scoreMaximum":   body["scoreMaximum"],
				"resourceId":     body["resourceId"],
				"resourceLinkId": body["resourceLinkId"],
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/lti/lineitems/123/scores", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("score body: %v", err)
		}
		f.mu.Lock()
		f.scores = append(f.scores, body)
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "gradebook.db") + "?_pragma=busy_timeout(5000)"
	conn, err := db.Open(ctx, db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := gb.Migrate(ctx, conn, "sqlite"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func Test_EndToEnd_SQLite_WithHTTPAGS(t *testing.T) {
	ctx := context.Background()
	conn := openDB(t)
	st := &sqlstore.Store{DB: conn}

	lms := &fakeLMS{}
	ts := httptest.NewServer(lms.handler(t))
	defer ts.Close()

	if _, err := conn.ExecContext(ctx, `INSERT INTO dojos (id, name) VALUES ('cse365', 'CSE 365')`); err != nil {
		t.Fatalf("seed dojo: %v", err)
	}
	if err := st.PutPlatform(ctx, "iss-1", "test-client", ts.URL+"/oauth/token"); err != nil {
		t.Fatalf("platform: %v", err)
	}
	if err := st.PutCourseLink(ctx, gb.CourseLink{
		DojoID: "cse365", PlatformIssuer: "iss-1", DeploymentID: "dep-1", ContextID: "ctx-1", ResourceLinkID: "rl-1",
		LineItemsURL: ts.URL + "/lti/lineitems", Scopes: []string{"lineitem", "score"},
	}); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := st.MapUser(ctx, "iss-1", "platform-sub-1", "1"); err != nil {
		t.Fatalf("map user: %v", err)
	}

	link, err := st.GetCourseLink(ctx, "cse365")
	if err != nil {
		t.Fatalf("course link: %v", err)
	}
	if link.Title != "CSE 365" || len(link.Scopes) != 2 {
		t.Fatalf("course link %+v", link)
	}

	ags := agshttp.New(agshttp.Config{
		TokenURL:     ts.URL + "/oauth/token",
		ClientID:     "x",
		ClientSecret: "y",
		Timeout:      5 * time.Second,
	})
	syncer := gb.New(st, ags, time.Now)

	reports := gradingtest.Seq([]grading.Report{
		{UserID: 1, OverallGrade: 0.75, LetterGrade: "B"},
		{UserID: 2, OverallGrade: 0.5, LetterGrade: "?"},
	})
	sum, err := syncer.SyncAll(ctx, "cse365", reports)
	if err != nil {
		t.Fatalf("sync all: %v", err)
	}
	if sum.OK != 1 || sum.Failed != 1 {
		t.Fatalf("summary %+v", sum)
	}
	if lms.created != 1 {
		t.Fatalf("line items created %d, want 1", lms.created)
	}
	if len(lms.scores) != 1 {
		t.Fatalf("scores posted %d, want 1", len(lms.scores))
	}
	got := lms.scores[0]
	if got["userId"] != "platform-sub-1" || got["scoreGiven"] != 75.0 || got["comment"] != "B" {
		t.Fatalf("posted %+v", got)
	}

	ok, err := st.SyncStatus(ctx, "cse365", 1)
	if err != nil || ok.Status != "ok" {
		t.Fatalf("user 1 status %+v, %v", ok, err)
	}
	failed, err := st.SyncStatus(ctx, "cse365", 2)
	if err != nil || failed.Status != "failed" || failed.Retries != 1 || failed.LastErr == "" {
		t.Fatalf("user 2 status %+v, %v", failed, err)
	}
	if _, err := st.SyncStatus(ctx, "cse365", 3); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("unsynced user: %v", err)
	}

	li, err := st.FindLineItem(ctx, "cse365", "iss-1", "dep-1", "ctx-1", "rl-1")
	if err != nil || li.Label != "CSE 365" || li.ScoreMax != 100 {
		t.Fatalf("stored line item %+v, %v", li, err)
	}
}

func TestCourseLinkMissing(t *testing.T) {
	st := &sqlstore.Store{DB: openDB(t)}
	if _, err := st.GetCourseLink(context.Background(), "nowhere"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("want ErrNoRows, got %v", err)
	}
}
