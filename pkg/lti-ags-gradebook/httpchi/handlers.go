package httpchi

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-grades/internal/grading"
	"github.com/mind-engage/mindengage-grades/pkg/lti-ags-gradebook/gradebook"
)

// Reports supplies graded reports for a dojo.
type Reports interface {
	Report(ctx context.Context, dojoID string, userID int64) (grading.Report, error)
	Reports(ctx context.Context, dojoID string) (iter.Seq2[grading.Report, error], error)
}

type API struct {
	Syncer  *gradebook.Syncer
	Reports Reports
}

// Routes expects to be mounted under a router whose pattern carries {dojo}.
func (a *API) Routes(r chi.Router) {
	r.Post("/grades/link", a.postLink)
	r.Post("/grades/sync", a.postSync)
}

func (a *API) postLink(w http.ResponseWriter, r *http.Request) {
	li, err := a.Syncer.EnsureLineItem(r.Context(), chi.URLParam(r, "dojo"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{"status": "ok", "line_item": li.LineItemURL})
}

// postSync passes back every roster member, or a single user with ?user=.
func (a *API) postSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dojoID := chi.URLParam(r, "dojo")
	if raw := r.URL.Query().Get("user"); raw != "" {
		uid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "bad user id", http.StatusBadRequest)
			return
		}
		rep, err := a.Reports.Report(ctx, dojoID, uid)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := a.Syncer.SyncReport(ctx, dojoID, rep); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, gradebook.Summary{OK: 1})
		return
	}
	reports, err := a.Reports.Reports(ctx, dojoID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sum, err := a.Syncer.SyncAll(ctx, dojoID, reports)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, sum)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
