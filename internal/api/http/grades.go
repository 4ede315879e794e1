package http

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/mindengage-grades/internal/auth/middleware"
	"github.com/mind-engage/mindengage-grades/internal/course"
	"github.com/mind-engage/mindengage-grades/internal/dojo"
	"github.com/mind-engage/mindengage-grades/internal/export"
	"github.com/mind-engage/mindengage-grades/internal/grading"
	"github.com/mind-engage/mindengage-grades/internal/rbac"
)

// Grades is what the handlers need from dojo.Service.
type Grades interface {
	Report(ctx context.Context, dojoID string, userID int64) (grading.Report, error)
	Reports(ctx context.Context, dojoID string) (iter.Seq2[grading.Report, error], error)
	Identity(ctx context.Context, dojoID string, userID int64) (dojo.Identity, error)
}

// courseView is a single user's report with their student identity.
type courseView struct {
	grading.Report
	Identity dojo.Identity `json:"identity"`
}

func dojoParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "dojo"))
	if id == "" {
		http.Error(w, "dojo required", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

// GET /dojos/{dojo}/course/grades[?user=<id>]
//
// Without ?user the caller's own report is returned; another user's report
// needs grades:view-all. The user's student identity comes along.
func CourseGradesHandler(svc Grades) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		dojoID, ok := dojoParam(w, r)
		if !ok {
			return
		}
		self, ok := authmw.UserIDFromContext(ctx)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		uid := self
		if raw := r.URL.Query().Get("user"); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || v <= 0 {
				http.Error(w, "bad user id", http.StatusBadRequest)
				return
			}
			uid = v
		}
		if uid != self && !rbac.Can(ctx, rbac.PermGradesViewAll) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		rep, err := svc.Report(ctx, dojoID, uid)
		if err != nil {
			writeGradesError(w, r, dojoID, err)
			return
		}
		ident, err := svc.Identity(ctx, dojoID, uid)
		if err != nil {
			writeGradesError(w, r, dojoID, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(courseView{Report: rep, Identity: ident})
	}
}

// GET /dojos/{dojo}/admin/grades
//
// Streams every enrolled student's report as a JSON array. A feed error
// after the first report truncates the array.
func AllGradesHandler(svc Grades) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		dojoID, ok := dojoParam(w, r)
		if !ok {
			return
		}
		reports, err := svc.Reports(ctx, dojoID)
		if err != nil {
			writeGradesError(w, r, dojoID, err)
			return
		}
		next, stop := iter.Pull2(reports)
		defer stop()

		first, err, more := next()
		if err != nil {
			writeGradesError(w, r, dojoID, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		_, _ = w.Write([]byte("["))
		for n := 0; more; n++ {
			if n > 0 {
				_, _ = w.Write([]byte(","))
			}
			if err := enc.Encode(first); err != nil {
				slog.WarnContext(ctx, "grades stream aborted", "dojo", dojoID, "error", err)
				return
			}
			first, err, more = next()
			if err != nil {
				slog.ErrorContext(ctx, "grades stream failed", "dojo", dojoID, "after", n+1, "error", err)
				return
			}
		}
		_, _ = w.Write([]byte("]\n"))
	}
}

// GET /dojos/{dojo}/admin/grades.xlsx
func GradesXLSXHandler(svc Grades) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		dojoID, ok := dojoParam(w, r)
		if !ok {
			return
		}
		reports, err := svc.Reports(ctx, dojoID)
		if err != nil {
			writeGradesError(w, r, dojoID, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="`+dojoID+`-grades.xlsx"`)
		n, err := export.WriteXLSX(w, reports)
		if err != nil {
			w.Header().Del("Content-Disposition")
			writeGradesError(w, r, dojoID, err)
			return
		}
		slog.InfoContext(ctx, "grades exported", "dojo", dojoID, "users", n)
	}
}

// writeGradesError maps grading failures onto status codes. Course faults
// are operator problems and carry their diagnostic.
func writeGradesError(w http.ResponseWriter, r *http.Request, dojoID string, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, dojo.ErrNotFound), errors.Is(err, dojo.ErrNoCourse):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, course.ErrConfiguration), errors.Is(err, course.ErrDataFault):
		slog.ErrorContext(ctx, "course policy fault", "dojo", dojoID, "error", err)
		http.Error(w, "course misconfigured: "+err.Error(), http.StatusInternalServerError)
	case errors.Is(err, context.Canceled):
		slog.DebugContext(ctx, "grading canceled", "dojo", dojoID)
	default:
		slog.ErrorContext(ctx, "grading failed", "dojo", dojoID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
