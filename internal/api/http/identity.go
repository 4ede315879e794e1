package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	authmw "github.com/mind-engage/mindengage-grades/internal/auth/middleware"
	"github.com/mind-engage/mindengage-grades/internal/dojo"
	"github.com/mind-engage/mindengage-grades/internal/rbac"
)

type Identities interface {
	SetIdentity(ctx context.Context, dojoID string, userID int64, token string) error
}

type identityRequest struct {
	Identity string `json:"identity"`
}

// PATCH /dojos/{dojo}/course/identity  {"identity": "..."}
//
// Links the caller's student identity and enrolls them in the dojo. Staff
// are refused: they have no identity of their own in a course.
func IdentityHandler(ids Identities) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		dojoID, ok := dojoParam(w, r)
		if !ok {
			return
		}
		uid, ok := authmw.UserIDFromContext(ctx)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if rbac.IsStaff(ctx) {
			http.Error(w, "cannot identify admin", http.StatusForbidden)
			return
		}
		var req identityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		token := strings.TrimSpace(req.Identity)
		if token == "" {
			http.Error(w, "identity required", http.StatusBadRequest)
			return
		}
		if err := ids.SetIdentity(ctx, dojoID, uid, token); err != nil {
			if errors.Is(err, dojo.ErrNotFound) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			slog.ErrorContext(ctx, "set identity failed", "dojo", dojoID, "user_id", uid, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
