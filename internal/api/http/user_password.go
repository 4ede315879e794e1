package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	authmw "github.com/mind-engage/mindengage-grades/internal/auth/middleware"
	"github.com/mind-engage/mindengage-grades/internal/dojo"
)

type PasswordChanger interface {
	ChangePassword(ctx context.Context, id int64, oldPassword, newPassword string) error
}

type changePasswordReq struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// POST /users/change-password
func ChangePasswordHandler(users PasswordChanger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := authmw.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req changePasswordReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.NewPassword == "" {
			http.Error(w, "new password required", http.StatusBadRequest)
			return
		}

		err := users.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword)
		switch {
		case err == nil:
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, dojo.ErrNotFound):
			http.Error(w, "user not found", http.StatusNotFound)
		case errors.Is(err, dojo.ErrBadCredentials):
			http.Error(w, "incorrect old password", http.StatusForbidden)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
