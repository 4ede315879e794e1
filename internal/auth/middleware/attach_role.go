package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mind-engage/mindengage-grades/internal/dojo"
	"github.com/mind-engage/mindengage-grades/internal/rbac"
)

// UserLookup finds the stored user behind a token subject.
type UserLookup interface {
	User(ctx context.Context, id int64) (dojo.User, error)
}

// AttachRoleFromDB replaces the token's role with the stored one.
// allowClaimFallback=true in offline mode; false online.
func AttachRoleFromDB(users UserLookup, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			claimRole := rbac.RoleFromContext(ctx) // set by JWTMiddleware

			id, ok := UserIDFromContext(ctx)
			if !ok {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			u, err := users.User(ctx, id)
			switch {
			case err == nil && u.Role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, u.Role)))

			case errors.Is(err, dojo.ErrNotFound):
				if allowClaimFallback && claimRole != "" {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "forbidden", http.StatusForbidden)

			default:
				slog.ErrorContext(ctx, "role lookup failed", "error", err, "user_id", id)
				if allowClaimFallback && claimRole != "" {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "forbidden", http.StatusForbidden)
			}
		})
	}
}
