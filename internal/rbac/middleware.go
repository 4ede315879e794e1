package rbac

import (
	"context"
	"net/http"
)

type roleKey struct{}

// WithRole stores the caller's role, as resolved by the auth middleware.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey{}).(string)
	return role
}

// Can reports whether the role in ctx holds perm under the default policy.
func Can(ctx context.Context, perm string) bool {
	return Default.Grants(RoleFromContext(ctx), perm)
}

// IsStaff is Default.Staff for the role in ctx.
func IsStaff(ctx context.Context) bool {
	return Default.Staff(RoleFromContext(ctx))
}

// Require enforces a single permission.
func Require(perm string) func(http.Handler) http.Handler {
	return RequireAny(perm)
}

// RequireAny enforces that the role has at least one of the permissions.
func RequireAny(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Default.GrantsAny(RoleFromContext(r.Context()), perms...) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
