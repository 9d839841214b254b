package middleware

import (
	"net/http"

	"postboard/internal/domain"
	"postboard/internal/http/response"
)

// RequireAdmin assumes AuthMiddleware already ran and a user is in context.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			response.Error(w, r, http.StatusUnauthorized, "AUTH_MISSING", "missing auth context", nil)
			return
		}
		if user.Role != domain.RoleAdmin {
			response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "admin role required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
