package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"postboard/internal/domain"
	"postboard/internal/http/response"
	"postboard/internal/observability"
	"postboard/internal/repository"
	"postboard/internal/security"
)

type contextKey string

const userContextKey contextKey = "user"

// BearerToken extracts the raw token from the Authorization header, or ""
// when the header is absent or not a bearer scheme.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// AuthMiddleware guards every route except the allow-listed paths. The order
// of checks is fixed: a banned token is reported as revoked before signature
// or expiry ever get a say, and a structurally valid token still fails when
// its account has been blocked since issuance.
func AuthMiddleware(jwtMgr *security.JWTManager, blacklist repository.BlacklistRepository, users repository.UserRepository, allowPaths []string) func(http.Handler) http.Handler {
	allow := make(map[string]struct{}, len(allowPaths))
	for _, p := range allowPaths {
		allow[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allow[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			raw := BearerToken(r)
			if raw == "" {
				observability.RecordAccessTokenValidation(r.Context(), "missing")
				response.Error(w, r, http.StatusUnauthorized, "AUTH_MISSING", "missing access token", nil)
				return
			}
			banned, err := blacklist.IsBlacklisted(raw)
			if err != nil {
				observability.RecordAccessTokenValidation(r.Context(), "store_error")
				response.Error(w, r, http.StatusInternalServerError, "PERSISTENCE_ERROR", "token verification unavailable", nil)
				return
			}
			if banned {
				observability.RecordAccessTokenValidation(r.Context(), "revoked")
				response.Error(w, r, http.StatusUnauthorized, "AUTH_REVOKED", "access token revoked", nil)
				return
			}
			claims, err := jwtMgr.ParseAccessToken(raw)
			if err != nil {
				if errors.Is(err, security.ErrTokenExpired) {
					observability.RecordAccessTokenValidation(r.Context(), "expired")
					response.Error(w, r, http.StatusUnauthorized, "AUTH_EXPIRED", "access token expired", nil)
					return
				}
				observability.RecordAccessTokenValidation(r.Context(), "invalid")
				response.Error(w, r, http.StatusUnauthorized, "AUTH_INVALID", "invalid access token", nil)
				return
			}
			user, err := users.FindByUsername(claims.Subject)
			if err != nil {
				if errors.Is(err, repository.ErrUserNotFound) {
					observability.RecordAccessTokenValidation(r.Context(), "unknown_user")
					response.Error(w, r, http.StatusUnauthorized, "AUTH_INVALID", "invalid access token", nil)
					return
				}
				observability.RecordAccessTokenValidation(r.Context(), "store_error")
				response.Error(w, r, http.StatusInternalServerError, "PERSISTENCE_ERROR", "token verification unavailable", nil)
				return
			}
			if !user.Status {
				observability.RecordAccessTokenValidation(r.Context(), "blocked")
				response.Error(w, r, http.StatusForbidden, "AUTH_USER_BLOCKED", "account is blocked", nil)
				return
			}

			observability.RecordAccessTokenValidation(r.Context(), "valid")
			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func UserFromContext(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(userContextKey).(*domain.User)
	return u, ok
}
