package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"postboard/internal/http/response"
	"postboard/internal/observability"
	"postboard/internal/service"
)

type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

// RateLimitMiddleware applies the sliding-window limiter per client. The key
// is the presented access token when one exists, else the client IP, so an
// attacker rotating tokens from one host still collides on the IP bucket for
// unauthenticated calls.
func RateLimitMiddleware(limiter *service.RateLimiter, window time.Duration, mode FailureMode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, keyType := rateLimitKey(r)
			allowed, err := limiter.CheckAndRecord(r.Context(), key)
			if err != nil {
				observability.RecordRateLimitDecision(r.Context(), "backend_error", keyType)
				if mode == FailOpen {
					slog.WarnContext(r.Context(), "rate limit backend unavailable, allowing request", "error", err)
					next.ServeHTTP(w, r)
					return
				}
				w.Header().Set("Retry-After", retryAfterHeader(window))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			if !allowed {
				observability.RecordRateLimitDecision(r.Context(), "deny", keyType)
				w.Header().Set("Retry-After", retryAfterHeader(window))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			observability.RecordRateLimitDecision(r.Context(), "allow", keyType)
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) (key, keyType string) {
	if token := BearerToken(r); token != "" {
		return "token:" + token, "token"
	}
	return "ip:" + ClientIP(r), "ip"
}

// ClientIP trusts RemoteAddr, which the router rewrites from forwarding
// headers before anything here runs.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfterHeader(window time.Duration) string {
	seconds := int(window.Round(time.Second).Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return fmt.Sprintf("%d", seconds)
}
