package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit creates per-tenant rate limiting middleware. Install it after
// Auth; unauthenticated requests are limited by IP.
func RateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return limit(requestLimit, windowLength, func(r *http.Request) (string, error) {
		if tenantID := GetTenantID(r.Context()); tenantID != "" {
			return "tenant:" + tenantID, nil
		}
		return httprate.KeyByIP(r)
	})
}

// UserRateLimit creates per-user rate limiting middleware for expensive
// routes such as chat turns and uploads.
func UserRateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return limit(requestLimit, windowLength, func(r *http.Request) (string, error) {
		if userID := GetUserID(r.Context()); userID != "" {
			return "user:" + GetTenantID(r.Context()) + ":" + userID, nil
		}
		return httprate.KeyByIP(r)
	})
}

func limit(requestLimit int, windowLength time.Duration, key httprate.KeyFunc) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(windowLength.Seconds()))
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded","retry_after":` + retryAfter + `}`))
		}),
	)
}
