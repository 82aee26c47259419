package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"shortlink-service/utils"
)

// WindowCounter increments a counter keyed by client and path, expiring it
// after the window. Backed by Redis INCR in production.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimit limits requests per client IP and path over a sliding window.
// Fails open: if the counter backend is down the request is allowed, since
// availability outranks limiter fidelity. Mounted on the API router only.
func RateLimit(counter WindowCounter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ExtractIP(r)
			key := fmt.Sprintf("ratelimit:%s:%s", ip, r.URL.Path)

			count, err := counter.IncrWindow(r.Context(), key, window)
			if err != nil {
				log.Warn().Err(err).Msg("rate limit check failed, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			if count > int64(limit) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprint(w, `{"error":"rate limit exceeded"}`)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
