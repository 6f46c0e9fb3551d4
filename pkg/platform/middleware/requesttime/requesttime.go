// Package requesttime pins one "now" per HTTP request so the enrollment
// time and the audit events written by that request agree.
package requesttime

import (
	"net/http"
	"time"

	"minimizer/pkg/requestcontext"
)

// Precision is the resolution of request times. Postgres stores
// microseconds, so coarser stamps survive a round trip unchanged.
const Precision = time.Microsecond

// Middleware stamps the request with the current UTC time.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock is Middleware with an explicit time source.
func WithClock(clock func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := clock().UTC().Truncate(Precision)
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), now)))
		})
	}
}
