package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"minimizer/pkg/platform/httputil"
	"minimizer/pkg/platform/middleware/metadata"
	request "minimizer/pkg/platform/middleware/request"
)

// Store counts hits per key over a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// Limiter applies one limit to every request it guards, keyed by class and
// client IP.
type Limiter struct {
	store   Store
	class   string
	limit   int
	window  time.Duration
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

type Option func(*Limiter)

func WithMetrics(m *Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// New builds a limiter admitting limit requests per window. A non-positive
// limit disables it.
func New(store Store, class string, limit int, window time.Duration, logger *slog.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		class:  class,
		limit:  limit,
		window: window,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Middleware rejects requests over the limit with 429. If the store fails the
// request is let through.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		ip := metadata.GetClientIP(ctx)

		result, err := l.store.Allow(ctx, l.class+":"+ip, l.limit, l.window)
		if err != nil {
			l.logger.ErrorContext(ctx, "failed to check rate limit",
				"class", l.class,
				"error", err,
				"request_id", request.GetRequestID(ctx),
			)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if l.metrics != nil {
				l.metrics.IncRejected(l.class)
			}
			l.logger.WarnContext(ctx, "rate limit exceeded",
				"class", l.class,
				"client_ip", ip,
				"request_id", request.GetRequestID(ctx),
			)
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter(l.now())))
			httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.ErrorResponse{
				Error:       "rate_limit_exceeded",
				Description: "too many requests, try again later",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
