// Package worker persists best-effort operational audit events off the
// request path. Events are buffered; when the buffer is full or the store
// keeps failing they are dropped and counted instead of slowing requests.
package worker

import (
	"context"
	"log/slog"
	"time"

	audit "minimizer/pkg/platform/audit"
	"minimizer/pkg/platform/circuit"
)

const (
	defaultBufferSize   = 1024
	defaultDrainTimeout = 5 * time.Second
)

// Worker consumes audit events from a bounded channel and persists them.
type Worker struct {
	store        audit.Store
	inbox        chan audit.Event
	breaker      *circuit.Breaker
	logger       *slog.Logger
	metrics      *Metrics
	drainTimeout time.Duration
}

type Option func(*Worker)

func WithBufferSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.inbox = make(chan audit.Event, n)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(w *Worker) {
		w.breaker = b
	}
}

func New(store audit.Store, opts ...Option) *Worker {
	w := &Worker{
		store:        store,
		inbox:        make(chan audit.Event, defaultBufferSize),
		breaker:      circuit.New("audit-worker", circuit.WithFailureThreshold(5), circuit.WithCooldown(time.Minute)),
		logger:       slog.Default(),
		drainTimeout: defaultDrainTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Track enqueues event without blocking. It reports false when the event was
// dropped because the buffer is full.
func (w *Worker) Track(ctx context.Context, event audit.Event) bool {
	select {
	case w.inbox <- event:
		return true
	default:
		if w.metrics != nil {
			w.metrics.IncDropped("buffer_full")
		}
		w.logger.WarnContext(ctx, "audit worker buffer full, event dropped",
			"action", event.Action,
			"trial_id", event.TrialID,
		)
		return false
	}
}

// Run persists events until ctx is cancelled, then drains what is already
// buffered within the drain timeout.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain(ctx)
			return nil
		case event := <-w.inbox:
			w.persist(ctx, event)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.drainTimeout)
	defer cancel()
	for {
		select {
		case event := <-w.inbox:
			w.persist(drainCtx, event)
		default:
			return
		}
	}
}

func (w *Worker) persist(ctx context.Context, event audit.Event) {
	if !w.breaker.Allow() {
		if w.metrics != nil {
			w.metrics.IncDropped("circuit_open")
		}
		return
	}
	if err := w.store.Append(ctx, event); err != nil {
		_, change := w.breaker.RecordFailure()
		if w.metrics != nil {
			w.metrics.IncPersistFailures()
			if change.Opened {
				w.metrics.SetCircuitBreakerState(true)
			}
		}
		w.logger.ErrorContext(ctx, "audit worker persist failed",
			"action", event.Action,
			"trial_id", event.TrialID,
			"error", err,
			"circuit_opened", change.Opened,
		)
		return
	}
	_, change := w.breaker.RecordSuccess()
	if w.metrics != nil {
		w.metrics.IncTracked()
		if change.Closed {
			w.metrics.SetCircuitBreakerState(false)
		}
	}
}
