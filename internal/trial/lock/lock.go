// Package lock adds a Redis lease in front of a trial transaction so that
// several server instances sharing a non-postgres store still run at most one
// mutation per trial at a time.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	id "minimizer/pkg/domain"
	dErrors "minimizer/pkg/domain-errors"
)

const keyPrefix = "minimizer:trial-lock:"

// releaseScript deletes the lease only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TxRunner is the transaction the lease guards.
type TxRunner interface {
	RunInTx(ctx context.Context, trialID id.TrialID, fn func(ctx context.Context) error) error
}

type Leased struct {
	inner  TxRunner
	client redis.Cmdable
	ttl    time.Duration
	retry  time.Duration
}

type Option func(*Leased)

// WithRetryInterval sets how often a blocked caller polls for the lease.
func WithRetryInterval(d time.Duration) Option {
	return func(l *Leased) {
		if d > 0 {
			l.retry = d
		}
	}
}

// New wraps inner. ttl bounds how long a crashed holder can block a trial.
func New(inner TxRunner, client redis.Cmdable, ttl time.Duration, opts ...Option) *Leased {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	l := &Leased{inner: inner, client: client, ttl: ttl, retry: 25 * time.Millisecond}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RunInTx acquires the trial lease, runs the inner transaction and releases
// the lease. A caller that cannot acquire it before ctx ends gets CodeTimeout.
func (l *Leased) RunInTx(ctx context.Context, trialID id.TrialID, fn func(ctx context.Context) error) error {
	key := keyPrefix + string(trialID)
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}
	defer func() {
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err()
	}()
	return l.inner.RunInTx(ctx, trialID, fn)
}

func (l *Leased) acquire(ctx context.Context, key, token string) error {
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "transaction aborted: trial is busy")
			}
			return fmt.Errorf("acquire trial lease: %w", err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "transaction aborted: trial is busy")
		case <-time.After(l.retry):
		}
	}
}
