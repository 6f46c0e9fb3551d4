package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	id "minimizer/pkg/domain"
	dErrors "minimizer/pkg/domain-errors"
	txcontext "minimizer/pkg/platform/tx"
)

// numTrialShards spreads per-trial locks over a fixed set of mutexes so
// different trials rarely contend.
const numTrialShards = 128

// DefaultTxTimeout bounds a trial transaction when the caller set no deadline.
const DefaultTxTimeout = 5 * time.Second

// ShardedTx serialises mutations per trial within one process.
type ShardedTx struct {
	shards  [numTrialShards]sync.Mutex
	timeout time.Duration
}

func NewShardedTx(timeout time.Duration) *ShardedTx {
	return &ShardedTx{timeout: timeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, trialID id.TrialID, fn func(ctx context.Context) error) error {
	ctx, cancel, err := prepare(ctx, t.timeout)
	if err != nil {
		return err
	}
	defer cancel()

	shard := &t.shards[hashTrialID(trialID)%numTrialShards]
	if !lockWithContext(ctx, shard) {
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "transaction aborted: trial is busy")
	}
	defer shard.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}

// lockWithContext acquires mu unless ctx ends first.
func lockWithContext(ctx context.Context, mu *sync.Mutex) bool {
	if mu.TryLock() {
		return true
	}
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if mu.TryLock() {
				return true
			}
		}
	}
}

// hashTrialID is FNV-1a.
func hashTrialID(trialID id.TrialID) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(trialID); i++ {
		h ^= uint32(trialID[i])
		h *= fnvPrime
	}
	return h
}

func prepare(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return ctx, func() {}, dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if timeout == 0 {
		timeout = DefaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, nil
}

// SQLTx runs fn inside a database transaction carried in the context. With
// lockQuery set (postgres), the trial row is locked before fn runs; SQLite
// relies on BEGIN IMMEDIATE taking the database write lock.
type SQLTx struct {
	db        *sql.DB
	lockQuery string
	timeout   time.Duration
}

func NewPostgresTx(db *sql.DB, timeout time.Duration) *SQLTx {
	return &SQLTx{db: db, lockQuery: `SELECT 1 FROM trials WHERE id = $1 FOR UPDATE`, timeout: timeout}
}

func NewSQLiteTx(db *sql.DB, timeout time.Duration) *SQLTx {
	return &SQLTx{db: db, timeout: timeout}
}

func (t *SQLTx) RunInTx(ctx context.Context, trialID id.TrialID, fn func(ctx context.Context) error) error {
	ctx, cancel, err := prepare(ctx, t.timeout)
	if err != nil {
		return err
	}
	defer cancel()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		if ctx.Err() != nil {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: trial is busy")
		}
		return fmt.Errorf("begin trial tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if t.lockQuery != "" {
		var one int
		err := tx.QueryRowContext(ctx, t.lockQuery, string(trialID)).Scan(&one)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lock trial %s: %w", trialID, err)
		}
	}

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit trial tx: %w", err)
	}
	return nil
}
