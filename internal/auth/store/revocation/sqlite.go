package revocation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"minimizer/internal/auth/models"
)

// SQLiteStore keeps revoked sessions in the single-node database so logouts
// survive a restart. Times are unix milliseconds.
type SQLiteStore struct {
	db    *sql.DB
	clock Clock
}

type SQLiteOption func(*SQLiteStore)

func WithSQLiteClock(clock Clock) SQLiteOption {
	return func(s *SQLiteStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewSQLite(db *sql.DB, opts ...SQLiteOption) *SQLiteStore {
	s := &SQLiteStore{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SQLiteStore) Revoke(ctx context.Context, session models.RevokedSession) error {
	now := s.clock()
	if err := validate(session, now); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin revoke: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM token_revocations WHERE expires_at <= ?`, now.UnixMilli()); err != nil {
		return fmt.Errorf("purge lapsed sessions: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO token_revocations (jti, session_id, username, revoked_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (jti) DO UPDATE SET expires_at = excluded.expires_at
	`, session.JTI, session.SessionID.String(), string(session.Username),
		session.RevokedAt.UnixMilli(), session.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM token_revocations WHERE jti = ? AND expires_at > ?`,
		jti, s.clock().UnixMilli(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check revoked session: %w", err)
	}
	return n > 0, nil
}
