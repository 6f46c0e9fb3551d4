package revocation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"minimizer/internal/auth/models"
)

// PostgresStore persists revoked sessions. Every Revoke also deletes rows
// whose tokens have lapsed, so the table stays bounded by live sessions.
type PostgresStore struct {
	db    *sql.DB
	clock Clock
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

func (s *PostgresStore) Revoke(ctx context.Context, session models.RevokedSession) error {
	now := s.clock()
	if err := validate(session, now); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		WITH lapsed AS (
			DELETE FROM token_revocations WHERE expires_at <= $6
		)
		INSERT INTO token_revocations (jti, session_id, username, revoked_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (jti) DO UPDATE SET expires_at = EXCLUDED.expires_at
	`, session.JTI, session.SessionID.String(), string(session.Username), session.RevokedAt, session.ExpiresAt, now)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM token_revocations WHERE jti = $1 AND expires_at > $2)
	`, jti, s.clock()).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked session: %w", err)
	}
	return revoked, nil
}
