package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"minimizer/internal/auth/models"
	id "minimizer/pkg/domain"
	"minimizer/pkg/platform/sentinel"
	txcontext "minimizer/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresUserStore persists users in PostgreSQL. Calls join the transaction
// carried by ctx, so a trial and its creator's grant commit together.
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

func (s *PostgresUserStore) Create(ctx context.Context, user *models.User) error {
	_, err := txcontext.Or(ctx, s.db).ExecContext(ctx, `
		INSERT INTO users (username, full_name, password_hash, is_admin, trials, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, string(user.Username), user.FullName, user.PasswordHash, user.Admin, pq.Array(trialStrings(user.Trials)), user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("user %s: %w", user.Username, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// CreateFirst inserts user only when the table is empty.
func (s *PostgresUserStore) CreateFirst(ctx context.Context, user *models.User) error {
	res, err := txcontext.Or(ctx, s.db).ExecContext(ctx, `
		INSERT INTO users (username, full_name, password_hash, is_admin, trials, created_at)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE NOT EXISTS (SELECT 1 FROM users)
	`, string(user.Username), user.FullName, user.PasswordHash, user.Admin, pq.Array(trialStrings(user.Trials)), user.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert first user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert first user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("users already exist: %w", sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresUserStore) FindByUsername(ctx context.Context, username id.Username) (*models.User, error) {
	var (
		user   models.User
		name   string
		trials []string
	)
	err := txcontext.Or(ctx, s.db).QueryRowContext(ctx, `
		SELECT username, full_name, password_hash, is_admin, trials, created_at
		FROM users
		WHERE username = $1
	`, string(username)).Scan(&name, &user.FullName, &user.PasswordHash, &user.Admin, pq.Array(&trials), &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", username, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	user.Username = id.Username(name)
	user.Trials = make([]id.TrialID, len(trials))
	for i, t := range trials {
		user.Trials[i] = id.TrialID(t)
	}
	return &user, nil
}

func (s *PostgresUserStore) GrantTrial(ctx context.Context, username id.Username, trialID id.TrialID) error {
	res, err := txcontext.Or(ctx, s.db).ExecContext(ctx, `
		UPDATE users
		SET trials = CASE WHEN $2::text = ANY(trials) THEN trials ELSE array_append(trials, $2::text) END
		WHERE username = $1
	`, string(username), string(trialID))
	if err != nil {
		return fmt.Errorf("grant trial access: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("grant trial access: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", username, sentinel.ErrNotFound)
	}
	return nil
}

func trialStrings(trials []id.TrialID) []string {
	out := make([]string, len(trials))
	for i, t := range trials {
		out[i] = string(t)
	}
	return out
}
