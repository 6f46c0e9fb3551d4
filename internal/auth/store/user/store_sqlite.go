package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"minimizer/internal/auth/models"
	id "minimizer/pkg/domain"
	"minimizer/pkg/platform/sentinel"
	txcontext "minimizer/pkg/platform/tx"
)

// SQLiteUserStore keeps users next to the trials of a single-node server.
// The trial list is a JSON array.
type SQLiteUserStore struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLiteUserStore {
	return &SQLiteUserStore{db: db}
}

func (s *SQLiteUserStore) Create(ctx context.Context, user *models.User) error {
	trials, err := json.Marshal(trialStrings(user.Trials))
	if err != nil {
		return fmt.Errorf("encode trials: %w", err)
	}
	_, err = txcontext.Or(ctx, s.db).ExecContext(ctx, `
		INSERT INTO users (username, full_name, password_hash, is_admin, trials, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(user.Username), user.FullName, user.PasswordHash, user.Admin, string(trials), user.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("user %s: %w", user.Username, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// CreateFirst inserts user only when the table is empty.
func (s *SQLiteUserStore) CreateFirst(ctx context.Context, user *models.User) error {
	trials, err := json.Marshal(trialStrings(user.Trials))
	if err != nil {
		return fmt.Errorf("encode trials: %w", err)
	}
	res, err := txcontext.Or(ctx, s.db).ExecContext(ctx, `
		INSERT INTO users (username, full_name, password_hash, is_admin, trials, created_at)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM users)
	`, string(user.Username), user.FullName, user.PasswordHash, user.Admin, string(trials), user.CreatedAt.UTC().Format(time.RFC3339Nano))
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

func (s *SQLiteUserStore) FindByUsername(ctx context.Context, username id.Username) (*models.User, error) {
	var (
		user      models.User
		name      string
		trials    string
		createdAt string
	)
	err := txcontext.Or(ctx, s.db).QueryRowContext(ctx, `
		SELECT username, full_name, password_hash, is_admin, trials, created_at
		FROM users
		WHERE username = ?
	`, string(username)).Scan(&name, &user.FullName, &user.PasswordHash, &user.Admin, &trials, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", username, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	user.Username = id.Username(name)
	if user.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for user %s: %w", name, err)
	}
	var raw []string
	if err := json.Unmarshal([]byte(trials), &raw); err != nil {
		return nil, fmt.Errorf("decode trials for user %s: %w", name, err)
	}
	user.Trials = make([]id.TrialID, len(raw))
	for i, t := range raw {
		user.Trials[i] = id.TrialID(t)
	}
	return &user, nil
}

// GrantTrial reads and rewrites the row. SQLite serialises writers, so the
// read-modify-write cannot interleave with another grant inside a transaction.
func (s *SQLiteUserStore) GrantTrial(ctx context.Context, username id.Username, trialID id.TrialID) error {
	user, err := s.FindByUsername(ctx, username)
	if err != nil {
		return err
	}
	if slices.Contains(user.Trials, trialID) {
		return nil
	}
	trials, err := json.Marshal(trialStrings(append(user.Trials, trialID)))
	if err != nil {
		return fmt.Errorf("encode trials: %w", err)
	}
	if _, err := txcontext.Or(ctx, s.db).ExecContext(ctx,
		`UPDATE users SET trials = ? WHERE username = ?`, string(trials), string(username)); err != nil {
		return fmt.Errorf("grant trial access: %w", err)
	}
	return nil
}
