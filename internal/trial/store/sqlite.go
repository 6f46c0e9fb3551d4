package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"minimizer/internal/trial/models"
	id "minimizer/pkg/domain"
	"minimizer/pkg/platform/sentinel"
	txcontext "minimizer/pkg/platform/tx"
)

// SQLiteStore is the single-node store behind the operator CLI. Timestamps are
// stored as RFC 3339 text.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Create(ctx context.Context, trial *models.Trial) error {
	cfg, patients, err := encode(trial)
	if err != nil {
		return err
	}
	_, err = txcontext.Or(ctx, s.db).ExecContext(ctx, `
		INSERT INTO trials (id, config, patients, created_at, created_by, archived_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(trial.ID), string(cfg), string(patients), formatTime(trial.CreatedAt), string(trial.CreatedBy), formatTimePtr(trial.ArchivedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert trial: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, trialID id.TrialID) (*models.Trial, error) {
	row := txcontext.Or(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, config, patients, created_at, created_by, archived_at
		FROM trials WHERE id = ?
	`, string(trialID))
	t, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return t, err
}

func (s *SQLiteStore) Save(ctx context.Context, trial *models.Trial) error {
	_, patients, err := encode(trial)
	if err != nil {
		return err
	}
	res, err := txcontext.Or(ctx, s.db).ExecContext(ctx, `
		UPDATE trials SET patients = ?, archived_at = ? WHERE id = ?
	`, string(patients), formatTimePtr(trial.ArchivedAt), string(trial.ID))
	if err != nil {
		return fmt.Errorf("update trial: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*models.Trial, error) {
	rows, err := txcontext.Or(ctx, s.db).QueryContext(ctx, `
		SELECT id, config, patients, created_at, created_by, archived_at
		FROM trials ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query trials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Trial
	for rows.Next() {
		t, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trials: %w", err)
	}
	return out, nil
}

func scanSQLite(row scanner) (*models.Trial, error) {
	var (
		t                      models.Trial
		trialID, cfg, patients string
		createdAt, createdBy   string
		archivedAt             sql.NullString
	)
	if err := row.Scan(&trialID, &cfg, &patients, &createdAt, &createdBy, &archivedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan trial: %w", err)
	}
	t.ID = id.TrialID(trialID)
	t.CreatedBy = id.Username(createdBy)
	var err error
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for trial %s: %w", trialID, err)
	}
	if archivedAt.Valid {
		at, err := time.Parse(time.RFC3339Nano, archivedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse archived_at for trial %s: %w", trialID, err)
		}
		t.ArchivedAt = &at
	}
	if err := decode(&t, []byte(cfg), []byte(patients)); err != nil {
		return nil, err
	}
	return &t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
