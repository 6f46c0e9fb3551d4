package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"minimizer/internal/trial/models"
	id "minimizer/pkg/domain"
	"minimizer/pkg/platform/sentinel"
	txcontext "minimizer/pkg/platform/tx"
)

const pgUniqueViolation = "23505"

// PostgresStore keeps configuration and registry as JSONB columns of one row
// per trial. Run mutations through SQLTx so reads see the locked row.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, trial *models.Trial) error {
	cfg, patients, err := encode(trial)
	if err != nil {
		return err
	}
	_, err = txcontext.Or(ctx, s.db).ExecContext(ctx, `
		INSERT INTO trials (id, config, patients, created_at, created_by, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, string(trial.ID), cfg, patients, trial.CreatedAt, string(trial.CreatedBy), trial.ArchivedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert trial: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, trialID id.TrialID) (*models.Trial, error) {
	row := txcontext.Or(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, config, patients, created_at, created_by, archived_at
		FROM trials WHERE id = $1
	`, string(trialID))
	t, err := scanPostgres(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return t, err
}

// Save writes the registry and archive marker only.
func (s *PostgresStore) Save(ctx context.Context, trial *models.Trial) error {
	patients, err := json.Marshal(trial.Registry)
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	res, err := txcontext.Or(ctx, s.db).ExecContext(ctx, `
		UPDATE trials SET patients = $2, archived_at = $3 WHERE id = $1
	`, string(trial.ID), patients, trial.ArchivedAt)
	if err != nil {
		return fmt.Errorf("update trial: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Trial, error) {
	rows, err := txcontext.Or(ctx, s.db).QueryContext(ctx, `
		SELECT id, config, patients, created_at, created_by, archived_at
		FROM trials ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query trials: %w", err)
	}
	defer rows.Close()

	var out []*models.Trial
	for rows.Next() {
		t, err := scanPostgres(rows)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanPostgres(row scanner) (*models.Trial, error) {
	var (
		t          models.Trial
		trialID    string
		createdBy  string
		cfg        []byte
		patients   []byte
		archivedAt sql.NullTime
	)
	if err := row.Scan(&trialID, &cfg, &patients, &t.CreatedAt, &createdBy, &archivedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan trial: %w", err)
	}
	t.ID = id.TrialID(trialID)
	t.CreatedBy = id.Username(createdBy)
	if archivedAt.Valid {
		at := archivedAt.Time
		t.ArchivedAt = &at
	}
	if err := decode(&t, cfg, patients); err != nil {
		return nil, err
	}
	return &t, nil
}

func encode(trial *models.Trial) (cfg, patients []byte, err error) {
	if cfg, err = json.Marshal(trial.Config); err != nil {
		return nil, nil, fmt.Errorf("marshal config: %w", err)
	}
	if patients, err = json.Marshal(trial.Registry); err != nil {
		return nil, nil, fmt.Errorf("marshal registry: %w", err)
	}
	return cfg, patients, nil
}

func decode(t *models.Trial, cfg, patients []byte) error {
	if err := json.Unmarshal(cfg, &t.Config); err != nil {
		return fmt.Errorf("decode config for trial %s: %w", t.ID, err)
	}
	t.Registry = &models.Registry{}
	if err := json.Unmarshal(patients, t.Registry); err != nil {
		return fmt.Errorf("decode registry for trial %s: %w", t.ID, err)
	}
	return nil
}
