package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "minimizer/pkg/domain"
	audit "minimizer/pkg/platform/audit"
	txcontext "minimizer/pkg/platform/tx"
)

// Store implements audit.Store with the transactional outbox pattern. Each
// Append writes the queryable audit_events row and an outbox row in the same
// transaction as the trial mutation that caused it; the relay later publishes
// the outbox to Kafka.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// OutboxEntry is one unpublished event.
type OutboxEntry struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// Append writes an audit event and its outbox entry. Outside a caller
// transaction it opens its own so both rows commit together.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	if _, ok := txcontext.From(ctx); ok {
		return s.append(ctx, event, payload)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := s.append(txcontext.WithTx(ctx, tx), event, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) append(ctx context.Context, event audit.Event, payload []byte) error {
	q := txcontext.Or(ctx, s.db)

	data := event.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_events (id, trial_id, action, category, actor, request_id, timestamp, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		event.ID,
		string(event.TrialID),
		string(event.Action),
		string(event.Category()),
		string(event.Actor),
		event.RequestID,
		event.Timestamp,
		[]byte(data),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	aggregateID := string(event.TrialID)
	if aggregateID == "" {
		aggregateID = event.ID.String()
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		uuid.New(),
		"trial",
		aggregateID,
		string(event.Action),
		payload,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListByTrial returns a trial's events oldest first.
func (s *Store) ListByTrial(ctx context.Context, trialID id.TrialID) ([]audit.Event, error) {
	rows, err := txcontext.Or(ctx, s.db).QueryContext(ctx, `
		SELECT id, trial_id, action, actor, request_id, timestamp, data
		FROM audit_events
		WHERE trial_id = $1
		ORDER BY seq
	`, string(trialID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event   audit.Event
			trial   string
			action  string
			actor   string
			rawData []byte
		)
		if err := rows.Scan(&event.ID, &trial, &action, &actor, &event.RequestID, &event.Timestamp, &rawData); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.TrialID = id.TrialID(trial)
		event.Action = audit.Action(action)
		event.Actor = id.Username(actor)
		if string(rawData) != "null" {
			event.Data = rawData
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

// ProcessOutbox locks up to limit unpublished entries, hands them to publish
// and marks them published when it succeeds. Concurrent relays skip rows
// another relay holds. It returns the number of entries published.
func (s *Store) ProcessOutbox(ctx context.Context, limit int, publish func(context.Context, []OutboxEntry) error) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("query outbox: %w", err)
	}
	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate outbox: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	if err := publish(ctx, entries); err != nil {
		return 0, err
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID.String()
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE outbox SET published_at = $1 WHERE id::text = ANY($2)`,
		time.Now(), pq.Array(ids),
	); err != nil {
		return 0, fmt.Errorf("mark outbox published: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox tx: %w", err)
	}
	return len(entries), nil
}

// PendingOutbox counts entries not yet published.
func (s *Store) PendingOutbox(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count outbox: %w", err)
	}
	return n, nil
}
