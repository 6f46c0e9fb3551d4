// Package sqlite stores audit events in the single-node SQLite database used
// by the operator CLI. There is no outbox: the CLI has no relay.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "minimizer/pkg/domain"
	audit "minimizer/pkg/platform/audit"
	txcontext "minimizer/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	var data any
	if len(event.Data) > 0 {
		data = string(event.Data)
	}
	_, err := txcontext.Or(ctx, s.db).ExecContext(ctx, `
		INSERT INTO audit_events (id, trial_id, action, category, actor, request_id, timestamp, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID.String(),
		string(event.TrialID),
		string(event.Action),
		string(event.Category()),
		string(event.Actor),
		event.RequestID,
		event.Timestamp.UTC().Format(time.RFC3339Nano),
		data,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByTrial(ctx context.Context, trialID id.TrialID) ([]audit.Event, error) {
	rows, err := txcontext.Or(ctx, s.db).QueryContext(ctx, `
		SELECT id, action, actor, request_id, timestamp, data
		FROM audit_events
		WHERE trial_id = ?
		ORDER BY seq
	`, string(trialID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []audit.Event
	for rows.Next() {
		var eventID, action, actor, ts string
		var data sql.NullString
		event := audit.Event{TrialID: trialID}
		if err := rows.Scan(&eventID, &action, &actor, &event.RequestID, &ts, &data); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if event.ID, err = uuid.Parse(eventID); err != nil {
			return nil, fmt.Errorf("parse audit event id: %w", err)
		}
		if event.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse audit timestamp: %w", err)
		}
		event.Action = audit.Action(action)
		event.Actor = id.Username(actor)
		if data.Valid {
			event.Data = json.RawMessage(data.String)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
