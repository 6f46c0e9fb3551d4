package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	id "minimizer/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers events that change a trial or its access
	// list. They are written inside the mutating transaction and must never
	// be lost.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers authentication outcomes.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers read-side activity; delivery is best-effort.
	CategoryOperations EventCategory = "operations"
)

type Action string

const (
	ActionTrialCreated       Action = "trial_created"
	ActionTrialArchived      Action = "trial_archived"
	ActionPatientEnrolled    Action = "patient_enrolled"
	ActionPatientDeactivated Action = "patient_deactivated"
	ActionPatientReactivated Action = "patient_reactivated"
	ActionArmReassigned      Action = "arm_reassigned"

	ActionUserCreated   Action = "user_created"
	ActionAccessGranted Action = "trial_access_granted"
	ActionLogin         Action = "login"
	ActionLoginFailed   Action = "login_failed"
	ActionLogout        Action = "logout"

	ActionBalanceViewed Action = "balance_viewed"
	ActionAuditViewed   Action = "audit_viewed"
)

var actionCategories = map[Action]EventCategory{
	ActionTrialCreated:       CategoryCompliance,
	ActionTrialArchived:      CategoryCompliance,
	ActionPatientEnrolled:    CategoryCompliance,
	ActionPatientDeactivated: CategoryCompliance,
	ActionPatientReactivated: CategoryCompliance,
	ActionArmReassigned:      CategoryCompliance,
	ActionUserCreated:        CategoryCompliance,
	ActionAccessGranted:      CategoryCompliance,

	ActionLogin:       CategorySecurity,
	ActionLoginFailed: CategorySecurity,
	ActionLogout:      CategorySecurity,

	ActionBalanceViewed: CategoryOperations,
	ActionAuditViewed:   CategoryOperations,
}

// Category returns the EventCategory for this action.
// Unknown actions default to CategoryOperations.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is one immutable audit record. Data holds the action's inputs and the
// resulting state delta, enough to replay the registry history.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	TrialID   id.TrialID      `json:"trial_id,omitempty"`
	Action    Action          `json:"action"`
	Actor     id.Username     `json:"actor,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Category derives the category from the action.
func (e Event) Category() EventCategory {
	return e.Action.Category()
}

// NewEvent builds an event with a fresh id and JSON-encoded data.
func NewEvent(trialID id.TrialID, action Action, actor id.Username, requestID string, at time.Time, data any) (Event, error) {
	e := Event{
		ID:        uuid.New(),
		TrialID:   trialID,
		Action:    action,
		Actor:     actor,
		RequestID: requestID,
		Timestamp: at.UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, err
		}
		e.Data = raw
	}
	return e, nil
}

// Store persists audit events. ListByTrial returns events oldest first.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByTrial(ctx context.Context, trialID id.TrialID) ([]Event, error)
}
