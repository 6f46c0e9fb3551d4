package models

import (
	"fmt"
	"time"

	id "minimizer/pkg/domain"
	dErrors "minimizer/pkg/domain-errors"
)

// Trial is the aggregate root: an immutable configuration plus the registry
// of enrolled patients.
//
// Invariants:
//   - Config never changes after construction
//   - every Registry record satisfies Config
//   - once ArchivedAt is set, the registry is frozen
type Trial struct {
	ID         id.TrialID  `json:"id"`
	Config     Config      `json:"config"`
	Registry   *Registry   `json:"patients"`
	CreatedAt  time.Time   `json:"created_at"`
	CreatedBy  id.Username `json:"created_by"`
	ArchivedAt *time.Time  `json:"archived_at,omitempty"`
}

// NewTrial builds an empty trial. cfg must already be validated.
func NewTrial(trialID id.TrialID, cfg Config, creator id.Username, now time.Time) (*Trial, error) {
	if trialID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "trial id cannot be empty")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Trial{
		ID:        trialID,
		Config:    cfg,
		Registry:  &Registry{},
		CreatedAt: now,
		CreatedBy: creator,
	}, nil
}

func (t *Trial) IsArchived() bool {
	return t.ArchivedAt != nil
}

// CanMutate rejects changes to archived trials.
func (t *Trial) CanMutate() error {
	if t.IsArchived() {
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("trial %s is archived", t.ID))
	}
	return nil
}

// ApplyArchive freezes the trial. Call CanMutate first.
func (t *Trial) ApplyArchive(now time.Time) {
	t.ArchivedAt = &now
}

// Summary is the listing view of a trial.
type Summary struct {
	ID             id.TrialID  `json:"id"`
	Arms           []string    `json:"arms"`
	Variables      []string    `json:"variables"`
	StrictMode     bool        `json:"strict_mode"`
	TotalPatients  int         `json:"total_patients"`
	ActivePatients int         `json:"active_patients"`
	CreatedAt      time.Time   `json:"created_at"`
	CreatedBy      id.Username `json:"created_by"`
	Archived       bool        `json:"archived"`
}

func (t *Trial) Summary() Summary {
	return Summary{
		ID:             t.ID,
		Arms:           t.Config.Arms,
		Variables:      t.Config.VariableNames(),
		StrictMode:     t.Config.StrictMode,
		TotalPatients:  t.Registry.CountTotal(),
		ActivePatients: t.Registry.CountActive(),
		CreatedAt:      t.CreatedAt,
		CreatedBy:      t.CreatedBy,
		Archived:       t.IsArchived(),
	}
}

// Clone deep-copies the trial so stores never share mutable state with callers.
func (t *Trial) Clone() *Trial {
	c := *t
	if t.Registry == nil {
		c.Registry = &Registry{}
	} else {
		c.Registry = t.Registry.Clone()
	}
	if t.ArchivedAt != nil {
		at := *t.ArchivedAt
		c.ArchivedAt = &at
	}
	return &c
}
