package models

import (
	"fmt"
	"strings"

	id "minimizer/pkg/domain"
	dErrors "minimizer/pkg/domain-errors"
)

// CreateTrialRequest is the HTTP body and the CLI YAML document for a new
// trial. An empty Seed asks the service to generate one.
type CreateTrialRequest struct {
	TrialID    string     `json:"trial_id" yaml:"trial_id" validate:"required,max=64"`
	Arms       []string   `json:"arms" yaml:"arms" validate:"min=2,dive,required"`
	Variables  []Variable `json:"variables" yaml:"variables" validate:"min=1,dive"`
	Weight     float64    `json:"weight" yaml:"weight" validate:"gte=0,lte=1"`
	Seed       string     `json:"seed,omitempty" yaml:"seed" validate:"max=128"`
	StrictMode bool       `json:"strict_mode" yaml:"strict_mode"`
}

// Validate checks what struct tags cannot: the trial id format.
func (r *CreateTrialRequest) Validate() error {
	r.TrialID = strings.TrimSpace(r.TrialID)
	r.Seed = strings.TrimSpace(r.Seed)
	if _, err := id.ParseTrialID(r.TrialID); err != nil {
		return err
	}
	return nil
}

// EnrollRequest adds one patient. Arm requests a manual assignment.
type EnrollRequest struct {
	PatientID       string            `json:"patient_id" validate:"required,max=64"`
	Characteristics map[string]string `json:"characteristics" validate:"required"`
	Arm             string            `json:"arm,omitempty"`
}

func (r *EnrollRequest) Validate() error {
	r.PatientID = strings.TrimSpace(r.PatientID)
	r.Arm = strings.TrimSpace(r.Arm)
	_, err := id.ParsePatientID(r.PatientID)
	return err
}

// ReassignRequest moves a patient to another arm.
type ReassignRequest struct {
	Arm string `json:"arm" validate:"required"`
}

func (r *ReassignRequest) Validate() error {
	r.Arm = strings.TrimSpace(r.Arm)
	return nil
}

// Change edits one patient: Active toggles status, Arm reassigns. At least
// one must be set.
type Change struct {
	PatientID string `json:"patient_id" validate:"required"`
	Active    *bool  `json:"active,omitempty"`
	Arm       string `json:"arm,omitempty"`
}

// ChangeSetRequest is a batch of changes applied all-or-nothing.
type ChangeSetRequest struct {
	Changes []Change `json:"changes" validate:"min=1,max=1000,dive"`
}

func (r *ChangeSetRequest) Validate() error {
	seen := make(map[string]bool, len(r.Changes))
	for i := range r.Changes {
		c := &r.Changes[i]
		c.PatientID = strings.TrimSpace(c.PatientID)
		c.Arm = strings.TrimSpace(c.Arm)
		if _, err := id.ParsePatientID(c.PatientID); err != nil {
			return err
		}
		if c.Active == nil && c.Arm == "" {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("change %d for patient %s sets neither active nor arm", i, c.PatientID))
		}
		if seen[c.PatientID] {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("patient %s appears more than once in the change set", c.PatientID))
		}
		seen[c.PatientID] = true
	}
	return nil
}
