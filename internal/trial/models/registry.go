package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	id "minimizer/pkg/domain"
	dErrors "minimizer/pkg/domain-errors"
)

// Patient is one enrolled patient. Records are never removed; Active toggles
// whether the patient counts toward balance.
type Patient struct {
	ID              id.PatientID      `json:"id"`
	Characteristics map[string]string `json:"characteristics"`
	Arm             string            `json:"arm"`
	Active          bool              `json:"active"`
	EnrolledAt      time.Time         `json:"enrolled_at"`
}

// Registry is the ordered set of patients in a trial. Iteration order is
// enrollment order. The zero value is an empty registry.
type Registry struct {
	patients []Patient
	index    map[id.PatientID]int
}

// NewRegistry builds a registry from records in enrollment order.
func NewRegistry(patients ...Patient) (*Registry, error) {
	r := &Registry{}
	for _, p := range patients {
		if err := r.Add(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add appends a patient. It fails with DuplicateEntity when the id is taken.
func (r *Registry) Add(p Patient) error {
	if r.Has(p.ID) {
		return dErrors.New(dErrors.CodeDuplicateEntity,
			fmt.Sprintf("patient %s is already enrolled", p.ID))
	}
	if r.index == nil {
		r.index = make(map[id.PatientID]int)
	}
	p.Characteristics = maps.Clone(p.Characteristics)
	r.index[p.ID] = len(r.patients)
	r.patients = append(r.patients, p)
	return nil
}

func (r *Registry) Has(patientID id.PatientID) bool {
	_, ok := r.index[patientID]
	return ok
}

// Get returns a copy of the patient record.
func (r *Registry) Get(patientID id.PatientID) (Patient, bool) {
	i, ok := r.index[patientID]
	if !ok {
		return Patient{}, false
	}
	p := r.patients[i]
	p.Characteristics = maps.Clone(p.Characteristics)
	return p, true
}

// Patients returns all records in enrollment order.
func (r *Registry) Patients() []Patient {
	out := make([]Patient, len(r.patients))
	copy(out, r.patients)
	return out
}

// ActivePatients returns active records in enrollment order.
func (r *Registry) ActivePatients() []Patient {
	out := make([]Patient, 0, len(r.patients))
	for _, p := range r.patients {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}

// CountTotal counts every enrolled patient, active or not.
func (r *Registry) CountTotal() int { return len(r.patients) }

// CountActive counts patients that currently contribute to balance.
func (r *Registry) CountActive() int {
	n := 0
	for _, p := range r.patients {
		if p.Active {
			n++
		}
	}
	return n
}

// Deactivate excludes the patient from future scores and reports.
func (r *Registry) Deactivate(patientID id.PatientID) error {
	return r.setActive(patientID, false)
}

// Reactivate includes the patient in scores and reports again.
func (r *Registry) Reactivate(patientID id.PatientID) error {
	return r.setActive(patientID, true)
}

func (r *Registry) setActive(patientID id.PatientID, active bool) error {
	i, ok := r.index[patientID]
	if !ok {
		return notFound(patientID)
	}
	r.patients[i].Active = active
	return nil
}

// ReassignArm moves a patient to another arm and returns the previous arm.
// Checks run in order: strict mode, unknown patient, unknown arm.
func (r *Registry) ReassignArm(cfg Config, patientID id.PatientID, arm string) (string, error) {
	if cfg.StrictMode {
		return "", dErrors.New(dErrors.CodeNotPermitted, "cannot reassign arms in strict minimisation mode")
	}
	i, ok := r.index[patientID]
	if !ok {
		return "", notFound(patientID)
	}
	if err := cfg.CheckArm(arm); err != nil {
		return "", err
	}
	previous := r.patients[i].Arm
	r.patients[i].Arm = arm
	return previous, nil
}

// Validate checks every record against cfg.
func (r *Registry) Validate(cfg Config) error {
	for _, p := range r.patients {
		err := cfg.CheckCharacteristics(p.Characteristics)
		if err == nil {
			err = cfg.CheckArm(p.Arm)
		}
		if err != nil {
			return dErrors.New(dErrors.CodeOf(err), fmt.Sprintf("patient %s: %s", p.ID, err.Error()))
		}
	}
	return nil
}

// Clone returns a deep copy, so a failed transaction can discard its changes.
func (r *Registry) Clone() *Registry {
	c := &Registry{
		patients: make([]Patient, len(r.patients)),
		index:    make(map[id.PatientID]int, len(r.patients)),
	}
	for i, p := range r.patients {
		p.Characteristics = maps.Clone(p.Characteristics)
		c.patients[i] = p
		c.index[p.ID] = i
	}
	return c
}

// MarshalJSON encodes the registry as an array in enrollment order.
func (r *Registry) MarshalJSON() ([]byte, error) {
	if r.patients == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.patients)
}

func (r *Registry) UnmarshalJSON(data []byte) error {
	var patients []Patient
	if err := json.Unmarshal(data, &patients); err != nil {
		return err
	}
	loaded, err := NewRegistry(patients...)
	if err != nil {
		return err
	}
	*r = *loaded
	return nil
}

func notFound(patientID id.PatientID) error {
	return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("patient %s not found in trial", patientID))
}
