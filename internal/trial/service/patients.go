package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"minimizer/internal/allocation"
	"minimizer/internal/trial/models"
	id "minimizer/pkg/domain"
	dErrors "minimizer/pkg/domain-errors"
	audit "minimizer/pkg/platform/audit"
	"minimizer/pkg/requestcontext"
)

// EnrollResult is the stored patient and how its arm was chosen.
type EnrollResult struct {
	Patient    models.Patient        `json:"patient"`
	Allocation allocation.Allocation `json:"allocation"`
}

type enrolledData struct {
	PatientID       id.PatientID      `json:"patient_id"`
	Characteristics map[string]string `json:"characteristics"`
	Arm             string            `json:"arm"`
	Method          allocation.Method `json:"method"`
	Scores          map[string]int    `json:"scores,omitempty"`
}

type statusData struct {
	PatientID id.PatientID `json:"patient_id"`
	Active    bool         `json:"active"`
}

type reassignedData struct {
	PatientID   id.PatientID `json:"patient_id"`
	PreviousArm string       `json:"previous_arm"`
	Arm         string       `json:"arm"`
}

// Enroll allocates an arm to a new patient and adds it to the trial.
func (s *Service) Enroll(ctx context.Context, trialID id.TrialID, req models.EnrollRequest) (_ *EnrollResult, err error) {
	ctx, span := tracer.Start(ctx, "trial.Enroll", trace.WithAttributes(
		attribute.String("trial_id", trialID.String()),
		attribute.String("patient_id", req.PatientID),
	))
	defer func() { endSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	patientID := id.PatientID(req.PatientID)

	var result EnrollResult
	err = s.mutate(ctx, "enroll", trialID, func(ctx context.Context, trial *models.Trial) ([]change, error) {
		engine := allocation.NewEngine(allocation.WithClock(func() time.Time {
			return requestcontext.Now(ctx).UTC()
		}))
		alloc, err := engine.Allocate(trial.Config, trial.Registry, patientID, req.Characteristics, req.Arm)
		if err != nil {
			return nil, err
		}
		patient, _ := trial.Registry.Get(patientID)
		result = EnrollResult{Patient: patient, Allocation: alloc}
		return []change{{
			action: audit.ActionPatientEnrolled,
			data: enrolledData{
				PatientID:       patientID,
				Characteristics: patient.Characteristics,
				Arm:             alloc.Arm,
				Method:          alloc.Method,
				Scores:          alloc.Scores,
			},
		}}, nil
	})
	if err != nil {
		s.rejected(err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "patient enrolled",
		"event", audit.ActionPatientEnrolled,
		"trial_id", trialID,
		"patient_id", patientID,
		"arm", result.Allocation.Arm,
		"method", result.Allocation.Method,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementAllocation(string(result.Allocation.Method))
	}
	return &result, nil
}

// Deactivate excludes a patient from future scores and balance reports.
func (s *Service) Deactivate(ctx context.Context, trialID id.TrialID, patientID string) error {
	return s.setActive(ctx, trialID, patientID, false)
}

// Reactivate counts a deactivated patient again.
func (s *Service) Reactivate(ctx context.Context, trialID id.TrialID, patientID string) error {
	return s.setActive(ctx, trialID, patientID, true)
}

func (s *Service) setActive(ctx context.Context, trialID id.TrialID, rawPatientID string, active bool) (err error) {
	op := "deactivate"
	if active {
		op = "reactivate"
	}
	ctx, span := tracer.Start(ctx, "trial."+op, trace.WithAttributes(
		attribute.String("trial_id", trialID.String()),
		attribute.String("patient_id", rawPatientID),
	))
	defer func() { endSpan(span, err) }()

	patientID, err := id.ParsePatientID(rawPatientID)
	if err != nil {
		return err
	}
	err = s.mutate(ctx, op, trialID, func(_ context.Context, trial *models.Trial) ([]change, error) {
		c, err := applyStatus(trial, patientID, active)
		if err != nil {
			return nil, err
		}
		return []change{c}, nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "patient status changed",
		"event", op,
		"trial_id", trialID,
		"patient_id", patientID,
		"active", active,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementPatientChange(op)
	}
	return nil
}

// ReassignArm moves a patient to another arm and returns the previous one.
// Strict-mode trials refuse.
func (s *Service) ReassignArm(ctx context.Context, trialID id.TrialID, rawPatientID string, req models.ReassignRequest) (_ string, err error) {
	ctx, span := tracer.Start(ctx, "trial.ReassignArm", trace.WithAttributes(
		attribute.String("trial_id", trialID.String()),
		attribute.String("patient_id", rawPatientID),
	))
	defer func() { endSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return "", err
	}
	patientID, err := id.ParsePatientID(rawPatientID)
	if err != nil {
		return "", err
	}
	var previous string
	err = s.mutate(ctx, "reassign", trialID, func(_ context.Context, trial *models.Trial) ([]change, error) {
		c, err := applyReassign(trial, patientID, req.Arm)
		if err != nil {
			return nil, err
		}
		previous = c.data.(reassignedData).PreviousArm
		return []change{c}, nil
	})
	if err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "patient arm reassigned",
		"event", audit.ActionArmReassigned,
		"trial_id", trialID,
		"patient_id", patientID,
		"previous_arm", previous,
		"arm", req.Arm,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementPatientChange("reassign")
	}
	return previous, nil
}

// ChangeSetResult counts the audit records a change set produced.
type ChangeSetResult struct {
	Applied int `json:"applied"`
}

// ApplyChanges applies a batch of status and arm edits in one transaction.
// The first failing change aborts the batch and nothing is saved.
func (s *Service) ApplyChanges(ctx context.Context, trialID id.TrialID, req models.ChangeSetRequest) (_ *ChangeSetResult, err error) {
	ctx, span := tracer.Start(ctx, "trial.ApplyChanges", trace.WithAttributes(
		attribute.String("trial_id", trialID.String()),
		attribute.Int("changes", len(req.Changes)),
	))
	defer func() { endSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	var applied int
	err = s.mutate(ctx, "change_set", trialID, func(_ context.Context, trial *models.Trial) ([]change, error) {
		var changes []change
		for _, c := range req.Changes {
			patientID := id.PatientID(c.PatientID)
			if c.Arm != "" {
				rc, err := applyReassign(trial, patientID, c.Arm)
				if err != nil {
					return nil, err
				}
				changes = append(changes, rc)
			}
			if c.Active != nil {
				sc, err := applyStatus(trial, patientID, *c.Active)
				if err != nil {
					return nil, err
				}
				changes = append(changes, sc)
			}
		}
		applied = len(changes)
		return changes, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "change set applied",
		"event", "change_set_applied",
		"trial_id", trialID,
		"applied", applied,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementPatientChange("change_set")
	}
	return &ChangeSetResult{Applied: applied}, nil
}

func applyStatus(trial *models.Trial, patientID id.PatientID, active bool) (change, error) {
	var err error
	action := audit.ActionPatientDeactivated
	if active {
		action = audit.ActionPatientReactivated
		err = trial.Registry.Reactivate(patientID)
	} else {
		err = trial.Registry.Deactivate(patientID)
	}
	if err != nil {
		return change{}, err
	}
	return change{action: action, data: statusData{PatientID: patientID, Active: active}}, nil
}

func applyReassign(trial *models.Trial, patientID id.PatientID, arm string) (change, error) {
	previous, err := trial.Registry.ReassignArm(trial.Config, patientID, arm)
	if err != nil {
		return change{}, err
	}
	return change{
		action: audit.ActionArmReassigned,
		data:   reassignedData{PatientID: patientID, PreviousArm: previous, Arm: arm},
	}, nil
}

func (s *Service) rejected(err error) {
	if s.metrics == nil {
		return
	}
	switch code := dErrors.CodeOf(err); code {
	case dErrors.CodeDuplicateEntity, dErrors.CodeSchemaMismatch, dErrors.CodeInvalidValue,
		dErrors.CodeInvalidArm, dErrors.CodeNotPermitted:
		s.metrics.IncrementRejection(string(code))
	}
}
