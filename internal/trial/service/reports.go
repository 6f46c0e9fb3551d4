package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"minimizer/internal/balance"
	"minimizer/internal/trial/models"
	id "minimizer/pkg/domain"
	dErrors "minimizer/pkg/domain-errors"
	audit "minimizer/pkg/platform/audit"
	"minimizer/pkg/requestcontext"
)

// Balance tabulates active patients per variable and arm.
func (s *Service) Balance(ctx context.Context, trialID id.TrialID) (_ balance.Report, err error) {
	ctx, span := tracer.Start(ctx, "trial.Balance", trace.WithAttributes(attribute.String("trial_id", trialID.String())))
	defer func() { endSpan(span, err) }()

	trial, err := s.load(ctx, trialID)
	if err != nil {
		return balance.Report{}, err
	}
	s.track(ctx, trialID, audit.ActionBalanceViewed)
	return balance.Compute(trial.Config, trial.Registry), nil
}

// AuditTrail returns the trial's audit events oldest first.
func (s *Service) AuditTrail(ctx context.Context, trialID id.TrialID) (_ []audit.Event, err error) {
	ctx, span := tracer.Start(ctx, "trial.AuditTrail", trace.WithAttributes(attribute.String("trial_id", trialID.String())))
	defer func() { endSpan(span, err) }()

	if _, err := s.load(ctx, trialID); err != nil {
		return nil, err
	}
	events, err := s.auditor.List(ctx, trialID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit trail")
	}
	s.track(ctx, trialID, audit.ActionAuditViewed)
	return events, nil
}

// ArchiveBundle is the document written to the archive when a trial is
// frozen: the final trial state plus its complete audit trail.
type ArchiveBundle struct {
	Trial      *models.Trial `json:"trial"`
	Audit      []audit.Event `json:"audit"`
	ArchivedAt time.Time     `json:"archived_at"`
}

// ArchiveResult names the frozen trial and, when an archive is configured,
// the key its bundle was written under.
type ArchiveResult struct {
	Trial     *models.Trial `json:"trial"`
	BundleKey string        `json:"bundle_key,omitempty"`
}

// ArchiveTrial freezes a trial. The bundle is written before the trial is
// saved, so a failed write leaves the trial open.
func (s *Service) ArchiveTrial(ctx context.Context, trialID id.TrialID) (_ *ArchiveResult, err error) {
	ctx, span := tracer.Start(ctx, "trial.ArchiveTrial", trace.WithAttributes(attribute.String("trial_id", trialID.String())))
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx).UTC()
	result := &ArchiveResult{}

	start := time.Now()
	err = s.tx.RunInTx(ctx, trialID, func(ctx context.Context) error {
		trial, err := s.load(ctx, trialID)
		if err != nil {
			return err
		}
		if err := trial.CanMutate(); err != nil {
			return err
		}
		trial.ApplyArchive(now)

		event, err := s.newEvent(ctx, trialID, audit.ActionTrialArchived, map[string]any{
			"total_patients":  trial.Registry.CountTotal(),
			"active_patients": trial.Registry.CountActive(),
		})
		if err != nil {
			return err
		}

		if s.archive != nil {
			history, err := s.auditor.List(ctx, trialID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit trail")
			}
			body, err := json.MarshalIndent(ArchiveBundle{
				Trial:      trial,
				Audit:      append(history, event),
				ArchivedAt: now,
			}, "", "  ")
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode archive bundle")
			}
			key := fmt.Sprintf("trials/%s/%s.json", trialID, now.Format("20060102T150405Z"))
			if err := s.archive.Put(ctx, key, body); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write archive bundle")
			}
			result.BundleKey = key
		}

		if err := s.store.Save(ctx, trial); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save trial")
		}
		if err := s.auditor.Emit(ctx, event); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
		}
		result.Trial = trial
		return nil
	})
	s.observeTx("archive", start)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "trial archived",
		"event", audit.ActionTrialArchived,
		"trial_id", trialID,
		"bundle_key", result.BundleKey,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementTrialsArchived()
	}
	return result, nil
}
