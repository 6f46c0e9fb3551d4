// Package service runs trial operations. Every mutation loads the trial inside
// the per-trial transaction, applies the change to the registry, saves it and
// records the audit event before the transaction ends.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"minimizer/internal/trial/metrics"
	"minimizer/internal/trial/models"
	id "minimizer/pkg/domain"
	dErrors "minimizer/pkg/domain-errors"
	audit "minimizer/pkg/platform/audit"
	"minimizer/pkg/platform/sentinel"
	"minimizer/pkg/requestcontext"
)

var tracer = otel.Tracer("minimizer.trial")

type Store interface {
	Create(ctx context.Context, trial *models.Trial) error
	Get(ctx context.Context, trialID id.TrialID) (*models.Trial, error)
	Save(ctx context.Context, trial *models.Trial) error
	List(ctx context.Context) ([]*models.Trial, error)
}

// StoreTx runs fn with at most one mutation in flight per trial. Stores called
// with the ctx passed to fn join the transaction.
type StoreTx interface {
	RunInTx(ctx context.Context, trialID id.TrialID, fn func(ctx context.Context) error) error
}

// AuditPublisher persists compliance events fail-closed and reads them back.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
	List(ctx context.Context, trialID id.TrialID) ([]audit.Event, error)
}

// OpsTracker records best-effort read events.
type OpsTracker interface {
	Track(ctx context.Context, event audit.Event) bool
}

// AccessManager grants and checks per-user trial access.
type AccessManager interface {
	GrantTrialAccess(ctx context.Context, username id.Username, trialID id.TrialID) error
	HasTrialAccess(ctx context.Context, username id.Username, trialID id.TrialID) (bool, error)
}

// ArchiveWriter stores archive bundles.
type ArchiveWriter interface {
	Put(ctx context.Context, key string, body []byte) error
}

type Service struct {
	store   Store
	tx      StoreTx
	auditor AuditPublisher
	tracker OpsTracker
	access  AccessManager
	archive ArchiveWriter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracker records balance and audit reads.
func WithTracker(t OpsTracker) Option {
	return func(s *Service) {
		s.tracker = t
	}
}

// WithAccessManager grants creators access to new trials and filters listings
// for non-admin users.
func WithAccessManager(a AccessManager) Option {
	return func(s *Service) {
		s.access = a
	}
}

// WithArchive enables archive bundles on ArchiveTrial.
func WithArchive(w ArchiveWriter) Option {
	return func(s *Service) {
		s.archive = w
	}
}

func New(store Store, tx StoreTx, auditor AuditPublisher, opts ...Option) *Service {
	s := &Service{
		store:   store,
		tx:      tx,
		auditor: auditor,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTrial validates the configuration, stores the empty trial and grants
// the creator access. A missing seed is generated.
func (s *Service) CreateTrial(ctx context.Context, req models.CreateTrialRequest) (_ *models.Trial, err error) {
	ctx, span := tracer.Start(ctx, "trial.CreateTrial", trace.WithAttributes(attribute.String("trial_id", req.TrialID)))
	defer func() { endSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	trialID := id.TrialID(req.TrialID)
	seed := req.Seed
	if seed == "" {
		seed = uuid.NewString()
	}
	cfg, err := models.NewConfig(req.Arms, req.Variables, req.Weight, seed, req.StrictMode)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	actor := requestcontext.Actor(ctx)
	trial, err := models.NewTrial(trialID, cfg, actor, requestcontext.Now(ctx).UTC())
	if err != nil {
		return nil, err
	}

	start := time.Now()
	err = s.tx.RunInTx(ctx, trialID, func(ctx context.Context) error {
		if err := s.store.Create(ctx, trial); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("trial %s already exists", trialID))
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create trial")
		}
		if s.access != nil && actor != "" {
			if err := s.access.GrantTrialAccess(ctx, actor, trialID); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to grant trial access")
			}
		}
		return s.emit(ctx, trialID, audit.ActionTrialCreated, map[string]any{"config": cfg})
	})
	s.observeTx("create", start)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "trial created",
		"event", audit.ActionTrialCreated,
		"trial_id", trialID,
		"arms", len(cfg.Arms),
		"variables", len(cfg.Variables),
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementTrialsCreated()
	}
	return trial, nil
}

// GetTrial reads the latest committed trial without locking.
func (s *Service) GetTrial(ctx context.Context, trialID id.TrialID) (*models.Trial, error) {
	return s.load(ctx, trialID)
}

// ListTrials summarises the trials the caller may see. Archived trials are
// skipped unless includeArchived is set.
func (s *Service) ListTrials(ctx context.Context, includeArchived bool) (_ []models.Summary, err error) {
	ctx, span := tracer.Start(ctx, "trial.ListTrials")
	defer func() { endSpan(span, err) }()

	trials, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list trials")
	}
	actor := requestcontext.Actor(ctx)
	filter := s.access != nil && actor != "" && !requestcontext.IsAdmin(ctx)

	out := make([]models.Summary, 0, len(trials))
	for _, t := range trials {
		if t.IsArchived() && !includeArchived {
			continue
		}
		if filter {
			ok, err := s.access.HasTrialAccess(ctx, actor, t.ID)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check trial access")
			}
			if !ok {
				continue
			}
		}
		out = append(out, t.Summary())
	}
	return out, nil
}

// change is one audit record produced by a mutation.
type change struct {
	action audit.Action
	data   any
}

// mutate runs fn against the trial inside its transaction, then saves the
// trial and emits fn's audit records. Nothing is saved when fn fails.
func (s *Service) mutate(ctx context.Context, op string, trialID id.TrialID, fn func(ctx context.Context, trial *models.Trial) ([]change, error)) error {
	start := time.Now()
	defer s.observeTx(op, start)

	return s.tx.RunInTx(ctx, trialID, func(ctx context.Context) error {
		trial, err := s.load(ctx, trialID)
		if err != nil {
			return err
		}
		if err := trial.CanMutate(); err != nil {
			return err
		}
		changes, err := fn(ctx, trial)
		if err != nil {
			return err
		}
		if err := s.store.Save(ctx, trial); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save trial")
		}
		for _, c := range changes {
			if err := s.emit(ctx, trialID, c.action, c.data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) load(ctx context.Context, trialID id.TrialID) (*models.Trial, error) {
	trial, err := s.store.Get(ctx, trialID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("trial %s not found", trialID))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trial")
	}
	return trial, nil
}

func (s *Service) newEvent(ctx context.Context, trialID id.TrialID, action audit.Action, data any) (audit.Event, error) {
	event, err := audit.NewEvent(trialID, action, requestcontext.Actor(ctx), requestcontext.RequestID(ctx), requestcontext.Now(ctx), data)
	if err != nil {
		return audit.Event{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode audit event")
	}
	return event, nil
}

func (s *Service) emit(ctx context.Context, trialID id.TrialID, action audit.Action, data any) error {
	event, err := s.newEvent(ctx, trialID, action, data)
	if err != nil {
		return err
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

func (s *Service) track(ctx context.Context, trialID id.TrialID, action audit.Action) {
	if s.tracker == nil {
		return
	}
	event, err := s.newEvent(ctx, trialID, action, nil)
	if err != nil {
		return
	}
	s.tracker.Track(ctx, event)
}

func (s *Service) observeTx(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveTx(op, start)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
