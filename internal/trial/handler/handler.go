package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"minimizer/internal/balance"
	"minimizer/internal/trial/models"
	"minimizer/internal/trial/service"
	id "minimizer/pkg/domain"
	dErrors "minimizer/pkg/domain-errors"
	audit "minimizer/pkg/platform/audit"
	"minimizer/pkg/platform/httputil"
	"minimizer/pkg/platform/middleware/auth"
	"minimizer/pkg/platform/middleware/request"
)

const (
	patientIDParam = "patientID"
	xlsxMediaType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Service defines the trial operations the HTTP API exposes.
type Service interface {
	CreateTrial(ctx context.Context, req models.CreateTrialRequest) (*models.Trial, error)
	GetTrial(ctx context.Context, trialID id.TrialID) (*models.Trial, error)
	ListTrials(ctx context.Context, includeArchived bool) ([]models.Summary, error)
	Enroll(ctx context.Context, trialID id.TrialID, req models.EnrollRequest) (*service.EnrollResult, error)
	Deactivate(ctx context.Context, trialID id.TrialID, patientID string) error
	Reactivate(ctx context.Context, trialID id.TrialID, patientID string) error
	ReassignArm(ctx context.Context, trialID id.TrialID, patientID string, req models.ReassignRequest) (string, error)
	ApplyChanges(ctx context.Context, trialID id.TrialID, req models.ChangeSetRequest) (*service.ChangeSetResult, error)
	Balance(ctx context.Context, trialID id.TrialID) (balance.Report, error)
	AuditTrail(ctx context.Context, trialID id.TrialID) ([]audit.Event, error)
	ArchiveTrial(ctx context.Context, trialID id.TrialID) (*service.ArchiveResult, error)
}

// Handler serves the /trials endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
	access  auth.TrialAccessChecker
}

type Option func(*Handler)

// WithTrialAccess guards every /trials/{trialID} route with the checker.
func WithTrialAccess(checker auth.TrialAccessChecker) Option {
	return func(h *Handler) {
		h.access = checker
	}
}

func New(svc Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: svc, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the trial routes. Authentication is applied by the caller.
func (h *Handler) Register(r chi.Router) {
	r.Route("/trials", func(r chi.Router) {
		r.Get("/", h.handleListTrials)
		r.Post("/", h.handleCreateTrial)

		r.Route("/{"+auth.TrialIDParam+"}", func(r chi.Router) {
			if h.access != nil {
				r.Use(auth.RequireTrialAccess(h.access, h.logger))
			}
			r.Get("/", h.handleGetTrial)
			r.Post("/archive", h.handleArchiveTrial)
			r.Get("/patients", h.handleListPatients)
			r.Post("/patients", h.handleEnroll)
			r.Post("/patients/{"+patientIDParam+"}/deactivate", h.handleDeactivate)
			r.Post("/patients/{"+patientIDParam+"}/reactivate", h.handleReactivate)
			r.Put("/patients/{"+patientIDParam+"}/arm", h.handleReassignArm)
			r.Post("/changes", h.handleApplyChanges)
			r.Get("/balance", h.handleBalance)
			r.Get("/audit", h.handleAuditTrail)
		})
	})
}

func (h *Handler) handleCreateTrial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateTrialRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	trial, err := h.service.CreateTrial(ctx, *req)
	if err != nil {
		h.fail(ctx, w, "failed to create trial", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, trial)
}

func (h *Handler) handleListTrials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	includeArchived, _ := strconv.ParseBool(r.URL.Query().Get("archived"))

	trials, err := h.service.ListTrials(ctx, includeArchived)
	if err != nil {
		h.fail(ctx, w, "failed to list trials", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"trials": trials})
}

func (h *Handler) handleGetTrial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	trial, err := h.service.GetTrial(ctx, trialID(r))
	if err != nil {
		h.fail(ctx, w, "failed to get trial", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, trial)
}

func (h *Handler) handleArchiveTrial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.service.ArchiveTrial(ctx, trialID(r))
	if err != nil {
		h.fail(ctx, w, "failed to archive trial", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleListPatients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	trial, err := h.service.GetTrial(ctx, trialID(r))
	if err != nil {
		h.fail(ctx, w, "failed to list patients", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"patients": trial.Registry.Patients()})
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.EnrollRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.Enroll(ctx, trialID(r), *req)
	if err != nil {
		h.fail(ctx, w, "failed to enroll patient", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Deactivate(ctx, trialID(r), chi.URLParam(r, patientIDParam)); err != nil {
		h.fail(ctx, w, "failed to deactivate patient", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Reactivate(ctx, trialID(r), chi.URLParam(r, patientIDParam)); err != nil {
		h.fail(ctx, w, "failed to reactivate patient", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reassignResponse struct {
	PatientID   string `json:"patient_id"`
	PreviousArm string `json:"previous_arm"`
	Arm         string `json:"arm"`
}

func (h *Handler) handleReassignArm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.ReassignRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	patientID := chi.URLParam(r, patientIDParam)
	previous, err := h.service.ReassignArm(ctx, trialID(r), patientID, *req)
	if err != nil {
		h.fail(ctx, w, "failed to reassign arm", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reassignResponse{
		PatientID:   patientID,
		PreviousArm: previous,
		Arm:         req.Arm,
	})
}

func (h *Handler) handleApplyChanges(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.ChangeSetRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.ApplyChanges(ctx, trialID(r), *req)
	if err != nil {
		h.fail(ctx, w, "failed to apply changes", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// handleBalance renders JSON, or a workbook with ?format=xlsx.
func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tid := trialID(r)

	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "xlsx" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "format must be json or xlsx"))
		return
	}

	report, err := h.service.Balance(ctx, tid)
	if err != nil {
		h.fail(ctx, w, "failed to compute balance", err)
		return
	}
	if format != "xlsx" {
		httputil.WriteJSON(w, http.StatusOK, report)
		return
	}

	w.Header().Set("Content-Type", xlsxMediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-balance.xlsx"`, tid))
	if err := balance.WriteXLSX(w, tid.String(), report); err != nil {
		h.logger.ErrorContext(ctx, "failed to write balance workbook",
			"request_id", request.GetRequestID(ctx),
			"trial_id", tid,
			"error", err,
		)
	}
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	events, err := h.service.AuditTrail(ctx, trialID(r))
	if err != nil {
		h.fail(ctx, w, "failed to read audit trail", err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

// fail logs at warn for caller faults and error otherwise, then writes err.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{"request_id", request.GetRequestID(ctx), "error", err}
	if dErrors.ToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

func trialID(r *http.Request) id.TrialID {
	return id.TrialID(chi.URLParam(r, auth.TrialIDParam))
}
