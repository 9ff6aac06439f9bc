// Package handler exposes the person registry endpoints. Registration and
// escalation clearance are municipal operations.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"registrum/internal/identity/models"
	"registrum/internal/identity/service"
	"registrum/internal/platform/metrics"
	"registrum/internal/platform/middleware"
	schedulermodels "registrum/internal/scheduler/models"
	"registrum/internal/transport/http/shared"
	id "registrum/pkg/domain"
	dErrors "registrum/pkg/domain-errors"
)

// Scheduler is the verification cadence surface the registry drives.
type Scheduler interface {
	Enroll(ctx context.Context, subject id.NationalID) (*schedulermodels.Schedule, error)
	ClearEscalation(ctx context.Context, subject id.NationalID) error
}

type Handler struct {
	identity     *service.Service
	scheduler    Scheduler
	logger       *slog.Logger
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

func New(
	identity *service.Service,
	scheduler Scheduler,
	logger *slog.Logger,
	m *metrics.Metrics,
	jwtValidator middleware.JWTValidator,
) *Handler {
	return &Handler{
		identity:     identity,
		scheduler:    scheduler,
		logger:       logger,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

func (h *Handler) Register(r chi.Router) {
	personRouter := chi.NewRouter()
	personRouter.Use(middleware.RequestID)
	personRouter.Use(middleware.Recovery(h.logger))
	personRouter.Use(middleware.Logger(h.logger))
	personRouter.Use(middleware.Timeout(30 * time.Second))
	personRouter.Use(middleware.ContentTypeJSON)
	personRouter.Use(middleware.Latency(h.metrics))
	personRouter.Use(middleware.RequireEntity(h.jwtValidator, h.logger))

	personRouter.Post("/", h.handleRegisterPerson)
	personRouter.Get("/{nationalID}", h.handleGetPerson)
	personRouter.Post("/{nationalID}/clear-escalation", h.handleClearEscalation)

	r.Mount("/persons", personRouter)
}

type registerPersonRequest struct {
	NationalID         string `json:"national_id"`
	Name               string `json:"name"`
	DateOfBirth        string `json:"date_of_birth"`
	PensionActive      bool   `json:"pension_active"`
	PensionAmountCents int64  `json:"pension_monthly_cents,omitempty"`
}

type personResponse struct {
	NationalID         string `json:"national_id"`
	Name               string `json:"name"`
	Status             string `json:"status"`
	PensionActive      bool   `json:"pension_active"`
	PensionAmountCents int64  `json:"pension_monthly_cents,omitempty"`
	InPersonOnly       bool   `json:"in_person_only"`
}

func personToResponse(person *models.Person) personResponse {
	return personResponse{
		NationalID:         person.NationalID.String(),
		Name:               person.Name,
		Status:             string(person.Status),
		PensionActive:      person.Pension.Active,
		PensionAmountCents: person.Pension.MonthlyAmountCents,
		InPersonOnly:       person.InPersonOnly,
	}
}

// requireMunicipality gates registry mutations to municipal entities.
func requireMunicipality(w http.ResponseWriter, r *http.Request) bool {
	entity, ok := middleware.GetEntity(r.Context())
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return false
	}
	if entity.Role != id.RoleMunicipality {
		shared.WriteError(w, dErrors.New(dErrors.CodeForbidden, "registry mutations require a municipality"))
		return false
	}
	return true
}

func (h *Handler) handleRegisterPerson(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireMunicipality(w, r) {
		return
	}

	var req registerPersonRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	nationalID, err := id.ParseNationalID(req.NationalID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	dateOfBirth, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "date_of_birth must be YYYY-MM-DD"))
		return
	}

	person := &models.Person{
		NationalID:  nationalID,
		Name:        req.Name,
		DateOfBirth: dateOfBirth,
		Pension: models.Pension{
			Active:             req.PensionActive,
			MonthlyAmountCents: req.PensionAmountCents,
		},
	}
	if err := h.identity.Register(ctx, person); err != nil {
		shared.WriteError(w, err)
		return
	}

	// Pensioners go straight onto the verification cadence.
	if person.Pension.Active {
		if _, err := h.scheduler.Enroll(ctx, nationalID); err != nil {
			h.logger.ErrorContext(ctx, "failed to enroll registered pensioner",
				"subject", nationalID.String(), "error", err.Error())
		}
	}
	shared.WriteJSON(w, http.StatusCreated, personToResponse(person))
}

func (h *Handler) handleGetPerson(w http.ResponseWriter, r *http.Request) {
	nationalID, err := id.ParseNationalID(chi.URLParam(r, "nationalID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	person, err := h.identity.Get(r.Context(), nationalID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, personToResponse(person))
}

func (h *Handler) handleClearEscalation(w http.ResponseWriter, r *http.Request) {
	if !requireMunicipality(w, r) {
		return
	}
	nationalID, err := id.ParseNationalID(chi.URLParam(r, "nationalID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.scheduler.ClearEscalation(r.Context(), nationalID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
