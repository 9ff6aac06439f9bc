// Package handler exposes the death record endpoints used by attesting
// institutions.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	effectmodels "registrum/internal/effects/models"
	"registrum/internal/ledger/models"
	"registrum/internal/ledger/service"
	"registrum/internal/platform/metrics"
	"registrum/internal/platform/middleware"
	"registrum/internal/transport/http/shared"
	id "registrum/pkg/domain"
	dErrors "registrum/pkg/domain-errors"
)

// EffectReader reads the effect execution view for finalized records.
type EffectReader interface {
	Status(ctx context.Context, recordID id.RecordID) (*effectmodels.Status, error)
}

type Handler struct {
	ledger       *service.Service
	effects      EffectReader
	logger       *slog.Logger
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

func New(
	ledger *service.Service,
	effects EffectReader,
	logger *slog.Logger,
	m *metrics.Metrics,
	jwtValidator middleware.JWTValidator,
) *Handler {
	return &Handler{
		ledger:       ledger,
		effects:      effects,
		logger:       logger,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the record routes. All of them require an entity token.
func (h *Handler) Register(r chi.Router) {
	recordRouter := chi.NewRouter()
	recordRouter.Use(middleware.RequestID)
	recordRouter.Use(middleware.Recovery(h.logger))
	recordRouter.Use(middleware.Logger(h.logger))
	recordRouter.Use(middleware.Timeout(30 * time.Second))
	recordRouter.Use(middleware.ContentTypeJSON)
	recordRouter.Use(middleware.Latency(h.metrics))
	recordRouter.Use(middleware.RequireEntity(h.jwtValidator, h.logger))

	recordRouter.Post("/", h.handleCreateRecord)
	recordRouter.Get("/{recordID}", h.handleGetRecord)
	recordRouter.Post("/{recordID}/attestations", h.handleAttest)
	recordRouter.Post("/{recordID}/reject", h.handleReject)
	recordRouter.Get("/{recordID}/effects", h.handleEffectStatus)

	r.Mount("/records", recordRouter)
}

type createRecordRequest struct {
	SubjectID     string `json:"subject_id"`
	DateOfDeath   string `json:"date_of_death"`
	TimeOfDeath   string `json:"time_of_death,omitempty"`
	PlaceOfDeath  string `json:"place_of_death,omitempty"`
	CauseOfDeath  string `json:"cause_of_death,omitempty"`
	CertifierName string `json:"certifier_name,omitempty"`
}

type recordResponse struct {
	ID              string                `json:"id"`
	SubjectID       string                `json:"subject_id"`
	Status          string                `json:"status"`
	Attestations    []attestationResponse `json:"attestations"`
	Suspicious      bool                  `json:"suspicious,omitempty"`
	SuspicionReason string                `json:"suspicion_reason,omitempty"`
	RejectedReason  string                `json:"rejected_reason,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	FinalizedAt     *time.Time            `json:"finalized_at,omitempty"`
}

type attestationResponse struct {
	Role       string    `json:"role"`
	EntityID   string    `json:"entity_id"`
	EntityName string    `json:"entity_name"`
	AttestedAt time.Time `json:"attested_at"`
}

func recordToResponse(record *models.DeathRecord) recordResponse {
	resp := recordResponse{
		ID:              record.ID.String(),
		SubjectID:       record.SubjectID.String(),
		Status:          string(record.Status),
		Attestations:    make([]attestationResponse, 0, len(record.Attestations)),
		Suspicious:      record.Suspicious,
		SuspicionReason: record.SuspicionReason,
		RejectedReason:  record.RejectedReason,
		CreatedAt:       record.CreatedAt,
		FinalizedAt:     record.FinalizedAt,
	}
	for _, attestation := range record.Attestations {
		resp.Attestations = append(resp.Attestations, attestationResponse{
			Role:       attestation.Role.String(),
			EntityID:   string(attestation.EntityID),
			EntityName: attestation.EntityName,
			AttestedAt: attestation.AttestedAt,
		})
	}
	return resp
}

func (h *Handler) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entity, ok := middleware.GetEntity(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req createRecordRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	subject, err := id.ParseNationalID(req.SubjectID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	dateOfDeath, err := time.Parse("2006-01-02", req.DateOfDeath)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "date_of_death must be YYYY-MM-DD"))
		return
	}

	recordID, err := h.ledger.CreateRecord(ctx, subject, entity, models.DeathDetails{
		DateOfDeath:   dateOfDeath,
		TimeOfDeath:   req.TimeOfDeath,
		PlaceOfDeath:  req.PlaceOfDeath,
		CauseOfDeath:  req.CauseOfDeath,
		CertifierName: req.CertifierName,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	record, err := h.ledger.Get(ctx, recordID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, recordToResponse(record))
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	record, err := h.ledger.Get(r.Context(), recordID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, recordToResponse(record))
}

func (h *Handler) handleAttest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entity, ok := middleware.GetEntity(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.ledger.Attest(ctx, recordID, entity)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		// The role was already credited; report the unchanged record.
		status = http.StatusOK
	}
	shared.WriteJSON(w, status, recordToResponse(result.Record))
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entity, ok := middleware.GetEntity(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	// Administrative rejection is a municipal power.
	if entity.Role != id.RoleMunicipality {
		shared.WriteError(w, dErrors.New(dErrors.CodeForbidden, "only municipalities may reject records"))
		return
	}

	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req rejectRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if req.Reason == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "reason is required"))
		return
	}

	if err := h.ledger.Reject(ctx, recordID, req.Reason); err != nil {
		shared.WriteError(w, err)
		return
	}
	record, err := h.ledger.Get(ctx, recordID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, recordToResponse(record))
}

type effectStatusResponse struct {
	RecordID          string `json:"record_id"`
	CertificateIssued bool   `json:"certificate_issued"`
	CertificateID     string `json:"certificate_id,omitempty"`
	PensionStopped    bool   `json:"pension_stopped"`
	Escalated         bool   `json:"escalated"`
	EscalationReason  string `json:"escalation_reason,omitempty"`
}

func (h *Handler) handleEffectStatus(w http.ResponseWriter, r *http.Request) {
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	status, err := h.effects.Status(r.Context(), recordID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	resp := effectStatusResponse{
		RecordID:          status.RecordID.String(),
		CertificateIssued: status.CertificateIssued,
		PensionStopped:    status.PensionStopped,
		Escalated:         status.Escalated,
		EscalationReason:  status.EscalationReason,
	}
	if status.CertificateIssued {
		resp.CertificateID = status.CertificateID.String()
	}
	shared.WriteJSON(w, http.StatusOK, resp)
}
