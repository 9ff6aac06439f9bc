// Package handler exposes the subject-facing verification endpoints: opening
// a ceremony, driving it through capture and proof, and reviewing history.
package handler

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"registrum/internal/liveness/models"
	"registrum/internal/liveness/service"
	"registrum/internal/platform/metrics"
	"registrum/internal/platform/middleware"
	schedulermodels "registrum/internal/scheduler/models"
	schedulerservice "registrum/internal/scheduler/service"
	"registrum/internal/transport/http/shared"
	id "registrum/pkg/domain"
	dErrors "registrum/pkg/domain-errors"
)

type Handler struct {
	liveness     *service.Service
	scheduler    *schedulerservice.Service
	logger       *slog.Logger
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

func New(
	liveness *service.Service,
	scheduler *schedulerservice.Service,
	logger *slog.Logger,
	m *metrics.Metrics,
	jwtValidator middleware.JWTValidator,
) *Handler {
	return &Handler{
		liveness:     liveness,
		scheduler:    scheduler,
		logger:       logger,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the verification routes. All of them require a subject
// token.
func (h *Handler) Register(r chi.Router) {
	verifyRouter := chi.NewRouter()
	verifyRouter.Use(middleware.RequestID)
	verifyRouter.Use(middleware.Recovery(h.logger))
	verifyRouter.Use(middleware.Logger(h.logger))
	verifyRouter.Use(middleware.Timeout(60 * time.Second))
	verifyRouter.Use(middleware.ContentTypeJSON)
	verifyRouter.Use(middleware.Latency(h.metrics))
	verifyRouter.Use(middleware.RequireSubject(h.jwtValidator, h.logger))

	verifyRouter.Get("/schedule", h.handleGetSchedule)
	verifyRouter.Get("/history", h.handleHistory)
	verifyRouter.Post("/sessions", h.handleOpenSession)
	verifyRouter.Get("/sessions/{sessionID}", h.handleGetSession)
	verifyRouter.Post("/sessions/{sessionID}/capture", h.handleBeginCapture)
	verifyRouter.Post("/sessions/{sessionID}/proof", h.handleSubmitCapture)
	verifyRouter.Post("/sessions/{sessionID}/cancel", h.handleCancel)

	r.Mount("/verification", verifyRouter)
}

type sessionResponse struct {
	ID                string     `json:"id"`
	State             string     `json:"state"`
	Device            string     `json:"device"`
	DeviceFingerprint string     `json:"device_fingerprint,omitempty"`
	AttemptCount      int        `json:"attempt_count"`
	Confidence        float64    `json:"confidence,omitempty"`
	FailureReason     string     `json:"failure_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

func sessionToResponse(session *models.Session) sessionResponse {
	return sessionResponse{
		ID:                session.ID.String(),
		State:             string(session.State),
		Device:            session.Device,
		DeviceFingerprint: session.DeviceFingerprint,
		AttemptCount:      session.AttemptCount,
		Confidence:        session.Confidence,
		FailureReason:     session.FailureReason,
		CreatedAt:         session.CreatedAt,
		ExpiresAt:         session.ExpiresAt,
		CompletedAt:       session.CompletedAt,
	}
}

type scheduleResponse struct {
	NextDueAt           time.Time `json:"next_due_at"`
	LastVerifiedAt      time.Time `json:"last_verified_at"`
	Due                 bool      `json:"due"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Escalated           bool      `json:"escalated"`
}

func scheduleToResponse(schedule *schedulermodels.Schedule) scheduleResponse {
	return scheduleResponse{
		NextDueAt:           schedule.NextDueAt,
		LastVerifiedAt:      schedule.LastVerifiedAt,
		Due:                 schedule.Due(time.Now()),
		ConsecutiveFailures: schedule.ConsecutiveFailures,
		Escalated:           schedule.Escalated,
	}
}

func subjectFrom(w http.ResponseWriter, r *http.Request) (id.NationalID, bool) {
	subject, ok := middleware.GetSubject(r.Context())
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return "", false
	}
	return subject, true
}

func (h *Handler) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFrom(w, r)
	if !ok {
		return
	}
	schedule, err := h.scheduler.Get(r.Context(), subject)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, scheduleToResponse(schedule))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFrom(w, r)
	if !ok {
		return
	}
	sessions, err := h.liveness.History(r.Context(), subject)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, sessionToResponse(session))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFrom(w, r)
	if !ok {
		return
	}
	session, err := h.scheduler.OpenChallenge(r.Context(), subject, r.UserAgent())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, sessionToResponse(session))
}

// sessionFor parses the session ID and refuses access to other subjects'
// sessions.
func (h *Handler) sessionFor(w http.ResponseWriter, r *http.Request) (id.SessionID, bool) {
	subject, ok := subjectFrom(w, r)
	if !ok {
		return id.SessionID{}, false
	}
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		shared.WriteError(w, err)
		return id.SessionID{}, false
	}
	session, err := h.liveness.Get(r.Context(), sessionID)
	if err != nil {
		shared.WriteError(w, err)
		return id.SessionID{}, false
	}
	if session.SubjectID != subject {
		// Do not reveal that the session exists.
		shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown session"))
		return id.SessionID{}, false
	}
	return sessionID, true
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionFor(w, r)
	if !ok {
		return
	}
	session, err := h.liveness.Get(r.Context(), sessionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, sessionToResponse(session))
}

func (h *Handler) handleBeginCapture(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionFor(w, r)
	if !ok {
		return
	}
	session, err := h.liveness.BeginCapture(r.Context(), sessionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, sessionToResponse(session))
}

type submitCaptureRequest struct {
	// Artifact is the base64-encoded biometric capture.
	Artifact string `json:"artifact"`
}

func (h *Handler) handleSubmitCapture(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionFor(w, r)
	if !ok {
		return
	}
	var req submitCaptureRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	artifact, err := base64.StdEncoding.DecodeString(req.Artifact)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "artifact must be base64"))
		return
	}

	session, err := h.liveness.SubmitCapture(r.Context(), sessionID, artifact)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, sessionToResponse(session))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionFor(w, r)
	if !ok {
		return
	}
	session, err := h.liveness.Cancel(r.Context(), sessionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, sessionToResponse(session))
}
