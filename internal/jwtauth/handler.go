package jwtauth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"registrum/internal/collaborators"
	"registrum/internal/identity/models"
	"registrum/internal/platform/middleware"
	"registrum/internal/platform/ratelimit"
	"registrum/internal/transport/http/shared"
	id "registrum/pkg/domain"
	dErrors "registrum/pkg/domain-errors"
)

const (
	entityTokenTTL  = time.Hour
	subjectTokenTTL = 15 * time.Minute
)

// PersonDirectory verifies subjects requesting a token.
type PersonDirectory interface {
	Get(ctx context.Context, nationalID id.NationalID) (*models.Person, error)
}

// Handler issues bearer tokens for attesting institutions and for subjects
// performing liveness verification.
type Handler struct {
	tokens      *Service
	credentials collaborators.CredentialStore
	persons     PersonDirectory
	logger      *slog.Logger
	limiter     func(http.Handler) http.Handler
}

type HandlerOption func(*Handler)

// WithRateLimit throttles token issuance per client IP.
func WithRateLimit(store ratelimit.Store, limit int, window time.Duration) HandlerOption {
	return func(h *Handler) {
		h.limiter = ratelimit.Middleware(store, limit, window)
	}
}

func NewHandler(tokens *Service, credentials collaborators.CredentialStore, persons PersonDirectory, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{tokens: tokens, credentials: credentials, persons: persons, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	authRouter := chi.NewRouter()
	authRouter.Use(middleware.RequestID)
	authRouter.Use(middleware.Recovery(h.logger))
	authRouter.Use(middleware.Logger(h.logger))
	authRouter.Use(middleware.Timeout(10 * time.Second))
	authRouter.Use(middleware.ContentTypeJSON)
	if h.limiter != nil {
		authRouter.Use(h.limiter)
	}

	authRouter.Post("/entity-token", h.handleEntityToken)
	authRouter.Post("/subject-token", h.handleSubjectToken)

	r.Mount("/auth", authRouter)
}

type entityTokenRequest struct {
	Role     string `json:"role"`
	ClientID string `json:"client_id"`
	Secret   string `json:"secret"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (h *Handler) handleEntityToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req entityTokenRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	role, err := id.ParseEntityRole(req.Role)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	identity, err := h.credentials.Authenticate(ctx, role, collaborators.Credentials{
		ClientID: req.ClientID,
		Secret:   req.Secret,
	})
	if err != nil {
		// Collapse all authentication failures into one answer.
		h.logger.WarnContext(ctx, "entity authentication failed",
			"client_id", req.ClientID, "role", req.Role)
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials"))
		return
	}

	token, err := h.tokens.GenerateEntityToken(identity, entityTokenTTL)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "failed to issue token", err))
		return
	}
	shared.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(entityTokenTTL.Seconds()),
	})
}

type subjectTokenRequest struct {
	NationalID  string `json:"national_id"`
	DateOfBirth string `json:"date_of_birth"`
}

func (h *Handler) handleSubjectToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req subjectTokenRequest
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

	person, err := h.persons.Get(ctx, nationalID)
	if err != nil || !person.DateOfBirth.Equal(dateOfBirth) {
		h.logger.WarnContext(ctx, "subject authentication failed", "subject", req.NationalID)
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials"))
		return
	}
	if person.Status != models.StatusAlive {
		shared.WriteError(w, dErrors.New(dErrors.CodeForbidden, "subject is not registered as alive"))
		return
	}

	token, err := h.tokens.GenerateSubjectToken(nationalID, subjectTokenTTL)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "failed to issue token", err))
		return
	}
	shared.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(subjectTokenTTL.Seconds()),
	})
}
