package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	id "registrum/pkg/domain"
)

// JWTClaims represents the claims we expect from the JWT validator.
type JWTClaims struct {
	Role       string
	EntityID   string
	EntityName string
	// Subject is set on pensioner-issued tokens instead of the entity fields.
	Subject string
}

// JWTValidator defines the interface for validating bearer tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// Context keys for authenticated identities.
type contextKeyEntity struct{}
type contextKeySubject struct{}

var (
	ContextKeyEntity  = contextKeyEntity{}
	ContextKeySubject = contextKeySubject{}
)

// GetEntity retrieves the authenticated attesting entity from the context.
func GetEntity(ctx context.Context) (id.EntityIdentity, bool) {
	identity, ok := ctx.Value(ContextKeyEntity).(id.EntityIdentity)
	return identity, ok
}

// GetSubject retrieves the authenticated pensioner subject from the context.
func GetSubject(ctx context.Context) (id.NationalID, bool) {
	subject, ok := ctx.Value(ContextKeySubject).(id.NationalID)
	return subject, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func writeUnauthorized(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "message": reason})
}

// RequireEntity authenticates an attesting institution. The validated role and
// entity ID are placed in the request context; handlers trust them from there.
func RequireEntity(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeUnauthorized(w, "missing bearer token")
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "entity token rejected",
					"request_id", GetRequestID(r.Context()),
					"error", err.Error(),
				)
				writeUnauthorized(w, "invalid token")
				return
			}
			role, err := id.ParseEntityRole(claims.Role)
			if err != nil {
				writeUnauthorized(w, "token carries no recognized entity role")
				return
			}
			identity := id.EntityIdentity{
				Role:     role,
				EntityID: id.EntityID(claims.EntityID),
				Name:     claims.EntityName,
			}
			ctx := context.WithValue(r.Context(), ContextKeyEntity, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSubject authenticates a pensioner for liveness verification endpoints.
func RequireSubject(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeUnauthorized(w, "missing bearer token")
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "subject token rejected",
					"request_id", GetRequestID(r.Context()),
					"error", err.Error(),
				)
				writeUnauthorized(w, "invalid token")
				return
			}
			subject, err := id.ParseNationalID(claims.Subject)
			if err != nil {
				writeUnauthorized(w, "token carries no subject")
				return
			}
			ctx := context.WithValue(r.Context(), ContextKeySubject, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
