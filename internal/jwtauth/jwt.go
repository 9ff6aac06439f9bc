package jwtauth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"registrum/internal/platform/middleware"
	id "registrum/pkg/domain"
	dErrors "registrum/pkg/domain-errors"
)

// Claims represents the JWT claims for registrum access tokens. Entity tokens
// carry role/entity fields; pensioner tokens carry the subject national ID.
type Claims struct {
	Role       string `json:"role,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
	EntityName string `json:"entity_name,omitempty"`
	SubjectID  string `json:"subject_id,omitempty"`
	jwt.RegisteredClaims
}

// Service handles JWT creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewService(signingKey, issuer, audience string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// GenerateEntityToken issues a token for an authenticated attesting institution.
func (s *Service) GenerateEntityToken(identity id.EntityIdentity, expiresIn time.Duration) (string, error) {
	return s.sign(Claims{
		Role:             string(identity.Role),
		EntityID:         string(identity.EntityID),
		EntityName:       identity.Name,
		RegisteredClaims: s.registered(expiresIn),
	})
}

// GenerateSubjectToken issues a token for a pensioner's verification session.
func (s *Service) GenerateSubjectToken(subject id.NationalID, expiresIn time.Duration) (string, error) {
	return s.sign(Claims{
		SubjectID:        subject.String(),
		RegisteredClaims: s.registered(expiresIn),
	})
}

func (s *Service) registered(expiresIn time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		Issuer:    s.issuer,
		Audience:  []string{s.audience},
		ID:        uuid.NewString(),
	}
}

func (s *Service) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.signingKey)
}

// ValidateToken parses and validates a token, returning the middleware-facing
// claims. Satisfies middleware.JWTValidator.
func (s *Service) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return &middleware.JWTClaims{
		Role:       claims.Role,
		EntityID:   claims.EntityID,
		EntityName: claims.EntityName,
		Subject:    claims.SubjectID,
	}, nil
}
