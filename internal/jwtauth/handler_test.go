package jwtauth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"registrum/internal/collaborators"
	identitymodels "registrum/internal/identity/models"
	identityservice "registrum/internal/identity/service"
	identitystore "registrum/internal/identity/store"
	httptransport "registrum/internal/transport/http"
	id "registrum/pkg/domain"
	dErrors "registrum/pkg/domain-errors"
	"registrum/pkg/testutil"
)

const (
	aliceID  = "1000000001"
	aliceDOB = "1950-06-15"
)

type HandlerSuite struct {
	suite.Suite
	router   http.Handler
	tokens   *Service
	identity *identityservice.Service
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.tokens = NewService("test-signing-key", "registrum", "registrum-api")

	credentials := collaborators.NewMockCredentialStore()
	s.Require().NoError(credentials.RegisterEntity(
		id.EntityIdentity{Role: id.RoleHospital, EntityID: "hosp-central", Name: "Central Hospital"},
		"hospital-client", "hospital-secret"))

	s.identity = identityservice.NewService(identitystore.NewMemory())
	dob, err := time.Parse("2006-01-02", aliceDOB)
	s.Require().NoError(err)
	s.Require().NoError(s.identity.Register(context.Background(), &identitymodels.Person{
		NationalID:  id.NationalID(aliceID),
		Name:        "Alice Andersen",
		DateOfBirth: dob,
	}))

	s.router = httptransport.NewRouter(NewHandler(s.tokens, credentials, s.identity, logger))
}

func (s *HandlerSuite) requestToken(path string, body any) *tokenResponse {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, path, body))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	return testutil.UnmarshalResponse[tokenResponse](s.T(), rr)
}

func (s *HandlerSuite) TestEntityToken() {
	s.Run("valid credentials yield a token", func() {
		resp := s.requestToken("/auth/entity-token", map[string]string{
			"role":      "hospital",
			"client_id": "hospital-client",
			"secret":    "hospital-secret",
		})
		s.Equal("Bearer", resp.TokenType)

		claims, err := s.tokens.ValidateToken(resp.AccessToken)
		s.Require().NoError(err)
		s.Equal("hospital", claims.Role)
		s.Equal("hosp-central", claims.EntityID)
	})

	s.Run("wrong secret is refused", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/entity-token",
			map[string]string{"role": "hospital", "client_id": "hospital-client", "secret": "guess"}))
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
		testutil.AssertErrorCode(s.T(), rr, string(dErrors.CodeUnauthorized))
	})

	s.Run("role mismatch is refused identically", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/entity-token",
			map[string]string{"role": "municipality", "client_id": "hospital-client", "secret": "hospital-secret"}))
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})

	s.Run("unknown role is rejected", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/entity-token",
			map[string]string{"role": "bank", "client_id": "hospital-client", "secret": "hospital-secret"}))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})
}

func (s *HandlerSuite) TestSubjectToken() {
	s.Run("matching birth date yields a token", func() {
		resp := s.requestToken("/auth/subject-token", map[string]string{
			"national_id":   aliceID,
			"date_of_birth": aliceDOB,
		})

		claims, err := s.tokens.ValidateToken(resp.AccessToken)
		s.Require().NoError(err)
		s.Equal(aliceID, claims.Subject)
	})

	s.Run("wrong birth date is refused", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/subject-token",
			map[string]string{"national_id": aliceID, "date_of_birth": "1950-06-16"}))
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})

	s.Run("unknown subject is refused identically", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/subject-token",
			map[string]string{"national_id": "9999999999", "date_of_birth": aliceDOB}))
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})

	s.Run("deceased subject is blocked", func() {
		s.Require().NoError(s.identity.MarkDeceased(context.Background(), id.NationalID(aliceID)))
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/subject-token",
			map[string]string{"national_id": aliceID, "date_of_birth": aliceDOB}))
		testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
	})
}

func (s *HandlerSuite) TestExpiredToken() {
	token, err := s.tokens.GenerateSubjectToken(id.NationalID(aliceID), -time.Minute)
	s.Require().NoError(err)
	_, err = s.tokens.ValidateToken(token)
	s.Error(err)
}
