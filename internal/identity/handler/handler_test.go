package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	identityservice "registrum/internal/identity/service"
	identitystore "registrum/internal/identity/store"
	"registrum/internal/jwtauth"
	"registrum/internal/platform/metrics"
	schedulermodels "registrum/internal/scheduler/models"
	httptransport "registrum/internal/transport/http"
	id "registrum/pkg/domain"
	dErrors "registrum/pkg/domain-errors"
	"registrum/pkg/testutil"
)

// schedulerRecorder captures enrollment and clearance calls.
type schedulerRecorder struct {
	enrolled []id.NationalID
	cleared  []id.NationalID
	clearErr error
}

func (r *schedulerRecorder) Enroll(_ context.Context, subject id.NationalID) (*schedulermodels.Schedule, error) {
	r.enrolled = append(r.enrolled, subject)
	return &schedulermodels.Schedule{SubjectID: subject}, nil
}

func (r *schedulerRecorder) ClearEscalation(_ context.Context, subject id.NationalID) error {
	if r.clearErr != nil {
		return r.clearErr
	}
	r.cleared = append(r.cleared, subject)
	return nil
}

type HandlerSuite struct {
	suite.Suite
	router    http.Handler
	tokens    *jwtauth.Service
	scheduler *schedulerRecorder
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())
	identity := identityservice.NewService(identitystore.NewMemory())
	s.scheduler = &schedulerRecorder{}
	s.tokens = jwtauth.NewService("test-signing-key", "registrum", "registrum-api")
	s.router = httptransport.NewRouter(New(identity, s.scheduler, logger, m, s.tokens))
}

func (s *HandlerSuite) bearer(role id.EntityRole) string {
	token, err := s.tokens.GenerateEntityToken(
		id.EntityIdentity{Role: role, EntityID: "entity-01", Name: "Test Entity"}, time.Hour)
	s.Require().NoError(err)
	return "Bearer " + token
}

func (s *HandlerSuite) registerRequest(pensioner bool) *http.Request {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/persons", map[string]any{
		"national_id":           "1000000001",
		"name":                  "Alice Andersen",
		"date_of_birth":         "1950-06-15",
		"pension_active":        pensioner,
		"pension_monthly_cents": 180000,
	})
	return req
}

func (s *HandlerSuite) TestRegisterPerson() {
	s.Run("municipality registers a pensioner and enrolls them", func() {
		req := s.registerRequest(true)
		req.Header.Set("Authorization", s.bearer(id.RoleMunicipality))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)

		resp := testutil.UnmarshalResponse[personResponse](s.T(), rr)
		s.Equal("alive", resp.Status)
		s.True(resp.PensionActive)
		s.Equal([]id.NationalID{"1000000001"}, s.scheduler.enrolled)
	})

	s.Run("person is readable by any entity", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/persons/1000000001")
		req.Header.Set("Authorization", s.bearer(id.RoleHospital))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
	})

	s.Run("duplicate registration conflicts", func() {
		req := s.registerRequest(true)
		req.Header.Set("Authorization", s.bearer(id.RoleMunicipality))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusConflict)
	})
}

func (s *HandlerSuite) TestRegisterRequiresMunicipality() {
	req := s.registerRequest(false)
	req.Header.Set("Authorization", s.bearer(id.RoleHospital))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
	testutil.AssertErrorCode(s.T(), rr, string(dErrors.CodeForbidden))
	s.Empty(s.scheduler.enrolled)
}

func (s *HandlerSuite) TestNonPensionerIsNotEnrolled() {
	req := s.registerRequest(false)
	req.Header.Set("Authorization", s.bearer(id.RoleMunicipality))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	s.Empty(s.scheduler.enrolled)
}

func (s *HandlerSuite) TestClearEscalation() {
	s.Run("municipality clears", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/persons/1000000001/clear-escalation", nil)
		req.Header.Set("Authorization", s.bearer(id.RoleMunicipality))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
		s.Equal([]id.NationalID{"1000000001"}, s.scheduler.cleared)
	})

	s.Run("religious entity cannot clear", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/persons/1000000001/clear-escalation", nil)
		req.Header.Set("Authorization", s.bearer(id.RoleReligious))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
	})

	s.Run("not escalated maps to conflict", func() {
		s.scheduler.clearErr = dErrors.New(dErrors.CodeConflict, "subject is not escalated")
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/persons/1000000001/clear-escalation", nil)
		req.Header.Set("Authorization", s.bearer(id.RoleMunicipality))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusConflict)
	})
}

func (s *HandlerSuite) TestUnknownPerson() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/persons/9999999999")
	req.Header.Set("Authorization", s.bearer(id.RoleMunicipality))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
}
