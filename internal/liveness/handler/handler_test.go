package handler

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"registrum/internal/collaborators"
	"registrum/internal/commitlog"
	identitymodels "registrum/internal/identity/models"
	identityservice "registrum/internal/identity/service"
	identitystore "registrum/internal/identity/store"
	"registrum/internal/jwtauth"
	livenessservice "registrum/internal/liveness/service"
	livenessstore "registrum/internal/liveness/store"
	"registrum/internal/platform/metrics"
	schedulerservice "registrum/internal/scheduler/service"
	schedulerstore "registrum/internal/scheduler/store"
	httptransport "registrum/internal/transport/http"
	id "registrum/pkg/domain"
	dErrors "registrum/pkg/domain-errors"
	auditmemory "registrum/pkg/platform/audit/store/memory"
	auditpublisher "registrum/pkg/platform/audit/publisher"
	"registrum/pkg/testutil"
)

const (
	enrolled   = id.NationalID("1000000001")
	unenrolled = id.NationalID("1000000002")
	chromeUA   = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// flagDiscard satisfies the scheduler's suspicion port; escalation is not
// exercised at this layer.
type flagDiscard struct{}

func (flagDiscard) FlagSuspicious(context.Context, id.NationalID, string) (id.RecordID, error) {
	return id.NewRecordID(), nil
}

type HandlerSuite struct {
	suite.Suite
	router    http.Handler
	tokens    *jwtauth.Service
	scheduler *schedulerservice.Service
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())
	auditor := auditpublisher.NewPublisher(auditmemory.NewInMemoryStore())
	commits := commitlog.NewMemory()

	identity := identityservice.NewService(identitystore.NewMemory())
	liveness := livenessservice.NewService(
		livenessstore.NewMemory(), collaborators.MockProofService{}, commits,
		auditor, m, logger, time.Minute, 10*time.Second)
	s.scheduler = schedulerservice.NewService(
		schedulerstore.NewMemory(), liveness, identity, flagDiscard{}, commits,
		auditor, m, logger, 30*24*time.Hour, 3, 14*24*time.Hour)
	liveness.SetOutcomeSink(s.scheduler)

	s.tokens = jwtauth.NewService("test-signing-key", "registrum", "registrum-api")
	s.router = httptransport.NewRouter(New(liveness, s.scheduler, logger, m, s.tokens))

	ctx := context.Background()
	s.Require().NoError(identity.Register(ctx, &identitymodels.Person{NationalID: enrolled, Name: "Alice Andersen"}))
	s.Require().NoError(identity.Register(ctx, &identitymodels.Person{NationalID: unenrolled, Name: "Bob Berg"}))
	_, err := s.scheduler.Enroll(ctx, enrolled)
	s.Require().NoError(err)
}

func (s *HandlerSuite) bearer(subject id.NationalID) string {
	token, err := s.tokens.GenerateSubjectToken(subject, time.Hour)
	s.Require().NoError(err)
	return "Bearer " + token
}

func (s *HandlerSuite) do(subject id.NationalID, method, path string, body any) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil || method == http.MethodPost {
		req = testutil.NewJSONRequest(s.T(), method, path, body)
	} else {
		req = testutil.NewRequest(s.T(), method, path)
	}
	req.Header.Set("Authorization", s.bearer(subject))
	req.Header.Set("User-Agent", chromeUA)
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) openSession(subject id.NationalID) sessionResponse {
	rr := s.do(subject, http.MethodPost, "/verification/sessions", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	return *testutil.UnmarshalResponse[sessionResponse](s.T(), rr)
}

func (s *HandlerSuite) TestSchedule() {
	s.Run("enrolled subject sees cadence", func() {
		rr := s.do(enrolled, http.MethodGet, "/verification/schedule", nil)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)

		resp := testutil.UnmarshalResponse[scheduleResponse](s.T(), rr)
		s.False(resp.Due)
		s.False(resp.Escalated)
		s.Zero(resp.ConsecutiveFailures)
	})

	s.Run("unenrolled subject gets not found", func() {
		rr := s.do(unenrolled, http.MethodGet, "/verification/schedule", nil)
		testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
	})

	s.Run("missing token is rejected", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/verification/schedule"))
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})
}

func (s *HandlerSuite) TestCeremony() {
	session := s.openSession(enrolled)
	s.Equal("initiated", session.State)
	s.Contains(session.Device, "Chrome")

	s.Run("capture phase", func() {
		rr := s.do(enrolled, http.MethodPost, "/verification/sessions/"+session.ID+"/capture", nil)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[sessionResponse](s.T(), rr)
		s.Equal("capturing", resp.State)
	})

	s.Run("proof succeeds", func() {
		artifact := base64.StdEncoding.EncodeToString([]byte("good capture"))
		rr := s.do(enrolled, http.MethodPost, "/verification/sessions/"+session.ID+"/proof",
			map[string]string{"artifact": artifact})
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[sessionResponse](s.T(), rr)
		s.Equal("succeeded", resp.State)
		s.NotNil(resp.CompletedAt)
	})

	s.Run("schedule cadence reset", func() {
		schedule, err := s.scheduler.Get(context.Background(), enrolled)
		s.Require().NoError(err)
		s.False(schedule.LastVerifiedAt.IsZero())
	})

	s.Run("history shows completed session", func() {
		rr := s.do(enrolled, http.MethodGet, "/verification/history", nil)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[[]sessionResponse](s.T(), rr)
		s.Require().Len(*resp, 1)
		s.Equal(session.ID, (*resp)[0].ID)
	})
}

func (s *HandlerSuite) TestSessionOwnership() {
	session := s.openSession(enrolled)

	// Another subject must not learn the session exists.
	rr := s.do(unenrolled, http.MethodGet, "/verification/sessions/"+session.ID, nil)
	testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
	testutil.AssertErrorCode(s.T(), rr, string(dErrors.CodeNotFound))
}

func (s *HandlerSuite) TestCancel() {
	session := s.openSession(enrolled)

	rr := s.do(enrolled, http.MethodPost, "/verification/sessions/"+session.ID+"/cancel", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[sessionResponse](s.T(), rr)
	s.Equal("failed", resp.State)

	schedule, err := s.scheduler.Get(context.Background(), enrolled)
	s.Require().NoError(err)
	s.Equal(1, schedule.ConsecutiveFailures)
}

func (s *HandlerSuite) TestProofWithoutCapturePhase() {
	session := s.openSession(enrolled)

	artifact := base64.StdEncoding.EncodeToString([]byte("too eager"))
	rr := s.do(enrolled, http.MethodPost, "/verification/sessions/"+session.ID+"/proof",
		map[string]string{"artifact": artifact})
	testutil.AssertStatus(s.T(), rr, http.StatusConflict)
	testutil.AssertErrorCode(s.T(), rr, string(dErrors.CodeInvalidTransition))
}

func (s *HandlerSuite) TestMalformedArtifact() {
	session := s.openSession(enrolled)
	s.do(enrolled, http.MethodPost, "/verification/sessions/"+session.ID+"/capture", nil)

	rr := s.do(enrolled, http.MethodPost, "/verification/sessions/"+session.ID+"/proof",
		map[string]string{"artifact": "%%% not base64 %%%"})
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}

func (s *HandlerSuite) TestUnknownSession() {
	rr := s.do(enrolled, http.MethodGet, "/verification/sessions/"+id.NewSessionID().String(), nil)
	testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
}
