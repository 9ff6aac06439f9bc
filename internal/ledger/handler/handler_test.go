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

	"registrum/internal/commitlog"
	effectmodels "registrum/internal/effects/models"
	identitymodels "registrum/internal/identity/models"
	identityservice "registrum/internal/identity/service"
	identitystore "registrum/internal/identity/store"
	"registrum/internal/jwtauth"
	ledgermodels "registrum/internal/ledger/models"
	ledgerservice "registrum/internal/ledger/service"
	ledgerstore "registrum/internal/ledger/store"
	"registrum/internal/platform/metrics"
	httptransport "registrum/internal/transport/http"
	id "registrum/pkg/domain"
	dErrors "registrum/pkg/domain-errors"
	auditmemory "registrum/pkg/platform/audit/store/memory"
	auditpublisher "registrum/pkg/platform/audit/publisher"
	"registrum/pkg/testutil"
)

const subject = "1000000001"

type HandlerSuite struct {
	suite.Suite
	router  http.Handler
	tokens  *jwtauth.Service
	ledger  *ledgerservice.Service
	events  chan ledgermodels.RecordFinalized
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())
	identity := identityservice.NewService(identitystore.NewMemory())
	s.events = make(chan ledgermodels.RecordFinalized, 16)
	s.ledger = ledgerservice.NewService(
		ledgerstore.NewMemory(), identity, commitlog.NewMemory(),
		auditpublisher.NewPublisher(auditmemory.NewInMemoryStore()),
		m, logger, 2, s.events)
	s.tokens = jwtauth.NewService("test-signing-key", "registrum", "registrum-api")

	s.router = httptransport.NewRouter(New(s.ledger, noEffects{}, logger, m, s.tokens))

	s.Require().NoError(identity.Register(context.Background(), &identitymodels.Person{
		NationalID: id.NationalID(subject),
		Name:       "Alice Andersen",
	}))
}

// noEffects satisfies EffectReader for records without dispatched effects.
type noEffects struct{}

func (noEffects) Status(context.Context, id.RecordID) (*effectmodels.Status, error) {
	return nil, dErrors.New(dErrors.CodeNotFound, "no effects recorded for record")
}

func (s *HandlerSuite) bearer(role id.EntityRole, entityID, name string) string {
	token, err := s.tokens.GenerateEntityToken(
		id.EntityIdentity{Role: role, EntityID: id.EntityID(entityID), Name: name}, time.Hour)
	s.Require().NoError(err)
	return "Bearer " + token
}

func (s *HandlerSuite) createRecord() string {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/records", map[string]any{
		"subject_id":    subject,
		"date_of_death": "2026-03-14",
		"place_of_death": "Central Hospital",
	})
	req.Header.Set("Authorization", s.bearer(id.RoleHospital, "hosp-central", "Central Hospital"))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	return (*resp)["id"].(string)
}

func (s *HandlerSuite) TestCreateRecord() {
	s.Run("hospital report opens a pending record", func() {
		recordID := s.createRecord()
		s.NotEmpty(recordID)
	})

	s.Run("missing token is rejected", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/records", map[string]any{
			"subject_id":    subject,
			"date_of_death": "2026-03-14",
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})

	s.Run("subject token cannot create records", func() {
		token, err := s.tokens.GenerateSubjectToken(id.NationalID(subject), time.Hour)
		s.Require().NoError(err)
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/records", map[string]any{
			"subject_id":    subject,
			"date_of_death": "2026-03-14",
		})
		req.Header.Set("Authorization", "Bearer "+token)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})

	s.Run("malformed national id is rejected", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/records", map[string]any{
			"subject_id":    "not-a-national-id",
			"date_of_death": "2026-03-14",
		})
		req.Header.Set("Authorization", s.bearer(id.RoleHospital, "hosp-central", "Central Hospital"))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})
}

func (s *HandlerSuite) TestAttestationFlow() {
	recordID := s.createRecord()

	s.Run("second sector finalizes the record", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/records/"+recordID+"/attestations", nil)
		req.Header.Set("Authorization", s.bearer(id.RoleMunicipality, "muni-01", "City Hall"))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)

		resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
		s.Equal("finalized", (*resp)["status"])
		s.Len(s.events, 1)
	})

	s.Run("same sector again earns no new credit", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/records/"+recordID+"/attestations", nil)
		req.Header.Set("Authorization", s.bearer(id.RoleMunicipality, "muni-02", "District Office"))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
	})

	s.Run("record view lists every attesting entity", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/records/"+recordID)
		req.Header.Set("Authorization", s.bearer(id.RoleHospital, "hosp-central", "Central Hospital"))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)

		resp := testutil.UnmarshalResponse[recordResponse](s.T(), rr)
		s.Len(resp.Attestations, 3)
		s.NotNil(resp.FinalizedAt)
	})
}

func (s *HandlerSuite) TestReject() {
	recordID := s.createRecord()

	s.Run("hospital cannot reject", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/records/"+recordID+"/reject",
			map[string]string{"reason": "duplicate"})
		req.Header.Set("Authorization", s.bearer(id.RoleHospital, "hosp-central", "Central Hospital"))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
	})

	s.Run("municipality rejects with reason", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/records/"+recordID+"/reject",
			map[string]string{"reason": "duplicate report"})
		req.Header.Set("Authorization", s.bearer(id.RoleMunicipality, "muni-01", "City Hall"))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)

		resp := testutil.UnmarshalResponse[recordResponse](s.T(), rr)
		s.Equal("rejected", resp.Status)
	})
}

func (s *HandlerSuite) TestUnknownRecord() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/records/"+id.NewRecordID().String())
	req.Header.Set("Authorization", s.bearer(id.RoleHospital, "hosp-central", "Central Hospital"))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
	testutil.AssertErrorCode(s.T(), rr, string(dErrors.CodeNotFound))
}
