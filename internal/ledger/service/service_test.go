package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"registrum/internal/commitlog"
	identitymodels "registrum/internal/identity/models"
	identityservice "registrum/internal/identity/service"
	identitystore "registrum/internal/identity/store"
	"registrum/internal/ledger/models"
	ledgerstore "registrum/internal/ledger/store"
	"registrum/internal/platform/metrics"
	id "registrum/pkg/domain"
	dErrors "registrum/pkg/domain-errors"
	auditmemory "registrum/pkg/platform/audit/store/memory"
	auditpublisher "registrum/pkg/platform/audit/publisher"
)

const (
	subjectAlice = id.NationalID("1000000001")
	subjectBob   = id.NationalID("1000000002")
)

var (
	hospitalA = id.EntityIdentity{Role: id.RoleHospital, EntityID: "hosp-central", Name: "Central Hospital"}
	hospitalB = id.EntityIdentity{Role: id.RoleHospital, EntityID: "hosp-north", Name: "North Clinic"}
	cityHall  = id.EntityIdentity{Role: id.RoleMunicipality, EntityID: "muni-01", Name: "City Hall"}
	parish    = id.EntityIdentity{Role: id.RoleReligious, EntityID: "rel-stmary", Name: "St Mary Parish"}
)

type ServiceSuite struct {
	suite.Suite

	store    *ledgerstore.InMemoryStore
	identity *identityservice.Service
	persons  *identitystore.InMemoryStore
	commits  *commitlog.InMemoryLog
	events   chan models.RecordFinalized
	service  *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = ledgerstore.NewMemory()
	s.persons = identitystore.NewMemory()
	s.identity = identityservice.NewService(s.persons)
	s.commits = commitlog.NewMemory()
	s.events = make(chan models.RecordFinalized, 16)

	auditor := auditpublisher.NewPublisher(auditmemory.NewInMemoryStore())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())

	s.service = NewService(s.store, s.identity, s.commits, auditor, m, logger, 2, s.events)

	ctx := context.Background()
	s.Require().NoError(s.identity.Register(ctx, &identitymodels.Person{NationalID: subjectAlice, Name: "Alice Andersen"}))
	s.Require().NoError(s.identity.Register(ctx, &identitymodels.Person{NationalID: subjectBob, Name: "Bob Berg"}))
}

func (s *ServiceSuite) details() models.DeathDetails {
	return models.DeathDetails{
		DateOfDeath:   time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		PlaceOfDeath:  "Central Hospital, ward 4",
		CauseOfDeath:  "natural causes",
		CertifierName: "Dr. Holm",
	}
}

func (s *ServiceSuite) TestCreateRecord() {
	ctx := context.Background()

	s.Run("creates pending record with reporter attestation", func() {
		recordID, err := s.service.CreateRecord(ctx, subjectAlice, hospitalA, s.details())
		s.Require().NoError(err)

		record, err := s.service.Get(ctx, recordID)
		s.Require().NoError(err)
		s.Equal(models.StatusPendingQuorum, record.Status)
		s.Len(record.Attestations, 1)
		s.Equal(id.RoleHospital, record.Attestations[0].Role)
		s.Len(s.commits.EntriesOfType(commitlog.EventRecordCreated), 1)
	})

	s.Run("second record for same subject is refused", func() {
		_, err := s.service.CreateRecord(ctx, subjectAlice, cityHall, s.details())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown subject is refused", func() {
		_, err := s.service.CreateRecord(ctx, id.NationalID("9999999999"), hospitalA, s.details())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("commit log outage blocks creation", func() {
		s.commits.FailNext = true
		_, err := s.service.CreateRecord(ctx, subjectBob, hospitalA, s.details())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

		records, err := s.store.FindBySubject(ctx, subjectBob)
		s.Require().NoError(err)
		s.Empty(records)
	})
}

// Quorum happy path: two distinct roles finalize the record and fire the
// downstream event exactly once.
func (s *ServiceSuite) TestQuorumFinalizes() {
	ctx := context.Background()
	recordID, err := s.service.CreateRecord(ctx, subjectAlice, hospitalA, s.details())
	s.Require().NoError(err)

	result, err := s.service.Attest(ctx, recordID, cityHall)
	s.Require().NoError(err)
	s.True(result.Finalized)
	s.Equal(models.StatusFinalized, result.Record.Status)
	s.NotNil(result.Record.FinalizedAt)

	s.Require().Len(s.events, 1)
	event := <-s.events
	s.Equal(recordID, event.RecordID)
	s.Equal(subjectAlice, event.SubjectID)

	s.Len(s.commits.EntriesOfType(commitlog.EventRecordFinalized), 1)

	person, err := s.identity.Get(ctx, subjectAlice)
	s.Require().NoError(err)
	s.Equal(identitymodels.StatusDeceased, person.Status)
}

// A second entity of an already-credited role joins the audit list but grants
// no new quorum credit; the record stays short of quorum. A repeat by the
// same entity changes nothing.
func (s *ServiceSuite) TestDuplicateRoleAttestation() {
	ctx := context.Background()
	recordID, err := s.service.CreateRecord(ctx, subjectAlice, hospitalA, s.details())
	s.Require().NoError(err)

	result, err := s.service.Attest(ctx, recordID, hospitalB)
	s.Require().NoError(err)
	s.True(result.Duplicate)
	s.False(result.Finalized)
	s.Equal(models.StatusPendingQuorum, result.Record.Status)
	s.Len(result.Record.Attestations, 2)
	s.Empty(s.events)

	repeat, err := s.service.Attest(ctx, recordID, hospitalA)
	s.Require().NoError(err)
	s.True(repeat.Duplicate)
	s.Len(repeat.Record.Attestations, 2)
	s.Empty(s.events)
}

// Attestations landing after finalization are recorded but do not re-fire
// the downstream event.
func (s *ServiceSuite) TestLateAttestationAfterFinalization() {
	ctx := context.Background()
	recordID, err := s.service.CreateRecord(ctx, subjectAlice, hospitalA, s.details())
	s.Require().NoError(err)

	_, err = s.service.Attest(ctx, recordID, cityHall)
	s.Require().NoError(err)
	<-s.events

	result, err := s.service.Attest(ctx, recordID, parish)
	s.Require().NoError(err)
	s.False(result.Finalized)
	s.Equal(models.StatusFinalized, result.Record.Status)
	s.Len(result.Record.Attestations, 3)

	s.Empty(s.events)
	s.Len(s.commits.EntriesOfType(commitlog.EventRecordFinalized), 1)
}

// Many entities attesting at once must produce exactly one finalization.
func (s *ServiceSuite) TestConcurrentAttestationsFinalizeOnce() {
	ctx := context.Background()
	recordID, err := s.service.CreateRecord(ctx, subjectAlice, hospitalA, s.details())
	s.Require().NoError(err)

	attesters := []id.EntityIdentity{cityHall, parish, hospitalB,
		{Role: id.RoleMunicipality, EntityID: "muni-02", Name: "District Office"},
		{Role: id.RoleReligious, EntityID: "rel-chapel", Name: "Old Chapel"},
	}

	var wg sync.WaitGroup
	for _, attester := range attesters {
		wg.Add(1)
		go func(a id.EntityIdentity) {
			defer wg.Done()
			_, err := s.service.Attest(ctx, recordID, a)
			s.NoError(err)
		}(attester)
	}
	wg.Wait()

	s.Len(s.events, 1)
	s.Len(s.commits.EntriesOfType(commitlog.EventRecordFinalized), 1)

	record, err := s.service.Get(ctx, recordID)
	s.Require().NoError(err)
	s.Equal(models.StatusFinalized, record.Status)
}

func (s *ServiceSuite) TestReject() {
	ctx := context.Background()
	recordID, err := s.service.CreateRecord(ctx, subjectAlice, hospitalA, s.details())
	s.Require().NoError(err)

	s.Run("pending record can be rejected", func() {
		err := s.service.Reject(ctx, recordID, "duplicate report")
		s.Require().NoError(err)

		record, err := s.service.Get(ctx, recordID)
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, record.Status)
		s.Equal("duplicate report", record.RejectedReason)
	})

	s.Run("rejected record refuses attestations", func() {
		_, err := s.service.Attest(ctx, recordID, cityHall)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("subject can be reported again after rejection", func() {
		_, err := s.service.CreateRecord(ctx, subjectAlice, cityHall, s.details())
		s.Require().NoError(err)
	})
}

func (s *ServiceSuite) TestRejectAfterFinalizationRefused() {
	ctx := context.Background()
	recordID, err := s.service.CreateRecord(ctx, subjectAlice, hospitalA, s.details())
	s.Require().NoError(err)
	_, err = s.service.Attest(ctx, recordID, cityHall)
	s.Require().NoError(err)
	<-s.events

	err = s.service.Reject(ctx, recordID, "too late")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func (s *ServiceSuite) TestAttestUnknownRecord() {
	_, err := s.service.Attest(context.Background(), id.NewRecordID(), cityHall)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestFlagSuspicious() {
	ctx := context.Background()
	recordID, err := s.service.FlagSuspicious(ctx, subjectBob, "failed liveness three times")
	s.Require().NoError(err)

	record, err := s.service.Get(ctx, recordID)
	s.Require().NoError(err)
	s.True(record.Suspicious)
	s.Equal(models.StatusDraft, record.Status)
	s.Empty(record.Attestations)

	// A suspicious case is not a death claim yet; the person stays alive.
	person, err := s.identity.Get(ctx, subjectBob)
	s.Require().NoError(err)
	s.Equal(identitymodels.StatusAlive, person.Status)
}
