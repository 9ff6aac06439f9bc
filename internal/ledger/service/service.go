package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"registrum/internal/commitlog"
	"registrum/internal/identity/models"
	ledgermodels "registrum/internal/ledger/models"
	"registrum/internal/ledger/quorum"
	"registrum/internal/platform/metrics"
	id "registrum/pkg/domain"
	dErrors "registrum/pkg/domain-errors"
	audit "registrum/pkg/platform/audit"
	"registrum/pkg/platform/sentinel"
)

// Store is the persistence boundary for death records.
type Store interface {
	Create(ctx context.Context, record *ledgermodels.DeathRecord) error
	FindByID(ctx context.Context, recordID id.RecordID) (*ledgermodels.DeathRecord, error)
	FindBySubject(ctx context.Context, subject id.NationalID) ([]*ledgermodels.DeathRecord, error)
	ListByStatus(ctx context.Context, status ledgermodels.RecordStatus) ([]*ledgermodels.DeathRecord, error)
	Update(ctx context.Context, record *ledgermodels.DeathRecord) error
}

// IdentityDirectory is the slice of the identity registry the ledger needs.
type IdentityDirectory interface {
	Get(ctx context.Context, nationalID id.NationalID) (*models.Person, error)
	MarkDeceased(ctx context.Context, nationalID id.NationalID) error
}

// AuditSink records domain audit events.
type AuditSink interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service owns the death record lifecycle: creation, attestation intake,
// quorum evaluation, and finalization. Attestation and quorum re-evaluation
// for a single record are serialized on a per-record mutex so concurrent
// attestations cannot double-fire the finalization event.
type Service struct {
	store     Store
	identity  IdentityDirectory
	commits   commitlog.Committer
	auditor   AuditSink
	metrics   *metrics.Metrics
	logger    *slog.Logger
	threshold int
	events    chan<- ledgermodels.RecordFinalized
	tracer    trace.Tracer

	mu    sync.Mutex
	locks map[id.RecordID]*sync.Mutex

	// halted subjects failed an invariant check; all processing for them is
	// refused until an operator intervenes.
	haltedMu sync.RWMutex
	halted   map[id.NationalID]bool
}

func NewService(
	store Store,
	identity IdentityDirectory,
	commits commitlog.Committer,
	auditor AuditSink,
	m *metrics.Metrics,
	logger *slog.Logger,
	threshold int,
	events chan<- ledgermodels.RecordFinalized,
) *Service {
	if threshold <= 0 {
		threshold = quorum.DefaultThreshold
	}
	return &Service{
		store:     store,
		identity:  identity,
		commits:   commits,
		auditor:   auditor,
		metrics:   m,
		logger:    logger,
		threshold: threshold,
		events:    events,
		tracer:    otel.Tracer("registrum/ledger"),
		locks:     make(map[id.RecordID]*sync.Mutex),
		halted:    make(map[id.NationalID]bool),
	}
}

// recordLock returns the mutex owning serialization for one record.
func (s *Service) recordLock(recordID id.RecordID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[recordID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[recordID] = lock
	}
	return lock
}

func (s *Service) subjectHalted(subject id.NationalID) bool {
	s.haltedMu.RLock()
	defer s.haltedMu.RUnlock()
	return s.halted[subject]
}

// haltSubject stops all processing for a subject after an invariant
// violation. Raising an alert beats guessing a resolution.
func (s *Service) haltSubject(ctx context.Context, subject id.NationalID, reason string) {
	s.haltedMu.Lock()
	s.halted[subject] = true
	s.haltedMu.Unlock()
	s.logger.ErrorContext(ctx, "invariant violation, subject halted",
		"subject", subject.String(), "reason", reason)
	_ = s.auditor.Emit(ctx, audit.Event{
		Subject: subject,
		Action:  string(audit.EventInvariantViolation),
		Reason:  reason,
	})
}

// CreateRecord opens a death record for the subject, pre-filled with the
// reporting entity's attestation, in PendingQuorum.
func (s *Service) CreateRecord(ctx context.Context, subject id.NationalID, reporter id.EntityIdentity, details ledgermodels.DeathDetails) (id.RecordID, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.CreateRecord",
		trace.WithAttributes(attribute.String("reporter.role", reporter.Role.String())))
	defer span.End()

	if !reporter.Role.IsValid() {
		return id.RecordID{}, dErrors.New(dErrors.CodeInvalidInput, "unrecognized entity role")
	}
	if s.subjectHalted(subject) {
		return id.RecordID{}, dErrors.New(dErrors.CodeInvariant, "subject processing halted pending manual review")
	}
	person, err := s.identity.Get(ctx, subject)
	if err != nil {
		return id.RecordID{}, err
	}
	if person.Status != models.StatusAlive {
		return id.RecordID{}, dErrors.New(dErrors.CodeConflict, "subject is not registered as alive")
	}

	now := time.Now()
	record := &ledgermodels.DeathRecord{
		ID:             id.NewRecordID(),
		SubjectID:      subject,
		ReportedByRole: reporter.Role,
		ReportedByID:   reporter.EntityID,
		Details:        details,
		Status:         ledgermodels.StatusPendingQuorum,
		Attestations: []ledgermodels.Attestation{{
			Role:       reporter.Role,
			EntityID:   reporter.EntityID,
			EntityName: reporter.Name,
			AttestedAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Durably commit before accepting; a record that never reached the
	// tamper-evident log was never created.
	if _, err := s.commits.Record(ctx, commitlog.EventRecordCreated, record); err != nil {
		return id.RecordID{}, dErrors.Wrap(dErrors.CodeUnavailable, "commit log rejected record creation", err)
	}

	if err := s.store.Create(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return id.RecordID{}, dErrors.Wrap(dErrors.CodeConflict, "subject already has a death record", err)
		}
		return id.RecordID{}, dErrors.Wrap(dErrors.CodeInternal, "failed to create record", err)
	}

	s.metrics.RecordsCreated.Inc()
	s.metrics.Attestations.WithLabelValues(reporter.Role.String()).Inc()
	_ = s.auditor.Emit(ctx, audit.Event{
		Subject:   subject,
		RecordID:  record.ID.String(),
		Action:    string(audit.EventRecordCreated),
		ActorRole: reporter.Role.String(),
		ActorID:   string(reporter.EntityID),
	})
	s.logger.InfoContext(ctx, "death record created",
		"record_id", record.ID.String(),
		"subject", subject.String(),
		"reported_by", reporter.Role.String(),
	)
	return record.ID, nil
}

// AttestResult tells the caller what an attestation did. Duplicate means no
// new quorum credit was granted, either because the same entity repeated
// itself or because its role was already credited.
type AttestResult struct {
	Record    *ledgermodels.DeathRecord
	Duplicate bool
	Finalized bool
}

// Attest adds one entity's attestation and re-evaluates quorum. Every
// distinct entity lands on the record's audit list; a repeat by the same
// entity is an idempotent no-op. The whole read-modify-write runs under the
// record's lock; the finalization event fires at most once because only the
// caller that performs the PendingQuorum → Finalized transition emits it.
func (s *Service) Attest(ctx context.Context, recordID id.RecordID, attester id.EntityIdentity) (AttestResult, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Attest",
		trace.WithAttributes(
			attribute.String("record.id", recordID.String()),
			attribute.String("attester.role", attester.Role.String())))
	defer span.End()

	if !attester.Role.IsValid() {
		return AttestResult{}, dErrors.New(dErrors.CodeInvalidInput, "unrecognized entity role")
	}

	lock := s.recordLock(recordID)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.store.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return AttestResult{}, dErrors.Wrap(dErrors.CodeNotFound, "unknown record", err)
		}
		return AttestResult{}, dErrors.Wrap(dErrors.CodeInternal, "failed to load record", err)
	}
	if s.subjectHalted(record.SubjectID) {
		return AttestResult{}, dErrors.New(dErrors.CodeInvariant, "subject processing halted pending manual review")
	}
	if record.Status == ledgermodels.StatusRejected {
		return AttestResult{}, dErrors.New(dErrors.CodeInvalidTransition, "record was rejected")
	}

	now := time.Now()
	attestation := ledgermodels.Attestation{
		Role:       attester.Role,
		EntityID:   attester.EntityID,
		EntityName: attester.Name,
		AttestedAt: now,
	}

	outcome := record.AddAttestation(attestation)
	if outcome == ledgermodels.AttestationDuplicate {
		// Same entity attesting again: no state change, no error.
		s.metrics.DuplicateAttestations.Inc()
		_ = s.auditor.Emit(ctx, audit.Event{
			Subject:   record.SubjectID,
			RecordID:  record.ID.String(),
			Action:    string(audit.EventAttestationNoop),
			ActorRole: attester.Role.String(),
			ActorID:   string(attester.EntityID),
		})
		return AttestResult{Record: record, Duplicate: true}, nil
	}

	if _, err := s.commits.Record(ctx, commitlog.EventAttestation, attestation); err != nil {
		return AttestResult{}, dErrors.Wrap(dErrors.CodeUnavailable, "commit log rejected attestation", err)
	}

	finalized := false
	// Attestations after finalization are accepted for audit but never
	// re-finalize or re-emit; the status guard inside Finalize is what makes
	// the transition fire once.
	if record.Status == ledgermodels.StatusPendingQuorum &&
		quorum.HasQuorum(record.Attestations, s.threshold) {
		if err := s.finalizeLocked(ctx, record, now); err != nil {
			return AttestResult{}, err
		}
		finalized = true
	}

	if err := s.store.Update(ctx, record); err != nil {
		return AttestResult{}, dErrors.Wrap(dErrors.CodeInternal, "failed to persist attestation", err)
	}

	s.metrics.Attestations.WithLabelValues(attester.Role.String()).Inc()
	_ = s.auditor.Emit(ctx, audit.Event{
		Subject:   record.SubjectID,
		RecordID:  record.ID.String(),
		Action:    string(audit.EventAttestationAdded),
		ActorRole: attester.Role.String(),
		ActorID:   string(attester.EntityID),
	})

	if finalized {
		s.afterFinalize(ctx, record)
	}
	return AttestResult{
		Record:    record,
		Duplicate: outcome == ledgermodels.AttestationRecorded,
		Finalized: finalized,
	}, nil
}

// finalizeLocked performs the PendingQuorum → Finalized transition. The
// caller holds the record lock.
func (s *Service) finalizeLocked(ctx context.Context, record *ledgermodels.DeathRecord, now time.Time) error {
	// A second Finalized record for the same subject must never exist.
	siblings, err := s.store.FindBySubject(ctx, record.SubjectID)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "failed to check sibling records", err)
	}
	for _, sibling := range siblings {
		if sibling.ID != record.ID && sibling.Status == ledgermodels.StatusFinalized {
			s.haltSubject(ctx, record.SubjectID, "second finalized record detected")
			return dErrors.New(dErrors.CodeInvariant, "subject already has a finalized record")
		}
	}

	event := ledgermodels.RecordFinalized{
		RecordID:    record.ID,
		SubjectID:   record.SubjectID,
		DateOfDeath: record.Details.DateOfDeath,
	}
	if _, err := s.commits.Record(ctx, commitlog.EventRecordFinalized, event); err != nil {
		return dErrors.Wrap(dErrors.CodeUnavailable, "commit log rejected finalization", err)
	}
	if err := record.Finalize(now); err != nil {
		return dErrors.Wrap(dErrors.CodeInvalidTransition, "record cannot finalize", err)
	}
	return nil
}

// afterFinalize runs the post-transition notifications; record state is
// already persisted.
func (s *Service) afterFinalize(ctx context.Context, record *ledgermodels.DeathRecord) {
	s.metrics.RecordsFinalized.Inc()
	_ = s.auditor.Emit(ctx, audit.Event{
		Subject:  record.SubjectID,
		RecordID: record.ID.String(),
		Action:   string(audit.EventRecordFinalized),
	})
	s.logger.InfoContext(ctx, "death record finalized",
		"record_id", record.ID.String(),
		"subject", record.SubjectID.String(),
	)

	// The subject's civil status changes the moment the record becomes fact;
	// downstream effect failures never reverse it.
	if err := s.identity.MarkDeceased(ctx, record.SubjectID); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark subject deceased",
			"subject", record.SubjectID.String(), "error", err.Error())
	}

	s.events <- ledgermodels.RecordFinalized{
		RecordID:    record.ID,
		SubjectID:   record.SubjectID,
		DateOfDeath: record.Details.DateOfDeath,
	}
}

// Reject administratively closes a record, e.g. on duplicate or fraud
// detection. Valid only before finalization.
func (s *Service) Reject(ctx context.Context, recordID id.RecordID, reason string) error {
	lock := s.recordLock(recordID)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.store.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(dErrors.CodeNotFound, "unknown record", err)
		}
		return dErrors.Wrap(dErrors.CodeInternal, "failed to load record", err)
	}

	now := time.Now()
	if err := record.Reject(reason, now); err != nil {
		return dErrors.Wrap(dErrors.CodeInvalidTransition,
			"record in status "+string(record.Status)+" cannot be rejected", err)
	}
	if _, err := s.commits.Record(ctx, commitlog.EventRecordRejected, map[string]string{
		"record_id": recordID.String(),
		"reason":    reason,
	}); err != nil {
		return dErrors.Wrap(dErrors.CodeUnavailable, "commit log rejected rejection", err)
	}
	if err := s.store.Update(ctx, record); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "failed to persist rejection", err)
	}

	s.metrics.RecordsRejected.Inc()
	_ = s.auditor.Emit(ctx, audit.Event{
		Subject:  record.SubjectID,
		RecordID: record.ID.String(),
		Action:   string(audit.EventRecordRejected),
		Reason:   reason,
	})
	return nil
}

// FlagSuspicious opens a suspicious-case record for a subject who repeatedly
// failed liveness verification. The record sits in Draft with no attestations:
// it becomes a real death claim only when institutions attest it manually.
func (s *Service) FlagSuspicious(ctx context.Context, subject id.NationalID, reason string) (id.RecordID, error) {
	if s.subjectHalted(subject) {
		return id.RecordID{}, dErrors.New(dErrors.CodeInvariant, "subject processing halted pending manual review")
	}
	now := time.Now()
	record := &ledgermodels.DeathRecord{
		ID:              id.NewRecordID(),
		SubjectID:       subject,
		Details:         ledgermodels.DeathDetails{DateOfDeath: now},
		Status:          ledgermodels.StatusDraft,
		Suspicious:      true,
		SuspicionReason: reason,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if _, err := s.commits.Record(ctx, commitlog.EventEscalation, map[string]string{
		"subject": subject.String(),
		"reason":  reason,
	}); err != nil {
		return id.RecordID{}, dErrors.Wrap(dErrors.CodeUnavailable, "commit log rejected suspicious flag", err)
	}
	if err := s.store.Create(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return id.RecordID{}, dErrors.Wrap(dErrors.CodeConflict, "subject already has a death record", err)
		}
		return id.RecordID{}, dErrors.Wrap(dErrors.CodeInternal, "failed to create suspicious record", err)
	}
	_ = s.auditor.Emit(ctx, audit.Event{
		Subject:  subject,
		RecordID: record.ID.String(),
		Action:   string(audit.EventSuspiciousFlagged),
		Reason:   reason,
	})
	return record.ID, nil
}

// Get returns a record by ID for query accessors.
func (s *Service) Get(ctx context.Context, recordID id.RecordID) (*ledgermodels.DeathRecord, error) {
	record, err := s.store.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(dErrors.CodeNotFound, "unknown record", err)
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load record", err)
	}
	return record, nil
}

// ListByStatus returns records for dashboard queries.
func (s *Service) ListByStatus(ctx context.Context, status ledgermodels.RecordStatus) ([]*ledgermodels.DeathRecord, error) {
	records, err := s.store.ListByStatus(ctx, status)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to list records", err)
	}
	return records, nil
}
