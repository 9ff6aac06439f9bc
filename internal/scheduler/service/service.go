// Package service keeps every pensioner on a periodic liveness verification
// cadence and escalates subjects who repeatedly fail to verify.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"registrum/internal/commitlog"
	livenessmodels "registrum/internal/liveness/models"
	"registrum/internal/platform/metrics"
	"registrum/internal/scheduler/models"
	id "registrum/pkg/domain"
	dErrors "registrum/pkg/domain-errors"
	audit "registrum/pkg/platform/audit"
	"registrum/pkg/platform/sentinel"
)

// Store is the schedule persistence boundary.
type Store interface {
	Create(ctx context.Context, schedule *models.Schedule) error
	Find(ctx context.Context, subject id.NationalID) (*models.Schedule, error)
	Update(ctx context.Context, schedule *models.Schedule) error
	Delete(ctx context.Context, subject id.NationalID) error
	ListDueBy(ctx context.Context, deadline time.Time) ([]*models.Schedule, error)
}

// SessionOpener opens a liveness ceremony for a subject.
type SessionOpener interface {
	Open(ctx context.Context, subject id.NationalID, userAgent string) (*livenessmodels.Session, error)
}

// Registry is the slice of the identity registry the scheduler drives.
type Registry interface {
	FlagInPersonOnly(ctx context.Context, nationalID id.NationalID) error
	ClearInPersonFlag(ctx context.Context, nationalID id.NationalID) error
}

// SuspicionFlagger opens a suspicious case in the death ledger.
type SuspicionFlagger interface {
	FlagSuspicious(ctx context.Context, subject id.NationalID, reason string) (id.RecordID, error)
}

// AuditSink records scheduler audit events.
type AuditSink interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store    Store
	sessions SessionOpener
	registry Registry
	ledger   SuspicionFlagger
	commits  commitlog.Committer
	auditor  AuditSink
	metrics  *metrics.Metrics
	logger   *slog.Logger

	interval      time.Duration
	ceiling       int
	dueSoonWindow time.Duration

	// mu serializes outcome bookkeeping per subject.
	mu    sync.Mutex
	locks map[id.NationalID]*sync.Mutex
}

func NewService(
	store Store,
	sessions SessionOpener,
	registry Registry,
	ledger SuspicionFlagger,
	commits commitlog.Committer,
	auditor AuditSink,
	m *metrics.Metrics,
	logger *slog.Logger,
	interval time.Duration,
	ceiling int,
	dueSoonWindow time.Duration,
) *Service {
	if interval <= 0 {
		interval = 6 * 30 * 24 * time.Hour
	}
	if ceiling < 1 {
		ceiling = 3
	}
	if dueSoonWindow <= 0 {
		dueSoonWindow = 14 * 24 * time.Hour
	}
	return &Service{
		store:         store,
		sessions:      sessions,
		registry:      registry,
		ledger:        ledger,
		commits:       commits,
		auditor:       auditor,
		metrics:       m,
		logger:        logger,
		interval:      interval,
		ceiling:       ceiling,
		dueSoonWindow: dueSoonWindow,
		locks:         make(map[id.NationalID]*sync.Mutex),
	}
}

func (s *Service) subjectLock(subject id.NationalID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[subject]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[subject] = lock
	}
	return lock
}

// Enroll puts a subject on the verification cadence. The first deadline is
// one full interval from enrollment.
func (s *Service) Enroll(ctx context.Context, subject id.NationalID) (*models.Schedule, error) {
	now := time.Now()
	schedule := &models.Schedule{
		SubjectID:      subject,
		LastVerifiedAt: now,
		NextDueAt:      now.Add(s.interval),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, schedule); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(dErrors.CodeConflict, "subject already enrolled", err)
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to enroll subject", err)
	}
	s.logger.InfoContext(ctx, "subject enrolled for periodic verification",
		"subject", subject.String(), "next_due_at", schedule.NextDueAt)
	return schedule, nil
}

// Unenroll removes a subject from the cadence, e.g. after death finalization.
func (s *Service) Unenroll(ctx context.Context, subject id.NationalID) error {
	if err := s.store.Delete(ctx, subject); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "failed to unenroll subject", err)
	}
	return nil
}

// Get returns the subject's schedule.
func (s *Service) Get(ctx context.Context, subject id.NationalID) (*models.Schedule, error) {
	schedule, err := s.store.Find(ctx, subject)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(dErrors.CodeNotFound, "subject not enrolled", err)
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load schedule", err)
	}
	return schedule, nil
}

// IsDue reports whether the subject must verify now.
func (s *Service) IsDue(ctx context.Context, subject id.NationalID) (bool, error) {
	schedule, err := s.Get(ctx, subject)
	if err != nil {
		return false, err
	}
	return schedule.Due(time.Now()), nil
}

// OpenChallenge opens a liveness ceremony for an enrolled subject. Escalated
// subjects are refused remote verification until the in-person workflow
// clears them.
func (s *Service) OpenChallenge(ctx context.Context, subject id.NationalID, userAgent string) (*livenessmodels.Session, error) {
	schedule, err := s.Get(ctx, subject)
	if err != nil {
		return nil, err
	}
	if schedule.Escalated {
		return nil, dErrors.New(dErrors.CodeEscalated, "remote verification suspended; in-person verification required")
	}
	session, err := s.sessions.Open(ctx, subject, userAgent)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// OnSessionOutcome folds a terminal session outcome into the schedule:
// success resets the cadence, anything else burns one attempt, and attempt
// exhaustion escalates the subject.
func (s *Service) OnSessionOutcome(ctx context.Context, outcome livenessmodels.Outcome) {
	lock := s.subjectLock(outcome.SubjectID)
	lock.Lock()
	defer lock.Unlock()

	schedule, err := s.store.Find(ctx, outcome.SubjectID)
	if err != nil {
		// Subjects outside the cadence can still verify voluntarily.
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.ErrorContext(ctx, "failed to load schedule for outcome",
				"subject", outcome.SubjectID.String(), "error", err.Error())
		}
		return
	}

	now := outcome.OccurredAt
	if now.IsZero() {
		now = time.Now()
	}

	if outcome.State == livenessmodels.StateSucceeded {
		schedule.ConsecutiveFailures = 0
		schedule.LastVerifiedAt = now
		schedule.NextDueAt = now.Add(s.interval)
		schedule.UpdatedAt = now
		if err := s.store.Update(ctx, schedule); err != nil {
			s.logger.ErrorContext(ctx, "failed to reset schedule",
				"subject", outcome.SubjectID.String(), "error", err.Error())
		}
		return
	}

	schedule.ConsecutiveFailures++
	schedule.UpdatedAt = now
	if schedule.ConsecutiveFailures >= s.ceiling && !schedule.Escalated {
		s.escalate(ctx, schedule, now)
	}
	if err := s.store.Update(ctx, schedule); err != nil {
		s.logger.ErrorContext(ctx, "failed to record verification failure",
			"subject", outcome.SubjectID.String(), "error", err.Error())
	}
}

// escalate suspends remote verification and opens a suspicious case. Caller
// holds the subject lock and persists the schedule afterwards.
func (s *Service) escalate(ctx context.Context, schedule *models.Schedule, now time.Time) {
	schedule.Escalated = true
	schedule.EscalatedAt = &now

	if err := s.registry.FlagInPersonOnly(ctx, schedule.SubjectID); err != nil {
		s.logger.ErrorContext(ctx, "failed to flag subject in-person-only",
			"subject", schedule.SubjectID.String(), "error", err.Error())
	}
	if _, err := s.ledger.FlagSuspicious(ctx, schedule.SubjectID,
		"repeated liveness verification failure"); err != nil &&
		!dErrors.HasCode(err, dErrors.CodeConflict) {
		s.logger.ErrorContext(ctx, "failed to open suspicious case",
			"subject", schedule.SubjectID.String(), "error", err.Error())
	}
	if _, err := s.commits.Record(ctx, commitlog.EventEscalation, map[string]string{
		"subject": schedule.SubjectID.String(),
		"reason":  "verification failure ceiling reached",
	}); err != nil {
		s.logger.ErrorContext(ctx, "commit log rejected escalation", "error", err.Error())
	}

	s.metrics.SchedulerEscalations.Inc()
	_ = s.auditor.Emit(ctx, audit.Event{
		Subject: schedule.SubjectID,
		Action:  string(audit.EventSubjectEscalated),
		Reason:  "verification failure ceiling reached",
	})
	s.logger.WarnContext(ctx, "subject escalated to in-person verification",
		"subject", schedule.SubjectID.String(),
		"consecutive_failures", schedule.ConsecutiveFailures,
	)
}

// ClearEscalation resets a subject after a completed in-person verification.
func (s *Service) ClearEscalation(ctx context.Context, subject id.NationalID) error {
	lock := s.subjectLock(subject)
	lock.Lock()
	defer lock.Unlock()

	schedule, err := s.Get(ctx, subject)
	if err != nil {
		return err
	}
	if !schedule.Escalated {
		return dErrors.New(dErrors.CodeConflict, "subject is not escalated")
	}

	now := time.Now()
	schedule.Escalated = false
	schedule.EscalatedAt = nil
	schedule.ConsecutiveFailures = 0
	schedule.LastVerifiedAt = now
	schedule.NextDueAt = now.Add(s.interval)
	schedule.UpdatedAt = now
	if err := s.store.Update(ctx, schedule); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "failed to clear escalation", err)
	}

	if err := s.registry.ClearInPersonFlag(ctx, subject); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear in-person flag",
			"subject", subject.String(), "error", err.Error())
	}
	_ = s.auditor.Emit(ctx, audit.Event{
		Subject: subject,
		Action:  string(audit.EventEscalationCleared),
	})
	return nil
}

// ListDue returns subjects whose verification deadline has passed.
func (s *Service) ListDue(ctx context.Context) ([]*models.Schedule, error) {
	schedules, err := s.store.ListDueBy(ctx, time.Now())
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to list due schedules", err)
	}
	return schedules, nil
}

// ListDueSoon returns subjects inside the notification window, due ones
// included.
func (s *Service) ListDueSoon(ctx context.Context) ([]*models.Schedule, error) {
	schedules, err := s.store.ListDueBy(ctx, time.Now().Add(s.dueSoonWindow))
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to list due-soon schedules", err)
	}
	return schedules, nil
}

// Run periodically announces due subjects for downstream notification.
func (s *Service) Run(ctx context.Context, tick time.Duration) error {
	if tick <= 0 {
		tick = time.Hour
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.announceDue(ctx)
		}
	}
}

func (s *Service) announceDue(ctx context.Context) {
	due, err := s.ListDue(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "due sweep failed", "error", err.Error())
		return
	}
	for _, schedule := range due {
		_ = s.auditor.Emit(ctx, audit.Event{
			Subject: schedule.SubjectID,
			Action:  string(audit.EventVerificationDue),
		})
		s.logger.InfoContext(ctx, "verification due",
			"subject", schedule.SubjectID.String(),
			"next_due_at", schedule.NextDueAt,
			"consecutive_failures", schedule.ConsecutiveFailures,
		)
	}
}
