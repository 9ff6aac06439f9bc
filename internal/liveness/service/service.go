// Package service runs the liveness verification ceremony: a short-lived
// session in which a subject proves, with a biometric capture, that they are
// alive. Sessions expire on a strict wall-clock deadline regardless of
// in-flight work.
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

	"registrum/internal/collaborators"
	"registrum/internal/commitlog"
	"registrum/internal/liveness/device"
	"registrum/internal/liveness/models"
	"registrum/internal/platform/metrics"
	id "registrum/pkg/domain"
	dErrors "registrum/pkg/domain-errors"
	audit "registrum/pkg/platform/audit"
	"registrum/pkg/platform/sentinel"
)

// Store is the session persistence boundary.
type Store interface {
	CreateActive(ctx context.Context, session *models.Session) error
	Find(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	ListActive(ctx context.Context) ([]*models.Session, error)
	History(ctx context.Context, subject id.NationalID) ([]*models.Session, error)
}

// OutcomeSink receives every terminal session outcome. Schedule bookkeeping
// hangs off this.
type OutcomeSink interface {
	OnSessionOutcome(ctx context.Context, outcome models.Outcome)
}

// AuditSink records session audit events.
type AuditSink interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store   Store
	proofs  collaborators.BiometricProofService
	commits commitlog.Committer
	auditor AuditSink
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer

	sessionTTL    time.Duration
	proofDeadline time.Duration

	sinkMu sync.RWMutex
	sink   OutcomeSink

	mu    sync.Mutex
	locks map[id.SessionID]*sync.Mutex
}

func NewService(
	store Store,
	proofs collaborators.BiometricProofService,
	commits commitlog.Committer,
	auditor AuditSink,
	m *metrics.Metrics,
	logger *slog.Logger,
	sessionTTL time.Duration,
	proofDeadline time.Duration,
) *Service {
	if sessionTTL <= 0 {
		sessionTTL = 5 * time.Minute
	}
	if proofDeadline <= 0 {
		proofDeadline = 30 * time.Second
	}
	return &Service{
		store:         store,
		proofs:        proofs,
		commits:       commits,
		auditor:       auditor,
		metrics:       m,
		logger:        logger,
		tracer:        otel.Tracer("registrum/liveness"),
		sessionTTL:    sessionTTL,
		proofDeadline: proofDeadline,
		locks:         make(map[id.SessionID]*sync.Mutex),
	}
}

// SetOutcomeSink wires the terminal-outcome listener. Called once at startup;
// a nil sink drops outcomes.
func (s *Service) SetOutcomeSink(sink OutcomeSink) {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	s.sink = sink
}

func (s *Service) sessionLock(sessionID id.SessionID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}

// Open starts a new ceremony for the subject. One live session per subject;
// a second open while one is running is refused.
func (s *Service) Open(ctx context.Context, subject id.NationalID, userAgent string) (*models.Session, error) {
	ctx, span := s.tracer.Start(ctx, "liveness.Open")
	defer span.End()

	now := time.Now()
	session := &models.Session{
		ID:                id.NewSessionID(),
		SubjectID:         subject,
		State:             models.StateInitiated,
		Device:            device.ParseUserAgent(userAgent),
		DeviceFingerprint: device.Fingerprint(userAgent),
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.sessionTTL),
	}
	if err := s.store.CreateActive(ctx, session); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(dErrors.CodeConflict, "subject already has a verification session in progress", err)
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to open session", err)
	}

	s.metrics.SessionsOpened.Inc()
	_ = s.auditor.Emit(ctx, audit.Event{
		Subject:   subject,
		SessionID: session.ID.String(),
		Action:    string(audit.EventSessionOpened),
	})
	s.logger.InfoContext(ctx, "liveness session opened",
		"session_id", session.ID.String(),
		"subject", subject.String(),
		"device", session.Device,
		"expires_at", session.ExpiresAt,
	)
	return session, nil
}

// BeginCapture moves the session into the capturing phase. A repeat call on
// a session already capturing is a no-op, so a client retrying after a lost
// response does not lose the ceremony.
func (s *Service) BeginCapture(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.loadLive(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State == models.StateCapturing {
		return session, nil
	}
	if err := s.transition(ctx, session, models.StateCapturing); err != nil {
		return nil, err
	}
	return session, nil
}

// SubmitCapture accepts the biometric artifact and drives proof generation.
// The session lock is released before the proof call: proof generation is
// slow and untrusted, and holding the lock across it would let a stuck
// provider pin the session past its deadline. The expiry check on
// re-acquisition decides whether a late result still counts.
func (s *Service) SubmitCapture(ctx context.Context, sessionID id.SessionID, artifact []byte) (*models.Session, error) {
	ctx, span := s.tracer.Start(ctx, "liveness.SubmitCapture",
		trace.WithAttributes(attribute.String("session.id", sessionID.String())))
	defer span.End()

	if len(artifact) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "capture artifact is empty")
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	session, err := s.loadLive(ctx, sessionID)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	session.AttemptCount++
	if err := s.transition(ctx, session, models.StateProofGenerating); err != nil {
		lock.Unlock()
		return nil, err
	}
	subject := session.SubjectID
	lock.Unlock()

	proofCtx, cancel := context.WithTimeout(ctx, s.proofDeadline)
	result, proofErr := s.proofs.GenerateProof(proofCtx, artifact, subject)
	cancel()

	lock.Lock()
	defer lock.Unlock()

	session, err = s.store.Find(ctx, sessionID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to reload session", err)
	}
	if session.State.Terminal() {
		// The sweeper expired the session while the proof ran; the late
		// result is discarded.
		return session, nil
	}
	if session.Expired(time.Now()) {
		if err := s.complete(ctx, session, models.StateExpired, 0, "deadline passed during proof generation"); err != nil {
			return nil, err
		}
		return session, nil
	}

	switch {
	case proofErr != nil:
		if err := s.complete(ctx, session, models.StateFailed, 0, "proof generation failed: "+proofErr.Error()); err != nil {
			return nil, err
		}
	case !result.Match:
		if err := s.complete(ctx, session, models.StateFailed, result.Confidence, "biometric proof did not match"); err != nil {
			return nil, err
		}
	default:
		if err := s.complete(ctx, session, models.StateSucceeded, result.Confidence, ""); err != nil {
			return nil, err
		}
	}
	return session, nil
}

// Cancel lets the subject abandon a running ceremony. An abandoned ceremony
// counts as a failed verification, not a free retry.
func (s *Service) Cancel(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.loadLive(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.complete(ctx, session, models.StateFailed, 0, "cancelled by subject"); err != nil {
		return nil, err
	}
	_ = s.auditor.Emit(ctx, audit.Event{
		Subject:   session.SubjectID,
		SessionID: session.ID.String(),
		Action:    string(audit.EventSessionCancelled),
	})
	return session, nil
}

// Get returns a session by ID.
func (s *Service) Get(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	session, err := s.store.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(dErrors.CodeNotFound, "unknown session", err)
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load session", err)
	}
	return session, nil
}

// History returns the subject's completed sessions.
func (s *Service) History(ctx context.Context, subject id.NationalID) ([]*models.Session, error) {
	sessions, err := s.store.History(ctx, subject)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load session history", err)
	}
	return sessions, nil
}

// Run sweeps expired sessions until the context ends.
func (s *Service) Run(ctx context.Context, sweepInterval time.Duration) error {
	if sweepInterval <= 0 {
		sweepInterval = 15 * time.Second
	}
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SweepExpired(ctx, time.Now())
		}
	}
}

// SweepExpired expires every live session past its deadline. Exported so
// tests can drive the clock instead of sleeping.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) {
	sessions, err := s.store.ListActive(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "expiry sweep failed to list sessions", "error", err.Error())
		return
	}
	for _, session := range sessions {
		if !session.Expired(now) {
			continue
		}
		lock := s.sessionLock(session.ID)
		lock.Lock()
		current, err := s.store.Find(ctx, session.ID)
		if err == nil && !current.State.Terminal() {
			if err := s.complete(ctx, current, models.StateExpired, 0, "session deadline passed"); err != nil {
				s.logger.ErrorContext(ctx, "failed to expire session",
					"session_id", session.ID.String(), "error", err.Error())
			}
		}
		lock.Unlock()
	}
}

// loadLive fetches a session and refuses terminal ones. Caller holds the
// session lock.
func (s *Service) loadLive(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	session, err := s.store.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(dErrors.CodeNotFound, "unknown session", err)
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load session", err)
	}
	if session.State.Terminal() {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "session already completed")
	}
	if session.Expired(time.Now()) {
		if err := s.complete(ctx, session, models.StateExpired, 0, "session deadline passed"); err != nil {
			return nil, err
		}
		return nil, dErrors.New(dErrors.CodeTimeout, "session expired")
	}
	return session, nil
}

// transition applies a non-terminal move and persists it. Caller holds the
// session lock.
func (s *Service) transition(ctx context.Context, session *models.Session, next models.SessionState) error {
	if !session.State.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvalidTransition,
			"session in state "+string(session.State)+" cannot move to "+string(next))
	}
	session.State = next
	if err := s.store.Update(ctx, session); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "failed to persist session", err)
	}
	return nil
}

// complete applies a terminal transition, persists, commits, and notifies the
// outcome sink. Caller holds the session lock.
func (s *Service) complete(ctx context.Context, session *models.Session, terminal models.SessionState, confidence float64, reason string) error {
	if !session.State.CanTransitionTo(terminal) {
		return dErrors.New(dErrors.CodeInvalidTransition,
			"session in state "+string(session.State)+" cannot move to "+string(terminal))
	}
	now := time.Now()
	session.State = terminal
	session.Confidence = confidence
	session.FailureReason = reason
	session.CompletedAt = &now

	outcome := models.Outcome{
		SessionID:  session.ID,
		SubjectID:  session.SubjectID,
		State:      terminal,
		Confidence: confidence,
		Reason:     reason,
		OccurredAt: now,
	}
	if _, err := s.commits.Record(ctx, commitlog.EventSessionOutcome, outcome); err != nil {
		return dErrors.Wrap(dErrors.CodeUnavailable, "commit log rejected session outcome", err)
	}
	if err := s.store.Update(ctx, session); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "failed to persist session outcome", err)
	}

	s.metrics.SessionOutcomes.WithLabelValues(string(terminal)).Inc()
	action := audit.EventSessionFailed
	switch terminal {
	case models.StateSucceeded:
		action = audit.EventSessionSucceeded
	case models.StateExpired:
		action = audit.EventSessionExpired
	}
	_ = s.auditor.Emit(ctx, audit.Event{
		Subject:   session.SubjectID,
		SessionID: session.ID.String(),
		Action:    string(action),
		Outcome:   string(terminal),
		Reason:    reason,
	})
	s.logger.InfoContext(ctx, "liveness session completed",
		"session_id", session.ID.String(),
		"subject", session.SubjectID.String(),
		"outcome", string(terminal),
	)

	s.sinkMu.RLock()
	sink := s.sink
	s.sinkMu.RUnlock()
	if sink != nil {
		sink.OnSessionOutcome(ctx, outcome)
	}
	return nil
}
