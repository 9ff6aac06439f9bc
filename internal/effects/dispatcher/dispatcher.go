// Package dispatcher consumes finalized-record events and executes the
// downstream consequences: certificate issuance, then pension termination.
// Each effect runs at most once per record; transient downstream failures
// retry with exponential backoff, and retry exhaustion freezes the record
// behind an operator escalation.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"registrum/internal/collaborators"
	"registrum/internal/commitlog"
	effectmodels "registrum/internal/effects/models"
	"registrum/internal/effects/store"
	ledgermodels "registrum/internal/ledger/models"
	"registrum/internal/platform/metrics"
	id "registrum/pkg/domain"
	dErrors "registrum/pkg/domain-errors"
	audit "registrum/pkg/platform/audit"
	"registrum/pkg/platform/sentinel"
)

// PensionRegistry is the identity-side pension transition the dispatcher
// drives after the external ledger confirms the stop.
type PensionRegistry interface {
	MarkPensionTerminated(ctx context.Context, nationalID id.NationalID) error
}

// AuditSink records effect audit events.
type AuditSink interface {
	Emit(ctx context.Context, event audit.Event) error
}

// ScheduleRemover takes a deceased subject off the periodic verification
// cadence.
type ScheduleRemover interface {
	Unenroll(ctx context.Context, subject id.NationalID) error
}

type Dispatcher struct {
	events       <-chan ledgermodels.RecordFinalized
	markers      store.MarkerStore
	statuses     store.StatusStore
	certificates collaborators.CertificateIssuer
	pensions     collaborators.PensionLedger
	registry     PensionRegistry
	commits      commitlog.Committer
	auditor      AuditSink
	metrics      *metrics.Metrics
	logger       *slog.Logger

	maxAttempts int
	baseBackoff time.Duration

	// schedules is optional; nil skips cadence cleanup.
	schedules ScheduleRemover
}

func New(
	events <-chan ledgermodels.RecordFinalized,
	markers store.MarkerStore,
	statuses store.StatusStore,
	certificates collaborators.CertificateIssuer,
	pensions collaborators.PensionLedger,
	registry PensionRegistry,
	commits commitlog.Committer,
	auditor AuditSink,
	m *metrics.Metrics,
	logger *slog.Logger,
	maxAttempts int,
	baseBackoff time.Duration,
) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseBackoff <= 0 {
		baseBackoff = 100 * time.Millisecond
	}
	return &Dispatcher{
		events:       events,
		markers:      markers,
		statuses:     statuses,
		certificates: certificates,
		pensions:     pensions,
		registry:     registry,
		commits:      commits,
		auditor:      auditor,
		metrics:      m,
		logger:       logger,
		maxAttempts:  maxAttempts,
		baseBackoff:  baseBackoff,
	}
}

// SetScheduleRemover wires verification cadence cleanup for finalized
// subjects. Called once at startup.
func (d *Dispatcher) SetScheduleRemover(schedules ScheduleRemover) {
	d.schedules = schedules
}

// Run consumes events until the context ends. It is the only goroutine that
// executes effects, so per-record ordering needs no further locking.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-d.events:
			if !ok {
				return nil
			}
			d.Process(ctx, event)
		}
	}
}

// Process executes both effects for one finalized record. Exported so tests
// and replay tooling can drive deliveries directly.
func (d *Dispatcher) Process(ctx context.Context, event ledgermodels.RecordFinalized) {
	if err := d.issueCertificate(ctx, event); err != nil {
		d.escalate(ctx, event, effectmodels.EffectIssueCertificate, err)
		return
	}
	if err := d.stopPension(ctx, event); err != nil {
		d.escalate(ctx, event, effectmodels.EffectStopPension, err)
		return
	}
	if d.schedules != nil {
		if err := d.schedules.Unenroll(ctx, event.SubjectID); err != nil {
			d.logger.ErrorContext(ctx, "failed to remove verification schedule",
				"subject", event.SubjectID.String(), "error", err.Error())
		}
	}
}

func (d *Dispatcher) issueCertificate(ctx context.Context, event ledgermodels.RecordFinalized) error {
	claimed, err := d.markers.Claim(ctx, event.RecordID, effectmodels.EffectIssueCertificate)
	if err != nil {
		return fmt.Errorf("certificate claim: %w", err)
	}
	if !claimed {
		// A previous delivery owns this effect.
		return nil
	}

	var certificateID id.CertificateID
	err = d.withRetry(ctx, event, func(ctx context.Context) error {
		var issueErr error
		certificateID, issueErr = d.certificates.Issue(ctx, event.SubjectID, event.RecordID)
		return issueErr
	})
	if err != nil {
		return fmt.Errorf("issue certificate: %w", err)
	}

	if _, err := d.commits.Record(ctx, commitlog.EventEffect, map[string]string{
		"record_id":      event.RecordID.String(),
		"effect":         string(effectmodels.EffectIssueCertificate),
		"certificate_id": certificateID.String(),
	}); err != nil {
		d.logger.ErrorContext(ctx, "commit log rejected certificate receipt",
			"record_id", event.RecordID.String(), "error", err.Error())
	}

	if err := d.statuses.Apply(ctx, event.RecordID, event.SubjectID, func(status *effectmodels.Status) {
		status.CertificateIssued = true
		status.CertificateID = certificateID
	}); err != nil {
		return fmt.Errorf("record certificate status: %w", err)
	}

	d.metrics.CertificatesIssued.Inc()
	_ = d.auditor.Emit(ctx, audit.Event{
		Subject:  event.SubjectID,
		RecordID: event.RecordID.String(),
		Action:   string(audit.EventCertificateIssued),
	})
	d.logger.InfoContext(ctx, "death certificate issued",
		"record_id", event.RecordID.String(),
		"certificate_id", certificateID.String(),
	)
	return nil
}

func (d *Dispatcher) stopPension(ctx context.Context, event ledgermodels.RecordFinalized) error {
	claimed, err := d.markers.Claim(ctx, event.RecordID, effectmodels.EffectStopPension)
	if err != nil {
		return fmt.Errorf("pension claim: %w", err)
	}
	if !claimed {
		return nil
	}

	err = d.withRetry(ctx, event, func(ctx context.Context) error {
		return d.pensions.Stop(ctx, event.SubjectID, event.RecordID)
	})
	if err != nil {
		return fmt.Errorf("stop pension: %w", err)
	}

	// The registry transition follows the external confirmation; a conflict
	// means another replica already moved the person forward.
	if err := d.registry.MarkPensionTerminated(ctx, event.SubjectID); err != nil &&
		!dErrors.HasCode(err, dErrors.CodeConflict) {
		d.logger.ErrorContext(ctx, "failed to mark pension terminated in registry",
			"subject", event.SubjectID.String(), "error", err.Error())
	}

	if _, err := d.commits.Record(ctx, commitlog.EventEffect, map[string]string{
		"record_id": event.RecordID.String(),
		"effect":    string(effectmodels.EffectStopPension),
	}); err != nil {
		d.logger.ErrorContext(ctx, "commit log rejected pension receipt",
			"record_id", event.RecordID.String(), "error", err.Error())
	}

	if err := d.statuses.Apply(ctx, event.RecordID, event.SubjectID, func(status *effectmodels.Status) {
		status.PensionStopped = true
	}); err != nil {
		return fmt.Errorf("record pension status: %w", err)
	}

	d.metrics.PensionsStopped.Inc()
	_ = d.auditor.Emit(ctx, audit.Event{
		Subject:  event.SubjectID,
		RecordID: event.RecordID.String(),
		Action:   string(audit.EventPensionStopped),
	})
	return nil
}

// withRetry runs fn with exponential backoff until success, attempt
// exhaustion, or context end.
func (d *Dispatcher) withRetry(ctx context.Context, event ledgermodels.RecordFinalized, fn func(ctx context.Context) error) error {
	backoff := d.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		d.metrics.EffectFailures.Inc()
		d.logger.WarnContext(ctx, "effect attempt failed",
			"record_id", event.RecordID.String(),
			"attempt", attempt,
			"error", lastErr.Error(),
		)
		_ = d.statuses.Apply(ctx, event.RecordID, event.SubjectID, func(status *effectmodels.Status) {
			status.Attempts++
		})
		if attempt == d.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("attempts exhausted: %w", lastErr)
}

// escalate freezes the record's effect processing and alerts operators.
// Nothing retries automatically past this point.
func (d *Dispatcher) escalate(ctx context.Context, event ledgermodels.RecordFinalized, effect effectmodels.Effect, cause error) {
	d.metrics.EffectEscalations.Inc()
	reason := fmt.Sprintf("%s: %v", effect, cause)

	if err := d.statuses.Apply(ctx, event.RecordID, event.SubjectID, func(status *effectmodels.Status) {
		status.Escalated = true
		status.EscalationReason = reason
	}); err != nil {
		d.logger.ErrorContext(ctx, "failed to record escalation", "error", err.Error())
	}
	if _, err := d.commits.Record(ctx, commitlog.EventEscalation, map[string]string{
		"record_id": event.RecordID.String(),
		"effect":    string(effect),
		"reason":    reason,
	}); err != nil {
		d.logger.ErrorContext(ctx, "commit log rejected escalation", "error", err.Error())
	}
	_ = d.auditor.Emit(ctx, audit.Event{
		Subject:  event.SubjectID,
		RecordID: event.RecordID.String(),
		Action:   string(audit.EventEffectEscalated),
		Reason:   reason,
	})
	d.logger.ErrorContext(ctx, "effect escalated for manual intervention",
		"record_id", event.RecordID.String(),
		"subject", event.SubjectID.String(),
		"effect", string(effect),
		"error", cause.Error(),
	)
}

// Status returns the effect execution view for a record.
func (d *Dispatcher) Status(ctx context.Context, recordID id.RecordID) (*effectmodels.Status, error) {
	status, err := d.statuses.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(dErrors.CodeNotFound, "no effects recorded for record", err)
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load effect status", err)
	}
	return status, nil
}
