package audit

import (
	"context"
	"time"

	id "registrum/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// These require tamper-proof storage and long retention.
	// Examples: record finalization, certificate issuance, pension stops.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring and
	// forensics. Examples: rejected attestations, authentication failures,
	// verification escalations.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled or aggregated with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// Subject is the national ID the event concerns, when applicable.
	Subject id.NationalID
	// RecordID / SessionID link the event to a ledger record or liveness
	// session; at most one is set.
	RecordID  string
	SessionID string
	Action    string
	// ActorRole/ActorID identify the attesting institution or operator that
	// performed the action, when there is one.
	ActorRole string
	ActorID   string
	Outcome   string
	Reason    string
	RequestID string
}

type AuditEvent string

const (
	// Ledger events
	EventRecordCreated     AuditEvent = "record_created"
	EventAttestationAdded  AuditEvent = "attestation_added"
	EventAttestationNoop   AuditEvent = "attestation_duplicate"
	EventRecordFinalized   AuditEvent = "record_finalized"
	EventRecordRejected    AuditEvent = "record_rejected"
	EventSuspiciousFlagged AuditEvent = "suspicious_case_flagged"

	// Effect events
	EventCertificateIssued AuditEvent = "certificate_issued"
	EventPensionStopped    AuditEvent = "pension_stopped"
	EventEffectEscalated   AuditEvent = "effect_escalated"

	// Liveness events
	EventSessionOpened    AuditEvent = "liveness_session_opened"
	EventSessionSucceeded AuditEvent = "liveness_session_succeeded"
	EventSessionFailed    AuditEvent = "liveness_session_failed"
	EventSessionExpired   AuditEvent = "liveness_session_expired"
	EventSessionCancelled AuditEvent = "liveness_session_cancelled"

	// Scheduler events
	EventVerificationDue   AuditEvent = "verification_due"
	EventSubjectEscalated  AuditEvent = "subject_escalated_in_person"
	EventEscalationCleared AuditEvent = "subject_escalation_cleared"

	// Identity events
	EventPersonRegistered   AuditEvent = "person_registered"
	EventPersonDeceased     AuditEvent = "person_marked_deceased"
	EventPensionTerminated  AuditEvent = "person_pension_terminated"
	EventInvariantViolation AuditEvent = "invariant_violation"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventRecordCreated:     CategoryCompliance,
	EventRecordFinalized:   CategoryCompliance,
	EventRecordRejected:    CategoryCompliance,
	EventCertificateIssued: CategoryCompliance,
	EventPensionStopped:    CategoryCompliance,
	EventPersonRegistered:  CategoryCompliance,
	EventPersonDeceased:    CategoryCompliance,
	EventPensionTerminated: CategoryCompliance,

	EventSuspiciousFlagged:  CategorySecurity,
	EventEffectEscalated:    CategorySecurity,
	EventSubjectEscalated:   CategorySecurity,
	EventEscalationCleared:  CategorySecurity,
	EventInvariantViolation: CategorySecurity,

	EventAttestationAdded: CategoryOperations,
	EventAttestationNoop:  CategoryOperations,
	EventSessionOpened:    CategoryOperations,
	EventSessionSucceeded: CategoryOperations,
	EventSessionFailed:    CategoryOperations,
	EventSessionExpired:   CategoryOperations,
	EventSessionCancelled: CategoryOperations,
	EventVerificationDue:  CategoryOperations,
}

// Category returns the category for an action, defaulting to operations.
func (a AuditEvent) Category() EventCategory {
	if c, ok := eventCategories[a]; ok {
		return c
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject id.NationalID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
