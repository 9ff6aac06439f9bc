package models

import (
	"time"

	id "registrum/pkg/domain"
	"registrum/pkg/platform/sentinel"
)

// RecordStatus is the monotonic lifecycle of a death record. Transitions move
// only forward; Finalized and Rejected are terminal.
type RecordStatus string

const (
	StatusDraft         RecordStatus = "draft"
	StatusPendingQuorum RecordStatus = "pending_quorum"
	StatusFinalized     RecordStatus = "finalized"
	StatusRejected      RecordStatus = "rejected"
)

// Terminal reports whether no further lifecycle transitions are possible.
// Finalized records still accept attestations for the audit trail.
func (s RecordStatus) Terminal() bool {
	return s == StatusFinalized || s == StatusRejected
}

// Attestation is a timestamped claim by one attesting institution that the
// death occurred. The full per-entity list is retained for audit; quorum
// credit is capped at one per role.
type Attestation struct {
	Role       id.EntityRole
	EntityID   id.EntityID
	EntityName string
	AttestedAt time.Time
}

// DeathDetails carries the reported circumstances of a death.
type DeathDetails struct {
	DateOfDeath  time.Time
	TimeOfDeath  string
	PlaceOfDeath string
	CauseOfDeath string
	// CertifierName is the person who signed the report at the reporting
	// institution, e.g. the attending physician.
	CertifierName string
}

// DeathRecord is the ledger entry for one reported death.
type DeathRecord struct {
	ID        id.RecordID
	SubjectID id.NationalID

	ReportedByRole id.EntityRole
	ReportedByID   id.EntityID

	Details DeathDetails

	// Attestations never shrinks; every distinct entity is kept for audit.
	Attestations []Attestation
	Status       RecordStatus

	// Suspicious marks records opened by scheduler escalation rather than an
	// institutional report. They require manual entity attestation.
	Suspicious      bool
	SuspicionReason string

	RejectedReason string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	FinalizedAt *time.Time
}

// AttestedRoles returns the distinct set of roles that have attested.
func (r *DeathRecord) AttestedRoles() map[id.EntityRole]bool {
	roles := make(map[id.EntityRole]bool, len(r.Attestations))
	for _, a := range r.Attestations {
		roles[a.Role] = true
	}
	return roles
}

// HasRoleAttested reports whether the given role already holds a quorum credit.
func (r *DeathRecord) HasRoleAttested(role id.EntityRole) bool {
	return r.AttestedRoles()[role]
}

// AttestationAdd classifies the result of adding an attestation.
type AttestationAdd int

const (
	// AttestationCredited granted a new role-level quorum credit.
	AttestationCredited AttestationAdd = iota
	// AttestationRecorded appended to the audit list without a new credit;
	// another entity of the same role had already attested.
	AttestationRecorded
	// AttestationDuplicate left the record unchanged; the same entity
	// already attested.
	AttestationDuplicate
)

// HasEntityAttested reports whether the exact entity already attested.
func (r *DeathRecord) HasEntityAttested(entityID id.EntityID) bool {
	for _, a := range r.Attestations {
		if a.EntityID == entityID {
			return true
		}
	}
	return false
}

// AddAttestation records an attestation. Every distinct entity lands on the
// audit list; quorum credit is capped at one per role. A repeat by the same
// entity is an idempotent no-op.
func (r *DeathRecord) AddAttestation(a Attestation) AttestationAdd {
	if r.HasEntityAttested(a.EntityID) {
		return AttestationDuplicate
	}
	credited := !r.HasRoleAttested(a.Role)
	r.Attestations = append(r.Attestations, a)
	r.UpdatedAt = a.AttestedAt
	if credited {
		return AttestationCredited
	}
	return AttestationRecorded
}

// Finalize transitions the record to Finalized. Only valid from PendingQuorum.
func (r *DeathRecord) Finalize(now time.Time) error {
	if r.Status != StatusPendingQuorum {
		return sentinel.ErrInvalidState
	}
	r.Status = StatusFinalized
	r.FinalizedAt = &now
	r.UpdatedAt = now
	return nil
}

// Reject transitions the record to Rejected. Valid from Draft and
// PendingQuorum only; finalization is irreversible.
func (r *DeathRecord) Reject(reason string, now time.Time) error {
	if r.Status != StatusDraft && r.Status != StatusPendingQuorum {
		return sentinel.ErrInvalidState
	}
	r.Status = StatusRejected
	r.RejectedReason = reason
	r.UpdatedAt = now
	return nil
}

// RecordFinalized is emitted exactly once when a record reaches quorum.
type RecordFinalized struct {
	RecordID    id.RecordID
	SubjectID   id.NationalID
	DateOfDeath time.Time
}
