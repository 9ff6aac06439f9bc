package models

import (
	"time"

	id "registrum/pkg/domain"
)

// Effect names one downstream consequence of a finalized death record.
type Effect string

const (
	EffectIssueCertificate Effect = "issue_certificate"
	EffectStopPension      Effect = "stop_pension"
)

// Status is the per-record effect execution view. Certificate and pension
// flags flip exactly once; a record with Escalated set is frozen until an
// operator resolves it.
type Status struct {
	RecordID  id.RecordID
	SubjectID id.NationalID

	CertificateIssued bool
	CertificateID     id.CertificateID
	PensionStopped    bool

	Escalated        bool
	EscalationReason string

	Attempts  int
	UpdatedAt time.Time
}
