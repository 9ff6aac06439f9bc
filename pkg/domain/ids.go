package domain

import (
	"regexp"

	"github.com/google/uuid"

	dErrors "registrum/pkg/domain-errors"
)

// Typed identifiers prevent cross-assignment between record, session, and
// certificate IDs at compile time. Construct via the Parse functions at trust
// boundaries; direct casting bypasses validation.

// RecordID identifies a death record in the ledger.
type RecordID uuid.UUID

// SessionID identifies a single liveness verification ceremony.
type SessionID uuid.UUID

// CertificateID identifies an issued death certificate.
type CertificateID uuid.UUID

// EntityID identifies a physical attesting institution (a specific hospital,
// municipality office, or religious registrar).
type EntityID string

func NewRecordID() RecordID   { return RecordID(uuid.New()) }
func NewSessionID() SessionID { return SessionID(uuid.New()) }

func (id RecordID) String() string      { return uuid.UUID(id).String() }
func (id SessionID) String() string     { return uuid.UUID(id).String() }
func (id CertificateID) String() string { return uuid.UUID(id).String() }

func (id RecordID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// ParseRecordID constructs a RecordID from external input.
func ParseRecordID(s string) (RecordID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RecordID(uuid.Nil), dErrors.New(dErrors.CodeBadRequest, "invalid record id")
	}
	return RecordID(u), nil
}

// ParseSessionID constructs a SessionID from external input.
func ParseSessionID(s string) (SessionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return SessionID(uuid.Nil), dErrors.New(dErrors.CodeBadRequest, "invalid session id")
	}
	return SessionID(u), nil
}

// NationalID is the unique, immutable civil identifier of a person. The civil
// registry issues ten-digit numeric identifiers.
type NationalID string

var nationalIDPattern = regexp.MustCompile(`^[0-9]{10}$`)

// ParseNationalID validates external input against the registry format.
func ParseNationalID(s string) (NationalID, error) {
	if !nationalIDPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeBadRequest, "national id must be ten digits")
	}
	return NationalID(s), nil
}

func (n NationalID) String() string { return string(n) }
