package models

import (
	"time"

	id "registrum/pkg/domain"
)

// SessionState is the liveness ceremony state machine. Transitions only
// move forward; terminal states never change.
type SessionState string

const (
	StateInitiated       SessionState = "initiated"
	StateCapturing       SessionState = "capturing"
	StateProofGenerating SessionState = "proof_generating"
	StateSucceeded       SessionState = "succeeded"
	StateFailed          SessionState = "failed"
	StateExpired         SessionState = "expired"
)

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateExpired:
		return true
	}
	return false
}

// validNext encodes the forward-only transition table.
var validNext = map[SessionState][]SessionState{
	StateInitiated:       {StateCapturing, StateFailed, StateExpired},
	StateCapturing:       {StateProofGenerating, StateFailed, StateExpired},
	StateProofGenerating: {StateSucceeded, StateFailed, StateExpired},
}

// CanTransitionTo reports whether the move is on the transition table.
func (s SessionState) CanTransitionTo(next SessionState) bool {
	for _, allowed := range validNext[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Session is one liveness verification ceremony for a subject.
type Session struct {
	ID        id.SessionID
	SubjectID id.NationalID
	State     SessionState

	// Device is the human-readable capture device, parsed from the
	// User-Agent at open time. DeviceFingerprint hashes the stable parts
	// so history can flag a device the subject never used before.
	Device            string
	DeviceFingerprint string

	// AttemptCount is the number of capture artifacts submitted. A session
	// admits a single attempt; the count survives into history for audit.
	AttemptCount int

	Confidence    float64
	FailureReason string

	CreatedAt   time.Time
	ExpiresAt   time.Time
	CompletedAt *time.Time
}

// Expired reports whether the wall clock passed the session deadline.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Outcome is the terminal result handed to schedule bookkeeping.
type Outcome struct {
	SessionID  id.SessionID
	SubjectID  id.NationalID
	State      SessionState
	Confidence float64
	Reason     string
	OccurredAt time.Time
}
