// Package commitlog provides the append-only tamper-evident log that
// attestations and finalization events are committed to before they are
// considered accepted.
package commitlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType classifies committed entries.
type EventType string

const (
	EventRecordCreated   EventType = "record_created"
	EventAttestation     EventType = "attestation"
	EventRecordFinalized EventType = "record_finalized"
	EventRecordRejected  EventType = "record_rejected"
	EventEffect          EventType = "effect_executed"
	EventSessionOutcome  EventType = "session_outcome"
	EventEscalation      EventType = "escalation"
)

// CommitReceipt proves an entry was durably appended.
type CommitReceipt struct {
	CommitID  string
	Committed time.Time
}

// Committer is the LedgerCommit port. Record must return only after the entry
// is durable; callers treat an error as "not accepted".
type Committer interface {
	Record(ctx context.Context, eventType EventType, payload any) (CommitReceipt, error)
}

// Entry is what the in-memory log retains for inspection in tests/dev.
type Entry struct {
	CommitID  string
	EventType EventType
	Payload   json.RawMessage
	Committed time.Time
}

// InMemoryLog is a Committer for tests and development.
type InMemoryLog struct {
	mu      sync.Mutex
	entries []Entry

	// FailNext makes the next Record call fail; lets tests exercise the
	// commit-before-accept contract.
	FailNext bool
}

func NewMemory() *InMemoryLog {
	return &InMemoryLog{}
}

func (l *InMemoryLog) Record(_ context.Context, eventType EventType, payload any) (CommitReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailNext {
		l.FailNext = false
		return CommitReceipt{}, fmt.Errorf("commit log unavailable")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return CommitReceipt{}, fmt.Errorf("marshal commit payload: %w", err)
	}
	receipt := CommitReceipt{CommitID: uuid.NewString(), Committed: time.Now()}
	l.entries = append(l.entries, Entry{
		CommitID:  receipt.CommitID,
		EventType: eventType,
		Payload:   raw,
		Committed: receipt.Committed,
	})
	return receipt, nil
}

// Entries returns a snapshot of everything committed so far.
func (l *InMemoryLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// EntriesOfType filters the snapshot by event type.
func (l *InMemoryLog) EntriesOfType(eventType EventType) []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
