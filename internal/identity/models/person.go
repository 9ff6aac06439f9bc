package models

import (
	"time"

	id "registrum/pkg/domain"
	"registrum/pkg/platform/sentinel"
)

// PersonStatus is the monotonic civil status of a person. Persons are never
// deleted; a terminal status supersedes the previous one.
type PersonStatus string

const (
	StatusAlive             PersonStatus = "alive"
	StatusDeceased          PersonStatus = "deceased"
	StatusPensionTerminated PersonStatus = "pension_terminated"
)

// rank orders statuses; transitions may only move to a higher rank.
func (s PersonStatus) rank() int {
	switch s {
	case StatusAlive:
		return 0
	case StatusDeceased:
		return 1
	case StatusPensionTerminated:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving to next preserves monotonicity.
func (s PersonStatus) CanTransitionTo(next PersonStatus) bool {
	return next.rank() > s.rank()
}

// Pension holds the benefit attributes of a pensioner.
type Pension struct {
	Active bool
	// MonthlyAmountCents is the benefit in euro cents.
	MonthlyAmountCents int64
}

// Person is the authoritative identity tracked by the registry.
type Person struct {
	NationalID  id.NationalID
	Name        string
	DateOfBirth time.Time
	Status      PersonStatus
	Pension     Pension

	// InPersonOnly blocks remote liveness verification after repeated
	// failure; cleared only by the external in-person workflow.
	InPersonOnly bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transition applies a status change, enforcing monotonicity.
func (p *Person) Transition(next PersonStatus, now time.Time) error {
	if !p.Status.CanTransitionTo(next) {
		return sentinel.ErrInvalidState
	}
	p.Status = next
	if next == StatusPensionTerminated {
		p.Pension.Active = false
	}
	p.UpdatedAt = now
	return nil
}
