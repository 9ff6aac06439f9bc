package models

import (
	"time"

	id "registrum/pkg/domain"
)

// Schedule is the periodic verification bookkeeping for one subject. Every
// living pensioner has exactly one.
type Schedule struct {
	SubjectID id.NationalID

	// LastVerifiedAt anchors the cadence; enrollment time until the first
	// successful verification.
	LastVerifiedAt time.Time
	NextDueAt      time.Time

	ConsecutiveFailures int

	// Escalated mirrors the registry's in-person-only flag; while set, remote
	// verification refuses to open.
	Escalated   bool
	EscalatedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Due reports whether the subject must verify now.
func (s *Schedule) Due(now time.Time) bool {
	return !now.Before(s.NextDueAt)
}

// DueSoon reports whether the deadline falls inside the notification window.
func (s *Schedule) DueSoon(now time.Time, window time.Duration) bool {
	return !s.Due(now) && !s.NextDueAt.After(now.Add(window))
}
