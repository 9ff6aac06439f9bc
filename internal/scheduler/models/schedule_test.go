package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedule_Due(t *testing.T) {
	now := time.Now()
	schedule := &Schedule{SubjectID: "1000000001", NextDueAt: now}

	assert.True(t, schedule.Due(now), "deadline itself counts as due")
	assert.True(t, schedule.Due(now.Add(time.Hour)))
	assert.False(t, schedule.Due(now.Add(-time.Second)))
}

func TestSchedule_DueSoon(t *testing.T) {
	now := time.Now()
	window := 14 * 24 * time.Hour

	cases := []struct {
		name    string
		nextDue time.Time
		want    bool
	}{
		{"already due", now.Add(-time.Hour), false},
		{"inside window", now.Add(7 * 24 * time.Hour), true},
		{"at window edge", now.Add(window), true},
		{"beyond window", now.Add(window + time.Minute), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			schedule := &Schedule{SubjectID: "1000000001", NextDueAt: tc.nextDue}
			assert.Equal(t, tc.want, schedule.DueSoon(now, window))
		})
	}
}
