package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registrum/pkg/platform/sentinel"
)

func TestPersonStatus_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from    PersonStatus
		to      PersonStatus
		allowed bool
	}{
		{StatusAlive, StatusDeceased, true},
		{StatusAlive, StatusPensionTerminated, true},
		{StatusDeceased, StatusPensionTerminated, true},
		{StatusDeceased, StatusAlive, false},
		{StatusPensionTerminated, StatusAlive, false},
		{StatusPensionTerminated, StatusDeceased, false},
		{StatusAlive, StatusAlive, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"_to_"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestPerson_Transition(t *testing.T) {
	now := time.Now()
	person := &Person{
		NationalID: "1000000001",
		Status:     StatusAlive,
		Pension:    Pension{Active: true, MonthlyAmountCents: 180000},
	}

	require.NoError(t, person.Transition(StatusDeceased, now))
	assert.Equal(t, StatusDeceased, person.Status)
	assert.True(t, person.Pension.Active, "death alone does not stop the pension")

	require.NoError(t, person.Transition(StatusPensionTerminated, now))
	assert.False(t, person.Pension.Active)

	// Terminal; nothing moves backwards.
	err := person.Transition(StatusAlive, now)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	assert.Equal(t, StatusPensionTerminated, person.Status)
}
