package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionStateTransitions(t *testing.T) {
	assert.True(t, StateInitiated.CanTransitionTo(StateCapturing))
	assert.True(t, StateCapturing.CanTransitionTo(StateProofGenerating))
	assert.True(t, StateProofGenerating.CanTransitionTo(StateSucceeded))

	// Every phase can fail or expire.
	for _, state := range []SessionState{StateInitiated, StateCapturing, StateProofGenerating} {
		assert.True(t, state.CanTransitionTo(StateFailed), state)
		assert.True(t, state.CanTransitionTo(StateExpired), state)
	}

	// No skipping forward, no moving backward, no leaving terminal states.
	assert.False(t, StateInitiated.CanTransitionTo(StateProofGenerating))
	assert.False(t, StateInitiated.CanTransitionTo(StateSucceeded))
	assert.False(t, StateCapturing.CanTransitionTo(StateInitiated))
	assert.False(t, StateSucceeded.CanTransitionTo(StateFailed))
	assert.False(t, StateExpired.CanTransitionTo(StateCapturing))
}

func TestSessionState_Terminal(t *testing.T) {
	assert.False(t, StateInitiated.Terminal())
	assert.False(t, StateCapturing.Terminal())
	assert.False(t, StateProofGenerating.Terminal())
	assert.True(t, StateSucceeded.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateExpired.Terminal())
}

func TestSessionExpired(t *testing.T) {
	deadline := time.Now()
	session := &Session{ExpiresAt: deadline}
	assert.False(t, session.Expired(deadline.Add(-time.Second)))
	assert.True(t, session.Expired(deadline))
	assert.True(t, session.Expired(deadline.Add(time.Second)))
}
