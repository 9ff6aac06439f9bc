package commitlog

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryLog_Record(t *testing.T) {
	ctx := context.Background()
	log := NewMemory()

	receipt, err := log.Record(ctx, EventAttestation, map[string]string{"record_id": "r1"})
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.CommitID)
	assert.False(t, receipt.Committed.IsZero())

	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, EventAttestation, entries[0].EventType)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(entries[0].Payload, &payload))
	assert.Equal(t, "r1", payload["record_id"])
}

func TestInMemoryLog_FailNextFailsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	log := NewMemory()
	log.FailNext = true

	_, err := log.Record(ctx, EventRecordCreated, nil)
	require.Error(t, err)
	assert.Empty(t, log.Entries(), "a failed commit must not append")

	_, err = log.Record(ctx, EventRecordCreated, nil)
	require.NoError(t, err)
	assert.Len(t, log.Entries(), 1)
}

func TestInMemoryLog_EntriesOfType(t *testing.T) {
	ctx := context.Background()
	log := NewMemory()

	_, err := log.Record(ctx, EventAttestation, nil)
	require.NoError(t, err)
	_, err = log.Record(ctx, EventRecordFinalized, nil)
	require.NoError(t, err)
	_, err = log.Record(ctx, EventAttestation, nil)
	require.NoError(t, err)

	assert.Len(t, log.EntriesOfType(EventAttestation), 2)
	assert.Len(t, log.EntriesOfType(EventRecordFinalized), 1)
	assert.Empty(t, log.EntriesOfType(EventEscalation))
}

func TestInMemoryLog_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	log := NewMemory()
	const goroutines = 50

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = log.Record(ctx, EventSessionOutcome, nil)
		}()
	}
	wg.Wait()

	entries := log.Entries()
	assert.Len(t, entries, goroutines)

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		assert.False(t, seen[e.CommitID], "commit IDs must be unique")
		seen[e.CommitID] = true
	}
}
