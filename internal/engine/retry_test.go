package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/cycletime/internal/engine"
	"github.com/fieldops/cycletime/internal/store"
)

// conflictStore fails the first `failures` partition units of work with
// ErrConflict before delegating, imitating a store that keeps losing
// serialization races.
type conflictStore struct {
	*store.MemoryStore
	failures int
	calls    int
}

func (s *conflictStore) InPartition(ctx context.Context, key string, fn func(engine.Tx) error) error {
	s.calls++
	if s.calls <= s.failures {
		return fmt.Errorf("serialize partition %s: %w", key, engine.ErrConflict)
	}
	return s.MemoryStore.InPartition(ctx, key, fn)
}

func TestAppendAndDerive_RetriesConflictsTransparently(t *testing.T) {
	st := &conflictStore{MemoryStore: store.NewMemoryStore(), failures: 2}
	eng := engine.New(st,
		engine.WithAppendRetries(3),
		engine.WithRetryBackoff(time.Millisecond))

	res, err := eng.AppendAndDerive(context.Background(), engine.Event{
		PartitionKey: "shift-a",
		OccurredAt:   at(t, "08:00:00"),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.False(t, res.Duplicate)
	assert.Equal(t, 3, st.calls)

	// The event landed exactly once despite the retries.
	records, err := eng.RecordsInPartition(context.Background(), "shift-a")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].NetDeltaSeconds)
}

func TestAppendAndDerive_SurfacesConflictAfterRetriesExhausted(t *testing.T) {
	st := &conflictStore{MemoryStore: store.NewMemoryStore(), failures: 100}
	eng := engine.New(st,
		engine.WithAppendRetries(2),
		engine.WithRetryBackoff(time.Millisecond))

	_, err := eng.AppendAndDerive(context.Background(), engine.Event{
		PartitionKey: "shift-a",
		OccurredAt:   at(t, "08:00:00"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrConflict))
	assert.Equal(t, 2, st.calls)
}

func TestAppendAndDerive_NonConflictErrorNotRetried(t *testing.T) {
	boom := errors.New("connection reset")
	st := &failingStore{MemoryStore: store.NewMemoryStore(), err: boom}
	eng := engine.New(st,
		engine.WithAppendRetries(3),
		engine.WithRetryBackoff(time.Millisecond))

	_, err := eng.AppendAndDerive(context.Background(), engine.Event{
		PartitionKey: "shift-a",
		OccurredAt:   at(t, "08:00:00"),
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, st.calls)
}

// failingStore fails every partition unit of work with a fixed error.
type failingStore struct {
	*store.MemoryStore
	err   error
	calls int
}

func (s *failingStore) InPartition(ctx context.Context, key string, fn func(engine.Tx) error) error {
	s.calls++
	return s.err
}
