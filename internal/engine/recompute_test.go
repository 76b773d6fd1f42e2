package engine_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/cycletime/internal/engine"
)

func TestRecompute_MatchesIncrementalOutput(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	addInterval(t, eng, at(t, "08:02:00"), at(t, "08:03:00"))
	mustAppend(t, eng, "shift-a", at(t, "08:00:00"))
	mustAppend(t, eng, "shift-a", at(t, "08:05:30"))
	mustAppend(t, eng, "shift-a", at(t, "08:11:00"))

	before, err := eng.RecordsInPartition(ctx, "shift-a")
	require.NoError(t, err)

	res, err := eng.Recompute(ctx, "shift-a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.RecordsWritten)

	after, err := eng.RecordsInPartition(ctx, "shift-a")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRecompute_RepairsCorruptedRecords(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	mustAppend(t, eng, "shift-a", at(t, "08:00:00"))
	mustAppend(t, eng, "shift-a", at(t, "08:05:00"))

	// Anomaly flags are re-derived separately, so recompute resets them.
	_, err := eng.FlagAnomalies(ctx, 100)
	require.NoError(t, err)

	_, err = eng.Recompute(ctx, "shift-a")
	require.NoError(t, err)

	records, err := eng.RecordsInPartition(ctx, "shift-a")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []*int64{nil, i64(300)}, nets(records))
	assert.False(t, records[1].IsAnomaly)
}

func TestRecompute_UnknownPartitionWritesNothing(t *testing.T) {
	eng := newTestEngine(t)

	res, err := eng.Recompute(context.Background(), "no-such-shift")
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.RecordsWritten)
}

func TestRecompute_RequiresPartitionKey(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.Recompute(context.Background(), "")
	assert.ErrorIs(t, err, engine.ErrMissingPartitionKey)
}

func TestRecomputeAll_CoversEveryPartition(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	mustAppend(t, eng, "shift-a", at(t, "08:00:00"))
	mustAppend(t, eng, "shift-a", at(t, "08:05:00"))
	mustAppend(t, eng, "shift-b", at(t, "09:00:00"))

	res, err := eng.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Partitions)
	assert.Equal(t, int64(3), res.RecordsWritten)
}

// TestEquivalence_RandomConcurrentInterleavings is the central correctness
// property: for any arrival order of a partition's events, including
// concurrent appends, the settled derived records equal what a from-scratch
// recompute of the same events produces.
func TestEquivalence_RandomConcurrentInterleavings(t *testing.T) {
	const (
		rounds    = 20
		numEvents = 30
		writers   = 4
	)

	for round := 0; round < rounds; round++ {
		rng := rand.New(rand.NewSource(int64(round)))
		eng := newTestEngine(t)
		ctx := context.Background()

		// A couple of break intervals inside the event window.
		addInterval(t, eng, at(t, "08:30:00"), at(t, "08:40:00"))
		addInterval(t, eng, at(t, "10:00:00"), at(t, "10:05:00"))

		// Random timestamps, coarse enough to force occasional ties.
		base := at(t, "08:00:00")
		events := make([]engine.Event, numEvents)
		for i := range events {
			events[i] = engine.Event{
				PartitionKey: "shift-a",
				OccurredAt:   base.Add(time.Duration(rng.Intn(4*3600)) * time.Second),
			}
		}
		rng.Shuffle(len(events), func(i, j int) {
			events[i], events[j] = events[j], events[i]
		})

		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := w; i < numEvents; i += writers {
					_, err := eng.AppendAndDerive(ctx, events[i])
					assert.NoError(t, err)
				}
			}(w)
		}
		wg.Wait()

		incremental, err := eng.RecordsInPartition(ctx, "shift-a")
		require.NoError(t, err)
		require.Len(t, incremental, numEvents)

		_, err = eng.Recompute(ctx, "shift-a")
		require.NoError(t, err)

		batch, err := eng.RecordsInPartition(ctx, "shift-a")
		require.NoError(t, err)

		require.Equal(t, batch, incremental, "round %d diverged", round)

		// First-in-partition invariant holds regardless of arrival order.
		assert.Nil(t, incremental[0].NetDeltaSeconds)
		for _, r := range incremental[1:] {
			require.NotNil(t, r.NetDeltaSeconds)
			assert.GreaterOrEqual(t, *r.NetDeltaSeconds, int64(0))
		}

		report, err := eng.CheckConsistency(ctx)
		require.NoError(t, err)
		assert.True(t, report.Clean())
	}
}
