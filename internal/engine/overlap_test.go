package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ts(t *testing.T, clock string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, "2025-03-10T"+clock+"Z")
	if err != nil {
		t.Fatalf("bad test timestamp %q: %v", clock, err)
	}
	return parsed
}

func iv(t *testing.T, start, end string) Interval {
	t.Helper()
	return Interval{StartsAt: ts(t, start), EndsAt: ts(t, end)}
}

func TestOverlapSeconds_NoIntervals(t *testing.T) {
	got := overlapSeconds(nil, ts(t, "08:00:00"), ts(t, "09:00:00"))
	assert.Equal(t, int64(0), got)
}

func TestOverlapSeconds_FullyContainedInterval(t *testing.T) {
	ivs := []Interval{iv(t, "08:10:00", "08:20:00")} // 600s
	got := overlapSeconds(ivs, ts(t, "08:00:00"), ts(t, "09:00:00"))
	assert.Equal(t, int64(600), got)
}

func TestOverlapSeconds_PartialOverlap(t *testing.T) {
	// Interval extends past the range end; only the intersection counts.
	ivs := []Interval{iv(t, "08:50:00", "09:30:00")}
	got := overlapSeconds(ivs, ts(t, "08:00:00"), ts(t, "09:00:00"))
	assert.Equal(t, int64(600), got)

	// Interval starts before the range.
	ivs = []Interval{iv(t, "07:30:00", "08:05:00")}
	got = overlapSeconds(ivs, ts(t, "08:00:00"), ts(t, "09:00:00"))
	assert.Equal(t, int64(300), got)
}

func TestOverlapSeconds_IntervalOutsideRange(t *testing.T) {
	ivs := []Interval{iv(t, "10:00:00", "11:00:00")}
	got := overlapSeconds(ivs, ts(t, "08:00:00"), ts(t, "09:00:00"))
	assert.Equal(t, int64(0), got)
}

func TestOverlapSeconds_OverlappingIntervalsMergedOnce(t *testing.T) {
	// Two intervals sharing 08:15-08:20 must count that region once:
	// union is 08:10-08:30 = 1200s, not 600+900.
	ivs := []Interval{
		iv(t, "08:10:00", "08:20:00"),
		iv(t, "08:15:00", "08:30:00"),
	}
	got := overlapSeconds(ivs, ts(t, "08:00:00"), ts(t, "09:00:00"))
	assert.Equal(t, int64(1200), got)
}

func TestOverlapSeconds_TouchingIntervals(t *testing.T) {
	ivs := []Interval{
		iv(t, "08:10:00", "08:20:00"),
		iv(t, "08:20:00", "08:25:00"),
	}
	got := overlapSeconds(ivs, ts(t, "08:00:00"), ts(t, "09:00:00"))
	assert.Equal(t, int64(900), got)
}

func TestMergeIntervals_Unordered(t *testing.T) {
	ivs := []Interval{
		iv(t, "09:00:00", "09:30:00"),
		iv(t, "08:00:00", "08:10:00"),
		iv(t, "08:05:00", "08:20:00"),
	}
	merged := mergeIntervals(ivs)

	assert.Len(t, merged, 2)
	assert.Equal(t, ts(t, "08:00:00"), merged[0].StartsAt)
	assert.Equal(t, ts(t, "08:20:00"), merged[0].EndsAt)
	assert.Equal(t, ts(t, "09:00:00"), merged[1].StartsAt)
}

func TestMergeIntervals_DoesNotMutateInput(t *testing.T) {
	ivs := []Interval{
		iv(t, "09:00:00", "09:30:00"),
		iv(t, "08:00:00", "08:10:00"),
	}
	mergeIntervals(ivs)
	assert.Equal(t, ts(t, "09:00:00"), ivs[0].StartsAt)
}
