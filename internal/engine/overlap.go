package engine

import (
	"sort"
	"time"
)

// mergeIntervals collapses overlapping or touching intervals into their
// union. Break intervals may overlap each other in the store; summing raw
// intersections would double-count the shared region, so every overlap
// computation works on the merged set.
func mergeIntervals(ivs []Interval) []Interval {
	if len(ivs) <= 1 {
		return ivs
	}

	sorted := make([]Interval, len(ivs))
	copy(sorted, ivs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartsAt.Before(sorted[j].StartsAt)
	})

	merged := sorted[:1]
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !iv.StartsAt.After(last.EndsAt) {
			if iv.EndsAt.After(last.EndsAt) {
				last.EndsAt = iv.EndsAt
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// overlapSeconds returns the total whole seconds of [start, end] covered by
// the given intervals, after merging them. Zero when the range touches no
// interval; exactly the intersection length for partial overlaps.
func overlapSeconds(ivs []Interval, start, end time.Time) int64 {
	var total int64
	for _, iv := range mergeIntervals(ivs) {
		s := iv.StartsAt
		if start.After(s) {
			s = start
		}
		e := iv.EndsAt
		if end.Before(e) {
			e = end
		}
		if e.After(s) {
			total += int64(e.Sub(s) / time.Second)
		}
	}
	return total
}

// Overlap computes the total break seconds intersecting [start, end] against
// the intervals visible in the unit of work. Read-only.
func Overlap(tx Tx, start, end time.Time) (int64, error) {
	ivs, err := tx.IntervalsOverlapping(start, end)
	if err != nil {
		return 0, err
	}
	return overlapSeconds(ivs, start, end), nil
}
