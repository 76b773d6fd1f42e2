package engine

import (
	"context"
	"sort"
	"time"
)

// AggregateResult reports one daily rollup run.
type AggregateResult struct {
	PartitionsProcessed int
	Duration            time.Duration
}

// Aggregate regenerates the daily summaries for one UTC date:
// delete-then-insert, so re-running for the same date is a no-op as long as
// the underlying derived records are unchanged. Records with no net delta
// (first in partition) are excluded entirely.
func (e *Engine) Aggregate(ctx context.Context, date time.Time) (AggregateResult, error) {
	start := time.Now()
	day := midnightUTC(date)

	var processed int
	err := e.store.InTx(ctx, func(tx Tx) error {
		records, err := tx.DerivedOnDate(day)
		if err != nil {
			return err
		}

		rows := summarize(day, records)
		processed = len(rows)
		return tx.ReplaceSummaries(day, rows)
	})
	if err != nil {
		return AggregateResult{}, err
	}

	return AggregateResult{
		PartitionsProcessed: processed,
		Duration:            time.Since(start),
	}, nil
}

// summarize groups one day's derived records by partition and computes
// count/avg/min/max of net deltas plus the anomaly count. Rows come back
// sorted by partition key so output is stable.
func summarize(day time.Time, records []DerivedRecord) []DailySummary {
	byPartition := make(map[string]*DailySummary)
	totals := make(map[string]int64)

	for _, r := range records {
		if r.NetDeltaSeconds == nil {
			continue
		}
		net := *r.NetDeltaSeconds

		s, ok := byPartition[r.PartitionKey]
		if !ok {
			s = &DailySummary{
				SummaryDate:        day,
				PartitionKey:       r.PartitionKey,
				MinNetDeltaSeconds: net,
				MaxNetDeltaSeconds: net,
			}
			byPartition[r.PartitionKey] = s
		}

		s.EventCount++
		totals[r.PartitionKey] += net
		if net < s.MinNetDeltaSeconds {
			s.MinNetDeltaSeconds = net
		}
		if net > s.MaxNetDeltaSeconds {
			s.MaxNetDeltaSeconds = net
		}
		if r.IsAnomaly {
			s.AnomalyCount++
		}
	}

	rows := make([]DailySummary, 0, len(byPartition))
	for key, s := range byPartition {
		s.AvgNetDeltaSeconds = float64(totals[key]) / float64(s.EventCount)
		rows = append(rows, *s)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].PartitionKey < rows[j].PartitionKey
	})
	return rows
}

// midnightUTC truncates a timestamp to its UTC calendar date.
func midnightUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
