package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// RecomputeResult reports one completed recompute scope.
type RecomputeResult struct {
	RecordsWritten int64
	Partitions     int
	Duration       time.Duration
}

// Recompute regenerates every derived record of one partition from its
// events alone: delete everything, then walk the events in (OccurredAt, Seq)
// order deriving pairwise. Runs as a single partition-locked unit of work,
// so a failure leaves the previous records untouched and concurrent appends
// to the same partition wait rather than interleave.
func (e *Engine) Recompute(ctx context.Context, partitionKey string) (RecomputeResult, error) {
	if partitionKey == "" {
		return RecomputeResult{}, ErrMissingPartitionKey
	}

	start := time.Now()
	var written int64

	err := e.store.InPartition(ctx, partitionKey, func(tx Tx) error {
		if _, err := tx.DeleteDerived(partitionKey); err != nil {
			return err
		}

		events, err := tx.EventsInPartition(partitionKey)
		if err != nil {
			return err
		}

		var pred *Event
		for i := range events {
			ev := &events[i]

			var delta Delta
			if pred != nil {
				delta, err = deltaBetween(tx, pred, ev)
				if err != nil {
					return err
				}
			}
			if err := tx.InsertDerived(delta.record(ev)); err != nil {
				return err
			}
			written++
			pred = ev
		}
		return nil
	})
	if err != nil {
		return RecomputeResult{}, err
	}

	return RecomputeResult{
		RecordsWritten: written,
		Partitions:     1,
		Duration:       time.Since(start),
	}, nil
}

// RecomputeAll recomputes every partition. Partitions are independent, so
// they run concurrently; each one is still all-or-nothing on its own.
func (e *Engine) RecomputeAll(ctx context.Context) (RecomputeResult, error) {
	start := time.Now()

	keys, err := e.store.Partitions(ctx)
	if err != nil {
		return RecomputeResult{}, err
	}

	results := make([]RecomputeResult, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			res, err := e.Recompute(gctx, key)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RecomputeResult{}, err
	}

	total := RecomputeResult{Partitions: len(keys), Duration: time.Since(start)}
	for _, r := range results {
		total.RecordsWritten += r.RecordsWritten
	}
	return total, nil
}
