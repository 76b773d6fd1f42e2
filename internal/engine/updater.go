package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppendResult reports the outcome of one append-and-derive unit of work.
type AppendResult struct {
	Record    *DerivedRecord
	Duplicate bool
}

// AppendAndDerive appends the event and computes its derived record inside
// one atomic, partition-serialized unit of work: either both the event and
// its record become visible, or neither does.
//
// When the event lands between two already-stored events (out-of-order
// arrival), the derived record of its immediate successor no longer points
// at the right predecessor; it is regenerated in the same unit of work, so
// that the settled state of a partition always equals what a batch recompute
// of the same events would produce.
//
// Serialization conflicts are retried transparently up to the configured
// bound, then surfaced wrapped around ErrConflict.
func (e *Engine) AppendAndDerive(ctx context.Context, ev Event) (AppendResult, error) {
	if err := ev.Validate(); err != nil {
		return AppendResult{}, err
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	ev.OccurredAt = ev.OccurredAt.UTC()

	var lastErr error
	for attempt := 0; attempt < e.appendRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return AppendResult{}, ctx.Err()
			case <-time.After(e.retryBackoff):
			}
		}

		// Seq is assigned inside the unit of work; start each attempt
		// from a clean copy.
		attemptEv := ev

		res, err := e.appendOnce(ctx, &attemptEv)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrConflict) {
			return AppendResult{}, err
		}
		lastErr = err
	}
	return AppendResult{}, fmt.Errorf("append %s after %d attempts: %w",
		ev.ID, e.appendRetries, lastErr)
}

func (e *Engine) appendOnce(ctx context.Context, ev *Event) (AppendResult, error) {
	var res AppendResult
	err := e.store.InPartition(ctx, ev.PartitionKey, func(tx Tx) error {
		inserted, err := tx.InsertEvent(ev)
		if err != nil {
			return err
		}
		if !inserted {
			// Idempotent success: the event (and its record) already
			// exist from an earlier delivery.
			rec, err := tx.DerivedByEvent(ev.ID)
			if err != nil {
				return err
			}
			res = AppendResult{Record: rec, Duplicate: true}
			return nil
		}

		delta, err := computeDelta(tx, ev)
		if err != nil {
			return err
		}
		rec := delta.record(ev)
		if err := tx.InsertDerived(rec); err != nil {
			return err
		}

		if err := e.repairSuccessor(tx, ev); err != nil {
			return err
		}

		res = AppendResult{Record: rec}
		return nil
	})
	if err != nil {
		return AppendResult{}, err
	}
	return res, nil
}

// repairSuccessor regenerates the derived record of the event immediately
// after ev in partition order, whose predecessor is now ev.
func (e *Engine) repairSuccessor(tx Tx, ev *Event) error {
	succ, err := tx.EventAfter(ev.PartitionKey, ev.OccurredAt, ev.Seq)
	if err != nil || succ == nil {
		return err
	}
	delta, err := deltaBetween(tx, ev, succ)
	if err != nil {
		return err
	}
	return tx.UpdateDerived(delta.record(succ))
}

// AddInterval appends a break interval on behalf of the interval
// collaborator. Validation happens before anything is persisted.
func (e *Engine) AddInterval(ctx context.Context, iv Interval) (Interval, error) {
	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	iv.StartsAt = iv.StartsAt.UTC()
	iv.EndsAt = iv.EndsAt.UTC()

	err := e.store.InTx(ctx, func(tx Tx) error {
		return tx.InsertInterval(&iv)
	})
	if err != nil {
		return Interval{}, err
	}
	return iv, nil
}
