package engine

import (
	"context"

	"github.com/google/uuid"
)

// ConsistencyReport lists stored-state violations found by a self-check run.
// Findings are reported, never silently corrected; a batch recompute of the
// affected partitions is the repair path.
type ConsistencyReport struct {
	NegativeNetDeltas    []uuid.UUID
	EventsMissingDerived []uuid.UUID
}

// Clean reports whether the check found nothing.
func (r ConsistencyReport) Clean() bool {
	return len(r.NegativeNetDeltas) == 0 && len(r.EventsMissingDerived) == 0
}

// CheckConsistency scans for negative net deltas and events lacking a
// derived record.
func (e *Engine) CheckConsistency(ctx context.Context) (ConsistencyReport, error) {
	var report ConsistencyReport
	err := e.store.InTx(ctx, func(tx Tx) error {
		negative, err := tx.NegativeNetDeltas()
		if err != nil {
			return err
		}
		missing, err := tx.EventsMissingDerived()
		if err != nil {
			return err
		}
		report = ConsistencyReport{
			NegativeNetDeltas:    negative,
			EventsMissingDerived: missing,
		}
		return nil
	})
	if err != nil {
		return ConsistencyReport{}, err
	}
	return report, nil
}
