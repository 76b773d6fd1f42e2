package engine

import "context"

// FlagResult reports one anomaly-flagging run.
type FlagResult struct {
	Flagged int64
	Cleared int64
}

// FlagAnomalies re-derives is_anomaly across all derived records from their
// stored net deltas: clear everything, then set where net > threshold.
// Records with no net delta (first in partition) are never flagged. Running
// it twice with the same threshold yields identical flags.
func (e *Engine) FlagAnomalies(ctx context.Context, thresholdSeconds int64) (FlagResult, error) {
	var res FlagResult
	err := e.store.InTx(ctx, func(tx Tx) error {
		cleared, err := tx.ClearAnomalies()
		if err != nil {
			return err
		}
		flagged, err := tx.FlagAnomalies(thresholdSeconds)
		if err != nil {
			return err
		}
		res = FlagResult{Flagged: flagged, Cleared: cleared}
		return nil
	})
	if err != nil {
		return FlagResult{}, err
	}
	return res, nil
}
