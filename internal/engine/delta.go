package engine

import "time"

// Delta is the result of computing an event's elapsed time against its
// partition predecessor. All fields are nil/zero when no predecessor exists.
type Delta struct {
	Predecessor         *Event
	GrossDeltaSeconds   *int64
	BreakOverlapSeconds int64
	NetDeltaSeconds     *int64
}

// computeDelta finds the event's predecessor within its partition and
// derives gross and net elapsed time. Predecessor = greatest (OccurredAt,
// Seq) strictly below the event's own; the same rule the batch path uses.
func computeDelta(tx Tx, e *Event) (Delta, error) {
	pred, err := tx.EventBefore(e.PartitionKey, e.OccurredAt, e.Seq)
	if err != nil {
		return Delta{}, err
	}
	if pred == nil {
		return Delta{}, nil
	}
	return deltaBetween(tx, pred, e)
}

// deltaBetween derives the delta of cur given its known predecessor. The
// batch recomputer calls this directly while walking a partition in order.
// Net may come out negative only if stored state violates interval
// invariants; callers surface it rather than clamping.
func deltaBetween(tx Tx, pred, cur *Event) (Delta, error) {
	gross := int64(cur.OccurredAt.Sub(pred.OccurredAt) / time.Second)

	overlap, err := Overlap(tx, pred.OccurredAt, cur.OccurredAt)
	if err != nil {
		return Delta{}, err
	}
	net := gross - overlap

	return Delta{
		Predecessor:         pred,
		GrossDeltaSeconds:   &gross,
		BreakOverlapSeconds: overlap,
		NetDeltaSeconds:     &net,
	}, nil
}

// record materializes the delta as the event's derived record. IsAnomaly is
// always written false; flagging is re-derived separately from stored nets.
func (d Delta) record(e *Event) *DerivedRecord {
	return &DerivedRecord{
		EventID:             e.ID,
		PartitionKey:        e.PartitionKey,
		OccurredAt:          e.OccurredAt,
		GrossDeltaSeconds:   d.GrossDeltaSeconds,
		BreakOverlapSeconds: d.BreakOverlapSeconds,
		NetDeltaSeconds:     d.NetDeltaSeconds,
	}
}
