package engine

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event is a raw production event as appended by the ingestion collaborator.
// Events are immutable once stored; the engine only reads and appends them.
type Event struct {
	// Seq is the store-assigned insertion sequence. It is the tie-break for
	// events sharing the same OccurredAt: predecessor selection orders by
	// (OccurredAt, Seq) so it stays total and deterministic on both the
	// incremental and the batch path.
	Seq          int64
	ID           uuid.UUID
	PartitionKey string
	OccurredAt   time.Time
	Attributes   map[string]interface{}
}

// Interval is a break window excluded from elapsed-time computation.
// Intervals are global (not partition-scoped) and read-only to the engine.
type Interval struct {
	ID       int64
	StartsAt time.Time
	EndsAt   time.Time
}

// DerivedRecord holds the computed deltas for exactly one event.
//
// GrossDeltaSeconds and NetDeltaSeconds are nil if and only if the event is
// the earliest (by OccurredAt, Seq) in its partition at computation time; in
// that case BreakOverlapSeconds is 0.
type DerivedRecord struct {
	EventID             uuid.UUID
	PartitionKey        string
	OccurredAt          time.Time
	GrossDeltaSeconds   *int64
	BreakOverlapSeconds int64
	NetDeltaSeconds     *int64
	IsAnomaly           bool
}

// DailySummary is one rollup row per (day, partition). Records with a nil
// net delta do not contribute to any statistic except via their absence.
type DailySummary struct {
	SummaryDate        time.Time // midnight UTC
	PartitionKey       string
	EventCount         int64
	AvgNetDeltaSeconds float64
	MinNetDeltaSeconds int64
	MaxNetDeltaSeconds int64
	AnomalyCount       int64
}

// Validation errors, surfaced before anything is persisted.
var (
	ErrMissingPartitionKey = errors.New("event partition_key required")
	ErrZeroOccurredAt      = errors.New("event occurred_at required")
	ErrInvalidInterval     = errors.New("interval end must be after start")
)

// ErrConflict is returned by stores when a unit of work lost a serialization
// race. The incremental updater retries it transparently up to a bound.
var ErrConflict = errors.New("concurrent update conflict")

// Validate rejects malformed events before they reach the store.
func (e *Event) Validate() error {
	if e.PartitionKey == "" {
		return ErrMissingPartitionKey
	}
	if e.OccurredAt.IsZero() {
		return ErrZeroOccurredAt
	}
	return nil
}

// Validate rejects non-monotonic break intervals.
func (iv *Interval) Validate() error {
	if !iv.EndsAt.After(iv.StartsAt) {
		return ErrInvalidInterval
	}
	return nil
}

// Before reports whether e precedes other in the canonical partition order,
// i.e. by (OccurredAt, Seq).
func (e *Event) Before(other *Event) bool {
	if !e.OccurredAt.Equal(other.OccurredAt) {
		return e.OccurredAt.Before(other.OccurredAt)
	}
	return e.Seq < other.Seq
}
