package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the durable state the engine operates on. Implementations must
// guarantee that InPartition executions targeting the same partition key are
// mutually exclusive and atomic: either every write made by fn becomes
// durably visible, or none does. Units of work for different partitions must
// not contend.
type Store interface {
	// InPartition runs fn as one atomic unit of work holding an exclusive
	// lock on the given partition. Returns ErrConflict (possibly wrapped)
	// when the unit lost a serialization race and should be retried.
	InPartition(ctx context.Context, partitionKey string, fn func(Tx) error) error

	// InTx runs fn as one atomic unit of work without partition scoping.
	// Used by the flagger, the aggregator and reporting reads.
	InTx(ctx context.Context, fn func(Tx) error) error

	// Partitions lists every partition key that has at least one event.
	Partitions(ctx context.Context) ([]string, error)
}

// Tx is the set of operations available inside a unit of work.
type Tx interface {
	// InsertEvent appends the event, assigning Seq (and ID when zero).
	// Returns false without writing when an event with the same ID exists.
	InsertEvent(e *Event) (bool, error)

	// EventBefore returns the event in the partition with the greatest
	// (OccurredAt, Seq) strictly less than (at, seq), or nil.
	EventBefore(partitionKey string, at time.Time, seq int64) (*Event, error)

	// EventAfter returns the event in the partition with the smallest
	// (OccurredAt, Seq) strictly greater than (at, seq), or nil.
	EventAfter(partitionKey string, at time.Time, seq int64) (*Event, error)

	// EventsInPartition returns all events of a partition ordered by
	// (OccurredAt, Seq).
	EventsInPartition(partitionKey string) ([]Event, error)

	// IntervalsOverlapping returns every break interval intersecting
	// [start, end), in StartsAt order.
	IntervalsOverlapping(start, end time.Time) ([]Interval, error)

	InsertInterval(iv *Interval) error

	InsertDerived(r *DerivedRecord) error

	// UpdateDerived regenerates the delta fields of an existing record.
	UpdateDerived(r *DerivedRecord) error

	// DeleteDerived removes all derived records of a partition and returns
	// how many were removed.
	DeleteDerived(partitionKey string) (int64, error)

	// DerivedInPartition returns derived records ordered by (OccurredAt,
	// event Seq).
	DerivedInPartition(partitionKey string) ([]DerivedRecord, error)

	// DerivedByEvent returns the derived record for an event, or nil.
	DerivedByEvent(eventID uuid.UUID) (*DerivedRecord, error)

	// DerivedOnDate returns derived records whose OccurredAt falls on the
	// given UTC date.
	DerivedOnDate(date time.Time) ([]DerivedRecord, error)

	// ClearAnomalies resets is_anomaly on every derived record.
	ClearAnomalies() (int64, error)

	// FlagAnomalies sets is_anomaly where net delta is non-nil and greater
	// than threshold, returning the number of records flagged.
	FlagAnomalies(thresholdSeconds int64) (int64, error)

	// ReplaceSummaries deletes all summaries for the date and inserts rows.
	ReplaceSummaries(date time.Time, rows []DailySummary) error

	// SummariesOn returns summaries for the date ordered by partition key.
	SummariesOn(date time.Time) ([]DailySummary, error)

	// NegativeNetDeltas returns event IDs of records with net delta < 0.
	NegativeNetDeltas() ([]uuid.UUID, error)

	// EventsMissingDerived returns IDs of events without a derived record.
	EventsMissingDerived() ([]uuid.UUID, error)
}
