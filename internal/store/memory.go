package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldops/cycletime/internal/engine"
)

// MemoryStore is an in-process engine.Store for tests and local development.
// Every unit of work serializes on one lock and runs against a snapshot that
// is swapped in on success, so units are atomic and partition-exclusive by
// construction. Not suitable for multi-process deployments.
type MemoryStore struct {
	mu    sync.Mutex
	state memState
}

type memState struct {
	nextSeq        int64
	nextIntervalID int64
	events         []engine.Event
	eventSeq       map[uuid.UUID]int64
	derived        map[uuid.UUID]engine.DerivedRecord
	intervals      []engine.Interval
	summaries      map[string]engine.DailySummary
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memState{
		nextSeq:        1,
		nextIntervalID: 1,
		eventSeq:       map[uuid.UUID]int64{},
		derived:        map[uuid.UUID]engine.DerivedRecord{},
		summaries:      map[string]engine.DailySummary{},
	}}
}

func (s *memState) clone() memState {
	c := memState{
		nextSeq:        s.nextSeq,
		nextIntervalID: s.nextIntervalID,
		events:         append([]engine.Event(nil), s.events...),
		eventSeq:       make(map[uuid.UUID]int64, len(s.eventSeq)),
		derived:        make(map[uuid.UUID]engine.DerivedRecord, len(s.derived)),
		intervals:      append([]engine.Interval(nil), s.intervals...),
		summaries:      make(map[string]engine.DailySummary, len(s.summaries)),
	}
	for k, v := range s.eventSeq {
		c.eventSeq[k] = v
	}
	for k, v := range s.derived {
		c.derived[k] = v
	}
	for k, v := range s.summaries {
		c.summaries[k] = v
	}
	return c
}

// Ping implements the readiness probe; an in-process store is always ready.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// InPartition implements engine.Store. Partition scoping is subsumed by the
// global lock.
func (s *MemoryStore) InPartition(ctx context.Context, partitionKey string, fn func(engine.Tx) error) error {
	return s.InTx(ctx, fn)
}

// InTx implements engine.Store: run fn against a snapshot, commit on success.
func (s *MemoryStore) InTx(ctx context.Context, fn func(engine.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	if err := fn(&memTx{state: &next}); err != nil {
		return err
	}
	s.state = next
	return nil
}

// Partitions implements engine.Store.
func (s *MemoryStore) Partitions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]bool{}
	var keys []string
	for _, ev := range s.state.events {
		if !seen[ev.PartitionKey] {
			seen[ev.PartitionKey] = true
			keys = append(keys, ev.PartitionKey)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// memTx is one unit of work over a state snapshot.
type memTx struct {
	state *memState
}

func (t *memTx) InsertEvent(e *engine.Event) (bool, error) {
	if _, exists := t.state.eventSeq[e.ID]; exists {
		return false, nil
	}
	e.Seq = t.state.nextSeq
	t.state.nextSeq++
	t.state.events = append(t.state.events, *e)
	t.state.eventSeq[e.ID] = e.Seq
	return true, nil
}

func (t *memTx) EventBefore(partitionKey string, at time.Time, seq int64) (*engine.Event, error) {
	probe := engine.Event{OccurredAt: at, Seq: seq}
	var best *engine.Event
	for i := range t.state.events {
		ev := &t.state.events[i]
		if ev.PartitionKey != partitionKey || !ev.Before(&probe) {
			continue
		}
		if best == nil || best.Before(ev) {
			best = ev
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (t *memTx) EventAfter(partitionKey string, at time.Time, seq int64) (*engine.Event, error) {
	probe := engine.Event{OccurredAt: at, Seq: seq}
	var best *engine.Event
	for i := range t.state.events {
		ev := &t.state.events[i]
		if ev.PartitionKey != partitionKey || !probe.Before(ev) {
			continue
		}
		if best == nil || ev.Before(best) {
			best = ev
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (t *memTx) EventsInPartition(partitionKey string) ([]engine.Event, error) {
	var events []engine.Event
	for _, ev := range t.state.events {
		if ev.PartitionKey == partitionKey {
			events = append(events, ev)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Before(&events[j])
	})
	return events, nil
}

func (t *memTx) IntervalsOverlapping(start, end time.Time) ([]engine.Interval, error) {
	var out []engine.Interval
	for _, iv := range t.state.intervals {
		if iv.EndsAt.After(start) && iv.StartsAt.Before(end) {
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
	return out, nil
}

func (t *memTx) InsertInterval(iv *engine.Interval) error {
	iv.ID = t.state.nextIntervalID
	t.state.nextIntervalID++
	t.state.intervals = append(t.state.intervals, *iv)
	return nil
}

func (t *memTx) InsertDerived(r *engine.DerivedRecord) error {
	if _, exists := t.state.derived[r.EventID]; exists {
		return fmt.Errorf("derived record for event %s already exists", r.EventID)
	}
	t.state.derived[r.EventID] = *r
	return nil
}

func (t *memTx) UpdateDerived(r *engine.DerivedRecord) error {
	if _, exists := t.state.derived[r.EventID]; !exists {
		return fmt.Errorf("derived record for event %s not found", r.EventID)
	}
	t.state.derived[r.EventID] = *r
	return nil
}

func (t *memTx) DeleteDerived(partitionKey string) (int64, error) {
	var n int64
	for id, r := range t.state.derived {
		if r.PartitionKey == partitionKey {
			delete(t.state.derived, id)
			n++
		}
	}
	return n, nil
}

func (t *memTx) DerivedInPartition(partitionKey string) ([]engine.DerivedRecord, error) {
	var records []engine.DerivedRecord
	for _, r := range t.state.derived {
		if r.PartitionKey == partitionKey {
			records = append(records, r)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Before(b.OccurredAt)
		}
		return t.state.eventSeq[a.EventID] < t.state.eventSeq[b.EventID]
	})
	return records, nil
}

func (t *memTx) DerivedByEvent(eventID uuid.UUID) (*engine.DerivedRecord, error) {
	r, ok := t.state.derived[eventID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (t *memTx) DerivedOnDate(date time.Time) ([]engine.DerivedRecord, error) {
	dayStart := date.UTC()
	dayEnd := dayStart.Add(24 * time.Hour)

	var records []engine.DerivedRecord
	for _, r := range t.state.derived {
		at := r.OccurredAt.UTC()
		if !at.Before(dayStart) && at.Before(dayEnd) {
			records = append(records, r)
		}
	}
	return records, nil
}

func (t *memTx) ClearAnomalies() (int64, error) {
	var n int64
	for id, r := range t.state.derived {
		if r.IsAnomaly {
			r.IsAnomaly = false
			t.state.derived[id] = r
			n++
		}
	}
	return n, nil
}

func (t *memTx) FlagAnomalies(thresholdSeconds int64) (int64, error) {
	var n int64
	for id, r := range t.state.derived {
		if r.NetDeltaSeconds != nil && *r.NetDeltaSeconds > thresholdSeconds {
			r.IsAnomaly = true
			t.state.derived[id] = r
			n++
		}
	}
	return n, nil
}

func summaryKey(date time.Time, partitionKey string) string {
	return date.UTC().Format("2006-01-02") + "|" + partitionKey
}

func (t *memTx) ReplaceSummaries(date time.Time, rows []engine.DailySummary) error {
	day := date.UTC().Format("2006-01-02")
	for k := range t.state.summaries {
		if len(k) >= len(day) && k[:len(day)] == day {
			delete(t.state.summaries, k)
		}
	}
	for _, row := range rows {
		t.state.summaries[summaryKey(row.SummaryDate, row.PartitionKey)] = row
	}
	return nil
}

func (t *memTx) SummariesOn(date time.Time) ([]engine.DailySummary, error) {
	day := date.UTC().Format("2006-01-02")
	var rows []engine.DailySummary
	for k, s := range t.state.summaries {
		if len(k) >= len(day) && k[:len(day)] == day {
			rows = append(rows, s)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].PartitionKey < rows[j].PartitionKey
	})
	return rows, nil
}

func (t *memTx) NegativeNetDeltas() ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, r := range t.state.derived {
		if r.NetDeltaSeconds != nil && *r.NetDeltaSeconds < 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (t *memTx) EventsMissingDerived() ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, ev := range t.state.events {
		if _, ok := t.state.derived[ev.ID]; !ok {
			ids = append(ids, ev.ID)
		}
	}
	return ids, nil
}
