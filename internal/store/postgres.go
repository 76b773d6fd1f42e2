package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldops/cycletime/internal/engine"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore is the durable persistence layer: events, break intervals,
// derived records and daily summaries.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast if DB is unreachable.
func NewPostgresStore(dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema() error {
	_, err := p.pool.Exec(context.Background(), schemaSQL)
	return err
}

// Ping is used by readiness endpoint to validate DB connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// InPartition implements engine.Store. The advisory transaction lock keyed
// by the partition string serializes concurrent units of work touching the
// same partition; it releases automatically at commit or rollback. Units for
// different partitions take different keys and never contend.
func (p *PostgresStore) InPartition(ctx context.Context, partitionKey string, fn func(engine.Tx) error) error {
	return p.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, partitionKey)
		if err != nil {
			return err
		}
		return fn(&pgTx{ctx: ctx, tx: tx})
	})
}

// InTx implements engine.Store.
func (p *PostgresStore) InTx(ctx context.Context, fn func(engine.Tx) error) error {
	return p.inTx(ctx, func(tx pgx.Tx) error {
		return fn(&pgTx{ctx: ctx, tx: tx})
	})
}

func (p *PostgresStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return translateErr(err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return translateErr(err)
	}
	return translateErr(tx.Commit(ctx))
}

// translateErr maps Postgres serialization failures and deadlocks onto
// engine.ErrConflict so the updater can retry them.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("pg %s: %w", pgErr.Code, engine.ErrConflict)
		}
	}
	return err
}

// Partitions implements engine.Store.
func (p *PostgresStore) Partitions(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT DISTINCT partition_key FROM events ORDER BY partition_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// pgTx implements engine.Tx over one pgx transaction.
type pgTx struct {
	ctx context.Context
	tx  pgx.Tx
}

func (t *pgTx) InsertEvent(e *engine.Event) (bool, error) {
	if e.Attributes == nil {
		e.Attributes = map[string]interface{}{}
	}
	attrsJSON, err := json.Marshal(e.Attributes)
	if err != nil {
		return false, err
	}

	// Duplicate deliveries hit the unique id constraint; RETURNING yields
	// no row in that case, which the caller treats as idempotent success.
	err = t.tx.QueryRow(t.ctx, `
		INSERT INTO events(id, partition_key, occurred_at, attributes)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO NOTHING
		RETURNING seq
	`, e.ID, e.PartitionKey, e.OccurredAt, attrsJSON).Scan(&e.Seq)

	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, err
}

const eventColumns = `seq, id, partition_key, occurred_at, attributes`

func scanEvent(row pgx.Row) (*engine.Event, error) {
	var e engine.Event
	var attrsJSON []byte
	err := row.Scan(&e.Seq, &e.ID, &e.PartitionKey, &e.OccurredAt, &attrsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(attrsJSON) > 0 {
		if err := json.Unmarshal(attrsJSON, &e.Attributes); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

func (t *pgTx) EventBefore(partitionKey string, at time.Time, seq int64) (*engine.Event, error) {
	return scanEvent(t.tx.QueryRow(t.ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE partition_key = $1
		  AND (occurred_at, seq) < ($2, $3)
		ORDER BY occurred_at DESC, seq DESC
		LIMIT 1
	`, partitionKey, at, seq))
}

func (t *pgTx) EventAfter(partitionKey string, at time.Time, seq int64) (*engine.Event, error) {
	return scanEvent(t.tx.QueryRow(t.ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE partition_key = $1
		  AND (occurred_at, seq) > ($2, $3)
		ORDER BY occurred_at ASC, seq ASC
		LIMIT 1
	`, partitionKey, at, seq))
}

func (t *pgTx) EventsInPartition(partitionKey string) ([]engine.Event, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE partition_key = $1
		ORDER BY occurred_at, seq
	`, partitionKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []engine.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (t *pgTx) IntervalsOverlapping(start, end time.Time) ([]engine.Interval, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT id, starts_at, ends_at
		FROM break_intervals
		WHERE ends_at > $1 AND starts_at < $2
		ORDER BY starts_at
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ivs []engine.Interval
	for rows.Next() {
		var iv engine.Interval
		if err := rows.Scan(&iv.ID, &iv.StartsAt, &iv.EndsAt); err != nil {
			return nil, err
		}
		ivs = append(ivs, iv)
	}
	return ivs, rows.Err()
}

func (t *pgTx) InsertInterval(iv *engine.Interval) error {
	return t.tx.QueryRow(t.ctx, `
		INSERT INTO break_intervals(starts_at, ends_at)
		VALUES ($1,$2)
		RETURNING id
	`, iv.StartsAt, iv.EndsAt).Scan(&iv.ID)
}

func (t *pgTx) InsertDerived(r *engine.DerivedRecord) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO derived_records(
			event_id, partition_key, occurred_at,
			gross_delta_seconds, break_overlap_seconds, net_delta_seconds, is_anomaly)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, r.EventID, r.PartitionKey, r.OccurredAt,
		r.GrossDeltaSeconds, r.BreakOverlapSeconds, r.NetDeltaSeconds, r.IsAnomaly)
	return err
}

func (t *pgTx) UpdateDerived(r *engine.DerivedRecord) error {
	tag, err := t.tx.Exec(t.ctx, `
		UPDATE derived_records
		SET gross_delta_seconds = $2,
		    break_overlap_seconds = $3,
		    net_delta_seconds = $4,
		    is_anomaly = $5
		WHERE event_id = $1
	`, r.EventID, r.GrossDeltaSeconds, r.BreakOverlapSeconds, r.NetDeltaSeconds, r.IsAnomaly)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("derived record for event %s not found", r.EventID)
	}
	return nil
}

func (t *pgTx) DeleteDerived(partitionKey string) (int64, error) {
	tag, err := t.tx.Exec(t.ctx,
		`DELETE FROM derived_records WHERE partition_key = $1`, partitionKey)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const derivedColumns = `d.event_id, d.partition_key, d.occurred_at,
	d.gross_delta_seconds, d.break_overlap_seconds, d.net_delta_seconds, d.is_anomaly`

func scanDerived(rows pgx.Rows) ([]engine.DerivedRecord, error) {
	defer rows.Close()

	var records []engine.DerivedRecord
	for rows.Next() {
		var r engine.DerivedRecord
		err := rows.Scan(&r.EventID, &r.PartitionKey, &r.OccurredAt,
			&r.GrossDeltaSeconds, &r.BreakOverlapSeconds, &r.NetDeltaSeconds, &r.IsAnomaly)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (t *pgTx) DerivedInPartition(partitionKey string) ([]engine.DerivedRecord, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT `+derivedColumns+`
		FROM derived_records d
		JOIN events e ON e.id = d.event_id
		WHERE d.partition_key = $1
		ORDER BY d.occurred_at, e.seq
	`, partitionKey)
	if err != nil {
		return nil, err
	}
	return scanDerived(rows)
}

func (t *pgTx) DerivedByEvent(eventID uuid.UUID) (*engine.DerivedRecord, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT `+derivedColumns+`
		FROM derived_records d
		WHERE d.event_id = $1
	`, eventID)
	if err != nil {
		return nil, err
	}
	records, err := scanDerived(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (t *pgTx) DerivedOnDate(date time.Time) ([]engine.DerivedRecord, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT `+derivedColumns+`
		FROM derived_records d
		WHERE d.occurred_at >= $1
		  AND d.occurred_at <  $1::timestamptz + INTERVAL '1 day'
	`, date)
	if err != nil {
		return nil, err
	}
	return scanDerived(rows)
}

func (t *pgTx) ClearAnomalies() (int64, error) {
	tag, err := t.tx.Exec(t.ctx,
		`UPDATE derived_records SET is_anomaly = FALSE WHERE is_anomaly`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) FlagAnomalies(thresholdSeconds int64) (int64, error) {
	// NULL net deltas fail the comparison, so first-in-partition records
	// are never flagged.
	tag, err := t.tx.Exec(t.ctx,
		`UPDATE derived_records SET is_anomaly = TRUE WHERE net_delta_seconds > $1`,
		thresholdSeconds)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) ReplaceSummaries(date time.Time, rows []engine.DailySummary) error {
	if _, err := t.tx.Exec(t.ctx,
		`DELETE FROM daily_summaries WHERE summary_date = $1::date`, date); err != nil {
		return err
	}
	for _, s := range rows {
		_, err := t.tx.Exec(t.ctx, `
			INSERT INTO daily_summaries(
				summary_date, partition_key, event_count,
				avg_net_delta_seconds, min_net_delta_seconds,
				max_net_delta_seconds, anomaly_count)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, s.SummaryDate, s.PartitionKey, s.EventCount,
			s.AvgNetDeltaSeconds, s.MinNetDeltaSeconds,
			s.MaxNetDeltaSeconds, s.AnomalyCount)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) SummariesOn(date time.Time) ([]engine.DailySummary, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT summary_date, partition_key, event_count,
		       avg_net_delta_seconds, min_net_delta_seconds,
		       max_net_delta_seconds, anomaly_count
		FROM daily_summaries
		WHERE summary_date = $1::date
		ORDER BY partition_key
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.DailySummary
	for rows.Next() {
		var s engine.DailySummary
		err := rows.Scan(&s.SummaryDate, &s.PartitionKey, &s.EventCount,
			&s.AvgNetDeltaSeconds, &s.MinNetDeltaSeconds,
			&s.MaxNetDeltaSeconds, &s.AnomalyCount)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *pgTx) NegativeNetDeltas() ([]uuid.UUID, error) {
	rows, err := t.tx.Query(t.ctx,
		`SELECT event_id FROM derived_records WHERE net_delta_seconds < 0`)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

func (t *pgTx) EventsMissingDerived() ([]uuid.UUID, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT e.id
		FROM events e
		LEFT JOIN derived_records d ON d.event_id = e.id
		WHERE d.event_id IS NULL
	`)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}
