package models

import (
	"time"

	"github.com/fieldops/cycletime/internal/engine"
)

// IntervalRequest is the POST /intervals payload.
type IntervalRequest struct {
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
}

// IntervalResponse is returned by POST /intervals.
type IntervalResponse struct {
	ID       int64     `json:"id"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// RecomputeRequest is the POST /admin/recompute payload. Either a single
// partition key or all=true.
type RecomputeRequest struct {
	PartitionKey string `json:"partition_key,omitempty"`
	All          bool   `json:"all,omitempty"`
}

// RecomputeResponse is returned by POST /admin/recompute.
type RecomputeResponse struct {
	RecordsWritten int64  `json:"records_written"`
	Partitions     int    `json:"partitions"`
	DurationMS     int64  `json:"duration_ms"`
	Scope          string `json:"scope"`
}

// FlagRequest is the POST /admin/anomalies/flag payload. An absent threshold
// falls back to the configured default; an explicit non-positive value is
// rejected.
type FlagRequest struct {
	ThresholdSeconds *int64 `json:"threshold_seconds,omitempty"`
}

// FlagResponse is returned by POST /admin/anomalies/flag.
type FlagResponse struct {
	Flagged          int64 `json:"flagged"`
	Cleared          int64 `json:"cleared"`
	ThresholdSeconds int64 `json:"threshold_seconds"`
}

// AggregateRequest is the POST /admin/aggregate payload. Date is YYYY-MM-DD.
type AggregateRequest struct {
	Date string `json:"date"`
}

// AggregateResponse is returned by POST /admin/aggregate.
type AggregateResponse struct {
	Date                string `json:"date"`
	PartitionsProcessed int    `json:"partitions_processed"`
	DurationMS          int64  `json:"duration_ms"`
}

// DailySummaryResponse is one rollup row as served by GET /summaries.
type DailySummaryResponse struct {
	SummaryDate        string  `json:"summary_date"`
	PartitionKey       string  `json:"partition_key"`
	EventCount         int64   `json:"event_count"`
	AvgNetDeltaSeconds float64 `json:"avg_net_delta_seconds"`
	MinNetDeltaSeconds int64   `json:"min_net_delta_seconds"`
	MaxNetDeltaSeconds int64   `json:"max_net_delta_seconds"`
	AnomalyCount       int64   `json:"anomaly_count"`
}

// NewDailySummaryResponse projects one engine summary row for the API.
func NewDailySummaryResponse(s engine.DailySummary) DailySummaryResponse {
	return DailySummaryResponse{
		SummaryDate:        s.SummaryDate.UTC().Format("2006-01-02"),
		PartitionKey:       s.PartitionKey,
		EventCount:         s.EventCount,
		AvgNetDeltaSeconds: s.AvgNetDeltaSeconds,
		MinNetDeltaSeconds: s.MinNetDeltaSeconds,
		MaxNetDeltaSeconds: s.MaxNetDeltaSeconds,
		AnomalyCount:       s.AnomalyCount,
	}
}

// ConsistencyResponse is returned by GET /admin/consistency.
type ConsistencyResponse struct {
	Clean                bool     `json:"clean"`
	NegativeNetDeltas    []string `json:"negative_net_deltas"`
	EventsMissingDerived []string `json:"events_missing_derived"`
}
