package models

import (
	"time"

	"github.com/fieldops/cycletime/internal/engine"
)

// EventIngestRequest is the POST /events payload.
// event_id is optional; pass an Idempotency-Key header for safe retries.
type EventIngestRequest struct {
	EventID      string                 `json:"event_id,omitempty"`
	PartitionKey string                 `json:"partition_key"`
	OccurredAt   string                 `json:"occurred_at"`
	Attributes   map[string]interface{} `json:"attributes,omitempty"`
}

// EventIngestResponse is returned by POST /events.
// Duplicate indicates idempotent success (the event already existed).
type EventIngestResponse struct {
	EventID   string                 `json:"event_id"`
	Duplicate bool                   `json:"duplicate"`
	Record    *DerivedRecordResponse `json:"record,omitempty"`
}

// DerivedRecordResponse is the reporting projection of a derived record.
// delta_seconds mirrors net_delta_seconds for legacy readers; it is a
// presentation alias only and is never stored.
type DerivedRecordResponse struct {
	EventID             string    `json:"event_id"`
	PartitionKey        string    `json:"partition_key"`
	OccurredAt          time.Time `json:"occurred_at"`
	GrossDeltaSeconds   *int64    `json:"gross_delta_seconds"`
	BreakOverlapSeconds int64     `json:"break_overlap_seconds"`
	NetDeltaSeconds     *int64    `json:"net_delta_seconds"`
	DeltaSeconds        *int64    `json:"delta_seconds"`
	IsAnomaly           bool      `json:"is_anomaly"`
}

// NewDerivedRecordResponse projects one engine record for the API.
func NewDerivedRecordResponse(r engine.DerivedRecord) DerivedRecordResponse {
	return DerivedRecordResponse{
		EventID:             r.EventID.String(),
		PartitionKey:        r.PartitionKey,
		OccurredAt:          r.OccurredAt,
		GrossDeltaSeconds:   r.GrossDeltaSeconds,
		BreakOverlapSeconds: r.BreakOverlapSeconds,
		NetDeltaSeconds:     r.NetDeltaSeconds,
		DeltaSeconds:        r.NetDeltaSeconds,
		IsAnomaly:           r.IsAnomaly,
	}
}
