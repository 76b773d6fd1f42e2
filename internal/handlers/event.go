package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fieldops/cycletime/internal/engine"
	"github.com/fieldops/cycletime/internal/models"
)

// parseRFC3339 parses an RFC3339 timestamp and normalizes it to UTC.
func parseRFC3339(ts string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// writeEngineError maps engine errors onto HTTP statuses: validation → 400,
// exhausted conflict retries → 503 (transient, safe to retry), rest → 500.
func writeEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrMissingPartitionKey),
		errors.Is(err, engine.ErrZeroOccurredAt),
		errors.Is(err, engine.ErrInvalidInterval):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrConflict):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "transient conflict, retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// RegisterEventRoutes registers the ingestion-path endpoint.
//
// POST /events
//   - Durable: returns success only after the event AND its derived record
//     are committed in one unit of work
//   - Idempotent: duplicates detected via event id uniqueness
func RegisterEventRoutes(r gin.IRoutes, eng *engine.Engine) {
	r.POST("/events", func(c *gin.Context) {
		var req models.EventIngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}

		if req.PartitionKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "partition_key required"})
			return
		}
		if req.OccurredAt == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "occurred_at required"})
			return
		}

		occurredAt, err := parseRFC3339(req.OccurredAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "occurred_at must be RFC3339"})
			return
		}

		// Idempotency precedence:
		// 1) Idempotency-Key header (recommended for retries)
		// 2) event_id in payload
		// 3) generated UUID (fallback; cannot dedupe client retries)
		rawID := c.GetHeader("Idempotency-Key")
		if rawID == "" {
			rawID = req.EventID
		}
		var eventID uuid.UUID
		if rawID != "" {
			eventID, err = uuid.Parse(rawID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "event_id must be a UUID"})
				return
			}
		} else {
			eventID = uuid.New()
		}

		res, err := eng.AppendAndDerive(c.Request.Context(), engine.Event{
			ID:           eventID,
			PartitionKey: req.PartitionKey,
			OccurredAt:   occurredAt,
			Attributes:   req.Attributes,
		})
		if err != nil {
			writeEngineError(c, err)
			return
		}

		// 201 for new events, 200 for duplicates (idempotent success).
		status := http.StatusCreated
		if res.Duplicate {
			status = http.StatusOK
		}

		resp := models.EventIngestResponse{
			EventID:   eventID.String(),
			Duplicate: res.Duplicate,
		}
		if res.Record != nil {
			rec := models.NewDerivedRecordResponse(*res.Record)
			resp.Record = &rec
		}
		c.JSON(status, resp)
	})
}
