package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldops/cycletime/internal/engine"
	"github.com/fieldops/cycletime/internal/models"
)

// RegisterIntervalRoutes registers the break-interval write path used by the
// interval collaborator.
//
// POST /intervals
func RegisterIntervalRoutes(r gin.IRoutes, eng *engine.Engine) {
	r.POST("/intervals", func(c *gin.Context) {
		var req models.IntervalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}

		startsAt, err := parseRFC3339(req.StartsAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "starts_at must be RFC3339"})
			return
		}
		endsAt, err := parseRFC3339(req.EndsAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ends_at must be RFC3339"})
			return
		}

		iv, err := eng.AddInterval(c.Request.Context(), engine.Interval{
			StartsAt: startsAt,
			EndsAt:   endsAt,
		})
		if err != nil {
			writeEngineError(c, err)
			return
		}

		c.JSON(http.StatusCreated, models.IntervalResponse{
			ID:       iv.ID,
			StartsAt: iv.StartsAt,
			EndsAt:   iv.EndsAt,
		})
	})
}
