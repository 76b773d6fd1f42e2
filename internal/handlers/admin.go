package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fieldops/cycletime/internal/engine"
	"github.com/fieldops/cycletime/internal/models"
)

// RegisterAdminRoutes registers the scheduling-collaborator endpoints. All
// three operations are idempotent and safe to retry.
//
// POST /admin/recompute       — regenerate derived records for one/all partitions
// POST /admin/anomalies/flag  — re-derive anomaly flags from stored net deltas
// POST /admin/aggregate       — regenerate daily summaries for one date
// GET  /admin/consistency     — self-check for stored-state violations
func RegisterAdminRoutes(r gin.IRoutes, eng *engine.Engine, defaultThresholdSeconds int64) {
	r.POST("/admin/recompute", func(c *gin.Context) {
		var req models.RecomputeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}
		if req.All == (req.PartitionKey != "") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "provide partition_key or all=true, not both"})
			return
		}

		var (
			res   engine.RecomputeResult
			scope = req.PartitionKey
			err   error
		)
		if req.All {
			scope = "all"
			res, err = eng.RecomputeAll(c.Request.Context())
		} else {
			res, err = eng.Recompute(c.Request.Context(), req.PartitionKey)
		}
		if err != nil {
			writeEngineError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.RecomputeResponse{
			RecordsWritten: res.RecordsWritten,
			Partitions:     res.Partitions,
			DurationMS:     res.Duration.Milliseconds(),
			Scope:          scope,
		})
	})

	r.POST("/admin/anomalies/flag", func(c *gin.Context) {
		var req models.FlagRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}

		threshold := defaultThresholdSeconds
		if req.ThresholdSeconds != nil {
			threshold = *req.ThresholdSeconds
		}
		if threshold <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "threshold_seconds must be positive"})
			return
		}

		res, err := eng.FlagAnomalies(c.Request.Context(), threshold)
		if err != nil {
			writeEngineError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.FlagResponse{
			Flagged:          res.Flagged,
			Cleared:          res.Cleared,
			ThresholdSeconds: threshold,
		})
	})

	r.POST("/admin/aggregate", func(c *gin.Context) {
		var req models.AggregateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}

		res, err := eng.Aggregate(c.Request.Context(), date)
		if err != nil {
			writeEngineError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.AggregateResponse{
			Date:                req.Date,
			PartitionsProcessed: res.PartitionsProcessed,
			DurationMS:          res.Duration.Milliseconds(),
		})
	})

	r.GET("/admin/consistency", func(c *gin.Context) {
		report, err := eng.CheckConsistency(c.Request.Context())
		if err != nil {
			writeEngineError(c, err)
			return
		}

		resp := models.ConsistencyResponse{
			Clean:                report.Clean(),
			NegativeNetDeltas:    []string{},
			EventsMissingDerived: []string{},
		}
		for _, id := range report.NegativeNetDeltas {
			resp.NegativeNetDeltas = append(resp.NegativeNetDeltas, id.String())
		}
		for _, id := range report.EventsMissingDerived {
			resp.EventsMissingDerived = append(resp.EventsMissingDerived, id.String())
		}
		c.JSON(http.StatusOK, resp)
	})
}
