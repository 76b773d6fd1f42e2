package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fieldops/cycletime/internal/engine"
	"github.com/fieldops/cycletime/internal/models"
)

// RegisterReportingRoutes registers the read-only serving-path endpoints.
//
// GET /partitions/:key/records — derived records in chronological order
// GET /summaries?date=YYYY-MM-DD — daily rollups for one date
func RegisterReportingRoutes(r gin.IRoutes, eng *engine.Engine) {
	r.GET("/partitions/:key/records", func(c *gin.Context) {
		key := c.Param("key")

		records, err := eng.RecordsInPartition(c.Request.Context(), key)
		if err != nil {
			writeEngineError(c, err)
			return
		}

		out := make([]models.DerivedRecordResponse, 0, len(records))
		for _, rec := range records {
			out = append(out, models.NewDerivedRecordResponse(rec))
		}
		c.JSON(http.StatusOK, gin.H{
			"partition_key": key,
			"records":       out,
		})
	})

	r.GET("/summaries", func(c *gin.Context) {
		dateStr := c.Query("date")
		if dateStr == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date required"})
			return
		}
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}

		rows, err := eng.SummariesOn(c.Request.Context(), date)
		if err != nil {
			writeEngineError(c, err)
			return
		}

		out := make([]models.DailySummaryResponse, 0, len(rows))
		for _, s := range rows {
			out = append(out, models.NewDailySummaryResponse(s))
		}
		c.JSON(http.StatusOK, gin.H{
			"date":      dateStr,
			"summaries": out,
		})
	})
}
