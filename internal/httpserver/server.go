package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fieldops/cycletime/internal/auth"
	"github.com/fieldops/cycletime/internal/config"
	"github.com/fieldops/cycletime/internal/engine"
	"github.com/fieldops/cycletime/internal/handlers"
)

// Pinger reports readiness of the underlying store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter wires public endpoints and authenticated APIs.
// Public: /health, /ready
// Authenticated: ingestion, intervals, reporting, admin
func NewRouter(cfg config.Config, eng *engine.Engine, db Pinger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms the store dependency is reachable.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Auth group gates every collaborator surface via X-API-Key.
	authGroup := r.Group("/")
	authGroup.Use(auth.APIKeyMiddleware(cfg.APIKeys))

	handlers.RegisterEventRoutes(authGroup, eng)
	handlers.RegisterIntervalRoutes(authGroup, eng)
	handlers.RegisterReportingRoutes(authGroup, eng)
	handlers.RegisterAdminRoutes(authGroup, eng, cfg.AnomalyThresholdSeconds)

	return r
}
