package main

import (
	"log"

	"github.com/fieldops/cycletime/internal/config"
	"github.com/fieldops/cycletime/internal/engine"
	"github.com/fieldops/cycletime/internal/httpserver"
	"github.com/fieldops/cycletime/internal/store"
)

// main boots the service: config → DB → schema → engine → HTTP server.
func main() {
	// Load runtime config from environment (DB_URL, API_KEYS, ...).
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	// Connect to durable storage (Postgres) using a connection pool.
	db, err := store.NewPostgresStore(cfg.DBURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	// Ensure required tables/indexes exist so `docker compose up --build` is enough.
	if err := db.EnsureSchema(); err != nil {
		log.Fatal(err)
	}

	eng := engine.New(db, engine.WithAppendRetries(cfg.AppendRetries))

	// Build HTTP router (public health + authenticated APIs).
	router := httpserver.NewRouter(cfg, eng, db)

	log.Printf("server started on %s", cfg.ListenAddr)
	log.Fatal(router.Run(cfg.ListenAddr))
}
