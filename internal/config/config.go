package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fieldops/cycletime/internal/engine"
)

// Config contains runtime configuration required by the service.
type Config struct {
	DBURL string

	// APIKeys is the set of keys accepted on X-API-Key. Tenancy is out of
	// scope; every key grants the same access.
	APIKeys map[string]bool

	// AnomalyThresholdSeconds is the default threshold applied when a flag
	// run does not supply its own.
	AnomalyThresholdSeconds int64

	// AppendRetries bounds transparent retries of appends that lose a
	// serialization race.
	AppendRetries int

	ListenAddr string
}

// Load reads required values from environment variables.
// API_KEYS format: "key1,key2"
func Load() (Config, error) {
	dbURL := strings.TrimSpace(os.Getenv("DB_URL"))
	if dbURL == "" {
		return Config{}, errors.New("DB_URL required")
	}

	apiKeys := map[string]bool{}
	for _, k := range strings.Split(os.Getenv("API_KEYS"), ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			apiKeys[k] = true
		}
	}
	// Local dev fallback so the service runs out-of-the-box.
	if len(apiKeys) == 0 {
		apiKeys["dev-key-123"] = true
	}

	threshold, err := intEnv("ANOMALY_THRESHOLD_SECONDS", engine.DefaultAnomalyThresholdSeconds)
	if err != nil {
		return Config{}, err
	}
	if threshold <= 0 {
		return Config{}, errors.New("ANOMALY_THRESHOLD_SECONDS must be positive")
	}

	retries, err := intEnv("APPEND_RETRIES", engine.DefaultAppendRetries)
	if err != nil {
		return Config{}, err
	}
	if retries < 1 {
		return Config{}, errors.New("APPEND_RETRIES must be at least 1")
	}

	addr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if addr == "" {
		addr = ":8080"
	}

	return Config{
		DBURL:                   dbURL,
		APIKeys:                 apiKeys,
		AnomalyThresholdSeconds: threshold,
		AppendRetries:           int(retries),
		ListenAddr:              addr,
	}, nil
}

func intEnv(name string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}
