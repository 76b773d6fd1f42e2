package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

////////////////////////////////////////////////////////////////////////////////
// INTEGRATION TEST SUITE
//
// These tests validate the service end-to-end:
//
//   Client → HTTP API → Auth → Postgres (append-and-derive) → Reporting
//
// The service must already be running (for example via docker compose);
// the suite is skipped unless BASE_URL is set.
//
// Environment:
//
//   BASE_URL    e.g. http://localhost:8080 (required to run)
//   API_KEY     default dev-key-123
//
////////////////////////////////////////////////////////////////////////////////

func baseURL(t *testing.T) string {
	t.Helper()
	v := os.Getenv("BASE_URL")
	if v == "" {
		t.Skip("BASE_URL not set; skipping integration suite")
	}
	return v
}

func apiKey() string {
	if v := os.Getenv("API_KEY"); v != "" {
		return v
	}
	return "dev-key-123"
}

// unique generates a unique partition key so tests never collide with
// previous runs.
func unique(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

////////////////////////////////////////////////////////////////////////////////
// SERVICE READINESS HELPER
//
// waitReady polls /ready until DB + server are ready.
// Prevents flaky failures when containers are still booting.
////////////////////////////////////////////////////////////////////////////////

func waitReady(t *testing.T) {
	t.Helper()

	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(30 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL(t) + "/ready")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(300 * time.Millisecond)
	}

	t.Fatalf("service not ready after 30s")
}

////////////////////////////////////////////////////////////////////////////////
// GENERIC HTTP HELPERS
////////////////////////////////////////////////////////////////////////////////

// httpGet performs a GET request with optional API key.
func httpGet(t *testing.T, key string, path string) (int, []byte) {
	t.Helper()

	req, _ := http.NewRequest("GET", baseURL(t)+path, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}

	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}

// postJSON performs a POST with JSON body and optional idempotency key.
func postJSON(t *testing.T, key, idemKey, path string, payload any) (int, []byte) {
	t.Helper()

	b, _ := json.Marshal(payload)

	req, _ := http.NewRequest("POST", baseURL(t)+path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")

	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := (&http.Client{Timeout: 30 * time.Second}).Do(req)
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

// postEvent is a convenience wrapper for POST /events.
func postEvent(t *testing.T, idemKey, partition string, ts time.Time) (int, []byte) {
	payload := map[string]any{
		"partition_key": partition,
		"occurred_at":   ts.UTC().Format(time.RFC3339),
	}
	return postJSON(t, apiKey(), idemKey, "/events", payload)
}

// getRecords fetches a partition's derived records.
func getRecords(t *testing.T, partition string) []recordJSON {
	t.Helper()

	s, b := httpGet(t, apiKey(), "/partitions/"+partition+"/records")
	if s != http.StatusOK {
		t.Fatalf("records expected 200 got %d: %s", s, b)
	}

	var resp struct {
		Records []recordJSON `json:"records"`
	}
	if err := json.Unmarshal(b, &resp); err != nil {
		t.Fatalf("invalid records JSON: %v", err)
	}
	return resp.Records
}

type recordJSON struct {
	EventID             string `json:"event_id"`
	GrossDeltaSeconds   *int64 `json:"gross_delta_seconds"`
	BreakOverlapSeconds int64  `json:"break_overlap_seconds"`
	NetDeltaSeconds     *int64 `json:"net_delta_seconds"`
	DeltaSeconds        *int64 `json:"delta_seconds"`
	IsAnomaly           bool   `json:"is_anomaly"`
}

////////////////////////////////////////////////////////////////////////////////
// HEALTH & READINESS TESTS
////////////////////////////////////////////////////////////////////////////////

// Health endpoint = liveness check (server process running).
func TestHealth_ReturnsOK(t *testing.T) {
	s, _ := httpGet(t, "", "/health")
	if s != http.StatusOK {
		t.Fatalf("health expected 200 got %d", s)
	}
}

// Ready endpoint = dependency readiness (DB reachable).
func TestReady_ReturnsOK(t *testing.T) {
	waitReady(t)
	s, _ := httpGet(t, "", "/ready")
	if s != http.StatusOK {
		t.Fatalf("ready expected 200 got %d", s)
	}
}

////////////////////////////////////////////////////////////////////////////////
// AUTH TESTS
////////////////////////////////////////////////////////////////////////////////

func TestEvents_RejectsMissingKey(t *testing.T) {
	waitReady(t)
	s, _ := postJSON(t, "", "", "/events", map[string]any{})
	if s != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", s)
	}
}

////////////////////////////////////////////////////////////////////////////////
// INGESTION + DERIVATION TESTS
////////////////////////////////////////////////////////////////////////////////

func TestIngest_DerivesDeltasInOrder(t *testing.T) {
	waitReady(t)

	partition := unique("shift")
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	for _, offset := range []time.Duration{0, 330 * time.Second, 660 * time.Second} {
		s, b := postEvent(t, "", partition, base.Add(offset))
		if s != http.StatusCreated {
			t.Fatalf("ingest expected 201 got %d: %s", s, b)
		}
	}

	records := getRecords(t, partition)
	if len(records) != 3 {
		t.Fatalf("expected 3 records got %d", len(records))
	}
	if records[0].NetDeltaSeconds != nil {
		t.Fatalf("first record must have NULL net delta")
	}
	for i := 1; i < 3; i++ {
		if records[i].NetDeltaSeconds == nil || *records[i].NetDeltaSeconds != 330 {
			t.Fatalf("record %d expected net 330 got %v", i, records[i].NetDeltaSeconds)
		}
	}
}

func TestIngest_OutOfOrderSettlesLikeBatch(t *testing.T) {
	waitReady(t)

	partition := unique("shift")
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	// Arrive out of occurred_at order.
	for _, offset := range []time.Duration{600 * time.Second, 0, 240 * time.Second} {
		if s, b := postEvent(t, "", partition, base.Add(offset)); s != http.StatusCreated {
			t.Fatalf("ingest expected 201 got %d: %s", s, b)
		}
	}

	settled := getRecords(t, partition)

	// A from-scratch recompute must reproduce the settled state exactly.
	s, b := postJSON(t, apiKey(), "", "/admin/recompute",
		map[string]any{"partition_key": partition})
	if s != http.StatusOK {
		t.Fatalf("recompute expected 200 got %d: %s", s, b)
	}

	recomputed := getRecords(t, partition)
	if len(settled) != len(recomputed) {
		t.Fatalf("record count diverged: %d vs %d", len(settled), len(recomputed))
	}
	for i := range settled {
		a, b := settled[i], recomputed[i]
		if a.EventID != b.EventID ||
			!int64PtrEq(a.NetDeltaSeconds, b.NetDeltaSeconds) ||
			!int64PtrEq(a.GrossDeltaSeconds, b.GrossDeltaSeconds) ||
			a.BreakOverlapSeconds != b.BreakOverlapSeconds {
			t.Fatalf("record %d diverged: %+v vs %+v", i, a, b)
		}
	}
}

func TestIngest_IdempotencyKeyDeduplicates(t *testing.T) {
	waitReady(t)

	partition := unique("shift")
	idem := uuid.New().String()
	ts := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	if s, _ := postEvent(t, idem, partition, ts); s != http.StatusCreated {
		t.Fatalf("first delivery expected 201 got %d", s)
	}
	if s, _ := postEvent(t, idem, partition, ts); s != http.StatusOK {
		t.Fatalf("duplicate delivery expected 200 got %d", s)
	}

	if n := len(getRecords(t, partition)); n != 1 {
		t.Fatalf("expected 1 record got %d", n)
	}
}

func int64PtrEq(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
