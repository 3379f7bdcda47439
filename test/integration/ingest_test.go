// Package integration provides end-to-end tests for the histdb service.
package integration

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	apihttp "github.com/histdb/histdb/internal/api/http"
	"github.com/histdb/histdb/internal/ingest"
	"github.com/histdb/histdb/internal/metrics"
	"github.com/histdb/histdb/internal/store"
)

type env struct {
	store    *store.Store
	pipeline *ingest.Pipeline
	server   *httptest.Server
}

func newEnv(t *testing.T, queueCapacity, workers int) *env {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "histdb.db"), store.Options{
		MaxSessions: workers + 1,
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	p := ingest.NewPipeline(st, metrics.New(), ingest.Config{
		QueueCapacity: queueCapacity,
		Workers:       workers,
		DrainTimeout:  5 * time.Second,
	})
	if err := p.Start(context.Background()); err != nil {
		st.Close()
		t.Fatalf("failed to start pipeline: %v", err)
	}

	srv := httptest.NewServer(apihttp.NewRouter(apihttp.RouterConfig{
		Pipeline: p,
		Metrics:  metrics.New(),
	}))

	e := &env{store: st, pipeline: p, server: srv}
	t.Cleanup(func() {
		srv.Close()
		p.Shutdown(context.Background())
		st.Close()
	})
	return e
}

func (e *env) post(t *testing.T, path string, payload map[string]interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	resp.Body.Close()
	return resp
}

// drain shuts the pipeline down so every accepted event is persisted before
// the test inspects the database.
func (e *env) drain(t *testing.T) {
	t.Helper()
	if err := e.pipeline.Shutdown(context.Background()); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
}

func (e *env) count(t *testing.T, query string, args ...interface{}) int {
	t.Helper()
	var n int
	if err := e.store.DB().QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("query %q failed: %v", query, err)
	}
	return n
}

func TestIngestFlow_BrowsingEvent(t *testing.T) {
	e := newEnv(t, 100, 1)

	resp := e.post(t, "/chrome-events", map[string]interface{}{
		"type":      "navigate",
		"url":       "https://example.com",
		"title":     "Example Domain",
		"timestamp": "2024-01-01T00:00:00Z",
		"user":      "alice",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	e.drain(t)

	if n := e.count(t, "SELECT COUNT(*) FROM browsing_events"); n != 1 {
		t.Fatalf("browsing_events rows = %d, want 1", n)
	}

	var evType, url, username string
	var timestamp int64
	err := e.store.DB().QueryRow(`
		SELECT be.type, u.url, be.timestamp, us.username
		FROM browsing_events be
		JOIN urls u ON u.id = be.url_id
		JOIN users us ON us.id = be.user_id`).
		Scan(&evType, &url, &timestamp, &username)
	if err != nil {
		t.Fatalf("failed to read joined fact: %v", err)
	}
	if evType != "navigate" || url != "https://example.com" || username != "alice" {
		t.Errorf("fact = (%s, %s, %s)", evType, url, username)
	}
	if timestamp != 1704067200 {
		t.Errorf("timestamp = %d, want 1704067200", timestamp)
	}
}

func TestIngestFlow_EditorEvent(t *testing.T) {
	e := newEnv(t, 100, 1)

	payload := map[string]interface{}{
		"timestamp":  1704067200,
		"session_id": "session-1",
		"host":       "workstation",
		"command":    "save-buffer",
		"context": map[string]interface{}{
			"buffer":     "main.go",
			"file_name":  "/home/alice/project/main.go",
			"major_mode": "go-mode",
			"project":    "histdb",
		},
	}
	if resp := e.post(t, "/emacs-events", payload); resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	// Same command and context again: facts accumulate, dimensions do not.
	if resp := e.post(t, "/emacs-events", payload); resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	e.drain(t)

	if n := e.count(t, "SELECT COUNT(*) FROM emacs_events"); n != 2 {
		t.Errorf("emacs_events rows = %d, want 2", n)
	}
	for _, table := range []string{"emacs_commands", "buffers", "places", "emacs_major_modes", "projects"} {
		if n := e.count(t, "SELECT COUNT(*) FROM "+table); n != 1 {
			t.Errorf("%s rows = %d, want 1", table, n)
		}
	}

	var dir string
	if err := e.store.DB().QueryRow("SELECT dir FROM places").Scan(&dir); err != nil {
		t.Fatalf("failed to read place: %v", err)
	}
	if dir != "/home/alice/project" {
		t.Errorf("dir = %q, want /home/alice/project", dir)
	}
}

func TestIngestFlow_MixedKindsShareDimensions(t *testing.T) {
	e := newEnv(t, 100, 2)

	for i := 0; i < 10; i++ {
		e.post(t, "/chrome-events", map[string]interface{}{
			"type":      "navigate",
			"url":       "https://example.com",
			"timestamp": "2024-01-01T00:00:00Z",
		})
		e.post(t, "/emacs-events", map[string]interface{}{
			"timestamp":  1704067200,
			"session_id": "s",
			"host":       "workstation",
			"command":    "next-line",
			"context":    map[string]interface{}{"buffer": "b", "major_mode": "fundamental-mode"},
		})
	}

	e.drain(t)

	if n := e.count(t, "SELECT COUNT(*) FROM browsing_events"); n != 10 {
		t.Errorf("browsing_events = %d, want 10", n)
	}
	if n := e.count(t, "SELECT COUNT(*) FROM emacs_events"); n != 10 {
		t.Errorf("emacs_events = %d, want 10", n)
	}
	if n := e.count(t, "SELECT COUNT(*) FROM urls"); n != 1 {
		t.Errorf("urls = %d, want 1", n)
	}
	if n := e.count(t, "SELECT COUNT(*) FROM emacs_commands"); n != 1 {
		t.Errorf("emacs_commands = %d, want 1", n)
	}
}

func TestIngestFlow_ValidationRejected(t *testing.T) {
	e := newEnv(t, 100, 1)

	resp := e.post(t, "/chrome-events", map[string]interface{}{
		"type": "navigate",
		// url and timestamp missing
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}

	e.drain(t)
	if n := e.count(t, "SELECT COUNT(*) FROM browsing_events"); n != 0 {
		t.Errorf("rejected event reached storage: %d rows", n)
	}
}

func TestIngestFlow_NullableColumns(t *testing.T) {
	e := newEnv(t, 100, 1)

	e.post(t, "/chrome-events", map[string]interface{}{
		"type":      "focus",
		"url":       "https://example.com",
		"timestamp": "2024-01-01T00:00:00Z",
	})
	e.post(t, "/emacs-events", map[string]interface{}{
		"timestamp":  1704067200,
		"session_id": "s",
		"host":       "laptop",
		"command":    "scratch",
		"context":    map[string]interface{}{"buffer": "*scratch*", "major_mode": "lisp-interaction-mode"},
	})

	e.drain(t)

	var userID sql.NullInt64
	if err := e.store.DB().QueryRow("SELECT user_id FROM browsing_events").Scan(&userID); err != nil {
		t.Fatalf("failed to read browsing fact: %v", err)
	}
	if userID.Valid {
		t.Error("expected NULL user_id")
	}

	var projectID sql.NullInt64
	var placeDir sql.NullString
	err := e.store.DB().QueryRow(`
		SELECT ee.project_id, p.dir
		FROM emacs_events ee JOIN places p ON p.id = ee.place_id`).
		Scan(&projectID, &placeDir)
	if err != nil {
		t.Fatalf("failed to read editor fact: %v", err)
	}
	if projectID.Valid {
		t.Error("expected NULL project_id")
	}
	if placeDir.Valid {
		t.Error("expected NULL place dir for bufferless event")
	}
}

func TestIngestFlow_Backpressure(t *testing.T) {
	e := newEnv(t, 1, 1)

	var saw503 bool
	for i := 0; i < 500 && !saw503; i++ {
		resp := e.post(t, "/chrome-events", map[string]interface{}{
			"type":      "navigate",
			"url":       "https://example.com",
			"timestamp": "2024-01-01T00:00:00Z",
		})
		switch resp.StatusCode {
		case http.StatusOK:
		case http.StatusServiceUnavailable:
			saw503 = true
		default:
			t.Fatalf("unexpected status %d", resp.StatusCode)
		}
	}
	if !saw503 {
		t.Error("never observed a 503 under sustained load on a capacity-1 queue")
	}

	// Accepted events still persist.
	e.drain(t)
	if n := e.count(t, "SELECT COUNT(*) FROM browsing_events"); n == 0 {
		t.Error("no accepted events persisted")
	}
}
