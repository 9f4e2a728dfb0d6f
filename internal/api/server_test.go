package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zefau/huesync/internal/bridges/hue"
	"github.com/zefau/huesync/internal/infrastructure/config"
	"github.com/zefau/huesync/internal/infrastructure/logging"
	"github.com/zefau/huesync/internal/tree"
)

// stubConnector satisfies hue.Connector without a bridge. The server
// tests never start the sync loop, so only Stats and IsConnected run.
type stubConnector struct{}

func (stubConnector) FetchAll(context.Context) (map[string]any, error) {
	return map[string]any{}, nil
}

func (stubConnector) Send(context.Context, string, string, map[string]any) ([]map[string]any, error) {
	return nil, nil
}

func (stubConnector) IsConnected() bool { return true }

func (stubConnector) Stats() hue.ClientStats { return hue.ClientStats{Reachable: true} }

// testConfig builds the minimal bridge configuration NewBridge accepts.
func testConfig() *config.Config {
	return &config.Config{
		Bridge: config.BridgeConfig{
			Host:       "bridge.local",
			Username:   "testuser",
			Devicetype: "huesync#test",
		},
		Sync: config.SyncConfig{Interval: 30000},
	}
}

// testServer creates a Server over a fresh tree and an idle bridge.
func testServer(t *testing.T) (*Server, *tree.MemoryStore) {
	t.Helper()

	store := tree.NewMemoryStore()
	bridge, err := hue.NewBridge(hue.BridgeOptions{
		Config: testConfig(),
		Store:  store,
		Client: stubConnector{},
	})
	if err != nil {
		t.Fatalf("NewBridge: %v", err)
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		Logger:     log,
		Store:      store,
		Bridge:     bridge,
		Devicetype: "huesync#test",
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return srv, store
}

// ─── Constructor Tests ─────────────────────────────────────────────

func TestNew_RequiresDependencies(t *testing.T) {
	store := tree.NewMemoryStore()
	bridge, err := hue.NewBridge(hue.BridgeOptions{
		Config: testConfig(),
		Store:  store,
		Client: stubConnector{},
	})
	if err != nil {
		t.Fatalf("NewBridge: %v", err)
	}
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	tests := []struct {
		name string
		deps Deps
	}{
		{"missing logger", Deps{Store: store, Bridge: bridge}},
		{"missing store", Deps{Logger: log, Bridge: bridge}},
		{"missing bridge", Deps{Logger: log, Store: store}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestHealth_ContentType(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	ct := w.Header().Get("Content-Type")
	if ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	requestID := w.Header().Get("X-Request-ID")
	if requestID == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestCORS_RejectsUnlistedOrigin(t *testing.T) {
	srv, _ := testServer(t)
	srv.cfg.CORS.AllowedOrigins = []string{"http://panel.local"}
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("ACAO = %q, want empty for unlisted origin", got)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Status Endpoint Tests ─────────────────────────────────────────

func TestStatus(t *testing.T) {
	srv, store := testServer(t)
	router := srv.buildRouter()

	store.Set("info.syncing", &tree.Meta{Type: "boolean"}, false)
	store.Set("lights.001-spot.state.bri", &tree.Meta{Type: "number"}, 79.0)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.Version != "test" {
		t.Errorf("version = %q, want test", resp.Version)
	}
	if resp.Tree.Nodes != 2 {
		t.Errorf("tree.nodes = %d, want 2", resp.Tree.Nodes)
	}
	if resp.Bridge.Appliances != 0 {
		t.Errorf("bridge.appliances = %d, want 0", resp.Bridge.Appliances)
	}
	if !resp.Bridge.Transport.Reachable {
		t.Error("bridge.transport.reachable = false, want true")
	}
	if resp.Runtime.Goroutines <= 0 {
		t.Errorf("runtime.goroutines = %d, want > 0", resp.Runtime.Goroutines)
	}
}

// ─── Lifecycle Tests ───────────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	srv, _ := testServer(t)
	srv.cfg.Port = 18807

	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// Wait for the listener to come up.
	time.Sleep(100 * time.Millisecond)

	addr := fmt.Sprintf("127.0.0.1:%d", srv.cfg.Port)
	resp, err := http.Get("http://" + addr + "/api/v1/health")
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("health check status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if _, err := http.Get("http://" + addr + "/api/v1/health"); err == nil {
		t.Error("server still responding after Close()")
	}
}

func TestServer_HealthCheck(t *testing.T) {
	srv, _ := testServer(t)

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck before Start = nil, want error")
	}

	srv.cfg.Port = 18808
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer srv.Close()

	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck after Start = %v, want nil", err)
	}
}

func TestServer_CloseBeforeStart(t *testing.T) {
	srv, _ := testServer(t)

	if err := srv.Close(); err != nil {
		t.Errorf("Close() before Start error: %v", err)
	}
}
