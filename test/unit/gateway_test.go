package unit

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/gorelay/internal/chat"
	"github.com/Tyrowin/gorelay/internal/config"
	"github.com/Tyrowin/gorelay/internal/server"
)

func newTestGateway(t *testing.T) *httptest.Server {
	t.Helper()

	logger := zerolog.Nop()
	cfg := config.Default()
	hub := server.NewHub(logger)
	engine := chat.NewEngine(hub, chat.Options{Logger: logger})
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })

	gateway := server.NewGateway(hub, engine, cfg, logger)
	ts := httptest.NewServer(gateway.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func TestRootEndpoint(t *testing.T) {
	ts := newTestGateway(t)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "GoRelay server is running!") {
		t.Errorf("Body = %q, want liveness message", body)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestGateway(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("Failed to decode health payload: %v", err)
	}
	if payload["status"] != "OK" {
		t.Errorf(`status = %v, want "OK"`, payload["status"])
	}
	if _, ok := payload["uptime"]; !ok {
		t.Error("health payload missing uptime")
	}
	if _, ok := payload["rooms"]; !ok {
		t.Error("health payload missing rooms")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestGateway(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "gorelay_") {
		t.Error("metrics output does not contain gorelay collectors")
	}
}

func TestWebSocketEndpointRejectsPlainGet(t *testing.T) {
	ts := newTestGateway(t)

	// A GET without upgrade headers must not be treated as a WebSocket.
	resp, err := http.Get(ts.URL + "/ws")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestWebSocketEndpointRejectsPost(t *testing.T) {
	ts := newTestGateway(t)

	resp, err := http.Post(ts.URL+"/ws", "application/json", http.NoBody)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	ts := newTestGateway(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}
