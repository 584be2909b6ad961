// Package testhelpers provides common utilities for testing the GoRelay
// server.
//
// It contains reusable helpers shared across unit and integration tests:
// starting a fully wired relay, dialing WebSocket clients, and exchanging
// protocol envelopes without duplicating setup in every test file.
package testhelpers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/gorelay/internal/chat"
	"github.com/Tyrowin/gorelay/internal/config"
	"github.com/Tyrowin/gorelay/internal/protocol"
	"github.com/Tyrowin/gorelay/internal/server"
)

// TestOrigin is the Origin header used by test clients; the default config
// allows it.
const TestOrigin = "http://localhost:8080"

// readTimeout bounds every single envelope read in tests.
const readTimeout = 2 * time.Second

// Relay bundles a fully wired test server with its collaborators.
type Relay struct {
	Server *httptest.Server
	Hub    *server.Hub
	Engine *chat.Engine
	Config *config.Config
}

// StartRelay starts a hub, engine, and HTTP server wired together with the
// given config (nil for defaults). Teardown is registered with t.Cleanup.
func StartRelay(t *testing.T, cfg *config.Config) *Relay {
	t.Helper()

	if cfg == nil {
		cfg = config.Default()
	}
	logger := zerolog.Nop()

	hub := server.NewHub(logger)
	engine := chat.NewEngine(hub, chat.Options{
		HistoryLimit: cfg.HistoryLimit,
		DedupWindow:  cfg.DedupWindow,
		Logger:       logger,
	})
	go hub.Run()

	gateway := server.NewGateway(hub, engine, cfg, logger)
	ts := httptest.NewServer(gateway.Routes())

	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
	})

	return &Relay{Server: ts, Hub: hub, Engine: engine, Config: cfg}
}

// WebSocketURL converts the test server's base URL into its /ws endpoint.
func (r *Relay) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(r.Server.URL, "http") + "/ws"
}

// Connect dials the relay's WebSocket endpoint with the allowed test origin
// and registers cleanup for the connection.
func (r *Relay) Connect(t *testing.T) *websocket.Conn {
	t.Helper()

	conn, err := ConnectWebSocket(r.WebSocketURL())
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// ConnectWebSocket creates a WebSocket connection to the specified URL using
// the allowed test origin.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	return ConnectWebSocketWithOrigin(url, TestOrigin)
}

// ConnectWebSocketWithOrigin dials with an explicit Origin header, returning
// the handshake response so callers can assert on rejections.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, error) {
	conn, resp, err := dialWebSocket(url, origin)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// DialStatus dials with the given origin and returns the handshake HTTP
// status code along with any error.
func DialStatus(url, origin string) (int, error) {
	conn, resp, err := dialWebSocket(url, origin)
	if conn != nil {
		_ = conn.Close()
	}
	status := 0
	if resp != nil {
		status = resp.StatusCode
		_ = resp.Body.Close()
	}
	return status, err
}

func dialWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	return dialer.Dial(url, headers)
}

// SendAuthenticate sends an authenticate event.
func SendAuthenticate(conn *websocket.Conn, username, room string) error {
	return conn.WriteJSON(protocol.Inbound{
		Type:     protocol.EventAuthenticate,
		Username: username,
		Room:     room,
	})
}

// SendChatMessage sends a message event. token may be empty; a non-empty
// token acts as the idempotency key for retransmission detection.
func SendChatMessage(conn *websocket.Conn, room, username, text, token string) error {
	return conn.WriteJSON(protocol.Inbound{
		Type:     protocol.EventMessage,
		Room:     room,
		Username: username,
		Text:     text,
		ID:       token,
	})
}

// SendTyping sends a typing event.
func SendTyping(conn *websocket.Conn, room string, isTyping bool) error {
	return conn.WriteJSON(protocol.Inbound{
		Type:     protocol.EventTyping,
		Room:     room,
		IsTyping: isTyping,
	})
}

// ReadEnvelope reads the next envelope from the connection, failing the test
// if nothing arrives within the read timeout.
func ReadEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	var env map[string]any
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("Failed to read envelope: %v", err)
	}
	return env
}

// WaitForEvent reads envelopes until one with the given type arrives,
// failing the test on timeout.
func WaitForEvent(t *testing.T, conn *websocket.Conn, eventType string) map[string]any {
	t.Helper()

	for i := 0; i < 20; i++ {
		env := ReadEnvelope(t, conn)
		if env["type"] == eventType {
			return env
		}
	}
	t.Fatalf("No %q event received", eventType)
	return nil
}

// ExpectNoEvent asserts that nothing arrives on the connection within the
// given window.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	if _, raw, err := conn.ReadMessage(); err == nil {
		t.Fatalf("Expected no event, received: %s", raw)
	}
}

// Authenticate joins the connection to a room and consumes the join
// envelopes (history, join notice, presence, ack), failing the test unless
// the ack reports success. It returns the replayed history envelope.
func Authenticate(t *testing.T, conn *websocket.Conn, username, room string) map[string]any {
	t.Helper()

	if err := SendAuthenticate(conn, username, room); err != nil {
		t.Fatalf("Failed to send authenticate: %v", err)
	}

	history := ReadEnvelope(t, conn)
	if history["type"] != protocol.EventHistory {
		t.Fatalf("First join envelope type = %v, want %q", history["type"], protocol.EventHistory)
	}

	ack := WaitForEvent(t, conn, protocol.EventAck)
	if ack["status"] != protocol.StatusSuccess {
		t.Fatalf("Authenticate ack = %v, want success", ack)
	}
	return history
}

// AckStatus extracts the status from an ack envelope.
func AckStatus(t *testing.T, env map[string]any) string {
	t.Helper()

	status, ok := env["status"].(string)
	if !ok {
		t.Fatalf("Envelope has no status: %v", env)
	}
	return status
}

// HistoryMessages extracts the message list from a messageHistory envelope.
func HistoryMessages(t *testing.T, env map[string]any) []any {
	t.Helper()

	msgs, ok := env["messages"].([]any)
	if !ok {
		t.Fatalf("Envelope has no messages list: %v", env)
	}
	return msgs
}

// PresenceMembers extracts the member list from a presenceUpdate envelope.
func PresenceMembers(t *testing.T, env map[string]any) []any {
	t.Helper()

	members, ok := env["members"].([]any)
	if !ok {
		t.Fatalf("Envelope has no members list: %v", env)
	}
	return members
}

// MessageField extracts a field from a message envelope's payload.
func MessageField(t *testing.T, env map[string]any, field string) string {
	t.Helper()

	payload, ok := env["message"].(map[string]any)
	if !ok {
		t.Fatalf("Envelope has no message payload: %v", env)
	}
	value, ok := payload[field].(string)
	if !ok {
		t.Fatalf("Message payload has no %q field: %v", field, payload)
	}
	return value
}
