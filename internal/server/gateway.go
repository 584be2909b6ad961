// Package server exposes the HTTP surface of GoRelay: WebSocket upgrades,
// liveness endpoints, and Prometheus metrics.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/gorelay/internal/chat"
	"github.com/Tyrowin/gorelay/internal/config"
)

// Gateway bridges HTTP requests into the hub and the chat engine.
type Gateway struct {
	hub      *Hub
	engine   *chat.Engine
	cfg      *config.Config
	upgrader websocket.Upgrader
	log      zerolog.Logger
	started  time.Time
}

// NewGateway creates the HTTP gateway for the given hub and engine.
func NewGateway(hub *Hub, engine *chat.Engine, cfg *config.Config, log zerolog.Logger) *Gateway {
	origins := newOriginChecker(cfg.AllowedOrigins, log)
	return &Gateway{
		hub:    hub,
		engine: engine,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		log:     log,
		started: time.Now(),
	}
}

// WebSocket upgrades the request and registers the new connection with the
// hub, which launches the client's pump goroutines. Each connection gets a
// fresh identifier; the engine keeps the connection unauthenticated until a
// successful authenticate event.
func (g *Gateway) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(conn, g.hub, g.engine, uuid.NewString(), r.RemoteAddr, g.cfg, g.log)
	g.hub.register <- client
}

// Root reports process liveness in plain text.
func (g *Gateway) Root(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("GoRelay server is running!"))
}

// Health reports liveness, uptime, and the current room count as JSON.
func (g *Gateway) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "OK",
		"uptime": time.Since(g.started).Seconds(),
		"rooms":  g.engine.RoomCount(),
	})
}
