// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and event dispatch into the chat engine.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/gorelay/internal/chat"
	"github.com/Tyrowin/gorelay/internal/config"
	"github.com/Tyrowin/gorelay/internal/protocol"
)

const (
	// writeWait is the deadline for a single outbound write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before it is
	// considered dead.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = 54 * time.Second
	// sendBuffer is the per-client outbound queue size.
	sendBuffer = 256
)

// Client represents one WebSocket connection. It owns the connection state,
// the outbound queue, and the dispatch of inbound events into the engine.
type Client struct {
	conn           *websocket.Conn
	id             string
	send           chan []byte
	hub            *Hub
	engine         *chat.Engine
	addr           string
	closed         bool
	maxMessageSize int64
	limiter        *tokenBucket
	log            zerolog.Logger
}

// NewClient creates a Client for the given connection. The id is the
// connection identifier used by the engine's session table.
func NewClient(conn *websocket.Conn, hub *Hub, engine *chat.Engine, id, addr string, cfg *config.Config, log zerolog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		id:             id,
		send:           make(chan []byte, sendBuffer),
		hub:            hub,
		engine:         engine,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newTokenBucket(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		log:            log.With().Str("conn", id).Str("remote", addr).Logger(),
	}
}

// ID returns the connection identifier.
func (c *Client) ID() string {
	return c.id
}

// GetSendChan returns the client's outbound queue for reading.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn().Err(err).Msg("error setting read deadline in pong handler")
		}
		return nil
	})
}

// logReadError records why the read loop is ending.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Int64("limit", c.maxMessageSize).Msg("inbound frame exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Debug().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Debug().Err(err).Msg("connection closed")
	default:
		c.log.Warn().Err(err).Msg("websocket read error")
	}
}

// readPump consumes inbound frames until the connection dies, then tears the
// session down. Disconnect runs before unregistration so leave notices go out
// while the remaining members are still reachable.
func (c *Client) readPump() {
	defer func() {
		c.engine.Disconnect(c.id)
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
			// The hub loop has stopped; it will not drain unregister.
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error closing connection in readPump")
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			break
		}

		if !c.limiter.allow() {
			c.log.Warn().Msg("rate limit exceeded; discarding event")
			continue
		}

		c.dispatch(raw)
	}
}

// dispatch decodes one inbound envelope and routes it to the engine.
// Malformed frames are dropped; the connection stays usable.
func (c *Client) dispatch(raw []byte) {
	var in protocol.Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		c.log.Warn().Err(err).Msg("invalid inbound frame")
		return
	}

	switch in.Type {
	case protocol.EventAuthenticate:
		c.handleAuthenticate(in)
	case protocol.EventMessage:
		c.handleMessage(in)
	case protocol.EventTyping:
		c.handleTyping(in)
	default:
		c.log.Warn().Str("type", in.Type).Msg("unknown event type")
	}
}

func (c *Client) handleAuthenticate(in protocol.Inbound) {
	if err := c.engine.Authenticate(c.id, in.Username, in.Room); err != nil {
		c.ack(protocol.NewAck(protocol.EventAuthenticate, protocol.StatusError, err.Error()))
		return
	}
	c.ack(protocol.NewAck(protocol.EventAuthenticate, protocol.StatusSuccess, ""))
}

func (c *Client) handleMessage(in protocol.Inbound) {
	_, err := c.engine.Submit(c.id, in.Room, in.Username, in.Text, in.ID)
	switch {
	case err == nil:
		c.ack(protocol.NewAck(protocol.EventMessage, protocol.StatusDelivered, ""))
	case errors.Is(err, chat.ErrDuplicate):
		c.ack(protocol.NewAck(protocol.EventMessage, protocol.StatusDuplicate, ""))
	default:
		c.ack(protocol.NewAck(protocol.EventMessage, protocol.StatusError, err.Error()))
	}
}

func (c *Client) handleTyping(in protocol.Inbound) {
	// Typing events carry no ack; failures are only logged.
	if err := c.engine.SetTyping(c.id, in.Room, in.IsTyping); err != nil {
		c.log.Debug().Err(err).Msg("typing event rejected")
	}
}

// ack queues an acknowledgment for this connection only. The send goes
// through the hub so it cannot race the hub closing this client's channel.
func (c *Client) ack(a protocol.Ack) {
	payload, err := json.Marshal(a)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to encode ack")
		return
	}
	if !c.hub.safeSend(c, payload) {
		c.log.Warn().Msg("client unavailable; dropping ack")
	}
}

// writePump drains the outbound queue and keeps the connection alive with
// periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error closing connection in writePump")
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.log.Warn().Err(err).Msg("error setting write deadline")
				return
			}
			if !ok {
				// The hub closed the channel.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
					c.log.Debug().Err(err).Msg("error writing close message")
				}
				return
			}
			if !c.writeFrame(payload) {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.log.Warn().Err(err).Msg("error setting write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Debug().Err(err).Msg("error writing ping message")
				}
				return
			}

		case <-c.hub.ctx.Done():
			if err := c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")); err != nil && !isExpectedCloseError(err) {
				c.log.Debug().Err(err).Msg("error writing shutdown close message")
			}
			return
		}
	}
}

// writeFrame sends one payload as a single text frame. Envelopes are never
// coalesced; clients rely on one event per frame.
func (c *Client) writeFrame(payload []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error writing frame")
		}
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
