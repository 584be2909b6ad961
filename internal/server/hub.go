// Package server coordinates client registration, event fan-out, and
// connection cleanup for the GoRelay WebSocket transport via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/gorelay/internal/chat"
	"github.com/Tyrowin/gorelay/internal/metrics"
	"github.com/Tyrowin/gorelay/internal/protocol"
)

// Hub tracks all WebSocket clients by connection identifier and delivers
// outbound engine events to them. It satisfies chat.Sender: deliveries are
// non-blocking, and a client whose send buffer is full is dropped rather than
// allowed to stall the engine.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	log        zerolog.Logger
}

// NewHub creates a Hub ready to manage WebSocket connections.
func NewHub(log zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        log,
	}
}

// GetRegisterChan returns the channel used for registering new clients.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// Run starts the hub's lifecycle loop, handling client registration and
// unregistration until Shutdown is called. Run should be called in its own
// goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn().Msg("received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client.id] = client
			clientCount := len(h.clients)
			h.mutex.Unlock()

			metrics.ConnectionsActive.Set(float64(clientCount))
			h.log.Info().
				Str("conn", client.id).
				Str("remote", client.addr).
				Int("total", clientCount).
				Msg("client registered")

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				client.closed = true
				clientCount := len(h.clients)
				h.mutex.Unlock()
				// Close the channel after releasing the lock.
				close(client.send)
				metrics.ConnectionsActive.Set(float64(clientCount))
				h.log.Info().
					Str("conn", client.id).
					Str("remote", client.addr).
					Int("total", clientCount).
					Msg("client unregistered")
			} else {
				h.mutex.Unlock()
			}
		}
	}
}

// safeSend enqueues one payload for a single client. The hub's lock is held
// across the registration check and the send so the channel cannot be closed
// mid-send; the recover covers the remaining close race on unregister.
func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Warn().Interface("panic", r).Msg("recovered from panic in safeSend")
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client.id]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// Message broadcasts msg to the given connections. Part of chat.Sender.
func (h *Hub) Message(conns []string, msg chat.Message) {
	h.deliver(conns, protocol.NewMessageEvent(msg))
}

// History replays msgs to a single joining connection. Part of chat.Sender.
func (h *Hub) History(conn string, msgs []chat.Message) {
	h.deliver([]string{conn}, protocol.NewHistoryEvent(msgs))
}

// Presence broadcasts a member snapshot to the given connections. Part of
// chat.Sender.
func (h *Hub) Presence(conns []string, entries []chat.PresenceEntry) {
	h.deliver(conns, protocol.NewPresenceEvent(entries))
}

// deliver encodes event once and enqueues it on every target client. Clients
// that cannot accept the payload are removed.
func (h *Hub) deliver(conns []string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to encode outbound event")
		return
	}

	var failed []*Client
	h.mutex.RLock()
	for _, id := range conns {
		client, ok := h.clients[id]
		if !ok || client.closed {
			continue
		}
		select {
		case client.send <- payload:
		default:
			failed = append(failed, client)
		}
	}
	h.mutex.RUnlock()

	h.removeFailedClients(failed)
}

// removeFailedClients drops clients whose send buffers overflowed and closes
// their channels.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if _, exists := h.clients[client.id]; exists {
			delete(h.clients, client.id)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			h.log.Warn().
				Str("conn", client.id).
				Str("remote", client.addr).
				Msg("client removed due to full send buffer")
		}
	}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	metrics.ConnectionsActive.Set(float64(clientCount))

	// Close channels after releasing the lock.
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	h.log.Info().Msg("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn().Err(err).Str("remote", client.addr).Msg("error closing client connection")
			}
		}
	}

	h.log.Info().Int("count", len(clients)).Msg("closed client connections")
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to finish, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
