package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/gorelay/internal/metrics"
)

// Sender delivers outbound events to connections. Implementations must not
// block: delivery is fire-and-forget relative to the mutation that produced
// the event, and a slow receiver must never stall the engine.
type Sender interface {
	// Message broadcasts msg to the given connections.
	Message(conns []string, msg Message)
	// History replays msgs, oldest first, to a single joining connection.
	History(conn string, msgs []Message)
	// Presence broadcasts a room's member snapshot to the given connections.
	Presence(conns []string, entries []PresenceEntry)
}

// Options tune an Engine. Zero values fall back to the package defaults.
type Options struct {
	HistoryLimit int
	DedupWindow  time.Duration
	Clock        Clock
	Logger       zerolog.Logger
}

// Engine coordinates the room registry, session table, and dedup window.
// All mutations are serialized behind one mutex; rooms never observe partial
// state from interleaved events.
type Engine struct {
	mu       sync.Mutex
	rooms    *registry
	sessions *sessionTable
	dedup    *Window
	sender   Sender
	clock    Clock
	log      zerolog.Logger
	seq      uint64
}

// NewEngine creates an engine that fans events out through sender.
func NewEngine(sender Sender, opts Options) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}
	return &Engine{
		rooms:    newRegistry(opts.HistoryLimit),
		sessions: newSessionTable(),
		dedup:    NewWindow(opts.DedupWindow, clock),
		sender:   sender,
		clock:    clock,
		log:      opts.Logger,
	}
}

// Run drives background expiry of dedup entries until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	e.dedup.Run(ctx, 0)
}

// Authenticate joins conn to roomID under username. On success the joining
// connection receives the room's history, and every member (the joiner
// included) receives a System join notice followed by a fresh presence
// snapshot. The replay is captured before the join notice lands in history,
// so a connection never sees its own arrival in the replayed messages.
func (e *Engine) Authenticate(conn, username, roomID string) error {
	if username == "" || roomID == "" {
		return fmt.Errorf("%w: username and room are required", ErrInvalidInput)
	}

	e.mu.Lock()
	if e.sessions.lookup(conn) != nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: connection already authenticated", ErrInvalidInput)
	}

	m, rm, err := e.rooms.join(conn, username, roomID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.sessions.bind(conn, roomID, m)

	replay := e.rooms.history(roomID, 0)

	e.seq++
	notice := newMessage(roomID, SystemUser, username+" has joined the chat", e.clock.Now(), e.seq)
	e.rooms.append(roomID, notice)

	recipients := rm.conns()
	entries := rm.presence()
	roomCount := len(e.rooms.rooms)
	e.mu.Unlock()

	metrics.MembersJoined.Inc()
	metrics.RoomsActive.Set(float64(roomCount))
	metrics.MessagesDelivered.WithLabelValues("system").Inc()

	e.log.Info().
		Str("room", roomID).
		Str("username", username).
		Str("conn", conn).
		Msg("member joined")

	e.sender.History(conn, replay)
	e.sender.Message(recipients, notice)
	e.sender.Presence(recipients, entries)
	return nil
}

// Submit validates, deduplicates, stores, and broadcasts a message from conn.
// The payload room and username must match the authenticated session. When
// token is non-empty it becomes the message identifier, so a retransmission
// carrying the same token is reported as ErrDuplicate instead of being
// delivered twice; without a token the derived identifier's arrival sequence
// keeps legitimate same-millisecond repeats distinct.
func (e *Engine) Submit(conn, roomID, username, text, token string) (Message, error) {
	if roomID == "" || username == "" || text == "" {
		metrics.MessagesRejected.WithLabelValues("invalid_input").Inc()
		return Message{}, fmt.Errorf("%w: room, text, and username are required", ErrInvalidInput)
	}

	e.mu.Lock()
	s := e.sessions.lookup(conn)
	if s == nil {
		e.mu.Unlock()
		metrics.MessagesRejected.WithLabelValues("not_authenticated").Inc()
		return Message{}, ErrNotAuthenticated
	}
	if s.room != roomID || s.member.username != username {
		e.mu.Unlock()
		metrics.MessagesRejected.WithLabelValues("session_mismatch").Inc()
		return Message{}, fmt.Errorf("%w: room and username must match the authenticated session", ErrInvalidInput)
	}

	e.seq++
	msg := newMessage(roomID, username, text, e.clock.Now(), e.seq)
	if token != "" {
		msg.ID = token
	}

	if !e.dedup.Accept(msg.ID) {
		e.mu.Unlock()
		metrics.MessagesDuplicate.Inc()
		e.log.Debug().Str("room", roomID).Str("id", msg.ID).Msg("duplicate message suppressed")
		return Message{}, ErrDuplicate
	}

	e.rooms.append(roomID, msg)
	recipients := e.rooms.rooms[roomID].conns()
	e.mu.Unlock()

	metrics.MessagesDelivered.WithLabelValues("user").Inc()
	e.sender.Message(recipients, msg)
	return msg, nil
}

// SetTyping updates conn's typing flag and broadcasts a presence snapshot to
// its room. An empty roomID means the session's own room; a non-empty roomID
// must match the authenticated session.
func (e *Engine) SetTyping(conn, roomID string, isTyping bool) error {
	e.mu.Lock()
	s := e.sessions.lookup(conn)
	if s == nil {
		e.mu.Unlock()
		return ErrNotAuthenticated
	}
	if roomID == "" {
		roomID = s.room
	}
	if roomID != s.room {
		e.mu.Unlock()
		return fmt.Errorf("%w: room must match the authenticated session", ErrInvalidInput)
	}

	s.member.typing = isTyping
	rm := e.rooms.rooms[s.room]
	recipients := rm.conns()
	entries := rm.presence()
	e.mu.Unlock()

	e.sender.Presence(recipients, entries)
	return nil
}

// Disconnect tears down conn's session and room membership. Remaining members
// receive a System leave notice and a presence snapshot; when the last member
// leaves, the room and its history are deleted together. Unknown connections
// are a no-op, so processing a disconnect twice is harmless.
func (e *Engine) Disconnect(conn string) {
	e.mu.Lock()
	s := e.sessions.unbind(conn)
	if s == nil {
		e.mu.Unlock()
		return
	}

	m, alive := e.rooms.leave(conn, s.room)
	roomCount := len(e.rooms.rooms)

	var (
		notice     Message
		recipients []string
		entries    []PresenceEntry
	)
	if m != nil && alive {
		e.seq++
		notice = newMessage(s.room, SystemUser, m.username+" has left the chat", e.clock.Now(), e.seq)
		e.rooms.append(s.room, notice)
		rm := e.rooms.rooms[s.room]
		recipients = rm.conns()
		entries = rm.presence()
	}
	e.mu.Unlock()

	metrics.MembersLeft.Inc()
	metrics.RoomsActive.Set(float64(roomCount))

	e.log.Info().
		Str("room", s.room).
		Str("username", s.member.username).
		Str("conn", conn).
		Msg("member left")

	if len(recipients) > 0 {
		metrics.MessagesDelivered.WithLabelValues("system").Inc()
		e.sender.Message(recipients, notice)
		e.sender.Presence(recipients, entries)
	}
}

// History returns up to the last limit messages of roomID, oldest first.
// A non-positive limit defaults to the configured cap.
func (e *Engine) History(roomID string, limit int) []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rooms.history(roomID, limit)
}

// Presence returns roomID's member snapshot in insertion order, or nil if the
// room does not exist.
func (e *Engine) Presence(roomID string) []PresenceEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	rm := e.rooms.rooms[roomID]
	if rm == nil {
		return nil
	}
	return rm.presence()
}

// RoomCount reports how many rooms currently exist.
func (e *Engine) RoomCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rooms.rooms)
}
