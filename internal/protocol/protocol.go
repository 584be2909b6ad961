// Package protocol defines the JSON envelopes exchanged with clients over a
// WebSocket connection. Each frame carries exactly one envelope.
package protocol

import "github.com/Tyrowin/gorelay/internal/chat"

// Event types. Authenticate, Message, and Typing arrive from clients; Ack,
// Message, History, and Presence go back out.
const (
	EventAuthenticate = "authenticate"
	EventMessage      = "message"
	EventTyping       = "typing"
	EventAck          = "ack"
	EventHistory      = "messageHistory"
	EventPresence     = "presenceUpdate"
)

// Ack statuses.
const (
	StatusSuccess   = "success"
	StatusDelivered = "delivered"
	StatusDuplicate = "duplicate"
	StatusError     = "error"
)

// Inbound is the envelope read from a client connection. The fields form a
// union across the inbound event types; Type selects which are meaningful.
// ID is an optional client-supplied idempotency token for message events.
type Inbound struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Room     string `json:"room,omitempty"`
	Text     string `json:"text,omitempty"`
	ID       string `json:"id,omitempty"`
	IsTyping bool   `json:"isTyping,omitempty"`
}

// Ack acknowledges an authenticate or message event to the originating
// connection only.
type Ack struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewAck builds an acknowledgment for the given inbound event.
func NewAck(event, status, message string) Ack {
	return Ack{Type: EventAck, Event: event, Status: status, Message: message}
}

// MessageEvent broadcasts one message, user or System authored, to a room.
type MessageEvent struct {
	Type    string       `json:"type"`
	Message chat.Message `json:"message"`
}

// NewMessageEvent wraps msg for broadcast.
func NewMessageEvent(msg chat.Message) MessageEvent {
	return MessageEvent{Type: EventMessage, Message: msg}
}

// HistoryEvent replays recent room history, oldest first, to a joining
// connection.
type HistoryEvent struct {
	Type     string         `json:"type"`
	Messages []chat.Message `json:"messages"`
}

// NewHistoryEvent wraps msgs for replay. A nil slice is sent as an empty
// array so clients always receive a list.
func NewHistoryEvent(msgs []chat.Message) HistoryEvent {
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return HistoryEvent{Type: EventHistory, Messages: msgs}
}

// PresenceEvent broadcasts a room's member snapshot in insertion order.
type PresenceEvent struct {
	Type    string               `json:"type"`
	Members []chat.PresenceEntry `json:"members"`
}

// NewPresenceEvent wraps entries for broadcast.
func NewPresenceEvent(entries []chat.PresenceEntry) PresenceEvent {
	if entries == nil {
		entries = []chat.PresenceEntry{}
	}
	return PresenceEvent{Type: EventPresence, Members: entries}
}
