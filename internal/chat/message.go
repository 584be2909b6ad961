package chat

import (
	"fmt"
	"time"
)

// SystemUser is the reserved author for synthetic join and leave notices.
const SystemUser = "System"

// timestampLayout renders the room-local wall-clock display timestamp.
const timestampLayout = "15:04:05"

// Message is a single chat message. Messages are immutable once created and
// live only in their room's bounded history buffer.
type Message struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	Room      string `json:"room"`
}

// newMessage builds a message whose identifier is derived from the author,
// timestamp, text, and an arrival sequence number. The sequence number breaks
// ties between identical same-millisecond sends so organic repeats are never
// mistaken for retransmissions.
func newMessage(room, username, text string, now time.Time, seq uint64) Message {
	ts := now.Format(timestampLayout)
	return Message{
		ID:        fmt.Sprintf("%s-%s-%s-%d-%d", username, ts, text, now.UnixMilli(), seq),
		Username:  username,
		Text:      text,
		Timestamp: ts,
		Room:      room,
	}
}

// PresenceEntry is one member's slot in a presence snapshot.
type PresenceEntry struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}
