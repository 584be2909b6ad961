package chat

// DefaultHistoryLimit caps per-room history and bounds the replay sent to a
// joining connection.
const DefaultHistoryLimit = 50

// member is a user's presence within one room for the lifetime of one
// connection.
type member struct {
	conn     string
	username string
	typing   bool
}

// room owns an ordered member set and a bounded history buffer. A room is
// created on first join and torn down together with its history the moment
// its member set empties.
type room struct {
	name    string
	members []*member // insertion order, preserved for presence snapshots
	history []Message
}

func (r *room) findUsername(username string) *member {
	for _, m := range r.members {
		if m.username == username {
			return m
		}
	}
	return nil
}

func (r *room) removeConn(conn string) *member {
	for i, m := range r.members {
		if m.conn == conn {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return m
		}
	}
	return nil
}

// conns returns the connection identifiers of all current members.
func (r *room) conns() []string {
	out := make([]string, len(r.members))
	for i, m := range r.members {
		out[i] = m.conn
	}
	return out
}

// presence returns the member snapshot in insertion order.
func (r *room) presence() []PresenceEntry {
	out := make([]PresenceEntry, len(r.members))
	for i, m := range r.members {
		out[i] = PresenceEntry{Username: m.username, IsTyping: m.typing}
	}
	return out
}

// registry maps room identifiers to rooms. It is not safe for concurrent use;
// the engine serializes all access.
type registry struct {
	rooms        map[string]*room
	historyLimit int
}

func newRegistry(historyLimit int) *registry {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &registry{
		rooms:        make(map[string]*room),
		historyLimit: historyLimit,
	}
}

// join adds a member to roomID, creating the room on first join. Usernames
// are unique among the room's active members, case-sensitively.
func (g *registry) join(conn, username, roomID string) (*member, *room, error) {
	rm := g.rooms[roomID]
	if rm == nil {
		rm = &room{name: roomID}
		g.rooms[roomID] = rm
	} else if rm.findUsername(username) != nil {
		return nil, nil, ErrUsernameTaken
	}

	m := &member{conn: conn, username: username}
	rm.members = append(rm.members, m)
	return m, rm, nil
}

// leave removes the member owning conn from roomID. When the member set
// empties the room and its history are deleted in the same step, so there is
// no window where an empty room is queryable. The second return reports
// whether the room still exists.
func (g *registry) leave(conn, roomID string) (*member, bool) {
	rm := g.rooms[roomID]
	if rm == nil {
		return nil, false
	}

	m := rm.removeConn(conn)
	if m == nil {
		return nil, true
	}
	if len(rm.members) == 0 {
		delete(g.rooms, roomID)
		return m, false
	}
	return m, true
}

// append stores msg in roomID's history, truncating the oldest entries beyond
// the cap. Messages for absent rooms are dropped; history never outlives its
// room.
func (g *registry) append(roomID string, msg Message) {
	rm := g.rooms[roomID]
	if rm == nil {
		return
	}
	rm.history = append(rm.history, msg)
	if len(rm.history) > g.historyLimit {
		rm.history = rm.history[len(rm.history)-g.historyLimit:]
	}
}

// history returns up to the last limit messages of roomID, oldest first.
// A non-positive limit defaults to the registry's cap. Absent rooms yield nil.
func (g *registry) history(roomID string, limit int) []Message {
	rm := g.rooms[roomID]
	if rm == nil {
		return nil
	}
	if limit <= 0 || limit > g.historyLimit {
		limit = g.historyLimit
	}

	msgs := rm.history
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
