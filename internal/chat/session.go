package chat

// session is the live binding between a connection identifier and its member.
// A connection moves Unauthenticated -> Authenticated on join success and
// Authenticated -> Terminated on disconnect; there is no way back, a new
// connection is required to rejoin. The table only holds Authenticated
// sessions: a missing entry means the connection is either unauthenticated or
// already terminated.
type session struct {
	room   string
	member *member
}

// sessionTable keys sessions by connection identifier so disconnect teardown
// is a direct lookup rather than a scan across rooms.
type sessionTable struct {
	sessions map[string]*session
}

func newSessionTable() *sessionTable {
	return &sessionTable{sessions: make(map[string]*session)}
}

func (t *sessionTable) lookup(conn string) *session {
	return t.sessions[conn]
}

func (t *sessionTable) bind(conn, roomID string, m *member) {
	t.sessions[conn] = &session{room: roomID, member: m}
}

// unbind removes and returns the session for conn, or nil if none exists.
func (t *sessionTable) unbind(conn string) *session {
	s := t.sessions[conn]
	if s != nil {
		delete(t.sessions, conn)
	}
	return s
}
