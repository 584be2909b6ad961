package integration

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gorelay/test/testhelpers"
)

func TestShutdownWithoutClients(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	if err := relay.Hub.Shutdown(2 * time.Second); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

// TestShutdownWithConnectedClients verifies that shutdown closes live
// connections and that their goroutines drain within the timeout.
func TestShutdownWithConnectedClients(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	conns := make([]*websocket.Conn, 0, 3)
	for _, name := range []string{"alice", "bob", "carol"} {
		conn := relay.Connect(t)
		testhelpers.Authenticate(t, conn, name, "lobby")
		conns = append(conns, conn)
	}

	if err := relay.Hub.Shutdown(5 * time.Second); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	// Every client should observe the connection closing. Drain any frames
	// queued before the close; the deadline bounds the wait.
	for i, conn := range conns {
		if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			t.Fatalf("Failed to set read deadline on connection %d: %v", i, err)
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	conn := relay.Connect(t)
	testhelpers.Authenticate(t, conn, "alice", "lobby")

	if err := relay.Hub.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("first Shutdown() error = %v", err)
	}
	if err := relay.Hub.Shutdown(2 * time.Second); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}
