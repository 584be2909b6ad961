// Package integration contains end-to-end tests that exercise the GoRelay
// server over real WebSocket connections.
package integration

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gorelay/internal/config"
	"github.com/Tyrowin/gorelay/internal/protocol"
	"github.com/Tyrowin/gorelay/test/testhelpers"
)

// TestJoinSequence verifies the envelope order a joining connection sees:
// history replay first, then its own join notice, presence, and the ack.
func TestJoinSequence(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)
	conn := relay.Connect(t)

	if err := testhelpers.SendAuthenticate(conn, "alice", "lobby"); err != nil {
		t.Fatalf("Failed to send authenticate: %v", err)
	}

	history := testhelpers.ReadEnvelope(t, conn)
	if history["type"] != protocol.EventHistory {
		t.Fatalf("envelope 1 type = %v, want %q", history["type"], protocol.EventHistory)
	}
	if msgs := testhelpers.HistoryMessages(t, history); len(msgs) != 0 {
		t.Errorf("first joiner history length = %d, want 0", len(msgs))
	}

	notice := testhelpers.ReadEnvelope(t, conn)
	if notice["type"] != protocol.EventMessage {
		t.Fatalf("envelope 2 type = %v, want %q", notice["type"], protocol.EventMessage)
	}
	if got := testhelpers.MessageField(t, notice, "username"); got != "System" {
		t.Errorf("join notice author = %q, want System", got)
	}
	if got := testhelpers.MessageField(t, notice, "text"); got != "alice has joined the chat" {
		t.Errorf("join notice text = %q", got)
	}

	presence := testhelpers.ReadEnvelope(t, conn)
	if presence["type"] != protocol.EventPresence {
		t.Fatalf("envelope 3 type = %v, want %q", presence["type"], protocol.EventPresence)
	}
	if members := testhelpers.PresenceMembers(t, presence); len(members) != 1 {
		t.Errorf("presence members = %d, want 1", len(members))
	}

	ack := testhelpers.ReadEnvelope(t, conn)
	if ack["type"] != protocol.EventAck || ack["status"] != protocol.StatusSuccess {
		t.Errorf("envelope 4 = %v, want success ack", ack)
	}
}

// TestChatScenario walks the full two-user flow: join, system notices,
// message exchange, typing, leave notice, and room teardown.
func TestChatScenario(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	alice := relay.Connect(t)
	testhelpers.Authenticate(t, alice, "alice", "lobby")

	bob := relay.Connect(t)
	history := testhelpers.Authenticate(t, bob, "bob", "lobby")

	// Bob's replay already holds alice's join notice.
	if msgs := testhelpers.HistoryMessages(t, history); len(msgs) != 1 {
		t.Errorf("bob history length = %d, want 1", len(msgs))
	}

	// Alice sees bob arrive.
	notice := testhelpers.WaitForEvent(t, alice, protocol.EventMessage)
	if got := testhelpers.MessageField(t, notice, "text"); got != "bob has joined the chat" {
		t.Errorf("alice saw join notice %q", got)
	}
	presence := testhelpers.WaitForEvent(t, alice, protocol.EventPresence)
	members := testhelpers.PresenceMembers(t, presence)
	if len(members) != 2 {
		t.Fatalf("presence members = %d, want 2", len(members))
	}

	// Alice sends "hi"; both receive it, alice also gets a delivered ack.
	if err := testhelpers.SendChatMessage(alice, "lobby", "alice", "hi", ""); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
	echoed := testhelpers.WaitForEvent(t, alice, protocol.EventMessage)
	if got := testhelpers.MessageField(t, echoed, "username"); got != "alice" {
		t.Errorf("echoed author = %q, want alice", got)
	}
	ack := testhelpers.WaitForEvent(t, alice, protocol.EventAck)
	if testhelpers.AckStatus(t, ack) != protocol.StatusDelivered {
		t.Errorf("message ack = %v, want delivered", ack)
	}
	received := testhelpers.WaitForEvent(t, bob, protocol.EventMessage)
	if got := testhelpers.MessageField(t, received, "text"); got != "hi" {
		t.Errorf("bob received %q, want hi", got)
	}

	// Bob starts typing; alice sees the flag in the next presence snapshot.
	if err := testhelpers.SendTyping(bob, "lobby", true); err != nil {
		t.Fatalf("Failed to send typing: %v", err)
	}
	presence = testhelpers.WaitForEvent(t, alice, protocol.EventPresence)
	members = testhelpers.PresenceMembers(t, presence)
	typing := false
	for _, m := range members {
		entry := m.(map[string]any)
		if entry["username"] == "bob" && entry["isTyping"] == true {
			typing = true
		}
	}
	if !typing {
		t.Errorf("presence after typing = %v, want bob typing", members)
	}

	// Bob disconnects; alice gets the leave notice and a one-member snapshot.
	_ = bob.Close()
	leave := testhelpers.WaitForEvent(t, alice, protocol.EventMessage)
	if got := testhelpers.MessageField(t, leave, "text"); got != "bob has left the chat" {
		t.Errorf("leave notice = %q", got)
	}
	presence = testhelpers.WaitForEvent(t, alice, protocol.EventPresence)
	if members := testhelpers.PresenceMembers(t, presence); len(members) != 1 {
		t.Errorf("presence after leave = %v, want 1 member", members)
	}

	// Alice disconnects; the room ceases to exist.
	_ = alice.Close()
	deadline := time.Now().Add(2 * time.Second)
	for relay.Engine.RoomCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("RoomCount() = %d after all members left, want 0", relay.Engine.RoomCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestUsernameConflict(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	first := relay.Connect(t)
	testhelpers.Authenticate(t, first, "alice", "lobby")

	second := relay.Connect(t)
	if err := testhelpers.SendAuthenticate(second, "alice", "lobby"); err != nil {
		t.Fatalf("Failed to send authenticate: %v", err)
	}
	ack := testhelpers.WaitForEvent(t, second, protocol.EventAck)
	if testhelpers.AckStatus(t, ack) != protocol.StatusError {
		t.Fatalf("conflicting join ack = %v, want error", ack)
	}

	// The same name works in a different room.
	third := relay.Connect(t)
	testhelpers.Authenticate(t, third, "alice", "random")
}

func TestAuthenticateValidation(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)
	conn := relay.Connect(t)

	if err := testhelpers.SendAuthenticate(conn, "", "lobby"); err != nil {
		t.Fatalf("Failed to send authenticate: %v", err)
	}
	ack := testhelpers.WaitForEvent(t, conn, protocol.EventAck)
	if testhelpers.AckStatus(t, ack) != protocol.StatusError {
		t.Errorf("empty username ack = %v, want error", ack)
	}

	// The connection is still usable after the rejection.
	testhelpers.Authenticate(t, conn, "alice", "lobby")
}

func TestMessageRequiresAuthentication(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)
	conn := relay.Connect(t)

	if err := testhelpers.SendChatMessage(conn, "lobby", "alice", "hi", ""); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
	ack := testhelpers.WaitForEvent(t, conn, protocol.EventAck)
	if testhelpers.AckStatus(t, ack) != protocol.StatusError {
		t.Errorf("unauthenticated message ack = %v, want error", ack)
	}
}

func TestDuplicateMessageToken(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)
	conn := relay.Connect(t)
	testhelpers.Authenticate(t, conn, "alice", "lobby")

	if err := testhelpers.SendChatMessage(conn, "lobby", "alice", "hi", "token-1"); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
	ack := testhelpers.WaitForEvent(t, conn, protocol.EventAck)
	if testhelpers.AckStatus(t, ack) != protocol.StatusDelivered {
		t.Fatalf("first send ack = %v, want delivered", ack)
	}

	if err := testhelpers.SendChatMessage(conn, "lobby", "alice", "hi", "token-1"); err != nil {
		t.Fatalf("Failed to resend message: %v", err)
	}
	ack = testhelpers.WaitForEvent(t, conn, protocol.EventAck)
	if testhelpers.AckStatus(t, ack) != protocol.StatusDuplicate {
		t.Errorf("retransmission ack = %v, want duplicate", ack)
	}
}

func TestHistoryReplayOnJoin(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimit.Burst = 100
	relay := testhelpers.StartRelay(t, cfg)

	sender := relay.Connect(t)
	testhelpers.Authenticate(t, sender, "alice", "lobby")

	for i := 0; i < 3; i++ {
		if err := testhelpers.SendChatMessage(sender, "lobby", "alice", "hello", ""); err != nil {
			t.Fatalf("Failed to send message %d: %v", i, err)
		}
		ack := testhelpers.WaitForEvent(t, sender, protocol.EventAck)
		if testhelpers.AckStatus(t, ack) != protocol.StatusDelivered {
			t.Fatalf("send %d ack = %v, want delivered", i, ack)
		}
	}

	joiner := relay.Connect(t)
	history := testhelpers.Authenticate(t, joiner, "bob", "lobby")
	// One join notice plus three user messages, oldest first.
	msgs := testhelpers.HistoryMessages(t, history)
	if len(msgs) != 4 {
		t.Fatalf("replayed history length = %d, want 4", len(msgs))
	}
	last := msgs[len(msgs)-1].(map[string]any)
	if last["text"] != "hello" || last["username"] != "alice" {
		t.Errorf("newest history entry = %v", last)
	}
}

func TestRoomIsolation(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	alice := relay.Connect(t)
	testhelpers.Authenticate(t, alice, "alice", "lobby")

	carol := relay.Connect(t)
	testhelpers.Authenticate(t, carol, "carol", "random")

	if err := testhelpers.SendChatMessage(carol, "random", "carol", "secret", ""); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
	ack := testhelpers.WaitForEvent(t, carol, protocol.EventAck)
	if testhelpers.AckStatus(t, ack) != protocol.StatusDelivered {
		t.Fatalf("send ack = %v, want delivered", ack)
	}

	testhelpers.ExpectNoEvent(t, alice, 300*time.Millisecond)
}

func TestMalformedFrameKeepsConnectionUsable(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)
	conn := relay.Connect(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("this is not json")); err != nil {
		t.Fatalf("Failed to write malformed frame: %v", err)
	}

	// The frame is dropped; a valid join still works afterwards.
	testhelpers.Authenticate(t, conn, "alice", "lobby")
}
