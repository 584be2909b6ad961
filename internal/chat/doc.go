// Package chat implements the in-memory room, session, and message routing
// engine for the GoRelay server.
//
// The engine owns all mutable chat state (rooms, members, sessions, the
// message dedup window) behind a single mutex so that mutations form one
// serialized stream. Outbound fan-out goes through the Sender interface and
// is fire-and-forget relative to the mutation that produced it.
package chat
