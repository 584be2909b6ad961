// Package server implements the WebSocket transport and HTTP surface for
// GoRelay.
//
// The implementation is organized into specialized files for the hub,
// clients, the gateway, routing, and middleware to keep the transport layer
// maintainable as the project grows. Chat semantics live in internal/chat;
// this package only moves envelopes between connections and the engine.
package server
