// Package server implements the relay's WebSocket chat core: a registry of
// live connections, a hub that fans messages out to them, a dispatcher for
// inbound frames, and the per-connection session that ties them together.
//
// The implementation is organized into specialized files for configuration,
// hub management, sessions, transport, routing, and HTTP handlers.
package server
