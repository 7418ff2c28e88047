// Package server defines shared sentinel errors and helpers that are reused
// across session, hub and transport logic.
package server

import (
	"errors"
	"strings"
)

var (
	// ErrDuplicateID is returned when a connection id is registered twice.
	ErrDuplicateID = errors.New("server: connection id already registered")
	// ErrHubClosed is returned when registering after the hub has shut down.
	ErrHubClosed = errors.New("server: hub closed")
	// ErrNotFound is returned when no connection is registered under an id.
	ErrNotFound = errors.New("server: connection not found")
	// ErrSinkClosed is returned when sending to an outbox that has been closed.
	ErrSinkClosed = errors.New("server: outbox closed")
	// ErrSinkFull is returned when a peer's outbox has reached its capacity.
	ErrSinkFull = errors.New("server: outbox full")
)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
