// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

// CloseState enumerates the close-handshake state of a connection.
type CloseState int

const (
	// StateOpen: no close frame flushed or received.
	StateOpen CloseState = iota
	// StateLocalSent: our close frame is on the wire, the peer's is not yet seen.
	StateLocalSent
	// StateRemoteReceived: the peer's close frame arrived, ours is not yet flushed.
	StateRemoteReceived
	// StateClosed: both directions observed, stream torn down.
	StateClosed
	// StateFailed: terminal failure. Overrides every other state.
	StateFailed
)

func (s CloseState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateLocalSent:
		return "local-sent"
	case StateRemoteReceived:
		return "remote-received"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s CloseState) Terminal() bool {
	return s == StateClosed || s == StateFailed
}
