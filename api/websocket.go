// File: api/websocket.go
// Author: momentics <momentics@gmail.com>
//
// Defines the caller-facing WebSocket operations.

package api

// WebSocket is the public side of a protocol engine.
//
// All operations return false once the connection has queued its own close or
// has failed. Close fails fast with an ErrInvalidArgument error for codes that
// may not be sent.
type WebSocket interface {
	// ID returns the connection identifier.
	ID() string

	// SendText queues a text message.
	SendText(text string) bool

	// SendBinary queues a binary message.
	SendBinary(data []byte) bool

	// Pong queues an unsolicited pong frame.
	Pong(payload []byte) bool

	// Close starts the close handshake.
	Close(code int, reason string) (bool, error)

	// Cancel releases the stream immediately and cancels pending tasks.
	Cancel()

	// QueueSize returns the number of payload bytes waiting to be written.
	QueueSize() int64
}
