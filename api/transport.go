// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Defines the duplex byte stream abstraction the protocol engine runs on.
// The handshake that produced the stream is not part of this contract.

package api

import "io"

// Stream abstracts an established full-duplex byte stream.
type Stream interface {
	// Read reads inbound bytes. It blocks only on the transport.
	io.Reader

	// Write writes outbound bytes.
	io.Writer

	// Close shuts down both directions gracefully.
	Close() error

	// Cancel releases the stream in both directions immediately, forcing any
	// in-flight Read or Write to fail.
	Cancel()
}
