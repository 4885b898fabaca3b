// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package transport adapts network connections to api.Stream and performs
// the opening handshake that precedes the framed protocol.
package transport

import (
	"bufio"
	"io"
	"net"
	"sync"
	"time"

	"github.com/momentics/wsengine/api"
)

// Stream implements api.Stream over a net.Conn.
type Stream struct {
	conn net.Conn
	r    io.Reader

	closeOnce sync.Once
	closeErr  error
}

var _ api.Stream = (*Stream)(nil)

// NewStream wraps conn. br, when non-nil, is a reader over conn that may
// already hold bytes read past the handshake; reads go through it.
func NewStream(conn net.Conn, br *bufio.Reader) *Stream {
	s := &Stream{conn: conn, r: conn}
	if br != nil {
		s.r = br
	}
	return s
}

// Conn returns the underlying connection.
func (s *Stream) Conn() net.Conn {
	return s.conn
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

// Write implements io.Writer.
func (s *Stream) Write(p []byte) (int, error) {
	return s.conn.Write(p)
}

// Close closes the connection. Later calls return the first result.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// Cancel shuts the socket down in both directions so blocked reads and
// writes return at once. Connections that are not sockets get an expired
// deadline instead.
func (s *Stream) Cancel() {
	if err := shutdownBoth(s.conn); err != nil {
		s.conn.SetDeadline(time.Now())
	}
}

// SetNoDelay toggles Nagle's algorithm on TCP connections.
func (s *Stream) SetNoDelay(on bool) error {
	return setNoDelay(s.conn, on)
}
