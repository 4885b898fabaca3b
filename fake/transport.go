// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for all core interfaces.

package fake

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/momentics/wsengine/api"
)

// Error types for fake pipes.
var (
	ErrSourceClosed = errors.New("source is closed")
	ErrSinkClosed   = errors.New("sink is closed")
	ErrCanceled     = errors.New("canceled")
)

// Pipe is a one-directional in-memory byte pipe. The sink end is written to,
// the source end is read from; each end can be closed independently.
type Pipe struct {
	mu           sync.Mutex
	cond         *sync.Cond
	buf          bytes.Buffer
	sourceClosed bool
	sinkClosed   bool
	canceled     bool
}

// NewPipe creates an empty pipe.
func NewPipe() *Pipe {
	p := &Pipe{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Write appends to the pipe. It fails once the source end is closed, since no
// one will ever read the bytes.
func (p *Pipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.canceled:
		return 0, ErrCanceled
	case p.sourceClosed:
		return 0, ErrSourceClosed
	case p.sinkClosed:
		return 0, ErrSinkClosed
	}
	n, _ := p.buf.Write(b)
	p.cond.Broadcast()
	return n, nil
}

// Read blocks until bytes are available. It returns io.EOF after the sink end
// was closed and the buffer drained.
func (p *Pipe) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.buf.Len() == 0 && !p.sinkClosed && !p.sourceClosed && !p.canceled {
		p.cond.Wait()
	}
	switch {
	case p.canceled:
		return 0, ErrCanceled
	case p.sourceClosed:
		return 0, ErrSourceClosed
	case p.buf.Len() == 0:
		return 0, io.EOF
	}
	return p.buf.Read(b)
}

// CloseSource closes the reading end.
func (p *Pipe) CloseSource() {
	p.mu.Lock()
	p.sourceClosed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// CloseSink closes the writing end.
func (p *Pipe) CloseSink() {
	p.mu.Lock()
	p.sinkClosed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Cancel fails both ends immediately.
func (p *Pipe) Cancel() {
	p.mu.Lock()
	p.canceled = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Buffered returns the number of unread bytes.
func (p *Pipe) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Len()
}

// Stream is a fake api.Stream reading from Source and writing to Sink.
type Stream struct {
	Source *Pipe
	Sink   *Pipe
	// CloseErr is returned by Close after the pipes were closed.
	CloseErr error

	mu       sync.Mutex
	closed   bool
	canceled bool
}

var _ api.Stream = (*Stream)(nil)

// NewStreamPair returns two connected streams, client and server.
func NewStreamPair() (client, server *Stream) {
	c2s, s2c := NewPipe(), NewPipe()
	client = &Stream{Source: s2c, Sink: c2s}
	server = &Stream{Source: c2s, Sink: s2c}
	return client, server
}

// Read implements io.Reader.
func (s *Stream) Read(b []byte) (int, error) {
	return s.Source.Read(b)
}

// Write implements io.Writer.
func (s *Stream) Write(b []byte) (int, error) {
	return s.Sink.Write(b)
}

// Close closes our reading end and our writing end. Closing twice panics so
// tests catch duplicate teardown.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		panic("fake: stream already closed")
	}
	s.closed = true
	s.mu.Unlock()
	s.Source.CloseSource()
	s.Sink.CloseSink()
	return s.CloseErr
}

// Cancel implements api.Stream.
func (s *Stream) Cancel() {
	s.mu.Lock()
	s.canceled = true
	s.mu.Unlock()
	s.Source.Cancel()
	s.Sink.Cancel()
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Canceled reports whether Cancel was called.
func (s *Stream) Canceled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canceled
}
