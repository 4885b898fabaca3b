// File: engine/conn.go
// Package engine implements the protocol engine over an established stream.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Conn owns one duplex stream. The caller runs Run (the reader loop) on its
// own goroutine; writes and keepalive ticks run as tasks on the injected
// scheduler. Two locks exist: writeMu serializes frames on the stream and mu
// guards connState. When both are needed writeMu is taken first. Listener
// callbacks never run under either; dispatchMu orders the reader's callbacks
// against OnFailure instead.

package engine

import (
	"log/slog"
	"sync"

	"github.com/eapache/queue"
	"github.com/oarkflow/xid"

	"github.com/momentics/wsengine/api"
	"github.com/momentics/wsengine/protocol"
)

// Conn is a single protocol engine instance.
type Conn struct {
	id       string
	cfg      Config
	stream   api.Stream
	listener api.Listener
	sched    api.Scheduler
	log      *slog.Logger

	// Reader side, used only by the reader goroutine.
	reader    *protocol.FrameReader
	assembler *protocol.Assembler

	// Writer side, guarded by writeMu.
	writeMu  sync.Mutex
	writer   *protocol.FrameWriter
	deflater *protocol.Deflater

	// dispatchMu is held across message, closing and failure callbacks.
	dispatchMu sync.Mutex

	mu sync.Mutex
	connState
}

var _ api.WebSocket = (*Conn)(nil)

// New wires a connection over stream. Nothing is read or written until Start
// and Run are called.
func New(stream api.Stream, listener api.Listener, sched api.Scheduler, opts ...Option) (*Conn, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if stream == nil || listener == nil || sched == nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "stream, listener and scheduler are required")
	}

	role := "server"
	if cfg.Client {
		role = "client"
	}
	c := &Conn{
		id:       xid.New().String(),
		cfg:      *cfg,
		stream:   stream,
		listener: listener,
		sched:    sched,
	}
	c.log = cfg.Logger.With("conn", c.id, "role", role)
	c.pongs = queue.New()
	c.messages = queue.New()

	deflate := cfg.Extensions.DeflateEnabled()
	var inflater *protocol.Inflater
	if deflate {
		d, err := protocol.NewDeflater(cfg.CompressionLevel)
		if err != nil {
			return nil, api.Errorf(api.ErrCodeInvalidArgument, "compression level %d: %v", cfg.CompressionLevel, err)
		}
		c.deflater = d
		inflater = protocol.NewInflater()
	}
	c.reader = protocol.NewFrameReader(stream, cfg.Client, deflate, cfg.MaxMessageSize)
	c.assembler = protocol.NewAssembler(inflater, cfg.MaxMessageSize)
	c.writer = protocol.NewFrameWriter(stream, cfg.Client, cfg.Rand)
	return c, nil
}

// ID returns the connection identifier.
func (c *Conn) ID() string {
	return c.id
}

// Start delivers OnOpen and arms the keepalive timer.
func (c *Conn) Start() {
	c.log.Debug("connection open", "deflate", c.deflater != nil)
	c.listener.OnOpen(c)
	c.armKeepalive()
}

// Run reads frames until the connection closes or fails.
func (c *Conn) Run() {
	for c.ProcessNextFrame() {
	}
}

// Cancel releases the stream in both directions and cancels pending timers.
// A reader blocked on the stream observes the failure and reports it.
func (c *Conn) Cancel() {
	c.mu.Lock()
	tasks := c.takeTimersLocked()
	c.mu.Unlock()
	c.cancelTasks(tasks)
	c.stream.Cancel()
}

// State returns the close-handshake state.
func (c *Conn) State() api.CloseState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// QueueSize returns the number of payload bytes waiting to be written.
func (c *Conn) QueueSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queueSize
}

// SentPingCount returns the number of keepalive pings written.
func (c *Conn) SentPingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sentPings
}

// ReceivedPingCount returns the number of pings read from the peer.
func (c *Conn) ReceivedPingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receivedPings
}

// ReceivedPongCount returns the number of pongs read from the peer.
func (c *Conn) ReceivedPongCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receivedPongs
}

// SuccessfulPingCount returns the number of completed ping/pong cycles.
func (c *Conn) SuccessfulPingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.successfulPings
}

func (c *Conn) cancelTasks(tasks []api.Cancelable) {
	for _, t := range tasks {
		if err := c.sched.Cancel(t); err != nil {
			c.log.Debug("cancel task", "err", err)
		}
	}
}

// metric publishes a counter when a sink is configured.
func (c *Conn) metric(name string, value any) {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.Set(c.id+"."+name, value)
	}
}
