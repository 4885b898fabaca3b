// File: engine/options.go
// Package engine defines configuration and functional options for Conn.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package engine

import (
	"compress/flate"
	"crypto/rand"
	"io"
	"log/slog"
	"time"

	"github.com/momentics/wsengine/protocol"
)

// Defaults applied by DefaultConfig.
const (
	DefaultMaxQueueSize   = 16 * 1024 * 1024
	DefaultMaxMessageSize = 16 * 1024 * 1024
	DefaultCloseTimeout   = 60 * time.Second
)

// MetricsSink receives per-connection counters. *control.MetricsRegistry
// satisfies it.
type MetricsSink interface {
	Set(key string, value any)
}

// Config holds per-connection parameters.
type Config struct {
	Client             bool                // connection-initiating side; masks outgoing frames
	PingInterval       time.Duration       // keepalive period, 0 disables pings
	MinimumDeflateSize int                 // smallest payload compressed when deflate is negotiated
	Extensions         protocol.Extensions // negotiated Sec-WebSocket-Extensions
	MaxQueueSize       int64               // bound on queued outgoing payload bytes
	MaxMessageSize     int64               // bound on one incoming message, 0 disables
	CloseTimeout       time.Duration       // wait for the peer's close after ours is flushed
	AutoCloseReply     bool                // echo the peer's close when we did not close first
	FragmentSize       int                 // max frame payload for outgoing messages, 0 = unfragmented
	CompressionLevel   int                 // compress/flate level
	Rand               io.Reader           // mask keys and ping payloads
	Logger             *slog.Logger
	Metrics            MetricsSink // optional
}

// DefaultConfig returns sensible defaults for the accepting side.
func DefaultConfig() *Config {
	return &Config{
		MinimumDeflateSize: protocol.DefaultMinimumDeflateSize,
		MaxQueueSize:       DefaultMaxQueueSize,
		MaxMessageSize:     DefaultMaxMessageSize,
		CloseTimeout:       DefaultCloseTimeout,
		AutoCloseReply:     true,
		CompressionLevel:   flate.DefaultCompression,
		Rand:               rand.Reader,
		Logger:             slog.Default(),
	}
}

// Option customizes a Config.
type Option func(*Config)

// AsClient makes the connection the connection-initiating peer.
func AsClient() Option {
	return func(c *Config) {
		c.Client = true
	}
}

// WithPingInterval enables keepalive pings every d.
func WithPingInterval(d time.Duration) Option {
	return func(c *Config) {
		c.PingInterval = d
	}
}

// WithMinimumDeflateSize sets the compression threshold.
func WithMinimumDeflateSize(n int) Option {
	return func(c *Config) {
		c.MinimumDeflateSize = n
	}
}

// WithExtensions sets the negotiated extensions.
func WithExtensions(e protocol.Extensions) Option {
	return func(c *Config) {
		c.Extensions = e
	}
}

// WithMaxQueueSize bounds queued outgoing bytes.
func WithMaxQueueSize(n int64) Option {
	return func(c *Config) {
		c.MaxQueueSize = n
	}
}

// WithMaxMessageSize bounds incoming messages.
func WithMaxMessageSize(n int64) Option {
	return func(c *Config) {
		c.MaxMessageSize = n
	}
}

// WithCloseTimeout sets how long to wait for the peer's close frame.
func WithCloseTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.CloseTimeout = d
	}
}

// WithAutoCloseReply toggles the automatic close echo.
func WithAutoCloseReply(on bool) Option {
	return func(c *Config) {
		c.AutoCloseReply = on
	}
}

// WithFragmentSize splits outgoing messages into frames of at most n bytes.
func WithFragmentSize(n int) Option {
	return func(c *Config) {
		c.FragmentSize = n
	}
}

// WithCompressionLevel sets the compress/flate level.
func WithCompressionLevel(level int) Option {
	return func(c *Config) {
		c.CompressionLevel = level
	}
}

// WithRand overrides the random source.
func WithRand(r io.Reader) Option {
	return func(c *Config) {
		c.Rand = r
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMetrics publishes counters into m.
func WithMetrics(m MetricsSink) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}
