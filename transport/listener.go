// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Accept loop: each accepted connection is upgraded on its own goroutine and
// handed to the caller once the handshake completed.

package transport

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/momentics/wsengine/protocol"
)

// HandshakeTimeout bounds the opening handshake of an accepted connection.
var HandshakeTimeout = 5 * time.Second

// ListenerConfig holds configuration for Serve.
type ListenerConfig struct {
	AllowDeflate bool // accept permessage-deflate offers
	NoDelay      bool // set TCP_NODELAY on accepted sockets
	Logger       *slog.Logger
	// Handler receives every upgraded connection on its own goroutine.
	Handler func(s *Stream, ext protocol.Extensions)
}

// Serve accepts connections from ln until ctx is done or ln fails. ln is
// closed on return.
func Serve(ctx context.Context, ln net.Listener, cfg ListenerConfig) error {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	log.Info("listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Warn("accept", "err", err)
				continue
			}
			return errors.Wrap(err, "accept")
		}
		go handleConn(conn, cfg, log)
	}
}

func handleConn(conn net.Conn, cfg ListenerConfig, log *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in connection", "remote", conn.RemoteAddr().String(), "panic", r)
			conn.Close()
		}
	}()
	conn.SetDeadline(time.Now().Add(HandshakeTimeout))
	s, ext, err := Accept(conn, cfg.AllowDeflate)
	if err != nil {
		log.Debug("handshake failed", "remote", conn.RemoteAddr().String(), "err", err)
		conn.Close()
		return
	}
	conn.SetDeadline(time.Time{})
	if cfg.NoDelay {
		if err := s.SetNoDelay(true); err != nil {
			log.Debug("set nodelay", "err", err)
		}
	}
	cfg.Handler(s, ext)
}
