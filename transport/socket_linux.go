//go:build linux
// +build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket control through the raw descriptor.

package transport

import (
	"net"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var errNotSocket = errors.New("connection does not expose a socket")

// control runs fn on the descriptor behind conn.
func control(conn net.Conn, fn func(fd int) error) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return errNotSocket
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return errors.Wrap(err, "syscall conn")
	}
	var opErr error
	if err := raw.Control(func(fd uintptr) {
		opErr = fn(int(fd))
	}); err != nil {
		return errors.Wrap(err, "raw control")
	}
	return opErr
}

func shutdownBoth(conn net.Conn) error {
	return control(conn, func(fd int) error {
		return errors.Wrap(unix.Shutdown(fd, unix.SHUT_RDWR), "shutdown")
	})
}

func setNoDelay(conn net.Conn, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return control(conn, func(fd int) error {
		return errors.Wrap(unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v), "setsockopt TCP_NODELAY")
	})
}

// noDelay reads TCP_NODELAY back.
func noDelay(conn net.Conn) (bool, error) {
	var v int
	err := control(conn, func(fd int) error {
		var err error
		v, err = unix.GetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY)
		return errors.Wrap(err, "getsockopt TCP_NODELAY")
	})
	return v != 0, err
}
