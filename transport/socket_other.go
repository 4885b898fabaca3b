//go:build !linux
// +build !linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"net"

	"github.com/pkg/errors"
)

var errNotSocket = errors.New("connection is not TCP")

func shutdownBoth(conn net.Conn) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return errNotSocket
	}
	if err := tc.CloseRead(); err != nil {
		return errors.Wrap(err, "close read")
	}
	return errors.Wrap(tc.CloseWrite(), "close write")
}

func setNoDelay(conn net.Conn, on bool) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return errNotSocket
	}
	return errors.Wrap(tc.SetNoDelay(on), "set nodelay")
}
