//go:build linux
// +build linux

// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package transport

import (
	"errors"
	"net"
	"testing"
)

func TestSetNoDelay(t *testing.T) {
	client, _ := tcpPair(t)
	s := NewStream(client, nil)

	for _, on := range []bool{false, true} {
		if err := s.SetNoDelay(on); err != nil {
			t.Fatalf("SetNoDelay(%v): %v", on, err)
		}
		got, err := noDelay(client)
		if err != nil {
			t.Fatalf("noDelay: %v", err)
		}
		if got != on {
			t.Fatalf("TCP_NODELAY = %v, want %v", got, on)
		}
	}
}

func TestSocketControlNeedsSocket(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	if err := setNoDelay(a, true); !errors.Is(err, errNotSocket) {
		t.Fatalf("got %v, want errNotSocket", err)
	}
}
