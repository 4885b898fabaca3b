// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

// stall_test.go: a peer that stops reading must not hold up other
// connections or its own timers on a shared production scheduler.
package engine

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/momentics/wsengine/api"
	"github.com/momentics/wsengine/fake"
	"github.com/momentics/wsengine/internal/concurrency"
)

// stalledStream never accepts a byte: Write and Read block until the stream
// is closed or canceled.
type stalledStream struct {
	once     sync.Once
	released chan struct{}
}

func newStalledStream() *stalledStream {
	return &stalledStream{released: make(chan struct{})}
}

func (s *stalledStream) Read([]byte) (int, error) {
	<-s.released
	return 0, io.EOF
}

func (s *stalledStream) Write([]byte) (int, error) {
	<-s.released
	return 0, io.ErrClosedPipe
}

func (s *stalledStream) Close() error {
	s.once.Do(func() { close(s.released) })
	return nil
}

func (s *stalledStream) Cancel() { s.Close() }

func TestStalledPeerDoesNotBlockOtherConnections(t *testing.T) {
	sched := concurrency.NewScheduler()
	defer sched.Close()

	slowRec := fake.NewRecorder("slow")
	slow, err := New(newStalledStream(), slowRec, sched,
		WithLogger(quietLogger),
		WithPingInterval(100*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	slow.Start()
	slowRec.AssertOpen(t)
	if !slow.SendText("never read") {
		t.Fatal("SendText refused")
	}

	cs, ss := fake.NewStreamPair()
	fastRec := fake.NewRecorder("fast")
	fast, err := New(cs, fastRec, sched, AsClient(), WithLogger(quietLogger))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fast.Start()
	fastRec.AssertOpen(t)
	if !fast.SendText("hello") {
		t.Fatal("SendText refused")
	}

	deadline := time.Now().Add(2 * time.Second)
	for ss.Source.Buffered() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("fast connection wrote nothing while the slow one is stuck (queue=%d)", fast.QueueSize())
		}
		time.Sleep(time.Millisecond)
	}
	if f := readRawFrame(t, ss, false); string(f.Payload) != "hello" {
		t.Fatalf("got %q", f.Payload)
	}

	// The stuck connection's keepalive still runs and drops it.
	slowRec.AssertFailureIs(t, api.ErrTimeout)
	slowRec.AssertExhausted(t)
	if slow.State() != api.StateFailed {
		t.Fatalf("state = %s, want failed", slow.State())
	}
}
