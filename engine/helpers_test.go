// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/momentics/wsengine/fake"
	"github.com/momentics/wsengine/protocol"
)

// peer bundles one side of a fake connection.
type peer struct {
	conn   *Conn
	rec    *fake.Recorder
	stream *fake.Stream
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newPeer(t *testing.T, name string, stream *fake.Stream, sched *fake.Scheduler, opts ...Option) *peer {
	t.Helper()
	rec := fake.NewRecorder(name)
	opts = append([]Option{WithLogger(quietLogger)}, opts...)
	c, err := New(stream, rec, sched, opts...)
	if err != nil {
		t.Fatalf("New(%s): %v", name, err)
	}
	return &peer{conn: c, rec: rec, stream: stream}
}

// newPair connects a client and a server engine over in-memory pipes, both
// driven by sched. Both are started and their OnOpen consumed.
func newPair(t *testing.T, clientOpts, serverOpts []Option) (client, server *peer, sched *fake.Scheduler) {
	t.Helper()
	sched = fake.NewScheduler()
	cs, ss := fake.NewStreamPair()
	client = newPeer(t, "client", cs, sched, append([]Option{AsClient()}, clientOpts...)...)
	server = newPeer(t, "server", ss, sched, serverOpts...)
	client.conn.Start()
	server.conn.Start()
	client.rec.AssertOpen(t)
	server.rec.AssertOpen(t)
	return client, server, sched
}

// newRawClient starts a client engine whose peer is a bare stream the test
// drives byte by byte.
func newRawClient(t *testing.T, opts ...Option) (client *peer, raw *fake.Stream, sched *fake.Scheduler) {
	t.Helper()
	sched = fake.NewScheduler()
	cs, ss := fake.NewStreamPair()
	client = newPeer(t, "client", cs, sched, append([]Option{AsClient()}, opts...)...)
	client.conn.Start()
	client.rec.AssertOpen(t)
	return client, ss, sched
}

// newRawServer is newRawClient for the accepting side.
func newRawServer(t *testing.T, opts ...Option) (server *peer, raw *fake.Stream, sched *fake.Scheduler) {
	t.Helper()
	sched = fake.NewScheduler()
	cs, ss := fake.NewStreamPair()
	server = newPeer(t, "server", ss, sched, opts...)
	server.conn.Start()
	server.rec.AssertOpen(t)
	return server, cs, sched
}

// readRawFrame decodes the next frame written to raw by the engine on the
// other side. isClient describes raw's side.
func readRawFrame(t *testing.T, raw *fake.Stream, isClient bool) *protocol.Frame {
	t.Helper()
	f, err := protocol.NewFrameReader(raw, isClient, true, 0).ReadFrame()
	if err != nil {
		t.Fatalf("read raw frame: %v", err)
	}
	return f
}

func readRawClose(t *testing.T, raw *fake.Stream, isClient bool) protocol.CloseRecord {
	t.Helper()
	f := readRawFrame(t, raw, isClient)
	if f.Opcode != protocol.OpcodeClose {
		t.Fatalf("got opcode %s, want close", protocol.OpcodeName(f.Opcode))
	}
	rec, err := protocol.ParseClosePayload(f.Payload)
	if err != nil {
		t.Fatalf("parse close: %v", err)
	}
	return rec
}

func writeRaw(t *testing.T, raw *fake.Stream, b ...byte) {
	t.Helper()
	if _, err := raw.Write(b); err != nil {
		t.Fatalf("raw write: %v", err)
	}
}
