// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

// conn_test.go: message exchange, queueing and teardown over fake pipes.
package engine

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/momentics/wsengine/api"
	"github.com/momentics/wsengine/control"
	"github.com/momentics/wsengine/fake"
	"github.com/momentics/wsengine/protocol"
)

func TestTextMessage(t *testing.T) {
	client, server, sched := newPair(t, nil, nil)

	if !client.conn.SendText("Hello") {
		t.Fatal("SendText returned false")
	}
	sched.RunTasks()
	if !server.conn.ProcessNextFrame() {
		t.Fatal("ProcessNextFrame returned false")
	}
	server.rec.AssertTextMessage(t, "Hello")
	server.rec.AssertExhausted(t)
	client.rec.AssertExhausted(t)
}

func TestBinaryMessageBothDirections(t *testing.T) {
	client, server, sched := newPair(t, nil, nil)

	client.conn.SendBinary([]byte{0x01, 0x02, 0x03})
	server.conn.SendBinary([]byte{0xCA, 0xFE})
	sched.RunTasks()

	server.conn.ProcessNextFrame()
	server.rec.AssertBinaryMessage(t, []byte{0x01, 0x02, 0x03})
	client.conn.ProcessNextFrame()
	client.rec.AssertBinaryMessage(t, []byte{0xCA, 0xFE})
}

func TestEmptyMessages(t *testing.T) {
	client, server, sched := newPair(t, nil, nil)

	client.conn.SendText("")
	client.conn.SendBinary(nil)
	sched.RunTasks()

	server.conn.ProcessNextFrame()
	server.rec.AssertTextMessage(t, "")
	server.conn.ProcessNextFrame()
	server.rec.AssertBinaryMessage(t, []byte{})
}

func TestMessagesArriveInOrder(t *testing.T) {
	client, server, sched := newPair(t, nil, nil)

	for _, s := range []string{"one", "two", "three"} {
		client.conn.SendText(s)
	}
	sched.RunTasks()
	for _, s := range []string{"one", "two", "three"} {
		server.conn.ProcessNextFrame()
		server.rec.AssertTextMessage(t, s)
	}
}

func TestLargeMessageUses64BitLength(t *testing.T) {
	client, server, sched := newPair(t, nil, nil)

	big := bytes.Repeat([]byte{0x5A}, 70_000)
	client.conn.SendBinary(big)
	sched.RunTasks()
	server.conn.ProcessNextFrame()
	server.rec.AssertBinaryMessage(t, big)
}

func TestFragmentedSend(t *testing.T) {
	client, server, sched := newPair(t, []Option{WithFragmentSize(3)}, nil)

	client.conn.SendText("Hello, World!")
	sched.RunTasks()
	server.conn.ProcessNextFrame()
	server.rec.AssertTextMessage(t, "Hello, World!")
}

func TestFragmentedReceiveWithInterleavedPing(t *testing.T) {
	client, raw, sched := newRawClient(t)

	writeRaw(t, raw, 0x01, 0x03, 'H', 'e', 'l') // text, not final
	writeRaw(t, raw, 0x89, 0x01, 'p')           // ping
	writeRaw(t, raw, 0x80, 0x02, 'l', 'o')      // final continuation

	if !client.conn.ProcessNextFrame() {
		t.Fatal("ping frame ended the reader")
	}
	client.rec.AssertExhausted(t)
	client.conn.ProcessNextFrame()
	client.rec.AssertTextMessage(t, "Hello")

	sched.RunTasks()
	f := readRawFrame(t, raw, false)
	if f.Opcode != 0xA || string(f.Payload) != "p" {
		t.Fatalf("got opcode %x payload %q, want pong \"p\"", f.Opcode, f.Payload)
	}
	if client.conn.ReceivedPingCount() != 1 {
		t.Fatalf("ReceivedPingCount = %d, want 1", client.conn.ReceivedPingCount())
	}
}

func TestUnsolicitedPongIsIgnored(t *testing.T) {
	client, server, sched := newPair(t, nil, nil)

	if !server.conn.Pong([]byte("hi")) {
		t.Fatal("Pong returned false")
	}
	sched.RunTasks()
	client.conn.ProcessNextFrame()
	if client.conn.ReceivedPongCount() != 1 {
		t.Fatalf("ReceivedPongCount = %d, want 1", client.conn.ReceivedPongCount())
	}
	if client.conn.SuccessfulPingCount() != 0 {
		t.Fatalf("SuccessfulPingCount = %d, want 0", client.conn.SuccessfulPingCount())
	}
	client.rec.AssertExhausted(t)
}

func TestPongPayloadTooLarge(t *testing.T) {
	client, _, sched := newPair(t, nil, nil)

	if client.conn.Pong(make([]byte, 126)) {
		t.Fatal("Pong with 126 bytes returned true")
	}
	if sched.Pending() != 0 {
		t.Fatal("oversized pong scheduled a write")
	}
}

func TestQueueSizeLimitClosesConnection(t *testing.T) {
	client, server, sched := newPair(t, []Option{WithMaxQueueSize(10)}, nil)

	if !client.conn.SendText("12345") {
		t.Fatal("first send refused")
	}
	if client.conn.SendText("123456") {
		t.Fatal("send over the queue limit accepted")
	}
	if got := client.conn.QueueSize(); got != 5 {
		t.Fatalf("QueueSize = %d, want 5", got)
	}
	if client.conn.SendText("x") {
		t.Fatal("send after the automatic close accepted")
	}

	sched.RunTasks()
	if got := client.conn.QueueSize(); got != 0 {
		t.Fatalf("QueueSize after drain = %d, want 0", got)
	}
	server.conn.ProcessNextFrame()
	server.rec.AssertTextMessage(t, "12345")
	server.conn.ProcessNextFrame()
	server.rec.AssertClosing(t, 1001, "")
}

func TestMaxMessageSize(t *testing.T) {
	client, server, sched := newPair(t, nil, []Option{WithMaxMessageSize(4)})

	client.conn.SendText("Hello")
	sched.RunTasks()
	if server.conn.ProcessNextFrame() {
		t.Fatal("oversized message accepted")
	}
	err := server.rec.AssertFailure(t, "Message too big.")
	var pe *protocol.ProtocolError
	if !errors.As(err, &pe) || pe.CloseCode != 1009 || !errors.Is(err, api.ErrProtocol) {
		t.Fatalf("failure %v is not a 1009 protocol error", err)
	}

	client.conn.ProcessNextFrame()
	client.rec.AssertClosing(t, 1009, "")
}

func TestMetricsPublished(t *testing.T) {
	reg := control.NewMetricsRegistry()
	client, server, sched := newPair(t, nil, []Option{WithMetrics(reg)})

	client.conn.SendText("a")
	client.conn.SendText("b")
	sched.RunTasks()
	server.conn.ProcessNextFrame()
	server.conn.ProcessNextFrame()

	snap := reg.GetSnapshot()
	id := server.conn.ID()
	if snap[id+".messages_received"] != int64(2) {
		t.Fatalf("messages_received = %v, want 2", snap[id+".messages_received"])
	}
	if snap[id+".frames_received"] != int64(2) {
		t.Fatalf("frames_received = %v, want 2", snap[id+".frames_received"])
	}
}

func TestConnectionIDsAreUnique(t *testing.T) {
	client, server, _ := newPair(t, nil, nil)
	if client.conn.ID() == "" || client.conn.ID() == server.conn.ID() {
		t.Fatalf("ids %q and %q", client.conn.ID(), server.conn.ID())
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, fake.NewRecorder("x"), fake.NewScheduler())
	if !api.IsInvalidArgument(err) {
		t.Fatalf("got %v, want invalid argument", err)
	}
}

func TestReadEOFFails(t *testing.T) {
	client, raw, _ := newRawClient(t)

	raw.Close()
	if client.conn.ProcessNextFrame() {
		t.Fatal("ProcessNextFrame returned true on EOF")
	}
	client.rec.AssertFailureIs(t, io.EOF)
	client.rec.AssertExhausted(t)
	if client.conn.State() != api.StateFailed {
		t.Fatalf("state = %s, want failed", client.conn.State())
	}
}

func TestWriteErrorFailsAsynchronously(t *testing.T) {
	client, raw, sched := newRawClient(t)

	raw.Close()
	if !client.conn.SendText("Hello") {
		t.Fatal("SendText returned false before the write was attempted")
	}
	sched.RunTasks()
	client.rec.AssertFailureIs(t, fake.ErrSourceClosed)
	if client.conn.SendText("again") {
		t.Fatal("SendText after failure returned true")
	}
	if ok, err := client.conn.Close(1000, ""); ok || err != nil {
		t.Fatalf("Close after failure = %v, %v", ok, err)
	}
	client.rec.AssertExhausted(t)
}

func TestCancelFailsReader(t *testing.T) {
	client, _, _ := newPair(t, nil, nil)

	client.conn.Cancel()
	if !client.stream.Canceled() {
		t.Fatal("stream not canceled")
	}
	if client.conn.ProcessNextFrame() {
		t.Fatal("ProcessNextFrame returned true after Cancel")
	}
	client.rec.AssertFailureIs(t, fake.ErrCanceled)
	client.rec.AssertExhausted(t)
}

func TestNoEventsAfterFailure(t *testing.T) {
	client, server, sched := newPair(t, nil, nil)

	client.conn.Cancel()
	client.conn.ProcessNextFrame()
	client.rec.AssertFailure(t, "")

	server.conn.SendText("late")
	server.conn.Close(1000, "")
	sched.RunTasks()
	if client.conn.ProcessNextFrame() {
		t.Fatal("reader ran after failure")
	}
	client.rec.AssertExhausted(t)
}

func TestInvalidUTF8Text(t *testing.T) {
	client, raw, _ := newRawClient(t)

	writeRaw(t, raw, 0x81, 0x02, 0xC3, 0x28)
	client.conn.ProcessNextFrame()
	client.rec.AssertFailure(t, "Invalid UTF-8 text payload.")
	if rec := readRawClose(t, raw, false); rec.Code != 1007 {
		t.Fatalf("close code = %d, want 1007", rec.Code)
	}
}

func TestSendAfterPeerCloseReceived(t *testing.T) {
	client, server, sched := newPair(t, nil, []Option{WithAutoCloseReply(false)})

	client.conn.Close(1000, "done")
	sched.RunTasks()
	server.conn.ProcessNextFrame()
	server.rec.AssertClosing(t, 1000, "done")

	// Without an automatic reply the server may still send before closing.
	if !server.conn.SendText(strings.Repeat("x", 3)) {
		t.Fatal("send before replying to close refused")
	}
	server.conn.Close(1000, "")
	sched.RunTasks()
	server.rec.AssertClosed(t, 1000, "done")

	client.conn.ProcessNextFrame()
	client.rec.AssertTextMessage(t, "xxx")
	client.conn.ProcessNextFrame()
	client.rec.AssertClosing(t, 1000, "")
	client.rec.AssertClosed(t, 1000, "")
}

func TestFailureWaitsForRunningMessageCallback(t *testing.T) {
	client, raw, _ := newRawClient(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	client.rec.OnMessageHook = func(api.WebSocket) {
		close(entered)
		<-release
	}

	writeRaw(t, raw, 0x81, 0x02, 'h', 'i')
	go client.conn.ProcessNextFrame()
	<-entered

	failed := make(chan struct{})
	go func() {
		client.conn.fail(errors.New("keepalive lost"))
		close(failed)
	}()
	select {
	case <-failed:
		t.Fatal("failure reported while a message callback was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-failed:
	case <-time.After(fake.DefaultWait):
		t.Fatal("failure never reported")
	}

	client.rec.AssertTextMessage(t, "hi")
	client.rec.AssertFailure(t, "keepalive lost")
	client.rec.AssertExhausted(t)
}
