// Package fake
// Author: momentics <momentics@gmail.com>
//
// Recording listener: every callback becomes an Event on a channel that tests
// consume in order.

package fake

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/momentics/wsengine/api"
)

// EventKind tags a recorded callback.
type EventKind int

const (
	EventOpen EventKind = iota
	EventText
	EventBinary
	EventClosing
	EventClosed
	EventFailure
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventText:
		return "text"
	case EventBinary:
		return "binary"
	case EventClosing:
		return "closing"
	case EventClosed:
		return "closed"
	case EventFailure:
		return "failure"
	}
	return "unknown"
}

// Event is one listener callback.
type Event struct {
	Kind   EventKind
	Text   string
	Data   []byte
	Code   int
	Reason string
	Err    error
}

func (e Event) String() string {
	switch e.Kind {
	case EventText:
		return fmt.Sprintf("text(%q)", e.Text)
	case EventBinary:
		return fmt.Sprintf("binary(%x)", e.Data)
	case EventClosing, EventClosed:
		return fmt.Sprintf("%s(%d, %q)", e.Kind, e.Code, e.Reason)
	case EventFailure:
		return fmt.Sprintf("failure(%v)", e.Err)
	}
	return e.Kind.String()
}

// DefaultWait bounds how long an assertion waits for the next event.
var DefaultWait = 10 * time.Second

// Recorder implements api.Listener.
type Recorder struct {
	name   string
	events chan Event

	// Hooks run inside the callback, after the event was recorded.
	OnOpenHook    func(ws api.WebSocket)
	OnMessageHook func(ws api.WebSocket)
	OnClosingHook func(ws api.WebSocket, code int, reason string)
}

var _ api.Listener = (*Recorder)(nil)

// NewRecorder creates a recorder; name prefixes assertion failures.
func NewRecorder(name string) *Recorder {
	return &Recorder{name: name, events: make(chan Event, 1024)}
}

func (r *Recorder) OnOpen(ws api.WebSocket) {
	r.events <- Event{Kind: EventOpen}
	if r.OnOpenHook != nil {
		r.OnOpenHook(ws)
	}
}

func (r *Recorder) OnTextMessage(ws api.WebSocket, text string) {
	r.events <- Event{Kind: EventText, Text: text}
	if r.OnMessageHook != nil {
		r.OnMessageHook(ws)
	}
}

func (r *Recorder) OnBinaryMessage(ws api.WebSocket, data []byte) {
	r.events <- Event{Kind: EventBinary, Data: bytes.Clone(data)}
	if r.OnMessageHook != nil {
		r.OnMessageHook(ws)
	}
}

func (r *Recorder) OnClosing(ws api.WebSocket, code int, reason string) {
	r.events <- Event{Kind: EventClosing, Code: code, Reason: reason}
	if r.OnClosingHook != nil {
		r.OnClosingHook(ws, code, reason)
	}
}

func (r *Recorder) OnClosed(_ api.WebSocket, code int, reason string) {
	r.events <- Event{Kind: EventClosed, Code: code, Reason: reason}
}

func (r *Recorder) OnFailure(_ api.WebSocket, err error) {
	r.events <- Event{Kind: EventFailure, Err: err}
}

// Next returns the next event, failing t after DefaultWait.
func (r *Recorder) Next(t testing.TB) Event {
	t.Helper()
	select {
	case e := <-r.events:
		return e
	case <-time.After(DefaultWait):
		t.Fatalf("%s: timed out waiting for event", r.name)
		return Event{}
	}
}

func (r *Recorder) expect(t testing.TB, kind EventKind) Event {
	t.Helper()
	e := r.Next(t)
	if e.Kind != kind {
		t.Fatalf("%s: got %s, want %s", r.name, e, kind)
	}
	return e
}

// AssertOpen expects OnOpen.
func (r *Recorder) AssertOpen(t testing.TB) {
	t.Helper()
	r.expect(t, EventOpen)
}

// AssertTextMessage expects OnTextMessage with text.
func (r *Recorder) AssertTextMessage(t testing.TB, text string) {
	t.Helper()
	if e := r.expect(t, EventText); e.Text != text {
		t.Fatalf("%s: got text %q, want %q", r.name, e.Text, text)
	}
}

// AssertBinaryMessage expects OnBinaryMessage with data.
func (r *Recorder) AssertBinaryMessage(t testing.TB, data []byte) {
	t.Helper()
	if e := r.expect(t, EventBinary); !bytes.Equal(e.Data, data) {
		t.Fatalf("%s: got binary %x, want %x", r.name, e.Data, data)
	}
}

// AssertClosing expects OnClosing with code and reason.
func (r *Recorder) AssertClosing(t testing.TB, code int, reason string) {
	t.Helper()
	if e := r.expect(t, EventClosing); e.Code != code || e.Reason != reason {
		t.Fatalf("%s: got %s, want closing(%d, %q)", r.name, e, code, reason)
	}
}

// AssertClosed expects OnClosed with code and reason.
func (r *Recorder) AssertClosed(t testing.TB, code int, reason string) {
	t.Helper()
	if e := r.expect(t, EventClosed); e.Code != code || e.Reason != reason {
		t.Fatalf("%s: got %s, want closed(%d, %q)", r.name, e, code, reason)
	}
}

// AssertFailure expects OnFailure whose error message equals msg. An empty
// msg accepts any error. The error is returned for further checks.
func (r *Recorder) AssertFailure(t testing.TB, msg string) error {
	t.Helper()
	e := r.expect(t, EventFailure)
	if msg != "" && e.Err.Error() != msg {
		t.Fatalf("%s: got failure %q, want %q", r.name, e.Err, msg)
	}
	return e.Err
}

// AssertFailureIs expects OnFailure with an error matching target.
func (r *Recorder) AssertFailureIs(t testing.TB, target error) error {
	t.Helper()
	e := r.expect(t, EventFailure)
	if !errors.Is(e.Err, target) {
		t.Fatalf("%s: got failure %v, want %v", r.name, e.Err, target)
	}
	return e.Err
}

// AssertExhausted fails if any event is pending.
func (r *Recorder) AssertExhausted(t testing.TB) {
	t.Helper()
	select {
	case e := <-r.events:
		t.Fatalf("%s: unexpected event %s", r.name, e)
	default:
	}
}
