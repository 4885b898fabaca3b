// Package relay
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Publishes connection lifecycle and message events to a Redis Pub/Sub
// channel so that other processes can observe a fleet of connections.

package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/momentics/wsengine/api"
)

const (
	// DefChannel is the channel events are published to by default.
	DefChannel = "wsengine:events"
	// DefTimeout bounds a single publish.
	DefTimeout = time.Second
)

// Event kinds.
const (
	KindOpen    = "open"
	KindText    = "text"
	KindBinary  = "binary"
	KindClosing = "closing"
	KindClosed  = "closed"
	KindFailure = "failure"
)

// Publisher is the part of *redis.Client the relay needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

var _ Publisher = (*redis.Client)(nil)

// Event is the JSON document published for every listener callback.
type Event struct {
	Conn   string `json:"conn"`
	Kind   string `json:"kind"`
	Text   string `json:"text,omitempty"`
	Data   []byte `json:"data,omitempty"`
	Code   int    `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (e *Event) toJSON() ([]byte, error) {
	return json.Marshal(e)
}

func (e *Event) fromJSON(data []byte) error {
	return json.Unmarshal(data, e)
}

// Options configures a Listener.
type Options struct {
	// Channel is the Pub/Sub channel. Empty means DefChannel.
	Channel string

	// Timeout bounds each publish. Zero means DefTimeout.
	Timeout time.Duration

	// SkipPayloads publishes message events without their text or data.
	SkipPayloads bool

	Logger *slog.Logger
}

// Listener forwards every event to the wrapped listener and then publishes
// it. Publish failures are logged and never reach the connection.
type Listener struct {
	next api.Listener
	pub  Publisher
	o    Options
	log  *slog.Logger
}

var _ api.Listener = (*Listener)(nil)

// NewListener wraps next. A nil o uses defaults.
func NewListener(next api.Listener, pub Publisher, o *Options) *Listener {
	if next == nil {
		next = api.NopListener{}
	}
	var opts Options
	if o != nil {
		opts = *o
	}
	if opts.Channel == "" {
		opts.Channel = DefChannel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Listener{next: next, pub: pub, o: opts, log: opts.Logger.With("channel", opts.Channel)}
}

func (l *Listener) OnOpen(ws api.WebSocket) {
	l.next.OnOpen(ws)
	l.publish(&Event{Conn: ws.ID(), Kind: KindOpen})
}

func (l *Listener) OnTextMessage(ws api.WebSocket, text string) {
	l.next.OnTextMessage(ws, text)
	e := &Event{Conn: ws.ID(), Kind: KindText}
	if !l.o.SkipPayloads {
		e.Text = text
	}
	l.publish(e)
}

func (l *Listener) OnBinaryMessage(ws api.WebSocket, data []byte) {
	l.next.OnBinaryMessage(ws, data)
	e := &Event{Conn: ws.ID(), Kind: KindBinary}
	if !l.o.SkipPayloads {
		e.Data = data
	}
	l.publish(e)
}

func (l *Listener) OnClosing(ws api.WebSocket, code int, reason string) {
	l.next.OnClosing(ws, code, reason)
	l.publish(&Event{Conn: ws.ID(), Kind: KindClosing, Code: code, Reason: reason})
}

func (l *Listener) OnClosed(ws api.WebSocket, code int, reason string) {
	l.next.OnClosed(ws, code, reason)
	l.publish(&Event{Conn: ws.ID(), Kind: KindClosed, Code: code, Reason: reason})
}

func (l *Listener) OnFailure(ws api.WebSocket, err error) {
	l.next.OnFailure(ws, err)
	l.publish(&Event{Conn: ws.ID(), Kind: KindFailure, Error: err.Error()})
}

func (l *Listener) publish(e *Event) {
	data, err := e.toJSON()
	if err != nil {
		l.log.Error("relay encode", "conn", e.Conn, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.o.Timeout)
	defer cancel()
	if err := l.pub.Publish(ctx, l.o.Channel, string(data)).Err(); err != nil {
		l.log.Error("relay publish", "conn", e.Conn, "kind", e.Kind, "err", errors.Wrap(err, "publish"))
	}
}

// Consume decodes events from a subscription channel until it is closed.
// Undecodable payloads are logged and skipped.
func Consume(ch <-chan *redis.Message, log *slog.Logger, fn func(Event)) {
	if log == nil {
		log = slog.Default()
	}
	for m := range ch {
		var e Event
		if err := e.fromJSON([]byte(m.Payload)); err != nil {
			log.Error("relay decode", "channel", m.Channel, "err", err)
			continue
		}
		fn(e)
	}
}

// Dial connects to the Redis server at url (redis://host:port/db) and checks
// it with PING.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "relay: parse url")
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, errors.Wrapf(err, "relay: ping %s", opts.Addr)
	}
	return c, nil
}
