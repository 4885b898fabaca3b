// File: engine/keepalive.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Keepalive pings. A tick sends a ping and arms the next tick one interval
// later; a pong that answers it re-arms the tick one interval after the pong.
// A tick that finds the previous ping unanswered fails the connection.

package engine

import (
	"io"

	"github.com/momentics/wsengine/api"
	"github.com/momentics/wsengine/protocol"
)

// pingPayloadLen is the size of the random keepalive payload.
const pingPayloadLen = 8

func (c *Conn) armKeepalive() {
	if c.cfg.PingInterval <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schedulePingLocked()
}

// schedulePingLocked replaces the pending tick. A tick that already started
// sees a stale generation and does nothing.
func (c *Conn) schedulePingLocked() {
	if c.pingTask != nil {
		c.cancelTasks([]api.Cancelable{c.pingTask})
		c.pingTask = nil
	}
	c.pingGen++
	gen := c.pingGen
	t, err := c.sched.Schedule(c.cfg.PingInterval, func() { c.pingTick(gen) })
	if err != nil {
		c.log.Warn("schedule ping", "err", err)
		return
	}
	c.pingTask = t
}

func (c *Conn) pingTick(gen uint64) {
	c.mu.Lock()
	if gen != c.pingGen {
		c.mu.Unlock()
		return
	}
	c.pingTask = nil
	if !c.sendableLocked() {
		c.mu.Unlock()
		return
	}
	if c.awaitingPong {
		err := &api.TimeoutError{Interval: c.cfg.PingInterval, Successful: c.successfulPings}
		c.mu.Unlock()
		c.fail(err)
		return
	}
	c.awaitingPong = true
	c.sentPings++
	c.metric("pings_sent", c.sentPings)
	c.schedulePingLocked()
	c.mu.Unlock()

	payload := make([]byte, pingPayloadLen)
	if _, err := io.ReadFull(c.cfg.Rand, payload); err != nil {
		c.fail(err)
		return
	}

	c.writeMu.Lock()
	c.mu.Lock()
	open := !c.state.Terminal() && !c.ourCloseFlushedLocked()
	c.mu.Unlock()
	var err error
	if open {
		if err = c.writer.WriteControl(protocol.OpcodePing, payload); err == nil {
			c.mu.Lock()
			c.framesSent++
			c.metric("frames_sent", c.framesSent)
			c.mu.Unlock()
		}
	}
	c.writeMu.Unlock()
	if err != nil {
		c.fail(err)
	}
}

// onPong records a pong. Only a pong answering an outstanding ping counts.
func (c *Conn) onPong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receivedPongs++
	c.metric("pongs_received", c.receivedPongs)
	if !c.awaitingPong {
		return
	}
	c.awaitingPong = false
	c.successfulPings++
	if c.cfg.PingInterval > 0 && c.sendableLocked() {
		c.schedulePingLocked()
	}
}
