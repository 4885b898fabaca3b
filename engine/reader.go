// File: engine/reader.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reader loop: decode, dispatch, stop on the first close, protocol error or
// transport error.

package engine

import (
	"github.com/momentics/wsengine/protocol"
)

// ProcessNextFrame reads one complete message, or one control frame, and
// dispatches it to the listener. Control frames interleaved with a fragmented
// message are handled as they arrive. It returns false once the peer's close
// was processed or the connection failed.
func (c *Conn) ProcessNextFrame() bool {
	c.mu.Lock()
	done := c.remoteSeen || c.state.Terminal()
	c.mu.Unlock()
	if done {
		return false
	}

	for {
		f, err := c.reader.ReadFrame()
		if err != nil {
			c.fail(err)
			return false
		}
		c.mu.Lock()
		c.framesReceived++
		c.metric("frames_received", c.framesReceived)
		c.mu.Unlock()

		switch f.Opcode {
		case protocol.OpcodePing:
			c.onPing(f.Payload)
			return true
		case protocol.OpcodePong:
			c.onPong()
			return true
		case protocol.OpcodeClose:
			c.onClose(f.Payload)
			return false
		}

		msg, err := c.assembler.Push(f)
		if err != nil {
			c.fail(err)
			return false
		}
		if msg == nil {
			continue
		}
		return c.deliver(msg)
	}
}

// deliver hands a message to the listener unless the connection failed. The
// check and the callback happen under dispatchMu so OnFailure cannot slip in
// between them.
func (c *Conn) deliver(msg *protocol.Message) bool {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		return false
	}
	c.messagesReceived++
	c.metric("messages_received", c.messagesReceived)
	c.mu.Unlock()

	if msg.IsText() {
		c.listener.OnTextMessage(c, string(msg.Payload))
	} else {
		c.listener.OnBinaryMessage(c, msg.Payload)
	}
	return true
}

// dispatchClosing delivers OnClosing unless the connection already failed.
func (c *Conn) dispatchClosing(rec protocol.CloseRecord) bool {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	c.mu.Lock()
	failed := c.state.Terminal()
	c.mu.Unlock()
	if failed {
		return false
	}
	c.log.Debug("close received", "code", rec.Code, "reason", rec.Reason)
	c.listener.OnClosing(c, rec.Code, rec.Reason)
	return true
}

// onPing answers with a pong carrying the same payload unless we already
// queued our close.
func (c *Conn) onPing(payload []byte) {
	c.mu.Lock()
	c.receivedPings++
	if !c.sendableLocked() {
		c.mu.Unlock()
		return
	}
	c.pongs.Add(payload)
	err := c.scheduleWriterLocked()
	c.mu.Unlock()
	if err != nil {
		c.fail(err)
	}
}

func (c *Conn) onClose(payload []byte) {
	rec, err := protocol.ParseClosePayload(payload)
	if err != nil {
		c.fail(err)
		return
	}

	if !c.dispatchClosing(rec) {
		return
	}

	c.mu.Lock()
	teardown, err := c.remoteCloseLocked(rec)
	c.mu.Unlock()
	if err != nil {
		c.fail(err)
		return
	}
	if teardown {
		c.teardown()
	}
}
