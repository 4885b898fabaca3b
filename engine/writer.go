// File: engine/writer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Outgoing path. Public send operations only queue; a writer task on the
// scheduler drains the queues one frame at a time under writeMu.

package engine

import (
	"github.com/momentics/wsengine/protocol"
)

type frameKind int

const (
	frameData frameKind = iota
	frameClose
)

// outgoing is a queued data message or close frame.
type outgoing struct {
	kind    frameKind
	opcode  byte
	payload []byte
	close   protocol.CloseRecord
}

// SendText queues a text message.
func (c *Conn) SendText(text string) bool {
	return c.send(protocol.OpcodeText, []byte(text))
}

// SendBinary queues a binary message. data must not be modified afterwards.
func (c *Conn) SendBinary(data []byte) bool {
	return c.send(protocol.OpcodeBinary, data)
}

func (c *Conn) send(opcode byte, payload []byte) bool {
	c.mu.Lock()
	if !c.sendableLocked() {
		c.mu.Unlock()
		return false
	}
	size := int64(len(payload))
	if c.cfg.MaxQueueSize > 0 && c.queueSize+size > c.cfg.MaxQueueSize {
		c.log.Warn("outgoing queue full, closing", "queued", c.queueSize, "size", size)
		_, err := c.queueCloseLocked(protocol.CloseGoingAway, "")
		c.mu.Unlock()
		if err != nil {
			c.failLater(err)
		}
		return false
	}
	c.queueSize += size
	c.messages.Add(&outgoing{kind: frameData, opcode: opcode, payload: payload})
	err := c.scheduleWriterLocked()
	c.mu.Unlock()
	if err != nil {
		c.failLater(err)
	}
	return true
}

// Pong queues an unsolicited pong. Payloads over 125 bytes are refused.
func (c *Conn) Pong(payload []byte) bool {
	if len(payload) > protocol.MaxControlPayloadLen {
		return false
	}
	c.mu.Lock()
	if !c.sendableLocked() {
		c.mu.Unlock()
		return false
	}
	c.pongs.Add(payload)
	err := c.scheduleWriterLocked()
	c.mu.Unlock()
	if err != nil {
		c.failLater(err)
	}
	return true
}

// Close queues a close frame. Codes that may not be sent and over-long reasons
// are rejected with an ErrInvalidArgument error before anything is queued.
// It returns false when a close was already queued or the connection failed.
func (c *Conn) Close(code int, reason string) (bool, error) {
	if err := protocol.ValidateClose(code, reason); err != nil {
		return false, err
	}
	c.mu.Lock()
	ok, err := c.queueCloseLocked(code, reason)
	c.mu.Unlock()
	if err != nil {
		c.failLater(err)
	}
	return ok, nil
}

// scheduleWriterLocked submits the writer task unless one is pending.
func (c *Conn) scheduleWriterLocked() error {
	if c.writerScheduled {
		return nil
	}
	if _, err := c.sched.Submit(c.drain); err != nil {
		return err
	}
	c.writerScheduled = true
	return nil
}

// drain writes queued frames until the queues are empty.
func (c *Conn) drain() {
	for c.writeOneFrame() {
	}
}

// writeOneFrame writes the next queued frame. Pongs go first. It returns false
// when nothing was written.
func (c *Conn) writeOneFrame() bool {
	c.writeMu.Lock()

	c.mu.Lock()
	if c.state.Terminal() {
		c.writerScheduled = false
		c.mu.Unlock()
		c.writeMu.Unlock()
		return false
	}
	var (
		pong []byte
		out  *outgoing
	)
	switch {
	case c.pongs.Length() > 0:
		pong = c.pongs.Remove().([]byte)
	case c.messages.Length() > 0:
		out = c.messages.Remove().(*outgoing)
	default:
		c.writerScheduled = false
		c.mu.Unlock()
		c.writeMu.Unlock()
		return false
	}
	c.mu.Unlock()

	var err error
	switch {
	case out == nil:
		err = c.writer.WriteControl(protocol.OpcodePong, pong)
	case out.kind == frameClose:
		err = c.writer.WriteControl(protocol.OpcodeClose, protocol.EncodeClosePayload(out.close.Code, out.close.Reason))
	default:
		err = c.writeMessage(out)
	}

	teardown := false
	c.mu.Lock()
	if err == nil {
		c.framesSent++
		c.metric("frames_sent", c.framesSent)
	}
	if out != nil && out.kind == frameData {
		c.queueSize -= int64(len(out.payload))
	}
	if err == nil && out != nil && out.kind == frameClose {
		teardown = c.closeFlushedLocked()
	}
	c.mu.Unlock()
	c.writeMu.Unlock()

	if err != nil {
		c.fail(err)
		return false
	}
	if teardown {
		c.teardown()
	}
	return true
}

// writeMessage compresses the payload when deflate was negotiated and it meets
// the threshold. Caller holds writeMu.
func (c *Conn) writeMessage(out *outgoing) error {
	payload := out.payload
	compressed := false
	if c.deflater != nil && len(payload) >= c.cfg.MinimumDeflateSize {
		p, err := c.deflater.Deflate(payload)
		if err != nil {
			return err
		}
		payload, compressed = p, true
	}
	return c.writer.WriteMessage(out.opcode, payload, compressed, c.cfg.FragmentSize)
}
