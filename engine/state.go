// File: engine/state.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Close-handshake state machine and the failure routine. The *Locked methods
// are the only mutators of the close state and must be called with c.mu held;
// they return what the caller has to do once the lock is released.

package engine

import (
	"errors"

	"github.com/eapache/queue"

	"github.com/momentics/wsengine/api"
	"github.com/momentics/wsengine/protocol"
)

// connState is the per-connection record guarded by Conn.mu.
type connState struct {
	state api.CloseState

	// closeQueued records closed-by-self intent: a close frame (ours or the
	// automatic echo) is queued or already written. Sends are refused after it.
	closeQueued bool
	localClose  protocol.CloseRecord
	// remoteSeen is set once the peer's close frame has been fully processed.
	remoteSeen  bool
	remoteClose protocol.CloseRecord

	pongs           *queue.Queue // pong payloads, written ahead of messages
	messages        *queue.Queue // *outgoing data and close frames
	queueSize       int64
	writerScheduled bool

	awaitingPong    bool
	sentPings       int
	receivedPings   int
	receivedPongs   int
	successfulPings int

	framesSent       int64
	framesReceived   int64
	messagesReceived int64

	pingTask         api.Cancelable
	pingGen          uint64
	closeTimeoutTask api.Cancelable
}

// sendableLocked reports whether callers may still queue frames.
func (c *Conn) sendableLocked() bool {
	return !c.closeQueued && !c.state.Terminal()
}

// ourCloseFlushedLocked reports whether our close frame reached the stream.
func (c *Conn) ourCloseFlushedLocked() bool {
	return c.state == api.StateLocalSent || c.state == api.StateClosed
}

func (c *Conn) setStateLocked(s api.CloseState) {
	c.log.Debug("state transition", "from", c.state.String(), "to", s.String())
	c.state = s
	c.metric("state", s.String())
}

// queueCloseLocked records closed-by-self intent and queues the close frame.
// It returns false when a close was already queued or the connection is done.
func (c *Conn) queueCloseLocked(code int, reason string) (bool, error) {
	if !c.sendableLocked() {
		return false, nil
	}
	c.closeQueued = true
	c.localClose = protocol.CloseRecord{Code: code, Reason: reason}
	c.messages.Add(&outgoing{kind: frameClose, close: c.localClose})
	c.log.Debug("close queued", "code", code, "reason", reason)
	return true, c.scheduleWriterLocked()
}

// closeFlushedLocked runs after our close frame was written. It reports
// whether both directions are now closed and the connection must be torn down.
func (c *Conn) closeFlushedLocked() bool {
	switch c.state {
	case api.StateOpen:
		c.setStateLocked(api.StateLocalSent)
		if c.cfg.CloseTimeout > 0 {
			t, err := c.sched.Schedule(c.cfg.CloseTimeout, c.closeTimedOut)
			if err != nil {
				c.log.Warn("schedule close timeout", "err", err)
			}
			c.closeTimeoutTask = t
		}
		return false
	case api.StateRemoteReceived:
		c.setStateLocked(api.StateClosed)
		return true
	}
	return false
}

// remoteCloseLocked runs after OnClosing returned for the peer's close frame.
// It reports whether teardown is due; otherwise it may queue the echo.
func (c *Conn) remoteCloseLocked(rec protocol.CloseRecord) (teardown bool, err error) {
	c.remoteSeen = true
	c.remoteClose = rec
	switch c.state {
	case api.StateOpen:
		c.setStateLocked(api.StateRemoteReceived)
	case api.StateLocalSent:
		c.setStateLocked(api.StateClosed)
		return true, nil
	default:
		return false, nil
	}
	if !c.closeQueued && c.cfg.AutoCloseReply {
		c.closeQueued = true
		c.localClose = rec
		c.messages.Add(&outgoing{kind: frameClose, close: rec})
		c.log.Debug("echoing close", "code", rec.Code)
		return false, c.scheduleWriterLocked()
	}
	return false, nil
}

// takeTimersLocked detaches the keepalive and close timeout tasks.
func (c *Conn) takeTimersLocked() []api.Cancelable {
	var tasks []api.Cancelable
	if c.pingTask != nil {
		tasks = append(tasks, c.pingTask)
		c.pingTask = nil
	}
	if c.closeTimeoutTask != nil {
		tasks = append(tasks, c.closeTimeoutTask)
		c.closeTimeoutTask = nil
	}
	return tasks
}

// teardown completes a graceful close. Callers reach it exactly once, from the
// transition into StateClosed.
func (c *Conn) teardown() {
	c.mu.Lock()
	tasks := c.takeTimersLocked()
	rec := c.remoteClose
	c.mu.Unlock()

	c.cancelTasks(tasks)
	if err := c.stream.Close(); err != nil {
		c.log.Debug("stream close", "err", err)
	}
	c.log.Debug("connection closed", "code", rec.Code, "reason", rec.Reason)
	c.listener.OnClosed(c, rec.Code, rec.Reason)
}

// fail is the single failure routine. Only the first call after the
// connection became live has any effect; it never runs after a clean close.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		return
	}
	code, sendClose := failureCloseCode(err)
	sendClose = sendClose && !c.ourCloseFlushedLocked()
	c.setStateLocked(api.StateFailed)
	c.pongs = queue.New()
	c.messages = queue.New()
	c.queueSize = 0
	tasks := c.takeTimersLocked()
	c.mu.Unlock()

	c.cancelTasks(tasks)
	if sendClose {
		c.writeFailureClose(code)
	}
	if cerr := c.stream.Close(); cerr != nil {
		c.log.Debug("stream close", "err", cerr)
	}
	c.log.Warn("connection failed", "err", err)
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	c.listener.OnFailure(c, err)
}

// failLater runs fail on its own goroutine. Public send operations use it
// since they may be called from inside a listener callback, where dispatchMu
// is already held.
func (c *Conn) failLater(err error) {
	go c.fail(err)
}

// writeFailureClose makes one attempt at telling the peer why we give up. A
// writer busy on the stream means the attempt is skipped; write errors are
// dropped so the original failure is the one reported.
func (c *Conn) writeFailureClose(code int) {
	if !c.writeMu.TryLock() {
		return
	}
	defer c.writeMu.Unlock()
	if err := c.writer.WriteControl(protocol.OpcodeClose, protocol.EncodeClosePayload(code, "")); err != nil {
		c.log.Debug("failure close not sent", "err", err)
	}
}

// failureCloseCode maps a failure to the status sent to the peer. Transport
// errors get none since the stream is already unusable.
func failureCloseCode(err error) (int, bool) {
	var pe *protocol.ProtocolError
	if errors.As(err, &pe) {
		return pe.CloseCode, true
	}
	var te *api.TimeoutError
	if errors.As(err, &te) {
		return protocol.CloseGoingAway, true
	}
	return 0, false
}

// closeTimedOut fires when the peer did not answer our close in time.
func (c *Conn) closeTimedOut() {
	c.mu.Lock()
	pending := c.state == api.StateLocalSent
	c.closeTimeoutTask = nil
	c.mu.Unlock()
	if pending {
		c.log.Warn("peer did not answer close, canceling", "timeout", c.cfg.CloseTimeout)
		c.Cancel()
	}
}
