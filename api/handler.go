// File: api/handler.go
// Package api defines the Listener interface.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Listener receives decoded connection events.
//
// OnClosing and OnClosed are each delivered at most once, OnClosed only after
// OnClosing. OnClosed and OnFailure are mutually exclusive terminal events.
type Listener interface {
	OnOpen(ws WebSocket)
	OnTextMessage(ws WebSocket, text string)
	OnBinaryMessage(ws WebSocket, data []byte)
	OnClosing(ws WebSocket, code int, reason string)
	OnClosed(ws WebSocket, code int, reason string)
	OnFailure(ws WebSocket, err error)
}

// NopListener ignores every event. Embed it to implement a subset of Listener.
type NopListener struct{}

func (NopListener) OnOpen(WebSocket) {}
func (NopListener) OnTextMessage(WebSocket, string) {}
func (NopListener) OnBinaryMessage(WebSocket, []byte) {}
func (NopListener) OnClosing(WebSocket, int, string) {}
func (NopListener) OnClosed(WebSocket, int, string) {}
func (NopListener) OnFailure(WebSocket, error) {}

var _ Listener = NopListener{}
