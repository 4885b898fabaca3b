// File: protocol/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"fmt"

	"github.com/momentics/wsengine/api"
)

// ProtocolError reports a peer that violated the framing rules.
// CloseCode is the status sent back to the peer when failing the connection.
type ProtocolError struct {
	CloseCode int
	Msg       string
}

func (e *ProtocolError) Error() string {
	return e.Msg
}

// Is reports whether target is api.ErrProtocol.
func (e *ProtocolError) Is(target error) bool {
	return target == api.ErrProtocol
}

func protocolErrorf(format string, args ...any) *ProtocolError {
	return &ProtocolError{CloseCode: CloseProtocolError, Msg: fmt.Sprintf(format, args...)}
}
