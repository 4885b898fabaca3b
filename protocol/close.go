// File: protocol/close.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Close frame payload codec and status code validation.

package protocol

import (
	"encoding/binary"
	"strconv"
	"unicode/utf8"

	"github.com/momentics/wsengine/api"
)

// CloseRecord is the code and reason carried by a close frame.
type CloseRecord struct {
	Code   int
	Reason string
}

// CloseCodeError returns the reason code may not be sent, or "" when it may.
func CloseCodeError(code int) string {
	switch {
	case code < 1000 || code >= 5000:
		return "Code must be in range [1000,5000): " + strconv.Itoa(code)
	case (code >= 1004 && code <= 1006) || (code >= 1015 && code <= 2999):
		return "Code " + strconv.Itoa(code) + " is reserved and may not be used."
	}
	return ""
}

// ValidateClose checks a locally requested close before any I/O happens.
func ValidateClose(code int, reason string) error {
	if msg := CloseCodeError(code); msg != "" {
		return api.NewError(api.ErrCodeInvalidArgument, msg)
	}
	if len(reason) > MaxCloseReasonLen {
		return api.NewError(api.ErrCodeInvalidArgument, "reason.size() > 123: "+reason)
	}
	if !utf8.ValidString(reason) {
		return api.NewError(api.ErrCodeInvalidArgument, "reason is not valid UTF-8")
	}
	return nil
}

// EncodeClosePayload builds a close frame payload. CloseNoStatusRcvd yields an
// empty payload, since that code stands for "no code supplied" on the wire.
func EncodeClosePayload(code int, reason string) []byte {
	if code == CloseNoStatusRcvd {
		return nil
	}
	p := make([]byte, 2, 2+len(reason))
	binary.BigEndian.PutUint16(p, uint16(code))
	return append(p, reason...)
}

// ParseClosePayload decodes a received close payload. Payloads shorter than two
// bytes carry no code and are reported as CloseNoStatusRcvd with an empty reason.
func ParseClosePayload(p []byte) (CloseRecord, error) {
	if len(p) < 2 {
		return CloseRecord{Code: CloseNoStatusRcvd}, nil
	}
	code := int(binary.BigEndian.Uint16(p))
	if msg := CloseCodeError(code); msg != "" {
		return CloseRecord{}, protocolErrorf("%s", msg)
	}
	reason := p[2:]
	if !utf8.Valid(reason) {
		return CloseRecord{}, &ProtocolError{CloseCode: CloseInvalidPayloadData, Msg: "Invalid UTF-8 close reason."}
	}
	return CloseRecord{Code: code, Reason: string(reason)}, nil
}
