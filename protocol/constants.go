// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket wire protocol constants

package protocol

const (
	// Data opcodes (<0x8)
	OpcodeContinuation = 0x0
	OpcodeText         = 0x1
	OpcodeBinary       = 0x2

	// Control opcodes (>=0x8)
	OpcodeClose = 0x8
	OpcodePing  = 0x9
	OpcodePong  = 0xA

	// Frame limit settings
	MaxControlPayloadLen = 125
	MaxCloseReasonLen    = MaxControlPayloadLen - 2
	MaxFrameHeaderLen    = 14 // for extended payloads with masking

	// Length escapes for the 7-bit length field.
	PayloadLenShort = 125
	PayloadLen16    = 126
	PayloadLen64    = 127

	// Bit masks
	FinBit     = 0x80
	Rsv1Bit    = 0x40
	Rsv2Bit    = 0x20
	Rsv3Bit    = 0x10
	OpcodeBit  = 0x0F
	ControlBit = 0x08
	MaskBit    = 0x80
	LengthBit  = 0x7F

	// Close codes
	CloseNormalClosure      = 1000
	CloseGoingAway          = 1001
	CloseProtocolError      = 1002
	CloseUnsupportedData    = 1003
	CloseNoStatusRcvd       = 1005
	CloseAbnormalClosure    = 1006
	CloseInvalidPayloadData = 1007
	ClosePolicyViolation    = 1008
	CloseMessageTooBig      = 1009
	CloseMissingExtension   = 1010
	CloseInternalServerErr  = 1011
)

// IsControl reports whether opcode denotes a control frame.
func IsControl(opcode byte) bool {
	return opcode&ControlBit != 0
}

// OpcodeName returns a short name for logging.
func OpcodeName(opcode byte) string {
	switch opcode {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	default:
		return "reserved"
	}
}
