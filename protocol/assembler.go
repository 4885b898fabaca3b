// File: protocol/assembler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reassembles fragmented data frames into messages.

package protocol

import (
	"bytes"
	"unicode/utf8"
)

// Message is a complete data message.
type Message struct {
	Opcode     byte
	Payload    []byte
	Compressed bool
}

// IsText reports whether the message was sent as text.
func (m *Message) IsText() bool {
	return m.Opcode == OpcodeText
}

// Assembler accumulates data frames of one message at a time.
type Assembler struct {
	inflater *Inflater
	maxSize  int64

	opcode     byte // opcode of the message in progress, 0 when idle
	compressed bool
	buf        bytes.Buffer
}

// NewAssembler returns an Assembler. inflater may be nil when compression was
// not negotiated; maxSize bounds the assembled message, zero disables it.
func NewAssembler(inflater *Inflater, maxSize int64) *Assembler {
	return &Assembler{inflater: inflater, maxSize: maxSize}
}

// InProgress reports whether a fragmented message awaits continuation frames.
func (a *Assembler) InProgress() bool {
	return a.opcode != 0
}

// Push adds a data frame. It returns the finished message on the fin frame and
// nil otherwise.
func (a *Assembler) Push(f *Frame) (*Message, error) {
	switch f.Opcode {
	case OpcodeContinuation:
		if !a.InProgress() {
			return nil, protocolErrorf("Unexpected continuation frame.")
		}
	case OpcodeText, OpcodeBinary:
		if a.InProgress() {
			return nil, protocolErrorf("Expected continuation opcode. Got: %x", f.Opcode)
		}
		a.opcode = f.Opcode
		a.compressed = f.Rsv1
		a.buf.Reset()
	default:
		return nil, protocolErrorf("Unknown opcode: %x", f.Opcode)
	}

	if a.maxSize > 0 && int64(a.buf.Len()+len(f.Payload)) > a.maxSize {
		return nil, &ProtocolError{CloseCode: CloseMessageTooBig, Msg: "Message too big."}
	}
	a.buf.Write(f.Payload)
	if !f.Fin {
		return nil, nil
	}

	msg := &Message{Opcode: a.opcode, Compressed: a.compressed}
	a.opcode = 0
	if msg.Compressed {
		if a.inflater == nil {
			return nil, protocolErrorf("Unexpected rsv1 flag")
		}
		p, err := a.inflater.Inflate(a.buf.Bytes(), a.maxSize)
		if err != nil {
			return nil, err
		}
		msg.Payload = p
	} else {
		msg.Payload = bytes.Clone(a.buf.Bytes())
	}
	if msg.Payload == nil {
		msg.Payload = []byte{}
	}
	if msg.IsText() && !utf8.Valid(msg.Payload) {
		return nil, &ProtocolError{CloseCode: CloseInvalidPayloadData, Msg: "Invalid UTF-8 text payload."}
	}
	return msg, nil
}
