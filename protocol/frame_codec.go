// File: protocol/frame_codec.go
// Package protocol implements the frame codec with frame size enforcement.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// FrameReader decodes untrusted frames from a byte stream and rejects every
// header the peer was not allowed to send. FrameWriter encodes frames, masking
// them when acting as the connection-initiating peer.

package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
)

// payloadPreallocLimit is the largest payload allocated before it is read.
const payloadPreallocLimit = 64 << 10

// FrameReader parses frames from r.
type FrameReader struct {
	r              io.Reader
	isClient       bool
	deflate        bool
	maxMessageSize int64
	hdr            [8]byte
}

// NewFrameReader returns a reader for the given side of the connection.
// deflate allows rsv1 on the first frame of a data message. maxMessageSize
// bounds a single frame payload; zero disables the check.
func NewFrameReader(r io.Reader, isClient, deflate bool, maxMessageSize int64) *FrameReader {
	return &FrameReader{
		r:              r,
		isClient:       isClient,
		deflate:        deflate,
		maxMessageSize: maxMessageSize,
	}
}

// ReadFrame reads one complete frame. Errors from the underlying reader are
// returned unchanged; header violations are returned as *ProtocolError.
func (fr *FrameReader) ReadFrame() (*Frame, error) {
	if _, err := io.ReadFull(fr.r, fr.hdr[:2]); err != nil {
		return nil, err
	}
	b0, b1 := fr.hdr[0], fr.hdr[1]

	f := &Frame{
		Fin:    b0&FinBit != 0,
		Rsv1:   b0&Rsv1Bit != 0,
		Opcode: b0 & OpcodeBit,
		Masked: b1&MaskBit != 0,
	}

	control := f.IsControl()
	if control && !f.Fin {
		return nil, protocolErrorf("Control frames must be final.")
	}
	switch f.Opcode {
	case OpcodeContinuation, OpcodeText, OpcodeBinary,
		OpcodeClose, OpcodePing, OpcodePong:
	default:
		if control {
			return nil, protocolErrorf("Unknown control opcode: %x", f.Opcode)
		}
		return nil, protocolErrorf("Unknown opcode: %x", f.Opcode)
	}

	// rsv1 marks a compressed message and is only legal on its first frame.
	if f.Rsv1 && (control || f.Opcode == OpcodeContinuation || !fr.deflate) {
		return nil, protocolErrorf("Unexpected rsv1 flag")
	}
	if b0&Rsv2Bit != 0 {
		return nil, protocolErrorf("Unexpected rsv2 flag")
	}
	if b0&Rsv3Bit != 0 {
		return nil, protocolErrorf("Unexpected rsv3 flag")
	}

	if f.Masked == fr.isClient {
		if fr.isClient {
			return nil, protocolErrorf("Server-sent frames must not be masked.")
		}
		return nil, protocolErrorf("Client-sent frames must be masked.")
	}

	length := uint64(b1 & LengthBit)
	switch length {
	case PayloadLen16:
		if _, err := io.ReadFull(fr.r, fr.hdr[:2]); err != nil {
			return nil, err
		}
		length = uint64(binary.BigEndian.Uint16(fr.hdr[:2]))
	case PayloadLen64:
		if _, err := io.ReadFull(fr.r, fr.hdr[:8]); err != nil {
			return nil, err
		}
		length = binary.BigEndian.Uint64(fr.hdr[:8])
		if length > math.MaxInt64 {
			return nil, protocolErrorf("Frame length 0x%016x > 0x7FFFFFFFFFFFFFFF", length)
		}
	}

	if control && length > MaxControlPayloadLen {
		return nil, protocolErrorf("Control frame must be less than 125B.")
	}
	if length > math.MaxInt || (fr.maxMessageSize > 0 && length > uint64(fr.maxMessageSize)) {
		return nil, &ProtocolError{CloseCode: CloseMessageTooBig, Msg: "Message too big."}
	}

	if f.Masked {
		if _, err := io.ReadFull(fr.r, f.MaskKey[:]); err != nil {
			return nil, err
		}
	}

	payload, err := fr.readPayload(length)
	if err != nil {
		return nil, err
	}
	f.Payload = payload
	if f.Masked {
		maskBytes(f.MaskKey, 0, f.Payload)
	}
	return f, nil
}

// readPayload reads length bytes. Small payloads are read in place; larger
// ones grow a buffer as bytes arrive, so a declared length the peer never
// sends costs nothing up front.
func (fr *FrameReader) readPayload(length uint64) ([]byte, error) {
	if length <= payloadPreallocLimit {
		p := make([]byte, length)
		if _, err := io.ReadFull(fr.r, p); err != nil {
			return nil, unexpectedEOF(err)
		}
		return p, nil
	}
	var buf bytes.Buffer
	buf.Grow(payloadPreallocLimit)
	if _, err := io.CopyN(&buf, fr.r, int64(length)); err != nil {
		return nil, unexpectedEOF(err)
	}
	return buf.Bytes(), nil
}

// unexpectedEOF reports a stream that ended inside a frame.
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// FrameWriter serializes frames onto w. It is not safe for concurrent use;
// the engine guards it with its write lock.
type FrameWriter struct {
	w        *bufio.Writer
	isClient bool
	rand     io.Reader
	hdr      [MaxFrameHeaderLen]byte
	scratch  []byte
}

// NewFrameWriter returns a writer for the given side of the connection.
// Clients draw a fresh mask key per frame from rand.
func NewFrameWriter(w io.Writer, isClient bool, rand io.Reader) *FrameWriter {
	return &FrameWriter{
		w:        bufio.NewWriter(w),
		isClient: isClient,
		rand:     rand,
	}
}

// WriteControl writes a close, ping or pong frame and flushes it.
func (fw *FrameWriter) WriteControl(opcode byte, payload []byte) error {
	if len(payload) > MaxControlPayloadLen {
		return protocolErrorf("Control frame must be less than 125B.")
	}
	if err := fw.writeFrame(true, false, opcode, payload); err != nil {
		return err
	}
	return fw.w.Flush()
}

// WriteMessage writes a data message split into frames of at most fragment
// bytes (fragment <= 0 writes a single frame) and flushes it. compressed sets
// rsv1 on the first frame.
func (fw *FrameWriter) WriteMessage(opcode byte, payload []byte, compressed bool, fragment int) error {
	if fragment <= 0 || fragment >= len(payload) {
		if err := fw.writeFrame(true, compressed, opcode, payload); err != nil {
			return err
		}
		return fw.w.Flush()
	}
	for first := true; ; first = false {
		n := min(fragment, len(payload))
		op := byte(OpcodeContinuation)
		if first {
			op = opcode
		}
		fin := n == len(payload)
		if err := fw.writeFrame(fin, compressed && first, op, payload[:n]); err != nil {
			return err
		}
		payload = payload[n:]
		if fin {
			break
		}
	}
	return fw.w.Flush()
}

// writeFrame buffers a single frame without flushing.
func (fw *FrameWriter) writeFrame(fin, rsv1 bool, opcode byte, payload []byte) error {
	var b0 byte
	if fin {
		b0 = FinBit
	}
	if rsv1 {
		b0 |= Rsv1Bit
	}
	b0 |= opcode & OpcodeBit

	var maskFlag byte
	if fw.isClient {
		maskFlag = MaskBit
	}

	plen := len(payload)
	header := fw.hdr[:0]
	switch {
	case plen <= PayloadLenShort:
		header = append(header, b0, maskFlag|byte(plen))
	case plen <= math.MaxUint16:
		header = append(header, b0, maskFlag|PayloadLen16)
		header = binary.BigEndian.AppendUint16(header, uint16(plen))
	default:
		header = append(header, b0, maskFlag|PayloadLen64)
		header = binary.BigEndian.AppendUint64(header, uint64(plen))
	}

	if !fw.isClient {
		if _, err := fw.w.Write(header); err != nil {
			return err
		}
		_, err := fw.w.Write(payload)
		return err
	}

	var key [4]byte
	if _, err := io.ReadFull(fw.rand, key[:]); err != nil {
		return err
	}
	header = append(header, key[:]...)
	if _, err := fw.w.Write(header); err != nil {
		return err
	}
	fw.scratch = append(fw.scratch[:0], payload...)
	maskBytes(key, 0, fw.scratch)
	_, err := fw.w.Write(fw.scratch)
	return err
}
