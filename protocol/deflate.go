// File: protocol/deflate.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// permessage-deflate. Outgoing messages never take over context, so every
// message is compressed on its own. Incoming messages may reference the
// peer's previous output, so the inflater keeps the last window as a
// dictionary.

package protocol

import (
	"bytes"
	"compress/flate"
	"io"
)

// DefaultMinimumDeflateSize is the smallest payload worth compressing.
const DefaultMinimumDeflateSize = 1024

var (
	// emptyDeflateBlock terminates a sync-flushed deflate stream.
	emptyDeflateBlock = []byte{0x00, 0x00, 0xFF, 0xFF}
	// deflateTail restores the stripped marker and appends a final empty stored
	// block so the inflater sees a terminated stream.
	deflateTail = []byte{0x00, 0x00, 0xFF, 0xFF, 0x01, 0x00, 0x00, 0xFF, 0xFF}
)

// Deflater compresses outgoing message payloads.
type Deflater struct {
	buf bytes.Buffer
	w   *flate.Writer
}

// NewDeflater returns a Deflater using the given compress/flate level.
func NewDeflater(level int) (*Deflater, error) {
	d := &Deflater{}
	w, err := flate.NewWriter(&d.buf, level)
	if err != nil {
		return nil, err
	}
	d.w = w
	return d, nil
}

// Deflate compresses p and strips the trailing block-end marker. The result is
// a fresh slice owned by the caller.
func (d *Deflater) Deflate(p []byte) ([]byte, error) {
	d.buf.Reset()
	d.w.Reset(&d.buf)
	if _, err := d.w.Write(p); err != nil {
		return nil, err
	}
	if err := d.w.Flush(); err != nil {
		return nil, err
	}
	out := d.buf.Bytes()
	if bytes.HasSuffix(out, emptyDeflateBlock) {
		out = out[:len(out)-len(emptyDeflateBlock)]
	} else {
		out = append(out, 0x00)
	}
	return bytes.Clone(out), nil
}

// maxWindow is the largest deflate window (server_max_window_bits=15).
const maxWindow = 1 << 15

// Inflater decompresses incoming message payloads.
type Inflater struct {
	r    io.ReadCloser
	src  bytes.Reader
	tail bytes.Reader
	out  bytes.Buffer
	dict []byte
}

// NewInflater returns an Inflater.
func NewInflater() *Inflater {
	return &Inflater{}
}

// Inflate decompresses a message payload received with rsv1 set. limit bounds
// the inflated size; zero disables the bound. Failures are *ProtocolError.
func (i *Inflater) Inflate(p []byte, limit int64) ([]byte, error) {
	i.src.Reset(p)
	i.tail.Reset(deflateTail)
	in := io.MultiReader(&i.src, &i.tail)
	if i.r == nil {
		i.r = flate.NewReaderDict(in, i.dict)
	} else if err := i.r.(flate.Resetter).Reset(in, i.dict); err != nil {
		return nil, inflateError(err)
	}

	var rd io.Reader = i.r
	if limit > 0 {
		rd = io.LimitReader(i.r, limit+1)
	}
	i.out.Reset()
	if _, err := i.out.ReadFrom(rd); err != nil {
		return nil, inflateError(err)
	}
	if limit > 0 && int64(i.out.Len()) > limit {
		return nil, &ProtocolError{CloseCode: CloseMessageTooBig, Msg: "Message too big."}
	}
	out := bytes.Clone(i.out.Bytes())
	i.slideWindow(out)
	return out, nil
}

// slideWindow keeps the last maxWindow bytes of inflated output.
func (i *Inflater) slideWindow(out []byte) {
	if len(out) >= maxWindow {
		i.dict = append(i.dict[:0], out[len(out)-maxWindow:]...)
		return
	}
	i.dict = append(i.dict, out...)
	if over := len(i.dict) - maxWindow; over > 0 {
		i.dict = append(i.dict[:0], i.dict[over:]...)
	}
}

func inflateError(err error) *ProtocolError {
	return &ProtocolError{CloseCode: CloseInvalidPayloadData, Msg: "Invalid compressed payload: " + err.Error()}
}
