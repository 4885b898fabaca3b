// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket frame model and masking.

package protocol

// Frame represents a decoded WebSocket frame. Payload is already unmasked.
type Frame struct {
	Fin     bool
	Rsv1    bool
	Opcode  byte
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// IsControl reports whether the frame is a close, ping or pong frame.
func (f *Frame) IsControl() bool {
	return IsControl(f.Opcode)
}

// maskBytes XORs data with key, starting at key offset pos. Returns the next offset.
func maskBytes(key [4]byte, pos int, data []byte) int {
	for i := range data {
		data[i] ^= key[pos&3]
		pos++
	}
	return pos & 3
}
