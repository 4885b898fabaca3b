// File: protocol/extensions.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Sec-WebSocket-Extensions negotiation for permessage-deflate (RFC 7692).

package protocol

import (
	"net/http"
	"strconv"
	"strings"
)

// ExtensionsHeader is the handshake header carrying negotiated extensions.
const ExtensionsHeader = "Sec-WebSocket-Extensions"

// PerMessageDeflateToken names the compression extension.
const PerMessageDeflateToken = "permessage-deflate"

// Extensions holds the parsed handshake response extensions.
// A zero window-bits value means the parameter was absent.
type Extensions struct {
	PerMessageDeflate       bool
	ClientMaxWindowBits     int
	ClientNoContextTakeover bool
	ServerMaxWindowBits     int
	ServerNoContextTakeover bool
	// UnknownValues is set when the header carried anything this engine cannot honor.
	UnknownValues bool
}

// Valid reports whether the negotiated parameters are compatible with an
// engine that never shares a window across messages and always compresses
// with a 15-bit window.
func (e Extensions) Valid() bool {
	if e.UnknownValues {
		return false
	}
	if e.ClientMaxWindowBits != 0 {
		return false
	}
	if e.ServerMaxWindowBits != 0 && (e.ServerMaxWindowBits < 8 || e.ServerMaxWindowBits > 15) {
		return false
	}
	return true
}

// DeflateEnabled reports whether messages may be compressed on this connection.
func (e Extensions) DeflateEnabled() bool {
	return e.PerMessageDeflate && e.Valid()
}

// String renders e as a header value.
func (e Extensions) String() string {
	if !e.PerMessageDeflate {
		return ""
	}
	var b strings.Builder
	b.WriteString(PerMessageDeflateToken)
	if e.ClientMaxWindowBits != 0 {
		b.WriteString("; client_max_window_bits=" + strconv.Itoa(e.ClientMaxWindowBits))
	}
	if e.ClientNoContextTakeover {
		b.WriteString("; client_no_context_takeover")
	}
	if e.ServerMaxWindowBits != 0 {
		b.WriteString("; server_max_window_bits=" + strconv.Itoa(e.ServerMaxWindowBits))
	}
	if e.ServerNoContextTakeover {
		b.WriteString("; server_no_context_takeover")
	}
	return b.String()
}

// ParseExtensions parses every Sec-WebSocket-Extensions value in h.
func ParseExtensions(h http.Header) Extensions {
	var e Extensions
	for _, value := range h.Values(ExtensionsHeader) {
		for _, ext := range strings.Split(value, ",") {
			ext = strings.TrimSpace(ext)
			if ext == "" {
				continue
			}
			params := strings.Split(ext, ";")
			name := strings.TrimSpace(params[0])
			if !strings.EqualFold(name, PerMessageDeflateToken) {
				e.UnknownValues = true
				continue
			}
			if e.PerMessageDeflate {
				// Repeated extension.
				e.UnknownValues = true
			}
			e.PerMessageDeflate = true
			for _, p := range params[1:] {
				e.parseParam(p)
			}
		}
	}
	return e
}

func (e *Extensions) parseParam(p string) {
	key, value, hasValue := strings.Cut(strings.TrimSpace(p), "=")
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.Trim(strings.TrimSpace(value), `"`)

	switch key {
	case "client_max_window_bits":
		if e.ClientMaxWindowBits != 0 {
			e.UnknownValues = true
		}
		e.ClientMaxWindowBits = windowBits(value, hasValue, &e.UnknownValues)
	case "client_no_context_takeover":
		if e.ClientNoContextTakeover || hasValue {
			e.UnknownValues = true
		}
		e.ClientNoContextTakeover = true
	case "server_max_window_bits":
		if e.ServerMaxWindowBits != 0 {
			e.UnknownValues = true
		}
		e.ServerMaxWindowBits = windowBits(value, hasValue, &e.UnknownValues)
	case "server_no_context_takeover":
		if e.ServerNoContextTakeover || hasValue {
			e.UnknownValues = true
		}
		e.ServerNoContextTakeover = true
	default:
		e.UnknownValues = true
	}
}

// windowBits parses a max_window_bits value. A bare parameter counts as absent.
func windowBits(value string, hasValue bool, unknown *bool) int {
	if !hasValue {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*unknown = true
		return 0
	}
	return n
}
