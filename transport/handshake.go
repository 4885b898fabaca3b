// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Opening handshake (RFC 6455 section 4): header validation, accept key
// computation and permessage-deflate negotiation. The engine itself starts
// after the 101 response.

package transport

import (
	"bufio"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/momentics/wsengine/protocol"
)

const (
	websocketGUID           = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	maxHandshakeHeadersSize = 8192
	websocketVersion        = "13"
)

var (
	ErrInvalidUpgradeHeaders = errors.New("invalid WebSocket upgrade headers")
	ErrMissingWebSocketKey   = errors.New("missing Sec-WebSocket-Key header")
	ErrBadWebSocketVersion   = errors.New("unsupported WebSocket version; only '13' is supported")
	ErrHeadersTooLarge       = errors.New("handshake headers too large")
	ErrBadAccept             = errors.New("Sec-WebSocket-Accept mismatch")
)

// AcceptKey computes Sec-WebSocket-Accept for a client key.
func AcceptKey(key string) string {
	h := sha1.Sum([]byte(strings.TrimSpace(key) + websocketGUID))
	return base64.StdEncoding.EncodeToString(h[:])
}

// Accept performs the server side of the handshake on conn. When
// allowDeflate is set and the client offered permessage-deflate, compression
// is accepted with no context takeover in either direction.
func Accept(conn net.Conn, allowDeflate bool) (*Stream, protocol.Extensions, error) {
	br := bufio.NewReader(conn)
	req, err := http.ReadRequest(br)
	if err != nil {
		return nil, protocol.Extensions{}, errors.Wrap(err, "handshake read request")
	}
	hdr, err := upgradeResponse(req)
	if err != nil {
		io.WriteString(conn, "HTTP/1.1 400 Bad Request\r\nConnection: close\r\n\r\n")
		return nil, protocol.Extensions{}, err
	}

	var ext protocol.Extensions
	if allowDeflate && protocol.ParseExtensions(req.Header).PerMessageDeflate {
		ext = protocol.Extensions{
			PerMessageDeflate:       true,
			ClientNoContextTakeover: true,
			ServerNoContextTakeover: true,
		}
		hdr.Set(protocol.ExtensionsHeader, ext.String())
	}
	if err := writeSwitchingProtocols(conn, hdr); err != nil {
		return nil, protocol.Extensions{}, errors.Wrap(err, "handshake write response")
	}
	return NewStream(conn, br), ext, nil
}

// upgradeResponse validates an upgrade request and builds the 101 headers.
func upgradeResponse(r *http.Request) (http.Header, error) {
	total := 0
	for k, vs := range r.Header {
		total += len(k)
		for _, v := range vs {
			total += len(v)
		}
		if total > maxHandshakeHeadersSize {
			return nil, ErrHeadersTooLarge
		}
	}
	if r.Method != http.MethodGet ||
		!headerContainsToken(r.Header, "Connection", "Upgrade") ||
		!headerContainsToken(r.Header, "Upgrade", "websocket") {
		return nil, ErrInvalidUpgradeHeaders
	}
	if r.Header.Get("Sec-WebSocket-Version") != websocketVersion {
		return nil, ErrBadWebSocketVersion
	}
	key := r.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return nil, ErrMissingWebSocketKey
	}

	resp := make(http.Header)
	resp.Set("Upgrade", "websocket")
	resp.Set("Connection", "Upgrade")
	resp.Set("Sec-WebSocket-Accept", AcceptKey(key))
	return resp, nil
}

func writeSwitchingProtocols(w io.Writer, hdr http.Header) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	if err := hdr.Write(bw); err != nil {
		return err
	}
	bw.WriteString("\r\n")
	return bw.Flush()
}

// Handshake performs the client side of the handshake over conn for the
// given host and request path.
func Handshake(conn net.Conn, host, path string, offerDeflate bool) (*Stream, protocol.Extensions, error) {
	nonce := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, protocol.Extensions{}, errors.Wrap(err, "handshake nonce")
	}
	key := base64.StdEncoding.EncodeToString(nonce)

	if path == "" {
		path = "/"
	}
	req, err := http.NewRequest(http.MethodGet, "http://"+host+path, nil)
	if err != nil {
		return nil, protocol.Extensions{}, errors.Wrap(err, "handshake request")
	}
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Sec-WebSocket-Key", key)
	req.Header.Set("Sec-WebSocket-Version", websocketVersion)
	if offerDeflate {
		req.Header.Set(protocol.ExtensionsHeader, protocol.PerMessageDeflateToken)
	}
	if err := req.Write(conn); err != nil {
		return nil, protocol.Extensions{}, errors.Wrap(err, "handshake write request")
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return nil, protocol.Extensions{}, errors.Wrap(err, "handshake read response")
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		return nil, protocol.Extensions{}, errors.Errorf("expected HTTP 101 response but was '%d %s'", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if !headerContainsToken(resp.Header, "Connection", "Upgrade") ||
		!headerContainsToken(resp.Header, "Upgrade", "websocket") {
		return nil, protocol.Extensions{}, ErrInvalidUpgradeHeaders
	}
	if got := resp.Header.Get("Sec-WebSocket-Accept"); got != AcceptKey(key) {
		return nil, protocol.Extensions{}, errors.Wrap(ErrBadAccept, fmt.Sprintf("got %q", got))
	}

	ext := protocol.ParseExtensions(resp.Header)
	if ext.PerMessageDeflate && (!offerDeflate || !ext.Valid()) {
		return nil, protocol.Extensions{}, errors.Errorf("unexpected %s in response header: %q",
			protocol.ExtensionsHeader, resp.Header.Get(protocol.ExtensionsHeader))
	}
	return NewStream(conn, br), ext, nil
}

// headerContainsToken reports whether the comma-separated header contains
// token, case-insensitively.
func headerContainsToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, p := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(p), token) {
				return true
			}
		}
	}
	return false
}
