// Copyright 2025 momentics@gmail.com
// License: Apache 2.0

package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/momentics/wsengine/api"
)

func TestCloseCodeError(t *testing.T) {
	for code, want := range map[int]string{
		0:    "Code must be in range [1000,5000): 0",
		999:  "Code must be in range [1000,5000): 999",
		5000: "Code must be in range [1000,5000): 5000",
		1004: "Code 1004 is reserved and may not be used.",
		1005: "Code 1005 is reserved and may not be used.",
		1006: "Code 1006 is reserved and may not be used.",
		1015: "Code 1015 is reserved and may not be used.",
		2999: "Code 2999 is reserved and may not be used.",
		1000: "",
		1003: "",
		1014: "",
		3000: "",
		4999: "",
	} {
		if got := CloseCodeError(code); got != want {
			t.Errorf("CloseCodeError(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestValidateClose(t *testing.T) {
	if err := ValidateClose(1000, "bye"); err != nil {
		t.Fatalf("valid close rejected: %v", err)
	}
	err := ValidateClose(1000, strings.Repeat("r", 124))
	if !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("long reason: got %v", err)
	}
	if err := ValidateClose(1000, "\xff"); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("invalid UTF-8 reason: got %v", err)
	}
}

func TestClosePayloadRoundTrip(t *testing.T) {
	p := EncodeClosePayload(1001, "going")
	if !bytes.Equal(p, []byte{0x03, 0xE9, 'g', 'o', 'i', 'n', 'g'}) {
		t.Fatalf("got % x", p)
	}
	rec, err := ParseClosePayload(p)
	if err != nil || rec.Code != 1001 || rec.Reason != "going" {
		t.Fatalf("got %+v, %v", rec, err)
	}
	if p := EncodeClosePayload(CloseNoStatusRcvd, ""); len(p) != 0 {
		t.Fatalf("1005 encoded as % x", p)
	}
}

func TestParseShortClosePayload(t *testing.T) {
	for _, p := range [][]byte{nil, {0x03}} {
		rec, err := ParseClosePayload(p)
		if err != nil || rec.Code != CloseNoStatusRcvd || rec.Reason != "" {
			t.Fatalf("ParseClosePayload(% x) = %+v, %v", p, rec, err)
		}
	}
}

func TestParseInvalidClosePayload(t *testing.T) {
	_, err := ParseClosePayload([]byte{0x03, 0xED}) // 1005
	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.CloseCode != CloseProtocolError {
		t.Fatalf("reserved code: got %v", err)
	}
	_, err = ParseClosePayload([]byte{0x03, 0xE8, 0xC3, 0x28})
	if !errors.As(err, &pe) || pe.CloseCode != CloseInvalidPayloadData {
		t.Fatalf("bad reason: got %v", err)
	}
}
