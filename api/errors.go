// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for wsengine.

package api

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors used across the library. Structured errors match them via errors.Is.
var (
	ErrTransportClosed = fmt.Errorf("transport is closed")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrProtocol        = fmt.Errorf("protocol error")
	ErrTimeout         = fmt.Errorf("operation timeout")
	ErrSchedulerClosed = fmt.Errorf("scheduler is closed")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeProtocol
	ErrCodeTimeout
	ErrCodeTransport
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Is maps the error code onto the package sentinels.
func (e *Error) Is(target error) bool {
	switch e.Code {
	case ErrCodeInvalidArgument:
		return target == ErrInvalidArgument
	case ErrCodeProtocol:
		return target == ErrProtocol
	case ErrCodeTimeout:
		return target == ErrTimeout
	case ErrCodeTransport:
		return target == ErrTransportClosed
	}
	return false
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Errorf creates a structured error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// TimeoutError reports a keepalive ping that was not answered within one interval.
type TimeoutError struct {
	Interval   time.Duration
	Successful int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("sent ping but didn't receive pong within %dms (after %d successful ping/pongs)",
		e.Interval.Milliseconds(), e.Successful)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// IsInvalidArgument reports whether err is an invalid-argument failure.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}
