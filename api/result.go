// Package api
// Author: momentics@gmail.com
//
// Cancellation handle returned by schedulers.

package api

// Cancelable is any operation that may be canceled.
type Cancelable interface {
	// Cancel attempts to abort the operation.
	Cancel() error
	// Done signals completion/cancellation.
	Done() <-chan struct{}
	// Err returns cancellation reason.
	Err() error
}

// ErrCanceled is reported by Cancelable.Err after a successful Cancel.
var ErrCanceled = NewError(ErrCodeInternal, "task canceled")
