// Package api
// Author: momentics
//
// Scheduler contract for immediate and timed job execution.

package api

import "time"

// Scheduler abstracts task scheduling for the engine. Implementations may run
// tasks concurrently, but a task blocked in I/O must not delay unrelated
// tasks. The engine serializes its own work and needs no ordering guarantee.
type Scheduler interface {
	// Submit schedules fn to run as soon as possible.
	Submit(fn func()) (Cancelable, error)

	// Schedule schedules fn to run after delay.
	Schedule(delay time.Duration, fn func()) (Cancelable, error)

	// Cancel cancels a previously scheduled callback.
	Cancel(c Cancelable) error

	// Now returns the scheduler clock reading.
	Now() time.Time
}
