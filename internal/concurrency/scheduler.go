// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Task scheduler on top of Executor: ready tasks go to the worker pool at
// once, delayed tasks join it when their timer fires.

package concurrency

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/wsengine/api"
)

const (
	taskPending int32 = iota
	taskRunning
	taskDone
	taskCanceled
)

// task is a scheduled callback. It implements api.Cancelable.
type task struct {
	fn    func()
	state int32
	done  chan struct{}

	mu    sync.Mutex // guards timer
	timer *time.Timer
}

func newTask(fn func()) *task {
	return &task{fn: fn, done: make(chan struct{})}
}

// Cancel aborts the task if it has not started yet.
func (t *task) Cancel() error {
	if !atomic.CompareAndSwapInt32(&t.state, taskPending, taskCanceled) {
		return nil
	}
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()
	close(t.done)
	return nil
}

// Done is closed once the task ran or was canceled.
func (t *task) Done() <-chan struct{} {
	return t.done
}

// Err returns api.ErrCanceled for canceled tasks.
func (t *task) Err() error {
	if atomic.LoadInt32(&t.state) == taskCanceled {
		return api.ErrCanceled
	}
	return nil
}

func (t *task) pending() bool {
	return atomic.LoadInt32(&t.state) == taskPending
}

func (t *task) run() bool {
	if !atomic.CompareAndSwapInt32(&t.state, taskPending, taskRunning) {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler: task panicked", "panic", r)
		}
		atomic.StoreInt32(&t.state, taskDone)
		close(t.done)
	}()
	t.fn()
	return true
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*schedulerConfig)

type schedulerConfig struct {
	maxWorkers  int
	idleTimeout time.Duration
}

// WithMaxWorkers caps the worker pool. With a cap, tasks beyond it wait for
// a free worker, so one blocked task can delay others. The default is no cap.
func WithMaxWorkers(n int) SchedulerOption {
	return func(c *schedulerConfig) { c.maxWorkers = n }
}

// WithIdleTimeout sets how long an idle worker lingers before exiting.
func WithIdleTimeout(d time.Duration) SchedulerOption {
	return func(c *schedulerConfig) { c.idleTimeout = d }
}

// Scheduler implements api.Scheduler. Tasks may run concurrently with each
// other; one stuck in a blocking call never holds back the rest.
type Scheduler struct {
	exec *Executor
}

var _ api.Scheduler = (*Scheduler)(nil)

// NewScheduler creates a Scheduler. Call Close to release its workers.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	var cfg schedulerConfig
	for _, o := range opts {
		o(&cfg)
	}
	return &Scheduler{exec: NewExecutor(cfg.maxWorkers, cfg.idleTimeout)}
}

// Submit runs fn as soon as a worker is available.
func (s *Scheduler) Submit(fn func()) (api.Cancelable, error) {
	t := newTask(fn)
	if err := s.exec.submit(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Schedule runs fn after delay.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) (api.Cancelable, error) {
	if delay <= 0 {
		return s.Submit(fn)
	}
	if s.exec.isClosed() {
		return nil, api.ErrSchedulerClosed
	}
	t := newTask(fn)
	// The callback may race the assignment below; Cancel reads timer under t.mu.
	t.mu.Lock()
	t.timer = time.AfterFunc(delay, func() {
		if !t.pending() {
			return
		}
		if err := s.exec.submit(t); err != nil {
			t.Cancel()
		}
	})
	t.mu.Unlock()
	return t, nil
}

// Cancel cancels c if it has not started.
func (s *Scheduler) Cancel(c api.Cancelable) error {
	if c == nil {
		return nil
	}
	return c.Cancel()
}

// Now returns wall-clock time.
func (s *Scheduler) Now() time.Time {
	return time.Now()
}

// Completed returns the number of tasks that ran to completion.
func (s *Scheduler) Completed() int64 {
	return s.exec.Completed()
}

// Workers returns the number of live worker goroutines.
func (s *Scheduler) Workers() int {
	return s.exec.NumWorkers()
}

// Stats returns the executor statistics.
func (s *Scheduler) Stats() map[string]int64 {
	return s.exec.Stats()
}

// Close stops the scheduler. Tasks that have not started are canceled.
func (s *Scheduler) Close() {
	s.exec.Close()
}
