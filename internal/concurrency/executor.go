// File: internal/concurrency/executor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor runs tasks on an elastic pool of worker goroutines. An idle
// worker takes a task straight from the handoff channel; when none is idle a
// new worker starts, up to the configured limit. Past the limit tasks wait in
// a FIFO backlog. Workers idle for longer than the idle timeout exit.

package concurrency

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/wsengine/api"
)

// DefaultIdleTimeout is how long a worker waits for work before exiting.
const DefaultIdleTimeout = 30 * time.Second

// Executor manages a pool of worker goroutines.
type Executor struct {
	handoff chan *task    // unbuffered; a send succeeds only to an idle worker
	kick    chan struct{} // wakes an idle worker when the backlog grows
	closeCh chan struct{} // signals executor shutdown

	mu          sync.Mutex
	backlog     *queue.Queue // *task waiting for a worker once the limit is hit
	numWorkers  int
	maxWorkers  int // 0 means unlimited
	idleTimeout time.Duration
	closed      bool

	// statistics
	totalTasks     int64
	completedTasks int64
}

// NewExecutor creates an Executor. maxWorkers <= 0 removes the worker limit,
// so a task never waits behind tasks that are blocked. No goroutine runs
// until the first task arrives.
func NewExecutor(maxWorkers int, idleTimeout time.Duration) *Executor {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Executor{
		handoff:     make(chan *task),
		kick:        make(chan struct{}, 1),
		closeCh:     make(chan struct{}),
		backlog:     queue.New(),
		maxWorkers:  maxWorkers,
		idleTimeout: idleTimeout,
	}
}

func (e *Executor) submit(t *task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return api.ErrSchedulerClosed
	}
	atomic.AddInt64(&e.totalTasks, 1)
	// A non-empty backlog keeps FIFO order: new work lines up behind it.
	if e.backlog.Length() == 0 {
		select {
		case e.handoff <- t:
			return nil
		default:
		}
		if e.maxWorkers <= 0 || e.numWorkers < e.maxWorkers {
			e.numWorkers++
			go e.work(t)
			return nil
		}
	}
	e.backlog.Add(t)
	e.wake()
	return nil
}

func (e *Executor) wake() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

func (e *Executor) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// NumWorkers returns the current number of worker goroutines.
func (e *Executor) NumWorkers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.numWorkers
}

// Completed returns the number of tasks that ran to completion.
func (e *Executor) Completed() int64 {
	return atomic.LoadInt64(&e.completedTasks)
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	e.mu.Lock()
	backlog := e.backlog.Length()
	e.mu.Unlock()
	return map[string]int64{
		"total_tasks":     atomic.LoadInt64(&e.totalTasks),
		"completed_tasks": atomic.LoadInt64(&e.completedTasks),
		"backlog":         int64(backlog),
		"num_workers":     int64(e.NumWorkers()),
	}
}

// Close stops accepting tasks and cancels the backlog. Running tasks finish
// on their own; idle workers exit.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	var pending []*task
	for e.backlog.Length() > 0 {
		pending = append(pending, e.backlog.Remove().(*task))
	}
	e.mu.Unlock()

	close(e.closeCh)
	for _, t := range pending {
		t.Cancel()
	}
}

// work is the main loop of one worker.
func (e *Executor) work(first *task) {
	e.execute(first)
	idle := time.NewTimer(e.idleTimeout)
	defer idle.Stop()
	for {
		if t := e.next(); t != nil {
			e.execute(t)
			continue
		}
		idle.Reset(e.idleTimeout)
		select {
		case t := <-e.handoff:
			e.execute(t)
		case <-e.kick:
		case <-idle.C:
			if e.retire(false) {
				return
			}
		case <-e.closeCh:
			e.retire(true)
			return
		}
	}
}

// next pops the backlog head and passes the wake-up on while work remains.
func (e *Executor) next() *task {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backlog.Length() == 0 {
		return nil
	}
	t := e.backlog.Remove().(*task)
	if e.backlog.Length() > 0 {
		e.wake()
	}
	return t
}

// retire removes the calling worker from the pool unless backlog work is
// left for it.
func (e *Executor) retire(force bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !force && e.backlog.Length() > 0 {
		return false
	}
	e.numWorkers--
	return true
}

func (e *Executor) execute(t *task) {
	if t.run() {
		atomic.AddInt64(&e.completedTasks, 1)
	}
}
