// Package fake
// Author: momentics <momentics@gmail.com>
//
// Virtual-clock scheduler. Nothing runs until the test calls RunTasks or
// AdvanceUntil, so timing-dependent behavior is reproduced exactly.

package fake

import (
	"sync"
	"time"

	"github.com/momentics/wsengine/api"
)

// Epoch is the virtual clock reading at construction.
var Epoch = time.Unix(0, 0).UTC()

type fakeTask struct {
	at       time.Time
	seq      int
	fn       func()
	done     chan struct{}
	canceled bool
	finished bool
}

// Scheduler is a deterministic api.Scheduler driven by the test goroutine.
type Scheduler struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*fakeTask
}

var _ api.Scheduler = (*Scheduler)(nil)

// NewScheduler returns a scheduler whose clock reads Epoch.
func NewScheduler() *Scheduler {
	return &Scheduler{now: Epoch}
}

// Submit schedules fn at the current virtual time.
func (s *Scheduler) Submit(fn func()) (api.Cancelable, error) {
	return s.Schedule(0, fn)
}

// Schedule schedules fn at now+delay.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) (api.Cancelable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &fakeTask{at: s.now.Add(delay), seq: s.seq, fn: fn, done: make(chan struct{})}
	s.tasks = append(s.tasks, t)
	return &handle{s: s, t: t}, nil
}

// Cancel removes c from the queue.
func (s *Scheduler) Cancel(c api.Cancelable) error {
	if c == nil {
		return nil
	}
	return c.Cancel()
}

// Now returns the virtual time.
func (s *Scheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Elapsed returns the virtual time since Epoch.
func (s *Scheduler) Elapsed() time.Duration {
	return s.Now().Sub(Epoch)
}

// Pending returns the number of tasks waiting to run.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// RunTasks runs every task due at the current virtual time, including tasks
// those tasks submit.
func (s *Scheduler) RunTasks() {
	for {
		t := s.next(s.Now())
		if t == nil {
			return
		}
		s.run(t)
	}
}

// AdvanceUntil moves the clock to Epoch+elapsed, running due tasks in
// deadline order along the way.
func (s *Scheduler) AdvanceUntil(elapsed time.Duration) {
	target := Epoch.Add(elapsed)
	for {
		t := s.next(target)
		if t == nil {
			break
		}
		s.mu.Lock()
		if t.at.After(s.now) {
			s.now = t.at
		}
		s.mu.Unlock()
		s.run(t)
	}
	s.mu.Lock()
	if target.After(s.now) {
		s.now = target
	}
	s.mu.Unlock()
}

// next pops the earliest task due at or before limit.
func (s *Scheduler) next(limit time.Time) *fakeTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	best := -1
	for i, t := range s.tasks {
		if t.at.After(limit) {
			continue
		}
		if best < 0 || t.at.Before(s.tasks[best].at) ||
			(t.at.Equal(s.tasks[best].at) && t.seq < s.tasks[best].seq) {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	t := s.tasks[best]
	s.tasks = append(s.tasks[:best], s.tasks[best+1:]...)
	return t
}

func (s *Scheduler) run(t *fakeTask) {
	t.fn()
	s.mu.Lock()
	t.finished = true
	s.mu.Unlock()
	close(t.done)
}

// handle implements api.Cancelable for a fake task.
type handle struct {
	s *Scheduler
	t *fakeTask
}

func (h *handle) Cancel() error {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	for i, t := range h.s.tasks {
		if t == h.t {
			h.s.tasks = append(h.s.tasks[:i], h.s.tasks[i+1:]...)
			t.canceled = true
			close(t.done)
			return nil
		}
	}
	return nil
}

func (h *handle) Done() <-chan struct{} {
	return h.t.done
}

func (h *handle) Err() error {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.t.canceled {
		return api.ErrCanceled
	}
	return nil
}
