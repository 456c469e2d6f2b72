// Package scheduler runs deferred jobs that can be cancelled by handle.
package scheduler

import (
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// Scheduler runs functions at a wall-clock time.
// Handles are opaque strings so they can be persisted; a handle unknown to
// this process (fired, cancelled, or issued before a restart) is stale.
type Scheduler struct {
	mu     sync.Mutex
	jobs   map[string]*time.Timer
	now    func() time.Time
	closed bool
}

// New creates a scheduler.
func New() *Scheduler {
	return &Scheduler{
		jobs: make(map[string]*time.Timer),
		now:  time.Now,
	}
}

// At schedules fn to run at t and returns the job handle.
// A time in the past runs fn as soon as possible.
func (s *Scheduler) At(t time.Time, fn func()) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle := uuid.New().String()
	if s.closed {
		return handle
	}

	delay := t.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.jobs[handle] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, pending := s.jobs[handle]
		delete(s.jobs, handle)
		s.mu.Unlock()
		if !pending {
			return
		}
		zlog.Debug().Msgf("scheduler: running job %s", handle)
		fn()
	})
	zlog.Debug().Msgf("scheduler: job %s scheduled in %v", handle, delay)
	return handle
}

// Cancel cancels the job. It reports whether a pending job was removed;
// a stale handle is a no-op.
func (s *Scheduler) Cancel(handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, ok := s.jobs[handle]
	if !ok {
		return false
	}
	timer.Stop()
	delete(s.jobs, handle)
	return true
}

// Pending returns the number of jobs not yet run.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Stop cancels every pending job. Later calls to At schedule nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for handle, timer := range s.jobs {
		timer.Stop()
		delete(s.jobs, handle)
	}
	s.closed = true
}
