package reconcile

import (
	"sync"
	"time"
)

// Debounce defaults. Quiet is the per-trigger settle delay; MaxWait bounds
// how long a steady stream of triggers can keep deferring the pass.
const (
	DefaultQuiet   = 300 * time.Millisecond
	DefaultMaxWait = 2 * time.Second
)

// Scheduler is the single-slot debouncer for reconciliation passes.
//
// Trigger arms a quiet-period timer, or extends it when one is already
// armed; the extension never pushes the fire past the max-wait deadline
// set by the first trigger of the burst. When the timer fires, the slot
// empties and C delivers one signal.
//
// Like the controller it feeds, the fire channel is drained by a single
// loop goroutine. The channel is buffered with capacity 1, so back-to-back
// fires coalesce instead of queueing; a redundant fire costs one pass over
// unchanged data, which patches nothing.
//
// Thread-safety: Trigger, Stop, and Pending may be called from any
// goroutine.
type Scheduler struct {
	mu       sync.Mutex
	quiet    time.Duration
	maxWait  time.Duration
	timer    *time.Timer
	deadline time.Time
	stopped  bool
	fire     chan struct{}
}

// NewScheduler creates a scheduler with the given quiet period and max-wait
// ceiling. Non-positive arguments fall back to the defaults.
func NewScheduler(quiet, maxWait time.Duration) *Scheduler {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Scheduler{
		quiet:   quiet,
		maxWait: maxWait,
		fire:    make(chan struct{}, 1),
	}
}

// Trigger requests a pass. The first trigger of a burst arms the quiet
// timer and fixes the max-wait deadline; each further trigger extends the
// timer up to that deadline.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	now := time.Now()
	if s.timer == nil {
		s.deadline = now.Add(s.maxWait)
		s.timer = time.AfterFunc(s.quiet, s.fireNow)
		return
	}

	d := s.quiet
	if remaining := s.deadline.Sub(now); remaining < d {
		d = remaining
		if d < 0 {
			d = 0
		}
	}
	s.timer.Reset(d)
}

func (s *Scheduler) fireNow() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.deadline = time.Time{}
	s.mu.Unlock()

	select {
	case s.fire <- struct{}{}:
	default:
	}
}

// C returns the fire channel. One receive corresponds to at least one
// Trigger since the last receive.
func (s *Scheduler) C() <-chan struct{} {
	return s.fire
}

// Pending reports whether a pass is armed but not yet fired.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Stop cancels any armed pass and ignores all further triggers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
