package scheduler

import (
	"sync"
	"time"

	"github.com/hamed0406/servermon/internal/domain"
)

type State int

const (
	Idle State = iota
	Checking
)

func (s State) String() string {
	if s == Checking {
		return "checking"
	}
	return "idle"
}

// Scheduler decides when a check pass starts. It moves Idle -> Checking
// when the refresh interval has elapsed or a trigger is pending, and back to
// Idle when the pass completes. A trigger arriving mid-pass is kept and
// starts the next pass as soon as the current one ends.
type Scheduler struct {
	mu      sync.Mutex
	policy  domain.RefreshPolicy
	state   State
	pending bool
	started time.Time
}

// New returns an idle scheduler whose first automatic pass is already due.
func New(interval time.Duration, now time.Time) *Scheduler {
	if interval < 0 {
		interval = 0
	}
	return &Scheduler{
		policy: domain.RefreshPolicy{
			Interval: interval,
			LastRun:  now.Add(-interval - time.Second),
		},
	}
}

// Trigger requests a pass regardless of the interval. Used for "check now"
// and after a successful import.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	s.pending = true
	s.mu.Unlock()
}

// Due reports whether Begin would start a pass at now.
func (s *Scheduler) Due(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dueLocked(now)
}

func (s *Scheduler) dueLocked(now time.Time) bool {
	if s.state != Idle {
		return false
	}
	return s.pending || s.policy.Due(now)
}

// Begin moves to Checking if a pass is due. It returns false when a pass is
// already running or nothing is due.
func (s *Scheduler) Begin(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dueLocked(now) {
		return false
	}
	s.state = Checking
	s.pending = false
	s.started = now
	return true
}

// Complete ends the running pass. LastRun becomes the pass start time.
func (s *Scheduler) Complete() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Checking {
		return s.policy.LastRun
	}
	s.state = Idle
	s.policy.LastRun = s.started
	return s.started
}

// SetInterval changes the refresh interval. Zero disables automatic passes.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	s.policy.Interval = d
	s.mu.Unlock()
}

func (s *Scheduler) Policy() domain.RefreshPolicy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Remaining(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy.Remaining(now)
}
