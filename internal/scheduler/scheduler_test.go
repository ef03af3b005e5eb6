package scheduler

import (
	"testing"
	"time"
)

var t0 = time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)

func TestScheduler_FirstPassDueImmediately(t *testing.T) {
	s := New(10*time.Minute, t0)
	if !s.Due(t0) {
		t.Fatal("first pass should be due at startup")
	}
}

func TestScheduler_IntervalDecision(t *testing.T) {
	s := New(10*time.Second, t0)

	s.Trigger()
	if !s.Begin(t0.Add(-11 * time.Second)) {
		t.Fatal("Begin failed")
	}
	s.Complete() // LastRun = t0-11s
	if !s.Due(t0) {
		t.Fatal("want due: last run 11s ago, interval 10s")
	}

	s.Trigger()
	if !s.Begin(t0.Add(-5 * time.Second)) {
		t.Fatal("Begin failed")
	}
	s.Complete() // LastRun = t0-5s
	if s.Due(t0) {
		t.Fatal("want not due: last run 5s ago, interval 10s")
	}
	if got := s.Remaining(t0); got != 5*time.Second {
		t.Fatalf("Remaining=%v want 5s", got)
	}
}

func TestScheduler_DisabledNeverAutoTriggers(t *testing.T) {
	s := New(0, t0)
	for _, later := range []time.Duration{0, time.Minute, 24 * time.Hour, 10000 * time.Hour} {
		if s.Due(t0.Add(later)) {
			t.Fatalf("interval 0 must never be due (after %v)", later)
		}
	}
	if s.Remaining(t0) != 0 {
		t.Fatal("Remaining must be 0 when disabled")
	}

	s.Trigger()
	if !s.Begin(t0) {
		t.Fatal("manual trigger must still work when disabled")
	}
	if s.State() != Checking {
		t.Fatalf("state=%v want checking", s.State())
	}
}

func TestScheduler_NoOverlappingPasses(t *testing.T) {
	s := New(time.Second, t0)
	if !s.Begin(t0) {
		t.Fatal("Begin failed")
	}
	s.Trigger()
	if s.Begin(t0.Add(time.Hour)) {
		t.Fatal("second Begin while checking must fail")
	}

	if started := s.Complete(); !started.Equal(t0) {
		t.Fatalf("LastRun should be pass start, got %v", started)
	}
	if s.State() != Idle {
		t.Fatal("want idle after Complete")
	}
	// trigger received mid-pass is honoured right after
	if !s.Begin(t0.Add(100 * time.Millisecond)) {
		t.Fatal("pending trigger lost")
	}
	s.Complete()
	if s.Due(t0.Add(200 * time.Millisecond)) {
		t.Fatal("trigger must be consumed by the pass it started")
	}
}

func TestScheduler_LastRunIsPassStart(t *testing.T) {
	s := New(time.Minute, t0)
	start := t0.Add(time.Second)
	s.Begin(start)
	s.Complete()
	if p := s.Policy(); !p.LastRun.Equal(start) {
		t.Fatalf("LastRun=%v want %v", p.LastRun, start)
	}
	// Complete without a running pass is a no-op
	s.Complete()
	if p := s.Policy(); !p.LastRun.Equal(start) {
		t.Fatalf("LastRun moved on idle Complete: %v", p.LastRun)
	}
}

func TestScheduler_SetInterval(t *testing.T) {
	s := New(time.Minute, t0)
	s.Begin(t0)
	s.Complete()

	s.SetInterval(0)
	if s.Due(t0.Add(time.Hour)) {
		t.Fatal("disabled after SetInterval(0)")
	}
	s.SetInterval(30 * time.Second)
	if !s.Due(t0.Add(30 * time.Second)) {
		t.Fatal("want due once the new interval elapsed")
	}
	s.SetInterval(-time.Second)
	if p := s.Policy(); p.Interval != 0 {
		t.Fatalf("negative interval should clamp to 0, got %v", p.Interval)
	}
}
