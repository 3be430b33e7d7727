package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("RealClock.Now() = %v, want between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	if d := clock.Since(past); d < time.Second {
		t.Errorf("RealClock.Since() = %v, want >= 1s", d)
	}
}

func TestRealClock_NewTimer(t *testing.T) {
	clock := RealClock{}
	timer := clock.NewTimer(10 * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C():
		// Expected
	case <-time.After(time.Second):
		t.Error("timer did not fire")
	}
}

func TestMockClock_NowSetSince(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	if got := clock.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}

	clock.Advance(90 * time.Second)
	if d := clock.Since(start); d != 90*time.Second {
		t.Errorf("Since() = %v, want 90s", d)
	}

	later := start.Add(time.Hour)
	clock.Set(later)
	if got := clock.Now(); !got.Equal(later) {
		t.Errorf("after Set, Now() = %v, want %v", got, later)
	}
}

func TestMockClock_Timer(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	timer := clock.NewTimer(5 * time.Second)

	if n := clock.ActiveTimers(); n != 1 {
		t.Errorf("ActiveTimers() = %d, want 1", n)
	}

	clock.Advance(4 * time.Second)
	select {
	case <-timer.C():
		t.Error("timer fired too early")
	default:
	}

	clock.Advance(time.Second)
	select {
	case <-timer.C():
		// Expected
	default:
		t.Error("timer did not fire at its deadline")
	}

	if n := clock.ActiveTimers(); n != 0 {
		t.Errorf("ActiveTimers() after fire = %d, want 0", n)
	}
}

func TestMockClock_Timer_Stop(t *testing.T) {
	clock := NewMockClock(time.Now())
	timer := clock.NewTimer(time.Minute)

	if !timer.Stop() {
		t.Error("Stop should return true for active timer")
	}
	if timer.Stop() {
		t.Error("second Stop should return false")
	}

	clock.Advance(2 * time.Minute)
	select {
	case <-timer.C():
		t.Error("stopped timer should not fire")
	default:
	}
}

func TestMockTimer_Reset(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	timer := clock.NewTimer(time.Second)

	clock.Advance(time.Second)
	<-timer.C()

	// Reset measures from the current mock time, not the original start.
	if timer.Reset(5 * time.Second) {
		t.Error("Reset of a fired timer should report inactive")
	}
	clock.Advance(4 * time.Second)
	select {
	case <-timer.C():
		t.Error("reset timer fired too early")
	default:
	}

	clock.Advance(time.Second)
	select {
	case <-timer.C():
	default:
		t.Error("reset timer did not fire")
	}

	timer.Reset(time.Second)
	if !timer.Stop() {
		t.Error("Stop after Reset should report an active timer")
	}
}
