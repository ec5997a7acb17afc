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
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_NewTimer(t *testing.T) {
	clock := RealClock{}
	timer := clock.NewTimer(10 * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Error("timer did not fire")
	}
}

func TestMillis(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_123)
	clock := NewMockClock(start)
	if got := Millis(clock); got != 1_700_000_000_123 {
		t.Errorf("Millis() = %d, want 1700000000123", got)
	}
}

// steppedClock reports a wall time that has been set back while elapsed
// time keeps following the underlying clock, as time.Now does with its
// monotonic reading after an NTP step.
type steppedClock struct {
	*MockClock
	back time.Duration
}

func (c *steppedClock) Now() time.Time { return c.MockClock.Now().Add(-c.back) }

func TestMillis_IgnoresWallClockSteps(t *testing.T) {
	clock := &steppedClock{MockClock: NewMockClock(time.UnixMilli(1_700_000_000_000))}
	before := Millis(clock)

	clock.back = time.Second
	clock.Advance(10 * time.Millisecond)
	if got := Millis(clock); got != before+10 {
		t.Errorf("Millis() after wall step = %d, want %d", got, before+10)
	}
}

func TestMillis_RealClockTracksUnixTime(t *testing.T) {
	before := time.Now().UnixMilli()
	got := Millis(RealClock{})
	after := time.Now().UnixMilli()
	if got < before-1 || got > after+1 {
		t.Errorf("Millis() = %d, want within [%d, %d]", got, before, after)
	}
}

func TestMillis_SubMillisecondFloors(t *testing.T) {
	clock := NewMockClock(time.Unix(100, int64(999*time.Microsecond)))
	if got := Millis(clock); got != 100_000 {
		t.Errorf("Millis() = %d, want 100000", got)
	}
}

func TestMockClock_AdvanceFiresExpiredTimers(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	short := clock.NewTimer(100 * time.Millisecond)
	long := clock.NewTimer(time.Second)

	if got := clock.PendingTimers(); got != 2 {
		t.Fatalf("PendingTimers() = %d, want 2", got)
	}

	clock.Advance(100 * time.Millisecond)

	select {
	case <-short.C():
	default:
		t.Error("short timer should have fired")
	}
	select {
	case <-long.C():
		t.Error("long timer fired early")
	default:
	}
	if got := clock.PendingTimers(); got != 1 {
		t.Errorf("PendingTimers() = %d, want 1", got)
	}

	clock.Advance(900 * time.Millisecond)
	select {
	case <-long.C():
	default:
		t.Error("long timer should have fired")
	}
}

func TestMockClock_StoppedTimerNeverFires(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	timer := clock.NewTimer(time.Second)
	if !timer.Stop() {
		t.Error("Stop() on an active timer should return true")
	}
	if timer.Stop() {
		t.Error("second Stop() should return false")
	}
	clock.Advance(2 * time.Second)
	select {
	case <-timer.C():
		t.Error("stopped timer fired")
	default:
	}
	if got := clock.PendingTimers(); got != 0 {
		t.Errorf("PendingTimers() = %d, want 0", got)
	}
}

func TestMockClock_ZeroDurationFiresImmediately(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	select {
	case <-clock.After(0):
	default:
		t.Error("After(0) should be ready immediately")
	}
}

func TestMockClock_SleepAdvances(t *testing.T) {
	start := time.Unix(100, 0)
	clock := NewMockClock(start)
	clock.Sleep(30 * time.Millisecond)
	clock.Sleep(20 * time.Millisecond)

	if got := clock.Since(start); got != 50*time.Millisecond {
		t.Errorf("Since(start) = %v, want 50ms", got)
	}
	sleeps := clock.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 30*time.Millisecond || sleeps[1] != 20*time.Millisecond {
		t.Errorf("Sleeps() = %v, want [30ms 20ms]", sleeps)
	}
}

func TestMockClock_Set(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	target := time.Unix(500, 0)
	clock.Set(target)
	if !clock.Now().Equal(target) {
		t.Errorf("Now() = %v, want %v", clock.Now(), target)
	}
}
