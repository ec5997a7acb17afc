package timeutil

import (
	"context"
	"testing"
	"time"
)

func TestBackoff_DoublesUpToMax(t *testing.T) {
	b := Backoff{Initial: 2 * time.Millisecond, Max: 20 * time.Millisecond}
	want := []time.Duration{2, 4, 8, 16, 20, 20}
	for i, w := range want {
		if got := b.Next(); got != w*time.Millisecond {
			t.Errorf("step %d: Next() = %v, want %v", i, got, w*time.Millisecond)
		}
	}
	b.Reset()
	if got := b.Next(); got != 2*time.Millisecond {
		t.Errorf("after Reset Next() = %v, want 2ms", got)
	}
}

func TestBackoff_InitialAboveMax(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 10 * time.Millisecond}
	if got := b.Next(); got != 10*time.Millisecond {
		t.Errorf("Next() = %v, want 10ms", got)
	}
}

func TestWait(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	done := make(chan bool, 1)
	go func() { done <- Wait(context.Background(), clock, 5*time.Millisecond) }()

	for clock.PendingTimers() == 0 {
		time.Sleep(time.Millisecond)
	}
	clock.Advance(5 * time.Millisecond)
	if !<-done {
		t.Error("Wait returned false after the timer fired")
	}
}

func TestWait_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if Wait(ctx, RealClock{}, time.Hour) {
		t.Error("Wait on a cancelled context should return false")
	}
	if Wait(ctx, RealClock{}, 0) {
		t.Error("zero wait on a cancelled context should return false")
	}
}
