package timeutil

import (
	"context"
	"time"
)

// Backoff is a doubling wait bounded by Max, used by frame poll loops.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	cur     time.Duration
}

// Next returns the wait to use now and doubles the following one.
func (b *Backoff) Next() time.Duration {
	if b.cur <= 0 {
		b.cur = b.Initial
	}
	d := b.cur
	b.cur *= 2
	if b.Max > 0 && b.cur > b.Max {
		b.cur = b.Max
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// Reset returns the backoff to its initial wait.
func (b *Backoff) Reset() { b.cur = 0 }

// Wait blocks for d on clock, returning false early if ctx is cancelled.
func Wait(ctx context.Context, clock Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C():
		return true
	}
}
