package camera

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFPSEstimator_SteadyRate(t *testing.T) {
	e := NewFPSEstimator(10, 5, 0)
	for i := int64(1); i <= 10; i++ {
		e.RecordFrame(i * 30)
	}
	e.Refresh()
	assert.InDelta(t, 33.33, e.CurrentFPS(), 0.5)
	assert.InDelta(t, 0, e.Jitter(), 1e-9)
	assert.Equal(t, uint64(10), e.FrameCount())
}

func TestFPSEstimator_DefaultUntilTwoSamples(t *testing.T) {
	e := NewFPSEstimator(10, 5, 25)
	assert.Equal(t, 25.0, e.CurrentFPS())

	e.RecordFrame(100)
	e.Refresh()
	assert.Equal(t, 25.0, e.CurrentFPS())

	e.RecordFrame(140)
	e.Refresh()
	assert.InDelta(t, 25.0, e.CurrentFPS(), 1e-9)
}

func TestFPSEstimator_SmoothsChanges(t *testing.T) {
	e := NewFPSEstimator(4, 5, 0)
	for i := int64(1); i <= 4; i++ {
		e.RecordFrame(i * 10) // 100 fps
	}
	e.Refresh()
	assert.InDelta(t, 100, e.CurrentFPS(), 1e-9)

	// newest sample was kept, so the next window continues from ts=40
	for i := int64(1); i <= 3; i++ {
		e.RecordFrame(40 + i*20) // 50 fps
	}
	e.Refresh()
	assert.InDelta(t, 75, e.CurrentFPS(), 1e-9)
}

func TestFPSEstimator_RefreshDue(t *testing.T) {
	e := NewFPSEstimator(10, 5, 0)
	// unknown rate refreshes every frame
	assert.True(t, e.RefreshDue(1))
	assert.True(t, e.RefreshDue(7))

	for i := int64(1); i <= 10; i++ {
		e.RecordFrame(i * 30)
	}
	e.Refresh()
	// 33 fps capped at 5
	assert.True(t, e.RefreshDue(10))
	assert.False(t, e.RefreshDue(11))

	slow := NewFPSEstimator(10, 5, 0)
	for i := int64(1); i <= 5; i++ {
		slow.RecordFrame(i * 500)
	}
	slow.Refresh()
	// 2 fps
	assert.True(t, slow.RefreshDue(4))
	assert.False(t, slow.RefreshDue(5))
}

func TestFPSEstimator_Reset(t *testing.T) {
	e := NewFPSEstimator(10, 5, 12)
	e.RecordFrame(10)
	e.RecordFrame(20)
	e.Refresh()
	e.Reset()
	assert.Equal(t, 12.0, e.CurrentFPS())
	assert.Zero(t, e.FrameCount())
}
