package camera

import (
	"sync"

	"gonum.org/v1/gonum/stat"
)

const fpsSmoothing = 0.5

type fpsSample struct {
	count     uint64
	timestamp int64
}

// FPSEstimator smooths the frame arrival rate. RecordFrame is cheap and runs
// on every frame; Refresh folds the sample window into the estimate and is
// meant to run only every RefreshDue frames.
type FPSEstimator struct {
	mu sync.Mutex

	window     int
	refreshCap int
	defaultFPS float64

	samples []fpsSample
	count   uint64
	fps     float64
	jitter  float64
	seeded  bool
}

// NewFPSEstimator creates an estimator holding up to window samples. The
// refresh divisor is capped at refreshCap and defaultFPS is reported until a
// first estimate exists.
func NewFPSEstimator(window, refreshCap int, defaultFPS float64) *FPSEstimator {
	if window < 2 {
		window = 2
	}
	if refreshCap < 1 {
		refreshCap = 1
	}
	return &FPSEstimator{
		window:     window,
		refreshCap: refreshCap,
		defaultFPS: defaultFPS,
		samples:    make([]fpsSample, 0, window),
	}
}

// RecordFrame notes a frame captured at timestamp (ms).
func (e *FPSEstimator) RecordFrame(timestamp int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count++
	if len(e.samples) == e.window {
		copy(e.samples, e.samples[1:])
		e.samples = e.samples[:e.window-1]
	}
	e.samples = append(e.samples, fpsSample{count: e.count, timestamp: timestamp})
}

// RefreshDue reports whether frameCount falls on a refresh boundary: every
// min(fps, cap) frames, and every frame while the rate is still unknown.
func (e *FPSEstimator) RefreshDue(frameCount uint64) bool {
	e.mu.Lock()
	div := int(e.currentLocked())
	e.mu.Unlock()
	if div > e.refreshCap {
		div = e.refreshCap
	}
	if div < 1 {
		div = 1
	}
	return frameCount%uint64(div) == 0
}

// Refresh folds the sample window into the smoothed estimate. With fewer than
// two samples it leaves the estimate unchanged.
func (e *FPSEstimator) Refresh() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.samples) < 2 {
		return
	}

	intervals := make([]float64, 0, len(e.samples)-1)
	for i := 1; i < len(e.samples); i++ {
		frames := float64(e.samples[i].count - e.samples[i-1].count)
		dt := float64(e.samples[i].timestamp - e.samples[i-1].timestamp)
		if frames <= 0 || dt <= 0 {
			continue
		}
		intervals = append(intervals, dt/frames)
	}
	if len(intervals) == 0 {
		return
	}

	mean := stat.Mean(intervals, nil)
	instant := 1000 / mean
	if !e.seeded {
		e.fps = instant
		e.seeded = true
	} else {
		e.fps += fpsSmoothing * (instant - e.fps)
	}
	if len(intervals) > 1 {
		e.jitter = stat.StdDev(intervals, nil)
	} else {
		e.jitter = 0
	}

	// keep the newest sample so the next window starts where this one ended
	last := e.samples[len(e.samples)-1]
	e.samples = append(e.samples[:0], last)
}

// CurrentFPS returns the smoothed frame rate, or the default before the
// first estimate.
func (e *FPSEstimator) CurrentFPS() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentLocked()
}

func (e *FPSEstimator) currentLocked() float64 {
	if !e.seeded {
		return e.defaultFPS
	}
	return e.fps
}

// Jitter returns the standard deviation of frame intervals (ms) seen by the
// last refresh.
func (e *FPSEstimator) Jitter() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.jitter
}

// FrameCount returns the number of recorded frames.
func (e *FPSEstimator) FrameCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// Reset forgets all samples and the estimate.
func (e *FPSEstimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.samples = e.samples[:0]
	e.count = 0
	e.fps = 0
	e.jitter = 0
	e.seeded = false
}
