package arenamask

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"time"

	"github.com/banshee-data/lasershot/internal/frame"
	"github.com/banshee-data/lasershot/internal/monitoring"
	"github.com/banshee-data/lasershot/internal/timeutil"
)

// Ingestor converts arena images into masks and hands them to a Manager. It
// resets its builder whenever the manager starts a new session.
type Ingestor struct {
	manager *Manager
	builder *Builder
	epoch   uint64
}

// NewIngestor pairs a builder with the manager that receives its masks.
func NewIngestor(manager *Manager, builder *Builder) *Ingestor {
	return &Ingestor{manager: manager, builder: builder, epoch: manager.Epoch()}
}

// Ingest builds a mask from img and passes ownership to the manager.
func (in *Ingestor) Ingest(img image.Image, timestamp int64) error {
	if e := in.manager.Epoch(); e != in.epoch {
		in.builder.Reset()
		in.epoch = e
	}
	return in.manager.HandleMask(in.builder.Build(img, timestamp))
}

// Producer is the part of a frame source the arena feed needs.
type Producer interface {
	NextFrame() (*frame.Frame, error)
	IsOpen() bool
}

// FeedReader drives an Ingestor from an arena frame producer on its own
// goroutine.
type FeedReader struct {
	src     Producer
	ingest  *Ingestor
	clock   timeutil.Clock
	backoff timeutil.Backoff

	frames   atomic.Uint64
	rejected atomic.Uint64
}

// FeedConfig configures a FeedReader. Clock defaults to the real clock.
type FeedConfig struct {
	Source       Producer
	Ingestor     *Ingestor
	Clock        timeutil.Clock
	PollInterval time.Duration
	MaxBackoff   time.Duration
}

// NewFeedReader creates a FeedReader from cfg.
func NewFeedReader(cfg FeedConfig) *FeedReader {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 2 * time.Millisecond
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff < poll {
		maxBackoff = 10 * poll
	}
	return &FeedReader{
		src:     cfg.Source,
		ingest:  cfg.Ingestor,
		clock:   clock,
		backoff: timeutil.Backoff{Initial: poll, Max: maxBackoff},
	}
}

// Run reads arena frames until ctx is cancelled or the source closes.
// Stale or out-of-order frames are absorbed.
func (r *FeedReader) Run(ctx context.Context) error {
	for ctx.Err() == nil && r.src.IsOpen() {
		f, err := r.src.NextFrame()
		if err != nil {
			if !frame.IsPollable(err) {
				monitoring.Logf("[arena] feed read error: %v", err)
			}
			timeutil.Wait(ctx, r.clock, r.backoff.Next())
			continue
		}
		r.backoff.Reset()
		r.frames.Add(1)

		ts := f.Timestamp
		if ts == 0 {
			ts = timeutil.Millis(r.clock)
		}
		if err := r.ingest.Ingest(f.Image, ts); err != nil {
			r.rejected.Add(1)
			if !errors.Is(err, ErrOutOfOrderMask) {
				monitoring.Logf("[arena] mask rejected: %v", err)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	monitoring.Logf("[arena] feed closed after %d frames", r.frames.Load())
	return nil
}

// Frames returns how many arena frames have been read.
func (r *FeedReader) Frames() uint64 { return r.frames.Load() }

// Rejected returns how many masks the manager refused.
func (r *FeedReader) Rejected() uint64 { return r.rejected.Load() }
