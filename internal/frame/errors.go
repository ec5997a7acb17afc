package frame

import "errors"

// Errors returned by frame producers from NextFrame.
var (
	// ErrNoNewFrame means the producer is healthy but has not delivered a new
	// image since the last call. Callers poll again.
	ErrNoNewFrame = errors.New("no new frame yet")
	// ErrNoFrameAvailable means the stream stalled or ended. It is end of
	// stream once the producer also reports it is no longer open.
	ErrNoFrameAvailable = errors.New("no frame available")
)

// IsPollable reports whether err only means "try again later".
func IsPollable(err error) bool {
	return errors.Is(err, ErrNoNewFrame) || errors.Is(err, ErrNoFrameAvailable)
}
