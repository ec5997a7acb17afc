package camera

import (
	"errors"

	"github.com/banshee-data/lasershot/internal/frame"
)

// Frame source errors. Setup errors are returned from registration and open;
// the capture loop absorbs the steady-state ones.
var (
	// ErrConnectionTimeout means a network source did not answer its probe in
	// time. Retryable.
	ErrConnectionTimeout = errors.New("connection timeout")
	// ErrDeviceUnavailable means the device is busy, already open, denied or
	// unknown. Not retryable without outside intervention.
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrMalformedEndpoint is a configuration error in a source address.
	ErrMalformedEndpoint = errors.New("malformed endpoint")
	// ErrNoFrameAvailable is a stall or end of stream.
	ErrNoFrameAvailable = frame.ErrNoFrameAvailable
	// ErrNoNewFrame means no new image has arrived since the last read.
	ErrNoNewFrame = frame.ErrNoNewFrame
	// ErrInvalidTransition is returned for calibration transitions the
	// current state does not allow.
	ErrInvalidTransition = errors.New("invalid calibration transition")
)

// IsRetryable reports whether the caller may retry the failed operation
// unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnectionTimeout) || errors.Is(err, ErrNoFrameAvailable)
}
