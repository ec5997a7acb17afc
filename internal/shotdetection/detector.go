// Package shotdetection defines the pluggable shot detector capability, a
// reference brightness-flash detector and the suppression-aware dispatch that
// sits between the capture loop and the detector.
package shotdetection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/lasershot/internal/arenamask"
	"github.com/banshee-data/lasershot/internal/frame"
)

// ErrNoDetector is returned by Select when no candidate supports this system.
var ErrNoDetector = errors.New("no supported shot detector")

// Color is the laser colour class assigned to a shot.
type Color int

const (
	ColorUnknown Color = iota
	ColorRed
	ColorGreen
	ColorInfrared
)

func (c Color) String() string {
	switch c {
	case ColorRed:
		return "red"
	case ColorGreen:
		return "green"
	case ColorInfrared:
		return "infrared"
	default:
		return "unknown"
	}
}

// MarshalText encodes the colour by name.
func (c Color) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText decodes a colour name produced by MarshalText.
func (c *Color) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "red":
		*c = ColorRed
	case "green":
		*c = ColorGreen
	case "infrared":
		*c = ColorInfrared
	case "unknown", "":
		*c = ColorUnknown
	default:
		return fmt.Errorf("unknown shot color %q", string(b))
	}
	return nil
}

// Shot is a candidate shot. It is created by a Detector and forwarded at most
// once to the event sink.
type Shot struct {
	X         float64          `json:"x"`
	Y         float64          `json:"y"`
	Color     Color            `json:"color"`
	Intensity float64          `json:"intensity"`
	Timestamp int64            `json:"timestamp_ms"`
	FrameSeq  uint64           `json:"frame_seq"`
	Sector    arenamask.Sector `json:"sector"`
	Pixels    int              `json:"pixels"`
}

// Detector finds shots in a frame. Implementations may consult the
// suppression snapshot to skip work, but the dispatcher enforces suppression
// regardless.
type Detector interface {
	Name() string
	Process(f *frame.Frame, suppression arenamask.Suppression) []Shot
	IsSystemSupported() bool
}

// BaselineLearner is implemented by detectors that learn a camera noise floor
// while the camera is calibrating.
type BaselineLearner interface {
	LearnBaseline(f *frame.Frame)
	BaselineReady() bool
	ResetBaseline()
}

// Select returns the first detector that reports it is supported.
func Select(candidates ...Detector) (Detector, error) {
	names := make([]string, 0, len(candidates))
	for _, d := range candidates {
		if d == nil {
			continue
		}
		if d.IsSystemSupported() {
			return d, nil
		}
		names = append(names, d.Name())
	}
	return nil, fmt.Errorf("%w (tried %s)", ErrNoDetector, strings.Join(names, ", "))
}
