// Package device provides the USB camera FrameSource. The OpenCV-backed
// implementation is only compiled with the gocv build tag; without it New
// reports the device as unavailable.
package device

import (
	"fmt"

	"github.com/banshee-data/lasershot/internal/camera"
	"github.com/banshee-data/lasershot/internal/timeutil"
)

// Options selects and configures a capture device.
type Options struct {
	// Index is the OpenCV device index.
	Index int
	// Name defaults to "usb:<index>".
	Name string
	// Width, Height and FPS are requested from the driver; zero keeps its
	// default.
	Width  int
	Height int
	FPS    float64
	Clock  timeutil.Clock
	// Open defaults to camera.OpenRegistry.
	Open *camera.Registry
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = fmt.Sprintf("usb:%d", o.Index)
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	if o.Open == nil {
		o.Open = camera.OpenRegistry
	}
	return o
}
