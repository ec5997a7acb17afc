//go:build !gocv

package device

import (
	"fmt"

	"github.com/banshee-data/lasershot/internal/camera"
	"github.com/banshee-data/lasershot/internal/frame"
)

// Source is unavailable in builds without the gocv tag.
type Source struct{ opts Options }

var _ camera.FrameSource = (*Source)(nil)

// New always fails: USB capture needs OpenCV.
func New(opts Options) (*Source, error) {
	opts = opts.withDefaults()
	return nil, fmt.Errorf("%s: %w: built without OpenCV support, rebuild with -tags=gocv", opts.Name, camera.ErrDeviceUnavailable)
}

func (s *Source) Name() string                     { return s.opts.Name }
func (s *Source) Open() bool                       { return false }
func (s *Source) Close() bool                      { return false }
func (s *Source) IsOpen() bool                     { return false }
func (s *Source) NextFrame() (*frame.Frame, error) { return nil, camera.ErrNoFrameAvailable }
func (s *Source) SetViewSize(frame.Dimension)      {}
func (s *Source) ViewSize() frame.Dimension        { return frame.Dimension{} }
