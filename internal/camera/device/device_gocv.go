//go:build gocv

package device

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/banshee-data/lasershot/internal/camera"
	"github.com/banshee-data/lasershot/internal/frame"
	"github.com/banshee-data/lasershot/internal/monitoring"
	"github.com/banshee-data/lasershot/internal/timeutil"
)

// Source reads frames from a local capture device through OpenCV.
type Source struct {
	opts Options

	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
	view    frame.Dimension
}

var _ camera.FrameSource = (*Source)(nil)

// New checks that the device can be opened and returns a closed Source.
func New(opts Options) (*Source, error) {
	opts = opts.withDefaults()
	capture, err := gocv.OpenVideoCapture(opts.Index)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", opts.Name, camera.ErrDeviceUnavailable, err)
	}
	ok := capture.IsOpened()
	capture.Close()
	if !ok {
		return nil, fmt.Errorf("%s: %w: device did not open", opts.Name, camera.ErrDeviceUnavailable)
	}
	return &Source{opts: opts}, nil
}

func (s *Source) Name() string { return s.opts.Name }

func (s *Source) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capture != nil {
		return true
	}
	if err := s.opts.Open.Add(s.opts.Name); err != nil {
		monitoring.Logf("[camera] %s: %v", s.opts.Name, err)
		return false
	}
	capture, err := gocv.OpenVideoCapture(s.opts.Index)
	if err != nil || !capture.IsOpened() {
		if capture != nil {
			capture.Close()
		}
		s.opts.Open.Remove(s.opts.Name)
		monitoring.Logf("[camera] %s: open failed: %v", s.opts.Name, err)
		return false
	}
	if s.opts.Width > 0 && s.opts.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(s.opts.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(s.opts.Height))
	}
	if s.opts.FPS > 0 {
		capture.Set(gocv.VideoCaptureFPS, s.opts.FPS)
	}
	s.capture = capture
	s.mat = gocv.NewMat()
	return true
}

func (s *Source) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capture == nil {
		return false
	}
	s.capture.Close()
	s.mat.Close()
	s.capture = nil
	s.opts.Open.Remove(s.opts.Name)
	return true
}

func (s *Source) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture != nil
}

// NextFrame blocks for the next driver frame.
func (s *Source) NextFrame() (*frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capture == nil {
		return nil, camera.ErrNoFrameAvailable
	}
	if ok := s.capture.Read(&s.mat); !ok {
		return nil, camera.ErrNoFrameAvailable
	}
	if s.mat.Empty() {
		return nil, camera.ErrNoNewFrame
	}
	img, err := s.mat.ToImage()
	if err != nil {
		return nil, errors.Join(camera.ErrNoFrameAvailable, err)
	}
	return frame.Fit(img, s.view, timeutil.Millis(s.opts.Clock)), nil
}

func (s *Source) SetViewSize(d frame.Dimension) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = d
}

func (s *Source) ViewSize() frame.Dimension {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.view.IsZero() || s.capture == nil {
		return s.view
	}
	return frame.Dimension{
		Width:  int(s.capture.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(s.capture.Get(gocv.VideoCaptureFrameHeight)),
	}
}
