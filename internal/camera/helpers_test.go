package camera

import (
	"image"
	"sync"

	"github.com/banshee-data/lasershot/internal/frame"
	"github.com/banshee-data/lasershot/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

func intp(v int) *int { return &v }

func strp(v string) *string { return &v }

// scriptedSource replays pre-rendered frames. before runs ahead of each
// returned frame so tests can push arena data up to its timestamp.
type scriptedSource struct {
	mu     sync.Mutex
	name   string
	frames []*frame.Frame
	errs   map[int]error
	idx    int
	open   bool
	closed int
	view   frame.Dimension
	before func(ts int64)
}

func newScriptedSource(name string, frames []*frame.Frame) *scriptedSource {
	return &scriptedSource{name: name, frames: frames, errs: map[int]error{}}
}

func (s *scriptedSource) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	return true
}

func (s *scriptedSource) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasOpen := s.open
	s.open = false
	s.closed++
	return wasOpen
}

func (s *scriptedSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *scriptedSource) NextFrame() (*frame.Frame, error) {
	s.mu.Lock()
	if err, ok := s.errs[s.idx]; ok {
		delete(s.errs, s.idx)
		s.mu.Unlock()
		return nil, err
	}
	if s.idx >= len(s.frames) {
		s.open = false
		s.mu.Unlock()
		return nil, ErrNoFrameAvailable
	}
	f := s.frames[s.idx]
	s.idx++
	before := s.before
	s.mu.Unlock()

	if before != nil {
		before(f.Timestamp)
	}
	return f, nil
}

func (s *scriptedSource) Name() string { return s.name }

func (s *scriptedSource) SetViewSize(d frame.Dimension) { s.view = d }

func (s *scriptedSource) ViewSize() frame.Dimension {
	if s.view.IsZero() && len(s.frames) > 0 {
		return s.frames[0].Size()
	}
	return s.view
}

// render builds n frames 30ms apart, drawing each with paint.
func render(n int, w, h int, paint func(i int, img *image.RGBA)) []*frame.Frame {
	out := make([]*frame.Frame, n)
	for i := range out {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		paint(i, img)
		out[i] = frame.New(img, int64(30*(i+1)))
	}
	return out
}
