// Package replay provides a FrameSource that plays back recorded images, for
// tests and offline tuning.
package replay

import (
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for FromDir
	_ "image/png"
	"io/fs"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/lasershot/internal/camera"
	"github.com/banshee-data/lasershot/internal/frame"
	"github.com/banshee-data/lasershot/internal/monitoring"
	"github.com/banshee-data/lasershot/internal/timeutil"
)

// Options controls playback.
type Options struct {
	Name string
	// Start is the timestamp (ms) of the first frame. Zero uses the clock at
	// Open.
	Start int64
	// Interval separates frame timestamps. Defaults to 33ms.
	Interval time.Duration
	// Realtime paces NextFrame on Clock so frames are delivered no faster
	// than Interval.
	Realtime bool
	Clock    timeutil.Clock
	// Open defaults to camera.OpenRegistry.
	Open *camera.Registry
}

// Source replays a fixed list of images. After the last image it closes
// itself and reports ErrNoFrameAvailable.
type Source struct {
	name     string
	images   []image.Image
	interval time.Duration
	realtime bool
	clock    timeutil.Clock
	registry *camera.Registry
	start    int64

	mu       sync.Mutex
	open     bool
	idx      int
	base     int64
	openedAt time.Time
	view     frame.Dimension
}

var _ camera.FrameSource = (*Source)(nil)

// FromImages replays images in order.
func FromImages(images []image.Image, opts Options) *Source {
	if opts.Name == "" {
		opts.Name = "replay"
	}
	if opts.Interval <= 0 {
		opts.Interval = 33 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Open == nil {
		opts.Open = camera.OpenRegistry
	}
	return &Source{
		name:     opts.Name,
		images:   images,
		interval: opts.Interval,
		realtime: opts.Realtime,
		clock:    opts.Clock,
		registry: opts.Open,
		start:    opts.Start,
	}
}

// FromDir decodes every .png, .jpg and .jpeg file in dir, in file name
// order.
func FromDir(fsys fs.FS, dir string, opts Options) (*Source, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read replay dir: %w", err)
	}
	var images []image.Image
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(path.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
		default:
			continue
		}
		img, err := decode(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no images in %s", camera.ErrDeviceUnavailable, dir)
	}
	if opts.Name == "" {
		opts.Name = "replay:" + dir
	}
	return FromImages(images, opts), nil
}

func decode(fsys fs.FS, name string) (image.Image, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return img, nil
}

func (s *Source) Name() string { return s.name }

// Len returns the number of frames.
func (s *Source) Len() int { return len(s.images) }

// Open rewinds to the first frame.
func (s *Source) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return true
	}
	if len(s.images) == 0 {
		return false
	}
	if err := s.registry.Add(s.name); err != nil {
		monitoring.Logf("[camera] %s: %v", s.name, err)
		return false
	}
	s.open = true
	s.idx = 0
	s.openedAt = s.clock.Now()
	s.base = s.start
	if s.base == 0 {
		s.base = timeutil.Millis(s.clock)
	}
	return true
}

func (s *Source) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Source) closeLocked() bool {
	if !s.open {
		return false
	}
	s.open = false
	s.registry.Remove(s.name)
	return true
}

func (s *Source) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Source) SetViewSize(d frame.Dimension) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = d
}

func (s *Source) ViewSize() frame.Dimension {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.view.IsZero() || len(s.images) == 0 {
		return s.view
	}
	b := s.images[0].Bounds()
	return frame.Dimension{Width: b.Dx(), Height: b.Dy()}
}

// NextFrame returns the next image stamped base + i*interval. With realtime
// pacing it sleeps until the frame is due.
func (s *Source) NextFrame() (*frame.Frame, error) {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil, camera.ErrNoFrameAvailable
	}
	if s.idx >= len(s.images) {
		s.closeLocked()
		s.mu.Unlock()
		monitoring.Logf("[camera] %s: replay finished", s.name)
		return nil, camera.ErrNoFrameAvailable
	}
	i := s.idx
	s.idx++
	img := s.images[i]
	due := s.openedAt.Add(time.Duration(i) * s.interval)
	ts := s.base + (time.Duration(i) * s.interval).Milliseconds()
	view := s.view
	s.mu.Unlock()

	if s.realtime {
		if wait := due.Sub(s.clock.Now()); wait > 0 {
			s.clock.Sleep(wait)
		}
	}

	return frame.Fit(img, view, ts), nil
}
