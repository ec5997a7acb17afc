// Package camera runs the real-time capture loop: it pulls frames from a
// FrameSource, estimates the frame rate, drives the calibration state machine
// and forwards suppression-filtered shot detections to the event sink.
package camera

import (
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/lasershot/internal/frame"
)

// FrameSource is a camera or recorded stream.
//
// NextFrame returns ErrNoNewFrame when the source is healthy but has nothing
// new, and ErrNoFrameAvailable when it stalled or ended; after end of stream
// IsOpen reports false. Open registers the source in OpenRegistry so the same
// device cannot be opened twice.
type FrameSource interface {
	Open() bool
	Close() bool
	IsOpen() bool
	NextFrame() (*frame.Frame, error)
	Name() string
	SetViewSize(frame.Dimension)
	ViewSize() frame.Dimension
}

// Registry tracks names of devices that are currently open or registered.
type Registry struct {
	mu    sync.Mutex
	names map[string]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// OpenRegistry is the process-wide registry of open frame sources.
var OpenRegistry = NewRegistry()

// Add records name, failing with ErrDeviceUnavailable if it is already held.
func (r *Registry) Add(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[name]; ok {
		return fmt.Errorf("%s: %w: already in use", name, ErrDeviceUnavailable)
	}
	r.names[name] = struct{}{}
	return nil
}

// Remove releases name, reporting whether it was held.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.names[name]
	delete(r.names, name)
	return ok
}

// Contains reports whether name is held.
func (r *Registry) Contains(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.names[name]
	return ok
}

// Names returns the held names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.names))
	for n := range r.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// FrameListener observes frames on the capture goroutine. Implementations
// must return quickly or they stall acquisition.
type FrameListener interface {
	NewFrame(f *frame.Frame)
	CameraClosed()
}

// ListenerFuncs adapts optional callbacks to FrameListener.
type ListenerFuncs struct {
	OnFrame  func(*frame.Frame)
	OnClosed func()
}

func (l ListenerFuncs) NewFrame(f *frame.Frame) {
	if l.OnFrame != nil {
		l.OnFrame(f)
	}
}

func (l ListenerFuncs) CameraClosed() {
	if l.OnClosed != nil {
		l.OnClosed()
	}
}
