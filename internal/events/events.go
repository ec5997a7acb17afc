// Package events carries the timestamped, ordered notifications the capture
// core emits to session-log collaborators: shots, calibration state changes,
// target lifecycle changes and the terminal camera-closed notice.
package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/lasershot/internal/monitoring"
	"github.com/banshee-data/lasershot/internal/shotdetection"
)

// Kind identifies the event payload.
type Kind string

const (
	KindShot         Kind = "shot"
	KindState        Kind = "state"
	KindTarget       Kind = "target"
	KindCameraClosed Kind = "camera_closed"
)

// TargetAction is the lifecycle step reported for a target.
type TargetAction string

const (
	TargetAdded   TargetAction = "added"
	TargetRemoved TargetAction = "removed"
	TargetMoved   TargetAction = "moved"
	TargetResized TargetAction = "resized"
)

// TargetChange describes a target lifecycle event raised by a collaborator.
type TargetChange struct {
	Name   string       `json:"name"`
	Action TargetAction `json:"action"`
	X      float64      `json:"x,omitempty"`
	Y      float64      `json:"y,omitempty"`
	Width  float64      `json:"width,omitempty"`
	Height float64      `json:"height,omitempty"`
}

// Event is one notification. ID and Seq are assigned by the Bus.
type Event struct {
	ID        string              `json:"id"`
	Seq       uint64              `json:"seq"`
	Kind      Kind                `json:"kind"`
	Timestamp int64               `json:"timestamp_ms"`
	Camera    string              `json:"camera"`
	Shot      *shotdetection.Shot `json:"shot,omitempty"`
	FromState string              `json:"from_state,omitempty"`
	ToState   string              `json:"to_state,omitempty"`
	Target    *TargetChange       `json:"target,omitempty"`
	Message   string              `json:"message,omitempty"`
}

func (e Event) String() string {
	switch e.Kind {
	case KindShot:
		if e.Shot != nil {
			return fmt.Sprintf("#%d %s shot %s at (%.1f,%.1f) %s", e.Seq, e.Camera, e.Shot.Color, e.Shot.X, e.Shot.Y, e.Shot.Sector)
		}
	case KindState:
		return fmt.Sprintf("#%d %s state %s -> %s", e.Seq, e.Camera, e.FromState, e.ToState)
	case KindTarget:
		if e.Target != nil {
			return fmt.Sprintf("#%d %s target %s %s", e.Seq, e.Camera, e.Target.Name, e.Target.Action)
		}
	}
	return fmt.Sprintf("#%d %s %s", e.Seq, e.Camera, e.Kind)
}

// Sink consumes events. Emit is called synchronously on the emitting
// goroutine, in Seq order. Sinks that may block, like the database, are
// wrapped in an AsyncSink.
type Sink interface {
	Emit(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Emit(e Event) error { return f(e) }

// Bus stamps events with an ID and a monotonically increasing sequence number
// and fans them out to its sinks in order. A failing sink is logged and does
// not stop delivery to the others.
type Bus struct {
	mu    sync.Mutex
	seq   uint64
	sinks []Sink
}

// NewBus creates a Bus delivering to sinks.
func NewBus(sinks ...Sink) *Bus {
	return &Bus{sinks: sinks}
}

// Attach adds a sink for subsequent events.
func (b *Bus) Attach(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Emit stamps e and delivers it. The mutex is held during delivery so every
// sink observes the same order.
func (b *Bus) Emit(e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	e.Seq = b.seq
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	for _, s := range b.sinks {
		if err := s.Emit(e); err != nil {
			monitoring.Logf("[events] sink rejected %s: %v", e, err)
		}
	}
	return nil
}

// EmitTarget records a target lifecycle change reported by a collaborator.
func (b *Bus) EmitTarget(camera string, timestamp int64, change TargetChange) error {
	return b.Emit(Event{Kind: KindTarget, Camera: camera, Timestamp: timestamp, Target: &change})
}

// Seq returns the last assigned sequence number.
func (b *Bus) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}
