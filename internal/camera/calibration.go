package camera

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/lasershot/internal/timeutil"
)

// CalibrationState is the camera lifecycle state.
type CalibrationState int

const (
	Uncalibrated CalibrationState = iota
	Calibrating
	Calibrated
	ArenaCalibrating
	ArenaCalibrated
)

func (s CalibrationState) String() string {
	switch s {
	case Uncalibrated:
		return "UNCALIBRATED"
	case Calibrating:
		return "CALIBRATING"
	case Calibrated:
		return "CALIBRATED"
	case ArenaCalibrating:
		return "ARENA_CALIBRATING"
	case ArenaCalibrated:
		return "ARENA_CALIBRATED"
	default:
		return fmt.Sprintf("CalibrationState(%d)", int(s))
	}
}

// MarshalJSON encodes the state by name.
func (s CalibrationState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// IsCalibrating reports whether detections must be withheld from the sink.
func (s CalibrationState) IsCalibrating() bool {
	return s == Calibrating || s == ArenaCalibrating
}

// TransitionFunc observes a completed state change.
type TransitionFunc func(from, to CalibrationState)

// StateMachine guards the calibration state. Transitions are serialised;
// listeners run after the lock is released, in registration order.
type StateMachine struct {
	mu        sync.Mutex
	state     CalibrationState
	enteredAt time.Time
	clock     timeutil.Clock
	listeners []TransitionFunc
}

// NewStateMachine starts in Uncalibrated.
func NewStateMachine(clock timeutil.Clock) *StateMachine {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &StateMachine{clock: clock, enteredAt: clock.Now()}
}

// OnTransition registers fn for every later transition.
func (sm *StateMachine) OnTransition(fn TransitionFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners = append(sm.listeners, fn)
}

// State returns the current state.
func (sm *StateMachine) State() CalibrationState {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

// EnteredAt returns when the current state was entered.
func (sm *StateMachine) EnteredAt() time.Time {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.enteredAt
}

// Forwarding reports whether detections may reach the event sink.
func (sm *StateMachine) Forwarding() bool {
	return !sm.State().IsCalibrating()
}

// StartCalibration moves Uncalibrated to Calibrating.
func (sm *StateMachine) StartCalibration() error {
	return sm.transition(Calibrating, Uncalibrated)
}

// CompleteCalibration moves Calibrating to Calibrated.
func (sm *StateMachine) CompleteCalibration() error {
	return sm.transition(Calibrated, Calibrating)
}

// StartArenaCalibration moves Calibrated to ArenaCalibrating.
func (sm *StateMachine) StartArenaCalibration() error {
	return sm.transition(ArenaCalibrating, Calibrated)
}

// CompleteArenaCalibration moves ArenaCalibrating to ArenaCalibrated.
func (sm *StateMachine) CompleteArenaCalibration() error {
	return sm.transition(ArenaCalibrated, ArenaCalibrating)
}

// Reset returns to Uncalibrated from any state. It is a no-op when already
// there.
func (sm *StateMachine) Reset() {
	_ = sm.transition(Uncalibrated, Uncalibrated, Calibrating, Calibrated, ArenaCalibrating, ArenaCalibrated)
}

// TimedOut reports whether the current calibrating state has lasted longer
// than limit.
func (sm *StateMachine) TimedOut(limit time.Duration) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state == Calibrating && limit > 0 && sm.clock.Since(sm.enteredAt) >= limit
}

func (sm *StateMachine) transition(to CalibrationState, from ...CalibrationState) error {
	sm.mu.Lock()
	prev := sm.state
	allowed := false
	for _, f := range from {
		if prev == f {
			allowed = true
			break
		}
	}
	if !allowed {
		sm.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, to)
	}
	if prev == to {
		sm.mu.Unlock()
		return nil
	}
	sm.state = to
	sm.enteredAt = sm.clock.Now()
	listeners := append([]TransitionFunc(nil), sm.listeners...)
	sm.mu.Unlock()

	for _, fn := range listeners {
		fn(prev, to)
	}
	return nil
}
