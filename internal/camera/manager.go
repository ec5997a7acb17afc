package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/lasershot/internal/arenamask"
	"github.com/banshee-data/lasershot/internal/config"
	"github.com/banshee-data/lasershot/internal/events"
	"github.com/banshee-data/lasershot/internal/frame"
	"github.com/banshee-data/lasershot/internal/monitoring"
	"github.com/banshee-data/lasershot/internal/shotdetection"
	"github.com/banshee-data/lasershot/internal/timeutil"
)

// Config wires a Manager. Source and Detector are required.
type Config struct {
	Source   FrameSource
	Detector shotdetection.Detector
	// Sink receives shots, state changes and the camera-closed notice.
	Sink     events.Sink
	Listener FrameListener
	// Arena enables arena masking when set.
	Arena  *arenamask.Manager
	Tuning *config.TuningConfig
	Clock  timeutil.Clock
	// ProjectionBounds is the region of the camera frame covered by the
	// projector. Empty means the whole frame.
	ProjectionBounds image.Rectangle
}

// Stats is a point-in-time view of a Manager.
type Stats struct {
	Name            string           `json:"name"`
	State           CalibrationState `json:"state"`
	Open            bool             `json:"open"`
	Running         bool             `json:"running"`
	FPS             float64          `json:"fps"`
	JitterMs        float64          `json:"jitter_ms"`
	Frames          uint64           `json:"frames"`
	ShotsForwarded  uint64           `json:"shots_forwarded"`
	ShotsSuppressed uint64           `json:"shots_suppressed"`
	ShotsWithheld   uint64           `json:"shots_withheld"`
	MasksQueued     int              `json:"masks_queued"`
	ArenaEnabled    bool             `json:"arena_enabled"`
}

// Manager owns a frame source, its FPS estimator and calibration state, and
// runs the capture loop that feeds the shot detector.
type Manager struct {
	source     FrameSource
	dispatcher *shotdetection.Dispatcher
	learner    shotdetection.BaselineLearner
	sink       events.Sink
	listener   FrameListener
	arena      *arenamask.Manager
	clock      timeutil.Clock

	rows, cols         int
	calibrationTimeout time.Duration
	backoff            timeutil.Backoff

	fps *FPSEstimator
	sm  *StateMachine

	mu     sync.Mutex
	bounds image.Rectangle
	grid   arenamask.Grid

	closing       atomic.Bool
	running       atomic.Bool
	arenaPending  atomic.Bool
	resetBaseline atomic.Bool

	frames          atomic.Uint64
	shotsForwarded  atomic.Uint64
	shotsSuppressed atomic.Uint64
	shotsWithheld   atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

// NewManager validates cfg and builds a Manager in the Uncalibrated state.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Source == nil {
		return nil, errors.New("camera manager: frame source is required")
	}
	if cfg.Detector == nil {
		return nil, errors.New("camera manager: detector is required")
	}
	tuning := cfg.Tuning
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	sink := cfg.Sink
	if sink == nil {
		sink = events.SinkFunc(func(events.Event) error { return nil })
	}
	listener := cfg.Listener
	if listener == nil {
		listener = ListenerFuncs{}
	}

	m := &Manager{
		source:             cfg.Source,
		dispatcher:         shotdetection.NewDispatcher(cfg.Detector),
		sink:               sink,
		listener:           listener,
		arena:              cfg.Arena,
		clock:              clock,
		rows:               tuning.GetSectorRows(),
		cols:               tuning.GetSectorColumns(),
		calibrationTimeout: tuning.GetCalibrationTimeout(),
		backoff:            timeutil.Backoff{Initial: tuning.GetPollInterval(), Max: tuning.GetMaxPollBackoff()},
		fps:                NewFPSEstimator(tuning.GetFPSWindow(), tuning.GetFPSRefreshCap(), tuning.GetDefaultFPS()),
		sm:                 NewStateMachine(clock),
		bounds:             cfg.ProjectionBounds,
		done:               make(chan struct{}),
	}
	if bl, ok := cfg.Detector.(shotdetection.BaselineLearner); ok {
		m.learner = bl
	}
	m.sm.OnTransition(m.onTransition)
	return m, nil
}

// Name returns the source name.
func (m *Manager) Name() string { return m.source.Name() }

// State returns the calibration state.
func (m *Manager) State() CalibrationState { return m.sm.State() }

// FPS returns the smoothed frame rate.
func (m *Manager) FPS() float64 { return m.fps.CurrentFPS() }

// Done is closed after the loop has stopped and the camera-closed notice has
// been delivered.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Stop asks the loop to exit. It is observed once per loop iteration.
func (m *Manager) Stop() { m.closing.Store(true) }

// Start runs the loop on a new goroutine.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("[camera] %s: capture loop ended: %v", m.Name(), err)
		}
	}()
}

// Run opens the source if needed and captures frames until the source
// closes, Stop is called or ctx is cancelled. Frame-level failures are
// absorbed; only setup errors are returned.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%s: capture loop already started", m.Name())
	}
	defer m.finish()

	if !m.source.IsOpen() && !m.source.Open() {
		return fmt.Errorf("%s: %w: open failed", m.Name(), ErrDeviceUnavailable)
	}
	monitoring.Logf("[camera] %s: capture loop started", m.Name())

	for !m.closing.Load() && ctx.Err() == nil && m.source.IsOpen() {
		f, err := m.source.NextFrame()
		if err != nil {
			if !frame.IsPollable(err) {
				monitoring.Logf("[camera] %s: frame read failed: %v", m.Name(), err)
			}
			timeutil.Wait(ctx, m.clock, m.backoff.Next())
			continue
		}
		m.backoff.Reset()
		m.handleFrame(f)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (m *Manager) handleFrame(f *frame.Frame) {
	ts := f.Timestamp
	if ts == 0 {
		ts = timeutil.Millis(m.clock)
	}
	seq := m.frames.Add(1)
	f = f.WithSeq(seq, ts)
	m.fps.RecordFrame(ts)
	grid := m.gridFor(f)

	if m.learner != nil && m.resetBaseline.Swap(false) {
		m.learner.ResetBaseline()
	}

	state := m.sm.State()
	if state == Calibrating && m.learner != nil {
		m.learner.LearnBaseline(f)
		if m.learner.BaselineReady() {
			m.completeCalibration("baseline ready")
		}
	} else {
		m.detect(f, grid, state)
	}

	m.listener.NewFrame(f)

	if !m.sm.State().IsCalibrating() && m.fps.RefreshDue(seq) {
		m.fps.Refresh()
	}
	if m.sm.TimedOut(m.calibrationTimeout) {
		m.completeCalibration("timeout")
	}
}

func (m *Manager) detect(f *frame.Frame, grid arenamask.Grid, state CalibrationState) {
	suppression := arenamask.NoSuppression()
	if m.arena != nil && (state == ArenaCalibrated || state == ArenaCalibrating) {
		suppression = m.arena.SuppressionFor(f.Timestamp)
	}

	res := m.dispatcher.Dispatch(f, grid, suppression)
	m.shotsSuppressed.Add(uint64(len(res.Suppressed)))

	for i := range res.Kept {
		shot := res.Kept[i]
		if state.IsCalibrating() || !m.sm.Forwarding() {
			m.shotsWithheld.Add(1)
			continue
		}
		m.shotsForwarded.Add(1)
		m.emit(events.Event{Kind: events.KindShot, Timestamp: shot.Timestamp, Shot: &shot})
	}

	if state == ArenaCalibrating && m.arena != nil && m.arena.BaselineReady() {
		if err := m.sm.CompleteArenaCalibration(); err == nil {
			monitoring.Logf("[camera] %s: arena baseline established", m.Name())
		}
	}
}

func (m *Manager) gridFor(f *frame.Frame) arenamask.Grid {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grid.Empty() {
		bounds := m.bounds
		if bounds.Empty() {
			bounds = f.Image.Bounds()
		}
		m.grid = arenamask.NewGrid(m.rows, m.cols, bounds)
	}
	return m.grid
}

func (m *Manager) finish() {
	m.sm.Reset()
	m.arenaPending.Store(false)
	if m.source.IsOpen() {
		m.source.Close()
	}
	m.closeOnce.Do(func() {
		monitoring.Logf("[camera] %s: closed after %d frames", m.Name(), m.frames.Load())
		m.emit(events.Event{Kind: events.KindCameraClosed, Timestamp: timeutil.Millis(m.clock)})
		m.listener.CameraClosed()
		close(m.done)
	})
}

func (m *Manager) emit(e events.Event) {
	e.Camera = m.Name()
	if err := m.sink.Emit(e); err != nil {
		monitoring.Logf("[camera] %s: event sink: %v", m.Name(), err)
	}
}

func (m *Manager) onTransition(from, to CalibrationState) {
	monitoring.Logf("[camera] %s: %s -> %s", m.Name(), from, to)
	m.emit(events.Event{
		Kind:      events.KindState,
		Timestamp: timeutil.Millis(m.clock),
		FromState: from.String(),
		ToState:   to.String(),
	})
}

// StartCalibration begins learning the camera noise floor. Detections are
// withheld until calibration completes.
func (m *Manager) StartCalibration() error {
	m.resetBaseline.Store(true)
	return m.sm.StartCalibration()
}

// StopCalibration forces calibration to complete.
func (m *Manager) StopCalibration() error {
	return m.completeCalibration("stopped")
}

func (m *Manager) completeCalibration(reason string) error {
	if err := m.sm.CompleteCalibration(); err != nil {
		return err
	}
	monitoring.Logf("[camera] %s: calibration complete (%s)", m.Name(), reason)
	if m.arenaPending.Swap(false) {
		return m.enterArena()
	}
	return nil
}

// EnableArenaMasking requests arena calibration. From Calibrated it starts
// now; during Calibrating it starts as soon as calibration completes.
func (m *Manager) EnableArenaMasking() error {
	if m.arena == nil {
		return fmt.Errorf("%w: no arena feed configured", ErrInvalidTransition)
	}
	switch state := m.sm.State(); state {
	case Calibrated:
		return m.enterArena()
	case Calibrating:
		m.arenaPending.Store(true)
		return nil
	case ArenaCalibrating, ArenaCalibrated:
		return nil
	default:
		return fmt.Errorf("%w: arena masking needs a calibrated camera, state is %s", ErrInvalidTransition, state)
	}
}

func (m *Manager) enterArena() error {
	b := m.ProjectionBounds()
	// the mask history must be cleared before the state change is visible
	m.arena.Start(b.Dx(), b.Dy())
	return m.sm.StartArenaCalibration()
}

// ResetCalibration returns to Uncalibrated.
func (m *Manager) ResetCalibration() {
	m.arenaPending.Store(false)
	m.sm.Reset()
}

// SetProjectionBounds sets the projected region of the camera frame and
// rebuilds the sector grid.
func (m *Manager) SetProjectionBounds(r image.Rectangle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bounds = r
	m.grid = arenamask.Grid{}
}

// ProjectionBounds returns the projected region, falling back to the current
// grid bounds or the source view size.
func (m *Manager) ProjectionBounds() image.Rectangle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.bounds.Empty() {
		return m.bounds
	}
	if !m.grid.Empty() {
		return m.grid.Bounds
	}
	v := m.source.ViewSize()
	return image.Rect(0, 0, v.Width, v.Height)
}

// Stats returns a snapshot of loop counters.
func (m *Manager) Stats() Stats {
	s := Stats{
		Name:            m.Name(),
		State:           m.sm.State(),
		Open:            m.source.IsOpen(),
		Running:         m.running.Load() && !isClosed(m.done),
		FPS:             m.fps.CurrentFPS(),
		JitterMs:        m.fps.Jitter(),
		Frames:          m.frames.Load(),
		ShotsForwarded:  m.shotsForwarded.Load(),
		ShotsSuppressed: m.shotsSuppressed.Load(),
		ShotsWithheld:   m.shotsWithheld.Load(),
		ArenaEnabled:    m.arena != nil,
	}
	if m.arena != nil {
		s.MasksQueued = m.arena.Len()
	}
	return s
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
