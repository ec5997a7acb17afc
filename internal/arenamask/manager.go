package arenamask

import (
	"fmt"
	"image"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/lasershot/internal/config"
	"github.com/banshee-data/lasershot/internal/monitoring"
)

// Manager holds the recent masks of the arena feed in timestamp order and
// answers which sectors to suppress for a given camera frame time.
//
// The arena feed goroutine is the only writer (HandleMask); the camera loop is
// the only reader (SuppressionFor). A mutex around the queue is sufficient
// since matching tolerates a window rather than an exact instant.
type Manager struct {
	mu sync.Mutex

	rows, cols int
	grid       Grid
	delay      time.Duration
	arenaFPS   int
	slack      int
	bound      int
	masks      []*Mask

	baselineTarget int
	accepted       int
	rejected       uint64
	epoch          uint64
}

// NewManager builds a Manager using the sector grid, delay window, queue
// sizing and baseline settings from cfg.
func NewManager(cfg *config.TuningConfig) *Manager {
	m := &Manager{
		rows:           cfg.GetSectorRows(),
		cols:           cfg.GetSectorColumns(),
		arenaFPS:       cfg.GetArenaFPS(),
		slack:          cfg.GetMaskQueueSlack(),
		baselineTarget: cfg.GetArenaBaselineMasks(),
	}
	m.setDelayLocked(cfg.GetArenaDelay())
	return m
}

// Start resets the sector grid to the supplied projection size, recomputes
// the sector pixel boundaries and clears stale history. Builders observing
// Epoch discard their reference on the next frame.
func (m *Manager) Start(width, height int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grid = NewGrid(m.rows, m.cols, image.Rect(0, 0, width, height))
	m.masks = m.masks[:0]
	m.accepted = 0
	m.epoch++
	monitoring.Logf("[arena] started %dx%d projection, %dx%d sectors, delay %v, queue bound %d",
		width, height, m.rows, m.cols, m.delay, m.bound)
}

// SetDelay changes the match window and resizes the queue bound.
func (m *Manager) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setDelayLocked(d)
	for len(m.masks) > m.bound {
		m.dropOldestLocked()
	}
}

func (m *Manager) setDelayLocked(d time.Duration) {
	if d < 0 {
		d = 0
	}
	m.delay = d
	perWindow := (int(d/time.Millisecond)*m.arenaFPS + 999) / 1000
	m.bound = perWindow + m.slack
	if m.bound < 1 {
		m.bound = 1
	}
}

// Delay returns the current match window.
func (m *Manager) Delay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delay
}

// Bound returns the queue capacity.
func (m *Manager) Bound() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bound
}

// HandleMask takes ownership of mask and appends it to the queue, dropping
// the oldest mask when the queue is full. A mask older than the newest queued
// one is logged and rejected with ErrOutOfOrderMask; the queue is unchanged.
func (m *Manager) HandleMask(mask *Mask) error {
	if mask == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if mask.Rows != m.rows || mask.Cols != m.cols {
		m.rejected++
		return fmt.Errorf("%w: got %dx%d, session uses %dx%d", ErrGridMismatch, mask.Rows, mask.Cols, m.rows, m.cols)
	}
	if n := len(m.masks); n > 0 && mask.Timestamp < m.masks[n-1].Timestamp {
		m.rejected++
		newest := m.masks[n-1].Timestamp
		monitoring.Logf("[arena] discarding out-of-order mask ts=%d (newest %d)", mask.Timestamp, newest)
		return fmt.Errorf("%w: ts %d before %d", ErrOutOfOrderMask, mask.Timestamp, newest)
	}

	if len(m.masks) >= m.bound {
		m.dropOldestLocked()
	}
	m.masks = append(m.masks, mask)
	m.accepted++
	return nil
}

func (m *Manager) dropOldestLocked() {
	copy(m.masks, m.masks[1:])
	m.masks[len(m.masks)-1] = nil
	m.masks = m.masks[:len(m.masks)-1]
}

// SuppressionFor returns the activity of the newest mask taken at or before
// timestamp, provided it is no more than the delay window older. Otherwise it
// returns NoSuppression: missing arena data never blocks detection.
func (m *Manager) SuppressionFor(timestamp int64) Suppression {
	m.mu.Lock()
	defer m.mu.Unlock()

	// first index with Timestamp > timestamp; the candidate sits just before it
	i := sort.Search(len(m.masks), func(i int) bool {
		return m.masks[i].Timestamp > timestamp
	})
	if i == 0 {
		return NoSuppression()
	}
	match := m.masks[i-1]
	if timestamp-match.Timestamp > m.delay.Milliseconds() {
		return NoSuppression()
	}
	return snapshot(match)
}

// BaselineReady reports whether enough masks have been accepted since Start
// to trust the quiescent reference.
func (m *Manager) BaselineReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accepted >= m.baselineTarget
}

// Epoch increments on every Start.
func (m *Manager) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// Grid returns the sector grid of the current session.
func (m *Manager) Grid() Grid {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grid
}

// Len returns the number of queued masks.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.masks)
}

// Rejected returns how many masks have been discarded since creation.
func (m *Manager) Rejected() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejected
}
