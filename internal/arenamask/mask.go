package arenamask

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfOrderMask is returned by HandleMask for a mask older than the
	// newest one already queued. The mask is discarded.
	ErrOutOfOrderMask = errors.New("out-of-order mask")
	// ErrGridMismatch is returned when a mask's sector grid differs from the
	// grid of the current calibration session.
	ErrGridMismatch = errors.New("mask grid mismatch")
)

// Mask is the per-sector projector activity derived from one arena frame.
// It is immutable after construction.
type Mask struct {
	Timestamp int64
	Rows      int
	Cols      int
	active    []bool
}

// NewMask builds a mask from a row-major activity slice, which is copied.
func NewMask(timestamp int64, rows, cols int, active []bool) (*Mask, error) {
	if rows < 1 || cols < 1 || len(active) != rows*cols {
		return nil, fmt.Errorf("%w: %dx%d grid with %d sectors", ErrGridMismatch, rows, cols, len(active))
	}
	a := make([]bool, len(active))
	copy(a, active)
	return &Mask{Timestamp: timestamp, Rows: rows, Cols: cols, active: a}, nil
}

// Active reports whether the sector at (row, col) shows projector content.
func (m *Mask) Active(row, col int) bool {
	if row < 0 || row >= m.Rows || col < 0 || col >= m.Cols {
		return false
	}
	return m.active[row*m.Cols+col]
}

// ActiveCount returns the number of active sectors.
func (m *Mask) ActiveCount() int {
	n := 0
	for _, a := range m.active {
		if a {
			n++
		}
	}
	return n
}

// Sectors returns a copy of the row-major activity grid.
func (m *Mask) Sectors() []bool {
	a := make([]bool, len(m.active))
	copy(a, m.active)
	return a
}

// Suppression is the sector activity chosen for one camera frame. The zero
// value means no suppression: every sector is treated as inactive.
type Suppression struct {
	present       bool
	MaskTimestamp int64
	rows, cols    int
	active        []bool
}

// NoSuppression returns the fail-open snapshot.
func NoSuppression() Suppression { return Suppression{} }

func snapshot(m *Mask) Suppression {
	return Suppression{
		present:       true,
		MaskTimestamp: m.Timestamp,
		rows:          m.Rows,
		cols:          m.Cols,
		active:        m.Sectors(),
	}
}

// Present reports whether a mask matched the frame.
func (s Suppression) Present() bool { return s.present }

// Active reports whether detections in sector sec must be discarded.
func (s Suppression) Active(sec Sector) bool {
	if !s.present || !sec.Valid {
		return false
	}
	if sec.Row < 0 || sec.Row >= s.rows || sec.Col < 0 || sec.Col >= s.cols {
		return false
	}
	return s.active[sec.Row*s.cols+sec.Col]
}

// ActiveSectors lists the active sectors in row-major order.
func (s Suppression) ActiveSectors() []Sector {
	var out []Sector
	for i, a := range s.active {
		if a {
			out = append(out, Sector{Row: i / s.cols, Col: i % s.cols, Valid: true})
		}
	}
	return out
}
