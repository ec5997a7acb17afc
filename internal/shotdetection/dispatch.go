package shotdetection

import (
	"github.com/banshee-data/lasershot/internal/arenamask"
	"github.com/banshee-data/lasershot/internal/frame"
)

// Result splits a frame's detections into those to forward and those
// discarded because their centroid fell in an active sector.
type Result struct {
	Kept       []Shot
	Suppressed []Shot
}

// Dispatcher runs a Detector and applies arena suppression to its output.
type Dispatcher struct {
	detector Detector
}

// NewDispatcher wraps d.
func NewDispatcher(d Detector) *Dispatcher {
	return &Dispatcher{detector: d}
}

// Detector returns the wrapped detector.
func (d *Dispatcher) Detector() Detector { return d.detector }

// Dispatch processes f, assigns each shot the grid sector containing its
// centroid, and discards shots whose sector is active in suppression. A shot
// outside the grid is never suppressed.
func (d *Dispatcher) Dispatch(f *frame.Frame, grid arenamask.Grid, suppression arenamask.Suppression) Result {
	var res Result
	for _, s := range d.detector.Process(f, suppression) {
		s.Sector = grid.SectorAt(s.X, s.Y)
		if s.Timestamp == 0 {
			s.Timestamp = f.Timestamp
		}
		if s.FrameSeq == 0 {
			s.FrameSeq = f.Seq
		}
		if suppression.Active(s.Sector) {
			res.Suppressed = append(res.Suppressed, s)
			continue
		}
		res.Kept = append(res.Kept, s)
	}
	return res
}
