package shotdetection

import (
	"image"

	"github.com/banshee-data/lasershot/internal/arenamask"
	"github.com/banshee-data/lasershot/internal/config"
	"github.com/banshee-data/lasershot/internal/frame"
)

// FlashParams tunes the FlashDetector.
type FlashParams struct {
	// Threshold is the luma rise over the noise floor that marks a flash pixel.
	Threshold int
	// MinPixels is the smallest connected blob reported as a shot.
	MinPixels int
	// BaselineFrames is how many calibration frames make the floor ready.
	BaselineFrames int
	// BaselineAlpha is the EMA rate for the per-pixel noise floor.
	BaselineAlpha float64
}

// FlashParamsFromTuning reads detector settings from cfg.
func FlashParamsFromTuning(cfg *config.TuningConfig) FlashParams {
	return FlashParams{
		Threshold:      cfg.GetFlashThreshold(),
		MinPixels:      cfg.GetFlashMinPixels(),
		BaselineFrames: cfg.GetBaselineFrames(),
		BaselineAlpha:  cfg.GetBaselineAlpha(),
	}
}

// FlashDetector reports blobs of pixels that jump above a learned per-pixel
// noise floor and above the previous frame. Requiring a rise over the previous
// frame keeps a flash that spans several frames from being reported twice.
// It is not safe for concurrent use; the capture loop owns it.
type FlashDetector struct {
	params FlashParams

	width, height int
	floor         []float64
	prev          []uint8
	learned       int

	candidate []bool
	visited   []bool
	stack     []int
}

// NewFlashDetector creates a detector with params.
func NewFlashDetector(params FlashParams) *FlashDetector {
	if params.MinPixels < 1 {
		params.MinPixels = 1
	}
	return &FlashDetector{params: params}
}

func (d *FlashDetector) Name() string            { return "flash" }
func (d *FlashDetector) IsSystemSupported() bool { return true }

// BaselineReady reports whether enough calibration frames have been seen.
func (d *FlashDetector) BaselineReady() bool {
	return d.floor != nil && d.learned >= d.params.BaselineFrames
}

// ResetBaseline drops the noise floor.
func (d *FlashDetector) ResetBaseline() {
	d.floor = nil
	d.prev = nil
	d.learned = 0
}

// LearnBaseline folds f into the noise floor without detecting.
func (d *FlashDetector) LearnBaseline(f *frame.Frame) {
	luma := frame.Luma(f.Image)
	if d.reseed(luma) {
		d.learned = 1
		return
	}
	alpha := d.params.BaselineAlpha
	for i, v := range luma.Pix {
		d.floor[i] += alpha * (float64(v) - d.floor[i])
	}
	copy(d.prev, luma.Pix)
	d.learned++
}

// reseed initialises the floor from luma when none exists or the frame size
// changed, reporting whether it did.
func (d *FlashDetector) reseed(luma *image.Gray) bool {
	b := luma.Bounds()
	if d.floor != nil && b.Dx() == d.width && b.Dy() == d.height {
		return false
	}
	d.width, d.height = b.Dx(), b.Dy()
	n := d.width * d.height
	d.floor = make([]float64, n)
	d.prev = make([]uint8, n)
	d.candidate = make([]bool, n)
	d.visited = make([]bool, n)
	for i, v := range luma.Pix {
		d.floor[i] = float64(v)
	}
	copy(d.prev, luma.Pix)
	return true
}

// Process returns the flashes in f. The first frame after a reset only seeds
// the noise floor.
func (d *FlashDetector) Process(f *frame.Frame, _ arenamask.Suppression) []Shot {
	luma := frame.Luma(f.Image)
	if d.reseed(luma) {
		return nil
	}

	thr := float64(d.params.Threshold)
	rise := thr / 2
	alpha := d.params.BaselineAlpha
	found := false
	for i, v := range luma.Pix {
		l := float64(v)
		c := l-d.floor[i] > thr && l-float64(d.prev[i]) > rise
		d.candidate[i] = c
		d.visited[i] = false
		if c {
			found = true
			continue
		}
		d.floor[i] += alpha * (l - d.floor[i])
	}
	copy(d.prev, luma.Pix)
	if !found {
		return nil
	}

	var shots []Shot
	for i, c := range d.candidate {
		if !c || d.visited[i] {
			continue
		}
		if s, ok := d.blob(i, f, luma); ok {
			shots = append(shots, s)
		}
	}
	return shots
}

// blob flood-fills the 4-connected candidate region containing seed.
func (d *FlashDetector) blob(seed int, f *frame.Frame, luma *image.Gray) (Shot, bool) {
	var sumX, sumY, sumR, sumG, sumB, sumRise float64
	count := 0

	d.stack = append(d.stack[:0], seed)
	d.visited[seed] = true
	for len(d.stack) > 0 {
		i := d.stack[len(d.stack)-1]
		d.stack = d.stack[:len(d.stack)-1]
		x, y := i%d.width, i/d.width

		count++
		sumX += float64(x)
		sumY += float64(y)
		px := f.Image.RGBAAt(x, y)
		sumR += float64(px.R)
		sumG += float64(px.G)
		sumB += float64(px.B)
		sumRise += float64(luma.Pix[i]) - d.floor[i]

		for _, n := range [4]int{i - 1, i + 1, i - d.width, i + d.width} {
			if n < 0 || n >= len(d.candidate) {
				continue
			}
			// keep horizontal neighbours on the same row
			if (n == i-1 && x == 0) || (n == i+1 && x == d.width-1) {
				continue
			}
			if d.candidate[n] && !d.visited[n] {
				d.visited[n] = true
				d.stack = append(d.stack, n)
			}
		}
	}

	if count < d.params.MinPixels {
		return Shot{}, false
	}
	n := float64(count)
	return Shot{
		// pixel centres
		X:         sumX/n + 0.5,
		Y:         sumY/n + 0.5,
		Color:     classify(sumR/n, sumG/n, sumB/n),
		Intensity: sumRise / n,
		Timestamp: f.Timestamp,
		FrameSeq:  f.Seq,
		Pixels:    count,
	}, true
}

func classify(r, g, b float64) Color {
	const dominance = 1.3
	switch {
	case r > g*dominance && r > b*dominance:
		return ColorRed
	case g > r*dominance && g > b*dominance:
		return ColorGreen
	case r > 180 && g > 180 && b > 180:
		// IR-filtered cameras see the spot as near white
		return ColorInfrared
	default:
		return ColorUnknown
	}
}
