package arenamask

import (
	"image"
	"math"

	"github.com/banshee-data/lasershot/internal/config"
	"github.com/banshee-data/lasershot/internal/frame"
)

// BuilderParams controls how arena frames are compared with the learned
// quiescent reference.
type BuilderParams struct {
	Rows int
	Cols int
	// PixelThreshold is the absolute luma difference at which a pixel counts
	// as changed.
	PixelThreshold int
	// ActiveFraction is the share of changed pixels above which a sector is
	// active.
	ActiveFraction float64
	// ReferenceAlpha is the EMA rate used to update reference pixels.
	ReferenceAlpha float64
	// LearningFrames is the number of frames after a reset during which every
	// sector updates the reference, active or not.
	LearningFrames int
	// WorkWidth downscales wider arena frames before comparison.
	WorkWidth int
}

// BuilderParamsFromTuning reads the mask builder settings from cfg.
func BuilderParamsFromTuning(cfg *config.TuningConfig) BuilderParams {
	return BuilderParams{
		Rows:           cfg.GetSectorRows(),
		Cols:           cfg.GetSectorColumns(),
		PixelThreshold: cfg.GetMaskPixelThreshold(),
		ActiveFraction: cfg.GetMaskActiveFraction(),
		ReferenceAlpha: cfg.GetMaskReferenceAlpha(),
		LearningFrames: cfg.GetArenaBaselineMasks(),
		WorkWidth:      cfg.GetArenaWorkWidth(),
	}
}

// Builder turns arena frames into Masks. It keeps a per-pixel quiescent
// reference seeded from the first frame after Reset; inactive sectors keep
// refining it so slow lighting drift is absorbed. A Builder is owned by a
// single arena feed goroutine.
type Builder struct {
	params    BuilderParams
	reference []float64
	width     int
	height    int
	frames    int
}

// NewBuilder creates a Builder with the given params.
func NewBuilder(params BuilderParams) *Builder {
	return &Builder{params: params}
}

// Reset discards the quiescent reference.
func (b *Builder) Reset() {
	b.reference = nil
	b.frames = 0
}

// Learning reports whether the builder is still inside its learning window.
func (b *Builder) Learning() bool {
	return b.reference == nil || b.frames < b.params.LearningFrames
}

// Build compares img with the quiescent reference and returns the resulting
// mask stamped with timestamp.
func (b *Builder) Build(img image.Image, timestamp int64) *Mask {
	luma := frame.Scale(frame.Luma(img), b.params.WorkWidth)
	bounds := luma.Bounds()
	if b.reference == nil || bounds.Dx() != b.width || bounds.Dy() != b.height {
		b.seed(luma)
	}

	grid := NewGrid(b.params.Rows, b.params.Cols, bounds)
	active := make([]bool, grid.Len())
	threshold := float64(b.params.PixelThreshold)

	for row := 0; row < grid.Rows; row++ {
		for col := 0; col < grid.Cols; col++ {
			r := grid.SectorBounds(row, col)
			total := r.Dx() * r.Dy()
			if total == 0 {
				continue
			}
			changed := 0
			for y := r.Min.Y; y < r.Max.Y; y++ {
				off := y*luma.Stride + r.Min.X
				ref := b.reference[y*b.width+r.Min.X : y*b.width+r.Max.X]
				for i, v := range luma.Pix[off : off+r.Dx()] {
					if math.Abs(float64(v)-ref[i]) > threshold {
						changed++
					}
				}
			}
			active[row*grid.Cols+col] = float64(changed)/float64(total) > b.params.ActiveFraction
		}
	}

	b.learn(luma, grid, active)
	b.frames++

	m, _ := NewMask(timestamp, grid.Rows, grid.Cols, active)
	return m
}

func (b *Builder) seed(luma *image.Gray) {
	bounds := luma.Bounds()
	b.width, b.height = bounds.Dx(), bounds.Dy()
	b.reference = make([]float64, b.width*b.height)
	for y := 0; y < b.height; y++ {
		row := luma.Pix[y*luma.Stride : y*luma.Stride+b.width]
		for x, v := range row {
			b.reference[y*b.width+x] = float64(v)
		}
	}
	b.frames = 0
}

func (b *Builder) learn(luma *image.Gray, grid Grid, active []bool) {
	alpha := b.params.ReferenceAlpha
	if alpha <= 0 {
		return
	}
	learning := b.frames < b.params.LearningFrames
	for row := 0; row < grid.Rows; row++ {
		for col := 0; col < grid.Cols; col++ {
			if !learning && active[row*grid.Cols+col] {
				continue
			}
			r := grid.SectorBounds(row, col)
			for y := r.Min.Y; y < r.Max.Y; y++ {
				off := y*luma.Stride + r.Min.X
				ref := b.reference[y*b.width+r.Min.X : y*b.width+r.Max.X]
				for i, v := range luma.Pix[off : off+r.Dx()] {
					ref[i] += alpha * (float64(v) - ref[i])
				}
			}
		}
	}
}
