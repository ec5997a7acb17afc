package frame

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCopiesPixels(t *testing.T) {
	t.Parallel()

	src := image.NewRGBA(image.Rect(10, 10, 14, 13))
	src.SetRGBA(10, 10, color.RGBA{R: 200, A: 255})

	f := New(src, 42)
	require.NotNil(t, f.Image)
	assert.Equal(t, int64(42), f.Timestamp)
	assert.Equal(t, Dimension{Width: 4, Height: 3}, f.Size())
	assert.Equal(t, image.Pt(0, 0), f.Image.Bounds().Min)
	assert.Equal(t, uint8(200), f.Image.RGBAAt(0, 0).R)

	// mutating the source must not reach the frame
	src.SetRGBA(10, 10, color.RGBA{G: 90, A: 255})
	assert.Equal(t, uint8(200), f.Image.RGBAAt(0, 0).R)
}

func TestWithSeq(t *testing.T) {
	t.Parallel()

	f := New(image.NewRGBA(image.Rect(0, 0, 2, 2)), 0)
	g := f.WithSeq(7, 1000)
	assert.Equal(t, uint64(7), g.Seq)
	assert.Equal(t, int64(1000), g.Timestamp)
	assert.Equal(t, uint64(0), f.Seq, "original frame untouched")
	assert.Same(t, f.Image, g.Image)
}

func TestSizeNil(t *testing.T) {
	t.Parallel()

	var f *Frame
	assert.True(t, f.Size().IsZero())
}

func TestLuma(t *testing.T) {
	t.Parallel()

	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.SetRGBA(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	src.SetRGBA(1, 0, color.RGBA{R: 255, A: 255})

	g := Luma(src)
	assert.Equal(t, uint8(255), g.GrayAt(0, 0).Y)
	assert.Equal(t, LumaAt(color.RGBA{R: 255, A: 255}), g.GrayAt(1, 0).Y)
	assert.InDelta(t, 76, int(g.GrayAt(1, 0).Y), 1, "red luma follows BT.601")
}

func TestScale(t *testing.T) {
	t.Parallel()

	src := image.NewGray(image.Rect(0, 0, 640, 480))
	for i := range src.Pix {
		src.Pix[i] = 100
	}

	small := Scale(src, 320)
	assert.Equal(t, 320, small.Bounds().Dx())
	assert.Equal(t, 240, small.Bounds().Dy())
	assert.InDelta(t, 100, int(small.GrayAt(160, 120).Y), 1)

	assert.Same(t, src, Scale(src, 800), "no upscaling")
	assert.Same(t, src, Scale(src, 0))
}

func TestIsPollable(t *testing.T) {
	t.Parallel()

	assert.True(t, IsPollable(ErrNoNewFrame))
	assert.True(t, IsPollable(fmt.Errorf("cam0: %w", ErrNoFrameAvailable)))
	assert.False(t, IsPollable(errors.New("decode failed")))
	assert.False(t, IsPollable(nil))
}

func TestFit(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 6))

	native := Fit(src, Dimension{}, 7)
	assert.Equal(t, Dimension{Width: 8, Height: 6}, native.Size())
	assert.Equal(t, int64(7), native.Timestamp)

	same := Fit(src, Dimension{Width: 8, Height: 6}, 7)
	assert.Equal(t, Dimension{Width: 8, Height: 6}, same.Size())

	scaled := Fit(src, Dimension{Width: 4, Height: 3}, 9)
	assert.Equal(t, Dimension{Width: 4, Height: 3}, scaled.Size())
	assert.Equal(t, int64(9), scaled.Timestamp)
}
