package shotdetection

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lasershot/internal/arenamask"
	"github.com/banshee-data/lasershot/internal/config"
	"github.com/banshee-data/lasershot/internal/frame"
	"github.com/banshee-data/lasershot/internal/testutil"
)

func background(ts int64) *frame.Frame {
	return frame.New(testutil.Solid(160, 120, testutil.Background), ts)
}

func withFlash(ts int64, r image.Rectangle, c color.RGBA) *frame.Frame {
	img := testutil.Solid(160, 120, testutil.Background)
	testutil.FillRect(img, r, c)
	return frame.New(img, ts)
}

func newTestDetector() *FlashDetector {
	return NewFlashDetector(FlashParamsFromTuning(config.EmptyTuningConfig()))
}

func TestFlashDetector_Baseline(t *testing.T) {
	t.Parallel()

	d := newTestDetector()
	assert.False(t, d.BaselineReady())
	for i := 0; i < 9; i++ {
		d.LearnBaseline(background(int64(i)))
		assert.False(t, d.BaselineReady(), "frame %d", i)
	}
	d.LearnBaseline(background(9))
	assert.True(t, d.BaselineReady())

	d.ResetBaseline()
	assert.False(t, d.BaselineReady())
}

func TestFlashDetector_DetectsRedFlashOnce(t *testing.T) {
	t.Parallel()

	d := newTestDetector()
	for i := 0; i < 10; i++ {
		d.LearnBaseline(background(int64(i)))
	}

	spot := testutil.Square(20, 30, 4)
	shots := d.Process(withFlash(100, spot, testutil.RedLaser), arenamask.NoSuppression())
	require.Len(t, shots, 1)
	s := shots[0]
	assert.Equal(t, ColorRed, s.Color)
	assert.InDelta(t, 22.0, s.X, 0.01)
	assert.InDelta(t, 32.0, s.Y, 0.01)
	assert.Equal(t, 16, s.Pixels)
	assert.Equal(t, int64(100), s.Timestamp)
	assert.Greater(t, s.Intensity, 40.0)

	// the same spot lit on the next frame is not a new shot
	assert.Empty(t, d.Process(withFlash(133, spot, testutil.RedLaser), arenamask.NoSuppression()))
	assert.Empty(t, d.Process(background(166), arenamask.NoSuppression()))
}

func TestFlashDetector_MultipleBlobs(t *testing.T) {
	t.Parallel()

	d := newTestDetector()
	d.Process(background(0), arenamask.NoSuppression())

	img := testutil.Solid(160, 120, testutil.Background)
	testutil.FillRect(img, testutil.Square(5, 5, 3), testutil.GreenLaser)
	testutil.FillRect(img, testutil.Square(150, 110, 3), testutil.RedLaser)
	testutil.FillRect(img, testutil.Square(80, 60, 1), testutil.RedLaser) // below MinPixels

	shots := d.Process(frame.New(img, 10), arenamask.NoSuppression())
	require.Len(t, shots, 2)
	assert.Equal(t, ColorGreen, shots[0].Color)
	assert.Equal(t, ColorRed, shots[1].Color)
}

func TestFlashDetector_RowEdgesDoNotWrap(t *testing.T) {
	t.Parallel()

	d := newTestDetector()
	d.Process(background(0), arenamask.NoSuppression())

	img := testutil.Solid(160, 120, testutil.Background)
	// two 2x2 spots touching opposite edges of adjacent rows
	testutil.FillRect(img, image.Rect(158, 10, 160, 12), testutil.RedLaser)
	testutil.FillRect(img, image.Rect(0, 12, 2, 14), testutil.RedLaser)
	shots := d.Process(frame.New(img, 10), arenamask.NoSuppression())
	assert.Len(t, shots, 2)
}

func TestFlashDetector_FirstFrameSeeds(t *testing.T) {
	t.Parallel()

	d := newTestDetector()
	assert.Empty(t, d.Process(withFlash(0, testutil.Square(10, 10, 4), testutil.RedLaser), arenamask.NoSuppression()))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ColorRed, classify(250, 40, 40))
	assert.Equal(t, ColorGreen, classify(40, 250, 40))
	assert.Equal(t, ColorInfrared, classify(230, 230, 230))
	assert.Equal(t, ColorUnknown, classify(120, 110, 100))
}

func TestColorText(t *testing.T) {
	t.Parallel()

	for _, c := range []Color{ColorUnknown, ColorRed, ColorGreen, ColorInfrared} {
		b, err := c.MarshalText()
		require.NoError(t, err)
		var got Color
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, c, got)
	}
	var c Color
	assert.Error(t, c.UnmarshalText([]byte("purple")))
}
