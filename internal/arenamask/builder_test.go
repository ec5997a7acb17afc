package arenamask

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lasershot/internal/config"
	"github.com/banshee-data/lasershot/internal/testutil"
)

func testBuilderParams() BuilderParams {
	p := BuilderParamsFromTuning(config.EmptyTuningConfig())
	p.LearningFrames = 3
	return p
}

func TestGrid_SectorAt(t *testing.T) {
	t.Parallel()

	g := NewGrid(3, 3, image.Rect(0, 0, 160, 120))
	tests := []struct {
		x, y float64
		want Sector
	}{
		{0, 0, Sector{Row: 0, Col: 0, Valid: true}},
		{52.9, 39.9, Sector{Row: 0, Col: 0, Valid: true}},
		{53, 40, Sector{Row: 1, Col: 1, Valid: true}},
		{159.5, 119.5, Sector{Row: 2, Col: 2, Valid: true}},
		{160, 10, Sector{}},
		{-0.5, 10, Sector{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, g.SectorAt(tt.x, tt.y), "(%v,%v)", tt.x, tt.y)
	}
	assert.Equal(t, -1, g.Index(Sector{}))
	assert.Equal(t, 5, g.Index(Sector{Row: 1, Col: 2, Valid: true}))
	assert.Equal(t, image.Rect(106, 80, 160, 120), g.SectorBounds(2, 2))
	assert.Equal(t, image.Rectangle{}, g.SectorBounds(3, 0))

	var zero Grid
	assert.False(t, zero.SectorAt(1, 1).Valid)
}

func TestGrid_OffsetBounds(t *testing.T) {
	t.Parallel()

	g := NewGrid(2, 2, image.Rect(100, 50, 300, 250))
	assert.Equal(t, Sector{Row: 1, Col: 0, Valid: true}, g.SectorAt(150, 200))
	assert.False(t, g.SectorAt(50, 60).Valid)
}

func TestNewMask_Validates(t *testing.T) {
	t.Parallel()

	_, err := NewMask(1, 3, 3, make([]bool, 8))
	assert.ErrorIs(t, err, ErrGridMismatch)

	src := []bool{true, false, false, false}
	m, err := NewMask(1, 2, 2, src)
	require.NoError(t, err)
	src[0] = false
	assert.True(t, m.Active(0, 0), "mask copies its input")
	assert.Equal(t, 1, m.ActiveCount())
	assert.False(t, m.Active(5, 5))
}

func TestBuilder_QuiescentFramesAreInactive(t *testing.T) {
	t.Parallel()

	b := NewBuilder(testBuilderParams())
	for i := 0; i < 5; i++ {
		m := b.Build(testutil.Solid(160, 120, testutil.Background), int64(i*33))
		assert.Equal(t, 0, m.ActiveCount(), "frame %d", i)
		assert.Equal(t, 3, m.Rows)
		assert.Equal(t, 3, m.Cols)
	}
	assert.False(t, b.Learning())
}

func TestBuilder_MotionMarksOnlyItsSector(t *testing.T) {
	t.Parallel()

	b := NewBuilder(testBuilderParams())
	for i := 0; i < 4; i++ {
		b.Build(testutil.Solid(160, 120, testutil.Background), int64(i))
	}

	img := testutil.Solid(160, 120, testutil.Background)
	testutil.FillRect(img, testutil.Square(70, 50, 10), testutil.Projected) // sector (1,1)
	m := b.Build(img, 100)

	assert.True(t, m.Active(1, 1))
	assert.Equal(t, 1, m.ActiveCount())
}

func TestBuilder_ActiveSectorsKeepReference(t *testing.T) {
	t.Parallel()

	b := NewBuilder(testBuilderParams())
	for i := 0; i < 4; i++ {
		b.Build(testutil.Solid(160, 120, testutil.Background), int64(i))
	}

	// a static projected square must stay active instead of being learned away
	img := testutil.Solid(160, 120, testutil.Background)
	testutil.FillRect(img, testutil.Square(10, 10, 12), testutil.Projected)
	for i := 0; i < 50; i++ {
		m := b.Build(img, int64(100+i))
		require.True(t, m.Active(0, 0), "frame %d", i)
	}
}

func TestBuilder_ResetReseeds(t *testing.T) {
	t.Parallel()

	b := NewBuilder(testBuilderParams())
	b.Build(testutil.Solid(160, 120, testutil.Background), 0)

	bright := testutil.Solid(160, 120, testutil.Projected)
	assert.Equal(t, 9, b.Build(bright, 1).ActiveCount())

	b.Reset()
	assert.True(t, b.Learning())
	assert.Equal(t, 0, b.Build(bright, 2).ActiveCount(), "reseeded reference matches")
}

func TestBuilder_DownscalesWideFrames(t *testing.T) {
	t.Parallel()

	p := testBuilderParams()
	p.WorkWidth = 160
	b := NewBuilder(p)
	b.Build(testutil.Solid(640, 480, testutil.Background), 0)

	img := testutil.Solid(640, 480, testutil.Background)
	testutil.FillRect(img, image.Rect(480, 360, 560, 440), testutil.Projected) // sector (2,2)
	m := b.Build(img, 1)
	assert.True(t, m.Active(2, 2))
	assert.Equal(t, 1, m.ActiveCount())
}
