package camera

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lasershot/internal/arenamask"
	"github.com/banshee-data/lasershot/internal/events"
	"github.com/banshee-data/lasershot/internal/frame"
	"github.com/banshee-data/lasershot/internal/shotdetection"
	"github.com/banshee-data/lasershot/internal/testutil"
)

const (
	sceneWidth  = 160
	sceneHeight = 120

	// projection starts earlier on the arena feed than in the camera view,
	// as the projector renders before the camera sees it
	arenaMotionFrom  = 1000
	cameraMotionFrom = 1200
)

// arenaImage is the projector output at ts: a static background and, once
// motion starts, one square inside each of sectors (1,1) and (1,2).
func arenaImage(ts int64) *image.RGBA {
	img := testutil.Solid(sceneWidth, sceneHeight, testutil.Background)
	if ts >= arenaMotionFrom {
		testutil.FillRect(img, testutil.Square(70, 55, 10), testutil.Projected)
		testutil.FillRect(img, testutil.Square(123, 55, 10), testutil.Projected)
	}
	return img
}

// scene renders 100 camera frames where projected squares move within
// sectors (1,1) and (1,2), and 4x4 red flashes lasting two frames start at
// the given frame indices.
func scene(flashes map[int]image.Point) []*frame.Frame {
	return render(100, sceneWidth, sceneHeight, func(i int, img *image.RGBA) {
		testutil.FillRect(img, img.Bounds(), testutil.Background)
		if ts := int64(30 * (i + 1)); ts >= cameraMotionFrom {
			off := (i % 6) * 5
			testutil.FillRect(img, testutil.Square(58+off, 55, 10), testutil.Projected)
			testutil.FillRect(img, testutil.Square(111+off, 55, 10), testutil.Projected)
		}
		for start, p := range flashes {
			if i == start || i == start+1 {
				testutil.FillRect(img, testutil.Square(p.X, p.Y, 4), testutil.RedLaser)
			}
		}
	})
}

type sceneResult struct {
	shots []shotdetection.Shot
	stats Stats
	sink  *events.MemorySink
}

func runScene(t *testing.T, flashes map[int]image.Point) sceneResult {
	t.Helper()

	cfg := fastTuning()
	cfg.BaselineFrames = intp(5)
	cfg.ArenaBaselineMasks = intp(5)

	arena := arenamask.NewManager(cfg)
	ingest := arenamask.NewIngestor(arena, arenamask.NewBuilder(arenamask.BuilderParamsFromTuning(cfg)))

	src := newScriptedSource("scene", scene(flashes))
	nextArena := int64(5)
	src.before = func(ts int64) {
		for ; nextArena <= ts; nextArena += 40 {
			require.NoError(t, ingest.Ingest(arenaImage(nextArena), nextArena))
		}
	}

	sink := events.NewMemorySink(0)
	m, err := NewManager(Config{
		Source:           src,
		Detector:         shotdetection.NewFlashDetector(shotdetection.FlashParamsFromTuning(cfg)),
		Sink:             events.NewBus(sink),
		Arena:            arena,
		Tuning:           cfg,
		ProjectionBounds: image.Rect(0, 0, sceneWidth, sceneHeight),
	})
	require.NoError(t, err)
	require.NoError(t, m.StartCalibration())
	require.NoError(t, m.EnableArenaMasking())

	var reached []string
	m.sm.OnTransition(func(_, to CalibrationState) { reached = append(reached, to.String()) })

	require.NoError(t, m.Run(context.Background()))
	// the last transition is the reset on close
	require.Equal(t, []string{"CALIBRATED", "ARENA_CALIBRATING", "ARENA_CALIBRATED", "UNCALIBRATED"}, reached)

	return sceneResult{shots: sink.Shots(), stats: m.Stats(), sink: sink}
}

func TestScene_FlashesOutsideProjectedMotionAreReported(t *testing.T) {
	res := runScene(t, map[int]image.Point{
		60: {X: 10, Y: 10},
		70: {X: 140, Y: 10},
		80: {X: 10, Y: 100},
		90: {X: 140, Y: 100},
	})

	require.Len(t, res.shots, 4)
	want := []arenamask.Sector{
		{Row: 0, Col: 0, Valid: true},
		{Row: 0, Col: 2, Valid: true},
		{Row: 2, Col: 0, Valid: true},
		{Row: 2, Col: 2, Valid: true},
	}
	for i, s := range res.shots {
		assert.Equal(t, want[i], s.Sector)
		assert.Equal(t, shotdetection.ColorRed, s.Color)
		assert.Equal(t, 16, s.Pixels)
	}
	assert.Equal(t, uint64(4), res.stats.ShotsForwarded)
	assert.NotZero(t, res.stats.ShotsSuppressed, "projected motion must have been detected and discarded")
}

func TestScene_FlashesInsideProjectedMotionAreSuppressed(t *testing.T) {
	res := runScene(t, map[int]image.Point{
		60: {X: 85, Y: 44},
		70: {X: 140, Y: 70},
		80: {X: 60, Y: 70},
		90: {X: 120, Y: 42},
	})

	assert.Empty(t, res.shots)
	assert.Zero(t, res.stats.ShotsForwarded)
	assert.GreaterOrEqual(t, res.stats.ShotsSuppressed, uint64(4))
	assert.Len(t, res.sink.OfKind(events.KindCameraClosed), 1)
}
