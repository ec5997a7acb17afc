package camera

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lasershot/internal/timeutil"
)

type transition struct{ From, To CalibrationState }

func TestStateMachine_FullLifecycle(t *testing.T) {
	sm := NewStateMachine(timeutil.NewMockClock(time.Unix(0, 0)))
	var got []transition
	sm.OnTransition(func(from, to CalibrationState) {
		got = append(got, transition{from, to})
	})

	require.NoError(t, sm.StartCalibration())
	assert.False(t, sm.Forwarding())
	require.NoError(t, sm.CompleteCalibration())
	assert.True(t, sm.Forwarding())
	require.NoError(t, sm.StartArenaCalibration())
	assert.False(t, sm.Forwarding())
	require.NoError(t, sm.CompleteArenaCalibration())
	assert.True(t, sm.Forwarding())
	sm.Reset()

	want := []transition{
		{Uncalibrated, Calibrating},
		{Calibrating, Calibrated},
		{Calibrated, ArenaCalibrating},
		{ArenaCalibrating, ArenaCalibrated},
		{ArenaCalibrated, Uncalibrated},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestStateMachine_RejectsInvalidTransitions(t *testing.T) {
	sm := NewStateMachine(nil)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"complete before start", sm.CompleteCalibration},
		{"arena before calibrated", sm.StartArenaCalibration},
		{"arena complete before arena start", sm.CompleteArenaCalibration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, Uncalibrated, sm.State())
		})
	}

	require.NoError(t, sm.StartCalibration())
	assert.ErrorIs(t, sm.StartCalibration(), ErrInvalidTransition)
}

func TestStateMachine_ResetWhenUncalibratedIsSilent(t *testing.T) {
	sm := NewStateMachine(nil)
	calls := 0
	sm.OnTransition(func(_, _ CalibrationState) { calls++ })
	sm.Reset()
	assert.Zero(t, calls)
}

func TestStateMachine_TimedOut(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(100, 0))
	sm := NewStateMachine(clock)
	assert.False(t, sm.TimedOut(time.Second))

	require.NoError(t, sm.StartCalibration())
	clock.Advance(500 * time.Millisecond)
	assert.False(t, sm.TimedOut(time.Second))
	clock.Advance(500 * time.Millisecond)
	assert.True(t, sm.TimedOut(time.Second))
	assert.False(t, sm.TimedOut(0))

	require.NoError(t, sm.CompleteCalibration())
	assert.False(t, sm.TimedOut(time.Second))
	assert.Equal(t, clock.Now(), sm.EnteredAt())
}

func TestCalibrationState_JSON(t *testing.T) {
	b, err := json.Marshal(map[string]CalibrationState{"state": ArenaCalibrating})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"ARENA_CALIBRATING"}`, string(b))
	assert.Equal(t, "CalibrationState(42)", CalibrationState(42).String())
}
