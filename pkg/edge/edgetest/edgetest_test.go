package edgetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shaft-speed-meter/pkg/edge"
	"shaft-speed-meter/pkg/errors"
)

func TestScriptedWaitAdvancesClock(t *testing.T) {
	src := New(time.Second, 1100*time.Millisecond, 1500*time.Millisecond)
	h, err := src.Arm(context.Background())
	require.NoError(t, err)
	defer h.Release()

	ts, ok, err := h.Wait(context.Background(), edge.NoTimeout)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1100*time.Millisecond, ts)
	assert.Equal(t, 1100*time.Millisecond, src.Now())

	// Next edge is beyond the timeout.
	_, ok, err = h.Wait(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1200*time.Millisecond, src.Now())

	ts, ok, err = h.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, ts)
}

func TestScriptedFaultAndRelease(t *testing.T) {
	src := Uniform(0, 5, time.Second).FaultAfter(2)
	h, err := src.Arm(context.Background())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, ok, err := h.Wait(context.Background(), edge.NoTimeout)
		require.NoError(t, err)
		require.True(t, ok)
	}
	_, _, err = h.Wait(context.Background(), edge.NoTimeout)
	assert.True(t, errors.Is(err, errors.ErrHardwareFault))

	h.Release()
	h.Release()
	assert.Equal(t, 1, src.Released())
	assert.False(t, src.Active())
}

func TestScriptedArmFailure(t *testing.T) {
	src := New(0).FailArm(assert.AnError)
	_, err := src.Arm(context.Background())
	assert.True(t, errors.Is(err, errors.ErrLineUnavailable))
	assert.Zero(t, src.Armed())
}

func TestScriptedBlocksUntilCancelled(t *testing.T) {
	src := New(0)
	h, err := src.Arm(context.Background())
	require.NoError(t, err)
	defer h.Release()

	ctx, cancel := context.WithCancel(context.Background())
	src.OnWait(func(int) { cancel() })

	_, ok, err := h.Wait(ctx, edge.NoTimeout)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSpreadKeepsEdgesInsideWindow(t *testing.T) {
	src := Spread(time.Second, 4, 2*time.Second)
	require.Len(t, src.edges, 4)
	assert.Equal(t, time.Second+250*time.Millisecond, src.edges[0])
	assert.Equal(t, time.Second+1750*time.Millisecond, src.edges[3])
}
