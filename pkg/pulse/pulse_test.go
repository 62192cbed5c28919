package pulse

import (
	"bytes"
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shaft-speed-meter/pkg/edge"
	"shaft-speed-meter/pkg/edge/edgetest"
	"shaft-speed-meter/pkg/encoder"
	"shaft-speed-meter/pkg/errors"
	"shaft-speed-meter/pkg/log"
)

func quietLogger() *log.Logger {
	l := log.New("pulse")
	l.SetWriter(&bytes.Buffer{})
	return l
}

func newCounter(opts ...Option) *Counter {
	return NewCounter(encoder.DefaultLimits(), append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func TestAcquireDurationCountsEdgesInWindow(t *testing.T) {
	src := edgetest.Spread(5*time.Second, 24, 2*time.Second)

	raw, err := newCounter().Acquire(context.Background(), encoder.DurationPolicy(2*time.Second), src)
	require.NoError(t, err)

	assert.Equal(t, 24, raw.EdgeCount)
	assert.Len(t, raw.EdgeTimestamps, 24)
	assert.Equal(t, 5*time.Second, raw.StartTime)
	assert.Equal(t, 7*time.Second, raw.EndTime)
	assert.Equal(t, 2*time.Second, raw.Elapsed())
	assert.False(t, src.Active(), "registration must be released")
	assert.Equal(t, 1, src.Released())
}

func TestAcquireDurationWithoutEdges(t *testing.T) {
	src := edgetest.New(0)

	raw, err := newCounter().Acquire(context.Background(), encoder.DurationPolicy(3*time.Second), src)
	require.NoError(t, err)

	assert.Zero(t, raw.EdgeCount)
	assert.Empty(t, raw.EdgeTimestamps)
	assert.Equal(t, 3*time.Second, raw.Elapsed())
	assert.False(t, src.Active())
}

func TestAcquireDurationExcludesEdgeAtDeadline(t *testing.T) {
	src := edgetest.New(0, time.Second, 2*time.Second, 2500*time.Millisecond)

	raw, err := newCounter().Acquire(context.Background(), encoder.DurationPolicy(2*time.Second), src)
	require.NoError(t, err)

	assert.Equal(t, 1, raw.EdgeCount)
	assert.Equal(t, []time.Duration{time.Second}, raw.EdgeTimestamps)
	assert.Equal(t, 2*time.Second, raw.EndTime)
}

// lateSource queues each edge only once the wait covering its timestamp has
// timed out, the way a watcher goroutine can lag the kernel stamp.
type lateSource struct {
	mu    sync.Mutex
	now   time.Duration
	edges []time.Duration
	queue *edge.Queue
}

func (s *lateSource) Name() string { return "late" }

func (s *lateSource) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *lateSource) Arm(context.Context) (edge.Handle, error) {
	s.queue = edge.NewQueue(8)
	return s, nil
}

func (s *lateSource) Wait(ctx context.Context, timeout time.Duration) (time.Duration, bool, error) {
	if ts, ok, err := s.queue.Wait(ctx, 0); ok || err != nil {
		return ts, ok, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if timeout > 0 {
		s.now += timeout
	}
	for len(s.edges) > 0 && s.edges[0] <= s.now {
		s.queue.Push(s.edges[0])
		s.edges = s.edges[1:]
	}
	return 0, false, nil
}

func (s *lateSource) Release() {}

func TestAcquireDurationCountsEdgesQueuedAfterDeadline(t *testing.T) {
	src := &lateSource{edges: []time.Duration{1500 * time.Millisecond, 1999 * time.Millisecond, 2 * time.Second}}

	raw, err := newCounter().Acquire(context.Background(), encoder.DurationPolicy(2*time.Second), src)
	require.NoError(t, err)

	assert.Equal(t, 2, raw.EdgeCount)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond, 1999 * time.Millisecond}, raw.EdgeTimestamps)
	assert.Equal(t, 2*time.Second, raw.EndTime)
}

func TestAcquirePulseTargetEndsOnLastEdge(t *testing.T) {
	src := edgetest.Uniform(0, 10, time.Second)

	raw, err := newCounter().Acquire(context.Background(), encoder.PulseTargetPolicy(10), src)
	require.NoError(t, err)

	assert.Equal(t, 10, raw.EdgeCount)
	assert.Equal(t, time.Second, raw.EndTime)
	assert.Equal(t, raw.EdgeTimestamps[9], raw.EndTime)
	assert.Equal(t, time.Second, raw.Elapsed())
	for i := 1; i < len(raw.EdgeTimestamps); i++ {
		assert.GreaterOrEqual(t, raw.EdgeTimestamps[i], raw.EdgeTimestamps[i-1])
	}
	assert.False(t, src.Active())
}

func TestAcquirePulseTargetStopsWithoutDrainingScript(t *testing.T) {
	src := edgetest.Uniform(0, 20, 2*time.Second)

	raw, err := newCounter().Acquire(context.Background(), encoder.PulseTargetPolicy(5), src)
	require.NoError(t, err)

	assert.Equal(t, 5, raw.EdgeCount)
	assert.Equal(t, 5, src.Delivered())
	assert.Equal(t, 500*time.Millisecond, raw.EndTime)
}

func TestAcquireHardwareFaultDiscardsEdges(t *testing.T) {
	src := edgetest.Uniform(0, 5, time.Second).FaultAfter(2)

	raw, err := newCounter().Acquire(context.Background(), encoder.PulseTargetPolicy(5), src)
	require.Error(t, err)
	assert.Nil(t, raw)
	assert.True(t, errors.Is(err, errors.ErrHardwareFault))
	assert.ErrorIs(t, err, edgetest.ErrInjected)
	assert.Equal(t, 2, src.Delivered())
	assert.False(t, src.Active())
}

func TestAcquireArmFailure(t *testing.T) {
	src := edgetest.New(0).FailArm(stderrors.New("device or resource busy"))

	raw, err := newCounter().Acquire(context.Background(), encoder.PulseTargetPolicy(1), src)
	require.Error(t, err)
	assert.Nil(t, raw)
	assert.True(t, errors.Is(err, errors.ErrLineUnavailable))
	assert.Zero(t, src.Armed())
}

func TestAcquireRejectsInvalidPolicyBeforeArming(t *testing.T) {
	tests := []struct {
		name   string
		policy encoder.Policy
	}{
		{"zero duration", encoder.DurationPolicy(0)},
		{"duration over limit", encoder.DurationPolicy(10 * time.Second)},
		{"zero target", encoder.PulseTargetPolicy(0)},
		{"target over limit", encoder.PulseTargetPolicy(101)},
		{"unset", encoder.Policy{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := edgetest.New(0, time.Millisecond)
			_, err := newCounter().Acquire(context.Background(), tt.policy, src)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration))
			assert.Zero(t, src.Armed())
		})
	}
}

func TestAcquireCancelledMidWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := edgetest.New(0, 10*time.Millisecond, 20*time.Millisecond).OnWait(func(delivered int) {
		if delivered == 2 {
			cancel()
		}
	})

	raw, err := newCounter().Acquire(ctx, encoder.PulseTargetPolicy(5), src)
	require.Error(t, err)
	assert.Nil(t, raw)
	assert.True(t, errors.IsCancelled(err))
	assert.False(t, errors.IsHardware(err))
	assert.False(t, src.Active())
}

func TestAcquireCancelledBeforeArm(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newCounter().Acquire(ctx, encoder.DurationPolicy(time.Second), edgetest.New(0))
	require.Error(t, err)
	assert.True(t, errors.IsCancelled(err))
}

func TestAcquireIgnoresEdgesBeforeStart(t *testing.T) {
	src := edgetest.New(time.Second, 500*time.Millisecond, 1100*time.Millisecond, 1200*time.Millisecond)

	raw, err := newCounter().Acquire(context.Background(), encoder.PulseTargetPolicy(2), src)
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{1100 * time.Millisecond, 1200 * time.Millisecond}, raw.EdgeTimestamps)
	assert.Equal(t, 200*time.Millisecond, raw.Elapsed())
}

func TestAcquireOutOfOrderEdgeIsFault(t *testing.T) {
	src := edgetest.New(0, 10*time.Millisecond, 5*time.Millisecond)

	_, err := newCounter().Acquire(context.Background(), encoder.PulseTargetPolicy(3), src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrHardwareFault))
	assert.False(t, src.Active())
}

func TestAcquireStateTransitions(t *testing.T) {
	var got []State
	record := WithObserver(func(_, to State) { got = append(got, to) })

	_, err := newCounter(record).Acquire(context.Background(), encoder.PulseTargetPolicy(1), edgetest.New(0, time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, []State{StateArming, StateWaiting, StateStopped}, got)

	got = nil
	_, err = newCounter(record).Acquire(context.Background(), encoder.PulseTargetPolicy(1),
		edgetest.New(0).FailArm(stderrors.New("gone")))
	require.Error(t, err)
	assert.Equal(t, []State{StateArming, StateFailed}, got)

	got = nil
	_, err = newCounter(record).Acquire(context.Background(), encoder.PulseTargetPolicy(3),
		edgetest.Uniform(0, 3, time.Second).FaultAfter(1))
	require.Error(t, err)
	assert.Equal(t, []State{StateArming, StateWaiting, StateFailed}, got)
}

func TestAcquireEdgeHook(t *testing.T) {
	var seen []time.Duration
	c := newCounter(WithEdgeHook(func(ts time.Duration) { seen = append(seen, ts) }))

	raw, err := c.Acquire(context.Background(), encoder.PulseTargetPolicy(4), edgetest.Uniform(0, 4, time.Second))
	require.NoError(t, err)
	assert.Equal(t, raw.EdgeTimestamps, seen)
}

func TestAcquireSimulatedSource(t *testing.T) {
	src := edge.NewSimulatedSource(500, 0)

	raw, err := newCounter().Acquire(context.Background(), encoder.PulseTargetPolicy(5), src)
	require.NoError(t, err)

	assert.Equal(t, 5, raw.EdgeCount)
	assert.Greater(t, raw.Elapsed(), time.Duration(0))

	// The line is free again once Acquire returns.
	_, err = newCounter().Acquire(context.Background(), encoder.PulseTargetPolicy(1), src)
	assert.NoError(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "waiting", StateWaiting.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(99).String())
}
