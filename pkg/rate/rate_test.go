package rate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shaft-speed-meter/pkg/encoder"
	"shaft-speed-meter/pkg/errors"
)

func uniformRaw(start time.Duration, count int, span time.Duration) *encoder.Raw {
	raw := &encoder.Raw{StartTime: start, EndTime: start + span}
	for i := 1; i <= count; i++ {
		raw.EdgeTimestamps = append(raw.EdgeTimestamps, start+span*time.Duration(i)/time.Duration(count+1))
	}
	raw.EdgeCount = count
	return raw
}

func TestDeriveFixedDuration(t *testing.T) {
	// 24 edges across 2s on a 12 pulse/rev encoder.
	raw := uniformRaw(time.Second, 24, 2*time.Second)

	r, err := Derive(raw, encoder.Config{Resolution: 12}, encoder.DurationPolicy(2*time.Second))
	require.NoError(t, err)

	assert.InDelta(t, 12.0, r.FrequencyHz, 1e-9)
	assert.InDelta(t, 60.0, r.RPM, 1e-9)
	assert.InDelta(t, 6.283, r.RadPerSec, 5e-4)
}

func TestDeriveFixedPulseCount(t *testing.T) {
	start := 3 * time.Second
	raw := &encoder.Raw{EdgeCount: 10, StartTime: start, EndTime: start + time.Second}
	for i := 1; i <= 10; i++ {
		raw.EdgeTimestamps = append(raw.EdgeTimestamps, start+time.Duration(i)*100*time.Millisecond)
	}

	r, err := Derive(raw, encoder.Config{Resolution: 12}, encoder.PulseTargetPolicy(10))
	require.NoError(t, err)

	assert.InDelta(t, 10.0, r.FrequencyHz, 1e-9)
	assert.InDelta(t, 50.0, r.RPM, 1e-9)
	assert.InDelta(t, 5.236, r.RadPerSec, 5e-4)
}

func TestDeriveDurationUsesRequestedDenominator(t *testing.T) {
	// Measured window overran the request by 37ms of scheduling jitter.
	raw := &encoder.Raw{EdgeCount: 30, StartTime: 0, EndTime: 3*time.Second + 37*time.Millisecond}

	r, err := Derive(raw, encoder.Config{Resolution: 10}, encoder.DurationPolicy(3*time.Second))
	require.NoError(t, err)

	assert.Equal(t, 10.0, r.FrequencyHz)
	assert.Equal(t, 60.0, r.RPM)
}

func TestDerivePulseTargetUsesMeasuredElapsed(t *testing.T) {
	raw := &encoder.Raw{EdgeCount: 5, StartTime: time.Second, EndTime: time.Second + 2500*time.Millisecond}

	r, err := Derive(raw, encoder.Config{Resolution: 1}, encoder.PulseTargetPolicy(5))
	require.NoError(t, err)

	assert.InDelta(t, 2.0, r.FrequencyHz, 1e-12)
	assert.InDelta(t, 120.0, r.RPM, 1e-9)
}

func TestDeriveZeroElapsedIsDegenerate(t *testing.T) {
	policies := []encoder.Policy{
		encoder.DurationPolicy(time.Second),
		encoder.PulseTargetPolicy(3),
	}
	for _, p := range policies {
		t.Run(p.String(), func(t *testing.T) {
			raw := &encoder.Raw{EdgeCount: 3, StartTime: time.Second, EndTime: time.Second}
			r, err := Derive(raw, encoder.Config{Resolution: 12}, p)
			require.NoError(t, err)
			assert.True(t, r.IsZero())
		})
	}
}

func TestDeriveZeroEdges(t *testing.T) {
	raw := &encoder.Raw{StartTime: 0, EndTime: 3 * time.Second}
	r, err := Derive(raw, encoder.Config{Resolution: 12}, encoder.DurationPolicy(3*time.Second))
	require.NoError(t, err)
	assert.True(t, r.IsZero())
}

func TestDeriveRadPerSecIdentity(t *testing.T) {
	for _, res := range []int{1, 2, 12, 100, 1024} {
		for _, n := range []int{0, 1, 7, 24, 1000} {
			raw := &encoder.Raw{EdgeCount: n, StartTime: 0, EndTime: 1700 * time.Millisecond}
			for _, p := range []encoder.Policy{encoder.DurationPolicy(2 * time.Second), encoder.PulseTargetPolicy(n + 1)} {
				r, err := Derive(raw, encoder.Config{Resolution: res}, p)
				require.NoError(t, err)
				assert.InDelta(t, r.RPM*2*math.Pi/60, r.RadPerSec, 1e-9)
				assert.GreaterOrEqual(t, r.FrequencyHz, 0.0)
			}
		}
	}
}

func TestDeriveIsIdempotent(t *testing.T) {
	raw := uniformRaw(123*time.Millisecond, 17, 1234*time.Millisecond)
	cfg := encoder.Config{Resolution: 7}
	p := encoder.PulseTargetPolicy(17)

	a, err := Derive(raw, cfg, p)
	require.NoError(t, err)
	b, err := Derive(raw, cfg, p)
	require.NoError(t, err)

	assert.Equal(t, math.Float64bits(a.FrequencyHz), math.Float64bits(b.FrequencyHz))
	assert.Equal(t, math.Float64bits(a.RPM), math.Float64bits(b.RPM))
	assert.Equal(t, math.Float64bits(a.RadPerSec), math.Float64bits(b.RadPerSec))
}

func TestDeriveRejectsInvalidInput(t *testing.T) {
	raw := &encoder.Raw{EdgeCount: 1, EndTime: time.Second}

	_, err := Derive(raw, encoder.Config{Resolution: 0}, encoder.DurationPolicy(time.Second))
	assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration))

	_, err = Derive(nil, encoder.Config{Resolution: 12}, encoder.DurationPolicy(time.Second))
	assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration))

	_, err = Derive(raw, encoder.Config{Resolution: 12}, encoder.Policy{})
	assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration))
}
