package store

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shaft-speed-meter/pkg/encoder"
)

type memorySink struct {
	mu      sync.Mutex
	name    string
	err     error
	records []encoder.Record
}

func (m *memorySink) Name() string { return m.name }

func (m *memorySink) Append(_ context.Context, rec encoder.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

type observed struct {
	sink string
	ok   bool
}

func TestFanOutWritesAllSinks(t *testing.T) {
	primary := &memorySink{name: "csv"}
	mirror := &memorySink{name: "postgres"}
	var seen []observed

	f := NewFanOut(primary, mirror).Observe(func(sink string, err error) {
		seen = append(seen, observed{sink, err == nil})
	})
	require.NoError(t, f.Append(context.Background(), record(encoder.MethodDuration, 1, 5, time.Now())))

	assert.Len(t, primary.records, 1)
	assert.Len(t, mirror.records, 1)
	assert.Equal(t, []observed{{"csv", true}, {"postgres", true}}, seen)
	assert.Equal(t, "csv", f.Name())
}

func TestFanOutPrimaryFailureSkipsMirrors(t *testing.T) {
	primary := &memorySink{name: "csv", err: stderrors.New("disk full")}
	mirror := &memorySink{name: "postgres"}

	err := NewFanOut(primary, mirror).Append(context.Background(), record(encoder.MethodDuration, 1, 5, time.Now()))
	require.Error(t, err)
	assert.Empty(t, mirror.records)
}

func TestFanOutMirrorFailureIsNotFatal(t *testing.T) {
	primary := &memorySink{name: "csv"}
	broken := &memorySink{name: "postgres", err: stderrors.New("connection refused")}
	var failures []string

	f := NewFanOut(primary, broken).Observe(func(sink string, err error) {
		if err != nil {
			failures = append(failures, sink)
		}
	})
	require.NoError(t, f.Append(context.Background(), record(encoder.MethodPulseTarget, 1, 5, time.Now())))

	assert.Len(t, primary.records, 1)
	assert.Equal(t, []string{"postgres"}, failures)
}
