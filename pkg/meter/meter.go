// Measurement session
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package meter runs complete measurements: it acquires edges for a policy,
// derives the rates and appends the resulting record to the store.
package meter

import (
	"context"
	"sync/atomic"
	"time"

	"shaft-speed-meter/pkg/edge"
	"shaft-speed-meter/pkg/encoder"
	"shaft-speed-meter/pkg/errors"
	"shaft-speed-meter/pkg/log"
	"shaft-speed-meter/pkg/metrics"
	"shaft-speed-meter/pkg/pulse"
	"shaft-speed-meter/pkg/rate"
	"shaft-speed-meter/pkg/store"
)

// Result is one finished measurement.
type Result struct {
	Raw    *encoder.Raw
	Record encoder.Record
}

// Elapsed returns the measured acquisition time.
func (r *Result) Elapsed() time.Duration {
	return r.Raw.Elapsed()
}

// Meter owns the input line for a single encoder. At most one measurement
// runs at a time; a concurrent Measure fails with ACQ_BUSY.
type Meter struct {
	cfg     encoder.Config
	src     edge.Source
	sink    store.Sink
	counter *pulse.Counter
	metrics *metrics.MeterMetrics
	logger  *log.Logger
	now     func() time.Time

	busy  atomic.Bool
	state atomic.Int32
}

// Option configures a Meter.
type Option func(*Meter)

// WithMetrics records acquisition outcomes on m.
func WithMetrics(m *metrics.MeterMetrics) Option {
	return func(mt *Meter) { mt.metrics = m }
}

// WithLogger replaces the component logger.
func WithLogger(l *log.Logger) Option {
	return func(mt *Meter) { mt.logger = l }
}

// WithWallClock sets the clock used to timestamp records.
func WithWallClock(now func() time.Time) Option {
	return func(mt *Meter) { mt.now = now }
}

// New creates a meter. limits bound the policies Measure accepts.
func New(cfg encoder.Config, limits encoder.Limits, src edge.Source, sink store.Sink, opts ...Option) (*Meter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil || sink == nil {
		return nil, errors.InvalidConfiguration("meter needs an edge source and a result sink")
	}

	m := &Meter{
		cfg:    cfg,
		src:    src,
		sink:   sink,
		logger: log.GetLogger("meter"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state.Store(int32(pulse.StateIdle))
	m.counter = pulse.NewCounter(limits,
		pulse.WithLogger(m.logger.WithPrefix("pulse")),
		pulse.WithObserver(func(_, to pulse.State) { m.state.Store(int32(to)) }),
	)
	return m, nil
}

// Config returns the encoder configuration.
func (m *Meter) Config() encoder.Config { return m.cfg }

// Limits returns the accepted policy bounds.
func (m *Meter) Limits() encoder.Limits { return m.counter.Limits() }

// Source returns the edge source name.
func (m *Meter) Source() string { return m.src.Name() }

// State returns the state of the current or most recent acquisition.
func (m *Meter) State() pulse.State { return pulse.State(m.state.Load()) }

// Busy reports whether a measurement is running.
func (m *Meter) Busy() bool { return m.busy.Load() }

// Measure acquires edges under policy, derives the rates and appends the
// record to the sink.
//
// A failed acquisition appends nothing. A zero rate is a valid result and is
// appended. If only the append fails, the Result is returned together with
// the store error.
func (m *Meter) Measure(ctx context.Context, policy encoder.Policy) (*Result, error) {
	if !m.busy.CompareAndSwap(false, true) {
		m.observe(policy.Method(), metrics.ResultBusy, nil)
		return nil, errors.AcquisitionBusy().SetContext("line", m.src.Name())
	}
	defer m.busy.Store(false)

	entry := m.logger.WithFields(log.Fields{
		"line":   m.src.Name(),
		"policy": policy.String(),
	})
	entry.Info("measurement started")

	raw, err := m.counter.Acquire(ctx, policy, m.src)
	if err != nil {
		m.observe(policy.Method(), resultFor(err), nil)
		return nil, err
	}

	r, err := rate.Derive(raw, m.cfg, policy)
	if err != nil {
		m.observe(policy.Method(), metrics.ResultInvalid, nil)
		return nil, err
	}

	res := &Result{
		Raw: raw,
		Record: encoder.Record{
			Timestamp: m.now(),
			Method:    policy.Method(),
			Rate:      r,
		},
	}

	outcome := metrics.ResultOK
	if r.IsZero() {
		outcome = metrics.ResultZero
		entry.WithFields(log.Fields{
			"edges":   raw.EdgeCount,
			"elapsed": raw.Elapsed().String(),
		}).Warn("measurement produced a zero rate")
	}

	// A finished measurement is stored even if ctx was cancelled meanwhile.
	if err := m.sink.Append(context.WithoutCancel(ctx), res.Record); err != nil {
		m.observe(policy.Method(), metrics.ResultStoreError, raw)
		entry.WithError(err).Error("failed to store measurement")
		return res, err
	}

	m.observe(policy.Method(), outcome, raw)
	if m.metrics != nil {
		m.metrics.SetLastRate(r)
	}
	entry.WithFields(log.Fields{
		"edges":        raw.EdgeCount,
		"elapsed":      raw.Elapsed().String(),
		"frequency_hz": r.FrequencyHz,
		"rpm":          r.RPM,
	}).Info("measurement stored")
	return res, nil
}

func (m *Meter) observe(method encoder.Method, result string, raw *encoder.Raw) {
	if m.metrics == nil {
		return
	}
	var (
		edges   int
		elapsed time.Duration
	)
	if raw != nil {
		edges, elapsed = raw.EdgeCount, raw.Elapsed()
	}
	m.metrics.ObserveAcquisition(method, result, edges, elapsed)
}

func resultFor(err error) string {
	switch errors.CodeOf(err) {
	case errors.ErrInvalidConfiguration:
		return metrics.ResultInvalid
	case errors.ErrLineUnavailable:
		return metrics.ResultLineUnavailable
	case errors.ErrAcquisitionCancelled:
		return metrics.ResultCancelled
	case errors.ErrAcquisitionBusy:
		return metrics.ResultBusy
	default:
		return metrics.ResultHardwareFault
	}
}
