// Pulse counter
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package pulse counts rising edges on an edge source under a stopping
// policy.
package pulse

import (
	"context"
	"fmt"
	"time"

	"shaft-speed-meter/pkg/edge"
	"shaft-speed-meter/pkg/encoder"
	"shaft-speed-meter/pkg/errors"
	"shaft-speed-meter/pkg/log"
)

// State is the phase of a single acquisition.
type State int

const (
	StateIdle State = iota
	StateArming
	StateWaiting
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArming:
		return "arming"
	case StateWaiting:
		return "waiting"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Counter runs acquisitions. It keeps no state between calls; exclusive use
// of the line is the caller's concern.
type Counter struct {
	limits   encoder.Limits
	logger   *log.Logger
	observer func(from, to State)
	onEdge   func(ts time.Duration)
}

// Option configures a Counter.
type Option func(*Counter)

// WithLogger sets the logger used for acquisition events.
func WithLogger(l *log.Logger) Option {
	return func(c *Counter) { c.logger = l }
}

// WithObserver registers a hook called on every state transition.
func WithObserver(fn func(from, to State)) Option {
	return func(c *Counter) { c.observer = fn }
}

// WithEdgeHook registers a hook called for every counted edge.
func WithEdgeHook(fn func(ts time.Duration)) Option {
	return func(c *Counter) { c.onEdge = fn }
}

// NewCounter creates a counter accepting policies within limits.
func NewCounter(limits encoder.Limits, opts ...Option) *Counter {
	c := &Counter{limits: limits}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.GetLogger("pulse")
	}
	return c
}

// Limits returns the policy bounds enforced by Acquire.
func (c *Counter) Limits() encoder.Limits {
	return c.limits
}

// run tracks the state of one Acquire call.
type run struct {
	c     *Counter
	state State
}

func (r *run) to(s State) {
	if r.state == s {
		return
	}
	from := r.state
	r.state = s
	if r.c.observer != nil {
		r.c.observer(from, s)
	}
}

// Acquire arms src and counts rising edges until policy is satisfied.
//
// For a duration policy EndTime is the scheduled deadline and edges stamped
// at or after it are not counted. For a pulse target policy EndTime is the
// timestamp of the n-th edge. The edge registration is released before
// Acquire returns. On error no Raw is returned.
func (c *Counter) Acquire(ctx context.Context, policy encoder.Policy, src edge.Source) (*encoder.Raw, error) {
	if err := policy.Validate(c.limits); err != nil {
		return nil, err
	}

	r := &run{c: c}
	raw, err := r.acquire(ctx, policy, src)
	if err != nil {
		r.to(StateFailed)
		entry := c.logger.WithFields(log.Fields{
			"line":   src.Name(),
			"policy": policy.String(),
		}).WithError(err)
		if errors.IsCancelled(err) {
			entry.Info("acquisition cancelled")
		} else {
			entry.Error("acquisition failed")
		}
		return nil, err
	}

	r.to(StateStopped)
	c.logger.WithFields(log.Fields{
		"line":    src.Name(),
		"policy":  policy.String(),
		"edges":   raw.EdgeCount,
		"elapsed": raw.Elapsed().String(),
	}).Debug("acquisition complete")
	return raw, nil
}

func (r *run) acquire(ctx context.Context, policy encoder.Policy, src edge.Source) (*encoder.Raw, error) {
	r.to(StateArming)
	h, err := src.Arm(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.AcquisitionCancelled(ctx.Err())
		}
		if errors.Is(err, errors.ErrLineUnavailable) {
			return nil, err
		}
		return nil, errors.LineUnavailable(src.Name(), err)
	}
	defer h.Release()

	start := src.Now()
	r.to(StateWaiting)

	var (
		stamps   []time.Duration
		last     = start
		deadline time.Duration
		end      time.Duration
	)
	isDuration := policy.Method() == encoder.MethodDuration
	if isDuration {
		deadline = start + policy.Duration()
	} else {
		stamps = make([]time.Duration, 0, policy.Target())
	}

	draining := false
	for {
		timeout := edge.NoTimeout
		if isDuration {
			remaining := deadline - src.Now()
			if draining || remaining <= 0 {
				// Edges stamped inside the window can still be queued
				// after the deadline passes; take them before stopping.
				draining = true
				timeout = 0
			} else {
				timeout = remaining
			}
		}

		ts, ok, err := h.Wait(ctx, timeout)
		if err != nil {
			return nil, classify(ctx, src, err)
		}
		if !ok {
			if draining {
				end = deadline
				break
			}
			continue
		}

		if ts < start {
			// Latched between arming and the start reading.
			continue
		}
		if ts < last {
			return nil, errors.HardwareFault(
				fmt.Sprintf("edge at %v precedes previous edge at %v", ts, last), nil).
				SetContext("line", src.Name())
		}
		if isDuration && ts >= deadline {
			end = deadline
			break
		}

		last = ts
		stamps = append(stamps, ts)
		if r.c.onEdge != nil {
			r.c.onEdge(ts)
		}

		if !isDuration && len(stamps) >= policy.Target() {
			end = ts
			break
		}
	}

	return &encoder.Raw{
		EdgeCount:      len(stamps),
		EdgeTimestamps: stamps,
		StartTime:      start,
		EndTime:        end,
	}, nil
}

// classify maps a wait failure onto the acquisition error taxonomy.
func classify(ctx context.Context, src edge.Source, err error) error {
	if ctx.Err() != nil {
		return errors.AcquisitionCancelled(ctx.Err())
	}
	if errors.Is(err, errors.ErrHardwareFault) {
		return err
	}
	return errors.HardwareFault("wait for edge failed", err).SetContext("line", src.Name())
}
