// Measurement data model
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package encoder holds the measurement data model shared by the pulse
// counter, the rate calculator and the result store.
package encoder

import (
	"fmt"
	"time"

	"shaft-speed-meter/pkg/errors"
)

// Config describes the encoder fitted to the shaft.
type Config struct {
	// Resolution is the number of pulses per mechanical revolution.
	Resolution int
}

// Validate rejects a non-positive resolution.
func (c Config) Validate() error {
	if c.Resolution <= 0 {
		return errors.InvalidConfiguration(fmt.Sprintf("encoder resolution must be positive, got %d", c.Resolution)).
			SetContext("resolution", c.Resolution)
	}
	return nil
}

// Method identifies the acquisition policy variant.
type Method int

const (
	MethodDuration Method = iota + 1
	MethodPulseTarget
)

// Labels written to the result store.
const (
	LabelDuration    = "Fixed Time Interval"
	LabelPulseTarget = "Fixed Pulse Count"
)

// String returns the store label for the method.
func (m Method) String() string {
	switch m {
	case MethodDuration:
		return LabelDuration
	case MethodPulseTarget:
		return LabelPulseTarget
	default:
		return "unknown"
	}
}

// Short returns a compact name used for metric labels and logs.
func (m Method) Short() string {
	switch m {
	case MethodDuration:
		return "duration"
	case MethodPulseTarget:
		return "pulse_target"
	default:
		return "unknown"
	}
}

// ParseMethod maps a store label back to its Method.
func ParseMethod(label string) (Method, error) {
	switch label {
	case LabelDuration:
		return MethodDuration, nil
	case LabelPulseTarget:
		return MethodPulseTarget, nil
	default:
		return 0, fmt.Errorf("unknown method label %q", label)
	}
}

// Limits bounds the policy parameters accepted by the meter.
type Limits struct {
	MaxDuration time.Duration
	MaxPulses   int
}

// DefaultLimits returns the bounds offered by the interactive menu.
func DefaultLimits() Limits {
	return Limits{
		MaxDuration: 9 * time.Second,
		MaxPulses:   100,
	}
}

// Policy selects when an acquisition stops. Construct it with DurationPolicy
// or PulseTargetPolicy; the zero value is invalid.
type Policy struct {
	method   Method
	duration time.Duration
	target   int
}

// DurationPolicy stops after a fixed time budget regardless of the count.
func DurationPolicy(d time.Duration) Policy {
	return Policy{method: MethodDuration, duration: d}
}

// PulseTargetPolicy stops once n edges have been observed.
func PulseTargetPolicy(n int) Policy {
	return Policy{method: MethodPulseTarget, target: n}
}

// Method returns the active variant.
func (p Policy) Method() Method { return p.method }

// Duration returns the requested duration of a duration policy.
func (p Policy) Duration() time.Duration { return p.duration }

// Target returns the edge count of a pulse-target policy.
func (p Policy) Target() int { return p.target }

// Validate checks the active variant's parameter against the limits.
// Out of range values are rejected, never clamped.
func (p Policy) Validate(l Limits) error {
	switch p.method {
	case MethodDuration:
		if p.duration <= 0 {
			return errors.InvalidConfiguration(fmt.Sprintf("duration must be positive, got %v", p.duration))
		}
		if l.MaxDuration > 0 && p.duration > l.MaxDuration {
			return errors.InvalidConfiguration(fmt.Sprintf("duration %v exceeds limit %v", p.duration, l.MaxDuration))
		}
	case MethodPulseTarget:
		if p.target <= 0 {
			return errors.InvalidConfiguration(fmt.Sprintf("pulse target must be positive, got %d", p.target))
		}
		if l.MaxPulses > 0 && p.target > l.MaxPulses {
			return errors.InvalidConfiguration(fmt.Sprintf("pulse target %d exceeds limit %d", p.target, l.MaxPulses))
		}
	default:
		return errors.InvalidConfiguration("acquisition policy not set")
	}
	return nil
}

// String describes the policy for logs.
func (p Policy) String() string {
	switch p.method {
	case MethodDuration:
		return fmt.Sprintf("duration(%v)", p.duration)
	case MethodPulseTarget:
		return fmt.Sprintf("pulse_target(%d)", p.target)
	default:
		return "policy(unset)"
	}
}

// Raw is the result of one acquisition. Times are readings of the edge
// source's monotonic clock.
type Raw struct {
	EdgeCount      int
	EdgeTimestamps []time.Duration
	StartTime      time.Duration
	EndTime        time.Duration
}

// Elapsed returns EndTime - StartTime.
func (r *Raw) Elapsed() time.Duration {
	return r.EndTime - r.StartTime
}

// Rate holds the physical quantities derived from a Raw acquisition.
type Rate struct {
	FrequencyHz float64
	RPM         float64
	RadPerSec   float64
}

// IsZero reports whether all three quantities are zero.
func (r Rate) IsZero() bool {
	return r.FrequencyHz == 0 && r.RPM == 0 && r.RadPerSec == 0
}

// Record is one completed measurement as appended to the result store.
type Record struct {
	Timestamp time.Time
	Method    Method
	Rate      Rate
}
