// Rate derivation
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package rate converts raw edge counts into frequency and angular velocity.
package rate

import (
	"math"

	"shaft-speed-meter/pkg/encoder"
	"shaft-speed-meter/pkg/errors"
)

// Derive computes frequency (Hz), angular velocity (RPM) and angular velocity
// (rad/s) from a raw acquisition.
//
// A zero elapsed time yields an all-zero Rate and no error. A pulse-target
// policy divides by the measured elapsed time; a duration policy divides by
// the requested duration. No rounding is applied.
func Derive(raw *encoder.Raw, cfg encoder.Config, policy encoder.Policy) (encoder.Rate, error) {
	if err := cfg.Validate(); err != nil {
		return encoder.Rate{}, err
	}
	if raw == nil {
		return encoder.Rate{}, errors.InvalidConfiguration("no acquisition to derive from")
	}

	elapsed := raw.Elapsed()
	if elapsed == 0 {
		return encoder.Rate{}, nil
	}

	var denom float64
	switch policy.Method() {
	case encoder.MethodDuration:
		denom = policy.Duration().Seconds()
	case encoder.MethodPulseTarget:
		denom = elapsed.Seconds()
	default:
		return encoder.Rate{}, errors.InvalidConfiguration("acquisition policy not set")
	}
	if denom <= 0 {
		return encoder.Rate{}, errors.InvalidConfiguration("rate denominator must be positive")
	}

	count := float64(raw.EdgeCount)
	rpm := (count * 60) / (denom * float64(cfg.Resolution))
	return encoder.Rate{
		FrequencyHz: count / denom,
		RPM:         rpm,
		RadPerSec:   rpm * 2 * math.Pi / 60,
	}, nil
}
