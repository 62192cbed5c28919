// Monotonic clock fallback
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

//go:build !linux && !darwin

package edge

import "time"

// MonotonicClock reads the Go runtime's monotonic clock relative to process
// start on platforms without CLOCK_MONOTONIC.
type MonotonicClock struct{}

// Now returns the time since process start.
func (MonotonicClock) Now() time.Duration {
	return processClock()
}
