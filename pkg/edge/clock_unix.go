// CLOCK_MONOTONIC reader
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

//go:build linux || darwin

package edge

import (
	"time"

	"golang.org/x/sys/unix"
)

// MonotonicClock reads CLOCK_MONOTONIC, the clock the GPIO character device
// uses for line event timestamps.
type MonotonicClock struct{}

// Now returns the current CLOCK_MONOTONIC reading.
func (MonotonicClock) Now() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return processClock()
	}
	return time.Duration(ts.Nano())
}
