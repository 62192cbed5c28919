// Edge timestamp clocks
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package edge

import "time"

var processStart = time.Now()

// processClock is a monotonic fallback derived from the runtime clock.
func processClock() time.Duration {
	return time.Since(processStart)
}
