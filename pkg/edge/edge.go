// Rising-edge sources
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package edge provides rising-edge sources for a single input line.
//
// A Source is armed to obtain a Handle; the Handle yields edge timestamps
// read from the same monotonic clock as Source.Now. Hardware callbacks only
// enqueue timestamps into a bounded Queue that Handle.Wait drains.
package edge

import (
	"context"
	"time"
)

// NoTimeout makes Handle.Wait block until an edge, a fault or cancellation.
const NoTimeout time.Duration = -1

// Clock reads a monotonic time point. Readings are only meaningful relative
// to each other.
type Clock interface {
	Now() time.Duration
}

// Source is a single input line capable of rising-edge detection.
type Source interface {
	Clock

	// Arm registers edge detection. It fails with a LINE_UNAVAILABLE error
	// when the line cannot be requested.
	Arm(ctx context.Context) (Handle, error)

	// Name identifies the line in logs and errors.
	Name() string
}

// Handle is an armed edge-detection registration.
type Handle interface {
	// Wait returns the timestamp of the next rising edge. ok is false when
	// timeout elapsed first. A timeout of NoTimeout waits indefinitely.
	// Faults are reported as HARDWARE_FAULT errors; cancellation returns
	// ctx.Err().
	Wait(ctx context.Context, timeout time.Duration) (ts time.Duration, ok bool, err error)

	// Release removes the registration. It is idempotent and never fails.
	Release()
}
