// GPIO line source stub for non-Linux hosts
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

//go:build !linux

package edge

import (
	"context"
	stderrors "errors"
	"time"

	"shaft-speed-meter/pkg/errors"
)

var errNoCharDev = stderrors.New("GPIO character devices are only available on Linux")

// LineSource is unavailable outside Linux; Arm always fails.
type LineSource struct {
	cfg   LineConfig
	clock MonotonicClock
}

// NewLineSource creates a source that reports the line as unavailable.
func NewLineSource(cfg LineConfig) *LineSource {
	return &LineSource{cfg: cfg}
}

// Name returns chip:offset.
func (s *LineSource) Name() string { return s.cfg.Name() }

// Now reads the monotonic clock.
func (s *LineSource) Now() time.Duration { return s.clock.Now() }

// Arm always fails with LINE_UNAVAILABLE.
func (s *LineSource) Arm(ctx context.Context) (Handle, error) {
	return nil, errors.LineUnavailable(s.Name(), errNoCharDev)
}
