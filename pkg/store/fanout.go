// Result fan-out
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package store

import (
	"context"

	"shaft-speed-meter/pkg/encoder"
	"shaft-speed-meter/pkg/log"
)

// AppendObserver is told the outcome of every append to every sink.
type AppendObserver func(sink string, err error)

// FanOut appends to a primary sink and then to best-effort mirrors. Only a
// primary failure fails the append; mirror failures are logged and observed.
type FanOut struct {
	primary Sink
	mirrors []Sink
	observe AppendObserver
	logger  *log.Logger
}

// NewFanOut creates a fan-out over primary and mirrors.
func NewFanOut(primary Sink, mirrors ...Sink) *FanOut {
	return &FanOut{
		primary: primary,
		mirrors: mirrors,
		logger:  log.GetLogger("store"),
	}
}

// Observe registers fn to be called after each sink append.
func (f *FanOut) Observe(fn AppendObserver) *FanOut {
	f.observe = fn
	return f
}

// Name identifies the primary sink.
func (f *FanOut) Name() string { return f.primary.Name() }

// Append writes rec to the primary sink, then to each mirror.
func (f *FanOut) Append(ctx context.Context, rec encoder.Record) error {
	err := f.primary.Append(ctx, rec)
	f.notify(f.primary.Name(), err)
	if err != nil {
		return err
	}

	for _, m := range f.mirrors {
		merr := m.Append(ctx, rec)
		f.notify(m.Name(), merr)
		if merr != nil {
			f.logger.WithField("sink", m.Name()).WithError(merr).Warn("mirror append failed")
		}
	}
	return nil
}

func (f *FanOut) notify(sink string, err error) {
	if f.observe != nil {
		f.observe(sink, err)
	}
}
