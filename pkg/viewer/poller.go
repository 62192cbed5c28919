// Result store poller
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package viewer

import (
	"context"
	"time"

	"shaft-speed-meter/pkg/encoder"
	"shaft-speed-meter/pkg/log"
	"shaft-speed-meter/pkg/store"
)

// Update describes one change applied to a Series.
type Update struct {
	Records []encoder.Record
	Skipped int
	Reset   bool
}

// Poller re-reads the store on a fixed interval and feeds a Series.
type Poller struct {
	tailer   *store.Tailer
	series   *Series
	interval time.Duration
	logger   *log.Logger
}

// NewPoller creates a poller tailing path into series.
func NewPoller(path string, series *Series, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{
		tailer:   store.NewTailer(path),
		series:   series,
		interval: interval,
		logger:   log.GetLogger("viewer"),
	}
}

// Series returns the series being fed.
func (p *Poller) Series() *Series { return p.series }

// Poll reads the store once. ok is false when nothing changed.
func (p *Poller) Poll() (Update, bool, error) {
	batch, err := p.tailer.Next()
	if err != nil {
		return Update{}, false, err
	}
	if batch.Skipped > 0 {
		p.logger.WithField("rows", batch.Skipped).Warn("skipped malformed rows")
	}
	if !p.series.Apply(batch) {
		return Update{}, false, nil
	}
	return Update{Records: batch.Records, Skipped: batch.Skipped, Reset: batch.Reset}, true, nil
}

// Run polls immediately and then every interval until ctx is done, calling
// onUpdate for every change. Read errors are logged and polling continues.
func (p *Poller) Run(ctx context.Context, onUpdate func(Update)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		u, ok, err := p.Poll()
		switch {
		case err != nil:
			p.logger.WithError(err).Warn("store read failed")
		case ok && onUpdate != nil:
			onUpdate(u)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
