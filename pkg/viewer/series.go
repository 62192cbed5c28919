// Measurement series
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package viewer presents the result store as three time series (RPM, rad/s
// and Hz), either rendered to a terminal or pushed to browsers.
package viewer

import (
	"sync"

	"shaft-speed-meter/pkg/encoder"
	"shaft-speed-meter/pkg/store"
)

// Series holds the records read from the store so far.
type Series struct {
	mu      sync.RWMutex
	records []encoder.Record
	limit   int
	skipped int
}

// NewSeries creates a series keeping at most limit records; 0 keeps all.
func NewSeries(limit int) *Series {
	return &Series{limit: limit}
}

// Apply merges a tailer batch. A reset batch replaces the whole series.
// It reports whether the series changed.
func (s *Series) Apply(b store.Batch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := b.Reset && len(s.records) > 0
	if b.Reset {
		s.records = s.records[:0]
		s.skipped = 0
	}
	s.skipped += b.Skipped
	if len(b.Records) > 0 {
		s.records = append(s.records, b.Records...)
		changed = true
	}
	if s.limit > 0 && len(s.records) > s.limit {
		s.records = append(s.records[:0:0], s.records[len(s.records)-s.limit:]...)
	}
	return changed
}

// Records returns a copy of the series.
func (s *Series) Records() []encoder.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]encoder.Record(nil), s.records...)
}

// Last returns up to n of the most recent records.
func (s *Series) Last(n int) []encoder.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.records) {
		n = len(s.records)
	}
	return append([]encoder.Record(nil), s.records[len(s.records)-n:]...)
}

// Latest returns the newest record.
func (s *Series) Latest() (encoder.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return encoder.Record{}, false
	}
	return s.records[len(s.records)-1], true
}

// Len returns the number of records held.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Skipped returns the number of malformed rows seen since the last reset.
func (s *Series) Skipped() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.skipped
}
