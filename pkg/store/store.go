// Result store rows and sinks
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package store persists measurement records: an append-only CSV file that
// is the source of truth, plus optional mirrors fed through a FanOut.
package store

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"shaft-speed-meter/pkg/encoder"
)

// TimestampLayout is the wall-clock format of the first CSV column.
const TimestampLayout = "02/01/2006, 15:04:05"

// Header is the first row of every CSV store.
var Header = []string{
	"Timestamp",
	"Method",
	"Frequency (Hz)",
	"Angular Velocity (RPM)",
	"Angular Velocity (rad/s)",
}

// Sink receives completed measurement records.
type Sink interface {
	Append(ctx context.Context, rec encoder.Record) error
	Name() string
}

// FormatRow renders rec as the five CSV fields, numbers with three decimals.
func FormatRow(rec encoder.Record) []string {
	return []string{
		rec.Timestamp.Format(TimestampLayout),
		rec.Method.String(),
		formatValue(rec.Rate.FrequencyHz),
		formatValue(rec.Rate.RPM),
		formatValue(rec.Rate.RadPerSec),
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// ParseRow is the inverse of FormatRow. The timestamp is interpreted in
// loc.
func ParseRow(row []string, loc *time.Location) (encoder.Record, error) {
	if len(row) != len(Header) {
		return encoder.Record{}, fmt.Errorf("expected %d fields, got %d", len(Header), len(row))
	}
	ts, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(row[0]), loc)
	if err != nil {
		return encoder.Record{}, fmt.Errorf("timestamp: %w", err)
	}
	method, err := encoder.ParseMethod(strings.TrimSpace(row[1]))
	if err != nil {
		return encoder.Record{}, err
	}

	var vals [3]float64
	for i := range vals {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[2+i]), 64)
		if err != nil {
			return encoder.Record{}, fmt.Errorf("%s: %w", Header[2+i], err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return encoder.Record{}, fmt.Errorf("%s: non-finite value %q", Header[2+i], row[2+i])
		}
		vals[i] = v
	}

	return encoder.Record{
		Timestamp: ts,
		Method:    method,
		Rate: encoder.Rate{
			FrequencyHz: vals[0],
			RPM:         vals[1],
			RadPerSec:   vals[2],
		},
	}, nil
}

func isHeader(row []string) bool {
	return len(row) > 0 && strings.TrimSpace(row[0]) == Header[0]
}
