// Terminal chart renderer
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package viewer

import (
	"fmt"
	"io"
	"math"
	"strings"

	"shaft-speed-meter/pkg/encoder"
	"shaft-speed-meter/pkg/store"
)

// Panel is one plotted quantity.
type Panel struct {
	Title string
	Unit  string
	Value func(encoder.Rate) float64
}

// Panels are drawn top to bottom.
var Panels = []Panel{
	{"Angular Velocity (RPM)", "RPM", func(r encoder.Rate) float64 { return r.RPM }},
	{"Angular Velocity (rad/s)", "Rad/s", func(r encoder.Rate) float64 { return r.RadPerSec }},
	{"Frequency (Hz)", "Hz", func(r encoder.Rate) float64 { return r.FrequencyHz }},
}

// RenderOptions sizes the plot area of each panel.
type RenderOptions struct {
	Width  int
	Height int
}

// DefaultRenderOptions fits an 80 column terminal.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{Width: 64, Height: 6}
}

// Render draws the three panels for records. Nothing is written when there
// are no records. Only the newest Width records are plotted.
func Render(w io.Writer, records []encoder.Record, opts RenderOptions) error {
	if len(records) == 0 {
		return nil
	}
	if opts.Width < 2 {
		opts.Width = 2
	}
	if opts.Height < 2 {
		opts.Height = 2
	}
	if len(records) > opts.Width {
		records = records[len(records)-opts.Width:]
	}

	var b strings.Builder
	for i, p := range Panels {
		values := make([]float64, len(records))
		for j, rec := range records {
			values[j] = p.Value(rec.Rate)
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		plot(&b, p, values, opts.Height)
	}

	first := records[0].Timestamp.Format(store.TimestampLayout)
	last := records[len(records)-1].Timestamp.Format(store.TimestampLayout)
	fmt.Fprintf(&b, "%10s  %s .. %s (%d records)\n", "Timestamp", first, last, len(records))

	_, err := io.WriteString(w, b.String())
	return err
}

func plot(b *strings.Builder, p Panel, values []float64, height int) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if finite(v) {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if lo > hi {
		lo, hi = 0, 0
	}
	span := hi - lo

	grid := make([][]byte, height)
	for r := range grid {
		grid[r] = []byte(strings.Repeat(" ", len(values)))
	}
	for c, v := range values {
		// Non-finite values leave a gap in the column.
		if !finite(v) {
			continue
		}
		row := height / 2
		if span > 0 {
			row = int(math.Round((v - lo) / span * float64(height-1)))
		}
		grid[height-1-row][c] = '*'
	}

	fmt.Fprintf(b, "%s\n", p.Title)
	for r, line := range grid {
		label := ""
		switch r {
		case 0:
			label = fmt.Sprintf("%.3f", hi)
		case height - 1:
			label = fmt.Sprintf("%.3f", lo)
		case height / 2:
			label = p.Unit
		}
		fmt.Fprintf(b, "%10s |%s\n", label, strings.TrimRight(string(line), " "))
	}
	fmt.Fprintf(b, "%10s +%s\n", "", strings.Repeat("-", len(values)))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
