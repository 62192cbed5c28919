// Input line descriptor parsing
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package config

import (
	"fmt"
	"strconv"
	"strings"

	"shaft-speed-meter/pkg/edge"
)

// DefaultChip is used when a line spec has no chip prefix.
const DefaultChip = "gpiochip0"

// ParseLine parses a line specification into chip, offset, bias and
// polarity. Format: [^|~][!][chip:]offset
// Examples: "17", "^17", "~!gpiochip1:4", "^gpiochip0:17"
//
// ^ requests the pull-up, ~ the pull-down, ! makes the line active-low.
// Other LineConfig fields are taken from base.
func ParseLine(desc string, base edge.LineConfig) (edge.LineConfig, error) {
	d := strings.TrimSpace(desc)
	if d == "" {
		return edge.LineConfig{}, fmt.Errorf("empty line specification")
	}

	cfg := base
	cfg.Chip = DefaultChip
	cfg.Bias = edge.BiasAsIs
	cfg.ActiveLow = false

	switch d[0] {
	case '^':
		cfg.Bias = edge.BiasPullUp
		d = strings.TrimSpace(d[1:])
	case '~':
		cfg.Bias = edge.BiasPullDown
		d = strings.TrimSpace(d[1:])
	}

	if strings.HasPrefix(d, "!") {
		cfg.ActiveLow = true
		d = strings.TrimSpace(d[1:])
	}

	if chip, offset, ok := strings.Cut(d, ":"); ok {
		cfg.Chip = strings.TrimSpace(chip)
		d = strings.TrimSpace(offset)
		if cfg.Chip == "" {
			return edge.LineConfig{}, fmt.Errorf("empty chip name in line specification %q", desc)
		}
	}

	if d == "" {
		return edge.LineConfig{}, fmt.Errorf("missing line offset in specification %q", desc)
	}
	if strings.ContainsAny(d, "^~!:") {
		return edge.LineConfig{}, fmt.Errorf("invalid characters in line specification %q", desc)
	}
	offset, err := strconv.Atoi(d)
	if err != nil || offset < 0 {
		return edge.LineConfig{}, fmt.Errorf("line offset must be a non-negative integer in %q", desc)
	}
	cfg.Offset = offset
	return cfg, nil
}

// FormatLine renders cfg back into the ParseLine syntax.
func FormatLine(cfg edge.LineConfig) string {
	var sb strings.Builder
	switch cfg.Bias {
	case edge.BiasPullUp:
		sb.WriteByte('^')
	case edge.BiasPullDown:
		sb.WriteByte('~')
	}
	if cfg.ActiveLow {
		sb.WriteByte('!')
	}
	sb.WriteString(cfg.Chip)
	sb.WriteByte(':')
	sb.WriteString(strconv.Itoa(cfg.Offset))
	return sb.String()
}

// GetLine returns a line option value from the section.
func (s *Section) GetLine(option string, base edge.LineConfig) (edge.LineConfig, error) {
	v, ok := s.lookup(option)
	if !ok {
		return base, nil
	}
	cfg, err := ParseLine(v, base)
	if err != nil {
		return edge.LineConfig{}, WrapError(s.name, option, err)
	}
	return cfg, nil
}
