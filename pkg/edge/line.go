// GPIO line request configuration
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package edge

import "fmt"

// Bias selects the line's internal resistor.
type Bias int

const (
	BiasAsIs Bias = iota
	BiasPullUp
	BiasPullDown
	BiasDisabled
)

// String returns the bias name used in logs.
func (b Bias) String() string {
	switch b {
	case BiasPullUp:
		return "pull-up"
	case BiasPullDown:
		return "pull-down"
	case BiasDisabled:
		return "disabled"
	default:
		return "as-is"
	}
}

// LineConfig identifies a GPIO character device line and how to request it.
type LineConfig struct {
	Chip      string // e.g. "gpiochip0"
	Offset    int    // line offset on the chip, e.g. 17
	Bias      Bias
	ActiveLow bool
	Consumer  string // label shown by gpioinfo while the line is requested
	QueueSize int
}

// DefaultLineConfig returns the wiring of the reference rig: BCM 17 with the
// pull-up enabled.
func DefaultLineConfig() LineConfig {
	return LineConfig{
		Chip:      "gpiochip0",
		Offset:    17,
		Bias:      BiasPullUp,
		Consumer:  "speedmeter",
		QueueSize: DefaultQueueSize,
	}
}

// Name returns chip:offset.
func (c LineConfig) Name() string {
	return fmt.Sprintf("%s:%d", c.Chip, c.Offset)
}
