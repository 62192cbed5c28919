// Configuration errors
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package config parses the meter's INI-style configuration file with access
// tracking and typed, bounded getters, and assembles the typed MeterConfig.
package config

import (
	"fmt"

	"shaft-speed-meter/pkg/errors"
)

// Config errors are *errors.MeterError values with a CONFIG_* code and the
// section/option recorded in their context.

func located(code errors.ErrorCode, section, option, message string) *errors.MeterError {
	var e *errors.MeterError
	switch {
	case option != "":
		e = errors.New(code, fmt.Sprintf("option '%s' in section '%s': %s", option, section, message))
	case section != "":
		e = errors.New(code, fmt.Sprintf("section '%s': %s", section, message))
	default:
		e = errors.New(code, message)
	}
	if section != "" {
		e.SetContext("section", section)
	}
	if option != "" {
		e.SetContext("option", option)
	}
	return e
}

// NewConfigError creates a validation error.
func NewConfigError(section, option, message string) *errors.MeterError {
	return located(errors.ErrConfigValidation, section, option, message)
}

// WrapError wraps an existing error with config context.
func WrapError(section, option string, err error) *errors.MeterError {
	e := located(errors.ErrConfigValidation, section, option, err.Error())
	e.Err = err
	return e
}

// ErrMissingOption returns an error for a required but missing option.
func ErrMissingOption(section, option string) *errors.MeterError {
	return located(errors.ErrConfigOption, section, option, "must be specified")
}

// ErrMissingSection returns an error for a missing section.
func ErrMissingSection(section string) *errors.MeterError {
	return errors.ConfigSectionError(section)
}

// ErrInvalidValue returns an error for a value of the wrong type.
func ErrInvalidValue(section, option, value, expected string) *errors.MeterError {
	return located(errors.ErrConfigType, section, option,
		fmt.Sprintf("invalid value '%s', expected %s", value, expected))
}

// ErrOutOfRange returns an error for a value outside the allowed range.
func ErrOutOfRange(section, option string, value float64, constraint string) *errors.MeterError {
	return located(errors.ErrConfigValidation, section, option, fmt.Sprintf("value %v %s", value, constraint))
}

// ErrInvalidChoice returns an error for an invalid choice value.
func ErrInvalidChoice(section, option, value string, choices []string) *errors.MeterError {
	return located(errors.ErrConfigValidation, section, option,
		fmt.Sprintf("'%s' is not a valid choice (valid: %v)", value, choices))
}
