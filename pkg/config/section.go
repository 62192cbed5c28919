// Configuration sections and typed getters
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package config

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Section provides access to a config section with access tracking.
type Section struct {
	name    string
	options map[string]string

	mu       sync.RWMutex
	accessed map[string]struct{}
}

func newSection(name string, options map[string]string) *Section {
	opts := make(map[string]string, len(options))
	for k, v := range options {
		opts[strings.ToLower(k)] = v
	}
	return &Section{
		name:     name,
		options:  opts,
		accessed: make(map[string]struct{}),
	}
}

// GetName returns the section name.
func (s *Section) GetName() string {
	return s.name
}

func (s *Section) markAccessed(option string) {
	s.mu.Lock()
	s.accessed[strings.ToLower(option)] = struct{}{}
	s.mu.Unlock()
}

// lookup returns the raw value and marks the option read.
func (s *Section) lookup(option string) (string, bool) {
	s.markAccessed(option)
	v, ok := s.options[strings.ToLower(option)]
	return v, ok
}

// GetUnusedOptions returns the options that were never read, sorted.
func (s *Section) GetUnusedOptions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []string
	for opt := range s.options {
		if _, ok := s.accessed[opt]; !ok {
			result = append(result, opt)
		}
	}
	sort.Strings(result)
	return result
}

// HasOption checks if an option exists in this section.
func (s *Section) HasOption(option string) bool {
	_, ok := s.options[strings.ToLower(option)]
	return ok
}

// Get returns a string option value.
// If a fallback is given and the option is absent, the fallback is returned;
// otherwise a missing option is an error.
func (s *Section) Get(option string, fallback ...string) (string, error) {
	if v, ok := s.lookup(option); ok {
		return v, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return "", ErrMissingOption(s.name, option)
}

// GetInt returns an integer option value.
func (s *Section) GetInt(option string, fallback ...int) (int, error) {
	if v, ok := s.lookup(option); ok {
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, ErrInvalidValue(s.name, option, v, "integer")
		}
		return i, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return 0, ErrMissingOption(s.name, option)
}

// GetIntWithBounds returns an integer option value with bounds checking.
// Out of range values are rejected, not clamped.
func (s *Section) GetIntWithBounds(option string, minVal, maxVal *int, fallback ...int) (int, error) {
	v, err := s.GetInt(option, fallback...)
	if err != nil {
		return 0, err
	}
	if minVal != nil && v < *minVal {
		return 0, ErrOutOfRange(s.name, option, float64(v), "must have minimum of "+strconv.Itoa(*minVal))
	}
	if maxVal != nil && v > *maxVal {
		return 0, ErrOutOfRange(s.name, option, float64(v), "must have maximum of "+strconv.Itoa(*maxVal))
	}
	return v, nil
}

// GetFloat returns a float64 option value.
func (s *Section) GetFloat(option string, fallback ...float64) (float64, error) {
	if v, ok := s.lookup(option); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, ErrInvalidValue(s.name, option, v, "float")
		}
		return f, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return 0, ErrMissingOption(s.name, option)
}

// FloatBounds specifies bounds for GetFloatWithBounds.
type FloatBounds struct {
	MinVal *float64 // minimum value (>=)
	MaxVal *float64 // maximum value (<=)
	Above  *float64 // must be above this value (>)
}

// GetFloatWithBounds returns a float64 option value with bounds checking.
func (s *Section) GetFloatWithBounds(option string, bounds FloatBounds, fallback ...float64) (float64, error) {
	v, err := s.GetFloat(option, fallback...)
	if err != nil {
		return 0, err
	}
	if bounds.MinVal != nil && v < *bounds.MinVal {
		return 0, ErrOutOfRange(s.name, option, v, "must have minimum of "+formatFloat(*bounds.MinVal))
	}
	if bounds.MaxVal != nil && v > *bounds.MaxVal {
		return 0, ErrOutOfRange(s.name, option, v, "must have maximum of "+formatFloat(*bounds.MaxVal))
	}
	if bounds.Above != nil && v <= *bounds.Above {
		return 0, ErrOutOfRange(s.name, option, v, "must be above "+formatFloat(*bounds.Above))
	}
	return v, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// GetSeconds reads a float number of seconds as a time.Duration. The value
// must be above zero.
func (s *Section) GetSeconds(option string, fallback ...time.Duration) (time.Duration, error) {
	var fb []float64
	if len(fallback) > 0 {
		fb = append(fb, fallback[0].Seconds())
	}
	zero := 0.0
	secs, err := s.GetFloatWithBounds(option, FloatBounds{Above: &zero}, fb...)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// GetBool returns a boolean option value.
// Accepts: 1, true, yes, on (true) and 0, false, no, off (false).
func (s *Section) GetBool(option string, fallback ...bool) (bool, error) {
	if v, ok := s.lookup(option); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true, nil
		case "0", "false", "no", "off":
			return false, nil
		default:
			return false, ErrInvalidValue(s.name, option, v, "boolean (true/false/yes/no/on/off/1/0)")
		}
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return false, ErrMissingOption(s.name, option)
}

// GetChoice returns a string option that must be one of the valid choices.
func (s *Section) GetChoice(option string, choices []string, fallback ...string) (string, error) {
	v, err := s.Get(option, fallback...)
	if err != nil {
		return "", err
	}
	for _, c := range choices {
		if strings.EqualFold(v, c) {
			return c, nil
		}
	}
	return "", ErrInvalidChoice(s.name, option, v, choices)
}
