// Unified error handling for the shaft speed meter
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Configuration file errors
	ErrConfigSection    ErrorCode = "CONFIG_SECTION"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrConfigType       ErrorCode = "CONFIG_TYPE"

	// Measurement parameters rejected before acquisition starts
	ErrInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"

	// Edge source errors
	ErrLineUnavailable ErrorCode = "LINE_UNAVAILABLE"
	ErrHardwareFault   ErrorCode = "HARDWARE_FAULT"

	// Acquisition control
	ErrAcquisitionCancelled ErrorCode = "ACQUISITION_CANCELLED"
	ErrAcquisitionBusy      ErrorCode = "ACQ_BUSY"

	// Result store errors
	ErrStoreWrite ErrorCode = "STORE_WRITE"
	ErrStoreRead  ErrorCode = "STORE_READ"
)

// MeterError is the unified error type for the meter
type MeterError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}
}

// Error implements the error interface
func (e *MeterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *MeterError) Unwrap() error {
	return e.Err
}

// SetContext adds additional context
func (e *MeterError) SetContext(key string, value interface{}) *MeterError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Wrap wraps an existing error with a code and message
func Wrap(err error, code ErrorCode, message string) *MeterError {
	return &MeterError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// New creates a new MeterError
func New(code ErrorCode, message string) *MeterError {
	return &MeterError{
		Code:    code,
		Message: message,
	}
}

// Config errors

// ConfigSectionError creates an error for missing config section
func ConfigSectionError(section string) *MeterError {
	return New(ErrConfigSection, fmt.Sprintf("section '%s' not found", section)).
		SetContext("section", section)
}

// ConfigValidationError creates an error for config validation failure
func ConfigValidationError(section, option string, reason string) *MeterError {
	return New(ErrConfigValidation, fmt.Sprintf("option '%s' in section '%s': %s", option, section, reason)).
		SetContext("section", section).
		SetContext("option", option)
}

// Measurement errors

// InvalidConfiguration creates an error for a rejected resolution or policy
// parameter.
func InvalidConfiguration(reason string) *MeterError {
	return New(ErrInvalidConfiguration, reason)
}

// LineUnavailable creates an error for an input line that cannot be armed.
func LineUnavailable(line string, err error) *MeterError {
	return Wrap(err, ErrLineUnavailable, fmt.Sprintf("cannot arm edge detection on %s", line)).
		SetContext("line", line)
}

// HardwareFault creates an error for a fault reported while waiting for edges.
func HardwareFault(reason string, err error) *MeterError {
	return Wrap(err, ErrHardwareFault, reason)
}

// AcquisitionCancelled creates an error for a deliberately aborted acquisition.
func AcquisitionCancelled(err error) *MeterError {
	return Wrap(err, ErrAcquisitionCancelled, "acquisition cancelled")
}

// AcquisitionBusy creates an error for a second acquisition on an owned line.
func AcquisitionBusy() *MeterError {
	return New(ErrAcquisitionBusy, "another acquisition already owns the input line")
}

// Store errors

// StoreWriteError creates an error for a failed store append or initialize.
func StoreWriteError(path string, err error) *MeterError {
	return Wrap(err, ErrStoreWrite, fmt.Sprintf("write %s", path)).
		SetContext("path", path)
}

// StoreReadError creates an error for a failed store read.
func StoreReadError(path string, err error) *MeterError {
	return Wrap(err, ErrStoreRead, fmt.Sprintf("read %s", path)).
		SetContext("path", path)
}

// Is checks if any error in the chain carries the given code
func Is(err error, code ErrorCode) bool {
	var me *MeterError
	for err != nil {
		if !stderrors.As(err, &me) {
			return false
		}
		if me.Code == code {
			return true
		}
		err = me.Err
	}
	return false
}

// CodeOf returns the code of the outermost MeterError in the chain, or "".
func CodeOf(err error) ErrorCode {
	var me *MeterError
	if stderrors.As(err, &me) {
		return me.Code
	}
	return ""
}

// IsConfig checks if error is a config error
func IsConfig(err error) bool {
	return Is(err, ErrConfigSection) ||
		Is(err, ErrConfigOption) ||
		Is(err, ErrConfigValidation) ||
		Is(err, ErrConfigType) ||
		Is(err, ErrInvalidConfiguration)
}

// IsCancelled reports whether err is a deliberate abort.
func IsCancelled(err error) bool {
	return Is(err, ErrAcquisitionCancelled)
}

// IsHardware reports whether err came from the edge source.
func IsHardware(err error) bool {
	return Is(err, ErrLineUnavailable) || Is(err, ErrHardwareFault)
}

// Retryable reports whether the caller may reasonably re-run the operation.
// The meter itself never retries.
func Retryable(err error) bool {
	return Is(err, ErrLineUnavailable) || Is(err, ErrAcquisitionBusy)
}
