// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hubbus

import (
	"errors"
	"fmt"
)

var (
	// ErrFraming indicates a short read or a checksum mismatch.
	// Callers retry it; it never describes the device's answer.
	ErrFraming = errors.New("framing error")

	// ErrTimeout indicates that no complete response arrived before the read
	// timeout. It is retried the same way as ErrFraming.
	ErrTimeout = errors.New("response timeout")

	// ErrConnectionLost is the terminal signal of a poller that exceeded its
	// consecutive failure threshold.
	ErrConnectionLost = errors.New("connection lost")
)

// LinkError wraps an I/O failure on the underlying port.
type LinkError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *LinkError) Error() string {
	return fmt.Sprintf("link %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying I/O error.
func (e *LinkError) Unwrap() error {
	return e.Err
}

// ValidationError is a local rejection of operator input. Nothing has been
// written to the device when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ExceptionError is a Modbus exception reply from the device.
type ExceptionError struct {
	Function byte
	Code     byte
}

// Error implements error.
func (e *ExceptionError) Error() string {
	return fmt.Sprintf("device exception: function=0x%02X code=0x%02X", e.Function, e.Code)
}

// IsRetryable reports whether err is a transient protocol failure that the
// calling layer may retry within its budget.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrFraming) || errors.Is(err, ErrTimeout) {
		return true
	}
	var exc *ExceptionError
	return errors.As(err, &exc)
}

// IsLinkError reports whether err carries a *LinkError.
func IsLinkError(err error) bool {
	var le *LinkError
	return errors.As(err, &le)
}

func framingErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrFraming, fmt.Sprintf(format, args...))
}
