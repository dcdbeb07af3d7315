// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hubbus

import (
	"fmt"
	"strings"
)

// Parity represents the parity setting of a serial link
type Parity int

// Parity values, numbered as the device reports them in its announcement
const (
	ParityNone Parity = 0
	ParityOdd  Parity = 1
	ParityEven Parity = 2
)

// String returns the single letter used in "8N1" notation
func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "N"
	case ParityOdd:
		return "O"
	case ParityEven:
		return "E"
	default:
		return "?"
	}
}

// ParseParity accepts "none", "odd", "even" or their first letter.
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "n", "none", "":
		return ParityNone, nil
	case "o", "odd":
		return ParityOdd, nil
	case "e", "even":
		return ParityEven, nil
	}
	return ParityNone, fmt.Errorf("unknown parity %q", s)
}

// LinkConfig is the set of serial line parameters of a link.
// It is a value type; changing it requires reconfiguring the port.
type LinkConfig struct {
	BaudRate int
	DataBits int
	Parity   Parity
	StopBits int
}

// Well-known link configurations
var (
	// BootstrapLink is used to listen for discovery announcements.
	BootstrapLink = LinkConfig{BaudRate: 9600, DataBits: 8, Parity: ParityNone, StopBits: 1}

	// UpdateLink is the fixed configuration of the bootloader.
	UpdateLink = LinkConfig{BaudRate: 115200, DataBits: 8, Parity: ParityNone, StopBits: 1}
)

// Validate checks that every field holds a value the device supports
func (c LinkConfig) Validate() error {
	if c.BaudRate <= 0 {
		return &ValidationError{Field: "baud", Message: fmt.Sprintf("baud rate must be positive, got %d", c.BaudRate)}
	}
	if c.DataBits != 7 && c.DataBits != 8 {
		return &ValidationError{Field: "data_bits", Message: fmt.Sprintf("data bits must be 7 or 8, got %d", c.DataBits)}
	}
	if c.Parity < ParityNone || c.Parity > ParityEven {
		return &ValidationError{Field: "parity", Message: fmt.Sprintf("invalid parity code %d", c.Parity)}
	}
	if c.StopBits != 1 && c.StopBits != 2 {
		return &ValidationError{Field: "stop_bits", Message: fmt.Sprintf("stop bits must be 1 or 2, got %d", c.StopBits)}
	}
	return nil
}

// String formats the configuration as "115200 8N1"
func (c LinkConfig) String() string {
	return fmt.Sprintf("%d %d%s%d", c.BaudRate, c.DataBits, c.Parity, c.StopBits)
}
