// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package calibration packs port/sensor bindings and runs the two-point and
// four-point linear calibration workflows against the hub's registers.
//
// Port numbers in this package are operator-facing. Ports 1 and 2 are wired
// in swapped order on the hub, so every port number is passed through
// SwapPort where it enters or leaves device register space.
package calibration

import (
	"fmt"

	"github.com/Thermoquad/umvh/pkg/hubbus"
)

// Mode is the calibration mode stored in bit 15 of a binding
type Mode int

const (
	ModeTwoPoint  Mode = 0
	ModeFourPoint Mode = 1
)

func (m Mode) String() string {
	if m == ModeFourPoint {
		return "4-point"
	}
	return "2-point"
}

const (
	modeBit    = 1 << 15
	portShift  = 4
	nibbleMask = 0x0F

	// MaxPort and MaxSensor are the largest values a binding nibble holds
	MaxPort   = 15
	MaxSensor = 15
)

// SwapPort maps an operator port to a device port and back.
// Ports 1 and 2 trade places; every other port is unchanged.
func SwapPort(p int) int {
	switch p {
	case 1:
		return 2
	case 2:
		return 1
	default:
		return p
	}
}

// Binding ties a sensor type to a port, with the calibration mode in use
type Binding struct {
	Mode   Mode
	Port   int
	Sensor int
}

// Validate checks that port and sensor fit in their nibbles
func (b Binding) Validate() error {
	if b.Port < 0 || b.Port > MaxPort {
		return &hubbus.ValidationError{Field: "port", Message: fmt.Sprintf("port %d outside 0..%d", b.Port, MaxPort)}
	}
	if b.Sensor < 0 || b.Sensor > MaxSensor {
		return &hubbus.ValidationError{Field: "sensor", Message: fmt.Sprintf("sensor code %d outside 0..%d", b.Sensor, MaxSensor)}
	}
	if b.Mode != ModeTwoPoint && b.Mode != ModeFourPoint {
		return &hubbus.ValidationError{Field: "mode", Message: fmt.Sprintf("unknown mode %d", b.Mode)}
	}
	return nil
}

// Encode packs the binding as stored, without any port swap:
// bit 15 mode, bits 4-7 port, bits 0-3 sensor code.
func (b Binding) Encode() uint16 {
	v := uint16(b.Port&nibbleMask)<<portShift | uint16(b.Sensor&nibbleMask)
	if b.Mode == ModeFourPoint {
		v |= modeBit
	}
	return v
}

// DecodeBinding unpacks a stored binding, without any port swap
func DecodeBinding(v uint16) Binding {
	b := Binding{
		Port:   int(v>>portShift) & nibbleMask,
		Sensor: int(v) & nibbleMask,
	}
	if v&modeBit != 0 {
		b.Mode = ModeFourPoint
	}
	return b
}

// DeviceValue returns the register value for an operator-facing binding
func (b Binding) DeviceValue() uint16 {
	d := b
	d.Port = SwapPort(b.Port)
	return d.Encode()
}

// BindingFromDevice decodes a register value into an operator-facing binding
func BindingFromDevice(v uint16) Binding {
	b := DecodeBinding(v)
	b.Port = SwapPort(b.Port)
	return b
}

// Cleared returns the non-calibrated form of the binding: same port,
// two-point mode and sensor code 0
func (b Binding) Cleared() Binding {
	return Binding{Mode: ModeTwoPoint, Port: b.Port}
}

func (b Binding) String() string {
	return fmt.Sprintf("port %d sensor 0x%02X %s", b.Port, b.Sensor, b.Mode)
}
