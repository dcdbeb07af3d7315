// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package calibration

import (
	"fmt"
	"math"
	"strconv"

	"github.com/Thermoquad/umvh/pkg/hubbus"
)

// Points holds two (raw, target) calibration pairs
type Points struct {
	X1, Y1 uint16
	X2, Y2 uint16
}

// Registers returns the values in point register order: x1, y1, x2, y2
func (p Points) Registers() [4]uint16 {
	return [4]uint16{p.X1, p.Y1, p.X2, p.Y2}
}

func (p Points) String() string {
	return fmt.Sprintf("(%d, %d) (%d, %d)", p.X1, p.Y1, p.X2, p.Y2)
}

// CheckSlope rejects a curve that descends on either axis: x1 > x2 or y1 > y2.
func CheckSlope(p Points) error {
	if p.X1 > p.X2 {
		return &hubbus.ValidationError{Field: "slope", Message: fmt.Sprintf("raw x1=%d above x2=%d", p.X1, p.X2)}
	}
	if p.Y1 > p.Y2 {
		return &hubbus.ValidationError{Field: "slope", Message: fmt.Sprintf("target y1=%d above y2=%d", p.Y1, p.Y2)}
	}
	return nil
}

// Interpolate maps a live raw reading through the line between the two
// points. Equal x values yield y1. The result is clamped to 0..65535.
func Interpolate(p Points, v uint16) uint16 {
	if p.X1 == p.X2 {
		return p.Y1
	}
	x1, y1, x2, y2 := int64(p.X1), int64(p.Y1), int64(p.X2), int64(p.Y2)
	y := y1 + (int64(v)-x1)*(y2-y1)/(x2-x1)
	switch {
	case y < 0:
		return 0
	case y > 0xFFFF:
		return 0xFFFF
	}
	return uint16(y)
}

// Sensor type codes with scaled readings
const (
	SensorTenths     = 0x02
	SensorHundredthA = 0x04
	SensorHundredthB = 0x06
)

// Decimals returns the number of decimal places of a sensor type's readings
func Decimals(sensor int) int {
	switch sensor {
	case SensorHundredthA, SensorHundredthB:
		return 2
	case SensorTenths:
		return 1
	default:
		return 0
	}
}

// Scale converts a raw register value to engineering units
func Scale(raw uint16, sensor int) float64 {
	switch Decimals(sensor) {
	case 2:
		return float64(raw) / 100
	case 1:
		return float64(raw) / 10
	default:
		return float64(raw)
	}
}

// FormatValue renders a raw value in engineering units with the sensor
// type's decimal places
func FormatValue(raw uint16, sensor int) string {
	return strconv.FormatFloat(Scale(raw, sensor), 'f', Decimals(sensor), 64)
}

// ParseTarget converts a value in engineering units to its register form,
// the inverse of FormatValue. It rounds to the sensor type's precision.
func ParseTarget(s string, sensor int) (uint16, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &hubbus.ValidationError{Field: "target", Message: fmt.Sprintf("invalid number %q", s)}
	}
	raw := math.Round(f * math.Pow10(Decimals(sensor)))
	if raw < 0 || raw > math.MaxUint16 {
		return 0, &hubbus.ValidationError{Field: "target", Message: fmt.Sprintf("target %s outside the register range", s)}
	}
	return uint16(raw), nil
}
