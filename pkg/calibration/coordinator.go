// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package calibration

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/umvh/pkg/hubbus"
	"github.com/Thermoquad/umvh/pkg/registers"
)

// CommitValue is written to the commit register to latch the points
const CommitValue = 1

// Password optionally unlocks a commit
type Password struct {
	value int
	set   bool
}

// NoPassword skips the password register
var NoPassword = Password{}

// WithPassword returns a password to send before committing
func WithPassword(v int) Password {
	return Password{value: v, set: true}
}

// Validate rejects values that do not fit the 16-bit password register
func (p Password) Validate() error {
	if p.set && (p.value < 0 || p.value > 0xFFFF) {
		return &hubbus.ValidationError{Field: "password", Message: fmt.Sprintf("password %d outside 0..65535", p.value)}
	}
	return nil
}

// Coordinator runs calibration workflows over a register channel
type Coordinator struct {
	ch     *registers.Channel
	layout registers.Layout
}

// NewCoordinator creates a coordinator for the given register layout
func NewCoordinator(ch *registers.Channel, layout registers.Layout) *Coordinator {
	return &Coordinator{ch: ch, layout: layout}
}

// checkBinding validates b and returns its device port
func (c *Coordinator) checkBinding(b Binding) (int, error) {
	if err := b.Validate(); err != nil {
		return 0, err
	}
	port := SwapPort(b.Port)
	if port < 1 || port > c.layout.Ports() {
		return 0, &hubbus.ValidationError{Field: "port", Message: fmt.Sprintf("port %d outside 1..%d", b.Port, c.layout.Ports())}
	}
	return port, nil
}

// ReadBinding reads the binding of an operator-facing port
func (c *Coordinator) ReadBinding(port int) (Binding, error) {
	reg, err := c.layout.BindingRegister(SwapPort(port))
	if err != nil {
		return Binding{}, &hubbus.ValidationError{Field: "port", Message: err.Error()}
	}
	v, err := c.ch.ReadRegisters(reg, 1)
	if err != nil {
		return Binding{}, err
	}
	return BindingFromDevice(v[0]), nil
}

// ReadPoints reads the calibration window of the port selected last. A
// contiguous window is read as one block.
func (c *Coordinator) ReadPoints() (Points, error) {
	var v [4]uint16
	if c.layout.PointsContiguous() {
		r, err := c.ch.ReadRegisters(c.layout.Points[0], uint16(len(v)))
		if err != nil {
			return Points{}, err
		}
		copy(v[:], r)
	} else {
		for i, reg := range c.layout.Points {
			r, err := c.ch.ReadRegisters(reg, 1)
			if err != nil {
				return Points{}, err
			}
			v[i] = r[0]
		}
	}
	return Points{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}, nil
}

// ReadCalibration selects an operator-facing port by writing its binding
// back unchanged and then reads the window that now applies to it
func (c *Coordinator) ReadCalibration(port int) (Binding, Points, error) {
	b, err := c.ReadBinding(port)
	if err != nil {
		return Binding{}, Points{}, err
	}
	dev, err := c.checkBinding(b)
	if err != nil {
		return Binding{}, Points{}, err
	}
	if err := c.writeBinding(b, dev); err != nil {
		return Binding{}, Points{}, err
	}
	p, err := c.ReadPoints()
	if err != nil {
		return Binding{}, Points{}, err
	}
	return b, p, nil
}

// ReadRaw reads the live raw value of an operator-facing port
func (c *Coordinator) ReadRaw(port int) (uint16, error) {
	reg, err := c.layout.SensorRegister(SwapPort(port))
	if err != nil {
		return 0, &hubbus.ValidationError{Field: "port", Message: err.Error()}
	}
	v, err := c.ch.ReadRegisters(reg, 1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

func (c *Coordinator) writePoints(p Points) error {
	for i, v := range p.Registers() {
		if err := c.ch.WriteRegister(c.layout.Points[i], v); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) writeBinding(b Binding, devicePort int) error {
	reg, err := c.layout.BindingRegister(devicePort)
	if err != nil {
		return err
	}
	if err := c.ch.WriteRegister(reg, b.DeviceValue()); err != nil {
		return fmt.Errorf("write binding: %w", err)
	}
	return nil
}

// latch sends the optional password and then the commit value
func (c *Coordinator) latch(pw Password) error {
	if pw.set {
		if err := c.ch.WriteRegister(c.layout.Password, uint16(pw.value)); err != nil {
			return fmt.Errorf("write password: %w", err)
		}
	}
	if err := c.ch.WriteRegister(c.layout.Commit, CommitValue); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// FourPoint validates operator-supplied points and commits them in
// four-point mode. Nothing is written when validation fails.
func (c *Coordinator) FourPoint(b Binding, p Points, pw Password) error {
	b.Mode = ModeFourPoint
	port, err := c.checkBinding(b)
	if err != nil {
		return err
	}
	if err := CheckSlope(p); err != nil {
		return err
	}
	if err := pw.Validate(); err != nil {
		return err
	}
	if err := c.writeBinding(b, port); err != nil {
		return err
	}
	if err := c.writePoints(p); err != nil {
		return fmt.Errorf("write points: %w", err)
	}
	return c.latch(pw)
}

// Clear returns the port's binding to its non-calibrated form, which also
// selects the port, and then zeroes its calibration window
func (c *Coordinator) Clear(b Binding) error {
	port, err := c.checkBinding(b)
	if err != nil {
		return err
	}
	if err := c.writeBinding(b.Cleared(), port); err != nil {
		return err
	}
	if err := c.writePoints(Points{}); err != nil {
		return fmt.Errorf("clear points: %w", err)
	}
	return nil
}

// ErrPointMissing is returned by Commit before both points were taken
var ErrPointMissing = errors.New("calibration point not taken")

// TwoPoint is a two-point calibration in progress. The raw x of each point
// is the live reading at the moment the point is taken.
type TwoPoint struct {
	c       *Coordinator
	binding Binding
	port    int
	points  Points
	taken   [2]bool
}

// BeginTwoPoint writes b in two-point mode, selecting its port for the
// points taken next
func (c *Coordinator) BeginTwoPoint(b Binding) (*TwoPoint, error) {
	b.Mode = ModeTwoPoint
	port, err := c.checkBinding(b)
	if err != nil {
		return nil, err
	}
	if err := c.writeBinding(b, port); err != nil {
		return nil, err
	}
	return &TwoPoint{c: c, binding: b, port: port}, nil
}

// Binding returns the binding being calibrated
func (s *TwoPoint) Binding() Binding {
	return s.binding
}

// TakePoint captures the live raw reading as point n (1 or 2), pairs it with
// target and writes both registers. The captured raw value is returned.
func (s *TwoPoint) TakePoint(n int, target uint16) (uint16, error) {
	if n != 1 && n != 2 {
		return 0, &hubbus.ValidationError{Field: "point", Message: fmt.Sprintf("point %d is not 1 or 2", n)}
	}
	reg, err := s.c.layout.SensorRegister(s.port)
	if err != nil {
		return 0, err
	}
	v, err := s.c.ch.ReadRegisters(reg, 1)
	if err != nil {
		return 0, fmt.Errorf("read live value: %w", err)
	}
	raw := v[0]

	i := 2 * (n - 1)
	if err := s.c.ch.WriteRegister(s.c.layout.Points[i], raw); err != nil {
		return 0, fmt.Errorf("write x%d: %w", n, err)
	}
	if err := s.c.ch.WriteRegister(s.c.layout.Points[i+1], target); err != nil {
		return 0, fmt.Errorf("write y%d: %w", n, err)
	}
	if n == 1 {
		s.points.X1, s.points.Y1 = raw, target
	} else {
		s.points.X2, s.points.Y2 = raw, target
	}
	s.taken[n-1] = true
	return raw, nil
}

// Points returns the points taken so far
func (s *TwoPoint) Points() Points {
	return s.points
}

// Commit re-validates the slope and latches the points. Nothing is written
// when validation fails.
func (s *TwoPoint) Commit(pw Password) error {
	for i, ok := range s.taken {
		if !ok {
			return fmt.Errorf("%w: point %d", ErrPointMissing, i+1)
		}
	}
	if err := CheckSlope(s.points); err != nil {
		return err
	}
	if err := pw.Validate(); err != nil {
		return err
	}
	return s.c.latch(pw)
}
