// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package calibration_test

import (
	"testing"
	"time"

	"github.com/Thermoquad/umvh/pkg/calibration"
	"github.com/Thermoquad/umvh/pkg/hubbus"
	"github.com/Thermoquad/umvh/pkg/link/linktest"
	"github.com/Thermoquad/umvh/pkg/registers"
	"github.com/stretchr/testify/require"
)

type write = linktest.RegisterWrite

func newCoordinator(t *testing.T) (*calibration.Coordinator, *linktest.Device) {
	t.Helper()
	port := linktest.NewPort(hubbus.BootstrapLink)
	dev := linktest.NewDevice(1)
	port.Respond(dev.Respond)
	ch := registers.NewChannel(port, 1)
	ch.Timeout = 20 * time.Millisecond
	return calibration.NewCoordinator(ch, registers.BaseLayout), dev
}

func TestFourPoint(t *testing.T) {
	c, dev := newCoordinator(t)
	b := calibration.Binding{Port: 1, Sensor: 4}
	p := calibration.Points{X1: 100, Y1: 50, X2: 200, Y2: 150}

	require.NoError(t, c.FourPoint(b, p, calibration.WithPassword(1234)))
	require.Equal(t, []write{
		{Register: 41, Value: 0x8024},
		{Register: 48, Value: 100},
		{Register: 49, Value: 50},
		{Register: 50, Value: 200},
		{Register: 51, Value: 150},
		{Register: 53, Value: 1234},
		{Register: 52, Value: calibration.CommitValue},
	}, dev.RegisterWrites())

	got, err := c.ReadBinding(1)
	require.NoError(t, err)
	require.Equal(t, calibration.Binding{Mode: calibration.ModeFourPoint, Port: 1, Sensor: 4}, got)

	points, err := c.ReadPoints()
	require.NoError(t, err)
	require.Equal(t, p, points)
}

func TestFourPoint_RejectedBeforeAnyWrite(t *testing.T) {
	c, dev := newCoordinator(t)
	b := calibration.Binding{Port: 3, Sensor: 2}

	err := c.FourPoint(b, calibration.Points{X1: 100, Y1: 150, X2: 200, Y2: 50}, calibration.NoPassword)
	var ve *hubbus.ValidationError
	require.ErrorAs(t, err, &ve)

	err = c.FourPoint(b, calibration.Points{X1: 1, Y1: 1, X2: 2, Y2: 2}, calibration.WithPassword(70000))
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "password", ve.Field)

	err = c.FourPoint(calibration.Binding{Port: 9, Sensor: 2}, calibration.Points{}, calibration.NoPassword)
	require.ErrorAs(t, err, &ve)

	require.Empty(t, dev.RegisterWrites())
}

func TestTwoPoint(t *testing.T) {
	c, dev := newCoordinator(t)
	// operator port 2 is device port 1 (sensor register 22)
	s, err := c.BeginTwoPoint(calibration.Binding{Port: 2, Sensor: 6, Mode: calibration.ModeFourPoint})
	require.NoError(t, err)
	require.Equal(t, calibration.ModeTwoPoint, s.Binding().Mode)

	dev.Set(22, 410)
	raw, err := s.TakePoint(1, 0)
	require.NoError(t, err)
	require.Equal(t, uint16(410), raw)

	dev.Set(22, 3920)
	raw, err = s.TakePoint(2, 10000)
	require.NoError(t, err)
	require.Equal(t, uint16(3920), raw)

	require.Equal(t, calibration.Points{X1: 410, Y1: 0, X2: 3920, Y2: 10000}, s.Points())
	require.NoError(t, s.Commit(calibration.NoPassword))

	require.Equal(t, []write{
		{Register: 40, Value: 0x0016},
		{Register: 48, Value: 410},
		{Register: 49, Value: 0},
		{Register: 50, Value: 3920},
		{Register: 51, Value: 10000},
		{Register: 52, Value: calibration.CommitValue},
	}, dev.RegisterWrites())
}

func TestTwoPoint_CommitRevalidates(t *testing.T) {
	c, dev := newCoordinator(t)
	s, err := c.BeginTwoPoint(calibration.Binding{Port: 4, Sensor: 1})
	require.NoError(t, err)

	require.ErrorIs(t, s.Commit(calibration.NoPassword), calibration.ErrPointMissing)

	dev.Set(25, 900)
	_, err = s.TakePoint(1, 10)
	require.NoError(t, err)
	dev.Set(25, 300)
	_, err = s.TakePoint(2, 20)
	require.NoError(t, err)

	before := len(dev.RegisterWrites())
	var ve *hubbus.ValidationError
	require.ErrorAs(t, s.Commit(calibration.NoPassword), &ve)
	require.Len(t, dev.RegisterWrites(), before, "no write after a rejected commit")

	_, err = s.TakePoint(3, 0)
	require.ErrorAs(t, err, &ve)
}

func TestClear(t *testing.T) {
	c, dev := newCoordinator(t)
	require.NoError(t, c.Clear(calibration.Binding{Mode: calibration.ModeFourPoint, Port: 1, Sensor: 4}))

	require.Equal(t, []write{
		{Register: 41, Value: 0x0020},
		{Register: 48, Value: 0},
		{Register: 49, Value: 0},
		{Register: 50, Value: 0},
		{Register: 51, Value: 0},
	}, dev.RegisterWrites())
}

func TestWorkflows_SelectPortBeforePoints(t *testing.T) {
	isBinding := func(reg uint16) bool { return registers.BaseLayout.Bindings.Contains(reg) }
	isPoint := func(reg uint16) bool {
		for _, p := range registers.BaseLayout.Points {
			if p == reg {
				return true
			}
		}
		return false
	}
	check := func(t *testing.T, writes []write) {
		t.Helper()
		first := -1
		for i, w := range writes {
			if isPoint(w.Register) {
				first = i
				break
			}
		}
		require.GreaterOrEqual(t, first, 1, "a point was written before any binding")
		for _, w := range writes[:first] {
			require.True(t, isBinding(w.Register), "unexpected write to %d before the points", w.Register)
		}
	}

	t.Run("four point", func(t *testing.T) {
		c, dev := newCoordinator(t)
		require.NoError(t, c.FourPoint(calibration.Binding{Port: 3, Sensor: 4}, calibration.Points{X1: 1, Y1: 1, X2: 2, Y2: 2}, calibration.NoPassword))
		check(t, dev.RegisterWrites())
	})
	t.Run("two point", func(t *testing.T) {
		c, dev := newCoordinator(t)
		s, err := c.BeginTwoPoint(calibration.Binding{Port: 3, Sensor: 4})
		require.NoError(t, err)
		_, err = s.TakePoint(1, 5)
		require.NoError(t, err)
		check(t, dev.RegisterWrites())
	})
	t.Run("clear", func(t *testing.T) {
		c, dev := newCoordinator(t)
		require.NoError(t, c.Clear(calibration.Binding{Port: 3, Sensor: 4}))
		check(t, dev.RegisterWrites())
	})
}

func TestReadPoints_OneBlock(t *testing.T) {
	c, dev := newCoordinator(t)
	for i, v := range []uint16{10, 20, 30, 40} {
		dev.Set(48+uint16(i), v)
	}
	before := dev.Reads()
	p, err := c.ReadPoints()
	require.NoError(t, err)
	require.Equal(t, calibration.Points{X1: 10, Y1: 20, X2: 30, Y2: 40}, p)
	require.Equal(t, 1, dev.Reads()-before)
}

func TestReadPoints_Scattered(t *testing.T) {
	port := linktest.NewPort(hubbus.BootstrapLink)
	dev := linktest.NewDevice(1)
	port.Respond(dev.Respond)
	ch := registers.NewChannel(port, 1)
	ch.Timeout = 20 * time.Millisecond
	layout := registers.BaseLayout
	layout.Points = [4]uint16{60, 62, 64, 66}
	c := calibration.NewCoordinator(ch, layout)

	dev.Set(60, 1)
	dev.Set(62, 2)
	dev.Set(64, 3)
	dev.Set(66, 4)
	p, err := c.ReadPoints()
	require.NoError(t, err)
	require.Equal(t, calibration.Points{X1: 1, Y1: 2, X2: 3, Y2: 4}, p)
	require.Equal(t, 4, dev.Reads())
}

func TestReadCalibration_SelectsPort(t *testing.T) {
	c, dev := newCoordinator(t)
	// operator port 2 is device port 1 (binding register 40)
	dev.Set(40, 0x8016)
	for i, v := range []uint16{100, 50, 200, 150} {
		dev.Set(48+uint16(i), v)
	}

	b, p, err := c.ReadCalibration(2)
	require.NoError(t, err)
	require.Equal(t, calibration.Binding{Mode: calibration.ModeFourPoint, Port: 2, Sensor: 6}, b)
	require.Equal(t, calibration.Points{X1: 100, Y1: 50, X2: 200, Y2: 150}, p)
	require.Equal(t, []write{{Register: 40, Value: 0x8016}}, dev.RegisterWrites())

	_, _, err = c.ReadCalibration(12)
	var ve *hubbus.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestReadRaw(t *testing.T) {
	c, dev := newCoordinator(t)
	dev.Set(23, 777) // device port 2
	raw, err := c.ReadRaw(1)
	require.NoError(t, err)
	require.Equal(t, uint16(777), raw)

	_, err = c.ReadRaw(12)
	require.Error(t, err)
}

func TestCoordinator_DeviceSilent(t *testing.T) {
	c, dev := newCoordinator(t)
	dev.Silence(true)

	err := c.FourPoint(calibration.Binding{Port: 1, Sensor: 1}, calibration.Points{X2: 1, Y2: 1}, calibration.NoPassword)
	require.ErrorIs(t, err, hubbus.ErrTimeout)
}
