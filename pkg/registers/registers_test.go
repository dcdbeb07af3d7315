// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package registers_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/umvh/pkg/hubbus"
	"github.com/Thermoquad/umvh/pkg/link/linktest"
	"github.com/Thermoquad/umvh/pkg/registers"
	"github.com/stretchr/testify/require"
)

func newChannel(t *testing.T) (*registers.Channel, *linktest.Port, *linktest.Device) {
	t.Helper()
	port := linktest.NewPort(hubbus.BootstrapLink)
	dev := linktest.NewDevice(1)
	port.Respond(dev.Respond)
	ch := registers.NewChannel(port, 1)
	ch.Timeout = 50 * time.Millisecond
	return ch, port, dev
}

func TestReadRegisters(t *testing.T) {
	ch, _, dev := newChannel(t)
	for i := uint16(0); i < 8; i++ {
		dev.Set(22+i, 100*i+7)
	}

	values, err := ch.ReadRegisters(22, 8)
	require.NoError(t, err)
	require.Equal(t, []uint16{7, 107, 207, 307, 407, 507, 607, 707}, values)
}

func TestReadRegisters_NoReply(t *testing.T) {
	ch, port, dev := newChannel(t)
	dev.Silence(true)

	_, err := ch.ReadRegisters(22, 8)
	require.ErrorIs(t, err, hubbus.ErrTimeout)
	require.Equal(t, 1, port.WriteCount(), "channel must not retry")
}

func TestReadRegisters_CorruptReply(t *testing.T) {
	ch, port, _ := newChannel(t)
	port.Respond(func(req []byte, _ hubbus.LinkConfig) []byte {
		reply := hubbus.EncodeFrame(1, hubbus.FuncReadHoldingRegisters, []byte{2, 0x00, 0x01})
		reply[len(reply)-1] ^= 0xFF
		return reply
	})

	_, err := ch.ReadRegisters(22, 1)
	require.ErrorIs(t, err, hubbus.ErrFraming)
}

func TestReadRegisters_InvalidCount(t *testing.T) {
	ch, port, _ := newChannel(t)
	_, err := ch.ReadRegisters(0, 0)
	var ve *hubbus.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Zero(t, port.WriteCount())
}

func TestWriteRegister(t *testing.T) {
	ch, _, dev := newChannel(t)

	require.NoError(t, ch.WriteRegister(48, 0x8012))
	require.Equal(t, uint16(0x8012), dev.Get(48))
}

func TestWriteRegister_BadEcho(t *testing.T) {
	ch, _, _ := newChannel(t)
	ch.Port.(*linktest.Port).Respond(func(req []byte, _ hubbus.LinkConfig) []byte {
		return hubbus.EncodeWriteRegister(1, 48, 0)
	})

	err := ch.WriteRegister(48, 5)
	require.ErrorIs(t, err, hubbus.ErrFraming)
}

func TestWriteRegister_LinkError(t *testing.T) {
	ch, port, _ := newChannel(t)
	port.FailWrites(errors.New("port closed"))

	err := ch.WriteRegister(48, 5)
	require.True(t, hubbus.IsLinkError(err))
}

func TestReadBlock(t *testing.T) {
	ch, _, dev := newChannel(t)
	dev.Set(40, 0x8021)
	dev.Set(47, 0x0083)

	m, err := ch.ReadBlock(registers.BaseLayout.Bindings)
	require.NoError(t, err)
	require.Len(t, m, 8)
	require.Equal(t, uint16(0x8021), m[40])
	require.Equal(t, uint16(0x0083), m[47])
	require.Equal(t, []uint16{0x8021, 0, 0, 0, 0, 0, 0, 0x0083}, m.Values(registers.BaseLayout.Bindings))
}

func TestTrace(t *testing.T) {
	ch, _, _ := newChannel(t)
	var tx, rx int
	ch.Trace = func(out bool, frame []byte) {
		if out {
			tx++
		} else {
			rx++
		}
	}
	require.NoError(t, ch.WriteRegister(1, 1))
	require.Equal(t, 1, tx)
	require.Equal(t, 1, rx)
}

func TestRevisions(t *testing.T) {
	for _, name := range registers.RevisionNames() {
		t.Run(name, func(t *testing.T) {
			l, err := registers.Revision(name)
			require.NoError(t, err)
			require.NoError(t, l.Validate())
			require.Equal(t, name, l.Name)
		})
	}

	r9, err := registers.Revision("R9")
	require.NoError(t, err)
	require.Equal(t, uint16(31), r9.Sensors.Start)
	require.Equal(t, uint16(61), r9.Commit)

	r13, err := registers.Revision("r13")
	require.NoError(t, err)
	require.Equal(t, registers.BaseLayout.Commit+13, r13.Commit)

	_, err = registers.Revision("r7")
	require.Error(t, err)
}

func TestLayoutRegisters(t *testing.T) {
	l := registers.BaseLayout
	reg, err := l.SensorRegister(1)
	require.NoError(t, err)
	require.Equal(t, uint16(22), reg)

	reg, err = l.BindingRegister(8)
	require.NoError(t, err)
	require.Equal(t, uint16(47), reg)

	_, err = l.SensorRegister(9)
	require.Error(t, err)
	_, err = l.BindingRegister(0)
	require.Error(t, err)
}

func TestLayoutValidate_Overlap(t *testing.T) {
	l := registers.BaseLayout
	l.Commit = 23
	require.Error(t, l.Validate())

	l = registers.BaseLayout
	l.Password = l.Commit
	require.Error(t, l.Validate())
}

func TestStatistics(t *testing.T) {
	ch, port, dev := newChannel(t)
	stats := registers.NewStatistics()
	ch.Stats = stats

	_, err := ch.ReadRegisters(22, 2)
	require.NoError(t, err)
	require.NoError(t, ch.WriteRegister(40, 1))

	dev.Silence(true)
	_, err = ch.ReadRegisters(22, 2)
	require.Error(t, err)
	dev.Silence(false)

	port.Respond(func(req []byte, _ hubbus.LinkConfig) []byte {
		return hubbus.EncodeFrame(1, hubbus.FuncReadHoldingRegisters|0x80, []byte{0x02})
	})
	_, err = ch.ReadRegisters(22, 2)
	require.Error(t, err)

	port.FailWrites(errors.New("unplugged"))
	require.Error(t, ch.WriteRegister(40, 1))

	c := stats.Counters()
	require.Equal(t, uint64(5), c.Total)
	require.Equal(t, uint64(2), c.OK)
	require.Equal(t, uint64(1), c.Timeouts)
	require.Equal(t, uint64(1), c.Exceptions)
	require.Equal(t, uint64(1), c.LinkErrors)
	require.Equal(t, uint64(3), c.Errors())
	require.Contains(t, stats.String(), "Timeouts:")

	stats.Reset()
	require.Zero(t, stats.Counters().Total)
}

func TestLayoutPointsContiguous(t *testing.T) {
	for _, name := range registers.RevisionNames() {
		l, err := registers.Revision(name)
		require.NoError(t, err)
		require.True(t, l.PointsContiguous(), name)
	}
	l := registers.BaseLayout
	l.Points = [4]uint16{48, 49, 51, 50}
	require.False(t, l.PointsContiguous())
}
