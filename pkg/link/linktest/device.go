// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package linktest

import (
	"encoding/binary"
	"sync"

	"github.com/Thermoquad/umvh/pkg/hubbus"
)

// Device simulates a hub's register file and bootloader. Its Respond method
// is a Responder.
type Device struct {
	mu        sync.Mutex
	slave     byte
	registers map[uint16]uint16
	reads     int
	silent    bool
	chunks    [][]byte
	writeLog  []RegisterWrite
}

// RegisterWrite is one accepted write-single-register request
type RegisterWrite struct {
	Register uint16
	Value    uint16
}

// NewDevice creates a device answering to slave
func NewDevice(slave byte) *Device {
	return &Device{slave: slave, registers: make(map[uint16]uint16)}
}

// Set stores a register value
func (d *Device) Set(reg, value uint16) {
	d.mu.Lock()
	d.registers[reg] = value
	d.mu.Unlock()
}

// Get returns a register value (zero when never written)
func (d *Device) Get(reg uint16) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registers[reg]
}

// Silence stops or resumes all replies
func (d *Device) Silence(silent bool) {
	d.mu.Lock()
	d.silent = silent
	d.mu.Unlock()
}

// Reads returns the number of read requests answered or ignored
func (d *Device) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

// RegisterWrites returns accepted register writes in order
func (d *Device) RegisterWrites() []RegisterWrite {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]RegisterWrite(nil), d.writeLog...)
}

// Chunks returns the raw firmware chunk requests received
func (d *Device) Chunks() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.chunks...)
}

// Respond answers one request the way the hub firmware does
func (d *Device) Respond(request []byte, _ hubbus.LinkConfig) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := hubbus.DecodeFrame(request)
	if err != nil || f.Address != d.slave {
		return nil
	}
	if f.Function == hubbus.FuncReadHoldingRegisters {
		d.reads++
	}
	if d.silent {
		return nil
	}

	switch f.Function {
	case hubbus.FuncReadHoldingRegisters:
		if len(f.Payload) != 4 {
			return nil
		}
		start := binary.BigEndian.Uint16(f.Payload[0:2])
		count := binary.BigEndian.Uint16(f.Payload[2:4])
		body := []byte{byte(2 * count)}
		for i := uint16(0); i < count; i++ {
			body = binary.BigEndian.AppendUint16(body, d.registers[start+i])
		}
		return hubbus.EncodeFrame(d.slave, f.Function, body)

	case hubbus.FuncWriteSingleRegister:
		if len(f.Payload) != 4 {
			return nil
		}
		reg := binary.BigEndian.Uint16(f.Payload[0:2])
		value := binary.BigEndian.Uint16(f.Payload[2:4])
		d.registers[reg] = value
		d.writeLog = append(d.writeLog, RegisterWrite{Register: reg, Value: value})
		return append([]byte(nil), request...)

	case hubbus.FuncFirmwareChunk:
		d.chunks = append(d.chunks, append([]byte(nil), request...))
		return hubbus.EncodeFrame(d.slave, f.Function, f.Payload[:min(4, len(f.Payload))])

	case hubbus.FuncStartUpdate:
		return hubbus.EncodeFrame(d.slave, f.Function, nil)
	}
	return hubbus.EncodeFrame(d.slave, f.Function|0x80, []byte{0x01})
}
