// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package registers reads and writes hub holding registers over an open link.
//
// Calls are synchronous and bounded by the channel timeout. They never retry;
// retry policy belongs to the caller.
package registers

import (
	"fmt"
	"time"

	"github.com/Thermoquad/umvh/pkg/hubbus"
	"github.com/Thermoquad/umvh/pkg/link"
)

// Tracer receives every frame sent (tx) or received on a channel
type Tracer func(tx bool, frame []byte)

// Channel addresses one slave over an open port
type Channel struct {
	Port    link.Port
	Slave   byte
	Timeout time.Duration
	Trace   Tracer

	// Stats, when set, records the outcome of every exchange
	Stats *Statistics
}

// NewChannel creates a channel with the default read timeout
func NewChannel(port link.Port, slave byte) *Channel {
	return &Channel{Port: port, Slave: slave, Timeout: hubbus.ReadTimeout}
}

// ReadRegisters reads count holding registers starting at start
func (c *Channel) ReadRegisters(start, count uint16) ([]uint16, error) {
	request, err := hubbus.EncodeReadRegisters(c.Slave, start, count)
	if err != nil {
		return nil, err
	}
	c.trace(true, request)
	raw, err := link.Transact(c.Port, request, hubbus.ReadResponseSize(count), c.timeout())
	c.trace(false, raw)
	if err != nil {
		c.record(err)
		return nil, fmt.Errorf("read %d registers at %d: %w", count, start, err)
	}
	values, err := hubbus.DecodeReadResponse(raw, c.Slave, count)
	c.record(err)
	if err != nil {
		return nil, fmt.Errorf("read %d registers at %d: %w", count, start, err)
	}
	return values, nil
}

// WriteRegister writes one holding register and validates the echo
func (c *Channel) WriteRegister(register, value uint16) error {
	request := hubbus.EncodeWriteRegister(c.Slave, register, value)
	c.trace(true, request)
	raw, err := link.Transact(c.Port, request, hubbus.WriteResponseSize, c.timeout())
	c.trace(false, raw)
	if err == nil {
		err = hubbus.DecodeWriteResponse(raw, request)
	}
	c.record(err)
	if err != nil {
		return fmt.Errorf("write register %d: %w", register, err)
	}
	return nil
}

// ReadBlock reads a whole block into a Map keyed by register address
func (c *Channel) ReadBlock(b Block) (Map, error) {
	values, err := c.ReadRegisters(b.Start, b.Count)
	if err != nil {
		return nil, err
	}
	m := make(Map, len(values))
	for i, v := range values {
		m[b.Start+uint16(i)] = v
	}
	return m, nil
}

func (c *Channel) timeout() time.Duration {
	if c.Timeout <= 0 {
		return hubbus.ReadTimeout
	}
	return c.Timeout
}

func (c *Channel) record(err error) {
	if c.Stats != nil {
		c.Stats.Record(err)
	}
}

func (c *Channel) trace(tx bool, frame []byte) {
	if c.Trace != nil && len(frame) > 0 {
		c.Trace(tx, frame)
	}
}
