// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link owns the serial port handle shared by every hub operation.
package link

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/umvh/pkg/hubbus"
	"go.bug.st/serial"
)

// Port is a serial line that can be reconfigured while open.
// Read returns (0, nil) when the read timeout elapses with no data.
type Port interface {
	io.Reader
	io.Writer
	io.Closer

	// Link returns the line parameters currently applied
	Link() hubbus.LinkConfig

	// SetLink applies new line parameters without closing the port
	SetLink(cfg hubbus.LinkConfig) error

	// SetReadTimeout bounds every subsequent Read call
	SetReadTimeout(d time.Duration) error

	// ResetInputBuffer discards bytes received but not yet read
	ResetInputBuffer() error
}

// SerialPort wraps a go.bug.st serial port
type SerialPort struct {
	name string
	port serial.Port

	mu   sync.Mutex
	link hubbus.LinkConfig
}

// Open opens a serial port with the given line parameters
func Open(name string, cfg hubbus.LinkConfig) (*SerialPort, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	port, err := serial.Open(name, serialMode(cfg))
	if err != nil {
		return nil, &hubbus.LinkError{Op: "open " + name, Err: err}
	}
	if err := port.SetReadTimeout(hubbus.ReadTimeout); err != nil {
		port.Close()
		return nil, &hubbus.LinkError{Op: "configure " + name, Err: err}
	}
	return &SerialPort{name: name, port: port, link: cfg}, nil
}

// Name returns the OS identifier the port was opened with
func (s *SerialPort) Name() string {
	return s.name
}

func (s *SerialPort) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialPort) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialPort) Close() error {
	return s.port.Close()
}

// Link returns the line parameters currently applied
func (s *SerialPort) Link() hubbus.LinkConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link
}

// SetLink drains pending output and applies cfg
func (s *SerialPort) SetLink(cfg hubbus.LinkConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.port.Drain(); err != nil {
		return &hubbus.LinkError{Op: "drain", Err: err}
	}
	if err := s.port.SetMode(serialMode(cfg)); err != nil {
		return &hubbus.LinkError{Op: fmt.Sprintf("set mode %s", cfg), Err: err}
	}
	s.link = cfg
	return nil
}

func (s *SerialPort) SetReadTimeout(d time.Duration) error {
	return s.port.SetReadTimeout(d)
}

func (s *SerialPort) ResetInputBuffer() error {
	return s.port.ResetInputBuffer()
}

func serialMode(cfg hubbus.LinkConfig) *serial.Mode {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	switch cfg.Parity {
	case hubbus.ParityOdd:
		mode.Parity = serial.OddParity
	case hubbus.ParityEven:
		mode.Parity = serial.EvenParity
	}
	if cfg.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	return mode
}
