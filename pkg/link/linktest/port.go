// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package linktest provides an in-memory link.Port driven by a script.
package linktest

import (
	"sync"
	"time"

	"github.com/Thermoquad/umvh/pkg/hubbus"
)

// Responder returns the bytes the simulated device sends back after a write.
// The link active at the time of the write is passed so scripts can refuse
// to answer on the wrong configuration.
type Responder func(request []byte, cfg hubbus.LinkConfig) []byte

// Port is a scripted stand-in for a serial port. Reads return queued bytes
// or (0, nil) once the short idle pause elapses, like a real port whose
// read timeout expired.
type Port struct {
	mu        sync.Mutex
	link      hubbus.LinkConfig
	rx        []byte
	writes    [][]byte
	links     []hubbus.LinkConfig
	respond   Responder
	readErr   error
	writeErr  error
	linkErr   error
	closed    bool
	idlePause time.Duration
}

// NewPort creates a port whose current link is cfg
func NewPort(cfg hubbus.LinkConfig) *Port {
	return &Port{link: cfg, idlePause: time.Millisecond}
}

// Respond installs the device script
func (p *Port) Respond(r Responder) {
	p.mu.Lock()
	p.respond = r
	p.mu.Unlock()
}

// Feed queues bytes as if the device had sent them unprompted
func (p *Port) Feed(data []byte) {
	p.mu.Lock()
	p.rx = append(p.rx, data...)
	p.mu.Unlock()
}

// FailReads makes every following Read return err
func (p *Port) FailReads(err error) {
	p.mu.Lock()
	p.readErr = err
	p.mu.Unlock()
}

// FailNextLink makes the next SetLink apply its configuration and then
// return err, like a driver that fails halfway through a mode change
func (p *Port) FailNextLink(err error) {
	p.mu.Lock()
	p.linkErr = err
	p.mu.Unlock()
}

// FailWrites makes every following Write return err
func (p *Port) FailWrites(err error) {
	p.mu.Lock()
	p.writeErr = err
	p.mu.Unlock()
}

func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.readErr != nil {
		err := p.readErr
		p.mu.Unlock()
		return 0, err
	}
	if len(p.rx) == 0 {
		pause := p.idlePause
		p.mu.Unlock()
		time.Sleep(pause)
		return 0, nil
	}
	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	p.mu.Unlock()
	return n, nil
}

func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	frame := append([]byte(nil), b...)
	p.writes = append(p.writes, frame)
	if p.respond != nil {
		p.rx = append(p.rx, p.respond(frame, p.link)...)
	}
	return len(b), nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Link returns the current line parameters
func (p *Port) Link() hubbus.LinkConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.link
}

// SetLink records and applies a new configuration
func (p *Port) SetLink(cfg hubbus.LinkConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.link = cfg
	p.links = append(p.links, cfg)
	err := p.linkErr
	p.linkErr = nil
	return err
}

func (p *Port) SetReadTimeout(time.Duration) error {
	return nil
}

func (p *Port) ResetInputBuffer() error {
	p.mu.Lock()
	p.rx = p.rx[:0]
	p.mu.Unlock()
	return nil
}

// Writes returns a copy of every frame written so far
func (p *Port) Writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.writes))
	copy(out, p.writes)
	return out
}

// WriteCount returns the number of Write calls
func (p *Port) WriteCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writes)
}

// LinkChanges returns every configuration applied through SetLink, in order
func (p *Port) LinkChanges() []hubbus.LinkConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]hubbus.LinkConfig(nil), p.links...)
}

// Closed reports whether Close was called
func (p *Port) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
