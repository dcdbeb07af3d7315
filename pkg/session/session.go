// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package session guards the single serial link shared by all hub operations.
//
// A Session owns the open port and one operation slot. An operation takes
// the slot with Begin and gets a Lease exposing the port; a second Begin
// fails with ErrBusy until the lease is ended.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Thermoquad/umvh/pkg/link"
	"github.com/golang/glog"
)

// Operation identifies what currently drives the link
type Operation int

const (
	Idle Operation = iota
	Discovering
	Polling
	Transferring
	Calibrating
	// Exchanging covers single register reads and writes
	Exchanging
	Sniffing
)

func (o Operation) String() string {
	switch o {
	case Idle:
		return "idle"
	case Discovering:
		return "discovering"
	case Polling:
		return "polling"
	case Transferring:
		return "transferring"
	case Calibrating:
		return "calibrating"
	case Exchanging:
		return "exchanging"
	case Sniffing:
		return "sniffing"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

var (
	// ErrBusy is returned by Begin while another operation holds the link
	ErrBusy = errors.New("link busy")

	// ErrClosed is returned by Begin after Close
	ErrClosed = errors.New("session closed")
)

// Session owns a port and its operation slot
type Session struct {
	mu      sync.Mutex
	port    link.Port
	current Operation
	lease   *Lease
	closed  bool
}

// New takes ownership of port
func New(port link.Port) *Session {
	return &Session{port: port}
}

// Current returns the operation holding the slot
func (s *Session) Current() Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Begin claims the slot for op
func (s *Session) Begin(op Operation) (*Lease, error) {
	if op == Idle {
		return nil, errors.New("cannot begin the idle operation")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.current != Idle {
		return nil, fmt.Errorf("%w: %s in progress", ErrBusy, s.current)
	}
	s.current = op
	s.lease = &Lease{s: s, op: op}
	glog.V(1).Infof("session: idle -> %s", op)
	return s.lease, nil
}

// Close marks the session closed and closes the port.
// An active lease stays valid until ended but its port is unusable.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}

func (s *Session) release(l *Lease) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lease != l {
		return
	}
	glog.V(1).Infof("session: %s -> idle", s.current)
	s.current = Idle
	s.lease = nil
}

// Lease is the right to drive the port for one operation
type Lease struct {
	s    *Session
	op   Operation
	once sync.Once
}

// Port returns the leased port
func (l *Lease) Port() link.Port {
	return l.s.port
}

// Operation returns the operation the lease was taken for
func (l *Lease) Operation() Operation {
	return l.op
}

// End returns the slot to Idle. Calling it more than once is harmless.
func (l *Lease) End() {
	l.once.Do(func() { l.s.release(l) })
}
