// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package poller periodically reads the hub's sensor and binding blocks.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/umvh/pkg/hubbus"
	"github.com/Thermoquad/umvh/pkg/registers"
	"github.com/golang/glog"
)

// Kind classifies a poller event
type Kind int

const (
	KindSnapshot Kind = iota
	KindConnectionLost
	KindStopped
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return "SNAPSHOT"
	case KindConnectionLost:
		return "CONNECTION_LOST"
	case KindStopped:
		return "STOPPED"
	case KindFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(k))
	}
}

// Snapshot is the result of one successful cycle
type Snapshot struct {
	Time     time.Time
	Cycle    int
	Sensors  []uint16
	Bindings []uint16
	Values   registers.Map
}

// Event is one record of the poller's stream. Every stream ends with exactly
// one ConnectionLost, Stopped or Failed record.
type Event struct {
	Kind     Kind
	Snapshot *Snapshot
	Err      error
}

// Terminal reports whether this is the final record of the stream
func (e Event) Terminal() bool {
	return e.Kind != KindSnapshot
}

// Options controls the poll cadence. Zero fields take protocol defaults.
type Options struct {
	Period    time.Duration
	Backoff   time.Duration
	Threshold int
}

func (o Options) withDefaults() Options {
	if o.Period <= 0 {
		o.Period = hubbus.PollPeriod
	}
	if o.Backoff <= 0 {
		o.Backoff = hubbus.PollBackoff
	}
	if o.Threshold <= 0 {
		o.Threshold = hubbus.PollFailureThreshold
	}
	return o
}

// Poller reads the layout's sensor block and then its binding block
type Poller struct {
	ch     *registers.Channel
	layout registers.Layout
	opts   Options
}

// New creates a poller over ch
func New(ch *registers.Channel, layout registers.Layout, opts Options) *Poller {
	return &Poller{ch: ch, layout: layout, opts: opts.withDefaults()}
}

// Handle controls a running poller
type Handle struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
}

// Events returns the event stream. It is closed after the terminal event.
func (h *Handle) Events() <-chan Event {
	return h.events
}

// Stop cancels the poller; the stream ends with a Stopped record
func (h *Handle) Stop() {
	h.cancel()
}

// Wait blocks until the poller goroutine has exited
func (h *Handle) Wait() {
	<-h.done
}

// Start launches the poll loop in its own goroutine
func (p *Poller) Start(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		events: make(chan Event, 4),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		defer close(h.events)
		defer cancel()
		p.loop(ctx, h.events)
	}()
	return h
}

func (p *Poller) loop(ctx context.Context, events chan<- Event) {
	failures := 0
	cycle := 0
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			glog.Infof("poller: stopped after %d cycles", cycle)
			events <- Event{Kind: KindStopped, Err: ctx.Err()}
			return
		case <-timer.C:
		}

		snap, err := p.poll()
		switch {
		case err == nil:
			cycle++
			failures = 0
			snap.Cycle = cycle
			select {
			case events <- Event{Kind: KindSnapshot, Snapshot: snap}:
			case <-ctx.Done():
				continue
			}
			timer.Reset(p.opts.Period)

		case hubbus.IsLinkError(err):
			glog.Errorf("poller: %v", err)
			events <- Event{Kind: KindFailed, Err: err}
			return

		default:
			failures++
			glog.Warningf("poller: cycle failed (%d/%d): %v", failures, p.opts.Threshold, err)
			if failures >= p.opts.Threshold {
				events <- Event{Kind: KindConnectionLost, Err: fmt.Errorf("%w: %d consecutive failures: %w", hubbus.ErrConnectionLost, failures, err)}
				return
			}
			timer.Reset(p.opts.Backoff)
		}
	}
}

func (p *Poller) poll() (*Snapshot, error) {
	sensors, err := p.ch.ReadBlock(p.layout.Sensors)
	if err != nil {
		return nil, err
	}
	bindings, err := p.ch.ReadBlock(p.layout.Bindings)
	if err != nil {
		return nil, err
	}
	values := make(registers.Map, len(sensors)+len(bindings))
	values.Merge(sensors)
	values.Merge(bindings)
	return &Snapshot{
		Time:     time.Now(),
		Sensors:  sensors.Values(p.layout.Sensors),
		Bindings: bindings.Values(p.layout.Bindings),
		Values:   values,
	}, nil
}

// IsConnectionLost reports whether err ended a poller on its failure threshold
func IsConnectionLost(err error) bool {
	return errors.Is(err, hubbus.ErrConnectionLost)
}
