// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package discovery finds the link parameters and slave id of an
// unconfigured hub by beaconing on a bootstrap link and scanning for its
// announcement frame.
package discovery

import (
	"context"
	"time"

	"github.com/Thermoquad/umvh/pkg/hubbus"
	"github.com/Thermoquad/umvh/pkg/link"
	"github.com/golang/glog"
)

// Options controls a discovery run. Zero fields take protocol defaults.
type Options struct {
	Bootstrap hubbus.LinkConfig
	Beacon    byte
	Interval  time.Duration

	// ReadSlice bounds each read between beacons
	ReadSlice time.Duration
}

func (o Options) withDefaults() Options {
	if o.Bootstrap == (hubbus.LinkConfig{}) {
		o.Bootstrap = hubbus.BootstrapLink
	}
	if o.Beacon == 0 {
		o.Beacon = hubbus.DefaultBeacon
	}
	if o.Interval <= 0 {
		o.Interval = hubbus.BeaconInterval
	}
	if o.ReadSlice <= 0 {
		o.ReadSlice = 20 * time.Millisecond
	}
	return o
}

// Result is the outcome of a successful discovery
type Result struct {
	Announcement hubbus.Announcement
	Beacons      int
	Discarded    int
	Elapsed      time.Duration
}

// Run beacons until an announcement is parsed, ctx is cancelled or the port
// fails. The port is left on the bootstrap link.
func Run(ctx context.Context, port link.Port, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if err := port.SetLink(opts.Bootstrap); err != nil {
		return nil, err
	}
	if err := port.ResetInputBuffer(); err != nil {
		return nil, &hubbus.LinkError{Op: "flush", Err: err}
	}
	glog.Infof("discovery: beaconing 0x%02X every %s on %s", opts.Beacon, opts.Interval, opts.Bootstrap)

	start := time.Now()
	scanner := hubbus.NewAnnounceScanner()
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	beacons := 0
	beacon := []byte{opts.Beacon}
	send := func() error {
		beacons++
		glog.V(2).Infof("discovery: beacon #%d", beacons)
		return link.WriteFrame(port, beacon)
	}
	if err := send(); err != nil {
		return nil, err
	}

	buf := make([]byte, 2*hubbus.AnnounceSize)
	for {
		select {
		case <-ctx.Done():
			glog.Infof("discovery: stopped after %d beacons", beacons)
			return nil, ctx.Err()
		case <-ticker.C:
			if err := send(); err != nil {
				return nil, err
			}
		default:
		}

		if err := port.SetReadTimeout(opts.ReadSlice); err != nil {
			return nil, &hubbus.LinkError{Op: "set timeout", Err: err}
		}
		n, err := port.Read(buf)
		if err != nil {
			return nil, &hubbus.LinkError{Op: "read", Err: err}
		}
		if n == 0 {
			continue
		}
		if a := scanner.Feed(buf[:n]); a != nil {
			r := &Result{
				Announcement: *a,
				Beacons:      beacons,
				Discarded:    scanner.Discarded(),
				Elapsed:      time.Since(start),
			}
			glog.Infof("discovery: found %s after %d beacons (%d bytes discarded)", a, beacons, r.Discarded)
			return r, nil
		}
	}
}

// Handle is a discovery running in its own goroutine
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	result *Result
	err    error
}

// Start runs discovery in the background
func Start(ctx context.Context, port link.Port, opts Options) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer cancel()
		h.result, h.err = Run(ctx, port, opts)
	}()
	return h
}

// Cancel stops the run; Wait then returns context.Canceled
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed when the run has finished
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run finishes
func (h *Handle) Wait() (*Result, error) {
	<-h.done
	return h.result, h.err
}
