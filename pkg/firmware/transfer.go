// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package firmware sends a firmware image to the hub bootloader.
//
// A transfer is a single pass through
//
//	Idle -> SendingStart -> WaitingReset -> Transferring -> Completed | Failed
//
// Chunks are sent in ascending order with one request in flight. A chunk is
// retried a fixed number of times; exhausting the attempts fails the whole
// run. The link configuration active before the switch to the update link is
// restored before the terminal event is emitted.
package firmware

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Thermoquad/umvh/pkg/hubbus"
	"github.com/Thermoquad/umvh/pkg/link"
	"github.com/golang/glog"
)

// Options controls a transfer. Zero fields take protocol defaults.
type Options struct {
	Slave      byte
	UpdateLink hubbus.LinkConfig

	// SkipStart assumes the device already runs its bootloader
	SkipStart bool

	SettleDelay time.Duration
	RetryDelay  time.Duration
	AckTimeout  time.Duration
	MaxAttempts int

	// Trace receives every frame sent (tx) or received
	Trace func(tx bool, frame []byte)
}

func (o Options) withDefaults() Options {
	if o.Slave == 0 {
		o.Slave = hubbus.AddressMin
	}
	if o.UpdateLink == (hubbus.LinkConfig{}) {
		o.UpdateLink = hubbus.UpdateLink
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = hubbus.SettleDelay
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = hubbus.RetryDelay
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = hubbus.ReadTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = hubbus.MaxRetries
	}
	return o
}

// LoadImage reads a firmware image file once
func LoadImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read firmware image: %w", err)
	}
	if err := checkImage(data); err != nil {
		return nil, err
	}
	return data, nil
}

func checkImage(image []byte) error {
	if len(image) == 0 {
		return &hubbus.ValidationError{Field: "image", Message: "firmware image is empty"}
	}
	if n := hubbus.ChunkCount(len(image)); n > 0xFFFF {
		return &hubbus.ValidationError{Field: "image", Message: fmt.Sprintf("image needs %d chunks, limit is 65535", n)}
	}
	return nil
}

// Transfer is one firmware update run over an open port
type Transfer struct {
	port  link.Port
	image []byte
	opts  Options
	total int

	mu    sync.Mutex
	state State
}

// New prepares a transfer of image. The image must not change afterwards.
func New(port link.Port, image []byte, opts Options) (*Transfer, error) {
	if err := checkImage(image); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	if !hubbus.ValidAddress(opts.Slave) {
		return nil, &hubbus.ValidationError{Field: "slave", Message: fmt.Sprintf("slave id %d outside %d..%d", opts.Slave, hubbus.AddressMin, hubbus.AddressMax)}
	}
	if err := opts.UpdateLink.Validate(); err != nil {
		return nil, err
	}
	return &Transfer{
		port:  port,
		image: image,
		opts:  opts,
		total: hubbus.ChunkCount(len(image)),
		state: StateIdle,
	}, nil
}

// Chunks returns the number of chunks the image is split into
func (t *Transfer) Chunks() int {
	return t.total
}

// State returns the current state
func (t *Transfer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transfer) setState(s State) {
	t.mu.Lock()
	prev := t.state
	t.state = s
	t.mu.Unlock()
	if prev != s {
		glog.Infof("firmware: %s -> %s", prev, s)
	}
}

// Handle controls a running transfer
type Handle struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Events returns the event stream. It is closed after the terminal event
// and must be drained by the caller.
func (h *Handle) Events() <-chan Event {
	return h.events
}

// Cancel requests a stop at the next chunk boundary or during a wait
func (h *Handle) Cancel() {
	h.cancel()
}

// Wait blocks until the transfer has finished and returns its error
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Start runs the transfer in its own goroutine
func (t *Transfer) Start(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		events: make(chan Event, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		defer close(h.events)
		defer cancel()

		h.err = t.run(ctx, h.events)
		final := Event{State: StateCompleted, Percent: 100, Chunk: t.total, Total: t.total}
		if h.err != nil {
			final = Event{State: StateFailed, Total: t.total, Err: h.err}
			t.setState(StateFailed)
			glog.Errorf("firmware: transfer failed: %v", h.err)
		} else {
			t.setState(StateCompleted)
		}
		h.events <- final
	}()
	return h
}

// Run executes the transfer synchronously, passing every event to fn
func (t *Transfer) Run(ctx context.Context, fn func(Event)) error {
	h := t.Start(ctx)
	for ev := range h.Events() {
		if fn != nil {
			fn(ev)
		}
	}
	return h.Wait()
}

func (t *Transfer) run(ctx context.Context, events chan<- Event) (err error) {
	progress := func(s State, msg string) {
		events <- Event{State: s, Message: msg, Total: t.total}
	}

	if t.opts.SkipStart {
		glog.Infof("firmware: skipping start command")
	} else {
		t.setState(StateSendingStart)
		progress(StateSendingStart, "preparing update")
		if err := t.sendStart(); err != nil {
			return fmt.Errorf("start update: %w", err)
		}

		t.setState(StateWaitingReset)
		progress(StateWaitingReset, "waiting for bootloader")
		if err := sleep(ctx, t.opts.SettleDelay); err != nil {
			return err
		}
	}

	t.setState(StateTransferring)
	// A failed switch may leave the mode partly applied, so the restore is
	// registered first.
	prior := t.port.Link()
	defer func() {
		if rerr := t.port.SetLink(prior); rerr != nil {
			glog.Warningf("firmware: failed to restore link %s: %v", prior, rerr)
			err = errors.Join(err, fmt.Errorf("restore link %s: %w", prior, rerr))
		}
	}()
	if err := t.port.SetLink(t.opts.UpdateLink); err != nil {
		return fmt.Errorf("switch to update link: %w", err)
	}
	progress(StateTransferring, fmt.Sprintf("sending %d chunks at %s", t.total, t.opts.UpdateLink))

	for i := 1; i <= t.total; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled before chunk %d/%d: %w", i, t.total, err)
		}
		if err := t.sendChunk(ctx, i); err != nil {
			return err
		}
		events <- Event{State: StateTransferring, Percent: i * 100 / t.total, Chunk: i, Total: t.total}
	}
	return nil
}

func (t *Transfer) sendStart() error {
	frame := hubbus.EncodeStartUpdate(t.opts.Slave)
	reply, err := t.exchange(frame)
	if err != nil {
		return err
	}
	return hubbus.DecodeAck(reply, t.opts.Slave, hubbus.FuncStartUpdate)
}

func (t *Transfer) sendChunk(ctx context.Context, index int) error {
	lo := (index - 1) * hubbus.MaxChunkPayload
	hi := min(lo+hubbus.MaxChunkPayload, len(t.image))
	frame, err := hubbus.EncodeFirmwareChunk(t.opts.Slave, uint16(index), uint16(t.total), t.image[lo:hi])
	if err != nil {
		return err
	}

	var last error
	for attempt := 1; attempt <= t.opts.MaxAttempts; attempt++ {
		reply, err := t.exchange(frame)
		if err == nil {
			err = hubbus.DecodeAck(reply, t.opts.Slave, hubbus.FuncFirmwareChunk)
		}
		if err == nil {
			return nil
		}
		last = err
		glog.Warningf("firmware: chunk %d/%d attempt %d/%d failed: %v", index, t.total, attempt, t.opts.MaxAttempts, err)
		if attempt < t.opts.MaxAttempts {
			if err := sleep(ctx, t.opts.RetryDelay); err != nil {
				return fmt.Errorf("cancelled while retrying chunk %d/%d: %w", index, t.total, err)
			}
		}
	}
	return fmt.Errorf("chunk %d/%d not acknowledged after %d attempts: %w", index, t.total, t.opts.MaxAttempts, last)
}

func (t *Transfer) exchange(frame []byte) ([]byte, error) {
	if err := t.port.ResetInputBuffer(); err != nil {
		return nil, &hubbus.LinkError{Op: "flush", Err: err}
	}
	t.trace(true, frame)
	if err := link.WriteFrame(t.port, frame); err != nil {
		return nil, err
	}
	reply, err := link.ReadAck(t.port, t.opts.AckTimeout)
	t.trace(false, reply)
	return reply, err
}

func (t *Transfer) trace(tx bool, frame []byte) {
	if t.opts.Trace != nil && len(frame) > 0 {
		t.opts.Trace(tx, frame)
	}
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
