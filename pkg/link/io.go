// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"time"

	"github.com/Thermoquad/umvh/pkg/hubbus"
)

// readSlice is the longest single Read call made while waiting for a
// response, so deadlines are honoured even on ports that ignore them.
const readSlice = 50 * time.Millisecond

// AckIdleGap ends an acknowledgement read once the line has been quiet this
// long after MinAckSize bytes arrived.
const AckIdleGap = 30 * time.Millisecond

// WriteFrame writes the whole frame or returns a LinkError
func WriteFrame(p Port, frame []byte) error {
	n, err := p.Write(frame)
	if err != nil {
		return &hubbus.LinkError{Op: "write", Err: err}
	}
	if n != len(frame) {
		return &hubbus.LinkError{Op: "write", Err: fmt.Errorf("short write: %d of %d bytes", n, len(frame))}
	}
	return nil
}

// ReadFull reads exactly n bytes or fails once timeout elapses.
// Nothing received is ErrTimeout; a partial response is ErrFraming.
// An exception reply ends the read early and is returned without error.
func ReadFull(p Port, n int, timeout time.Duration) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	deadline := time.Now().Add(timeout)
	for got < n {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := p.SetReadTimeout(min(remaining, readSlice)); err != nil {
			return nil, &hubbus.LinkError{Op: "set timeout", Err: err}
		}
		k, err := p.Read(buf[got:])
		if err != nil {
			return nil, &hubbus.LinkError{Op: "read", Err: err}
		}
		got += k
		if got < n && hubbus.IsExceptionReply(buf[:got]) {
			return buf[:hubbus.ExceptionSize], nil
		}
	}
	switch {
	case got == n:
		return buf, nil
	case got == 0:
		return nil, fmt.Errorf("%w after %s", hubbus.ErrTimeout, timeout)
	default:
		return buf[:got], fmt.Errorf("%w: short read %d of %d bytes", hubbus.ErrFraming, got, n)
	}
}

// ReadAck reads a vendor command acknowledgement. Reading stops when the
// line goes quiet after at least MinAckSize bytes, when a full frame has
// arrived, or when timeout elapses.
func ReadAck(p Port, timeout time.Duration) ([]byte, error) {
	buf := make([]byte, hubbus.MaxFrameSize)
	got := 0
	deadline := time.Now().Add(timeout)
	var lastByte time.Time
	for got < len(buf) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if got >= hubbus.MinAckSize && time.Since(lastByte) >= AckIdleGap {
			break
		}
		slice := readSlice
		if got >= hubbus.MinAckSize {
			slice = AckIdleGap
		}
		if err := p.SetReadTimeout(min(remaining, slice)); err != nil {
			return nil, &hubbus.LinkError{Op: "set timeout", Err: err}
		}
		k, err := p.Read(buf[got:])
		if err != nil {
			return nil, &hubbus.LinkError{Op: "read", Err: err}
		}
		if k > 0 {
			got += k
			lastByte = time.Now()
		}
	}
	if got == 0 {
		return nil, fmt.Errorf("%w after %s", hubbus.ErrTimeout, timeout)
	}
	return buf[:got], nil
}

// Transact flushes stale input, writes request and reads a fixed-length response
func Transact(p Port, request []byte, responseLen int, timeout time.Duration) ([]byte, error) {
	if err := p.ResetInputBuffer(); err != nil {
		return nil, &hubbus.LinkError{Op: "flush", Err: err}
	}
	if err := WriteFrame(p, request); err != nil {
		return nil, err
	}
	return ReadFull(p, responseLen, timeout)
}

// ReadBurst waits up to timeout for input and then collects bytes until the
// line has been quiet for gap. It is used to split passively captured
// traffic into frames.
func ReadBurst(p Port, gap, timeout time.Duration) ([]byte, error) {
	buf := make([]byte, 0, hubbus.MaxFrameSize)
	chunk := make([]byte, hubbus.MaxFrameSize)
	deadline := time.Now().Add(timeout)
	var lastByte time.Time
	for len(buf) < hubbus.MaxFrameSize {
		wait := readSlice
		if len(buf) > 0 {
			if time.Since(lastByte) >= gap {
				break
			}
			wait = gap
		} else {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, fmt.Errorf("%w after %s", hubbus.ErrTimeout, timeout)
			}
			wait = min(remaining, wait)
		}
		if err := p.SetReadTimeout(wait); err != nil {
			return nil, &hubbus.LinkError{Op: "set timeout", Err: err}
		}
		k, err := p.Read(chunk[:hubbus.MaxFrameSize-len(buf)])
		if err != nil {
			return nil, &hubbus.LinkError{Op: "read", Err: err}
		}
		if k > 0 {
			buf = append(buf, chunk[:k]...)
			lastByte = time.Now()
		}
	}
	return buf, nil
}
