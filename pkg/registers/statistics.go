// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package registers

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/umvh/pkg/hubbus"
)

// Counters is a point-in-time copy of a channel's exchange statistics
type Counters struct {
	Elapsed time.Duration

	Total      uint64
	OK         uint64
	Timeouts   uint64
	Framing    uint64
	Exceptions uint64
	LinkErrors uint64
	Other      uint64

	Rate      float64 // exchanges/sec
	ErrorRate float64 // errors/sec
}

// Errors returns the number of failed exchanges
func (c Counters) Errors() uint64 {
	return c.Total - c.OK
}

// Statistics tracks exchange outcomes and error rates. It is safe for
// concurrent use.
type Statistics struct {
	mu     sync.Mutex
	start  time.Time
	counts Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{start: time.Now()}
}

// Record classifies the result of one request/response exchange
func (s *Statistics) Record(err error) {
	var exc *hubbus.ExceptionError

	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts.Total++
	switch {
	case err == nil:
		s.counts.OK++
	case errors.Is(err, hubbus.ErrTimeout):
		s.counts.Timeouts++
	case errors.Is(err, hubbus.ErrFraming):
		s.counts.Framing++
	case errors.As(err, &exc):
		s.counts.Exceptions++
	case hubbus.IsLinkError(err):
		s.counts.LinkErrors++
	default:
		s.counts.Other++
	}
}

// Counters returns the current counts with rates calculated
func (s *Statistics) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counts
	c.Elapsed = time.Since(s.start)
	if secs := c.Elapsed.Seconds(); secs > 0 {
		c.Rate = float64(c.Total) / secs
		c.ErrorRate = float64(c.Errors()) / secs
	}
	return c
}

// Reset clears all counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start = time.Now()
	s.counts = Counters{}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	c := s.Counters()
	percent := func(n uint64) float64 {
		if c.Total == 0 {
			return 0
		}
		return float64(n) * 100 / float64(c.Total)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Statistics (%.0f seconds) ===\n", c.Elapsed.Seconds())
	fmt.Fprintf(&b, "Exchanges:       %8d\n", c.Total)
	fmt.Fprintf(&b, "OK:              %8d (%.1f%%)\n", c.OK, percent(c.OK))
	for _, row := range []struct {
		label string
		n     uint64
	}{
		{"Timeouts:", c.Timeouts},
		{"Framing Errors:", c.Framing},
		{"Exceptions:", c.Exceptions},
		{"Link Errors:", c.LinkErrors},
		{"Other Errors:", c.Other},
	} {
		if row.n > 0 {
			fmt.Fprintf(&b, "%-17s%8d (%.1f%%)\n", row.label, row.n, percent(row.n))
		}
	}
	fmt.Fprintf(&b, "Exchange Rate:   %8.1f /sec\n", c.Rate)
	fmt.Fprintf(&b, "Error Rate:      %8.1f /sec\n", c.ErrorRate)
	b.WriteString("================================\n")
	return b.String()
}
