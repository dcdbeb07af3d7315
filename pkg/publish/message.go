// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package publish forwards poll snapshots to MQTT brokers and WebSocket
// clients as JSON.
package publish

import (
	"errors"
	"sort"
	"time"

	"github.com/Thermoquad/umvh/pkg/calibration"
	"github.com/Thermoquad/umvh/pkg/poller"
	"github.com/Thermoquad/umvh/pkg/registers"
)

// Reading is one port of a snapshot, numbered as the operator sees it
type Reading struct {
	Port   int    `json:"port"`
	Raw    uint16 `json:"raw"`
	Sensor int    `json:"sensor"`
	Mode   string `json:"mode"`
	Value  string `json:"value"`
}

// Message is the JSON body published for each snapshot
type Message struct {
	Time     time.Time `json:"time"`
	Cycle    int       `json:"cycle"`
	Revision string    `json:"revision"`
	Readings []Reading `json:"readings"`
}

// NewMessage converts a snapshot taken with layout
func NewMessage(s *poller.Snapshot, layout registers.Layout) Message {
	m := Message{
		Time:     s.Time,
		Cycle:    s.Cycle,
		Revision: layout.Name,
		Readings: make([]Reading, 0, len(s.Sensors)),
	}
	for i, raw := range s.Sensors {
		r := Reading{Port: calibration.SwapPort(i + 1), Raw: raw}
		if i < len(s.Bindings) {
			b := calibration.DecodeBinding(s.Bindings[i])
			r.Sensor = b.Sensor
			r.Mode = b.Mode.String()
		}
		r.Value = calibration.FormatValue(raw, r.Sensor)
		m.Readings = append(m.Readings, r)
	}
	sort.Slice(m.Readings, func(i, j int) bool { return m.Readings[i].Port < m.Readings[j].Port })
	return m
}

// Sink receives messages
type Sink interface {
	Publish(m Message) error
}

// Fanout publishes to every sink and joins their errors
type Fanout []Sink

// Publish sends m to all sinks even when one fails
func (f Fanout) Publish(m Message) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
