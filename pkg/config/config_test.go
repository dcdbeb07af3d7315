// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Thermoquad/umvh/pkg/config"
	"github.com/Thermoquad/umvh/pkg/hubbus"
	"github.com/Thermoquad/umvh/pkg/registers"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "umvh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	link, err := cfg.Link.Config()
	require.NoError(t, err)
	require.Equal(t, hubbus.BootstrapLink, link)

	update, err := cfg.Firmware.Link.Config()
	require.NoError(t, err)
	require.Equal(t, hubbus.UpdateLink, update)

	layout, err := cfg.Layout()
	require.NoError(t, err)
	require.Equal(t, registers.BaseLayout, layout)
	require.Equal(t, byte(hubbus.DefaultBeacon), cfg.Discovery.Beacon)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)
}

func TestLoad_Overrides(t *testing.T) {
	path := writeFile(t, `
port: /dev/ttyUSB3
slave: 7
timeout: 250ms
revision: r13
link:
  baud: 19200
  parity: even
discovery:
  beacon: 0x5A
poll:
  period: 2s
  threshold: 3
mqtt:
  broker: tcp://localhost:1883
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, "/dev/ttyUSB3", cfg.Port)
	require.Equal(t, byte(7), cfg.Slave)
	require.Equal(t, 250*time.Millisecond, cfg.Timeout)
	require.Equal(t, byte(0x5A), cfg.Discovery.Beacon)
	require.Equal(t, 2*time.Second, cfg.Poll.Period)
	require.Equal(t, 3, cfg.Poll.Threshold)
	require.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)

	// untouched keys keep their defaults
	require.Equal(t, hubbus.PollBackoff, cfg.Poll.Backoff)
	require.Equal(t, "umvh/snapshot", cfg.MQTT.Topic)

	link, err := cfg.Link.Config()
	require.NoError(t, err)
	require.Equal(t, hubbus.LinkConfig{BaudRate: 19200, DataBits: 8, Parity: hubbus.ParityEven, StopBits: 1}, link)

	layout, err := cfg.Layout()
	require.NoError(t, err)
	require.Equal(t, "r13", layout.Name)
	require.Equal(t, uint16(35), layout.Sensors.Start)
}

func TestLoad_ExplicitLayout(t *testing.T) {
	path := writeFile(t, `
registers:
  sensors: {start: 200, count: 4}
  bindings: {start: 210, count: 4}
  points: [220, 221, 222, 223]
  commit: 224
  password: 225
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	layout, err := cfg.Layout()
	require.NoError(t, err)
	require.Equal(t, "custom", layout.Name)
	require.Equal(t, 4, layout.Ports())
	require.Equal(t, [4]uint16{220, 221, 222, 223}, layout.Points)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "colour: blue\n"},
		{"bad parity", "link:\n  parity: mark\n"},
		{"bad data bits", "firmware:\n  link:\n    data_bits: 5\n"},
		{"broadcast slave", "slave: 0\n"},
		{"unknown revision", "revision: r99\n"},
		{"overlapping layout", `
registers:
  sensors: {start: 10, count: 8}
  bindings: {start: 20, count: 8}
  points: [12, 30, 31, 32]
  commit: 33
  password: 34
`},
		{"zero threshold", "poll:\n  threshold: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeFile(t, tt.body))
			require.Error(t, err)
		})
	}

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLinkOf(t *testing.T) {
	l := config.LinkOf(hubbus.LinkConfig{BaudRate: 4800, DataBits: 7, Parity: hubbus.ParityOdd, StopBits: 2})
	require.Equal(t, config.Link{Baud: 4800, DataBits: 7, Parity: "odd", StopBits: 2}, l)
}
