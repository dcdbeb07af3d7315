// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads umvh settings from a YAML file.
//
// Every field has a default, so a file only needs the keys it changes.
// Command line flags are applied on top by the caller.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/umvh/pkg/hubbus"
	"github.com/Thermoquad/umvh/pkg/registers"
	"gopkg.in/yaml.v2"
)

// Link is the YAML form of a serial line configuration
type Link struct {
	Baud     int    `yaml:"baud"`
	DataBits int    `yaml:"data_bits"`
	Parity   string `yaml:"parity"`
	StopBits int    `yaml:"stop_bits"`
}

// LinkOf converts a line configuration to its YAML form
func LinkOf(c hubbus.LinkConfig) Link {
	parity := map[hubbus.Parity]string{
		hubbus.ParityNone: "none",
		hubbus.ParityOdd:  "odd",
		hubbus.ParityEven: "even",
	}[c.Parity]
	return Link{Baud: c.BaudRate, DataBits: c.DataBits, Parity: parity, StopBits: c.StopBits}
}

// Config converts the YAML form back and validates it
func (l Link) Config() (hubbus.LinkConfig, error) {
	p, err := hubbus.ParseParity(l.Parity)
	if err != nil {
		return hubbus.LinkConfig{}, err
	}
	c := hubbus.LinkConfig{BaudRate: l.Baud, DataBits: l.DataBits, Parity: p, StopBits: l.StopBits}
	return c, c.Validate()
}

// Discovery configures the bootstrap announcement listener
type Discovery struct {
	Link     Link          `yaml:"link"`
	Beacon   byte          `yaml:"beacon"`
	Interval time.Duration `yaml:"interval"`
}

// Firmware configures firmware transfers
type Firmware struct {
	Link        Link          `yaml:"link"`
	SettleDelay time.Duration `yaml:"settle_delay"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// Poll configures the monitor loop
type Poll struct {
	Period    time.Duration `yaml:"period"`
	Backoff   time.Duration `yaml:"backoff"`
	Threshold int           `yaml:"threshold"`
}

// MQTT configures snapshot publishing. An empty broker disables it.
type MQTT struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// WebSocket configures the snapshot stream server. An empty address disables it.
type WebSocket struct {
	Listen string `yaml:"listen"`
}

// Config holds all settings
type Config struct {
	Port      string            `yaml:"port"`
	Link      Link              `yaml:"link"`
	Slave     byte              `yaml:"slave"`
	Timeout   time.Duration     `yaml:"timeout"`
	Revision  string            `yaml:"revision"`
	Registers *registers.Layout `yaml:"registers"`
	Discovery Discovery         `yaml:"discovery"`
	Firmware  Firmware          `yaml:"firmware"`
	Poll      Poll              `yaml:"poll"`
	MQTT      MQTT              `yaml:"mqtt"`
	WebSocket WebSocket         `yaml:"websocket"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		Link:     LinkOf(hubbus.BootstrapLink),
		Slave:    1,
		Timeout:  hubbus.ReadTimeout,
		Revision: registers.BaseLayout.Name,
		Discovery: Discovery{
			Link:     LinkOf(hubbus.BootstrapLink),
			Beacon:   hubbus.DefaultBeacon,
			Interval: hubbus.BeaconInterval,
		},
		Firmware: Firmware{
			Link:        LinkOf(hubbus.UpdateLink),
			SettleDelay: hubbus.SettleDelay,
			RetryDelay:  hubbus.RetryDelay,
			MaxAttempts: hubbus.MaxRetries,
		},
		Poll: Poll{
			Period:    hubbus.PollPeriod,
			Backoff:   hubbus.PollBackoff,
			Threshold: hubbus.PollFailureThreshold,
		},
		MQTT: MQTT{
			Topic:    "umvh/snapshot",
			ClientID: "umvh",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Layout returns the explicit register layout if one is set, otherwise
// the named revision
func (c Config) Layout() (registers.Layout, error) {
	if c.Registers != nil {
		l := *c.Registers
		if l.Name == "" {
			l.Name = "custom"
		}
		return l, l.Validate()
	}
	return registers.Revision(c.Revision)
}

// Validate checks every section
func (c Config) Validate() error {
	for name, l := range map[string]Link{
		"link":           c.Link,
		"discovery.link": c.Discovery.Link,
		"firmware.link":  c.Firmware.Link,
	} {
		if _, err := l.Config(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if !hubbus.ValidAddress(c.Slave) {
		return &hubbus.ValidationError{Field: "slave", Message: fmt.Sprintf("slave address %d outside 1..247", c.Slave)}
	}
	if c.Timeout <= 0 {
		return &hubbus.ValidationError{Field: "timeout", Message: "timeout must be positive"}
	}
	if c.Firmware.MaxAttempts < 1 {
		return &hubbus.ValidationError{Field: "firmware.max_attempts", Message: "at least one attempt is required"}
	}
	if c.Poll.Period <= 0 || c.Poll.Backoff <= 0 {
		return &hubbus.ValidationError{Field: "poll", Message: "period and backoff must be positive"}
	}
	if c.Poll.Threshold < 1 {
		return &hubbus.ValidationError{Field: "poll.threshold", Message: "threshold must be at least 1"}
	}
	if _, err := c.Layout(); err != nil {
		return err
	}
	return nil
}
