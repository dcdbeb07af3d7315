// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/umvh/pkg/hubbus"
	"github.com/Thermoquad/umvh/pkg/link"
	"github.com/Thermoquad/umvh/pkg/registers"
	"github.com/Thermoquad/umvh/pkg/session"
	"github.com/golang/glog"
	"golang.org/x/term"
)

// passwordEnv overrides the interactive commit password prompt
const passwordEnv = "UMVH_PASSWORD"

// connection is an open port wrapped in a session
type connection struct {
	*session.Session
	port *link.SerialPort
	info string
}

// openConnection opens the configured port on the configured link
func openConnection() (*connection, error) {
	if cfg.Port == "" {
		return nil, errors.New("--port must be specified (see `umvh ports`)")
	}
	lc, err := cfg.Link.Config()
	if err != nil {
		return nil, err
	}
	port, err := link.Open(cfg.Port, lc)
	if err != nil {
		return nil, err
	}
	glog.Infof("opened %s at %s", cfg.Port, lc)
	return &connection{
		Session: session.New(port),
		port:    port,
		info:    fmt.Sprintf("Serial: %s @ %s", cfg.Port, lc),
	}, nil
}

// channel returns a register channel over the leased port
func channel(lease *session.Lease) *registers.Channel {
	ch := registers.NewChannel(lease.Port(), cfg.Slave)
	ch.Timeout = cfg.Timeout
	ch.Trace = traceFrame
	return ch
}

// traceFrame logs every frame at verbosity 2
func traceFrame(tx bool, frame []byte) {
	if !glog.V(2) {
		return
	}
	dir := "RX"
	if tx {
		dir = "TX"
	}
	glog.Infof("%s %s", dir, hubbus.FormatFrame(frame))
}

// holdFailure leaves a terminal failure readable for errorDelay before the
// port is closed. Non-interactive runs return at once.
func holdFailure(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errorDelay <= 0 || !term.IsTerminal(int(os.Stdout.Fd())) {
		return err
	}
	fmt.Fprintf(os.Stderr, "\nError: %v\nClosing port in %s\n", err, errorDelay)
	time.Sleep(errorDelay)
	return err
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// readPassword returns the commit password from the environment or an
// echo-free prompt. An empty answer means no password.
func readPassword() (string, error) {
	if pw, ok := os.LookupEnv(passwordEnv); ok {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password (empty for none): ")
	pw, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal; read a plain line
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		return strings.TrimSpace(line), nil
	}
	fmt.Fprintln(os.Stderr)
	return strings.TrimSpace(string(pw)), nil
}

// parseUint16 accepts decimal or 0x-prefixed hex
func parseUint16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid 16-bit value %q", s)
	}
	return uint16(v), nil
}
