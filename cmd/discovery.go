// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/umvh/pkg/config"
	"github.com/Thermoquad/umvh/pkg/discovery"
	"github.com/Thermoquad/umvh/pkg/hubbus"
	"github.com/Thermoquad/umvh/pkg/session"
	"github.com/spf13/cobra"
)

var discoveryTimeout time.Duration

var discoveryCmd = &cobra.Command{
	Use:   "discover",
	Short: "Read a hub's link settings from its announcement",
	Long: `Beacon on the bootstrap link until an unconfigured hub announces its
link settings and slave address.

The bootstrap link defaults to 9600 8N1 and the beacon byte to 0xA5; both can
be changed in the discovery section of the config file. Power-cycle the hub
while this command runs if it does not answer.

Exit codes:
  0 - Announcement received
  1 - No announcement before the timeout
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().DurationVar(&discoveryTimeout, "wait", 30*time.Second, "Give up after this long (0 waits forever)")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	bootstrap, err := cfg.Discovery.Link.Config()
	if err != nil {
		return err
	}

	conn, err := openConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	lease, err := conn.Begin(session.Discovering)
	if err != nil {
		return err
	}
	defer lease.End()

	fmt.Printf("umvh - Hub Discovery\n")
	fmt.Printf("Connection: %s\n", conn.info)
	fmt.Printf("Bootstrap link: %s, beacon 0x%02X every %s\n\n", bootstrap, cfg.Discovery.Beacon, cfg.Discovery.Interval)

	ctx, stop := signalContext()
	defer stop()
	if discoveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, discoveryTimeout)
		defer cancel()
	}

	result, err := discovery.Run(ctx, lease.Port(), discovery.Options{
		Bootstrap: bootstrap,
		Beacon:    cfg.Discovery.Beacon,
		Interval:  cfg.Discovery.Interval,
	})
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		fmt.Printf("No announcement after %s\n", discoveryTimeout)
		os.Exit(1)
	case errors.Is(err, context.Canceled):
		fmt.Println("Cancelled")
		return nil
	case err != nil:
		return err
	}

	a := result.Announcement
	fmt.Printf("Hub found after %s (%d beacons", result.Elapsed.Round(time.Millisecond), result.Beacons)
	if result.Discarded > 0 {
		fmt.Printf(", %d stray bytes skipped", result.Discarded)
	}
	fmt.Printf(")\n\n")
	fmt.Printf("  Slave address: %d\n", a.Slave)
	fmt.Printf("  Link:          %s\n", a.Link)
	fmt.Printf("  Reserved:      0x%04X\n\n", a.Reserved)
	fmt.Println(connectHint(cfg.Port, a))
	return nil
}

// connectHint renders the flags that reach the announced hub
func connectHint(port string, a hubbus.Announcement) string {
	return fmt.Sprintf("Connect with: umvh --port %s --baud %d --data-bits %d --parity %s --stop-bits %d --slave %d",
		port, a.Link.BaudRate, a.Link.DataBits, config.LinkOf(a.Link).Parity, a.Link.StopBits, a.Slave)
}
