// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/umvh/pkg/hubbus"
	"github.com/Thermoquad/umvh/pkg/session"
	"github.com/spf13/cobra"
)

var packetTestAttempts int

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test the connection with one register read",
	Long: `Read the first sensor register until the hub answers or the attempts run out.

A device exception still counts as an answer: the hub is reachable and the
link settings are right.

Exit codes:
  0 - The hub answered
  1 - No valid reply after all attempts
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestAttempts, "attempts", hubbus.MaxRetries, "Read attempts")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	layout, err := cfg.Layout()
	if err != nil {
		return err
	}

	conn, err := openConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	lease, err := conn.Begin(session.Exchanging)
	if err != nil {
		return err
	}
	defer lease.End()

	fmt.Printf("umvh - Packet Test\n")
	fmt.Printf("Connection: %s\n", conn.info)
	fmt.Printf("Slave: %d, timeout %s\n\n", cfg.Slave, cfg.Timeout)

	ch := channel(lease)
	for i := 1; i <= packetTestAttempts; i++ {
		start := time.Now()
		values, err := ch.ReadRegisters(layout.Sensors.Start, 1)
		elapsed := time.Since(start).Round(time.Millisecond)
		switch {
		case err == nil:
			fmt.Printf("Attempt %d: register %d = %d (%s)\n", i, layout.Sensors.Start, values[0], elapsed)
			return nil
		case !hubbus.IsRetryable(err):
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			os.Exit(2)
		default:
			fmt.Printf("Attempt %d: %v\n", i, err)
			var exc *hubbus.ExceptionError
			if errors.As(err, &exc) {
				fmt.Printf("Hub answered with an exception; link settings are correct\n")
				return nil
			}
		}
	}
	fmt.Printf("\nNo valid reply after %d attempts\n", packetTestAttempts)
	os.Exit(1)
	return nil
}
