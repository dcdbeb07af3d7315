// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/umvh/pkg/hubbus"
	"github.com/Thermoquad/umvh/pkg/link"
	"github.com/Thermoquad/umvh/pkg/session"
	"github.com/spf13/cobra"
)

var rawLogGap time.Duration

var rawLogCmd = &cobra.Command{
	Use:     "raw_log",
	Aliases: []string{"sniff"},
	Short:   "Display bus traffic in human-readable format",
	Long: `Listen without transmitting and print every frame seen on the bus.

Frames are separated by line silence (--gap, default 5ms). Each frame is shown
with a timestamp, the function name and decoded fields; frames that fail their
checksum are shown as a hex dump.`,
	Args: cobra.NoArgs,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().DurationVar(&rawLogGap, "gap", 5*time.Millisecond, "Silence that ends a frame")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, err := openConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	lease, err := conn.Begin(session.Sniffing)
	if err != nil {
		return err
	}
	defer lease.End()

	fmt.Printf("umvh - Raw Bus Log\n")
	fmt.Printf("Connection: %s\n", conn.info)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signalContext()
	defer stop()

	frames, invalid := 0, 0
	for ctx.Err() == nil {
		frame, err := link.ReadBurst(lease.Port(), rawLogGap, 200*time.Millisecond)
		if errors.Is(err, hubbus.ErrTimeout) {
			continue
		}
		if err != nil {
			return err
		}
		frames++
		if !hubbus.ValidChecksum(frame) {
			invalid++
		}
		fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), hubbus.FormatFrame(frame))
	}
	fmt.Printf("\n%d frames, %d invalid\n", frames, invalid)
	return nil
}
