// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/Thermoquad/umvh/pkg/registers"
	"github.com/Thermoquad/umvh/pkg/session"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
	checkCount    int
	checkDelay    time.Duration
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Measure link quality with repeated register reads",
	Long: `Read the sensor block repeatedly and classify every exchange.

Each failed exchange is printed as it happens, classified as a timeout,
framing error (short reply or CRC mismatch), device exception or link
failure. Use --show-all to print successful exchanges too.

A statistics summary is printed every --stats-interval seconds and when the
run ends. --count 0 runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all exchanges (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().IntVar(&checkCount, "count", 100, "Number of reads (0 = until interrupted)")
	errorDetectionCmd.Flags().DurationVar(&checkDelay, "delay", 50*time.Millisecond, "Pause between reads")
}

// checkErrorDetectionFlags rejects intervals the ticker cannot run with
func checkErrorDetectionFlags(interval, count int) error {
	if interval <= 0 {
		return fmt.Errorf("--stats-interval must be at least 1 second, got %d", interval)
	}
	if count < 0 {
		return fmt.Errorf("--count must not be negative, got %d", count)
	}
	return nil
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	if err := checkErrorDetectionFlags(statsInterval, checkCount); err != nil {
		return err
	}
	layout, err := cfg.Layout()
	if err != nil {
		return err
	}

	conn, err := openConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	lease, err := conn.Begin(session.Exchanging)
	if err != nil {
		return err
	}
	defer lease.End()

	ch := channel(lease)
	stats := registers.NewStatistics()
	ch.Stats = stats

	fmt.Printf("umvh - Link Quality\n")
	fmt.Printf("Connection: %s\n", conn.info)
	fmt.Printf("Reading %d registers at %d from slave %d\n\n", layout.Sensors.Count, layout.Sensors.Start, cfg.Slave)

	ctx, stop := signalContext()
	defer stop()

	ticker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer ticker.Stop()

	for i := 1; checkCount == 0 || i <= checkCount; i++ {
		select {
		case <-ctx.Done():
			fmt.Printf("\n%s", stats)
			return nil
		case <-ticker.C:
			fmt.Printf("\n%s\n", stats)
		default:
		}

		timestamp := time.Now().Format("15:04:05.000")
		start := time.Now()
		_, err := ch.ReadBlock(layout.Sensors)
		switch {
		case err != nil:
			fmt.Printf("[%s] \033[1;31mERROR:\033[0m #%d %v\n", timestamp, i, err)
		case showAll:
			fmt.Printf("[%s] \033[1;32mOK:\033[0m #%d in %s\n", timestamp, i, time.Since(start).Round(time.Millisecond))
		}

		select {
		case <-ctx.Done():
		case <-time.After(checkDelay):
		}
	}

	fmt.Printf("\n%s", stats)
	if c := stats.Counters(); c.Errors() > 0 {
		return fmt.Errorf("%d of %d exchanges failed", c.Errors(), c.Total)
	}
	return nil
}
