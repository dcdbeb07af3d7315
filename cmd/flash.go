// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/umvh/pkg/firmware"
	"github.com/Thermoquad/umvh/pkg/session"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	flashSkipStart bool
	flashNoTUI     bool
)

var flashCmd = &cobra.Command{
	Use:   "flash <image.bin>",
	Short: "Send a firmware image to the hub bootloader",
	Long: `Update the hub firmware.

The hub is told to enter its bootloader on the current link, then the image is
sent in 84-byte chunks on the update link (115200 8N1 by default). Each chunk
is retried up to the configured attempt count before the update fails. The
original link settings are restored when the transfer ends.

Use --skip-start when the hub is already waiting in its bootloader.`,
	Args: cobra.ExactArgs(1),
	RunE: runFlash,
}

func init() {
	rootCmd.AddCommand(flashCmd)
	flashCmd.Flags().BoolVar(&flashSkipStart, "skip-start", false, "Do not send the start-update command")
	flashCmd.Flags().BoolVar(&flashNoTUI, "no-tui", false, "Print progress lines instead of the terminal UI")
}

func runFlash(cmd *cobra.Command, args []string) error {
	image, err := firmware.LoadImage(args[0])
	if err != nil {
		return err
	}
	update, err := cfg.Firmware.Link.Config()
	if err != nil {
		return err
	}

	conn, err := openConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	lease, err := conn.Begin(session.Transferring)
	if err != nil {
		return err
	}
	defer lease.End()

	transfer, err := firmware.New(lease.Port(), image, firmware.Options{
		Slave:       cfg.Slave,
		UpdateLink:  update,
		SkipStart:   flashSkipStart,
		SettleDelay: cfg.Firmware.SettleDelay,
		RetryDelay:  cfg.Firmware.RetryDelay,
		AckTimeout:  cfg.Timeout,
		MaxAttempts: cfg.Firmware.MaxAttempts,
		Trace:       traceFrame,
	})
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if flashNoTUI {
		fmt.Printf("umvh - Firmware Update\n")
		fmt.Printf("Connection: %s\n", conn.info)
		fmt.Printf("Image: %s (%d bytes, %d chunks)\n\n", args[0], len(image), transfer.Chunks())
		return holdFailure(transfer.Run(ctx, func(ev firmware.Event) {
			fmt.Println(ev)
		}))
	}

	h := transfer.Start(ctx)
	m := newFlashModel(h, args[0], len(image), transfer.Chunks(), conn.info)
	final, err := tea.NewProgram(m).Run()
	if err != nil {
		h.Cancel()
		for range h.Events() {
		}
		return fmt.Errorf("TUI error: %v", err)
	}
	if err := h.Wait(); err != nil {
		return holdFailure(err)
	}
	if fm, ok := final.(flashModel); ok && fm.cancelled {
		return fmt.Errorf("update cancelled")
	}
	return nil
}
