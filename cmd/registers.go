// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/umvh/pkg/hubbus"
	"github.com/Thermoquad/umvh/pkg/registers"
	"github.com/Thermoquad/umvh/pkg/session"
	"github.com/spf13/cobra"
)

var readCmd = &cobra.Command{
	Use:   "read <start> [count]",
	Short: "Read holding registers",
	Long: `Read count holding registers (default 1) starting at start.

Addresses and counts accept decimal or 0x-prefixed hex.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRead,
}

var writeCmd = &cobra.Command{
	Use:   "write <register> <value>",
	Short: "Write a single holding register",
	Args:  cobra.ExactArgs(2),
	RunE:  runWrite,
}

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Show the register map in use",
	Long: `Print the register map selected by --revision or the registers section of
the config file. Known revisions: ` + fmt.Sprint(registers.RevisionNames()),
	Args: cobra.NoArgs,
	RunE: runLayout,
}

func init() {
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(layoutCmd)
}

func runRead(cmd *cobra.Command, args []string) error {
	start, err := parseUint16(args[0])
	if err != nil {
		return err
	}
	count := uint16(1)
	if len(args) == 2 {
		if count, err = parseUint16(args[1]); err != nil {
			return err
		}
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

	values, err := channel(lease).ReadRegisters(start, count)
	if err != nil {
		return err
	}
	for i, v := range values {
		fmt.Printf("%5d  0x%04X  %5d\n", int(start)+i, v, v)
	}
	return nil
}

func runWrite(cmd *cobra.Command, args []string) error {
	reg, err := parseUint16(args[0])
	if err != nil {
		return err
	}
	value, err := parseUint16(args[1])
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

	if err := channel(lease).WriteRegister(reg, value); err != nil {
		return err
	}
	fmt.Printf("Register %d = %d (0x%04X)\n", reg, value, value)
	return nil
}

func runLayout(cmd *cobra.Command, args []string) error {
	l, err := cfg.Layout()
	if err != nil {
		return err
	}
	block := func(b registers.Block) string {
		return fmt.Sprintf("%d..%d", b.Start, int(b.Start)+int(b.Count)-1)
	}
	fmt.Printf("Revision:  %s\n", l.Name)
	fmt.Printf("Sensors:   %s (%d ports)\n", block(l.Sensors), l.Ports())
	fmt.Printf("Bindings:  %s\n", block(l.Bindings))
	fmt.Printf("Points:    x1=%d y1=%d x2=%d y2=%d\n", l.Points[0], l.Points[1], l.Points[2], l.Points[3])
	fmt.Printf("Commit:    %d\n", l.Commit)
	fmt.Printf("Password:  %d\n", l.Password)
	fmt.Printf("Max read:  %d registers per request\n", hubbus.MaxReadCount)
	return nil
}
