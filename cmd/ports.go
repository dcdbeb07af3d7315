// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/umvh/pkg/link"
	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: `List the serial ports present on this host.

USB adapters show their vendor and product IDs when the operating system
reports them.`,
	Args: cobra.NoArgs,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := link.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}
	for _, p := range ports {
		if !p.IsUSB {
			fmt.Println(p.Name)
			continue
		}
		fmt.Printf("%-20s USB %s:%s", p.Name, p.VID, p.PID)
		if p.Product != "" {
			fmt.Printf(" %s", p.Product)
		}
		if p.SerialNumber != "" {
			fmt.Printf(" (serial %s)", p.SerialNumber)
		}
		fmt.Println()
	}
	return nil
}
