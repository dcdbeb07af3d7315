// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"flag"
	"fmt"
	"time"

	"github.com/Thermoquad/umvh/pkg/config"
	"github.com/Thermoquad/umvh/pkg/registers"
	"github.com/spf13/cobra"
)

var (
	configPath string

	// Serial link flags
	portName string
	baudRate int
	dataBits int
	parity   string
	stopBits int

	// Device flags
	slaveID  int
	timeout  time.Duration
	revision string

	// errorDelay keeps a failed operation's message on screen before exit
	errorDelay time.Duration

	// cfg is the loaded configuration with flag overrides applied
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "umvh",
	Short: "UMVH Sensor Hub Tool",
	Long: `umvh - A CLI tool for discovering, monitoring, calibrating and updating
UMVH sensor hubs over RS-485.

Settings come from built-in defaults, then the YAML file given with --config,
then command line flags.

Connection:
  Serial: --port /dev/ttyUSB0 [--baud 9600] [--parity none] [--slave 1]

Logging uses glog. Pass --logtostderr to see log output on the terminal and
--v=2 to trace every frame on the wire.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")

	// Serial link flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 9600, "Baud rate")
	rootCmd.PersistentFlags().IntVar(&dataBits, "data-bits", 8, "Data bits (7 or 8)")
	rootCmd.PersistentFlags().StringVar(&parity, "parity", "none", "Parity (none, odd, even)")
	rootCmd.PersistentFlags().IntVar(&stopBits, "stop-bits", 1, "Stop bits (1 or 2)")

	// Device flags
	rootCmd.PersistentFlags().IntVarP(&slaveID, "slave", "s", 1, "Slave address (1-247)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Second, "Response timeout")
	rootCmd.PersistentFlags().StringVar(&revision, "revision", registers.BaseLayout.Name, "Register map revision")

	rootCmd.PersistentFlags().DurationVar(&errorDelay, "error-delay", 3*time.Second, "Pause after a failed operation on a terminal")

	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}

// loadConfig reads the config file and applies every flag the user set
func loadConfig(cmd *cobra.Command, args []string) error {
	// glog reads its settings from the standard flag set
	if err := flag.CommandLine.Parse(nil); err != nil {
		return err
	}

	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		loaded.Port = portName
	}
	if flags.Changed("baud") {
		loaded.Link.Baud = baudRate
	}
	if flags.Changed("data-bits") {
		loaded.Link.DataBits = dataBits
	}
	if flags.Changed("parity") {
		loaded.Link.Parity = parity
	}
	if flags.Changed("stop-bits") {
		loaded.Link.StopBits = stopBits
	}
	if flags.Changed("slave") {
		if slaveID < 0 || slaveID > 0xFF {
			return fmt.Errorf("slave address %d out of range", slaveID)
		}
		loaded.Slave = byte(slaveID)
	}
	if flags.Changed("timeout") {
		loaded.Timeout = timeout
	}
	if flags.Changed("revision") {
		loaded.Revision = revision
		loaded.Registers = nil
	}

	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
