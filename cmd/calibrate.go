// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Thermoquad/umvh/pkg/calibration"
	"github.com/Thermoquad/umvh/pkg/session"
	"github.com/spf13/cobra"
)

var (
	calPassword bool
	calRaw      bool
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Calibrate a sensor port",
	Long: `Read or change a port's calibration.

Ports are numbered as printed on the hub. Sensor codes select the input type
and its decimal places (0x02 tenths, 0x04 and 0x06 hundredths).

Targets are given in engineering units unless --raw is set. A commit may need
the hub password: pass --password to be prompted for it, or set UMVH_PASSWORD.`,
}

var calShowCmd = &cobra.Command{
	Use:   "show <port>",
	Short: "Show a port's binding, live value and calibration window",
	Long: `Show the calibration of one port.

The port's binding is written back unchanged to select it before the
calibration window is read.`,
	Args: cobra.ExactArgs(1),
	RunE: runCalShow,
}

var calTwoPointCmd = &cobra.Command{
	Use:   "two-point <port> <sensor>",
	Short: "Interactive two-point calibration from live readings",
	Long: `Calibrate a port from two live readings.

For each point, apply a known reference to the sensor and enter its value.
The live raw reading at that moment becomes the point's x. The points are
written as they are taken and latched only after both pass validation.`,
	Args: cobra.ExactArgs(2),
	RunE: runCalTwoPoint,
}

var calFourPointCmd = &cobra.Command{
	Use:   "four-point <port> <sensor> <x1> <y1> <x2> <y2>",
	Short: "Write a calibration from known points",
	Long: `Write four values: raw x1 and x2 with their targets y1 and y2.

Both axes must rise from point 1 to point 2. Nothing is written when the
points, the binding or the password are rejected.`,
	Args: cobra.ExactArgs(6),
	RunE: runCalFourPoint,
}

var calClearCmd = &cobra.Command{
	Use:   "clear <port>",
	Short: "Remove a port's calibration",
	Args:  cobra.ExactArgs(1),
	RunE:  runCalClear,
}

func init() {
	rootCmd.AddCommand(calibrateCmd)
	calibrateCmd.AddCommand(calShowCmd, calTwoPointCmd, calFourPointCmd, calClearCmd)
	calibrateCmd.PersistentFlags().BoolVar(&calPassword, "password", false, "Prompt for the commit password")
	calibrateCmd.PersistentFlags().BoolVar(&calRaw, "raw", false, "Targets are raw register values")
}

// calibrationSession opens the port and returns a coordinator holding the
// calibration lease. The returned function releases everything.
func calibrationSession() (*calibration.Coordinator, func(), error) {
	layout, err := cfg.Layout()
	if err != nil {
		return nil, nil, err
	}
	conn, err := openConnection()
	if err != nil {
		return nil, nil, err
	}
	lease, err := conn.Begin(session.Calibrating)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	release := func() {
		lease.End()
		conn.Close()
	}
	return calibration.NewCoordinator(channel(lease), layout), release, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}

func parseSensor(s string) (int, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid sensor code %q", s)
	}
	return int(v), nil
}

func parseTarget(s string, sensor int) (uint16, error) {
	if calRaw {
		return parseUint16(s)
	}
	return calibration.ParseTarget(s, sensor)
}

// commitPassword prompts when --password is set
func commitPassword() (calibration.Password, error) {
	if !calPassword {
		if _, ok := os.LookupEnv(passwordEnv); !ok {
			return calibration.NoPassword, nil
		}
	}
	s, err := readPassword()
	if err != nil {
		return calibration.NoPassword, err
	}
	if s == "" {
		return calibration.NoPassword, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return calibration.NoPassword, fmt.Errorf("password must be a number from 0 to 65535")
	}
	pw := calibration.WithPassword(v)
	return pw, pw.Validate()
}

func printFit(p calibration.Points, sensor int) {
	report, err := calibration.Fit(p.Samples())
	if err != nil {
		fmt.Printf("Fit: %v\n", err)
		return
	}
	fmt.Printf("Fit: %s\n", report)
	fmt.Printf("     raw %d -> %s, raw %d -> %s\n",
		p.X1, calibration.FormatValue(calibration.Interpolate(p, p.X1), sensor),
		p.X2, calibration.FormatValue(calibration.Interpolate(p, p.X2), sensor))
}

func runCalShow(cmd *cobra.Command, args []string) error {
	port, err := parsePort(args[0])
	if err != nil {
		return err
	}
	coord, release, err := calibrationSession()
	if err != nil {
		return err
	}
	defer release()

	b, points, err := coord.ReadCalibration(port)
	if err != nil {
		return err
	}
	raw, err := coord.ReadRaw(port)
	if err != nil {
		return err
	}

	fmt.Printf("Port %d\n", port)
	fmt.Printf("  Binding:  sensor 0x%02X, %s\n", b.Sensor, b.Mode)
	fmt.Printf("  Live:     %d (%s)\n", raw, calibration.FormatValue(raw, b.Sensor))
	fmt.Printf("  Window:   %s\n", points)
	if points != (calibration.Points{}) {
		fmt.Printf("  Mapped:   %s\n", calibration.FormatValue(calibration.Interpolate(points, raw), b.Sensor))
	}
	return nil
}

func runCalTwoPoint(cmd *cobra.Command, args []string) error {
	port, err := parsePort(args[0])
	if err != nil {
		return err
	}
	sensor, err := parseSensor(args[1])
	if err != nil {
		return err
	}
	coord, release, err := calibrationSession()
	if err != nil {
		return err
	}
	defer release()

	s, err := coord.BeginTwoPoint(calibration.Binding{Port: port, Sensor: sensor})
	if err != nil {
		return err
	}

	fmt.Printf("umvh - Two-Point Calibration\n")
	fmt.Printf("Binding: %s\n\n", s.Binding())

	in := bufio.NewReader(os.Stdin)
	for n := 1; n <= 2; n++ {
		for {
			live, err := coord.ReadRaw(port)
			if err != nil {
				return err
			}
			fmt.Printf("Point %d: live raw %d. Enter target (empty to re-read): ", n, live)
			line, err := in.ReadString('\n')
			line = strings.TrimSpace(line)
			if err != nil && line == "" {
				return errors.New("calibration aborted")
			}
			if line == "" {
				continue
			}
			target, err := parseTarget(line, sensor)
			if err != nil {
				fmt.Printf("  %v\n", err)
				continue
			}
			raw, err := s.TakePoint(n, target)
			if err != nil {
				return err
			}
			fmt.Printf("  Point %d = (%d, %d)\n", n, raw, target)
			break
		}
	}

	points := s.Points()
	if err := calibration.CheckSlope(points); err != nil {
		return fmt.Errorf("points %s rejected: %w", points, err)
	}
	printFit(points, sensor)

	pw, err := commitPassword()
	if err != nil {
		return err
	}
	if err := s.Commit(pw); err != nil {
		return err
	}
	fmt.Printf("Calibration committed for port %d\n", port)
	return nil
}

func runCalFourPoint(cmd *cobra.Command, args []string) error {
	port, err := parsePort(args[0])
	if err != nil {
		return err
	}
	sensor, err := parseSensor(args[1])
	if err != nil {
		return err
	}
	var v [4]uint16
	for i, a := range args[2:] {
		// x values are always raw
		if i%2 == 0 {
			v[i], err = parseUint16(a)
		} else {
			v[i], err = parseTarget(a, sensor)
		}
		if err != nil {
			return err
		}
	}
	points := calibration.Points{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}
	if err := calibration.CheckSlope(points); err != nil {
		return err
	}
	pw, err := commitPassword()
	if err != nil {
		return err
	}

	coord, release, err := calibrationSession()
	if err != nil {
		return err
	}
	defer release()

	if err := coord.FourPoint(calibration.Binding{Port: port, Sensor: sensor}, points, pw); err != nil {
		return err
	}
	printFit(points, sensor)
	fmt.Printf("Calibration committed for port %d\n", port)
	return nil
}

func runCalClear(cmd *cobra.Command, args []string) error {
	port, err := parsePort(args[0])
	if err != nil {
		return err
	}
	coord, release, err := calibrationSession()
	if err != nil {
		return err
	}
	defer release()

	if err := coord.Clear(calibration.Binding{Port: port}); err != nil {
		return err
	}
	fmt.Printf("Calibration cleared for port %d\n", port)
	return nil
}
