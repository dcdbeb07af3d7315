// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// PortInfo describes one serial port found on the host
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// ListPorts returns the serial ports present on the host, sorted by name.
// USB details are filled in when the OS enumerator provides them.
func ListPorts() ([]PortInfo, error) {
	if detailed, err := enumerator.GetDetailedPortsList(); err == nil && len(detailed) > 0 {
		seen := make(map[string]struct{}, len(detailed))
		out := make([]PortInfo, 0, len(detailed))
		for _, p := range detailed {
			if p == nil || p.Name == "" {
				continue
			}
			if _, ok := seen[p.Name]; ok {
				continue
			}
			seen[p.Name] = struct{}{}
			out = append(out, PortInfo{
				Name:         p.Name,
				IsUSB:        p.IsUSB,
				VID:          p.VID,
				PID:          p.PID,
				SerialNumber: p.SerialNumber,
				Product:      p.Product,
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out, nil
	}

	names, err := serial.GetPortsList()
	if err != nil || len(names) == 0 {
		names = globPorts()
	}
	sort.Strings(names)
	out := make([]PortInfo, 0, len(names))
	for _, n := range names {
		out = append(out, PortInfo{Name: n})
	}
	return out, nil
}

// PortNames returns only the identifiers from ListPorts
func PortNames() ([]string, error) {
	ports, err := ListPorts()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.Name
	}
	return names, nil
}

func globPorts() []string {
	var patterns []string
	switch runtime.GOOS {
	case "windows":
		return nil
	case "darwin":
		patterns = []string{"/dev/cu.*", "/dev/tty.*"}
	default:
		patterns = []string{"/dev/ttyUSB*", "/dev/ttyACM*"}
	}
	seen := map[string]struct{}{}
	var out []string
	for _, pat := range patterns {
		matches, _ := filepath.Glob(pat)
		for _, m := range matches {
			if _, err := os.Stat(m); err != nil {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}
