// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package registers

import (
	"fmt"
	"sort"
	"strings"
)

// Map holds register values keyed by register address
type Map map[uint16]uint16

// Block is a fixed ascending register range read in one request
type Block struct {
	Start uint16 `yaml:"start"`
	Count uint16 `yaml:"count"`
}

// Contains reports whether reg falls inside the block
func (b Block) Contains(reg uint16) bool {
	return reg >= b.Start && uint32(reg) < uint32(b.Start)+uint32(b.Count)
}

// Values returns the block's registers from m in address order
func (m Map) Values(b Block) []uint16 {
	out := make([]uint16, b.Count)
	for i := range out {
		out[i] = m[b.Start+uint16(i)]
	}
	return out
}

// Merge copies every entry of other into m
func (m Map) Merge(other Map) {
	for k, v := range other {
		m[k] = v
	}
}

// Layout locates the hub's register blocks for one firmware revision.
//
// Sensors holds one live raw value per device port, Bindings one
// port/sensor binding per device port. Writing a binding selects the port
// the calibration window applies to: Points takes x1, y1, x2, y2, Commit
// latches them and Password unlocks the commit.
type Layout struct {
	Name     string    `yaml:"name"`
	Sensors  Block     `yaml:"sensors"`
	Bindings Block     `yaml:"bindings"`
	Points   [4]uint16 `yaml:"points"`
	Commit   uint16    `yaml:"commit"`
	Password uint16    `yaml:"password"`
}

// PointsContiguous reports whether x1, y1, x2, y2 sit in four ascending
// consecutive registers
func (l Layout) PointsContiguous() bool {
	for i := 1; i < len(l.Points); i++ {
		if l.Points[i] != l.Points[0]+uint16(i) {
			return false
		}
	}
	return true
}

// Ports returns the number of device ports covered by the layout
func (l Layout) Ports() int {
	return int(l.Sensors.Count)
}

// SensorRegister returns the live value register of a 1-based device port
func (l Layout) SensorRegister(port int) (uint16, error) {
	if port < 1 || port > int(l.Sensors.Count) {
		return 0, fmt.Errorf("device port %d outside 1..%d", port, l.Sensors.Count)
	}
	return l.Sensors.Start + uint16(port-1), nil
}

// BindingRegister returns the binding register of a 1-based device port
func (l Layout) BindingRegister(port int) (uint16, error) {
	if port < 1 || port > int(l.Bindings.Count) {
		return 0, fmt.Errorf("device port %d outside 1..%d", port, l.Bindings.Count)
	}
	return l.Bindings.Start + uint16(port-1), nil
}

// Shift returns the layout with every address moved by offset
func (l Layout) Shift(name string, offset uint16) Layout {
	s := l
	s.Name = name
	s.Sensors.Start += offset
	s.Bindings.Start += offset
	for i := range s.Points {
		s.Points[i] += offset
	}
	s.Commit += offset
	s.Password += offset
	return s
}

// Validate checks that blocks are non-empty and the calibration window does
// not overlap either block
func (l Layout) Validate() error {
	if l.Sensors.Count == 0 || l.Bindings.Count == 0 {
		return fmt.Errorf("layout %q: empty register block", l.Name)
	}
	single := append([]uint16{l.Commit, l.Password}, l.Points[:]...)
	seen := make(map[uint16]bool, len(single))
	for _, r := range single {
		if l.Sensors.Contains(r) || l.Bindings.Contains(r) {
			return fmt.Errorf("layout %q: register %d overlaps a block", l.Name, r)
		}
		if seen[r] {
			return fmt.Errorf("layout %q: register %d used twice", l.Name, r)
		}
		seen[r] = true
	}
	return nil
}

// BaseLayout is the register map of the first hub firmware
var BaseLayout = Layout{
	Name:     "base",
	Sensors:  Block{Start: 22, Count: 8},
	Bindings: Block{Start: 40, Count: 8},
	Points:   [4]uint16{48, 49, 50, 51},
	Commit:   52,
	Password: 53,
}

var revisions = map[string]Layout{
	"base": BaseLayout,
	"r9":   BaseLayout.Shift("r9", 9),
	"r13":  BaseLayout.Shift("r13", 13),
	"calib": {
		Name:     "calib",
		Sensors:  Block{Start: 100, Count: 8},
		Bindings: Block{Start: 120, Count: 8},
		Points:   [4]uint16{130, 131, 132, 133},
		Commit:   134,
		Password: 135,
	},
}

// Revision returns the built-in layout with the given name
func Revision(name string) (Layout, error) {
	l, ok := revisions[strings.ToLower(name)]
	if !ok {
		return Layout{}, fmt.Errorf("unknown register map revision %q (known: %s)", name, strings.Join(RevisionNames(), ", "))
	}
	return l, nil
}

// RevisionNames lists the built-in layouts
func RevisionNames() []string {
	names := make([]string, 0, len(revisions))
	for n := range revisions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
