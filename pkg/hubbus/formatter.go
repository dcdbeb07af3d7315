// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hubbus

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// FormatFunction returns the human-readable name for a function code
func FormatFunction(function byte) string {
	name := "UNKNOWN"
	switch function &^ exceptionFlag {
	case FuncReadHoldingRegisters:
		name = "READ_HOLDING_REGISTERS"
	case FuncWriteSingleRegister:
		name = "WRITE_SINGLE_REGISTER"
	case FuncFirmwareChunk:
		name = "FIRMWARE_CHUNK"
	case FuncStartUpdate:
		name = "START_UPDATE"
	}
	if function&exceptionFlag != 0 {
		return name + "_EXCEPTION"
	}
	return name
}

// FormatFrame renders raw frame bytes as a single trace line.
// Frames that fail the checksum are rendered as a hex dump.
func FormatFrame(raw []byte) string {
	f, err := DecodeFrame(raw)
	if err != nil {
		return fmt.Sprintf("INVALID (%v) % X", err, raw)
	}

	var s strings.Builder
	fmt.Fprintf(&s, "%s (0x%02X) addr=%d", FormatFunction(f.Function), f.Function, f.Address)

	p := f.Payload
	switch {
	case f.IsException() && len(p) >= 1:
		fmt.Fprintf(&s, " code=0x%02X", p[0])
	case f.Function == FuncWriteSingleRegister && len(p) == 4:
		fmt.Fprintf(&s, " reg=%d value=%d", binary.BigEndian.Uint16(p[0:2]), binary.BigEndian.Uint16(p[2:4]))
	case f.Function == FuncReadHoldingRegisters && len(p) == 4:
		fmt.Fprintf(&s, " start=%d count=%d", binary.BigEndian.Uint16(p[0:2]), binary.BigEndian.Uint16(p[2:4]))
	case f.Function == FuncReadHoldingRegisters && len(p) >= 1 && int(p[0]) == len(p)-1:
		s.WriteString(" values=[")
		for i := 1; i+1 < len(p); i += 2 {
			if i > 1 {
				s.WriteByte(' ')
			}
			fmt.Fprintf(&s, "%d", binary.BigEndian.Uint16(p[i:i+2]))
		}
		s.WriteByte(']')
	case f.Function == FuncFirmwareChunk && len(p) >= 4:
		fmt.Fprintf(&s, " chunk=%d/%d len=%d",
			binary.BigEndian.Uint16(p[0:2]), binary.BigEndian.Uint16(p[2:4]), len(p)-4)
	case len(p) > 0:
		fmt.Fprintf(&s, " payload=% X", p)
	}
	fmt.Fprintf(&s, " crc=0x%04X", f.CRC)
	return s.String()
}
