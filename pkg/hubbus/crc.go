// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hubbus

import "github.com/sigurn/crc16"

// CRC-16/MODBUS: initial value 0xFFFF, reflected polynomial 0xA001
var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// Checksum computes the CRC-16/MODBUS checksum for the given data
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// AppendChecksum appends the checksum of data to data, low byte first.
func AppendChecksum(data []byte) []byte {
	crc := Checksum(data)
	return append(data, byte(crc), byte(crc>>8))
}

// ValidChecksum reports whether the trailing two bytes of frame are the
// little-endian checksum of everything before them.
func ValidChecksum(frame []byte) bool {
	if len(frame) < ChecksumSize+1 {
		return false
	}
	n := len(frame) - ChecksumSize
	return Checksum(frame[:n]) == trailingCRC(frame)
}

func trailingCRC(frame []byte) uint16 {
	n := len(frame)
	return uint16(frame[n-2]) | uint16(frame[n-1])<<8
}
