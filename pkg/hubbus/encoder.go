// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hubbus

import (
	"encoding/binary"
	"fmt"
)

// EncodeFrame builds a complete request: address, function, body, CRC (LE).
func EncodeFrame(address, function byte, body []byte) []byte {
	b := make([]byte, 0, 2+len(body)+ChecksumSize)
	b = append(b, address, function)
	b = append(b, body...)
	return AppendChecksum(b)
}

// EncodeReadRegisters builds a read-holding-registers (0x03) request.
func EncodeReadRegisters(address byte, start, count uint16) ([]byte, error) {
	if count == 0 || count > MaxReadCount {
		return nil, &ValidationError{Field: "count", Message: fmt.Sprintf("register count must be 1..%d, got %d", MaxReadCount, count)}
	}
	if uint32(start)+uint32(count) > 0x10000 {
		return nil, &ValidationError{Field: "start", Message: fmt.Sprintf("range 0x%04X+%d exceeds register space", start, count)}
	}
	body := make([]byte, 4)
	binary.BigEndian.PutUint16(body[0:2], start)
	binary.BigEndian.PutUint16(body[2:4], count)
	return EncodeFrame(address, FuncReadHoldingRegisters, body), nil
}

// EncodeWriteRegister builds a write-single-register (0x06) request.
// The device echoes the request unchanged on success.
func EncodeWriteRegister(address byte, register, value uint16) []byte {
	body := make([]byte, 4)
	binary.BigEndian.PutUint16(body[0:2], register)
	binary.BigEndian.PutUint16(body[2:4], value)
	return EncodeFrame(address, FuncWriteSingleRegister, body)
}

// EncodeStartUpdate builds the vendor start-update (0x2B) request. It has no body.
func EncodeStartUpdate(address byte) []byte {
	return EncodeFrame(address, FuncStartUpdate, nil)
}

// EncodeFirmwareChunk builds a vendor firmware-chunk (0x2A) request.
// index is 1-based; every chunk of a transfer carries the same total.
func EncodeFirmwareChunk(address byte, index, total uint16, payload []byte) ([]byte, error) {
	if index == 0 || index > total {
		return nil, &ValidationError{Field: "chunk", Message: fmt.Sprintf("chunk index %d outside 1..%d", index, total)}
	}
	if len(payload) == 0 || len(payload) > MaxChunkPayload {
		return nil, &ValidationError{Field: "chunk", Message: fmt.Sprintf("chunk payload must be 1..%d bytes, got %d", MaxChunkPayload, len(payload))}
	}
	body := make([]byte, 4, 4+len(payload))
	binary.BigEndian.PutUint16(body[0:2], index)
	binary.BigEndian.PutUint16(body[2:4], total)
	body = append(body, payload...)
	return EncodeFrame(address, FuncFirmwareChunk, body), nil
}
