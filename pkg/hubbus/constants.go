// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hubbus implements the wire protocol spoken by UMVH sensor hubs.
//
// The protocol is Modbus RTU with two vendor function codes used by the
// bootloader (start update and firmware chunk) plus an unsolicited 17-byte
// announcement frame used for link discovery. This package provides the
// checksum, frame encoding/decoding, announcement scanning, link parameter
// types and the error taxonomy shared by the higher level packages. It does
// no I/O and never logs.
package hubbus

import "time"

// Function codes
const (
	FuncReadHoldingRegisters = 0x03
	FuncWriteSingleRegister  = 0x06
	FuncFirmwareChunk        = 0x2A
	FuncStartUpdate          = 0x2B

	// exceptionFlag is OR-ed into the function code of an exception reply
	exceptionFlag = 0x80
)

// Frame size limits
const (
	MaxFrameSize    = 91
	HeaderSize      = 5
	ChecksumSize    = 2
	MaxChunkPayload = MaxFrameSize - HeaderSize - ChecksumSize // 84

	// MinAckSize is the shortest reply accepted as an acknowledgement of
	// a vendor command.
	MinAckSize = 4

	// WriteResponseSize is the length of a write-single-register echo.
	WriteResponseSize = 8

	// ExceptionSize is the length of an exception reply: address,
	// function|0x80, code and checksum.
	ExceptionSize = 5

	// MaxReadCount is the largest register count a single read may request
	// (byte count must fit in one byte).
	MaxReadCount = 125
)

// Slave address limits
const (
	AddressBroadcast = 0
	AddressMin       = 1
	AddressMax       = 247
)

// Discovery announcement layout
const (
	AnnounceSize       = 17
	announceHeaderSize = 3
	announceFields     = 6

	// DefaultBeacon is the single byte written while probing for a device.
	DefaultBeacon = 0xA5
)

// Protocol timing
const (
	MaxRetries           = 3
	RetryDelay           = 1 * time.Second
	SettleDelay          = 7 * time.Second
	BeaconInterval       = 200 * time.Millisecond
	PollPeriod           = 1 * time.Second
	PollBackoff          = 1 * time.Second
	PollFailureThreshold = 5
	ReadTimeout          = 1 * time.Second
)

// ChunkCount returns the number of firmware chunks needed for an image of n bytes.
func ChunkCount(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + MaxChunkPayload - 1) / MaxChunkPayload
}

// ReadResponseSize returns the length of a read-holding-registers reply for count registers.
func ReadResponseSize(count uint16) int {
	return 5 + 2*int(count)
}

// ValidAddress reports whether addr is a usable unicast slave address.
func ValidAddress(addr byte) bool {
	return addr >= AddressMin && addr <= AddressMax
}
