// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hubbus

// Frame represents one request or response unit on the bus
type Frame struct {
	Address  byte
	Function byte
	Payload  []byte
	CRC      uint16
}

// NewFrame creates a frame and computes its checksum
func NewFrame(address, function byte, payload []byte) *Frame {
	f := &Frame{Address: address, Function: function, Payload: payload}
	f.CRC = Checksum(f.header())
	return f
}

func (f *Frame) header() []byte {
	b := make([]byte, 0, 2+len(f.Payload)+ChecksumSize)
	b = append(b, f.Address, f.Function)
	return append(b, f.Payload...)
}

// Bytes returns the wire representation: address, function, payload, CRC (LE)
func (f *Frame) Bytes() []byte {
	b := f.header()
	return append(b, byte(f.CRC), byte(f.CRC>>8))
}

// Valid reports whether the stored CRC matches the frame contents
func (f *Frame) Valid() bool {
	return f.CRC == Checksum(f.header())
}

// IsException reports whether the frame is a Modbus exception reply
func (f *Frame) IsException() bool {
	return f.Function&exceptionFlag != 0
}

// DecodeFrame splits a raw response into a frame.
// The checksum is validated before any field is interpreted.
func DecodeFrame(raw []byte) (*Frame, error) {
	if len(raw) < MinAckSize {
		return nil, framingErrorf("short frame: %d bytes", len(raw))
	}
	if !ValidChecksum(raw) {
		return nil, framingErrorf("CRC mismatch: expected 0x%04X, got 0x%04X",
			Checksum(raw[:len(raw)-ChecksumSize]), trailingCRC(raw))
	}
	n := len(raw) - ChecksumSize
	payload := make([]byte, n-2)
	copy(payload, raw[2:n])
	return &Frame{
		Address:  raw[0],
		Function: raw[1],
		Payload:  payload,
		CRC:      trailingCRC(raw),
	}, nil
}
