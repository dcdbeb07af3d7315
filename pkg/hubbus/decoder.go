// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hubbus

import (
	"bytes"
	"encoding/binary"
)

// IsExceptionReply reports whether raw begins with a checksum-valid
// exception reply
func IsExceptionReply(raw []byte) bool {
	return len(raw) >= ExceptionSize && raw[1]&exceptionFlag != 0 && ValidChecksum(raw[:ExceptionSize])
}

// DecodeReadResponse validates a read-holding-registers reply and returns the
// register values in address order.
func DecodeReadResponse(raw []byte, address byte, count uint16) ([]uint16, error) {
	if len(raw) >= 5 && raw[1] == FuncReadHoldingRegisters|exceptionFlag {
		if ValidChecksum(raw[:5]) {
			return nil, &ExceptionError{Function: FuncReadHoldingRegisters, Code: raw[2]}
		}
	}
	want := ReadResponseSize(count)
	if len(raw) != want {
		return nil, framingErrorf("read response length %d, want %d", len(raw), want)
	}
	f, err := DecodeFrame(raw)
	if err != nil {
		return nil, err
	}
	if f.Address != address || f.Function != FuncReadHoldingRegisters {
		return nil, framingErrorf("unexpected reply addr=%d func=0x%02X", f.Address, f.Function)
	}
	if int(f.Payload[0]) != 2*int(count) {
		return nil, framingErrorf("byte count %d, want %d", f.Payload[0], 2*count)
	}

	values := make([]uint16, count)
	data := f.Payload[1:]
	for i := range values {
		values[i] = binary.BigEndian.Uint16(data[2*i : 2*i+2])
	}
	return values, nil
}

// DecodeWriteResponse validates the echo of a write-single-register request.
// Any deviation from the request is a framing failure.
func DecodeWriteResponse(raw, request []byte) error {
	if len(raw) >= 5 && raw[1] == FuncWriteSingleRegister|exceptionFlag && ValidChecksum(raw[:5]) {
		return &ExceptionError{Function: FuncWriteSingleRegister, Code: raw[2]}
	}
	if len(raw) != WriteResponseSize {
		return framingErrorf("write response length %d, want %d", len(raw), WriteResponseSize)
	}
	if _, err := DecodeFrame(raw); err != nil {
		return err
	}
	if !bytes.Equal(raw, request) {
		return framingErrorf("write echo mismatch: % X", raw)
	}
	return nil
}

// DecodeAck validates the acknowledgement of a vendor command. Any
// checksum-valid reply of at least MinAckSize bytes from the addressed
// device is accepted.
func DecodeAck(raw []byte, address, function byte) error {
	if len(raw) < MinAckSize {
		return framingErrorf("short acknowledgement: %d bytes", len(raw))
	}
	f, err := DecodeFrame(raw)
	if err != nil {
		return err
	}
	if f.Address != address {
		return framingErrorf("acknowledgement from address %d, want %d", f.Address, address)
	}
	if f.Function == function|exceptionFlag {
		code := byte(0)
		if len(f.Payload) > 0 {
			code = f.Payload[0]
		}
		return &ExceptionError{Function: function, Code: code}
	}
	return nil
}
