// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hubbus

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

// ============================================================
// Test Helpers
// ============================================================

// buildReadResponse creates a well-formed read-holding-registers reply
func buildReadResponse(address byte, values []uint16) []byte {
	body := []byte{byte(2 * len(values))}
	for _, v := range values {
		body = binary.BigEndian.AppendUint16(body, v)
	}
	return EncodeFrame(address, FuncReadHoldingRegisters, body)
}

// ============================================================
// Checksum Tests
// ============================================================

func TestChecksum_Empty(t *testing.T) {
	if crc := Checksum([]byte{}); crc != 0xFFFF {
		t.Errorf("checksum of empty data should be initial value, got 0x%04X", crc)
	}
}

func TestChecksum_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "ASCII '123456789'",
			data:     []byte("123456789"),
			expected: 0x4B37, // CRC-16/MODBUS check value
		},
		{
			name:     "read 10 registers from slave 1",
			data:     []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A},
			expected: 0xCDC5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if crc := Checksum(tt.data); crc != tt.expected {
				t.Errorf("checksum mismatch: expected 0x%04X, got 0x%04X", tt.expected, crc)
			}
		})
	}
}

func TestChecksum_Deterministic(t *testing.T) {
	data := []byte{0x01, 0x03, 0x00, 0x16, 0x00, 0x08}
	if a, b := Checksum(data), Checksum(data); a != b {
		t.Errorf("checksum should be deterministic: 0x%04X != 0x%04X", a, b)
	}
}

func TestChecksum_SingleBitMutation(t *testing.T) {
	data := []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88}
	base := Checksum(data)
	for i := range data {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), data...)
			mutated[i] ^= 1 << bit
			if Checksum(mutated) == base {
				t.Errorf("flipping byte %d bit %d did not change the checksum", i, bit)
			}
		}
	}
}

func TestAppendChecksum_LittleEndian(t *testing.T) {
	frame := AppendChecksum([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A})
	if frame[6] != 0xC5 || frame[7] != 0xCD {
		t.Errorf("expected trailing C5 CD, got %02X %02X", frame[6], frame[7])
	}
	if !ValidChecksum(frame) {
		t.Error("appended checksum should validate")
	}
}

func TestValidChecksum_TooShort(t *testing.T) {
	if ValidChecksum([]byte{0xFF, 0xFF}) {
		t.Error("two bytes cannot carry data and a checksum")
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncodeReadRegisters(t *testing.T) {
	got, err := EncodeReadRegisters(1, 0, 10)
	if err != nil {
		t.Fatalf("EncodeReadRegisters failed: %v", err)
	}
	want := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A, 0xC5, 0xCD}
	if !bytes.Equal(got, want) {
		t.Errorf("expected % X, got % X", want, got)
	}
}

func TestEncodeReadRegisters_InvalidCount(t *testing.T) {
	for _, count := range []uint16{0, MaxReadCount + 1} {
		_, err := EncodeReadRegisters(1, 0, count)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("count=%d: expected ValidationError, got %v", count, err)
		}
	}
}

func TestEncodeReadRegisters_RangeOverflow(t *testing.T) {
	if _, err := EncodeReadRegisters(1, 0xFFFE, 4); err == nil {
		t.Error("expected error for range past 0xFFFF")
	}
}

func TestEncodeWriteRegister(t *testing.T) {
	got := EncodeWriteRegister(1, 0x0001, 0x0003)
	want := []byte{0x01, 0x06, 0x00, 0x01, 0x00, 0x03, 0x98, 0x0B}
	if !bytes.Equal(got, want) {
		t.Errorf("expected % X, got % X", want, got)
	}
}

func TestEncodeStartUpdate(t *testing.T) {
	got := EncodeStartUpdate(7)
	if len(got) != 4 {
		t.Fatalf("start update is address+function+crc, got %d bytes", len(got))
	}
	if got[0] != 7 || got[1] != FuncStartUpdate {
		t.Errorf("unexpected header % X", got[:2])
	}
	if !ValidChecksum(got) {
		t.Error("checksum should validate")
	}
}

func TestEncodeFirmwareChunk(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, MaxChunkPayload)
	got, err := EncodeFirmwareChunk(1, 3, 12, payload)
	if err != nil {
		t.Fatalf("EncodeFirmwareChunk failed: %v", err)
	}
	if got[1] != FuncFirmwareChunk {
		t.Errorf("expected function 0x2A, got 0x%02X", got[1])
	}
	if idx := binary.BigEndian.Uint16(got[2:4]); idx != 3 {
		t.Errorf("expected index 3, got %d", idx)
	}
	if total := binary.BigEndian.Uint16(got[4:6]); total != 12 {
		t.Errorf("expected total 12, got %d", total)
	}
	if !bytes.Equal(got[6:len(got)-2], payload) {
		t.Error("payload not copied verbatim")
	}
	if !ValidChecksum(got) {
		t.Error("checksum should validate")
	}
}

func TestEncodeFirmwareChunk_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		index   uint16
		total   uint16
		payload []byte
	}{
		{"zero index", 0, 5, []byte{1}},
		{"index past total", 6, 5, []byte{1}},
		{"empty payload", 1, 5, nil},
		{"oversized payload", 1, 5, make([]byte, MaxChunkPayload+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeFirmwareChunk(1, tt.index, tt.total, tt.payload); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestChunkCount(t *testing.T) {
	tests := []struct {
		length int
		want   int
	}{
		{0, 0},
		{1, 1},
		{MaxChunkPayload, 1},
		{MaxChunkPayload + 1, 2},
		{10 * MaxChunkPayload, 10},
		{1000, 12},
	}
	for _, tt := range tests {
		if got := ChunkCount(tt.length); got != tt.want {
			t.Errorf("ChunkCount(%d) = %d, want %d", tt.length, got, tt.want)
		}
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestReadRegisters_RoundTrip(t *testing.T) {
	request, err := EncodeReadRegisters(1, 22, 8)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if binary.BigEndian.Uint16(request[2:4]) != 22 || binary.BigEndian.Uint16(request[4:6]) != 8 {
		t.Fatalf("request fields wrong: % X", request)
	}

	values := []uint16{0, 1, 0x7FFF, 0x8000, 0xFFFF, 1234, 42, 65000}
	response := buildReadResponse(1, values)
	if len(response) != ReadResponseSize(8) {
		t.Fatalf("response length %d, want %d", len(response), ReadResponseSize(8))
	}

	got, err := DecodeReadResponse(response, 1, 8)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	for i := range values {
		if got[i] != values[i] {
			t.Errorf("register %d: expected %d, got %d", i, values[i], got[i])
		}
	}
}

func TestDecodeReadResponse_Failures(t *testing.T) {
	good := buildReadResponse(1, []uint16{10, 20})

	corrupt := append([]byte(nil), good...)
	corrupt[4] ^= 0xFF

	wrongAddr := buildReadResponse(2, []uint16{10, 20})

	badCount := EncodeFrame(1, FuncReadHoldingRegisters, []byte{3, 0, 10, 0, 20})

	tests := []struct {
		name string
		raw  []byte
	}{
		{"short read", good[:len(good)-1]},
		{"empty", nil},
		{"checksum mismatch", corrupt},
		{"wrong address", wrongAddr},
		{"byte count mismatch", badCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeReadResponse(tt.raw, 1, 2)
			if !errors.Is(err, ErrFraming) {
				t.Errorf("expected framing error, got %v", err)
			}
			if !IsRetryable(err) {
				t.Error("framing errors must be retryable")
			}
		})
	}
}

func TestDecodeReadResponse_Exception(t *testing.T) {
	raw := EncodeFrame(1, FuncReadHoldingRegisters|0x80, []byte{0x02})
	_, err := DecodeReadResponse(raw, 1, 8)
	var exc *ExceptionError
	if !errors.As(err, &exc) {
		t.Fatalf("expected ExceptionError, got %v", err)
	}
	if exc.Code != 0x02 {
		t.Errorf("expected code 2, got %d", exc.Code)
	}
}

func TestIsExceptionReply(t *testing.T) {
	exc := EncodeFrame(1, FuncWriteSingleRegister|0x80, []byte{0x03})
	if len(exc) != ExceptionSize {
		t.Fatalf("exception frame is %d bytes, want %d", len(exc), ExceptionSize)
	}
	if !IsExceptionReply(exc) {
		t.Error("exception frame not recognised")
	}
	if !IsExceptionReply(append(exc, 0x00, 0x11)) {
		t.Error("trailing bytes must not hide the exception")
	}
	if IsExceptionReply(exc[:4]) {
		t.Error("truncated exception accepted")
	}
	exc[2] ^= 0x01
	if IsExceptionReply(exc) {
		t.Error("corrupted exception accepted")
	}
	if IsExceptionReply(EncodeWriteRegister(1, 40, 7)) {
		t.Error("write echo mistaken for an exception")
	}
}

func TestDecodeWriteResponse(t *testing.T) {
	request := EncodeWriteRegister(1, 40, 0x8123)
	if err := DecodeWriteResponse(request, request); err != nil {
		t.Errorf("echo should validate: %v", err)
	}

	other := EncodeWriteRegister(1, 40, 0x8124)
	if err := DecodeWriteResponse(other, request); !errors.Is(err, ErrFraming) {
		t.Errorf("mismatched echo should be framing error, got %v", err)
	}
	if err := DecodeWriteResponse(request[:7], request); !errors.Is(err, ErrFraming) {
		t.Errorf("short echo should be framing error, got %v", err)
	}
}

func TestDecodeAck(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		wantErr bool
	}{
		{"minimal ack", EncodeFrame(1, FuncFirmwareChunk, nil), false},
		{"ack with body", EncodeFrame(1, FuncFirmwareChunk, []byte{0, 1, 0, 9}), false},
		{"three bytes", []byte{0x01, 0x2A, 0x00}, true},
		{"bad checksum", []byte{0x01, 0x2A, 0x00, 0x00}, true},
		{"other slave", EncodeFrame(9, FuncFirmwareChunk, nil), true},
		{"exception", EncodeFrame(1, FuncFirmwareChunk|0x80, []byte{0x04}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := DecodeAck(tt.raw, 1, FuncFirmwareChunk)
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeAck error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeFrame(t *testing.T) {
	raw := EncodeFrame(5, FuncWriteSingleRegister, []byte{0, 1, 0, 2})
	f, err := DecodeFrame(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if f.Address != 5 || f.Function != FuncWriteSingleRegister {
		t.Errorf("unexpected header: addr=%d func=0x%02X", f.Address, f.Function)
	}
	if !f.Valid() {
		t.Error("decoded frame should be valid")
	}
	if !bytes.Equal(f.Bytes(), raw) {
		t.Errorf("Bytes() = % X, want % X", f.Bytes(), raw)
	}
}

func TestNewFrame_MatchesEncodeFrame(t *testing.T) {
	f := NewFrame(3, FuncStartUpdate, nil)
	if !bytes.Equal(f.Bytes(), EncodeStartUpdate(3)) {
		t.Errorf("NewFrame and EncodeStartUpdate disagree: % X vs % X", f.Bytes(), EncodeStartUpdate(3))
	}
}

// ============================================================
// Announcement Tests
// ============================================================

var testAnnouncement = Announcement{
	Link:  LinkConfig{BaudRate: 19200, DataBits: 8, Parity: ParityEven, StopBits: 1},
	Slave: 17,
}

func TestParseAnnouncement(t *testing.T) {
	frame := EncodeAnnouncement([3]byte{0xAA, 0x55, 0x01}, testAnnouncement)
	if len(frame) != AnnounceSize {
		t.Fatalf("announcement length %d, want %d", len(frame), AnnounceSize)
	}
	a, err := ParseAnnouncement(frame)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if a.Link != testAnnouncement.Link {
		t.Errorf("link = %s, want %s", a.Link, testAnnouncement.Link)
	}
	if a.Slave != 17 {
		t.Errorf("slave = %d, want 17", a.Slave)
	}
}

func TestParseAnnouncement_BaudScaled(t *testing.T) {
	frame := EncodeAnnouncement([3]byte{}, Announcement{Link: LinkConfig{BaudRate: 115200, DataBits: 8, StopBits: 2}, Slave: 1})
	if raw := binary.BigEndian.Uint16(frame[3:5]); raw != 1152 {
		t.Fatalf("baud field = %d, want 1152", raw)
	}
	a, err := ParseAnnouncement(frame)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if a.Link.BaudRate != 115200 {
		t.Errorf("baud = %d, want 115200", a.Link.BaudRate)
	}
}

func TestAnnounceScanner_GarbagePrefix(t *testing.T) {
	frame := EncodeAnnouncement([3]byte{0xAA, 0x55, 0x01}, testAnnouncement)
	stream := append([]byte{0x3C}, frame...)

	s := NewAnnounceScanner()
	a := s.Feed(stream)
	if a == nil {
		t.Fatal("expected announcement after resync")
	}
	if s.Discarded() != 1 {
		t.Errorf("expected exactly 1 discarded byte, got %d", s.Discarded())
	}
	if a.Slave != testAnnouncement.Slave || a.Link != testAnnouncement.Link {
		t.Errorf("unexpected settings: %s", a)
	}
}

func TestAnnounceScanner_ByteAtATime(t *testing.T) {
	frame := EncodeAnnouncement([3]byte{1, 2, 3}, testAnnouncement)
	stream := append([]byte{0xFF, 0x00, 0x17}, frame...)

	s := NewAnnounceScanner()
	var found *Announcement
	for i, b := range stream {
		if a := s.Feed([]byte{b}); a != nil {
			if i != len(stream)-1 {
				t.Fatalf("announcement reported early at byte %d", i)
			}
			found = a
		}
	}
	if found == nil {
		t.Fatal("no announcement found")
	}
	if s.Discarded() != 3 {
		t.Errorf("expected 3 discarded bytes, got %d", s.Discarded())
	}
}

func TestAnnounceScanner_PartialFrame(t *testing.T) {
	frame := EncodeAnnouncement([3]byte{}, testAnnouncement)
	s := NewAnnounceScanner()
	if a := s.Feed(frame[:10]); a != nil {
		t.Fatal("partial frame must not parse")
	}
	if s.Buffered() != 10 {
		t.Errorf("expected 10 buffered bytes, got %d", s.Buffered())
	}
	if a := s.Feed(frame[10:]); a == nil {
		t.Fatal("completed frame should parse")
	}
	s.Reset()
	if s.Buffered() != 0 || s.Discarded() != 0 {
		t.Error("Reset should clear the scanner")
	}
}

// ============================================================
// Link Config Tests
// ============================================================

func TestLinkConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LinkConfig
		wantErr bool
	}{
		{"bootstrap", BootstrapLink, false},
		{"update", UpdateLink, false},
		{"seven bits even two stop", LinkConfig{BaudRate: 4800, DataBits: 7, Parity: ParityEven, StopBits: 2}, false},
		{"zero baud", LinkConfig{DataBits: 8, StopBits: 1}, true},
		{"six data bits", LinkConfig{BaudRate: 9600, DataBits: 6, StopBits: 1}, true},
		{"bad parity", LinkConfig{BaudRate: 9600, DataBits: 8, Parity: 5, StopBits: 1}, true},
		{"three stop bits", LinkConfig{BaudRate: 9600, DataBits: 8, StopBits: 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLinkConfig_String(t *testing.T) {
	if s := UpdateLink.String(); s != "115200 8N1" {
		t.Errorf("expected \"115200 8N1\", got %q", s)
	}
}

func TestParseParity(t *testing.T) {
	for in, want := range map[string]Parity{"none": ParityNone, "O": ParityOdd, "even": ParityEven, "": ParityNone} {
		got, err := ParseParity(in)
		if err != nil || got != want {
			t.Errorf("ParseParity(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseParity("mark"); err == nil {
		t.Error("expected error for unsupported parity")
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatFrame(t *testing.T) {
	tests := []struct {
		name     string
		raw      []byte
		contains string
	}{
		{"write request", EncodeWriteRegister(1, 40, 7), "WRITE_SINGLE_REGISTER (0x06) addr=1 reg=40 value=7"},
		{"read response", buildReadResponse(1, []uint16{5, 6}), "values=[5 6]"},
		{"start update", EncodeStartUpdate(1), "START_UPDATE"},
		{"exception", EncodeFrame(1, 0x83, []byte{2}), "READ_HOLDING_REGISTERS_EXCEPTION"},
		{"garbage", []byte{1, 2, 3, 4}, "INVALID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if s := FormatFrame(tt.raw); !strings.Contains(s, tt.contains) {
				t.Errorf("FormatFrame = %q, want substring %q", s, tt.contains)
			}
		})
	}
}

func TestFormatFrame_Chunk(t *testing.T) {
	raw, err := EncodeFirmwareChunk(1, 2, 9, []byte{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if s := FormatFrame(raw); !strings.Contains(s, "chunk=2/9 len=3") {
		t.Errorf("unexpected format %q", s)
	}
}
