// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hubbus

import (
	"encoding/binary"
	"fmt"
)

// Announcement holds the link settings a device reports while unconfigured
type Announcement struct {
	Link     LinkConfig
	Reserved uint16
	Slave    byte
}

// ParseAnnouncement decodes a 17-byte announcement frame:
//
//	header(3) | baud/100 | data bits | parity | stop bits | reserved | slave id | crc16le
//
// All six fields are big-endian 16-bit values.
func ParseAnnouncement(frame []byte) (*Announcement, error) {
	if len(frame) != AnnounceSize {
		return nil, framingErrorf("announcement length %d, want %d", len(frame), AnnounceSize)
	}
	if !ValidChecksum(frame) {
		return nil, framingErrorf("announcement CRC mismatch")
	}

	var fields [announceFields]uint16
	for i := range fields {
		off := announceHeaderSize + 2*i
		fields[i] = binary.BigEndian.Uint16(frame[off : off+2])
	}
	if fields[5] > 0xFF {
		return nil, framingErrorf("slave id %d out of range", fields[5])
	}

	return &Announcement{
		Link: LinkConfig{
			BaudRate: int(fields[0]) * 100,
			DataBits: int(fields[1]),
			Parity:   Parity(fields[2]),
			StopBits: int(fields[3]),
		},
		Reserved: fields[4],
		Slave:    byte(fields[5]),
	}, nil
}

// String formats the announcement for display
func (a *Announcement) String() string {
	return fmt.Sprintf("slave=%d link=%s", a.Slave, a.Link)
}

// EncodeAnnouncement builds an announcement frame. Devices send these; the
// encoder exists for simulators and tests.
func EncodeAnnouncement(header [announceHeaderSize]byte, a Announcement) []byte {
	b := make([]byte, 0, AnnounceSize)
	b = append(b, header[:]...)
	for _, v := range []uint16{
		uint16(a.Link.BaudRate / 100),
		uint16(a.Link.DataBits),
		uint16(a.Link.Parity),
		uint16(a.Link.StopBits),
		a.Reserved,
		uint16(a.Slave),
	} {
		b = binary.BigEndian.AppendUint16(b, v)
	}
	return AppendChecksum(b)
}

// AnnounceScanner finds announcement frames in an unaligned byte stream.
//
// Bytes are accumulated until a full frame length is available; the leading
// window is accepted when its checksum is valid, otherwise one leading byte is
// dropped and the window is tested again.
type AnnounceScanner struct {
	buf       []byte
	discarded int
}

// NewAnnounceScanner creates an empty scanner
func NewAnnounceScanner() *AnnounceScanner {
	return &AnnounceScanner{buf: make([]byte, 0, AnnounceSize*4)}
}

// Feed appends data to the buffer and returns the first announcement found.
// Bytes following an accepted frame stay buffered.
func (s *AnnounceScanner) Feed(data []byte) *Announcement {
	s.buf = append(s.buf, data...)
	for len(s.buf) >= AnnounceSize {
		if a, err := ParseAnnouncement(s.buf[:AnnounceSize]); err == nil {
			s.buf = s.buf[AnnounceSize:]
			return a
		}
		s.buf = s.buf[1:]
		s.discarded++
	}
	return nil
}

// Discarded returns the number of bytes dropped while resynchronizing
func (s *AnnounceScanner) Discarded() int {
	return s.discarded
}

// Buffered returns the number of bytes waiting for a full window
func (s *AnnounceScanner) Buffered() int {
	return len(s.buf)
}

// Reset clears the buffer and the discard counter
func (s *AnnounceScanner) Reset() {
	s.buf = s.buf[:0]
	s.discarded = 0
}
