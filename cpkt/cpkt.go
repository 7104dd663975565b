// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package cpkt

import (
	"encoding/binary"
	"errors"
)

// Command packet framing. Each packet carried inside a sequence table
// entry is an 8-octet big-endian header followed by a variable payload.
//
//	| stream id | sequence | length | func code | checksum |  payload  |
//
// bytes |     2     |     2    |    2   |     1     |     1    | 0..248 |
//
// The length field holds total packet size minus HeaderSize, so a
// header-only packet carries length 0.
const (
	HeaderSize = 8

	// PacketMin is the smallest packet a table entry may embed,
	// PacketMax the largest.
	PacketMin = 8
	PacketMax = 256
)

// Message IDs recognized on the sequencer input pipe.
const (
	CmdMID    uint16 = 0x18A9 // ground command
	SendHkMID uint16 = 0x18AA // housekeeping request
	WakeupMID uint16 = 0x18AB // periodic wakeup tick
	HkTlmMID  uint16 = 0x08AA // housekeeping telemetry (output)
)

// Packet errors
var (
	ErrPacketShort    = errors.New("cpkt: buffer shorter than packet header")
	ErrPacketSize     = errors.New("cpkt: packet size out of bounds")
	ErrPacketChecksum = errors.New("cpkt: packet checksum mismatch")
)

// Packet is a decoded command packet. Raw holds the full encoded form
// including the header, which is what gets emitted on the bus.
type Packet struct {
	StreamID uint16
	Sequence uint16
	FuncCode byte
	Checksum byte
	Payload  []byte
	Raw      []byte
}

// Size total encoded size in bytes.
func (sf *Packet) Size() int { return HeaderSize + len(sf.Payload) }

// DeclaredSize reads the total packet size from an encoded header
// without decoding the rest. The buffer must hold at least HeaderSize
// bytes.
func DeclaredSize(b []byte) (int, error) {
	if len(b) < HeaderSize {
		return 0, ErrPacketShort
	}
	return HeaderSize + int(binary.BigEndian.Uint16(b[4:])), nil
}

// Decode parses one packet from the front of b. The packet size is taken
// from the header length field and bounds checked against
// [PacketMin, PacketMax] and the buffer, every read of an embedded
// command goes through here.
func Decode(b []byte) (*Packet, error) {
	size, err := DeclaredSize(b)
	if err != nil {
		return nil, err
	}
	if size < PacketMin || size > PacketMax {
		return nil, ErrPacketSize
	}
	if size > len(b) {
		return nil, ErrPacketShort
	}
	raw := b[:size]
	return &Packet{
		StreamID: binary.BigEndian.Uint16(raw[0:]),
		Sequence: binary.BigEndian.Uint16(raw[2:]),
		FuncCode: raw[6],
		Checksum: raw[7],
		Payload:  raw[HeaderSize:size],
		Raw:      raw,
	}, nil
}

// Encode serializes the packet, stamping the length and checksum fields.
func (sf *Packet) Encode() []byte {
	b := make([]byte, HeaderSize+len(sf.Payload))
	binary.BigEndian.PutUint16(b[0:], sf.StreamID)
	binary.BigEndian.PutUint16(b[2:], sf.Sequence)
	binary.BigEndian.PutUint16(b[4:], uint16(len(sf.Payload)))
	b[6] = sf.FuncCode
	copy(b[HeaderSize:], sf.Payload)
	b[7] = computeChecksum(b)
	sf.Checksum = b[7]
	sf.Raw = b
	return b
}

// VerifyChecksum recomputes the packet checksum and compares it against
// the stored field.
func (sf *Packet) VerifyChecksum() bool {
	if len(sf.Raw) < HeaderSize {
		return false
	}
	return computeChecksum(sf.Raw) == sf.Checksum
}

// computeChecksum XORs every octet except the checksum field itself,
// seeded with 0xFF.
func computeChecksum(b []byte) byte {
	sum := byte(0xFF)
	for i, v := range b {
		if i == 7 {
			continue
		}
		sum ^= v
	}
	return sum
}
