// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package seqtab

import (
	"encoding/binary"
	"errors"

	"github.com/rob-gra/go-storedcmd/cpkt"
)

// Sequence tables are contiguous buffers addressed in 32-bit words.
// An ATS entry is an 8-octet header (pad, command number, absolute time
// tag) followed by an embedded command packet; an RTS entry is a 4-octet
// relative wakeup count followed by the packet. Entries are padded out
// to a word boundary.
const (
	BytesPerWord = 4

	AtsHeaderBytes = 8
	AtsHeaderWords = AtsHeaderBytes / BytesPerWord
	RtsHeaderBytes = 4
	RtsHeaderWords = RtsHeaderBytes / BytesPerWord

	// smallest complete entry, header plus minimum packet, in words
	AtsMinEntryWords = (AtsHeaderBytes + cpkt.PacketMin) / BytesPerWord
	RtsMinEntryWords = (RtsHeaderBytes + cpkt.PacketMin) / BytesPerWord

	// InvalidCmdNum fills unused command slots.
	InvalidCmdNum uint16 = 0xFFFF

	// InvalidOffset marks an unused command index slot.
	InvalidOffset int32 = -1
)

// Status of one ATS command slot, or of a whole RTS.
type Status uint8

const (
	StatusEmpty          Status = iota // not loaded
	StatusLoaded                       // loaded
	StatusIdle                         // not executing
	StatusExecuted                     // completed execution
	StatusSkipped                      // passed over by a start or jump
	StatusExecuting                    // currently executing
	StatusFailedChecksum               // embedded packet failed its checksum
	StatusFailedDistrib                // packet could not be sent on the bus
	StatusStarting                     // latch state after an inline switch
)

var statusNames = []string{
	"EMPTY", "LOADED", "IDLE", "EXECUTED", "SKIPPED",
	"EXECUTING", "FAILED_CHECKSUM", "FAILED_DISTRIB", "STARTING",
}

func (sf Status) String() string {
	if int(sf) < len(statusNames) {
		return statusNames[sf]
	}
	return "STATUS?"
}

// Table errors
var (
	ErrBufferOverflow = errors.New("seqtab: entry runs past end of buffer")
	ErrInvalidCmdNum  = errors.New("seqtab: command number out of range")
	ErrInvalidLength  = errors.New("seqtab: embedded packet length out of bounds")
	ErrDuplicateCmd   = errors.New("seqtab: duplicate command number")
	ErrEmptyTable     = errors.New("seqtab: table holds no entries")
	ErrTableCorrupt   = errors.New("seqtab: table contents changed since validation")
	ErrTargetEmpty    = errors.New("seqtab: append target holds no entries")
	ErrNoSpace        = errors.New("seqtab: append does not fit target buffer")
)

// AtsEntry is one decoded absolute-time entry.
type AtsEntry struct {
	CmdNum  uint16
	TimeTag uint32
	Pkt     *cpkt.Packet
}

// Words is the entry size in words, packet padded to a word boundary.
func (sf *AtsEntry) Words() int {
	return AtsHeaderWords + packetWords(sf.Pkt.Size())
}

// RtsEntry is one decoded relative-time entry.
type RtsEntry struct {
	WakeupCount uint32
	Pkt         *cpkt.Packet
}

// Words is the entry size in words, packet padded to a word boundary.
func (sf *RtsEntry) Words() int {
	return RtsHeaderWords + packetWords(sf.Pkt.Size())
}

// packetWords rounds a byte length up to whole words.
func packetWords(n int) int {
	return (n + BytesPerWord - 1) / BytesPerWord
}

// AtsCmdNumAt reads just the command number field of the entry header at
// the given word offset. The caller must know the offset is in range.
func AtsCmdNumAt(buf []byte, off int) uint16 {
	return binary.BigEndian.Uint16(buf[off*BytesPerWord+2:])
}

// AtsTimeTagAt reads just the absolute time tag of the entry header at
// the given word offset.
func AtsTimeTagAt(buf []byte, off int) uint32 {
	return binary.BigEndian.Uint32(buf[off*BytesPerWord+4:])
}

// DecodeAtsEntry decodes the ATS entry at the given word offset,
// validating the embedded packet size bounds.
func DecodeAtsEntry(buf []byte, off int) (*AtsEntry, error) {
	b := buf[off*BytesPerWord:]
	if len(b) < AtsHeaderBytes {
		return nil, ErrBufferOverflow
	}
	pkt, err := cpkt.Decode(b[AtsHeaderBytes:])
	if err != nil {
		return nil, err
	}
	return &AtsEntry{
		CmdNum:  binary.BigEndian.Uint16(b[2:]),
		TimeTag: binary.BigEndian.Uint32(b[4:]),
		Pkt:     pkt,
	}, nil
}

// EncodeAtsEntry appends the encoded entry to dst, padded to a word
// boundary. Used by table builders and tests.
func EncodeAtsEntry(dst []byte, e *AtsEntry) []byte {
	var hdr [AtsHeaderBytes]byte
	binary.BigEndian.PutUint16(hdr[2:], e.CmdNum)
	binary.BigEndian.PutUint32(hdr[4:], e.TimeTag)
	dst = append(dst, hdr[:]...)
	dst = append(dst, e.Pkt.Encode()...)
	return padToWord(dst)
}

// DecodeRtsEntry decodes the RTS entry at the given word offset,
// validating the embedded packet size bounds.
func DecodeRtsEntry(buf []byte, off int) (*RtsEntry, error) {
	b := buf[off*BytesPerWord:]
	if len(b) < RtsHeaderBytes {
		return nil, ErrBufferOverflow
	}
	pkt, err := cpkt.Decode(b[RtsHeaderBytes:])
	if err != nil {
		return nil, err
	}
	return &RtsEntry{
		WakeupCount: binary.BigEndian.Uint32(b),
		Pkt:         pkt,
	}, nil
}

// EncodeRtsEntry appends the encoded entry to dst, padded to a word
// boundary.
func EncodeRtsEntry(dst []byte, e *RtsEntry) []byte {
	var hdr [RtsHeaderBytes]byte
	binary.BigEndian.PutUint32(hdr[:], e.WakeupCount)
	dst = append(dst, hdr[:]...)
	dst = append(dst, e.Pkt.Encode()...)
	return padToWord(dst)
}

func padToWord(b []byte) []byte {
	for len(b)%BytesPerWord != 0 {
		b = append(b, 0)
	}
	return b
}
