// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package seqtab

import (
	"encoding/binary"

	"github.com/rob-gra/go-storedcmd/cpkt"
)

// test table geometry, deliberately small
const (
	testBufWords = 64
	testMaxCmds  = 16
)

func testPkt(payload int) *cpkt.Packet {
	p := &cpkt.Packet{
		StreamID: 0x1882,
		Sequence: 1,
		Payload:  make([]byte, payload),
	}
	p.Encode()
	return p
}

func atsBuf(entries ...*AtsEntry) []byte {
	var b []byte
	for _, e := range entries {
		b = EncodeAtsEntry(b, e)
	}
	return b
}

func rtsBuf(entries ...*RtsEntry) []byte {
	var b []byte
	for _, e := range entries {
		b = EncodeRtsEntry(b, e)
	}
	return b
}

func atsEntry(cmdNum uint16, timeTag uint32, payload int) *AtsEntry {
	return &AtsEntry{CmdNum: cmdNum, TimeTag: timeTag, Pkt: testPkt(payload)}
}

func rtsEntry(wakeup uint32, payload int) *RtsEntry {
	return &RtsEntry{WakeupCount: wakeup, Pkt: testPkt(payload)}
}

// patchAtsLenField overwrites the embedded packet length field of the ATS
// entry at the given word offset.
func patchAtsLenField(buf []byte, off int, v uint16) {
	binary.BigEndian.PutUint16(buf[(off+AtsHeaderWords)*BytesPerWord+4:], v)
}
