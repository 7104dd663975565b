// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package seqtab

import (
	"encoding/binary"
	"errors"

	"github.com/rob-gra/go-storedcmd/cpkt"
)

// ErrInvalidMsgID rejects an RTS entry whose embedded packet carries a
// zero stream ID.
var ErrInvalidMsgID = errors.New("seqtab: embedded packet has invalid message id")

// VerifyAts validates a staged ATS or Append table buffer before the
// host commits it. It walks the buffer entry by entry and returns the
// count of valid entries and the words they occupy, or the first
// categorized error. Validation never mutates live state; a single bad
// entry rejects the whole table.
func VerifyAts(buf []byte, bufWords, maxCmds int) (entries, words int, err error) {
	// a staged buffer may be shorter than the declared capacity, the
	// walk must not read past what was actually supplied
	if w := len(buf) / BytesPerWord; w < bufWords {
		bufWords = w
	}

	dup := make([]int32, maxCmds)
	for i := range dup {
		dup[i] = InvalidOffset
	}

	off := 0
	for off < bufWords {
		n, end, err := verifyAtsEntry(buf, off, bufWords, maxCmds, dup)
		if err != nil {
			return 0, 0, err
		}
		if end {
			break
		}
		entries++
		off += n
	}
	if entries == 0 {
		return 0, 0, ErrEmptyTable
	}
	return entries, off, nil
}

// verifyAtsEntry checks the single entry at word offset off. It reports
// the entry size in words, or end=true on a clean terminator, or an
// error. The dup scratch array catches repeated command numbers.
func verifyAtsEntry(buf []byte, off, bufWords, maxCmds int, dup []int32) (words int, end bool, err error) {
	if off >= bufWords {
		// walked cleanly off the end of the defined buffer
		return 0, true, nil
	}
	if off+AtsMinEntryWords > bufWords {
		// not even a minimum sized entry fits here
		return 0, false, ErrBufferOverflow
	}

	cmdNum := AtsCmdNumAt(buf, off)
	if cmdNum == 0 {
		return 0, true, nil
	}
	if int(cmdNum) > maxCmds {
		return 0, false, ErrInvalidCmdNum
	}
	if dup[cmdNum-1] != InvalidOffset {
		return 0, false, ErrDuplicateCmd
	}

	size, err := cpkt.DeclaredSize(buf[(off+AtsHeaderWords)*BytesPerWord:])
	if err != nil {
		return 0, false, ErrBufferOverflow
	}
	if size < cpkt.PacketMin || size > cpkt.PacketMax {
		return 0, false, ErrInvalidLength
	}

	words = AtsHeaderWords + packetWords(size)
	if off+words > bufWords {
		return 0, false, ErrBufferOverflow
	}

	dup[cmdNum-1] = int32(off)
	return words, false, nil
}

// VerifyRts validates a staged RTS table buffer. Entries are walked in
// buffer order; the valid region ends at a zero wakeup count with a
// zero length field, or when less than a minimum entry remains.
func VerifyRts(buf []byte, bufWords int) (entries, words int, err error) {
	if w := len(buf) / BytesPerWord; w < bufWords {
		bufWords = w
	}

	off := 0
	for off < bufWords {
		if off+RtsMinEntryWords > bufWords {
			// remaining tail cannot hold another entry
			break
		}

		pktOff := (off + RtsHeaderWords) * BytesPerWord
		wakeup := binary.BigEndian.Uint32(buf[off*BytesPerWord:])
		lenField := binary.BigEndian.Uint16(buf[pktOff+4:])
		if wakeup == 0 && lenField == 0 {
			break
		}

		if binary.BigEndian.Uint16(buf[pktOff:]) == 0 {
			return 0, 0, ErrInvalidMsgID
		}

		size := cpkt.HeaderSize + int(lenField)
		if size < cpkt.PacketMin || size > cpkt.PacketMax {
			return 0, 0, ErrInvalidLength
		}

		n := RtsHeaderWords + packetWords(size)
		if off+n > bufWords {
			return 0, 0, ErrBufferOverflow
		}

		entries++
		off += n
	}
	if entries == 0 {
		return 0, 0, ErrEmptyTable
	}
	return entries, off, nil
}
