// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package seqtab

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyAtsNominal(t *testing.T) {
	buf := atsBuf(
		atsEntry(1, 100, 0),
		atsEntry(2, 50, 4),
	)

	entries, words, err := VerifyAts(buf, testBufWords, testMaxCmds)
	require.NoError(t, err)
	assert.Equal(t, 2, entries)
	// 2 header words + 2 packet words, then 2 + 3
	assert.Equal(t, 9, words)
}

func TestVerifyAtsTerminator(t *testing.T) {
	buf := atsBuf(atsEntry(3, 10, 0))
	// zero command number ends the valid region, junk beyond it is
	// not inspected
	buf = append(buf, make([]byte, 4*BytesPerWord)...)
	buf[len(buf)-1] = 0xEE

	entries, words, err := VerifyAts(buf, testBufWords, testMaxCmds)
	require.NoError(t, err)
	assert.Equal(t, 1, entries)
	assert.Equal(t, 4, words)
}

func TestVerifyAtsEmptyTable(t *testing.T) {
	buf := make([]byte, testBufWords*BytesPerWord)
	_, _, err := VerifyAts(buf, testBufWords, testMaxCmds)
	assert.ErrorIs(t, err, ErrEmptyTable)
}

func TestVerifyAtsDuplicateCmd(t *testing.T) {
	buf := atsBuf(
		atsEntry(5, 10, 0),
		atsEntry(5, 20, 0),
	)
	_, _, err := VerifyAts(buf, testBufWords, testMaxCmds)
	assert.ErrorIs(t, err, ErrDuplicateCmd)
}

func TestVerifyAtsInvalidCmdNum(t *testing.T) {
	buf := atsBuf(atsEntry(testMaxCmds+1, 10, 0))
	_, _, err := VerifyAts(buf, testBufWords, testMaxCmds)
	assert.ErrorIs(t, err, ErrInvalidCmdNum)

	buf = atsBuf(atsEntry(1, 10, 0))
	binary.BigEndian.PutUint16(buf[2:], InvalidCmdNum)
	_, _, err = VerifyAts(buf, testBufWords, testMaxCmds)
	assert.ErrorIs(t, err, ErrInvalidCmdNum)
}

func TestVerifyAtsInvalidLength(t *testing.T) {
	buf := atsBuf(atsEntry(1, 10, 0))
	patchAtsLenField(buf, 0, 512)
	_, _, err := VerifyAts(buf, testBufWords, testMaxCmds)
	assert.ErrorIs(t, err, ErrInvalidLength)
}

func TestVerifyAtsBufferOverflow(t *testing.T) {
	// entry declares a packet that runs past the declared capacity
	buf := atsBuf(atsEntry(1, 10, 64))
	_, _, err := VerifyAts(buf, 10, testMaxCmds)
	assert.ErrorIs(t, err, ErrBufferOverflow)

	// an entry header that cannot fit at all is also an overflow, not
	// a clean end
	buf = atsBuf(atsEntry(1, 10, 0))
	_, _, err = VerifyAts(buf, 2, testMaxCmds)
	assert.ErrorIs(t, err, ErrBufferOverflow)
}

func TestVerifyRtsNominal(t *testing.T) {
	buf := rtsBuf(
		rtsEntry(5, 0),
		rtsEntry(3, 4),
	)
	entries, words, err := VerifyRts(buf, testBufWords)
	require.NoError(t, err)
	assert.Equal(t, 2, entries)
	assert.Equal(t, 7, words)
}

func TestVerifyRtsZeroTerminator(t *testing.T) {
	buf := rtsBuf(rtsEntry(5, 0))
	buf = append(buf, make([]byte, 8*BytesPerWord)...)

	entries, _, err := VerifyRts(buf, testBufWords)
	require.NoError(t, err)
	assert.Equal(t, 1, entries)
}

func TestVerifyRtsEmpty(t *testing.T) {
	_, _, err := VerifyRts(make([]byte, testBufWords*BytesPerWord), testBufWords)
	assert.ErrorIs(t, err, ErrEmptyTable)
}

func TestVerifyRtsInvalidMsgID(t *testing.T) {
	buf := rtsBuf(rtsEntry(5, 0))
	// zero the stream id and set a nonzero length field so the entry
	// does not read as a terminator
	buf[RtsHeaderBytes] = 0
	buf[RtsHeaderBytes+1] = 0
	buf[RtsHeaderBytes+5] = 4

	_, _, err := VerifyRts(buf, testBufWords)
	assert.ErrorIs(t, err, ErrInvalidMsgID)
}

func TestVerifyRtsInvalidLength(t *testing.T) {
	buf := rtsBuf(rtsEntry(5, 0))
	binary.BigEndian.PutUint16(buf[RtsHeaderBytes+4:], 1024)
	_, _, err := VerifyRts(buf, testBufWords)
	assert.ErrorIs(t, err, ErrInvalidLength)
}

func TestVerifyRtsOverflow(t *testing.T) {
	buf := rtsBuf(rtsEntry(5, 16))
	_, _, err := VerifyRts(buf, 4)
	assert.ErrorIs(t, err, ErrBufferOverflow)
}

func TestVerifyRtsShortTailEndsTable(t *testing.T) {
	// one valid entry, then a tail too small for another entry
	buf := rtsBuf(rtsEntry(5, 0))
	buf = append(buf, make([]byte, BytesPerWord)...)
	entries, _, err := VerifyRts(buf, 3+1)
	require.NoError(t, err)
	assert.Equal(t, 1, entries)
}
