// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package seqtab

import (
	"github.com/rob-gra/go-storedcmd/cpkt"
)

// AtsInfo carries per-ATS load totals.
type AtsInfo struct {
	EntryCount int // loaded commands
	SizeWords  int // words occupied by the load
	UseCtr     int // completed or stopped activations
}

// AtsTable is one absolute-time sequence: the command buffer plus the
// derived maps rebuilt on every load or append.
//
// CmdIndex maps command number minus one to the entry word offset,
// InvalidOffset when the slot is unused. CmdStatus tracks each slot
// through an activation. TimeIndex ranks loaded command numbers in
// non-decreasing time-tag order; only the first Info.EntryCount ranks
// are meaningful.
type AtsTable struct {
	Buf       []byte
	BufWords  int
	MaxCmds   int
	Info      AtsInfo
	CmdIndex  []int32
	CmdStatus []Status
	TimeIndex []uint16
}

// NewAtsTable allocates an empty table with the given buffer capacity
// in words and command-number ceiling.
func NewAtsTable(bufWords, maxCmds int) *AtsTable {
	sf := &AtsTable{
		Buf:       make([]byte, bufWords*BytesPerWord),
		BufWords:  bufWords,
		MaxCmds:   maxCmds,
		CmdIndex:  make([]int32, maxCmds),
		CmdStatus: make([]Status, maxCmds),
		TimeIndex: make([]uint16, maxCmds),
	}
	sf.Init()
	return sf
}

// Init clears the derived maps and totals ahead of a load.
func (sf *AtsTable) Init() {
	for i := 0; i < sf.MaxCmds; i++ {
		sf.CmdIndex[i] = InvalidOffset
		sf.CmdStatus[i] = StatusEmpty
		sf.TimeIndex[i] = InvalidCmdNum
	}
	sf.Info = AtsInfo{}
}

// Load commits an already-validated buffer: the bytes are copied in and
// the command index, status, and time index maps are rebuilt. The walk
// re-checks every entry; any discrepancy with what validation saw
// clears the table and returns ErrTableCorrupt.
func (sf *AtsTable) Load(src []byte) error {
	if len(src) > len(sf.Buf) {
		return ErrBufferOverflow
	}
	sf.Init()
	copy(sf.Buf, src)
	for i := len(src); i < len(sf.Buf); i++ {
		sf.Buf[i] = 0
	}

	off := 0
	for off+AtsMinEntryWords <= sf.BufWords {
		cmdNum := AtsCmdNumAt(sf.Buf, off)
		if cmdNum == 0 {
			break
		}
		words, ok := sf.takeEntry(cmdNum, off)
		if !ok {
			sf.Init()
			return ErrTableCorrupt
		}
		off += words
	}

	if sf.Info.EntryCount == 0 {
		sf.Init()
		return ErrEmptyTable
	}
	sf.Info.SizeWords = off
	sf.buildTimeIndex()
	return nil
}

// takeEntry records one entry during a load walk. It mirrors the
// validator's per-entry rules so a buffer that changed since
// validation fails closed.
func (sf *AtsTable) takeEntry(cmdNum uint16, off int) (int, bool) {
	if int(cmdNum) > sf.MaxCmds {
		return 0, false
	}
	if sf.CmdStatus[cmdNum-1] != StatusEmpty {
		return 0, false
	}
	size, err := cpkt.DeclaredSize(sf.Buf[(off+AtsHeaderWords)*BytesPerWord:])
	if err != nil || size < cpkt.PacketMin || size > cpkt.PacketMax {
		return 0, false
	}
	words := AtsHeaderWords + packetWords(size)
	if off+words > sf.BufWords {
		return 0, false
	}

	sf.CmdIndex[cmdNum-1] = int32(off)
	sf.CmdStatus[cmdNum-1] = StatusLoaded
	sf.Info.EntryCount++
	return words, true
}

// EntryTime reads the absolute time tag of a loaded command.
func (sf *AtsTable) EntryTime(cmdNum uint16) uint32 {
	return AtsTimeTagAt(sf.Buf, int(sf.CmdIndex[cmdNum-1]))
}

// buildTimeIndex constructs the execution-rank list by repeated stable
// insertion. Loads and appends are rare while the list is scanned every
// dispatch, so exact ordering matters more than build cost. Command
// numbers are visited in ascending order, which fixes the tie order.
func (sf *AtsTable) buildTimeIndex() {
	length := 0
	for i := 0; i < sf.MaxCmds; i++ {
		if sf.CmdIndex[i] != InvalidOffset {
			sf.insert(uint16(i+1), length)
			length++
		}
	}
}

// insert places cmdNum into the first length elements of TimeIndex,
// keeping the list sorted by time tag. Existing entries with an equal
// tag are left in front of the new one.
func (sf *AtsTable) insert(cmdNum uint16, length int) {
	newTime := sf.EntryTime(cmdNum)
	pos := length
	for pos > 0 && sf.EntryTime(sf.TimeIndex[pos-1]) > newTime {
		sf.TimeIndex[pos] = sf.TimeIndex[pos-1]
		pos--
	}
	sf.TimeIndex[pos] = cmdNum
}

// AppendTable stages entries for the next append operation. Update
// recounts the staged prefix whenever the host commits a new staging
// buffer; the walk stops at the first terminator or malformed entry.
type AppendTable struct {
	Buf        []byte
	BufWords   int
	MaxCmds    int
	EntryCount int
	WordCount  int
	LoadCount  int
}

// NewAppendTable allocates an empty staging table.
func NewAppendTable(bufWords, maxCmds int) *AppendTable {
	return &AppendTable{
		Buf:      make([]byte, bufWords*BytesPerWord),
		BufWords: bufWords,
		MaxCmds:  maxCmds,
	}
}

// Update copies in a new staging buffer and recounts its usable
// entries.
func (sf *AppendTable) Update(src []byte) error {
	if len(src) > len(sf.Buf) {
		return ErrBufferOverflow
	}
	copy(sf.Buf, src)
	for i := len(src); i < len(sf.Buf); i++ {
		sf.Buf[i] = 0
	}

	sf.EntryCount = 0
	sf.WordCount = 0
	off := 0
	for off+AtsMinEntryWords <= sf.BufWords {
		cmdNum := AtsCmdNumAt(sf.Buf, off)
		if cmdNum == 0 || cmdNum == InvalidCmdNum || int(cmdNum) > sf.MaxCmds {
			break
		}
		size, err := cpkt.DeclaredSize(sf.Buf[(off+AtsHeaderWords)*BytesPerWord:])
		if err != nil || size < cpkt.PacketMin || size > cpkt.PacketMax {
			break
		}
		words := AtsHeaderWords + packetWords(size)
		if off+words > sf.BufWords {
			break
		}
		sf.EntryCount++
		off += words
	}
	sf.WordCount = off
	sf.LoadCount++
	return nil
}

// ProcessAppend grafts the staged entries onto the end of the target
// ATS and re-sorts the time index. A command number that was already
// loaded is re-pointed at its new copy; the old bytes stay behind as
// dead space. Execution state of the target is not touched here.
func (sf *AtsTable) ProcessAppend(app *AppendTable) (int, error) {
	if sf.Info.EntryCount == 0 {
		return 0, ErrTargetEmpty
	}
	if app.EntryCount == 0 {
		return 0, ErrEmptyTable
	}
	if sf.Info.SizeWords+app.WordCount > sf.BufWords {
		return 0, ErrNoSpace
	}

	base := sf.Info.SizeWords
	copy(sf.Buf[base*BytesPerWord:], app.Buf[:app.WordCount*BytesPerWord])

	grafted := 0
	off := base
	for i := 0; i < app.EntryCount; i++ {
		cmdNum := AtsCmdNumAt(sf.Buf, off)
		size, _ := cpkt.DeclaredSize(sf.Buf[(off+AtsHeaderWords)*BytesPerWord:])
		if sf.CmdIndex[cmdNum-1] == InvalidOffset {
			sf.Info.EntryCount++
		}
		sf.CmdIndex[cmdNum-1] = int32(off)
		sf.CmdStatus[cmdNum-1] = StatusLoaded
		grafted++
		off += AtsHeaderWords + packetWords(size)
	}

	sf.Info.SizeWords = off
	sf.buildTimeIndex()
	return grafted, nil
}

// RtsTable is one relative-time sequence buffer. All derived RTS state
// lives with the processor, the table itself is just the committed
// bytes.
type RtsTable struct {
	Buf      []byte
	BufWords int
}

// NewRtsTable allocates an empty table with the given capacity in
// words.
func NewRtsTable(bufWords int) *RtsTable {
	return &RtsTable{
		Buf:      make([]byte, bufWords*BytesPerWord),
		BufWords: bufWords,
	}
}

// Load commits an already-validated RTS buffer.
func (sf *RtsTable) Load(src []byte) error {
	if len(src) > len(sf.Buf) {
		return ErrBufferOverflow
	}
	copy(sf.Buf, src)
	for i := len(src); i < len(sf.Buf); i++ {
		sf.Buf[i] = 0
	}
	return nil
}
