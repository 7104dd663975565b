// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package sequencer

import (
	"encoding/binary"

	"github.com/rob-gra/go-storedcmd/cpkt"
	"github.com/rob-gra/go-storedcmd/seqtab"
)

// getNextRtsTime selects the RTS to fire next. The table is walked
// backwards so that among equal next-command times the lowest RTS
// number wins; that is the RTS priority rule.
func (sf *Sequencer) getNextRtsTime() {
	nextNum := uint16(0)
	nextTime := MaxTime

	for i := sf.cfg.NumRts - 1; i >= 0; i-- {
		if sf.rtsInfo[i].Status == seqtab.StatusExecuting &&
			sf.rtsInfo[i].NextCmdTime <= nextTime {
			nextTime = sf.rtsInfo[i].NextCmdTime
			nextNum = uint16(i + 1)
		}
	}

	sf.nextRtsNum = nextNum
	if nextNum == 0 {
		sf.nextCmdTime[procRTP] = MaxTime
	} else {
		sf.nextCmdTime[procRTP] = nextTime
	}
}

// updateNextTime decides whether the ATP or the RTP schedules the next
// command. The ATP wins ties; it is the higher priority processor.
func (sf *Sequencer) updateNextTime() {
	sf.getNextRtsTime()

	sf.nextProc = procNone
	if sf.atp.State == seqtab.StatusExecuting {
		sf.nextProc = procATP
	}
	if sf.nextRtsNum > 0 && sf.nextCmdTime[procRTP] < sf.nextCmdTime[procATP] {
		sf.nextProc = procRTP
	}
}

// getNextAtsCommand advances the ATP past the command just dispatched,
// or latches a STARTING ATP into execution.
func (sf *Sequencer) getNextAtsCommand() {
	switch sf.atp.State {
	case seqtab.StatusExecuting:
		idx := int(sf.atp.AtsNum) - 1
		tbl := sf.ats[idx]
		rank := sf.atp.TimeRank + 1

		if rank < tbl.Info.EntryCount {
			sf.atp.TimeRank = rank
			sf.atp.CmdNum = tbl.TimeIndex[rank]
			sf.nextCmdTime[procATP] = tbl.EntryTime(sf.atp.CmdNum)
		} else {
			// ran off the end of the sequence
			sf.killAts()
			sf.event(EIDAtsComplete, EventInfo, "ATS %c Execution Completed", atsName(idx))
		}

	case seqtab.StatusStarting:
		// entered by an inline switch with no same-second commands;
		// execution commences on the next tick
		sf.atp.State = seqtab.StatusExecuting
	}
}

// getNextRtsCommand advances the selected RTS past the command just
// dispatched. A short tail, a zero header (wakeup count and length
// field both zero), or an exhausted buffer completes the RTS; a
// malformed length aborts it.
func (sf *Sequencer) getNextRtsCommand() {
	if sf.nextRtsNum < 1 || int(sf.nextRtsNum) > sf.cfg.NumRts {
		return
	}
	idx := int(sf.nextRtsNum) - 1
	info := &sf.rtsInfo[idx]
	if info.Status != seqtab.StatusExecuting {
		return
	}
	tbl := sf.rts[idx]

	cur, err := seqtab.DecodeRtsEntry(tbl.Buf, info.NextCmdOff)
	if err != nil {
		// current entry was dispatched, so this cannot happen unless
		// the buffer changed underneath us
		sf.abortRts(idx, info.NextCmdOff)
		return
	}
	off := info.NextCmdOff + cur.Words()

	if off > tbl.BufWords-seqtab.RtsMinEntryWords {
		sf.completeRts(idx)
		return
	}

	pktOff := (off + seqtab.RtsHeaderWords) * seqtab.BytesPerWord
	lenField := binary.BigEndian.Uint16(tbl.Buf[pktOff+4:])
	wakeup := binary.BigEndian.Uint32(tbl.Buf[off*seqtab.BytesPerWord:])
	if wakeup == 0 && lenField == 0 {
		// a zero header marks the end of the sequence; a zero length
		// field alone is a header-only packet
		sf.completeRts(idx)
		return
	}

	size := cpkt.HeaderSize + int(lenField)
	if size < cpkt.PacketMin || size > cpkt.PacketMax {
		sf.rtsLengthError(idx, off, size)
		return
	}
	if off+seqtab.RtsHeaderWords+(size+seqtab.BytesPerWord-1)/seqtab.BytesPerWord > tbl.BufWords {
		sf.abortRts(idx, off)
		return
	}

	next, err := seqtab.DecodeRtsEntry(tbl.Buf, off)
	if err != nil {
		sf.rtsLengthError(idx, off, size)
		return
	}
	info.NextCmdTime = sf.currentTime + next.WakeupCount
	info.NextCmdOff = off
}

// completeRts ends an RTS gracefully. Completion events are suppressed
// above the configured horizon to bound event-bus load.
func (sf *Sequencer) completeRts(idx int) {
	num := idx + 1
	sf.killRts(idx)
	if num <= sf.cfg.LastRtsWithEvents {
		sf.event(EIDRtsComplete, EventInfo, "RTS %03d Execution Completed", num)
	}
}

// rtsLengthError aborts an RTS whose next entry declares a length out
// of bounds.
func (sf *Sequencer) rtsLengthError(idx, off, size int) {
	num := uint16(idx + 1)
	sf.rtsCmdErrCtr++
	sf.rtsInfo[idx].CmdErrCtr++
	sf.lastRtsErrSeq = num
	sf.lastRtsErrCmd = uint16(off)
	sf.killRts(idx)
	sf.event(EIDRtsLengthError, EventError,
		"Invalid Length Field in RTS Command, RTS %03d Aborted. Length: %d, Max: %d",
		num, size, cpkt.PacketMax)
}

// abortRts aborts an RTS whose next entry runs past the buffer end.
func (sf *Sequencer) abortRts(idx, off int) {
	num := uint16(idx + 1)
	sf.rtsCmdErrCtr++
	sf.rtsInfo[idx].CmdErrCtr++
	sf.lastRtsErrSeq = num
	sf.lastRtsErrCmd = uint16(off)
	sf.killRts(idx)
	sf.event(EIDRtsAborted, EventError, "Cmd Runs passed end of table, RTS %03d Aborted", num)
}
