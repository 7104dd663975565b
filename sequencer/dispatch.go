// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package sequencer

import (
	"github.com/rob-gra/go-storedcmd/cpkt"
	"github.com/rob-gra/go-storedcmd/seqtab"
)

// ProcessTick runs one wakeup cycle: refresh current time, service a
// pending switch, then interleave due ATP and RTP commands up to the
// per-tick budget. Overload shows up as delay, never as loss; commands
// left over stay due and drain on later ticks in the same order.
func (sf *Sequencer) ProcessTick() {
	sf.currentTime = sf.time.Now()

	if sf.atp.State == seqtab.StatusStarting {
		sf.getNextAtsCommand()
	}
	if sf.atp.SwitchPend {
		sf.serviceSwitchPend()
	}

	sf.cmdsThisTick = 0
	for {
		sf.updateNextTime()
		if sf.nextProc == procNone || sf.cmdsThisTick >= sf.cfg.MaxCmdsPerTick {
			break
		}
		if sf.nextCmdTime[sf.nextProc] > sf.currentTime {
			break
		}
		if sf.nextProc == procATP {
			sf.processAtpCmd()
		} else {
			sf.processRtpCmd()
		}
		sf.cmdsThisTick++
	}
}

// processAtpCmd dispatches the ATP's current command. Preconditions
// (state, due time, budget) were established by the tick loop.
func (sf *Sequencer) processAtpCmd() {
	idx := int(sf.atp.AtsNum) - 1
	if !sf.atsIndexValid(idx) || sf.atp.State != seqtab.StatusExecuting {
		return
	}
	tbl := sf.ats[idx]
	cmdIdx := int(sf.atp.CmdNum) - 1
	if cmdIdx < 0 || cmdIdx >= tbl.MaxCmds || tbl.CmdIndex[cmdIdx] == seqtab.InvalidOffset {
		sf.atsCmdErrCtr++
		sf.event(EIDAtsCmdMismatch, EventError,
			"ATS Command Number Mismatch: ATS %c, cmd number %d", atsName(idx), sf.atp.CmdNum)
		sf.killAts()
		return
	}

	entry, err := seqtab.DecodeAtsEntry(tbl.Buf, int(tbl.CmdIndex[cmdIdx]))
	if err != nil || entry.CmdNum != sf.atp.CmdNum {
		// the entry no longer matches the control block, the sequence
		// cannot be trusted
		sf.atsCmdErrCtr++
		sf.lastAtsErrSeq = sf.atp.AtsNum
		sf.lastAtsErrCmd = sf.atp.CmdNum
		sf.event(EIDAtsCmdMismatch, EventError,
			"ATS Command Number Mismatch: ATS %c, cmd number %d", atsName(idx), sf.atp.CmdNum)
		sf.killAts()
		return
	}

	if tbl.CmdStatus[cmdIdx] != seqtab.StatusLoaded {
		sf.atsCmdErrCtr++
		sf.lastAtsErrSeq = sf.atp.AtsNum
		sf.lastAtsErrCmd = sf.atp.CmdNum
		sf.event(EIDAtsCmdBadStatus, EventError,
			"Invalid ATS Command Status: ATS %c, cmd number %d, status %s",
			atsName(idx), sf.atp.CmdNum, tbl.CmdStatus[cmdIdx])
		sf.getNextAtsCommand()
		return
	}

	if !entry.Pkt.VerifyChecksum() {
		tbl.CmdStatus[cmdIdx] = seqtab.StatusFailedChecksum
		sf.atsCmdErrCtr++
		sf.lastAtsErrSeq = sf.atp.AtsNum
		sf.lastAtsErrCmd = sf.atp.CmdNum
		sf.event(EIDAtsChecksumFailed, EventError,
			"ATS Command Failed Checksum: ATS %c, cmd number %d", atsName(idx), sf.atp.CmdNum)
		if sf.continueAtsOnFailure {
			sf.getNextAtsCommand()
		} else {
			sf.killAts()
			sf.event(EIDAtsAborted, EventError, "ATS %c Aborted", atsName(idx))
		}
		return
	}

	if entry.Pkt.StreamID == cpkt.CmdMID && entry.Pkt.FuncCode == CCSwitchAts {
		// a switch embedded in the stream replaces the running ATS,
		// the request packet itself is not emitted on the bus
		tbl.CmdStatus[cmdIdx] = seqtab.StatusExecuted
		sf.atsCmdCtr++
		sf.inlineSwitch()
		return
	}

	if err := sf.bus.Send(entry.Pkt); err != nil {
		tbl.CmdStatus[cmdIdx] = seqtab.StatusFailedDistrib
		sf.atsCmdErrCtr++
		sf.lastAtsErrSeq = sf.atp.AtsNum
		sf.lastAtsErrCmd = sf.atp.CmdNum
		sf.event(EIDAtsDistribFailed, EventError,
			"ATS Command Distribution Failed: ATS %c, cmd number %d: %v", atsName(idx), sf.atp.CmdNum, err)
	} else {
		tbl.CmdStatus[cmdIdx] = seqtab.StatusExecuted
		sf.atsCmdCtr++
	}
	sf.getNextAtsCommand()
}

// processRtpCmd dispatches the selected RTS command.
func (sf *Sequencer) processRtpCmd() {
	num := sf.nextRtsNum
	if num < 1 || int(num) > sf.cfg.NumRts {
		return
	}
	idx := int(num - 1)
	info := &sf.rtsInfo[idx]
	if info.Status != seqtab.StatusExecuting {
		return
	}

	entry, err := sf.rtsEntryAt(idx, info.NextCmdOff)
	if err != nil {
		sf.abortRts(idx, info.NextCmdOff)
		return
	}

	if !entry.Pkt.VerifyChecksum() {
		sf.rtsCmdErrCtr++
		info.CmdErrCtr++
		sf.lastRtsErrSeq = num
		sf.lastRtsErrCmd = uint16(info.NextCmdOff)
		sf.killRts(idx)
		sf.event(EIDRtsChecksumFailed, EventError,
			"RTS %03d Command Distribution Failed Checksum: Aborted", num)
		return
	}

	if err := sf.bus.Send(entry.Pkt); err != nil {
		sf.rtsCmdErrCtr++
		info.CmdErrCtr++
		sf.lastRtsErrSeq = num
		sf.lastRtsErrCmd = uint16(info.NextCmdOff)
		sf.event(EIDRtsDistribFailed, EventError,
			"RTS %03d Command Distribution Failed: %v", num, err)
	} else {
		sf.rtsCmdCtr++
		info.CmdCtr++
	}
	sf.getNextRtsCommand()
}
