// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package sequencer

import (
	"github.com/rob-gra/go-storedcmd/seqtab"
)

// StartAts begins execution of the numbered ATS on the idle ATP.
func (sf *Sequencer) StartAts(num uint16) {
	if num < 1 || int(num) > sf.cfg.NumAts {
		sf.event(EIDStartAtsInvalidID, EventError, "Start ATS %d Rejected: Invalid ATS ID", num)
		sf.cmdErrCtr++
		return
	}
	idx := int(num - 1)

	if sf.atp.State != seqtab.StatusIdle {
		sf.event(EIDStartAtsNotIdle, EventError, "Start ATS Rejected: ATP is not Idle")
		sf.cmdErrCtr++
		return
	}
	if sf.ats[idx].Info.EntryCount == 0 {
		sf.event(EIDStartAtsNotLoaded, EventError, "Start ATS Rejected: ATS %c Not Loaded", atsName(idx))
		sf.cmdErrCtr++
		return
	}

	if sf.beginAts(idx, 0) {
		sf.atp.State = seqtab.StatusExecuting
		sf.cmdCtr++
		sf.event(EIDStartAts, EventInfo, "ATS %c Execution Started", atsName(idx))
	} else {
		// all commands were skipped, beginAts reported it
		sf.cmdErrCtr++
	}
}

// StopAts stops the executing ATS. Idempotent; stopping an idle ATP is
// still counted as a successful request.
func (sf *Sequencer) StopAts() {
	if sf.atp.AtsNum >= 1 && int(sf.atp.AtsNum) <= sf.cfg.NumAts && sf.atp.State != seqtab.StatusIdle {
		sf.event(EIDStopAts, EventInfo, "ATS %c stopped", atsName(int(sf.atp.AtsNum-1)))
	} else {
		sf.event(EIDStopAtsNoAts, EventInfo, "There is no ATS running to stop")
	}

	sf.killAts()
	sf.cmdCtr++
}

// beginAts readies the ATP for the given ATS, skipping every entry
// whose time tag lies before current time plus offset. The caller sets
// the ATP state on a true return; a false return means the whole
// sequence was skipped and the ATP was killed.
func (sf *Sequencer) beginAts(idx int, offset uint16) bool {
	if !sf.atsIndexValid(idx) {
		sf.event(EIDBeginAtsInvalidIndex, EventError, "Begin ATS error: invalid ATS index %d", idx)
		return false
	}
	tbl := sf.ats[idx]
	startTime := sf.currentTime + uint32(offset)

	rank := 0
	skipped := 0
	var cmdTime uint32
	var cmdNum uint16
	for rank < tbl.Info.EntryCount {
		cmdNum = tbl.TimeIndex[rank]
		cmdTime = tbl.EntryTime(cmdNum)
		if startTime > cmdTime {
			tbl.CmdStatus[cmdNum-1] = seqtab.StatusSkipped
			skipped++
			rank++
		} else {
			break
		}
	}

	if rank == tbl.Info.EntryCount {
		sf.event(EIDAtsAllSkipped, EventError, "All ATS commands were skipped, ATS stopped")
		sf.killAts()
		return false
	}

	sf.atp.AtsNum = uint16(idx + 1)
	sf.atp.CmdNum = cmdNum
	sf.atp.TimeRank = rank
	sf.nextCmdTime[procATP] = cmdTime
	sf.event(EIDAtsSkipped, EventDebug, "ATS started, skipped %d commands", skipped)
	return true
}

// killAts idles the ATP. The use counter of the ATS that was running is
// bumped, and any pending switch dies with the activation.
func (sf *Sequencer) killAts() {
	idx := int(sf.atp.AtsNum) - 1
	if sf.atsIndexValid(idx) && sf.atp.State != seqtab.StatusIdle {
		sf.ats[idx].Info.UseCtr++
	}
	sf.atp.State = seqtab.StatusIdle
	sf.atp.SwitchPend = false
	sf.nextCmdTime[procATP] = MaxTime
}

// SwitchAts requests a deferred handoff to the other ATS. The switch
// itself happens on the next tick with no ATP command due.
func (sf *Sequencer) SwitchAts() {
	if sf.atp.State != seqtab.StatusExecuting {
		sf.event(EIDSwitchAtsIdle, EventError, "Switch ATS Rejected: ATP is idle")
		sf.cmdErrCtr++
		sf.atp.SwitchPend = false
		return
	}

	newIdx := sf.otherAtsIndex()
	if sf.ats[newIdx].Info.EntryCount == 0 {
		sf.event(EIDSwitchAtsNotLoaded, EventError, "Switch ATS Failure: Destination ATS Not Loaded")
		sf.cmdErrCtr++
		sf.atp.SwitchPend = false
		return
	}

	sf.atp.SwitchPend = true
	sf.cmdCtr++
	sf.event(EIDSwitchAtsPending, EventInfo, "Switch ATS is Pending")
}

// serviceSwitchPend performs a pending switch once the tick carries no
// ATP command. The replacement ATS starts one second ahead so commands
// already issued this second are not repeated.
func (sf *Sequencer) serviceSwitchPend() {
	if sf.nextCmdTime[procATP] <= sf.currentTime {
		// a command is still due this second, hold the switch
		return
	}

	if sf.atp.State != seqtab.StatusExecuting {
		// only possible if the flag was corrupted somehow
		sf.event(EIDSwitchAtsServiceIdle, EventError, "Switch ATS Rejected: ATP is idle")
		sf.atp.SwitchPend = false
		return
	}

	oldIdx := int(sf.atp.AtsNum) - 1
	newIdx := sf.otherAtsIndex()
	if sf.ats[newIdx].Info.EntryCount == 0 {
		sf.event(EIDSwitchAtsServiceNotLoaded, EventError, "Switch ATS Failure: Destination ATS is empty")
		sf.atp.SwitchPend = false
		return
	}

	sf.killAts()
	if sf.beginAts(newIdx, 1) {
		sf.atp.State = seqtab.StatusExecuting
		sf.event(EIDSwitchAtsServiced, EventInfo, "ATS Switched from %c to %c", atsName(oldIdx), atsName(newIdx))
	}
	sf.atp.SwitchPend = false
}

// inlineSwitch handles a switch request embedded in the ATS stream
// itself. The new ATS starts with no offset and the ATP latches in the
// STARTING state until the next tick.
func (sf *Sequencer) inlineSwitch() bool {
	oldIdx := int(sf.atp.AtsNum) - 1
	newIdx := sf.otherAtsIndex()
	ok := false

	if sf.ats[newIdx].Info.EntryCount > 0 {
		sf.killAts()
		if sf.beginAts(newIdx, 0) {
			sf.atp.State = seqtab.StatusStarting
			sf.cmdCtr++
			sf.event(EIDSwitchAtsInline, EventInfo, "ATS Switched from %c to %c", atsName(oldIdx), atsName(newIdx))
			ok = true
		} else {
			sf.cmdErrCtr++
		}
	} else {
		sf.event(EIDSwitchAtsInlineNotLoaded, EventError, "Switch ATS Failure: Destination ATS Not Loaded")
		sf.cmdErrCtr++
	}

	sf.atp.SwitchPend = false
	return ok
}

// JumpAts moves the ATP forward to the first command at or after the
// given time. Commands passed over keep any status they already earned;
// only LOADED ones become SKIPPED.
func (sf *Sequencer) JumpAts(newTime uint32) {
	if sf.atp.State != seqtab.StatusExecuting {
		sf.event(EIDJumpAtsNoAts, EventError, "ATS Jump Failed: No active ATS")
		sf.cmdErrCtr++
		return
	}

	idx := int(sf.atp.AtsNum) - 1
	tbl := sf.ats[idx]

	rank := 0
	skipped := 0
	var cmdTime uint32
	var cmdNum uint16
	for rank < tbl.Info.EntryCount {
		cmdNum = tbl.TimeIndex[rank]
		cmdTime = tbl.EntryTime(cmdNum)
		if newTime > cmdTime {
			if tbl.CmdStatus[cmdNum-1] == seqtab.StatusLoaded {
				tbl.CmdStatus[cmdNum-1] = seqtab.StatusSkipped
				skipped++
			}
			rank++
		} else {
			break
		}
	}

	if rank == tbl.Info.EntryCount {
		sf.event(EIDJumpAtsStopped, EventError, "Jump Cmd: All ATS commands were skipped, ATS stopped")
		sf.cmdErrCtr++
		sf.killAts()
		return
	}

	sf.atp.CmdNum = cmdNum
	sf.atp.TimeRank = rank
	sf.nextCmdTime[procATP] = cmdTime
	sf.cmdCtr++
	sf.event(EIDJumpAts, EventInfo, "Next ATS command time in the ATP was set to %d", cmdTime)
	if skipped > 0 {
		sf.event(EIDJumpAtsSkipped, EventDebug, "Jump Cmd: Skipped %d ATS commands", skipped)
	}
}

// ContinueAtsOnFailure sets whether an ATS keeps running after one of
// its commands fails its checksum.
func (sf *Sequencer) ContinueAtsOnFailure(state bool) {
	sf.continueAtsOnFailure = state
	sf.cmdCtr++
	sf.event(EIDContinueAts, EventDebug, "Continue-ATS-On-Failure command, State: %v", state)
}

// AppendAts grafts the staged Append entries onto the numbered ATS.
func (sf *Sequencer) AppendAts(num uint16) {
	if num < 1 || int(num) > sf.cfg.NumAts {
		sf.event(EIDAppendAtsInvalidID, EventError, "Append ATS error: invalid ATS ID = %d", num)
		sf.cmdErrCtr++
		return
	}
	idx := int(num - 1)
	tbl := sf.ats[idx]

	switch {
	case tbl.Info.EntryCount == 0:
		sf.event(EIDAppendAtsTargetEmpty, EventError, "Append ATS %c error: ATS table is empty", atsName(idx))
		sf.cmdErrCtr++
	case sf.appendTbl.EntryCount == 0:
		sf.event(EIDAppendAtsSourceEmpty, EventError, "Append ATS %c error: Append table is empty", atsName(idx))
		sf.cmdErrCtr++
	case tbl.Info.SizeWords+sf.appendTbl.WordCount > tbl.BufWords:
		sf.event(EIDAppendAtsNoFit, EventError,
			"Append ATS %c error: ATS size = %d, Append size = %d, ATS buffer = %d",
			atsName(idx), tbl.Info.SizeWords, sf.appendTbl.WordCount, tbl.BufWords)
		sf.cmdErrCtr++
	default:
		sf.appendCmdArg = num
		grafted, err := tbl.ProcessAppend(sf.appendTbl)
		if err != nil {
			sf.event(EIDAppendAtsNoFit, EventError, "Append ATS %c error: %v", atsName(idx), err)
			sf.cmdErrCtr++
			return
		}
		sf.cmdCtr++
		sf.event(EIDAppendAts, EventInfo, "Append ATS %c command: %d ATS entries appended", atsName(idx), grafted)
	}
}
