// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package sequencer

import (
	"encoding/binary"

	"github.com/rob-gra/go-storedcmd/cpkt"
)

// Ground command function codes.
const (
	CCNoop                 byte = 0
	CCResetCounters        byte = 1
	CCStartAts             byte = 2
	CCStopAts              byte = 3
	CCStartRts             byte = 4
	CCStopRts              byte = 5
	CCDisableRts           byte = 6
	CCEnableRts            byte = 7
	CCSwitchAts            byte = 8
	CCJumpAts              byte = 9
	CCContinueAtsOnFailure byte = 10
	CCAppendAts            byte = 11
	CCManageTable          byte = 12
	CCStartRtsGroup        byte = 13
	CCStopRtsGroup         byte = 14
	CCDisableRtsGroup      byte = 15
	CCEnableRtsGroup       byte = 16
)

// ProcessMessage handles one message from the input pipe: a wakeup
// tick, a housekeeping request, or a ground command. Must be called
// from the single owner goroutine.
func (sf *Sequencer) ProcessMessage(p *cpkt.Packet) {
	switch p.StreamID {
	case cpkt.WakeupMID:
		sf.ProcessTick()
	case cpkt.SendHkMID:
		sf.sendHousekeeping()
	case cpkt.CmdMID:
		sf.processGroundCommand(p)
	default:
		sf.cmdErrCtr++
		sf.event(EIDInvalidMsgID, EventError, "Invalid command pipe message ID: 0x%04X", p.StreamID)
	}
}

// checkPayload rejects a command whose payload size does not match the
// expected layout, before any field is read.
func (sf *Sequencer) checkPayload(p *cpkt.Packet, want int) bool {
	if len(p.Payload) != want {
		sf.cmdErrCtr++
		sf.event(EIDInvalidCmdLength, EventError,
			"Invalid msg length: ID = 0x%04X, CC = %d, Len = %d, Expected = %d",
			p.StreamID, p.FuncCode, len(p.Payload), want)
		return false
	}
	return true
}

// processGroundCommand decodes a ground command by function code and
// mutates processor state through the matching handler.
func (sf *Sequencer) processGroundCommand(p *cpkt.Packet) {
	switch p.FuncCode {
	case CCNoop:
		if sf.checkPayload(p, 0) {
			sf.cmdCtr++
			sf.event(EIDNoop, EventInfo, "No-op command")
		}

	case CCResetCounters:
		if sf.checkPayload(p, 0) {
			sf.resetCounters()
			sf.event(EIDResetCounters, EventDebug, "Reset counters command")
		}

	case CCStartAts:
		if sf.checkPayload(p, 4) {
			sf.StartAts(binary.BigEndian.Uint16(p.Payload))
		}

	case CCStopAts:
		if sf.checkPayload(p, 0) {
			sf.StopAts()
		}

	case CCStartRts:
		if sf.checkPayload(p, 4) {
			sf.StartRts(binary.BigEndian.Uint16(p.Payload))
		}

	case CCStopRts:
		if sf.checkPayload(p, 4) {
			sf.StopRts(binary.BigEndian.Uint16(p.Payload))
		}

	case CCDisableRts:
		if sf.checkPayload(p, 4) {
			sf.DisableRts(binary.BigEndian.Uint16(p.Payload))
		}

	case CCEnableRts:
		if sf.checkPayload(p, 4) {
			sf.EnableRts(binary.BigEndian.Uint16(p.Payload))
		}

	case CCSwitchAts:
		if sf.checkPayload(p, 0) {
			sf.SwitchAts()
		}

	case CCJumpAts:
		if sf.checkPayload(p, 4) {
			sf.JumpAts(binary.BigEndian.Uint32(p.Payload))
		}

	case CCContinueAtsOnFailure:
		if sf.checkPayload(p, 4) {
			state := binary.BigEndian.Uint16(p.Payload)
			if state > 1 {
				sf.cmdErrCtr++
				sf.event(EIDContinueAtsInvalid, EventError,
					"Continue ATS On Failure command failed, invalid state: %d", state)
			} else {
				sf.ContinueAtsOnFailure(state == 1)
			}
		}

	case CCAppendAts:
		if sf.checkPayload(p, 4) {
			sf.AppendAts(binary.BigEndian.Uint16(p.Payload))
		}

	case CCManageTable:
		if sf.checkPayload(p, 4) {
			sf.manageTable(TableID(binary.BigEndian.Uint16(p.Payload)))
		}

	case CCStartRtsGroup:
		if sf.checkPayload(p, 4) {
			sf.StartRtsGroup(binary.BigEndian.Uint16(p.Payload), binary.BigEndian.Uint16(p.Payload[2:]))
		}

	case CCStopRtsGroup:
		if sf.checkPayload(p, 4) {
			sf.StopRtsGroup(binary.BigEndian.Uint16(p.Payload), binary.BigEndian.Uint16(p.Payload[2:]))
		}

	case CCDisableRtsGroup:
		if sf.checkPayload(p, 4) {
			sf.DisableRtsGroup(binary.BigEndian.Uint16(p.Payload), binary.BigEndian.Uint16(p.Payload[2:]))
		}

	case CCEnableRtsGroup:
		if sf.checkPayload(p, 4) {
			sf.EnableRtsGroup(binary.BigEndian.Uint16(p.Payload), binary.BigEndian.Uint16(p.Payload[2:]))
		}

	default:
		sf.cmdErrCtr++
		sf.event(EIDInvalidCmdCode, EventError, "Invalid Command Code: CC = %d", p.FuncCode)
	}
}

// resetCounters clears every housekeeping counter.
func (sf *Sequencer) resetCounters() {
	sf.cmdCtr = 0
	sf.cmdErrCtr = 0
	sf.atsCmdCtr = 0
	sf.atsCmdErrCtr = 0
	sf.rtsCmdCtr = 0
	sf.rtsCmdErrCtr = 0
	sf.rtsActiveCtr = 0
	sf.rtsActiveErrCtr = 0
}

// manageTable services a host table notification: ask the table
// service to process the pending update, then revalidate and commit
// whatever buffer came back. Running it inside the command handler
// keeps updates away from mid-dispatch state.
func (sf *Sequencer) manageTable(id TableID) {
	if sf.tables == nil {
		sf.cmdErrCtr++
		sf.event(EIDTableManageInvalidID, EventError, "Table manage command: no table service registered")
		return
	}

	var load func([]byte) error
	var name string
	switch {
	case id > tableIDAtsBase && id <= tableIDAtsBase+TableID(sf.cfg.NumAts):
		n := uint16(id - tableIDAtsBase)
		load = func(buf []byte) error { return sf.LoadAts(n, buf) }
		name = "ATS"
	case id == tableIDAppendBase:
		load = sf.LoadAppend
		name = "Append"
	case id > tableIDRtsBase && id <= tableIDRtsBase+TableID(sf.cfg.NumRts):
		n := uint16(id - tableIDRtsBase)
		load = func(buf []byte) error { return sf.LoadRts(n, buf) }
		name = "RTS"
	default:
		sf.cmdErrCtr++
		sf.event(EIDTableManageInvalidID, EventError, "Table manage command: invalid table ID = 0x%04X", uint16(id))
		return
	}

	buf, updated, err := sf.tables.Manage(id)
	if err != nil {
		sf.cmdErrCtr++
		sf.event(EIDTableManage, EventError, "%s table manage failed: %v", name, err)
		return
	}
	if updated {
		if err := load(buf); err != nil {
			// load path already reported the specific failure
			sf.cmdErrCtr++
			return
		}
	}
	sf.cmdCtr++
}
