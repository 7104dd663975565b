// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package sequencer

import (
	"encoding/binary"

	"github.com/rob-gra/go-storedcmd/cpkt"
	"github.com/rob-gra/go-storedcmd/seqtab"
)

// rtsPerStatusWord is how many RTS one status bitmap word covers.
const rtsPerStatusWord = 16

// Housekeeping is a snapshot of the externally observable sequencer
// state. Pack serializes it into the fixed telemetry layout.
type Housekeeping struct {
	AtsNumber                uint8
	AtpState                 uint8
	ContinueAtsOnFailureFlag uint8
	CmdErrCtr                uint8
	CmdCtr                   uint8

	SwitchPendFlag  uint16
	NumRtsActive    uint16
	RtsNumber       uint16
	RtsActiveCtr    uint16
	RtsActiveErrCtr uint16
	AtsCmdCtr       uint16
	AtsCmdErrCtr    uint16
	RtsCmdCtr       uint16
	RtsCmdErrCtr    uint16
	LastAtsErrSeq   uint16
	LastAtsErrCmd   uint16
	LastRtsErrSeq   uint16
	LastRtsErrCmd   uint16

	AppendCmdArg     uint16
	AppendEntryCount uint16
	AppendByteCount  uint16
	AppendLoadCount  uint16

	AtpCmdNumber uint32
	AtpFreeBytes []uint32
	NextRtsTime  uint32
	NextAtsTime  uint32

	// RTS status bitmaps: LSB of word 0 is RTS 1, bit 15 of word 0 is
	// RTS 16, LSB of word 1 is RTS 17, and so on.
	RtsExecutingStatus []uint16
	RtsDisabledStatus  []uint16
}

// Housekeeping builds the current telemetry snapshot.
func (sf *Sequencer) Housekeeping() Housekeeping {
	hk := Housekeeping{
		AtsNumber:        uint8(sf.atp.AtsNum),
		AtpState:         uint8(sf.atp.State),
		CmdErrCtr:        sf.cmdErrCtr,
		CmdCtr:           sf.cmdCtr,
		NumRtsActive:     sf.numRtsActive,
		RtsNumber:        sf.nextRtsNum,
		RtsActiveCtr:     sf.rtsActiveCtr,
		RtsActiveErrCtr:  sf.rtsActiveErrCtr,
		AtsCmdCtr:        sf.atsCmdCtr,
		AtsCmdErrCtr:     sf.atsCmdErrCtr,
		RtsCmdCtr:        sf.rtsCmdCtr,
		RtsCmdErrCtr:     sf.rtsCmdErrCtr,
		LastAtsErrSeq:    sf.lastAtsErrSeq,
		LastAtsErrCmd:    sf.lastAtsErrCmd,
		LastRtsErrSeq:    sf.lastRtsErrSeq,
		LastRtsErrCmd:    sf.lastRtsErrCmd,
		AppendCmdArg:     sf.appendCmdArg,
		AppendEntryCount: uint16(sf.appendTbl.EntryCount),
		AppendByteCount:  uint16(sf.appendTbl.WordCount * seqtab.BytesPerWord),
		AppendLoadCount:  uint16(sf.appendTbl.LoadCount),
		AtpCmdNumber:     uint32(sf.atp.CmdNum),
		NextRtsTime:      sf.nextCmdTime[procRTP],
		NextAtsTime:      sf.nextCmdTime[procATP],
	}
	if sf.continueAtsOnFailure {
		hk.ContinueAtsOnFailureFlag = 1
	}
	if sf.atp.SwitchPend {
		hk.SwitchPendFlag = 1
	}

	hk.AtpFreeBytes = make([]uint32, sf.cfg.NumAts)
	for i, tbl := range sf.ats {
		hk.AtpFreeBytes[i] = uint32((tbl.BufWords - tbl.Info.SizeWords) * seqtab.BytesPerWord)
	}

	words := (sf.cfg.NumRts + rtsPerStatusWord - 1) / rtsPerStatusWord
	hk.RtsExecutingStatus = make([]uint16, words)
	hk.RtsDisabledStatus = make([]uint16, words)
	for i := 0; i < sf.cfg.NumRts; i++ {
		bit := uint16(1) << (i % rtsPerStatusWord)
		if sf.rtsInfo[i].Status == seqtab.StatusExecuting {
			hk.RtsExecutingStatus[i/rtsPerStatusWord] |= bit
		}
		if sf.rtsInfo[i].Disabled {
			hk.RtsDisabledStatus[i/rtsPerStatusWord] |= bit
		}
	}
	return hk
}

// Pack serializes the snapshot big-endian in declaration order.
func (sf *Housekeeping) Pack() []byte {
	b := make([]byte, 0, 64+4*len(sf.AtpFreeBytes)+4*len(sf.RtsExecutingStatus))

	b = append(b, sf.AtsNumber, sf.AtpState, sf.ContinueAtsOnFailureFlag, sf.CmdErrCtr, sf.CmdCtr, 0)

	for _, v := range []uint16{
		sf.SwitchPendFlag, sf.NumRtsActive, sf.RtsNumber,
		sf.RtsActiveCtr, sf.RtsActiveErrCtr,
		sf.AtsCmdCtr, sf.AtsCmdErrCtr, sf.RtsCmdCtr, sf.RtsCmdErrCtr,
		sf.LastAtsErrSeq, sf.LastAtsErrCmd, sf.LastRtsErrSeq, sf.LastRtsErrCmd,
		sf.AppendCmdArg, sf.AppendEntryCount, sf.AppendByteCount, sf.AppendLoadCount,
	} {
		b = binary.BigEndian.AppendUint16(b, v)
	}

	b = binary.BigEndian.AppendUint32(b, sf.AtpCmdNumber)
	for _, v := range sf.AtpFreeBytes {
		b = binary.BigEndian.AppendUint32(b, v)
	}
	b = binary.BigEndian.AppendUint32(b, sf.NextRtsTime)
	b = binary.BigEndian.AppendUint32(b, sf.NextAtsTime)

	for _, v := range sf.RtsExecutingStatus {
		b = binary.BigEndian.AppendUint16(b, v)
	}
	for _, v := range sf.RtsDisabledStatus {
		b = binary.BigEndian.AppendUint16(b, v)
	}
	return b
}

// sendHousekeeping emits the telemetry packet on the bus.
func (sf *Sequencer) sendHousekeeping() {
	hk := sf.Housekeeping()
	pkt := &cpkt.Packet{
		StreamID: cpkt.HkTlmMID,
		Payload:  hk.Pack(),
	}
	pkt.Encode()
	if err := sf.bus.Send(pkt); err != nil {
		sf.log.Error("housekeeping send failed: %v", err)
	}
}
