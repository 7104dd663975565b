// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package sequencer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rob-gra/go-storedcmd/cpkt"
	"github.com/rob-gra/go-storedcmd/seqtab"
)

func TestAtsLifecycle(t *testing.T) {
	s, bus, clock, rec := newTestSeq(t)
	// cmd 1 executes second although it comes first in the buffer
	require.NoError(t, s.LoadAts(1, atsBuf(
		atsEntry(1, 100),
		atsEntry(2, 50),
	)))

	s.StartAts(1)
	assert.Equal(t, seqtab.StatusExecuting, s.atp.State)
	assert.Equal(t, uint16(2), s.atp.CmdNum)
	assert.Equal(t, uint32(50), s.nextCmdTime[procATP])

	tick(s, clock, 10)
	assert.Empty(t, bus.sent)

	tick(s, clock, 50)
	require.Len(t, bus.sent, 1)
	assert.Equal(t, seqtab.StatusExecuted, s.ats[0].CmdStatus[1])
	assert.Equal(t, uint32(100), s.nextCmdTime[procATP])

	tick(s, clock, 100)
	require.Len(t, bus.sent, 2)
	assert.Equal(t, seqtab.StatusExecuted, s.ats[0].CmdStatus[0])

	// sequence exhausted, ATP idles and the use counter bumps
	assert.Equal(t, seqtab.StatusIdle, s.atp.State)
	assert.Equal(t, MaxTime, s.nextCmdTime[procATP])
	assert.Equal(t, 1, s.ats[0].Info.UseCtr)
	assert.True(t, rec.has(EIDAtsComplete))
	assert.Equal(t, uint16(2), s.atsCmdCtr)
}

func TestStartAtsRejections(t *testing.T) {
	s, _, _, rec := newTestSeq(t)

	s.StartAts(9)
	assert.True(t, rec.has(EIDStartAtsInvalidID))
	assert.Equal(t, uint8(1), s.cmdErrCtr)

	s.StartAts(1)
	assert.True(t, rec.has(EIDStartAtsNotLoaded))
	assert.Equal(t, uint8(2), s.cmdErrCtr)

	require.NoError(t, s.LoadAts(1, atsBuf(atsEntry(1, 10))))
	s.StartAts(1)
	require.Equal(t, seqtab.StatusExecuting, s.atp.State)

	s.StartAts(1)
	assert.True(t, rec.has(EIDStartAtsNotIdle))
	assert.Equal(t, uint8(3), s.cmdErrCtr)
}

func TestStartAtsAllSkipped(t *testing.T) {
	s, _, clock, rec := newTestSeq(t)
	require.NoError(t, s.LoadAts(1, atsBuf(atsEntry(1, 10))))

	clock.t = 500
	s.ProcessTick()
	s.StartAts(1)

	assert.Equal(t, seqtab.StatusIdle, s.atp.State)
	assert.True(t, rec.has(EIDAtsAllSkipped))
	assert.Equal(t, uint8(1), s.cmdErrCtr)
	assert.Equal(t, seqtab.StatusSkipped, s.ats[0].CmdStatus[0])
}

func TestStopAtsIdempotent(t *testing.T) {
	s, _, _, rec := newTestSeq(t)
	require.NoError(t, s.LoadAts(1, atsBuf(atsEntry(1, 10))))
	s.StartAts(1)

	s.StopAts()
	assert.Equal(t, seqtab.StatusIdle, s.atp.State)
	assert.True(t, rec.has(EIDStopAts))
	use := s.ats[0].Info.UseCtr

	s.StopAts()
	assert.Equal(t, seqtab.StatusIdle, s.atp.State)
	assert.Equal(t, use, s.ats[0].Info.UseCtr)
	assert.True(t, rec.has(EIDStopAtsNoAts))
	assert.Equal(t, uint8(3), s.cmdCtr) // start + two stops
}

func TestJumpAtsSkipsOnlyLoaded(t *testing.T) {
	s, bus, clock, rec := newTestSeq(t)
	require.NoError(t, s.LoadAts(1, atsBuf(
		atsEntry(1, 100),
		atsEntry(2, 50),
	)))
	s.StartAts(1)
	tick(s, clock, 10)

	s.JumpAts(80)
	assert.Equal(t, seqtab.StatusSkipped, s.ats[0].CmdStatus[1])
	assert.Equal(t, uint32(100), s.nextCmdTime[procATP])
	assert.True(t, rec.has(EIDJumpAts))

	tick(s, clock, 100)
	require.Len(t, bus.sent, 1)
	assert.Equal(t, seqtab.StatusExecuted, s.ats[0].CmdStatus[0])
	// the skipped command's history is preserved
	assert.Equal(t, seqtab.StatusSkipped, s.ats[0].CmdStatus[1])
}

func TestJumpAtsPreservesHistory(t *testing.T) {
	s, bus, clock, _ := newTestSeq(t)
	require.NoError(t, s.LoadAts(1, atsBuf(
		atsEntry(1, 10),
		atsEntry(2, 20),
		atsEntry(3, 30),
	)))
	s.StartAts(1)
	tick(s, clock, 10)
	require.Len(t, bus.sent, 1)

	s.JumpAts(30)
	// cmd 1 stays EXECUTED, only the LOADED cmd 2 becomes SKIPPED
	assert.Equal(t, seqtab.StatusExecuted, s.ats[0].CmdStatus[0])
	assert.Equal(t, seqtab.StatusSkipped, s.ats[0].CmdStatus[1])
	assert.Equal(t, uint32(30), s.nextCmdTime[procATP])
}

func TestJumpAtsConsumesSequence(t *testing.T) {
	s, _, _, rec := newTestSeq(t)
	require.NoError(t, s.LoadAts(1, atsBuf(atsEntry(1, 10))))
	s.StartAts(1)

	s.JumpAts(5000)
	assert.Equal(t, seqtab.StatusIdle, s.atp.State)
	assert.True(t, rec.has(EIDJumpAtsStopped))
}

func TestJumpAtsNoActiveAts(t *testing.T) {
	s, _, _, rec := newTestSeq(t)
	s.JumpAts(100)
	assert.True(t, rec.has(EIDJumpAtsNoAts))
	assert.Equal(t, uint8(1), s.cmdErrCtr)
}

func TestSwitchAtsDeferred(t *testing.T) {
	s, bus, clock, rec := newTestSeq(t)
	require.NoError(t, s.LoadAts(1, atsBuf(
		atsEntry(1, 60),
		atsEntry(2, 70),
	)))
	require.NoError(t, s.LoadAts(2, atsBuf(
		atsEntry(1, 55),
		atsEntry(2, 65),
	)))
	s.StartAts(1)
	tick(s, clock, 50)

	s.SwitchAts()
	assert.True(t, s.atp.SwitchPend)
	assert.True(t, rec.has(EIDSwitchAtsPending))

	// a command is still due at t=60, the switch holds
	tick(s, clock, 60)
	require.Len(t, bus.sent, 1)
	assert.True(t, s.atp.SwitchPend)
	assert.Equal(t, uint16(1), s.atp.AtsNum)

	// quiet tick: ATS A dies, ATS B begins one second ahead
	tick(s, clock, 61)
	assert.False(t, s.atp.SwitchPend)
	assert.Equal(t, uint16(2), s.atp.AtsNum)
	assert.Equal(t, seqtab.StatusExecuting, s.atp.State)
	assert.True(t, rec.has(EIDSwitchAtsServiced))
	assert.Equal(t, 1, s.ats[0].Info.UseCtr)

	// B's command before the switch horizon was skipped
	assert.Equal(t, seqtab.StatusSkipped, s.ats[1].CmdStatus[0])
	assert.Equal(t, uint32(65), s.nextCmdTime[procATP])

	tick(s, clock, 65)
	require.Len(t, bus.sent, 2)
	assert.Equal(t, seqtab.StatusExecuted, s.ats[1].CmdStatus[1])
}

func TestSwitchAtsRejections(t *testing.T) {
	s, _, _, rec := newTestSeq(t)

	s.SwitchAts()
	assert.True(t, rec.has(EIDSwitchAtsIdle))

	require.NoError(t, s.LoadAts(1, atsBuf(atsEntry(1, 10))))
	s.StartAts(1)
	s.SwitchAts()
	assert.True(t, rec.has(EIDSwitchAtsNotLoaded))
	assert.False(t, s.atp.SwitchPend)
}

func TestSwitchAtsInline(t *testing.T) {
	s, bus, clock, rec := newTestSeq(t)

	switchPkt := &cpkt.Packet{StreamID: cpkt.CmdMID, FuncCode: CCSwitchAts}
	switchPkt.Encode()
	require.NoError(t, s.LoadAts(1, atsBuf(
		&seqtab.AtsEntry{CmdNum: 1, TimeTag: 10, Pkt: switchPkt},
	)))
	require.NoError(t, s.LoadAts(2, atsBuf(atsEntry(1, 12))))

	s.StartAts(1)
	tick(s, clock, 10)

	// the switch request itself never reaches the bus
	assert.Empty(t, bus.sent)
	assert.Equal(t, seqtab.StatusExecuted, s.ats[0].CmdStatus[0])
	assert.Equal(t, seqtab.StatusStarting, s.atp.State)
	assert.Equal(t, uint16(2), s.atp.AtsNum)
	assert.True(t, rec.has(EIDSwitchAtsInline))

	// next tick latches STARTING into EXECUTING
	tick(s, clock, 11)
	assert.Equal(t, seqtab.StatusExecuting, s.atp.State)
	assert.Empty(t, bus.sent)

	tick(s, clock, 12)
	require.Len(t, bus.sent, 1)
}

func TestAtsChecksumFailureStops(t *testing.T) {
	s, bus, clock, rec := newTestSeq(t)
	s.continueAtsOnFailure = false
	require.NoError(t, s.LoadAts(1, atsBuf(
		atsEntry(1, 10),
		atsEntry(2, 20),
	)))
	// corrupt the first command's packet in the live buffer
	s.ats[0].Buf[int(s.ats[0].CmdIndex[0])*seqtab.BytesPerWord+seqtab.AtsHeaderBytes] ^= 0xFF

	s.StartAts(1)
	tick(s, clock, 10)

	assert.Empty(t, bus.sent)
	assert.Equal(t, seqtab.StatusFailedChecksum, s.ats[0].CmdStatus[0])
	assert.Equal(t, seqtab.StatusIdle, s.atp.State)
	assert.True(t, rec.has(EIDAtsChecksumFailed))
	assert.True(t, rec.has(EIDAtsAborted))
	assert.Equal(t, uint16(1), s.atsCmdErrCtr)
	assert.Equal(t, uint16(1), s.lastAtsErrSeq)
	assert.Equal(t, uint16(1), s.lastAtsErrCmd)
}

func TestAtsChecksumFailureContinues(t *testing.T) {
	s, bus, clock, _ := newTestSeq(t)
	s.continueAtsOnFailure = true
	require.NoError(t, s.LoadAts(1, atsBuf(
		atsEntry(1, 10),
		atsEntry(2, 20),
	)))
	s.ats[0].Buf[int(s.ats[0].CmdIndex[0])*seqtab.BytesPerWord+seqtab.AtsHeaderBytes] ^= 0xFF

	s.StartAts(1)
	tick(s, clock, 10)
	assert.Equal(t, seqtab.StatusFailedChecksum, s.ats[0].CmdStatus[0])
	assert.Equal(t, seqtab.StatusExecuting, s.atp.State)

	tick(s, clock, 20)
	require.Len(t, bus.sent, 1)
	assert.Equal(t, seqtab.StatusExecuted, s.ats[0].CmdStatus[1])
}

func TestAtsDistribFailureContinues(t *testing.T) {
	s, bus, clock, rec := newTestSeq(t)
	require.NoError(t, s.LoadAts(1, atsBuf(
		atsEntry(1, 10),
		atsEntry(2, 20),
	)))
	s.StartAts(1)

	bus.fail = true
	tick(s, clock, 10)
	assert.Equal(t, seqtab.StatusFailedDistrib, s.ats[0].CmdStatus[0])
	assert.Equal(t, seqtab.StatusExecuting, s.atp.State)
	assert.True(t, rec.has(EIDAtsDistribFailed))

	bus.fail = false
	tick(s, clock, 20)
	require.Len(t, bus.sent, 1)
	assert.Equal(t, seqtab.StatusExecuted, s.ats[0].CmdStatus[1])
}

func TestAppendAtsCommand(t *testing.T) {
	s, _, _, rec := newTestSeq(t)
	require.NoError(t, s.LoadAts(1, atsBuf(
		atsEntry(1, 100),
		atsEntry(2, 50),
	)))
	require.NoError(t, s.LoadAppend(atsBuf(atsEntry(3, 75))))

	s.AppendAts(1)
	assert.True(t, rec.has(EIDAppendAts))
	assert.Equal(t, 3, s.ats[0].Info.EntryCount)
	assert.Equal(t, uint16(1), s.appendCmdArg)
	assert.Equal(t, []uint16{2, 3, 1}, s.ats[0].TimeIndex[:3])
}

func TestAppendAtsRejections(t *testing.T) {
	s, _, _, rec := newTestSeq(t)

	s.AppendAts(7)
	assert.True(t, rec.has(EIDAppendAtsInvalidID))

	s.AppendAts(1)
	assert.True(t, rec.has(EIDAppendAtsTargetEmpty))

	require.NoError(t, s.LoadAts(1, atsBuf(atsEntry(1, 10))))
	s.AppendAts(1)
	assert.True(t, rec.has(EIDAppendAtsSourceEmpty))
	assert.Equal(t, uint8(3), s.cmdErrCtr)
}

func TestAppendToRunningAtsKeepsRank(t *testing.T) {
	s, bus, clock, rec := newTestSeq(t)
	require.NoError(t, s.LoadAts(1, atsBuf(
		atsEntry(1, 10),
		atsEntry(2, 20),
		atsEntry(3, 30),
	)))
	s.StartAts(1)
	tick(s, clock, 10)
	require.Equal(t, 1, s.atp.TimeRank)

	// graft a command earlier than current time: the numeric rank
	// pointer is preserved, so the new command is effectively skipped
	require.NoError(t, s.LoadAppend(atsBuf(atsEntry(4, 5))))
	s.AppendAts(1)
	assert.Equal(t, 1, s.atp.TimeRank)
	assert.Equal(t, []uint16{4, 1, 2, 3}, s.ats[0].TimeIndex[:4])

	// cmd 2 goes out, then the rebuilt ranks walk the ATP back over
	// the already executed command which is reported and passed over
	tick(s, clock, 20)
	assert.True(t, rec.has(EIDAtsCmdBadStatus))
	assert.Equal(t, uint16(1), s.atsCmdErrCtr)

	tick(s, clock, 30)
	require.Len(t, bus.sent, 3)
	assert.Equal(t, seqtab.StatusLoaded, s.ats[0].CmdStatus[3])
	assert.Equal(t, seqtab.StatusIdle, s.atp.State)
}
