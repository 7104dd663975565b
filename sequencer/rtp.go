// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package sequencer

import (
	"errors"

	"github.com/rob-gra/go-storedcmd/cpkt"
	"github.com/rob-gra/go-storedcmd/seqtab"
)

// beginRts reject reasons
var (
	errRtsNotReady = errors.New("rts not loaded or in use")
	errRtsLength   = errors.New("rts first command length invalid")
)

// beginRts commits an RTS to the executing state. The first entry is
// read up front; its wakeup delta schedules the first dispatch.
func (sf *Sequencer) beginRts(idx int) error {
	info := &sf.rtsInfo[idx]
	if info.Status != seqtab.StatusLoaded || info.Disabled {
		return errRtsNotReady
	}

	entry, err := seqtab.DecodeRtsEntry(sf.rts[idx].Buf, 0)
	if err != nil {
		return errRtsLength
	}

	info.CmdCtr = 0
	info.CmdErrCtr = 0
	info.NextCmdOff = 0
	info.NextCmdTime = sf.currentTime + entry.WakeupCount
	info.Status = seqtab.StatusExecuting
	info.UseCtr++
	sf.numRtsActive++

	if idx+1 <= sf.cfg.LastRtsWithEvents {
		sf.event(EIDStartRts, EventInfo, "RTS %03d Execution Started", idx+1)
	}
	return nil
}

// StartRts begins execution of the numbered RTS.
func (sf *Sequencer) StartRts(num uint16) {
	if !sf.rtsNumValid(num) {
		sf.event(EIDStartRtsInvalidID, EventError, "Start RTS %03d Rejected: Invalid RTS ID", num)
		sf.cmdErrCtr++
		sf.rtsActiveErrCtr++
		return
	}

	switch err := sf.beginRts(int(num - 1)); err {
	case nil:
		sf.cmdCtr++
		sf.rtsActiveCtr++
	case errRtsLength:
		sf.event(EIDStartRtsInvalidLength, EventError,
			"Start RTS %03d Rejected: invalid first command length", num)
		sf.cmdErrCtr++
		sf.rtsActiveErrCtr++
	default:
		sf.event(EIDStartRtsRejected, EventError, "Start RTS %03d Rejected: RTS Not Loaded or In Use", num)
		sf.cmdErrCtr++
		sf.rtsActiveErrCtr++
	}
}

// killRts idles an executing RTS. Idempotent.
func (sf *Sequencer) killRts(idx int) {
	info := &sf.rtsInfo[idx]
	if info.Status == seqtab.StatusExecuting {
		info.Status = seqtab.StatusLoaded
		info.NextCmdTime = MaxTime
		sf.numRtsActive--
	}
}

// StopRts stops the numbered RTS. Stopping an RTS that is not running
// is still a successful request.
func (sf *Sequencer) StopRts(num uint16) {
	if !sf.rtsNumValid(num) {
		sf.event(EIDStopRtsInvalidID, EventError, "Stop RTS %03d rejected: Invalid RTS ID", num)
		sf.cmdErrCtr++
		return
	}
	sf.killRts(int(num - 1))
	sf.cmdCtr++
	sf.event(EIDStopRts, EventInfo, "RTS %03d Aborted", num)
}

// DisableRts blocks future starts of the numbered RTS. A running RTS is
// not interrupted.
func (sf *Sequencer) DisableRts(num uint16) {
	if !sf.rtsNumValid(num) {
		sf.event(EIDDisableRtsInvalidID, EventError, "Disable RTS %03d Rejected: Invalid RTS ID", num)
		sf.cmdErrCtr++
		return
	}
	sf.rtsInfo[num-1].Disabled = true
	sf.cmdCtr++
	sf.event(EIDDisableRts, EventDebug, "Disabled RTS %03d", num)
}

// EnableRts clears the disabled flag of the numbered RTS.
func (sf *Sequencer) EnableRts(num uint16) {
	if !sf.rtsNumValid(num) {
		sf.event(EIDEnableRtsInvalidID, EventError, "Enable RTS %03d Rejected: Invalid RTS ID", num)
		sf.cmdErrCtr++
		return
	}
	sf.rtsInfo[num-1].Disabled = false
	sf.cmdCtr++
	sf.event(EIDEnableRts, EventDebug, "Enabled RTS %03d", num)
}

// rtsGroupValid validates a group command range.
func (sf *Sequencer) rtsGroupValid(first, last uint16) bool {
	return first >= 1 && first <= last && int(last) <= sf.cfg.NumRts
}

// StartRtsGroup starts every startable RTS in [first, last]. RTSs that
// are already running are passed over without error; empty or disabled
// ones count as errors.
func (sf *Sequencer) StartRtsGroup(first, last uint16) {
	if !sf.rtsGroupValid(first, last) {
		sf.event(EIDRtsGroupInvalidRange, EventError,
			"Start RTS group error: invalid range, first = %d, last = %d", first, last)
		sf.cmdErrCtr++
		return
	}

	started := 0
	errs := 0
	for num := first; num <= last; num++ {
		info := &sf.rtsInfo[num-1]
		if info.Status == seqtab.StatusExecuting {
			continue
		}
		if err := sf.beginRts(int(num - 1)); err != nil {
			errs++
		} else {
			started++
		}
	}

	sf.rtsActiveCtr += uint16(started)
	sf.rtsActiveErrCtr += uint16(errs)
	if errs > 0 {
		sf.cmdErrCtr++
	} else {
		sf.cmdCtr++
	}
	sf.event(EIDRtsGroupStart, EventInfo,
		"Start RTS group: FirstID=%d, LastID=%d, Modified=%d", first, last, started)
}

// StopRtsGroup stops every RTS in [first, last].
func (sf *Sequencer) StopRtsGroup(first, last uint16) {
	if !sf.rtsGroupValid(first, last) {
		sf.event(EIDRtsGroupInvalidRange, EventError,
			"Stop RTS group error: invalid range, first = %d, last = %d", first, last)
		sf.cmdErrCtr++
		return
	}

	stopped := 0
	for num := first; num <= last; num++ {
		if sf.rtsInfo[num-1].Status == seqtab.StatusExecuting {
			stopped++
		}
		sf.killRts(int(num - 1))
	}
	sf.cmdCtr++
	sf.event(EIDRtsGroupStop, EventInfo,
		"Stop RTS group: FirstID=%d, LastID=%d, Modified=%d", first, last, stopped)
}

// DisableRtsGroup disables every RTS in [first, last].
func (sf *Sequencer) DisableRtsGroup(first, last uint16) {
	if !sf.rtsGroupValid(first, last) {
		sf.event(EIDRtsGroupInvalidRange, EventError,
			"Disable RTS group error: invalid range, first = %d, last = %d", first, last)
		sf.cmdErrCtr++
		return
	}

	modified := 0
	for num := first; num <= last; num++ {
		if !sf.rtsInfo[num-1].Disabled {
			modified++
		}
		sf.rtsInfo[num-1].Disabled = true
	}
	sf.cmdCtr++
	sf.event(EIDRtsGroupDisable, EventInfo,
		"Disable RTS group: FirstID=%d, LastID=%d, Modified=%d", first, last, modified)
}

// EnableRtsGroup enables every RTS in [first, last].
func (sf *Sequencer) EnableRtsGroup(first, last uint16) {
	if !sf.rtsGroupValid(first, last) {
		sf.event(EIDRtsGroupInvalidRange, EventError,
			"Enable RTS group error: invalid range, first = %d, last = %d", first, last)
		sf.cmdErrCtr++
		return
	}

	modified := 0
	for num := first; num <= last; num++ {
		if sf.rtsInfo[num-1].Disabled {
			modified++
		}
		sf.rtsInfo[num-1].Disabled = false
	}
	sf.cmdCtr++
	sf.event(EIDRtsGroupEnable, EventInfo,
		"Enable RTS group: FirstID=%d, LastID=%d, Modified=%d", first, last, modified)
}

// startRts is the auto-start path used at task init.
func (sf *Sequencer) startRts(num uint16) bool {
	if !sf.rtsNumValid(num) {
		return false
	}
	return sf.beginRts(int(num-1)) == nil
}

// rtsEntryAt decodes the entry at a word offset of the numbered RTS.
func (sf *Sequencer) rtsEntryAt(idx, off int) (*seqtab.RtsEntry, error) {
	if off < 0 || off+seqtab.RtsMinEntryWords > sf.rts[idx].BufWords {
		return nil, cpkt.ErrPacketShort
	}
	return seqtab.DecodeRtsEntry(sf.rts[idx].Buf, off)
}
