// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package sequencer

import (
	"fmt"

	"github.com/rs/xid"
)

// EventType is the severity of an event report.
type EventType uint8

// event severities
const (
	EventDebug EventType = iota
	EventInfo
	EventError
	EventCritical
)

func (sf EventType) String() string {
	switch sf {
	case EventDebug:
		return "DEBUG"
	case EventInfo:
		return "INFO"
	case EventError:
		return "ERROR"
	case EventCritical:
		return "CRITICAL"
	}
	return "EVENT?"
}

// EventID identifies one event report point.
type EventID uint16

// event identifiers
const (
	_ EventID = iota
	EIDStartAts
	EIDStartAtsNotLoaded
	EIDStartAtsNotIdle
	EIDStartAtsInvalidID
	EIDStopAts
	EIDStopAtsNoAts
	EIDBeginAtsInvalidIndex
	EIDAtsAllSkipped
	EIDAtsSkipped
	EIDSwitchAtsPending
	EIDSwitchAtsNotLoaded
	EIDSwitchAtsIdle
	EIDSwitchAtsServiced
	EIDSwitchAtsServiceNotLoaded
	EIDSwitchAtsServiceIdle
	EIDSwitchAtsInline
	EIDSwitchAtsInlineNotLoaded
	EIDJumpAts
	EIDJumpAtsSkipped
	EIDJumpAtsStopped
	EIDJumpAtsNoAts
	EIDAtsComplete
	EIDAtsChecksumFailed
	EIDAtsAborted
	EIDAtsDistribFailed
	EIDAtsCmdMismatch
	EIDAtsCmdBadStatus
	EIDContinueAts
	EIDContinueAtsInvalid
	EIDAppendAts
	EIDAppendAtsInvalidID
	EIDAppendAtsTargetEmpty
	EIDAppendAtsSourceEmpty
	EIDAppendAtsNoFit
	EIDStartRts
	EIDStartRtsRejected
	EIDStartRtsInvalidLength
	EIDStartRtsInvalidID
	EIDStopRts
	EIDStopRtsInvalidID
	EIDDisableRts
	EIDDisableRtsInvalidID
	EIDEnableRts
	EIDEnableRtsInvalidID
	EIDRtsComplete
	EIDRtsAborted
	EIDRtsLengthError
	EIDRtsChecksumFailed
	EIDRtsDistribFailed
	EIDRtsGroupStart
	EIDRtsGroupStop
	EIDRtsGroupDisable
	EIDRtsGroupEnable
	EIDRtsGroupInvalidRange
	EIDNoop
	EIDResetCounters
	EIDInvalidCmdCode
	EIDInvalidMsgID
	EIDInvalidCmdLength
	EIDTableManage
	EIDTableManageInvalidID
	EIDTableVerifyFailed
	EIDTableLoadFailed
	EIDAutoStartRts
	EIDAutoStartRtsInvalid
)

// Event is one user-visible report. ID is a unique per-occurrence
// identifier, EID names the report point.
type Event struct {
	ID   string
	EID  EventID
	Type EventType
	Text string
}

func (sf Event) String() string {
	return fmt.Sprintf("EVT<%d,%s> %s", sf.EID, sf.Type, sf.Text)
}

// event formats and delivers one report to the event sink and the log.
func (sf *Sequencer) event(eid EventID, et EventType, format string, v ...interface{}) {
	e := Event{
		ID:   xid.New().String(),
		EID:  eid,
		Type: et,
		Text: fmt.Sprintf(format, v...),
	}
	if sf.events != nil {
		sf.events.Notify(e)
	}
	switch et {
	case EventCritical:
		sf.log.Critical("%s", e)
	case EventError:
		sf.log.Error("%s", e)
	case EventInfo:
		sf.log.Warn("%s", e)
	default:
		sf.log.Debug("%s", e)
	}
}
