// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package sequencer

import (
	"github.com/rob-gra/go-storedcmd/cpkt"
)

// Bus carries sequenced command packets to downstream consumers. The
// host supplies the transport; a send error marks the command
// FAILED_DISTRIB and execution continues.
type Bus interface {
	Send(p *cpkt.Packet) error
}

// TimeSource reads the current absolute mission time in seconds since
// the mission epoch.
type TimeSource interface {
	Now() uint32
}

// EventSender receives sequencer event reports. Optional; when unset,
// events go only to the internal log.
type EventSender interface {
	Notify(e Event)
}

// TableService is the host table-management API. Manage processes a
// pending update for the identified table and returns the committed
// buffer when one was applied. The sequencer calls it only from inside
// a command handler, never mid-dispatch.
type TableService interface {
	Manage(id TableID) (buf []byte, updated bool, err error)
}

// TableID identifies one registered table on the host side.
type TableID uint16

// Table identifier layout: ATS tables first, then the Append staging
// table, then the RTS tables.
const (
	TableIDNone TableID = 0

	tableIDAtsBase    TableID = 0x1000
	tableIDAppendBase TableID = 0x2000
	tableIDRtsBase    TableID = 0x3000
)

// AtsTableID table ID of ATS number n (1 based).
func AtsTableID(n uint16) TableID { return tableIDAtsBase + TableID(n) }

// AppendTableID table ID of the Append staging table.
func AppendTableID() TableID { return tableIDAppendBase }

// RtsTableID table ID of RTS number n (1 based).
func RtsTableID(n uint16) TableID { return tableIDRtsBase + TableID(n) }

// ResetType selects which auto-start selector applies at startup.
type ResetType uint8

// host reset types
const (
	ResetPowerOn ResetType = iota
	ResetProcessor
)
