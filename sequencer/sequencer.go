// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package sequencer drives autonomous issue of pre-loaded command
// packets onto a host bus. One absolute-time processor executes a
// single ATS at a time; a relative-time processor runs many RTS
// concurrently. A single owner goroutine feeds the sequencer wakeup
// ticks and ground commands; no internal locking.
package sequencer

import (
	"errors"

	"github.com/rob-gra/go-storedcmd/clog"
	"github.com/rob-gra/go-storedcmd/seqtab"
)

// MaxTime acts as the infinite future for next-command comparisons.
const MaxTime uint32 = 0xFFFFFFFF

// processor selector for the dispatch loop
type proc uint8

const (
	procATP proc = iota
	procRTP
	procNone
)

// constructor errors
var (
	ErrNilBus        = errors.New("sequencer: nil bus")
	ErrNilTimeSource = errors.New("sequencer: nil time source")
)

// atpControl is the absolute-time processor control block.
type atpControl struct {
	State      seqtab.Status // Idle, Executing or Starting
	AtsNum     uint16        // current ATS number, 0 none
	CmdNum     uint16        // current command number
	TimeRank   int           // rank of the current command in the time index
	SwitchPend bool          // a ground switch waits for the next quiet tick
}

// rtsInfo is the per-RTS execution record.
type rtsInfo struct {
	Status      seqtab.Status // Empty, Loaded or Executing
	Disabled    bool
	CmdCtr      uint8
	CmdErrCtr   uint8
	NextCmdTime uint32
	NextCmdOff  int // word offset of the next entry
	UseCtr      uint16
}

// Sequencer owns all command-table and processor state. Construct with
// New, then feed it messages from a single goroutine via
// ProcessMessage or Run.
type Sequencer struct {
	cfg    Config
	bus    Bus
	time   TimeSource
	events EventSender
	tables TableService
	log    clog.Clog

	ats       []*seqtab.AtsTable
	appendTbl *seqtab.AppendTable
	rts       []*seqtab.RtsTable
	rtsInfo   []rtsInfo

	atp          atpControl
	numRtsActive uint16
	nextRtsNum   uint16 // next RTS to fire, 0 none

	currentTime  uint32
	nextCmdTime  [2]uint32 // indexed by procATP / procRTP
	nextProc     proc
	cmdsThisTick int

	continueAtsOnFailure bool

	cmdCtr          uint8
	cmdErrCtr       uint8
	rtsActiveCtr    uint16
	rtsActiveErrCtr uint16
	atsCmdCtr       uint16
	atsCmdErrCtr    uint16
	rtsCmdCtr       uint16
	rtsCmdErrCtr    uint16
	lastAtsErrSeq   uint16
	lastAtsErrCmd   uint16
	lastRtsErrSeq   uint16
	lastRtsErrCmd   uint16
	appendCmdArg    uint16
}

// New creates a sequencer from the config, host bus and time source.
// The config is validated with defaults applied.
func New(cfg Config, bus Bus, ts TimeSource) (*Sequencer, error) {
	if err := cfg.Valid(); err != nil {
		return nil, err
	}
	if bus == nil {
		return nil, ErrNilBus
	}
	if ts == nil {
		return nil, ErrNilTimeSource
	}

	sf := &Sequencer{
		cfg:                  cfg,
		bus:                  bus,
		time:                 ts,
		log:                  clog.NewLogger("sequencer => "),
		ats:                  make([]*seqtab.AtsTable, cfg.NumAts),
		appendTbl:            seqtab.NewAppendTable(cfg.AppendBufWords, cfg.MaxAtsCmds),
		rts:                  make([]*seqtab.RtsTable, cfg.NumRts),
		rtsInfo:              make([]rtsInfo, cfg.NumRts),
		continueAtsOnFailure: cfg.ContinueAtsOnFailure,
	}
	for i := range sf.ats {
		sf.ats[i] = seqtab.NewAtsTable(cfg.AtsBufWords, cfg.MaxAtsCmds)
	}
	for i := range sf.rts {
		sf.rts[i] = seqtab.NewRtsTable(cfg.RtsBufWords)
	}

	sf.atp.State = seqtab.StatusIdle
	sf.nextCmdTime[procATP] = MaxTime
	sf.nextCmdTime[procRTP] = MaxTime
	sf.nextProc = procNone
	for i := range sf.rtsInfo {
		sf.rtsInfo[i].NextCmdTime = MaxTime
	}
	return sf, nil
}

// SetEventSender sets the event sink.
func (sf *Sequencer) SetEventSender(es EventSender) {
	sf.events = es
}

// SetTableService sets the host table-management API used by the
// ManageTable command.
func (sf *Sequencer) SetTableService(ts TableService) {
	sf.tables = ts
}

// SetLogProvider set provider provider
func (sf *Sequencer) SetLogProvider(p clog.LogProvider) {
	sf.log.SetLogProvider(p)
}

// LogMode set enable or disable log output when you has set provider
func (sf *Sequencer) LogMode(enable bool) {
	sf.log.LogMode(enable)
}

// Config returns the validated configuration.
func (sf *Sequencer) Config() Config { return sf.cfg }

// Startup applies the auto-start selector for the host-supplied reset
// type. Call once after the initial tables are loaded.
func (sf *Sequencer) Startup(reset ResetType) {
	var auto uint16
	switch reset {
	case ResetProcessor:
		auto = sf.cfg.AutoStartProcReset
	default:
		auto = sf.cfg.AutoStartPowerOn
	}
	if auto == 0 {
		return
	}
	sf.currentTime = sf.time.Now()
	if sf.startRts(auto) {
		sf.event(EIDAutoStartRts, EventInfo, "Auto-started RTS %03d", auto)
	} else {
		sf.event(EIDAutoStartRtsInvalid, EventError, "Auto-start RTS %03d failed", auto)
	}
}

// atsIndexValid bounds check used by every public ATS operation.
func (sf *Sequencer) atsIndexValid(idx int) bool {
	return idx >= 0 && idx < sf.cfg.NumAts
}

// rtsNumValid bounds check for 1 based RTS numbers.
func (sf *Sequencer) rtsNumValid(num uint16) bool {
	return num >= 1 && int(num) <= sf.cfg.NumRts
}

// otherAtsIndex is the switch destination relative to the current ATS.
func (sf *Sequencer) otherAtsIndex() int {
	idx := int(sf.atp.AtsNum) // current is AtsNum-1, toggle of a pair
	if idx >= sf.cfg.NumAts {
		idx = 0
	}
	return idx
}

// atsName prints an ATS index as the customary letter.
func atsName(idx int) byte { return byte('A' + idx) }

// LoadAts validates and commits an ATS buffer. Exposed for hosts that
// deliver table contents directly rather than through a TableService.
func (sf *Sequencer) LoadAts(num uint16, buf []byte) error {
	if num < 1 || int(num) > sf.cfg.NumAts {
		return seqtab.ErrInvalidCmdNum
	}
	if _, _, err := seqtab.VerifyAts(buf, sf.cfg.AtsBufWords, sf.cfg.MaxAtsCmds); err != nil {
		sf.event(EIDTableVerifyFailed, EventError, "ATS %c verify failed: %v", atsName(int(num-1)), err)
		return err
	}
	if err := sf.ats[num-1].Load(buf); err != nil {
		sf.event(EIDTableLoadFailed, EventError, "ATS %c load failed: %v", atsName(int(num-1)), err)
		return err
	}
	return nil
}

// LoadRts validates and commits an RTS buffer, resetting that RTS to
// the loaded state.
func (sf *Sequencer) LoadRts(num uint16, buf []byte) error {
	if !sf.rtsNumValid(num) {
		return seqtab.ErrInvalidCmdNum
	}
	if _, _, err := seqtab.VerifyRts(buf, sf.cfg.RtsBufWords); err != nil {
		sf.event(EIDTableVerifyFailed, EventError, "RTS %03d verify failed: %v", num, err)
		return err
	}
	idx := int(num - 1)
	if sf.rtsInfo[idx].Status == seqtab.StatusExecuting {
		sf.killRts(idx)
	}
	if err := sf.rts[idx].Load(buf); err != nil {
		sf.event(EIDTableLoadFailed, EventError, "RTS %03d load failed: %v", num, err)
		return err
	}
	info := &sf.rtsInfo[idx]
	info.Status = seqtab.StatusLoaded
	info.CmdCtr = 0
	info.CmdErrCtr = 0
	info.NextCmdTime = MaxTime
	info.NextCmdOff = 0
	return nil
}

// LoadAppend validates and stages an Append buffer.
func (sf *Sequencer) LoadAppend(buf []byte) error {
	if _, _, err := seqtab.VerifyAts(buf, sf.cfg.AppendBufWords, sf.cfg.MaxAtsCmds); err != nil {
		sf.event(EIDTableVerifyFailed, EventError, "Append verify failed: %v", err)
		return err
	}
	return sf.appendTbl.Update(buf)
}
