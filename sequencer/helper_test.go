// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package sequencer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rob-gra/go-storedcmd/cpkt"
	"github.com/rob-gra/go-storedcmd/seqtab"
)

var errBusDown = errors.New("bus down")

// fakeBus records emitted packets and can be made to fail.
type fakeBus struct {
	sent []*cpkt.Packet
	fail bool
}

func (sf *fakeBus) Send(p *cpkt.Packet) error {
	if sf.fail {
		return errBusDown
	}
	sf.sent = append(sf.sent, p)
	return nil
}

// fakeClock is a settable time source.
type fakeClock struct {
	t uint32
}

func (sf *fakeClock) Now() uint32 { return sf.t }

// eventRec records event reports.
type eventRec struct {
	events []Event
}

func (sf *eventRec) Notify(e Event) { sf.events = append(sf.events, e) }

func (sf *eventRec) has(eid EventID) bool {
	for _, e := range sf.events {
		if e.EID == eid {
			return true
		}
	}
	return false
}

func newTestSeq(t *testing.T) (*Sequencer, *fakeBus, *fakeClock, *eventRec) {
	t.Helper()
	bus := &fakeBus{}
	clock := &fakeClock{}
	rec := &eventRec{}

	s, err := New(DefaultConfig(), bus, clock)
	require.NoError(t, err)
	s.SetEventSender(rec)
	return s, bus, clock, rec
}

// tick advances the clock and runs one wakeup cycle.
func tick(s *Sequencer, clock *fakeClock, at uint32) {
	clock.t = at
	s.ProcessTick()
}

func testPkt(streamID uint16, payload int) *cpkt.Packet {
	p := &cpkt.Packet{
		StreamID: streamID,
		Sequence: 1,
		Payload:  make([]byte, payload),
	}
	p.Encode()
	return p
}

func atsBuf(entries ...*seqtab.AtsEntry) []byte {
	var b []byte
	for _, e := range entries {
		b = seqtab.EncodeAtsEntry(b, e)
	}
	return b
}

func rtsBuf(entries ...*seqtab.RtsEntry) []byte {
	var b []byte
	for _, e := range entries {
		b = seqtab.EncodeRtsEntry(b, e)
	}
	return b
}

func atsEntry(cmdNum uint16, timeTag uint32) *seqtab.AtsEntry {
	return &seqtab.AtsEntry{CmdNum: cmdNum, TimeTag: timeTag, Pkt: testPkt(0x1882, 0)}
}

func rtsEntry(wakeup uint32, streamID uint16) *seqtab.RtsEntry {
	return &seqtab.RtsEntry{WakeupCount: wakeup, Pkt: testPkt(streamID, 0)}
}

// loadSimpleRts loads one single-command RTS with the given wakeup
// delta.
func loadSimpleRts(t *testing.T, s *Sequencer, num uint16, wakeup uint32) {
	t.Helper()
	require.NoError(t, s.LoadRts(num, rtsBuf(rtsEntry(wakeup, 0x1900+num))))
}

// groundCmd builds a ground command packet with the given payload
// words.
func groundCmd(cc byte, payload []byte) *cpkt.Packet {
	p := &cpkt.Packet{
		StreamID: cpkt.CmdMID,
		FuncCode: cc,
		Payload:  payload,
	}
	p.Encode()
	return p
}

func u16(v ...uint16) []byte {
	b := make([]byte, 0, 2*len(v))
	for _, x := range v {
		b = append(b, byte(x>>8), byte(x))
	}
	return b
}

func u32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
