// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package sequencer

import (
	"errors"
	"time"
)

// configuration bounds
const (
	NumAtsMin = 1
	NumAtsMax = 2

	NumRtsMin = 1
	NumRtsMax = 256

	MaxAtsCmdsMin = 1
	MaxAtsCmdsMax = 65535

	MaxCmdsPerTickMin = 1
	MaxCmdsPerTickMax = 1000

	SbTimeoutMin = 100 * time.Millisecond
	SbTimeoutMax = time.Minute
)

// Config defines a sequencer instance. The default is applied for each
// unspecified value.
type Config struct {
	// Number of ATS buffers, default 2.
	NumAts int

	// Number of RTS buffers, default 64.
	NumRts int

	// Command-number ceiling per ATS, default 1000.
	MaxAtsCmds int

	// ATS buffer capacity in 32-bit words, default 4000.
	AtsBufWords int

	// RTS buffer capacity in 32-bit words, default 75.
	RtsBufWords int

	// Append staging buffer capacity in words, default AtsBufWords/2.
	AppendBufWords int

	// Commands emitted per wakeup tick at most, default 8.
	MaxCmdsPerTick int

	// RTS numbers above this suppress start/complete events, default 20.
	LastRtsWithEvents int

	// Initial state of the continue-ATS-on-checksum-failure flag.
	ContinueAtsOnFailure bool

	// RTS number auto-started after a power-on reset, 0 for none.
	AutoStartPowerOn uint16

	// RTS number auto-started after a processor reset, 0 for none.
	AutoStartProcReset uint16

	// Bounded receive timeout of the run loop, default 1s.
	SbTimeout time.Duration
}

// Valid applies the default for each unspecified value and range
// checks the rest.
func (sf *Config) Valid() error {
	if sf == nil {
		return errors.New("invalid pointer")
	}

	if sf.NumAts == 0 {
		sf.NumAts = 2
	} else if sf.NumAts < NumAtsMin || sf.NumAts > NumAtsMax {
		return errors.New("NumAts not in [1, 2]")
	}

	if sf.NumRts == 0 {
		sf.NumRts = 64
	} else if sf.NumRts < NumRtsMin || sf.NumRts > NumRtsMax {
		return errors.New("NumRts not in [1, 256]")
	}

	if sf.MaxAtsCmds == 0 {
		sf.MaxAtsCmds = 1000
	} else if sf.MaxAtsCmds < MaxAtsCmdsMin || sf.MaxAtsCmds > MaxAtsCmdsMax {
		return errors.New("MaxAtsCmds not in [1, 65535]")
	}

	if sf.AtsBufWords == 0 {
		sf.AtsBufWords = 4000
	} else if sf.AtsBufWords < 4 {
		return errors.New("AtsBufWords too small for one entry")
	}

	if sf.RtsBufWords == 0 {
		sf.RtsBufWords = 75
	} else if sf.RtsBufWords < 3 {
		return errors.New("RtsBufWords too small for one entry")
	}

	if sf.AppendBufWords == 0 {
		sf.AppendBufWords = sf.AtsBufWords / 2
	} else if sf.AppendBufWords > sf.AtsBufWords {
		return errors.New("AppendBufWords larger than AtsBufWords")
	}

	if sf.MaxCmdsPerTick == 0 {
		sf.MaxCmdsPerTick = 8
	} else if sf.MaxCmdsPerTick < MaxCmdsPerTickMin || sf.MaxCmdsPerTick > MaxCmdsPerTickMax {
		return errors.New("MaxCmdsPerTick not in [1, 1000]")
	}

	if sf.LastRtsWithEvents == 0 {
		sf.LastRtsWithEvents = 20
	} else if sf.LastRtsWithEvents > sf.NumRts {
		return errors.New("LastRtsWithEvents larger than NumRts")
	}

	if sf.AutoStartPowerOn != 0 && int(sf.AutoStartPowerOn) > sf.NumRts {
		return errors.New("AutoStartPowerOn not a valid RTS number")
	}
	if sf.AutoStartProcReset != 0 && int(sf.AutoStartProcReset) > sf.NumRts {
		return errors.New("AutoStartProcReset not a valid RTS number")
	}

	if sf.SbTimeout == 0 {
		sf.SbTimeout = time.Second
	} else if sf.SbTimeout < SbTimeoutMin || sf.SbTimeout > SbTimeoutMax {
		return errors.New("SbTimeout not in [100ms, 1m]")
	}

	return nil
}

// DefaultConfig default config
func DefaultConfig() Config {
	return Config{
		NumAts:               2,
		NumRts:               64,
		MaxAtsCmds:           1000,
		AtsBufWords:          4000,
		RtsBufWords:          75,
		AppendBufWords:       2000,
		MaxCmdsPerTick:       8,
		LastRtsWithEvents:    20,
		ContinueAtsOnFailure: true,
		SbTimeout:            time.Second,
	}
}
