// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package sequencer

import (
	"context"
	"time"

	"github.com/rob-gra/go-storedcmd/cpkt"
)

// Run drives the sequencer from the input pipe until the context is
// canceled or the pipe closes. This is the only suspension point: a
// blocking receive bounded by the configured timeout. Every message is
// handled to completion before the next receive, so all sequencer
// state stays confined to this goroutine.
func (sf *Sequencer) Run(ctx context.Context, pipe <-chan *cpkt.Packet) error {
	timer := time.NewTimer(sf.cfg.SbTimeout)
	defer timer.Stop()

	for {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(sf.cfg.SbTimeout)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-pipe:
			if !ok {
				return nil
			}
			sf.ProcessMessage(p)
		case <-timer.C:
			sf.log.Debug("input pipe idle for %s", sf.cfg.SbTimeout)
		}
	}
}
