// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flow

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/spin"
)

// sequenceBarrier broadcasts the highest sequence published by one side of
// a channel to the other side.
//
// The published value never decreases: publish is a max-store, so a
// waiter may observe a value >= its target, never a lesser one. Waiting is
// the adaptive check-backoff-recheck loop used throughout this
// organization's lock-free code; multiple waiters may be released
// concurrently.
type sequenceBarrier struct {
	_    pad
	last atomix.Uint64
	_    pad
}

// publish raises the barrier to seq if it is an advance. Lower or equal
// values are ignored, which keeps the barrier monotonic under concurrent
// publication.
func (b *sequenceBarrier) publish(seq uint64) {
	sw := spin.Wait{}
	for {
		last := b.last.LoadAcquire()
		if seq <= last {
			return
		}
		if b.last.CompareAndSwapAcqRel(last, seq) {
			return
		}
		sw.Once()
	}
}

// lastPublished returns an acquire snapshot of the barrier.
func (b *sequenceBarrier) lastPublished() uint64 {
	return b.last.LoadAcquire()
}

// waitUntilPublished suspends until the barrier reaches target, returning
// the observed snapshot. The wait is released early, with ErrCanceled, when
// tok fires; the snapshot returned alongside the error is still valid.
func (b *sequenceBarrier) waitUntilPublished(target uint64, tok *Token) (uint64, error) {
	backoff := iox.Backoff{}
	for {
		if last := b.last.LoadAcquire(); last >= target {
			return last, nil
		}
		if tok.Cancelled() {
			return b.last.LoadAcquire(), ErrCanceled
		}
		backoff.Wait()
	}
}

// readCursor is one subscriber's consumption barrier. A released cursor no
// longer gates producer claims; releasing is the subscriber's half of the
// drain protocol and doubles as the termination sentinel that frees
// producers suspended in claims.
type readCursor struct {
	barrier  sequenceBarrier
	released atomix.Bool
}

func (c *readCursor) release() {
	c.released.StoreRelease(true)
}
