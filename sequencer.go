// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flow

import (
	"math"
	"math/bits"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/spin"
)

// seqRange is a producer's exclusive write window: a contiguous, inclusive
// range of claimed sequences.
type seqRange struct {
	lo, hi uint64
}

func (r seqRange) count() uint64 {
	return r.hi - r.lo + 1
}

// sequencer coordinates multiple concurrent producers over one ring.
//
// Producers claim contiguous sequence ranges with a CAS on the claim
// cursor, gated against the slowest active read cursor so that no claim can
// overwrite a slot whose previous occupant is still unread (bounded
// occupancy). Publication uses a per-slot availability mark stamped with
// the sequence's round (sequence / capacity), so the publication cursor
// only ever advances to the highest sequence for which every preceding
// claim has been published, regardless of the order concurrent producers
// finish in.
//
// Sequences start at 1; cursor value 0 means nothing claimed/published.
type sequencer struct {
	_       pad
	claimed atomix.Uint64
	_       pad
	published sequenceBarrier

	// avail holds, per slot, the round of the last published sequence.
	// Initialized to -1: round 0 sequences must not read as available
	// before their first publication.
	avail []atomix.Int64

	cursors  []*readCursor
	capacity uint64
	mask     uint64
	shift    uint

	// fatal reports an internal invariant violation. Continuing would
	// corrupt the ring, so implementations log at critical severity and
	// abort.
	fatal func(format string, args ...any)
}

func newSequencer(capacity uint64, fatal func(string, ...any)) *sequencer {
	s := &sequencer{
		avail:    make([]atomix.Int64, capacity),
		capacity: capacity,
		mask:     capacity - 1,
		shift:    uint(bits.TrailingZeros64(capacity)),
		fatal:    fatal,
	}
	for i := range s.avail {
		s.avail[i].StoreRelaxed(-1)
	}
	return s
}

// addCursor registers a subscriber's read cursor. Assembly time only.
func (s *sequencer) addCursor(c *readCursor) {
	s.cursors = append(s.cursors, c)
}

// consumed returns the gating sequence: the minimum of all active read
// cursors. With no active cursor left there is nothing to protect and the
// gate opens to the publication cursor, which is what releases producers
// suspended in claims after the last subscriber leaves.
func (s *sequencer) consumed() uint64 {
	min, active := uint64(math.MaxUint64), false
	for _, c := range s.cursors {
		if c.released.LoadAcquire() {
			continue
		}
		active = true
		if last := c.barrier.lastPublished(); last < min {
			min = last
		}
	}
	if !active {
		return s.published.lastPublished()
	}
	return min
}

// claimUpTo reserves a contiguous range of at most max sequences beyond the
// claim cursor, suspending while the ring is full. The wait is released by
// consumption progress, by tok firing (ErrCanceled), or by channel
// termination (ErrTerminated).
func (s *sequencer) claimUpTo(max uint64, tok *Token, terminated func() bool) (seqRange, error) {
	backoff := iox.Backoff{}
	sw := spin.Wait{}
	for {
		claimed := s.claimed.LoadAcquire()
		consumed := s.consumed()
		occupancy := int64(claimed - consumed)
		if occupancy > int64(s.capacity) {
			s.fatal("claim cursor %d ran %d slots ahead of consumption %d (capacity %d)",
				claimed, occupancy, consumed, s.capacity)
		}
		free := int64(s.capacity) - occupancy
		if free <= 0 {
			if tok.Cancelled() {
				return seqRange{}, ErrCanceled
			}
			if terminated != nil && terminated() {
				return seqRange{}, ErrTerminated
			}
			backoff.Wait()
			continue
		}
		n := max
		if uint64(free) < n {
			n = uint64(free)
		}
		if s.claimed.CompareAndSwapAcqRel(claimed, claimed+n) {
			return seqRange{lo: claimed + 1, hi: claimed + n}, nil
		}
		sw.Once()
	}
}

// publish declares r ready for consumers and advances the publication
// cursor over every contiguously completed claim.
func (s *sequencer) publish(r seqRange) {
	for seq := r.lo; seq <= r.hi; seq++ {
		s.avail[seq&s.mask].StoreRelease(int64(seq >> s.shift))
	}
	s.advance()
}

func (s *sequencer) isAvailable(seq uint64) bool {
	return s.avail[seq&s.mask].LoadAcquire() == int64(seq>>s.shift)
}

// advance moves the publication cursor to the highest sequence whose
// predecessors have all been published. Loops until no further progress is
// observable, so concurrent publishers cannot strand a completed range.
func (s *sequencer) advance() {
	for {
		p := s.published.lastPublished()
		next := p + 1
		for s.isAvailable(next) {
			next++
		}
		if next-1 == p {
			return
		}
		if claimed := s.claimed.LoadAcquire(); next-1 > claimed {
			s.fatal("publication cursor %d would pass claim cursor %d", next-1, claimed)
		}
		s.published.publish(next - 1)
	}
}

// lastPublished returns the publication cursor: the highest sequence safe
// for consumers to read.
func (s *sequencer) lastPublished() uint64 {
	return s.published.lastPublished()
}

// waitUntilPublished suspends until the publication cursor reaches target.
func (s *sequencer) waitUntilPublished(target uint64, tok *Token) (uint64, error) {
	return s.published.waitUntilPublished(target, tok)
}
