// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flow

import (
	"code.hybscloud.com/atomix"
	"github.com/google/uuid"
	"github.com/joeycumines/logiface"
	"golang.org/x/sync/errgroup"
)

// Envelope carries one value through a channel together with its transport
// metadata. Sequence is assigned by the channel at write time and is unique
// and monotonic per channel; LastMessage is set only on frames emitted
// during the producer-side drain.
//
// Plain callbacks never see the envelope; the Envelope-aware constructors
// ([MakeEnvelopeProducer], [MakeEnvelopeConsumer]) opt into it. The
// metadata fields are owned by the channel: a producer callback may read
// them but must leave them unchanged.
type Envelope[T any] struct {
	Sequence    uint64
	LastMessage bool
	Payload     T
}

// slot is one ring entry, padded out of its neighbors' cache lines.
type slot[T any] struct {
	env Envelope[T]
	_   padShort
}

type fillFunc[T any] func(*Envelope[T])

// channel binds a sequencer, the subscribers' read cursors, and an
// envelope ring. It owns the producer- and subscriber-side coroutine
// bodies, including the cancellation-and-drain protocol.
type channel[T any] struct {
	name     string
	capacity uint64
	mask     uint64
	stride   uint64

	log    *logiface.Logger[logiface.Event]
	cancel func()

	seqr *sequencer

	_   pad
	seq atomix.Uint64 // envelope sequence counter, assigned at write
	_   pad
	numPublishers atomix.Int64
	_             pad
	numSubscribers atomix.Int64
	_              pad
	publishersActive  atomix.Bool
	subscribersActive atomix.Bool
	terminated        atomix.Bool
	_                 pad

	buffer []slot[T]

	pullProducers []*publisherHandle[T]
	subscribers   []*subscriberEntry[T]

	registeredPublishers  int
	registeredSubscribers int
}

func newChannel[T any](name string, opts *Options, log *logiface.Logger[logiface.Event], cancel func()) *channel[T] {
	capacity := uint64(opts.bufferSize)
	c := &channel[T]{
		name:     name,
		capacity: capacity,
		mask:     capacity - 1,
		stride:   uint64(opts.stride),
		log:      log,
		cancel:   cancel,
		buffer:   make([]slot[T], capacity),
	}
	c.seqr = newSequencer(capacity, c.fatalf)
	return c
}

// fatalf reports an internal invariant violation: critical log, then abort.
// Continuing would corrupt the ring.
func (c *channel[T]) fatalf(format string, args ...any) {
	c.log.Crit().Str("channel", quoteName(c.name)).Logf("invariant violation: "+format, args...)
	panic("flow: invariant violation on channel " + quoteName(c.name))
}

func (c *channel[T]) isTerminated() bool {
	return c.terminated.LoadAcquire()
}

// terminate closes the channel: called exactly once, by the last subscriber
// to leave. The subscriber has already released its read cursor, which is
// the sentinel that opens the claim gate and frees any producer still
// suspended in claimUpTo.
func (c *channel[T]) terminate() {
	c.terminated.StoreRelease(true)
	c.log.Debug().Str("channel", quoteName(c.name)).Log("terminated by last subscriber")
}

// addPullProducer registers a producer callback whose coroutine drives the
// claim loop. Assembly time only.
func (c *channel[T]) addPullProducer(fill fillFunc[T], tok *Token) {
	h := c.newPublisherHandle("producer", fill, tok)
	c.pullProducers = append(c.pullProducers, h)
}

// newPublisherHandle registers a publisher slot on this channel and returns
// the handle that writes through it. Transformers publish through a handle
// driven by their input-side subscriber coroutine.
func (c *channel[T]) newPublisherHandle(kind string, fill fillFunc[T], tok *Token) *publisherHandle[T] {
	c.registeredPublishers++
	return &publisherHandle[T]{
		c:    c,
		kind: kind,
		fill: fill,
		tok:  tok,
		id:   shortID(),
	}
}

// addSubscriber registers a subscriber callback. deliver returns a semantic
// error (ErrCanceled, ErrTerminated) to stop the subscriber loop early;
// onExit, if set, runs after the subscriber side has fully drained.
func (c *channel[T]) addSubscriber(kind string, deliver func(*Envelope[T]) error, tok *Token, onExit func() error) {
	s := &subscriberEntry[T]{
		c:       c,
		kind:    kind,
		deliver: deliver,
		tok:     tok,
		onExit:  onExit,
		id:      shortID(),
	}
	c.seqr.addCursor(&s.cursor)
	c.subscribers = append(c.subscribers, s)
	c.registeredSubscribers++
}

// prepare publishes the registered side counts. Must complete on every
// channel before any coroutine starts: the counts are the loop and drain
// conditions.
func (c *channel[T]) prepare() {
	c.numPublishers.StoreRelease(int64(c.registeredPublishers))
	c.numSubscribers.StoreRelease(int64(c.registeredSubscribers))
}

// open fans out one coroutine per pull producer and one per subscriber.
// The channel is complete when every one of them has returned.
func (c *channel[T]) open(g *errgroup.Group) {
	for _, p := range c.pullProducers {
		g.Go(p.run)
	}
	for _, s := range c.subscribers {
		g.Go(s.run)
	}
}

func (c *channel[T]) chanName() string { return c.name }

// publisherHandle is one publisher's write path onto a channel: claim,
// fill, publish. For a pull producer the handle also owns the main loop;
// for a transformer the input-side subscriber drives emit directly and
// calls close when its side shuts down.
type publisherHandle[T any] struct {
	c    *channel[T]
	kind string
	fill fillFunc[T]
	tok  *Token
	id   string

	lastClaimed uint64
	err         *CallbackError
	poisoned    bool
}

// emit claims up to n slots, fills each, and publishes the range. A
// recovered callback panic leaves the remaining payloads zero-valued; the
// claimed range is always published so the ring stays contiguous.
func (p *publisherHandle[T]) emit(fill fillFunc[T], n uint64, last bool) error {
	c := p.c
	r, err := c.seqr.claimUpTo(n, p.tok, c.isTerminated)
	if err != nil {
		return err
	}
	p.lastClaimed = r.hi
	for seq := r.lo; seq <= r.hi; seq++ {
		s := &c.buffer[seq&c.mask]
		s.env = Envelope[T]{Sequence: c.seq.AddAcqRel(1), LastMessage: last}
		p.invoke(fill, &s.env)
	}
	c.seqr.publish(r)
	return nil
}

func (p *publisherHandle[T]) invoke(fill fillFunc[T], env *Envelope[T]) {
	if p.poisoned {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.poisoned = true
			if p.err == nil {
				p.err = &CallbackError{Routine: p.kind, Channel: p.c.name, Value: r}
			}
			p.c.log.Err().
				Str("channel", quoteName(p.c.name)).
				Str("routine", p.kind).
				Str("id", p.id).
				Any("panic", r).
				Log("callback panic, cancelling network")
			p.c.cancel()
		}
	}()
	fill(env)
}

// run is the producer-side coroutine body.
func (p *publisherHandle[T]) run() error {
	c := p.c
	c.publishersActive.StoreRelease(true)
	c.log.Trace().Str("channel", quoteName(c.name)).Str("id", p.id).Log("publisher spinning")
	for !p.tok.Cancelled() && c.numSubscribers.LoadAcquire() > 0 {
		if err := p.emit(p.fill, c.stride, false); err != nil {
			break
		}
	}
	return p.close()
}

// close retires this publisher and runs the producer-side drain: while no
// publisher remains but subscribers do, emit one LastMessage frame at a
// time, bounded by lastClaimed <= consumed + capacity. The extra frames
// release subscribers waiting on the next sequence; the flag tells them to
// stop. The fill callback is still invoked for drain frames.
func (p *publisherHandle[T]) close() error {
	c := p.c
	if c.numPublishers.AddAcqRel(-1) == 0 {
		c.publishersActive.StoreRelease(false)
	}
	for c.numPublishers.LoadAcquire() == 0 && c.numSubscribers.LoadAcquire() > 0 &&
		p.lastClaimed <= c.seqr.consumed()+c.capacity {
		if err := p.emit(p.fill, 1, true); err != nil {
			break
		}
	}
	c.log.Trace().Str("channel", quoteName(c.name)).Str("id", p.id).Log("publisher done")
	if p.err != nil {
		return p.err
	}
	return nil
}

// subscriberEntry is one subscriber's read path: wait, deliver in sequence
// order, publish consumption.
type subscriberEntry[T any] struct {
	c       *channel[T]
	kind    string
	deliver func(*Envelope[T]) error
	tok     *Token
	onExit  func() error
	id      string

	cursor   readCursor
	err      *CallbackError
	poisoned bool
}

func (s *subscriberEntry[T]) invoke(env *Envelope[T]) (err error) {
	if s.poisoned {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			s.poisoned = true
			if s.err == nil {
				s.err = &CallbackError{Routine: s.kind, Channel: s.c.name, Value: r}
			}
			s.c.log.Err().
				Str("channel", quoteName(s.c.name)).
				Str("routine", s.kind).
				Str("id", s.id).
				Any("panic", r).
				Log("callback panic, cancelling network")
			s.c.cancel()
			err = nil
		}
	}()
	return s.deliver(env)
}

// run is the subscriber-side coroutine body.
func (s *subscriberEntry[T]) run() error {
	c := s.c
	c.subscribersActive.StoreRelease(true)
	c.log.Trace().Str("channel", quoteName(c.name)).Str("id", s.id).Log("subscriber spinning")

	nextToRead := uint64(1)

	// round delivers nextToRead..available in sequence order, breaking at a
	// LastMessage frame, then publishes consumption of the whole range.
	round := func(available uint64) error {
		var derr error
		for seq := nextToRead; seq <= available; seq++ {
			env := &c.buffer[seq&c.mask].env
			if derr = s.invoke(env); derr != nil {
				break
			}
			if env.LastMessage {
				break
			}
		}
		s.cursor.barrier.publish(available)
		nextToRead = available + 1
		return derr
	}

	for !s.tok.Cancelled() && c.numPublishers.LoadAcquire() > 0 {
		available, err := c.seqr.waitUntilPublished(nextToRead, s.tok)
		if err != nil {
			break
		}
		if err := round(available); err != nil {
			break
		}
	}

	last := c.numSubscribers.AddAcqRel(-1) == 0
	if last {
		c.subscribersActive.StoreRelease(false)
	}

	// Drain: the last subscriber out keeps consuming published frames so
	// producer claims are freed and the upstream side can retire.
	for c.numPublishers.LoadAcquire() > 0 && c.numSubscribers.LoadAcquire() == 0 &&
		nextToRead <= c.seqr.lastPublished() {
		if err := round(c.seqr.lastPublished()); err != nil {
			break
		}
	}

	s.cursor.release()
	if last {
		c.terminate()
	}
	c.log.Trace().Str("channel", quoteName(c.name)).Str("id", s.id).Log("subscriber done")

	var exitErr error
	if s.onExit != nil {
		exitErr = s.onExit()
	}
	if s.err != nil {
		return s.err
	}
	return exitErr
}

// shortID returns a compact coroutine identifier for log correlation.
func shortID() string {
	return uuid.NewString()[:8]
}
