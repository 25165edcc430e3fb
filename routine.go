// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flow

// Routine is a user callback packaged with a cancellation token and the
// channel name(s) it binds to. Construct routines with [MakeProducer],
// [MakeTransformer], [MakeConsumer], [MakeSpinner] (or the Envelope-aware
// variants) and assemble them with [Network.Push].
//
// Payload types are fixed by the constructor's generic signature; a push
// that cannot match types against an existing named channel is a topology
// error.
type Routine interface {
	attach(n *Network) error
}

// Producer emits values onto one channel. The callback is invoked once per
// claimed slot, including during drain: it must be safe to call after
// cancellation has been requested (the drain frames it fills carry the
// last-message flag and unblock downstream subscribers).
type Producer[T any] struct {
	fill fillFunc[T]
	tok  *Token
	name string
}

// MakeProducer wraps fn as a producer routine publishing to the channel
// with the given name; the empty name selects the default channel for T.
func MakeProducer[T any](fn func() T, name string) Producer[T] {
	return Producer[T]{
		fill: func(env *Envelope[T]) { env.Payload = fn() },
		tok:  newToken(),
		name: name,
	}
}

// MakeEnvelopeProducer is the opt-in wrapped form of [MakeProducer]: fn
// receives the full envelope and may read the assigned sequence and
// last-message flag while filling the payload. The metadata fields are
// owned by the channel and must be left unchanged.
func MakeEnvelopeProducer[T any](fn func(*Envelope[T]), name string) Producer[T] {
	return Producer[T]{fill: fn, tok: newToken(), name: name}
}

func (p Producer[T]) attach(n *Network) error {
	if n.state != stateEmpty && n.state != stateOpen {
		return topologyf("producer is legal only on an empty or open network (state %s)", n.state)
	}
	c, err := channelFor[T](n, p.name)
	if err != nil {
		return err
	}
	c.addPullProducer(p.fill, p.tok)
	n.handle.add(p.tok)
	n.state = stateOpen
	return nil
}

// Transformer consumes values from one channel and publishes the mapped
// values onto another. During drain the callback is applied to a
// zero-value input to fill the last-message frames; like producer
// callbacks it must be safe to invoke after cancellation.
type Transformer[In, Out any] struct {
	fn      func(In) Out
	tok     *Token
	inName  string
	outName string
}

// MakeTransformer wraps fn as a transformer routine subscribed to the
// channel named inputName and publishing to outputName; empty names select
// the default channels for In and Out respectively.
func MakeTransformer[In, Out any](fn func(In) Out, inputName, outputName string) Transformer[In, Out] {
	return Transformer[In, Out]{fn: fn, tok: newToken(), inName: inputName, outName: outputName}
}

func (t Transformer[In, Out]) attach(n *Network) error {
	if n.state != stateOpen {
		return topologyf("transformer is legal only on an open network (state %s)", n.state)
	}
	in, err := channelFor[In](n, t.inName)
	if err != nil {
		return err
	}
	out, err := channelFor[Out](n, t.outName)
	if err != nil {
		return err
	}
	fn := t.fn
	h := out.newPublisherHandle("transformer", func(env *Envelope[Out]) {
		var zero In
		env.Payload = fn(zero)
	}, t.tok)
	in.addSubscriber("transformer", func(env *Envelope[In]) error {
		if env.LastMessage {
			// Upstream drain filler is not data; the transformer's own
			// close emits the downstream sentinels.
			return nil
		}
		v := env.Payload
		return h.emit(func(out *Envelope[Out]) { out.Payload = fn(v) }, 1, false)
	}, t.tok, h.close)
	n.handle.add(t.tok)
	return nil
}

// Consumer receives values from one channel, in sequence order.
type Consumer[T any] struct {
	deliver func(*Envelope[T]) error
	tok     *Token
	name    string
}

// MakeConsumer wraps fn as a consumer routine subscribed to the channel
// with the given name; the empty name selects the default channel for T.
func MakeConsumer[T any](fn func(T), name string) Consumer[T] {
	return Consumer[T]{
		deliver: func(env *Envelope[T]) error { fn(env.Payload); return nil },
		tok:     newToken(),
		name:    name,
	}
}

// MakeEnvelopeConsumer is the opt-in wrapped form of [MakeConsumer]: fn
// observes the full envelope, including the sequence number and the
// last-message flag on drain frames.
func MakeEnvelopeConsumer[T any](fn func(*Envelope[T]), name string) Consumer[T] {
	return Consumer[T]{
		deliver: func(env *Envelope[T]) error { fn(env); return nil },
		tok:     newToken(),
		name:    name,
	}
}

func (c Consumer[T]) attach(n *Network) error {
	switch n.state {
	case stateOpen:
	case stateClosed:
		// Fan-out: a further consumer on an existing channel is legal, but
		// a closed network gets no new channels.
		if !channelExists[T](n, c.name) {
			return topologyf("consumer on a closed network requires an existing channel %s", quoteName(c.name))
		}
	default:
		return topologyf("consumer is legal only on an open network (state %s)", n.state)
	}
	ch, err := channelFor[T](n, c.name)
	if err != nil {
		return err
	}
	ch.addSubscriber("consumer", c.deliver, c.tok, nil)
	n.handle.add(c.tok)
	n.state = stateClosed
	return nil
}

// Spinner is a routine with no input and no output: its callback is
// invoked repeatedly until cancellation. A spinner is the degenerate
// network: legal only as the very first push, and it closes the network
// with zero channels.
type Spinner struct {
	fn  func()
	tok *Token
}

// MakeSpinner wraps fn as a spinner routine.
func MakeSpinner(fn func()) Spinner {
	return Spinner{fn: fn, tok: newToken()}
}

func (s Spinner) attach(n *Network) error {
	if n.state != stateEmpty {
		return topologyf("spinner is legal only on an empty network (state %s)", n.state)
	}
	n.spinners = append(n.spinners, spinnerEntry{fn: s.fn, tok: s.tok, id: shortID()})
	n.handle.add(s.tok)
	n.state = stateClosed
	return nil
}
