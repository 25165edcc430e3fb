// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package flow is an in-process dataflow pipeline runtime.
//
// A network is a directed acyclic graph of typed routines (producers,
// transformers, consumers, spinners) connected by bounded lock-free
// channels. Each channel is a power-of-two envelope ring coordinated by
// monotonic sequence numbers: a multi-producer sequencer claims contiguous
// slot ranges against the slowest subscriber's read cursor
// (back-pressure), and a publication cursor releases subscribers in strict
// sequence order. Spin drives every routine to completion with cooperative
// cancellation that drains cleanly.
//
// # Quick Start
//
//	net := flow.NewDefaultNetwork()
//	err := net.Push(
//		flow.MakeProducer(func() string { return "Hello World" }, "hello_world"),
//		flow.MakeConsumer(func(s string) { fmt.Println(s) }, "hello_world"),
//	)
//	if err != nil {
//		// topology error: the network is unchanged
//	}
//	net.CancelAfter(time.Millisecond)
//	err = flow.Spin(net) // nil: cancellation is not an error
//
// # Topology
//
// A network is assembled by pushing routines, in dataflow order:
//
//	empty --producer--> open --transformer*--> open --consumer--> closed
//	empty --spinner--> closed (degenerate, no channels)
//
// Channels are created lazily, keyed by (payload type, name); the empty
// name is the default channel for its payload type. Pushing a non-empty
// name with a second payload type is rejected. Fan-in: push several
// producers onto one channel before the consumer. Fan-out: push further
// consumers onto an existing channel; each receives the identical
// sequence-ordered stream. Within one channel, sequence numbers totally
// order publication and every sequence is consumed exactly once per
// subscriber; across channels there is no ordering guarantee.
//
//	net := flow.NewDefaultNetwork()
//	_ = net.Push(
//		flow.MakeProducer(next, ""),                       // int source
//		flow.MakeTransformer(func(n int) int { return 2 * n }, "", "doubled"),
//		flow.MakeConsumer(collect, "doubled"),
//	)
//
// # Cancellation and Drain
//
// Cancellation is cooperative, one-shot, and flows from the sinks back to
// the sources. Handle returns a compound handle over every routine token;
// CancelAfter arms a deadline that fires the same handle. On cancellation
// each consumer leaves its loop and drains; the last consumer off a
// channel terminates it, releasing producers suspended in claims; each
// producer then emits last-message frames so no subscriber stays parked on
// an unpublished sequence, and the closure propagates upstream. The
// runtime guarantees Spin returns in finite time after a cancellation
// request, not within a bounded time.
//
// Producer and transformer callbacks are also invoked to fill drain
// frames, after cancellation has been requested: callbacks must be safe to
// call during drain (transformers see a zero-value input). Consumers that
// need to distinguish drain frames can opt into the envelope form:
//
//	flow.MakeEnvelopeConsumer(func(env *flow.Envelope[int]) {
//		if env.LastMessage {
//			return // drain frame, payload is filler
//		}
//		use(env.Payload)
//	}, "doubled")
//
// # Errors
//
// Push reports topology errors synchronously and leaves the network in its
// prior state; NewNetwork reports configuration errors. A panic raised by
// a user callback is recovered at the routine boundary, logged at error
// severity, and converted into a cancellation so in-flight messages drain;
// Spin returns the first such *CallbackError after the drain. Cancellation
// itself returns nil.
//
// # Race Detection
//
// Ring slot payloads are plain fields protected by acquire-release
// ordering on separate atomic cursors, a discipline the race detector does
// not track; concurrent pipeline tests are skipped under -race via the
// RaceEnabled constant.
//
// # Dependencies
//
// This package uses [code.hybscloud.com/atomix] for atomic primitives with
// explicit memory ordering, [code.hybscloud.com/spin] for CPU pause
// instructions in CAS loops, [code.hybscloud.com/iox] for semantic errors
// and adaptive backoff at the suspension points, and
// [github.com/joeycumines/logiface] as the logging facade (nil logger
// disables logging).
package flow
