// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !race

package flow_test

import (
	"fmt"
	"time"

	"code.hybscloud.com/flow"
)

// A producer, a doubling transformer, and a consumer that stops the
// network once it has enough.
func ExampleSpin() {
	net := flow.NewDefaultNetwork()

	next := 0
	var doubled []int
	err := net.Push(
		flow.MakeProducer(func() int { n := next; next++; return n }, "ints"),
		flow.MakeTransformer(func(n int) int { return 2 * n }, "ints", "doubled"),
		flow.MakeEnvelopeConsumer(func(env *flow.Envelope[int]) {
			if env.LastMessage {
				return
			}
			doubled = append(doubled, env.Payload)
			if len(doubled) >= 5 {
				net.Handle().RequestCancellation()
			}
		}, "doubled"),
	)
	if err != nil {
		fmt.Println(err)
		return
	}
	net.CancelAfter(5 * time.Second)

	if err := flow.Spin(net); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(doubled[:5])
	// Output: [0 2 4 6 8]
}

// Topology errors are synchronous: the push is rejected and the network
// stays usable in its prior state.
func ExampleNetwork_Push() {
	net := flow.NewDefaultNetwork()

	// A consumer cannot cap a network that has no source yet.
	err := net.Push(flow.MakeConsumer(func(string) {}, "words"))
	fmt.Println(err)

	// Producer first, then the consumer: legal.
	err = net.Push(
		flow.MakeProducer(func() string { return "hi" }, "words"),
		flow.MakeConsumer(func(string) {}, "words"),
	)
	fmt.Println(err)
	// Output:
	// flow: topology error: consumer is legal only on an open network (state empty)
	// <nil>
}
