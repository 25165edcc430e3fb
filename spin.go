// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flow

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Spin drives the network to completion: it opens communications on every
// channel (one coroutine per registered producer and subscriber), runs
// every spinner body and timeout routine, and returns once all of them
// have terminated.
//
// Cancellation is not an error: a network stopped via its handle or a
// CancelAfter deadline drains and Spin returns nil. A panic recovered from
// a user callback is logged at error severity and converted into a
// cancellation of the network; Spin surfaces the first such failure after
// every routine has completed its drain; it never short-circuits.
//
// The configured thread pool size is applied to the runtime for the
// duration of the spin and restored afterwards. A network can be spun
// once.
func Spin(n *Network) error {
	if n.spun {
		return topologyf("network has already been spun")
	}
	n.spun = true

	prev := runtime.GOMAXPROCS(n.opts.poolSize)
	defer runtime.GOMAXPROCS(prev)

	n.log.Debug().
		Int("channels", len(n.order)).
		Int("spinners", len(n.spinners)).
		Int("timeouts", len(n.timeouts)).
		Log("spinning network")

	// Timers run on their own group: they must be live while the pipeline
	// runs, but must not delay the join once every other routine is done.
	var timers errgroup.Group
	for _, t := range n.timeouts {
		timers.Go(func() error {
			return runTimeout(t.after, t.tok, &n.handle, n.log)
		})
	}

	// Counts first, coroutines second: a coroutine racing ahead of another
	// channel's prepare would misread its loop conditions.
	for _, c := range n.order {
		c.prepare()
	}
	var g errgroup.Group
	for _, c := range n.order {
		c.open(&g)
	}
	for _, s := range n.spinners {
		g.Go(func() error { return runSpinner(s, n) })
	}

	err := g.Wait()
	// Release any timer still waiting on its deadline, then join it.
	n.handle.RequestCancellation()
	_ = timers.Wait()

	n.log.Debug().Err(err).Log("network stopped")
	return err
}

// runSpinner invokes the spinner callback repeatedly until cancellation. A
// recovered panic cancels the network and is surfaced from Spin like any
// other callback failure.
func runSpinner(s spinnerEntry, n *Network) error {
	n.log.Trace().Str("id", s.id).Log("spinner spinning")
	var cbErr *CallbackError
	for !s.tok.Cancelled() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					if cbErr == nil {
						cbErr = &CallbackError{Routine: "spinner", Value: r}
					}
					n.log.Err().Str("id", s.id).Any("panic", r).Log("callback panic, cancelling network")
					n.handle.RequestCancellation()
				}
			}()
			s.fn()
		}()
	}
	n.log.Trace().Str("id", s.id).Log("spinner done")
	if cbErr != nil {
		return cbErr
	}
	return nil
}
