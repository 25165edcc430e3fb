// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flow

import (
	"time"

	"github.com/joeycumines/logiface"
)

// timeoutSlice bounds each sleep of the timeout routine so that a
// cancellation arriving from elsewhere (normal completion, another timer,
// a callback failure) releases the routine promptly instead of at its
// deadline.
const timeoutSlice = 5 * time.Millisecond

// runTimeout fires the network handle once d has elapsed. It is itself a
// cancellable routine: its token is part of the compound handle, so any
// cancellation, including the one Spin issues after the pipeline joins,
// retires a timer that has not fired yet.
func runTimeout(d time.Duration, tok *Token, h *Handle, log *logiface.Logger[logiface.Event]) error {
	deadline := time.Now().Add(d)
	for {
		if tok.Cancelled() {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if remaining > timeoutSlice {
			remaining = timeoutSlice
		}
		time.Sleep(remaining)
	}
	log.Debug().Dur("after", d).Log("deadline elapsed, cancelling network")
	h.RequestCancellation()
	return nil
}
