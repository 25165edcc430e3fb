// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flow

import "code.hybscloud.com/atomix"

// Token observes a one-shot cancellation request.
//
// A token is a latching flag with the single transition false -> true;
// there is no un-cancel. Tokens are shared by reference between the routine
// coroutine that polls them and the [Handle] that fires them, and are safe
// for concurrent use.
type Token struct {
	cancelled atomix.Bool
}

func newToken() *Token {
	return &Token{}
}

// Cancelled reports whether cancellation has been requested.
func (t *Token) Cancelled() bool {
	if t == nil {
		return false
	}
	return t.cancelled.LoadAcquire()
}

func (t *Token) cancel() {
	t.cancelled.StoreRelease(true)
}

// Handle requests cancellation of every token it aggregates.
//
// A network's handle contains the token of every routine pushed into it
// plus any timeout tokens. RequestCancellation is idempotent and safe for
// concurrent use; mutation (adding tokens) is confined to network assembly.
type Handle struct {
	tokens []*Token
}

func (h *Handle) add(tokens ...*Token) {
	h.tokens = append(h.tokens, tokens...)
}

// RequestCancellation fires every aggregated token. Routines observe the
// flag between rounds and run the drain protocol; the request returns
// immediately, well before the network has fully stopped.
func (h *Handle) RequestCancellation() {
	for _, t := range h.tokens {
		t.cancel()
	}
}
