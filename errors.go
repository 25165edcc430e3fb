// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flow

import (
	"errors"

	"code.hybscloud.com/iox"
)

// ErrWouldBlock indicates an operation cannot proceed immediately.
//
// The runtime's own suspension points (a producer claim against a full
// ring, a consumer wait for a sequence that has not yet been published)
// back off internally and do not return it. It is never surfaced by Spin.
//
// This is an alias for [iox.ErrWouldBlock] for ecosystem consistency.
var ErrWouldBlock = iox.ErrWouldBlock

// ErrCanceled indicates a suspension point was released by a cancellation
// request. It is a control flow signal, not a failure: routine coroutines
// exit their loops and run the drain protocol, and Spin reports success.
var ErrCanceled = errors.New("flow: canceled")

// ErrTerminated indicates a suspension point was released because the
// consumer side elected to close the channel. Producer coroutines treat it
// exactly like ErrCanceled: stop claiming, drain, return.
var ErrTerminated = errors.New("flow: channel terminated")

// ErrTopology is the class of assembly-time errors returned by
// [Network.Push]: a routine that violates the network state machine, or a
// name/type mismatch between connected routines. The network remains usable
// in its prior state.
var ErrTopology = errors.New("flow: topology error")

// ErrConfig is the class of configuration errors reported by [NewNetwork]:
// a non-power-of-two message buffer size, a non-positive stride, a
// zero-size thread pool.
var ErrConfig = errors.New("flow: configuration error")

// CallbackError wraps a panic recovered from a user callback at the routine
// boundary. The runtime logs it at error severity, cancels the network, and
// Spin surfaces the first one after every routine has drained.
type CallbackError struct {
	// Routine identifies the coroutine whose callback failed.
	Routine string
	// Channel is the channel the routine was bound to, if any.
	Channel string
	// Value is the recovered panic value.
	Value any
}

func (e *CallbackError) Error() string {
	if e.Channel != "" {
		return "flow: " + e.Routine + " callback panic on channel " + quoteName(e.Channel)
	}
	return "flow: " + e.Routine + " callback panic"
}

func quoteName(name string) string {
	if name == "" {
		return `"" (default)`
	}
	return `"` + name + `"`
}

// IsWouldBlock reports whether err indicates the operation would block.
// Delegates to [iox.IsWouldBlock] for wrapped error support.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// IsSemantic reports whether err is a control flow signal (not a failure).
// Returns true for ErrCanceled, ErrTerminated, and anything
// [iox.IsSemantic] accepts.
func IsSemantic(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, ErrTerminated) || iox.IsSemantic(err)
}
