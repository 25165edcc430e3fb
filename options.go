// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flow

import (
	"fmt"
	"runtime"

	"github.com/joeycumines/logiface"
)

const (
	// DefaultMessageBufferSize is the per-channel ring capacity used when
	// none is configured. Must remain a power of two.
	DefaultMessageBufferSize = 4096

	// DefaultStrideLength is the number of sequence slots a producer claims
	// per round when none is configured.
	DefaultStrideLength = 1
)

// Options configures network construction.
//
// Options provides a fluent API in the spirit of the queue builders used
// elsewhere in this organization. Zero values are replaced by defaults; the
// final validation happens in [NewNetwork].
//
// Example:
//
//	net, err := flow.NewNetwork(flow.Configure().
//		MessageBufferSize(1 << 16).
//		StrideLength(2).
//		ThreadPoolSize(8))
type Options struct {
	bufferSize int
	stride     int
	poolSize   int
	logger     *logiface.Logger[logiface.Event]
}

// Configure creates an Options with every knob at its default:
// MessageBufferSize 4096, StrideLength 1, ThreadPoolSize = host
// parallelism, no logger.
func Configure() *Options {
	return &Options{
		bufferSize: DefaultMessageBufferSize,
		stride:     DefaultStrideLength,
		poolSize:   runtime.GOMAXPROCS(0),
	}
}

// MessageBufferSize sets the per-channel ring capacity. The capacity must
// be a power of two and at least 2; anything else is a configuration error
// reported by [NewNetwork].
func (o *Options) MessageBufferSize(n int) *Options {
	o.bufferSize = n
	return o
}

// StrideLength sets how many sequence slots a producer claims per round.
// Larger strides amortize claim overhead at the cost of burstier drains.
func (o *Options) StrideLength(n int) *Options {
	o.stride = n
	return o
}

// ThreadPoolSize sets the worker parallelism [Spin] drives routines with.
// Zero or negative is a configuration error.
func (o *Options) ThreadPoolSize(n int) *Options {
	o.poolSize = n
	return o
}

// Logger attaches a structured logger. A nil logger disables all runtime
// logging (the default).
func (o *Options) Logger(l *logiface.Logger[logiface.Event]) *Options {
	o.logger = l
	return o
}

func (o *Options) validate() error {
	if o.bufferSize < 2 || !isPow2(o.bufferSize) {
		return fmt.Errorf("%w: message buffer size must be a power of two >= 2, got %d", ErrConfig, o.bufferSize)
	}
	if o.stride < 1 {
		return fmt.Errorf("%w: stride length must be >= 1, got %d", ErrConfig, o.stride)
	}
	if o.stride > o.bufferSize {
		return fmt.Errorf("%w: stride length %d exceeds message buffer size %d", ErrConfig, o.stride, o.bufferSize)
	}
	if o.poolSize < 1 {
		return fmt.Errorf("%w: thread pool size must be >= 1, got %d", ErrConfig, o.poolSize)
	}
	return nil
}

// isPow2 reports whether n is a power of two.
func isPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// roundToPow2 rounds n up to the next power of 2.
func roundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// pad is cache line padding to prevent false sharing.
type pad [64]byte

// padShort is padding to fill cache line after 8-byte field.
type padShort [64 - 8]byte
