// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flow

import (
	"fmt"
	"reflect"
	"time"

	"github.com/joeycumines/logiface"
	"golang.org/x/sync/errgroup"
)

// netState is the network assembly state machine: a producer opens an
// empty network, a consumer caps an open one, and a spinner short-circuits
// an empty network straight to closed with no channels.
type netState int32

const (
	stateEmpty netState = iota
	stateOpen
	stateClosed
)

func (s netState) String() string {
	switch s {
	case stateEmpty:
		return "empty"
	case stateOpen:
		return "open"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func topologyf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTopology, fmt.Sprintf(format, args...))
}

// chanKey identifies a channel: payload type plus name. The empty name is
// the default channel for its payload type.
type chanKey struct {
	typ  reflect.Type
	name string
}

// anyChannel is the type-erased registry view of a channel.
type anyChannel interface {
	prepare()
	open(g *errgroup.Group)
	chanName() string
}

type spinnerEntry struct {
	fn  func()
	tok *Token
	id  string
}

type timeoutEntry struct {
	after time.Duration
	tok   *Token
}

// Network is a compiled topology of routines connected by typed, named
// channels. Assemble it with [Network.Push] and drive it with [Spin].
//
// Channels are created lazily on the first push that names them and are
// keyed by (payload type, name). A network is assembled by exactly one
// goroutine; only the cancellation handle is safe to share once spinning.
type Network struct {
	opts *Options
	log  *logiface.Logger[logiface.Event]

	state    netState
	channels map[chanKey]anyChannel
	order    []anyChannel
	names    map[string]reflect.Type
	spinners []spinnerEntry
	timeouts []timeoutEntry

	handle Handle
	spun   bool
}

// NewNetwork creates an empty network with the given configuration.
// Configuration errors (non-power-of-two buffer size, zero-size pool) are
// reported here.
func NewNetwork(opts *Options) (*Network, error) {
	if opts == nil {
		opts = Configure()
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Network{
		opts:     opts,
		log:      opts.logger,
		channels: make(map[chanKey]anyChannel),
		names:    make(map[string]reflect.Type),
	}, nil
}

// NewDefaultNetwork creates an empty network with default configuration.
func NewDefaultNetwork() *Network {
	n, err := NewNetwork(Configure())
	if err != nil {
		// Defaults always validate.
		panic(err)
	}
	return n
}

// Push wires routines into the network in order, creating channels as
// needed and enforcing the topology rules. On error the network remains
// usable in its prior state and the remaining routines are not pushed.
func (n *Network) Push(routines ...Routine) error {
	for _, r := range routines {
		if n.spun {
			return topologyf("network has already been spun")
		}
		if err := r.attach(n); err != nil {
			return err
		}
	}
	return nil
}

// Handle returns the compound cancellation handle: requesting cancellation
// fires every routine token and any timeout token, after which the network
// drains and [Spin] returns.
func (n *Network) Handle() *Handle {
	return &n.handle
}

// CancelAfter schedules cancellation of the whole network once d has
// elapsed. The deadline races with normal completion; whichever fires
// first wins. Shutdown is cooperative, so the network stops some finite
// time after the deadline, not at it.
func (n *Network) CancelAfter(d time.Duration) {
	tok := newToken()
	n.handle.add(tok)
	n.timeouts = append(n.timeouts, timeoutEntry{after: d, tok: tok})
}

// channelFor returns the channel keyed by (T, name), creating it lazily.
// Reusing a non-empty name with a different payload type is a topology
// error: the first registration fixes the type.
func channelFor[T any](n *Network, name string) (*channel[T], error) {
	typ := reflect.TypeFor[T]()
	if name != "" {
		if prev, ok := n.names[name]; ok && prev != typ {
			return nil, topologyf("channel %s carries %s, not %s", quoteName(name), prev, typ)
		}
	}
	key := chanKey{typ: typ, name: name}
	if c, ok := n.channels[key]; ok {
		return c.(*channel[T]), nil
	}
	c := newChannel[T](name, n.opts, n.log, n.handle.RequestCancellation)
	n.channels[key] = c
	n.order = append(n.order, c)
	if name != "" {
		n.names[name] = typ
	}
	n.log.Debug().Str("channel", quoteName(name)).Str("type", typ.String()).Log("channel created")
	return c, nil
}

func channelExists[T any](n *Network, name string) bool {
	_, ok := n.channels[chanKey{typ: reflect.TypeFor[T](), name: name}]
	return ok
}
