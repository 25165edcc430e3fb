// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopProducer(name string) Producer[int] {
	return MakeProducer(func() int { return 0 }, name)
}

func noopTransformer(in, out string) Transformer[int, int] {
	return MakeTransformer(func(n int) int { return n }, in, out)
}

func noopConsumer(name string) Consumer[int] {
	return MakeConsumer(func(int) {}, name)
}

// TestTopologyStateMachine exercises the push rules of the
// empty -> open -> closed network state machine.
func TestTopologyStateMachine(t *testing.T) {
	tests := []struct {
		name    string
		prelude []Routine
		push    Routine
		ok      bool
	}{
		{"producer on empty", nil, noopProducer(""), true},
		{"producer on open", []Routine{noopProducer("")}, noopProducer(""), true},
		{"producer on closed", []Routine{noopProducer(""), noopConsumer("")}, noopProducer(""), false},
		{"transformer on empty", nil, noopTransformer("", "out"), false},
		{"transformer on open", []Routine{noopProducer("")}, noopTransformer("", "out"), true},
		{"transformer on closed", []Routine{noopProducer(""), noopConsumer("")}, noopTransformer("", "out"), false},
		{"consumer on empty", nil, noopConsumer(""), false},
		{"consumer on open", []Routine{noopProducer("")}, noopConsumer(""), true},
		{"second consumer same channel", []Routine{noopProducer(""), noopConsumer("")}, noopConsumer(""), true},
		{"consumer on closed without channel", []Routine{noopProducer(""), noopConsumer("")}, MakeConsumer(func(string) {}, "missing"), false},
		{"spinner on empty", nil, MakeSpinner(func() {}), true},
		{"spinner on open", []Routine{noopProducer("")}, MakeSpinner(func() {}), false},
		{"spinner after spinner", []Routine{MakeSpinner(func() {})}, MakeSpinner(func() {}), false},
		{"producer after spinner", []Routine{MakeSpinner(func() {})}, noopProducer(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net := NewDefaultNetwork()
			require.NoError(t, net.Push(tt.prelude...))
			prior := net.state

			err := net.Push(tt.push)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrTopology)
				// A rejected push leaves the network in its prior state.
				assert.Equal(t, prior, net.state)
			}
		})
	}
}

// TestNamedChannelTypeMismatch tests that reusing a non-empty channel name
// with a different payload type is rejected at assembly time.
func TestNamedChannelTypeMismatch(t *testing.T) {
	net := NewDefaultNetwork()
	require.NoError(t, net.Push(MakeProducer(func() int { return 0 }, "data")))

	err := net.Push(MakeConsumer(func(string) {}, "data"))
	assert.ErrorIs(t, err, ErrTopology)

	// The network is still open and usable with the original type.
	assert.NoError(t, net.Push(MakeConsumer(func(int) {}, "data")))
}

// TestDefaultChannelsArePerType tests that the anonymous name selects a
// distinct default channel per payload type.
func TestDefaultChannelsArePerType(t *testing.T) {
	net := NewDefaultNetwork()
	require.NoError(t, net.Push(
		MakeProducer(func() int { return 0 }, ""),
		MakeTransformer(func(n int) string { return "" }, "", ""),
		MakeConsumer(func(string) {}, ""),
	))
	// int and string defaults coexist: two channels were created.
	assert.Len(t, net.channels, 2)
}

// TestFanInFanOutAssembly tests the many-to-many channel shape: multiple
// producers and multiple consumers on one channel.
func TestFanInFanOutAssembly(t *testing.T) {
	net := NewDefaultNetwork()
	require.NoError(t, net.Push(
		MakeProducer(func() string { return "A" }, "merged"),
		MakeProducer(func() string { return "B" }, "merged"),
		MakeConsumer(func(string) {}, "merged"),
		MakeConsumer(func(string) {}, "merged"),
	))
	assert.Len(t, net.channels, 1)
}

// TestLazyChannelCreation tests that channels appear on first reference
// and are shared by later routines naming them.
func TestLazyChannelCreation(t *testing.T) {
	net := NewDefaultNetwork()

	require.NoError(t, net.Push(noopProducer("a")))
	assert.Len(t, net.channels, 1)

	require.NoError(t, net.Push(noopTransformer("a", "b")))
	assert.Len(t, net.channels, 2)

	require.NoError(t, net.Push(noopConsumer("b")))
	assert.Len(t, net.channels, 2)
}

// TestPushAfterSpin tests that a spun network rejects further assembly.
func TestPushAfterSpin(t *testing.T) {
	net := NewDefaultNetwork()
	require.NoError(t, net.Push(MakeSpinner(func() {})))
	net.CancelAfter(0)
	require.NoError(t, Spin(net))

	assert.ErrorIs(t, net.Push(noopProducer("")), ErrTopology)
	assert.ErrorIs(t, Spin(net), ErrTopology)
}

// TestHandleAggregatesRoutineTokens tests that the network handle fires
// the token of every pushed routine.
func TestHandleAggregatesRoutineTokens(t *testing.T) {
	net := NewDefaultNetwork()
	p := noopProducer("")
	tr := noopTransformer("", "out")
	c := noopConsumer("out")
	require.NoError(t, net.Push(p, tr, c))

	net.Handle().RequestCancellation()
	assert.True(t, p.tok.Cancelled())
	assert.True(t, tr.tok.Cancelled())
	assert.True(t, c.tok.Cancelled())
}
