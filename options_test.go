// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flow

import (
	"errors"
	"testing"
)

// TestConfigurationErrors tests that invalid options are rejected at
// network construction with ErrConfig.
func TestConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		opts *Options
		ok   bool
	}{
		{"defaults", Configure(), true},
		{"explicit power of two", Configure().MessageBufferSize(1 << 16), true},
		{"minimum capacity", Configure().MessageBufferSize(2), true},
		{"non power of two", Configure().MessageBufferSize(1000), false},
		{"capacity one", Configure().MessageBufferSize(1), false},
		{"capacity zero", Configure().MessageBufferSize(0), false},
		{"negative capacity", Configure().MessageBufferSize(-4), false},
		{"zero stride", Configure().StrideLength(0), false},
		{"stride beyond capacity", Configure().MessageBufferSize(4).StrideLength(8), false},
		{"stride at capacity", Configure().MessageBufferSize(4).StrideLength(4), true},
		{"zero pool", Configure().ThreadPoolSize(0), false},
		{"negative pool", Configure().ThreadPoolSize(-1), false},
		{"explicit pool", Configure().ThreadPoolSize(2), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net, err := NewNetwork(tt.opts)
			if tt.ok {
				if err != nil {
					t.Fatalf("NewNetwork: %v", err)
				}
				if net == nil {
					t.Fatal("NewNetwork returned nil network")
				}
				return
			}
			if !errors.Is(err, ErrConfig) {
				t.Fatalf("NewNetwork: got %v, want ErrConfig", err)
			}
		})
	}
}

// TestNilOptionsMeansDefaults tests that NewNetwork(nil) behaves like
// NewDefaultNetwork.
func TestNilOptionsMeansDefaults(t *testing.T) {
	net, err := NewNetwork(nil)
	if err != nil {
		t.Fatalf("NewNetwork(nil): %v", err)
	}
	if net.opts.bufferSize != DefaultMessageBufferSize {
		t.Fatalf("buffer size: got %d, want %d", net.opts.bufferSize, DefaultMessageBufferSize)
	}
	if net.opts.stride != DefaultStrideLength {
		t.Fatalf("stride: got %d, want %d", net.opts.stride, DefaultStrideLength)
	}
}

// TestRoundToPow2 tests the capacity rounding helper.
func TestRoundToPow2(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{0, 2},
		{2, 2},
		{3, 4},
		{4, 4},
		{5, 8},
		{1000, 1024},
		{1024, 1024},
	}

	for _, tt := range tests {
		if got := roundToPow2(tt.input); got != tt.expected {
			t.Fatalf("roundToPow2(%d) = %d, want %d", tt.input, got, tt.expected)
		}
		if !isPow2(roundToPow2(tt.input)) {
			t.Fatalf("roundToPow2(%d) not a power of two", tt.input)
		}
	}
}
