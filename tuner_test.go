// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package azstd

import "testing"

func newTestTuner(maxLevel int) *tuner {
	return &tuner{
		completion: newCompletion(),
		maxLevel:   maxLevel,
		trace:      func(string, ...interface{}) {},
	}
}

func TestTunerDecisions(t *testing.T) {
	for _, tc := range []struct {
		name                                   string
		readerIdle, compressorIdle, writerIdle float64
		level, want                            int
	}{
		{"no blocking observed", 1, 1, 1, 6, 6},
		{"reader and writer starved", 0, 1, 0, 6, 10},
		{"raise clamped to max level", 0, 1, 0, 20, 22},
		{"reader starved but writer busy", 0, 1, 1, 6, 6},
		{"compressor is the bottleneck", 1, 0, 1, 6, 2},
		{"lower clamped to level one", 1, 0, 1, 3, 1},
		{"partial compressor lag", 1, 0.5, 1, 6, 4},
		{"partial raise", 0.3, 1, 0.6, 6, 8},
	} {
		tn := newTestTuner(22)
		tn.completion.readerIdle = tc.readerIdle
		tn.completion.compressorIdle = tc.compressorIdle
		tn.completion.writerIdle = tc.writerIdle
		if got, want := tn.adapt(tc.level), tc.want; got != want {
			t.Errorf("%v: got %v, want %v", tc.name, got, want)
		}
	}
}

func TestTunerResetsObservations(t *testing.T) {
	tn := newTestTuner(22)
	tn.completion.readerIdle = 0
	tn.completion.writerIdle = 0
	if got, want := tn.adapt(6), 10; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	// The observations were consumed; with nothing new measured the
	// level must hold steady.
	if got, want := tn.adapt(10), 10; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTunerForceLevel(t *testing.T) {
	tn := newTestTuner(22)
	tn.force = true
	tn.completion.readerIdle = 0
	tn.completion.writerIdle = 0
	if got, want := tn.adapt(9), 9; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	tn.completion.compressorIdle = 0
	if got, want := tn.adapt(9), 9; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCompletionMeasurements(t *testing.T) {
	c := newCompletion()
	c.setReader(0.25)
	c.setWriter(0.75)
	c.setCompressor(0.5)

	c.measurePeers()
	if got, want := c.readerIdle, 0.25; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := c.writerIdle, 0.75; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	c.measureCompressor()
	if got, want := c.compressorIdle, 0.5; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
