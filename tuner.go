// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package azstd

import "sync"

// maxLevelStep caps how far the compression level can move at one job
// boundary, in either direction.
const maxLevelStep = 4

// completion tracks, for the job each stage is currently working on, the
// share of that job the stage has finished, together with the peer
// progress each stage observed at the moments it had to block for work.
// A low idle value for a peer means the observer was waiting while that
// peer still had most of its job left, i.e. the peer is slow.
type completion struct {
	mu sync.Mutex

	reader     float64
	compressor float64
	writer     float64

	readerIdle     float64
	compressorIdle float64
	writerIdle     float64
}

func newCompletion() *completion {
	return &completion{readerIdle: 1, compressorIdle: 1, writerIdle: 1}
}

func (c *completion) setReader(v float64) {
	c.mu.Lock()
	c.reader = v
	c.mu.Unlock()
}

func (c *completion) setCompressor(v float64) {
	c.mu.Lock()
	c.compressor = v
	c.mu.Unlock()
}

func (c *completion) setWriter(v float64) {
	c.mu.Lock()
	c.writer = v
	c.mu.Unlock()
}

// measurePeers is invoked by the compressor whenever it blocks waiting
// for a ready job.
func (c *completion) measurePeers() {
	c.mu.Lock()
	c.readerIdle = c.reader
	c.writerIdle = c.writer
	c.mu.Unlock()
}

// measureCompressor is invoked by the reader and the writer whenever
// they block waiting on the compressor's output or slot reuse.
func (c *completion) measureCompressor() {
	c.mu.Lock()
	c.compressorIdle = c.compressor
	c.mu.Unlock()
}

// tuner decides the compression level for each job from the idleness
// observations accumulated since its previous decision. It runs on the
// compressor goroutine at every job boundary; it is not a separate
// thread of control.
type tuner struct {
	completion *completion
	maxLevel   int
	force      bool
	trace      func(format string, args ...interface{})
}

// adapt returns the level to compress the next job at. If the compressor,
// while blocked for work, observed both the reader and the writer with
// low idle values, the level rises by the smaller of the two shortfalls.
// Otherwise the compressor itself is the bottleneck and the level drops
// by the compressor's shortfall as observed by its peers. All idle
// observations are consumed and reset to their no-blocking value.
func (t *tuner) adapt(level int) int {
	if t.force {
		return level
	}
	c := t.completion
	c.mu.Lock()
	readerDelta := maxLevelStep - int(c.readerIdle*maxLevelStep)
	writerDelta := maxLevelStep - int(c.writerIdle*maxLevelStep)
	compressorDelta := maxLevelStep - int(c.compressorIdle*maxLevelStep)
	c.readerIdle = 1
	c.compressorIdle = 1
	c.writerIdle = 1
	c.mu.Unlock()

	fastRaise := readerDelta
	if writerDelta < fastRaise {
		fastRaise = writerDelta
	}
	if t.maxLevel-level < fastRaise {
		fastRaise = t.maxLevel - level
	}
	if fastRaise > 0 {
		t.trace("tuner: level %v + %v, reader/writer lagging", level, fastRaise)
		return level + fastRaise
	}
	slowLower := compressorDelta
	if level-1 < slowLower {
		slowLower = level - 1
	}
	if slowLower > 0 {
		t.trace("tuner: level %v - %v, compressor lagging", level, slowLower)
	}
	return level - slowLower
}
