// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package azstd

import (
	"fmt"
	"io"
	"time"
)

// writeLoop is the writer stage: consume compressed jobs in order and
// drain each slot's frame to the sink. Frames are written in ~128
// slices so that writerProgress has enough granularity for the tuner
// even when the sink is fast.
func (p *pipeline) writeLoop(dst io.Writer) {
	var currJob uint32
	for {
		p.completion.setWriter(0)
		if err := p.ring.claimForWrite(currJob, p.completion.measureCompressor); err != nil {
			p.trace("writer: exiting on claim: %v", err)
			return
		}
		start := time.Now()
		p.completion.setCompressor(0)

		j := p.ring.job(currJob)
		if err := p.writeJob(dst, j); err != nil {
			p.ring.abort.signal(err)
			return
		}
		// Capture everything the progress report needs before the slot
		// is handed back to the reader.
		update := Progress{
			Duration: time.Since(start),
			Job:      currJob,
			Level:    j.level,
			In:       j.size,
			Out:      j.compressedSize,
			Last:     j.lastJob,
		}
		p.trace("writer: job %v written, %v bytes", currJob, j.compressedSize)
		p.ring.written.publish()
		if p.opts.progressCh != nil {
			select {
			case p.opts.progressCh <- update:
			case <-p.ctx.Done():
			}
		}
		if update.Last {
			p.ring.done.publish()
			return
		}
		currJob++
	}
}

func (p *pipeline) writeJob(dst io.Writer, j *job) error {
	sliceSize := j.compressedSize >> 7
	if sliceSize < 1 {
		sliceSize = 1
	}
	pos := 0
	remaining := j.compressedSize
	for remaining > 0 {
		n := remaining
		if n > sliceSize {
			n = sliceSize
		}
		wn, err := dst.Write(j.dst[pos : pos+n])
		if err != nil {
			return fmt.Errorf("write failed on job %v: %w", j.id, err)
		}
		if wn != n {
			return fmt.Errorf("short write on job %v: %v of %v bytes", j.id, wn, n)
		}
		pos += n
		remaining -= n
		p.completion.setWriter(1 - float64(remaining)/float64(j.compressedSize))
	}
	return nil
}
