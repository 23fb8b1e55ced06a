// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package azstd

import (
	"fmt"
	"sync/atomic"
)

// compressionBlockSize is the granularity a job's input is fed to the
// codec at; small enough that compressorProgress is meaningful to the
// tuner.
const compressionBlockSize = 128 << 10

// compressLoop is the compressor stage: consume jobs in order, emit one
// codec frame per job into the slot's dst buffer and publish. The tuner
// runs at the top of every job, on this goroutine, before the frame is
// begun.
func (p *pipeline) compressLoop() {
	var currJob uint32
	for {
		p.completion.setCompressor(0)
		if err := p.ring.claimForCompress(currJob, p.completion.measurePeers); err != nil {
			p.trace("compressor: exiting on claim: %v", err)
			return
		}
		// Handoff accepted; the reader's progress no longer refers to
		// this job.
		p.completion.setReader(0)

		j := p.ring.job(currJob)
		level := p.tuner.adapt(int(atomic.LoadInt32(&p.level)))
		atomic.StoreInt32(&p.level, int32(level))
		j.level = level

		if err := p.compressJob(currJob, j, level); err != nil {
			p.ring.abort.signal(err)
			return
		}
		p.trace("compressor: job %v compressed, level %v, %v -> %v bytes",
			currJob, level, j.size, j.compressedSize)
		p.ring.compressed.publish()
		if j.lastJob {
			return
		}
		currJob++
	}
}

// compressJob emits the single codec frame for job j. The dictionary
// prefix is handed to the codec as raw reference bytes, trimmed to the
// window the chosen level will actually search.
func (p *pipeline) compressJob(currJob uint32, j *job, level int) error {
	useDict := usableDictSize(p.codec, level, j.dictSize)
	dict := j.src[j.dictSize-useDict : j.dictSize]
	if err := p.codec.Begin(dict, level); err != nil {
		return fmt.Errorf("codec init failed on job %v: %w", currJob, err)
	}

	src := j.src[j.dictSize : j.dictSize+j.size]
	j.compressedSize = 0
	remaining := j.size
	srcPos := 0
	blockNum := 0
	for {
		blockLen := remaining
		if blockLen > compressionBlockSize {
			blockLen = compressionBlockSize
		}
		if currJob != 0 && blockNum == 0 {
			// Materialize the new frame's header before any payload and
			// drop entropy state carried over from the previous frame.
			n, err := p.codec.Continue(j.dst[j.compressedSize:], nil)
			if err != nil {
				return fmt.Errorf("codec error on job %v: %w", currJob, err)
			}
			j.compressedSize += n
			p.codec.InvalidateRepeatOffsets()
		}
		var n int
		var err error
		if remaining == blockLen {
			n, err = p.codec.End(j.dst[j.compressedSize:], src[srcPos:srcPos+blockLen])
		} else {
			n, err = p.codec.Continue(j.dst[j.compressedSize:], src[srcPos:srcPos+blockLen])
		}
		if err != nil {
			return fmt.Errorf("codec error on job %v: %w", currJob, err)
		}
		j.compressedSize += n
		remaining -= blockLen
		srcPos += blockLen
		blockNum++
		if j.size > 0 {
			p.completion.setCompressor(1 - float64(remaining)/float64(j.size))
		}
		if remaining == 0 {
			return nil
		}
	}
}
