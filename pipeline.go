// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package azstd

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/cosnicolaou/azstd/internal/zstdcodec"
)

type compressorOpts struct {
	level      int
	force      bool
	chunkSize  int
	ringSize   int
	verbose    bool
	progressCh chan<- Progress
	codec      Codec
}

// CompressorOption represents an option to Compress.
type CompressorOption func(*compressorOpts)

// Level sets the initial compression level.
func Level(l int) CompressorOption {
	return func(o *compressorOpts) {
		o.level = l
	}
}

// ForceLevel pins the compression level to its initial value for the
// entire run, bypassing the adaptive controller.
func ForceLevel(v bool) CompressorOption {
	return func(o *compressorOpts) {
		o.force = v
	}
}

// ChunkSize sets the amount of fresh input carried by each job.
func ChunkSize(n int) CompressorOption {
	return func(o *compressorOpts) {
		o.chunkSize = n
	}
}

// RingSize sets the number of reusable job slots.
func RingSize(n int) CompressorOption {
	return func(o *compressorOpts) {
		o.ringSize = n
	}
}

// Verbose controls verbose logging for compression.
func Verbose(v bool) CompressorOption {
	return func(o *compressorOpts) {
		o.verbose = v
	}
}

// SendUpdates sets the channel for sending per-job progress updates over.
func SendUpdates(ch chan<- Progress) CompressorOption {
	return func(o *compressorOpts) {
		o.progressCh = ch
	}
}

// WithCodec overrides the entropy coder used by the pipeline. The
// default is the zstd codec.
func WithCodec(c Codec) CompressorOption {
	return func(o *compressorOpts) {
		o.codec = c
	}
}

// readBlockSize is the granularity the reader fills a chunk at; small
// enough that readerProgress is meaningful to the tuner.
const readBlockSize = 1 << 15

// pipeline owns the shared state of one compression run. The reader
// stage runs on the caller's goroutine, the compressor and writer each
// on their own.
type pipeline struct {
	ctx        context.Context
	opts       compressorOpts
	codec      Codec
	ring       *ring
	completion *completion
	tuner      *tuner

	// level is the current compression level: written by the tuner on
	// the compressor goroutine, read by the reader when stamping jobs.
	level int32
}

func (p *pipeline) trace(format string, args ...interface{}) {
	if p.opts.verbose {
		log.Printf(format, args...)
	}
}

// Compress streams src through the adaptive pipeline, writing the
// compressed output to dst. It returns once every job has been drained
// by the writer, or with the first error any stage encountered. The
// output is a concatenation of codec frames, one per job; NewReader
// decompresses it.
func Compress(ctx context.Context, dst io.Writer, src io.Reader, opts ...CompressorOption) error {
	o := compressorOpts{
		level:     DefaultLevel,
		chunkSize: DefaultChunkSize,
		ringSize:  DefaultRingSize,
	}
	for _, fn := range opts {
		fn(&o)
	}
	codec := o.codec
	if codec == nil {
		codec = zstdcodec.New()
	}
	defer codec.Close()
	if o.level < 1 || o.level > codec.MaxLevel() {
		return fmt.Errorf("compression level %v out of range [1, %v]", o.level, codec.MaxLevel())
	}
	if o.chunkSize < readBlockSize {
		return fmt.Errorf("chunk size %v below minimum %v", o.chunkSize, readBlockSize)
	}
	if o.ringSize < 1 {
		return fmt.Errorf("ring size %v below minimum 1", o.ringSize)
	}

	completion := newCompletion()
	p := &pipeline{
		ctx:        ctx,
		opts:       o,
		codec:      codec,
		ring:       newRing(o.ringSize, o.chunkSize, codec.CompressBound(o.chunkSize)),
		completion: completion,
		level:      int32(o.level),
	}
	p.tuner = &tuner{
		completion: completion,
		maxLevel:   codec.MaxLevel(),
		force:      o.force,
		trace:      p.trace,
	}

	// Map context cancellation onto the shared abort flag so that every
	// blocked stage wakes and exits.
	watchDone := make(chan struct{})
	var watchWg sync.WaitGroup
	watchWg.Add(1)
	go func() {
		defer watchWg.Done()
		select {
		case <-ctx.Done():
			p.ring.abort.signal(ctx.Err())
		case <-watchDone:
		}
	}()

	var stageWg sync.WaitGroup
	stageWg.Add(2)
	go func() {
		defer stageWg.Done()
		p.writeLoop(dst)
	}()
	go func() {
		defer stageWg.Done()
		p.compressLoop()
	}()

	rerr := p.readLoop(src)
	p.ring.waitDone()
	stageWg.Wait()
	close(watchDone)
	watchWg.Wait()

	if err := p.ring.abort.reason(); err != nil {
		return err
	}
	return rerr
}

// readLoop is the reader stage: claim the next slot, swap the staging
// buffer in (its base already holds the carried dictionary prefix), fill
// it with up to one chunk of fresh input and publish. The buffer swap is
// the only handoff; dictionary bytes are never duplicated between jobs
// beyond the single tail copy back into staging.
func (p *pipeline) readLoop(src io.Reader) error {
	var nextJob uint32
	for {
		if err := p.ring.claimForRead(nextJob, p.completion.measureCompressor); err != nil {
			p.trace("reader: exiting on claim: %v", err)
			return err
		}
		p.completion.setReader(0)
		j := p.ring.job(nextJob)
		j.src, p.ring.staging = p.ring.staging, j.src
		dictSize := p.ring.stagingDict

		size, last, err := p.fill(src, j.src[dictSize:dictSize+p.opts.chunkSize])
		if err != nil {
			err = fmt.Errorf("read failed on job %v: %w", nextJob, err)
			p.ring.abort.signal(err)
			return err
		}
		j.id = nextJob
		j.size = size
		j.dictSize = dictSize
		j.lastJob = last
		j.level = int(atomic.LoadInt32(&p.level))

		if !last {
			// The fresh input becomes the next job's dictionary prefix.
			copy(p.ring.staging[:size], j.src[dictSize:dictSize+size])
			p.ring.stagingDict = size
		}
		p.trace("reader: job %v ready, size %v, dict %v, last %v", nextJob, size, dictSize, last)
		p.ring.ready.publish()
		nextJob++
		if last {
			return nil
		}
	}
}

// fill reads into buf until it is full or the source is exhausted,
// updating readerProgress as it goes. It reports whether end of stream
// was reached.
func (p *pipeline) fill(src io.Reader, buf []byte) (int, bool, error) {
	pos := 0
	for pos < len(buf) {
		end := pos + readBlockSize
		if end > len(buf) {
			end = len(buf)
		}
		n, err := src.Read(buf[pos:end])
		pos += n
		p.completion.setReader(float64(pos) / float64(len(buf)))
		if err == io.EOF {
			return pos, true, nil
		}
		if err != nil {
			return pos, false, err
		}
	}
	return pos, false, nil
}
