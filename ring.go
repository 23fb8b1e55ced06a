// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package azstd

import (
	"errors"
	"sync"
)

// ErrAborted is returned by claim operations once the pipeline's abort
// flag has been set; the error that caused the abort is reported by
// Compress itself.
var ErrAborted = errors.New("pipeline aborted")

// job is one reusable pipeline slot. The first dictSize bytes of src are
// the dictionary prefix carried over from the previous job, the next
// size bytes are the fresh input for this job. dst holds the compressed
// frame once the compressor is done with the slot.
type job struct {
	src []byte // capacity 2x chunk size
	dst []byte // capacity CompressBound(chunk size)

	id             uint32
	lastJob        bool
	dictSize       int
	size           int
	compressedSize int
	level          int
}

// gate is one monotonic stage counter paired with the mutex and condition
// variable used to block on it. Counters start at zero and only ever
// advance; each gate has exactly one publishing stage.
type gate struct {
	mu   sync.Mutex
	cond *sync.Cond
	id   uint32
}

func newGate() *gate {
	g := &gate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// publish advances the counter by exactly one and wakes all waiters.
func (g *gate) publish() {
	g.mu.Lock()
	g.id++
	g.cond.Broadcast()
	g.mu.Unlock()
}

func (g *gate) current() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.id
}

// wait blocks until ready(counter) holds or the pipeline aborts. onWait,
// if non-nil, is invoked before each block; the stages use it to take
// their idleness measurements.
func (g *gate) wait(ab *abort, ready func(uint32) bool, onWait func()) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for !ready(g.id) {
		if ab.set() {
			return ErrAborted
		}
		if onWait != nil {
			onWait()
		}
		g.cond.Wait()
	}
	if ab.set() {
		return ErrAborted
	}
	return nil
}

// abort is the pipeline's shared error flag. The first error wins;
// setting it wakes every gate so that all blocked stages observe the
// flag and exit at their next claim.
type abort struct {
	mu    sync.Mutex
	err   error
	gates []*gate
}

func (a *abort) signal(err error) {
	a.mu.Lock()
	if a.err == nil && err != nil {
		a.err = err
	}
	a.mu.Unlock()
	for _, g := range a.gates {
		g.mu.Lock()
		g.cond.Broadcast()
		g.mu.Unlock()
	}
}

func (a *abort) set() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err != nil
}

func (a *abort) reason() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// ring is the bounded set of job slots shared by the three stages, along
// with the gates that order their progress over it. A job with id k
// occupies slot k mod n; the slot is reusable once the writer has
// drained it.
type ring struct {
	jobs []job

	ready      *gate // jobs fully prepared by the reader
	compressed *gate // jobs finished by the compressor
	written    *gate // jobs drained by the writer
	done       *gate // terminal signal, published once by the writer

	abort *abort

	// staging is the reader-owned input buffer. Its base holds the
	// dictionary prefix for the next job; it is exchanged with a slot's
	// src by pointer swap, never copied.
	staging     []byte
	stagingDict int
}

func newRing(n, chunkSize, bound int) *ring {
	r := &ring{
		jobs:       make([]job, n),
		ready:      newGate(),
		compressed: newGate(),
		written:    newGate(),
		done:       newGate(),
		abort:      &abort{},
		staging:    make([]byte, 2*chunkSize),
	}
	r.abort.gates = []*gate{r.ready, r.compressed, r.written, r.done}
	for i := range r.jobs {
		r.jobs[i].src = make([]byte, 2*chunkSize)
		r.jobs[i].dst = make([]byte, bound)
	}
	return r
}

func (r *ring) job(id uint32) *job {
	return &r.jobs[id%uint32(len(r.jobs))]
}

// claimForRead blocks until job k's slot has been drained by the writer.
func (r *ring) claimForRead(k uint32, onWait func()) error {
	n := uint32(len(r.jobs))
	return r.written.wait(r.abort, func(written uint32) bool {
		return k-written < n
	}, onWait)
}

// claimForCompress blocks until job k has been published by the reader.
func (r *ring) claimForCompress(k uint32, onWait func()) error {
	return r.ready.wait(r.abort, func(ready uint32) bool {
		return ready != k
	}, onWait)
}

// claimForWrite blocks until job k has been published by the compressor.
func (r *ring) claimForWrite(k uint32, onWait func()) error {
	return r.compressed.wait(r.abort, func(compressed uint32) bool {
		return compressed != k
	}, onWait)
}

// waitDone blocks until the writer reports the final job drained, or the
// pipeline aborts.
func (r *ring) waitDone() error {
	return r.done.wait(r.abort, func(done uint32) bool {
		return done != 0
	}, nil)
}
