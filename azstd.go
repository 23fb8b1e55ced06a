// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package azstd implements adaptive streaming compression. Input is read
// as a sequence of fixed size chunks which are compressed and written out
// by a three stage pipeline (reader, compressor, writer) running over a
// small ring of reusable job slots. The compression level is retuned at
// every job boundary to match whichever stage is currently the slowest,
// so that spare reader/writer bandwidth is spent on better compression
// and a lagging compressor sheds effort instead of stalling the stream.
//
// The tail of each chunk is carried into the next job as a raw dictionary
// so that compression state spans chunk boundaries without duplicating
// any output. The emitted stream is a plain concatenation of codec
// frames, one per job; NewReader decompresses such a stream.
package azstd

import "time"

const (
	// DefaultChunkSize is the amount of fresh input carried by one job.
	DefaultChunkSize = 4 << 20

	// DefaultRingSize is the number of reusable job slots. The reader may
	// run at most this many jobs ahead of the writer.
	DefaultRingSize = 2

	// DefaultLevel is the initial compression level used when none is
	// specified.
	DefaultLevel = 6
)

// Progress is used to report the progress of compression. Each report
// pertains to one completed job, in job order.
type Progress struct {
	Duration time.Duration
	Job      uint32
	Level    int // level the job was compressed at
	In, Out  int // fresh input bytes and compressed frame bytes
	Last     bool
}
