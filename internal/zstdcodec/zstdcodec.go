// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package zstdcodec adapts github.com/klauspost/compress/zstd to the
// frame-at-a-time codec contract the adaptive pipeline compresses
// through. Each frame is produced by a dedicated encoder configured
// with the frame's level, window and raw-content dictionary; frames are
// therefore independent of each other's entropy state by construction.
package zstdcodec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

const (
	// MaxLevel is the top of the zstd level scale.
	MaxLevel = 22

	// maxWindowLog caps the advertised match window at 8 MiB; a job's
	// dictionary plus fresh input always fits inside that.
	maxWindowLog = 23
)

// windowLogs holds the default zstd window log per level for inputs of
// unbounded size, capped at maxWindowLog. Derived from the library's
// parameter tables; revisit if the defaults drift.
var windowLogs = [MaxLevel + 1]uint{
	0,
	19, 19, 20, 20, 20, 21, 21, 21, 21, // 1..9
	22, 22, 22, 22, 22, 22, // 10..15
	23, 23, 23, 23, // 16..19
	23, 23, 23, // 20..22, capped
}

// Codec is a single compression context. It carries at most one
// in-progress frame and is not safe for concurrent use.
type Codec struct {
	enc *zstd.Encoder
	out sliceWriter
}

// New returns a new compression context.
func New() *Codec {
	return &Codec{}
}

// MaxLevel implements the codec contract.
func (c *Codec) MaxLevel() int {
	return MaxLevel
}

// WindowLog returns the log2 of the match window used at level. Levels
// outside [1, MaxLevel] are clamped.
func (c *Codec) WindowLog(level int) uint {
	if level < 1 {
		level = 1
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return windowLogs[level]
}

// CompressBound returns the worst case frame size for n input bytes:
// the scaling term matches zstd's compress bound, plus a fixed margin
// for the frame header, block headers and content checksum.
func (c *Codec) CompressBound(n int) int {
	margin := 0
	if n < 128<<10 {
		margin = ((128 << 10) - n) >> 11
	}
	return n + (n >> 8) + margin + 128
}

// Begin starts a new frame at the given level. dict is used as raw
// reference content preceding the frame's input. The encoder is created
// with an explicit window size so the frame header advertises the
// window actually in use.
func (c *Codec) Begin(dict []byte, level int) error {
	if c.enc != nil {
		// A frame left un-ended by an aborted job; discard it.
		c.out.reset(nil)
		c.enc.Close()
		c.enc = nil
	}
	opts := []zstd.EOption{
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithWindowSize(1 << c.WindowLog(level)),
		zstd.WithLowerEncoderMem(true),
		// An empty job still emits a complete (empty) frame.
		zstd.WithZeroFrames(true),
	}
	if len(dict) > 0 {
		opts = append(opts, zstd.WithEncoderDictRaw(0, dict))
	}
	enc, err := zstd.NewWriter(&c.out, opts...)
	if err != nil {
		return fmt.Errorf("begin frame at level %v: %w", level, err)
	}
	c.enc = enc
	return nil
}

// Continue compresses src into dst, returning the number of bytes the
// encoder flushed. The encoder buffers up to a block internally, so a
// call may produce no output; End drains whatever remains.
func (c *Codec) Continue(dst, src []byte) (int, error) {
	if c.enc == nil {
		return 0, fmt.Errorf("continue without a frame begun")
	}
	c.out.reset(dst)
	if len(src) > 0 {
		if _, err := c.enc.Write(src); err != nil {
			return c.out.n, err
		}
	}
	return c.out.n, nil
}

// End compresses src, terminates the frame and flushes all remaining
// output, including the frame epilogue, into dst.
func (c *Codec) End(dst, src []byte) (int, error) {
	if c.enc == nil {
		return 0, fmt.Errorf("end without a frame begun")
	}
	c.out.reset(dst)
	if len(src) > 0 {
		if _, err := c.enc.Write(src); err != nil {
			c.enc.Close()
			c.enc = nil
			return c.out.n, err
		}
	}
	err := c.enc.Close()
	c.enc = nil
	return c.out.n, err
}

// InvalidateRepeatOffsets is a no-op: each frame has its own encoder, so
// no repeated-offset state survives a frame boundary.
func (c *Codec) InvalidateRepeatOffsets() {}

// Close releases the context, discarding any un-ended frame.
func (c *Codec) Close() error {
	if c.enc == nil {
		return nil
	}
	c.out.reset(nil)
	err := c.enc.Close()
	c.enc = nil
	return err
}

// DecompressFrame decodes a single frame with dict as raw reference
// content, returning the frame's plaintext.
func DecompressFrame(frame, dict []byte) ([]byte, error) {
	opts := []zstd.DOption{
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(true),
	}
	if len(dict) > 0 {
		opts = append(opts, zstd.WithDecoderDictRaw(0, dict))
	}
	dec, err := zstd.NewReader(nil, opts...)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(frame, nil)
}

// sliceWriter appends encoder output to a fixed destination slice; it is
// re-pointed at the caller's remaining destination before every encoder
// call so output lands directly in the job's dst buffer.
type sliceWriter struct {
	buf []byte
	n   int
}

func (w *sliceWriter) reset(buf []byte) {
	w.buf = buf
	w.n = 0
}

func (w *sliceWriter) Write(p []byte) (int, error) {
	if w.buf == nil {
		// Draining a discarded frame.
		return len(p), nil
	}
	if w.n+len(p) > len(w.buf) {
		return 0, fmt.Errorf("frame output exceeds destination capacity %v", len(w.buf))
	}
	copy(w.buf[w.n:], p)
	w.n += len(p)
	return len(p), nil
}
