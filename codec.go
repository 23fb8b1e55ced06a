// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package azstd

// Codec is the narrow capability set the pipeline requires of an entropy
// coder. A Codec value is a single compression context: it is owned
// exclusively by the compressor stage and carries one in-progress frame
// at a time. Implementations are not required to be safe for concurrent
// use.
type Codec interface {
	// CompressBound returns the worst case compressed size for n input
	// bytes, including all framing overhead.
	CompressBound(n int) int

	// MaxLevel returns the highest valid compression level. Levels run
	// from 1 to MaxLevel inclusive.
	MaxLevel() int

	// WindowLog returns the log2 of the match window the codec uses at
	// the given level, derived from the codec's own parameter tables.
	WindowLog(level int) uint

	// Begin starts a new frame. dict holds raw (non-analyzed) reference
	// bytes that immediately precede the frame's input; it may be empty.
	// The frame header must advertise the window actually in use so that
	// a conforming decoder can size its history correctly.
	Begin(dict []byte, level int) error

	// Continue compresses src, appending any output produced so far to
	// dst, and returns the number of bytes written. A codec is free to
	// buffer internally; output not returned here is returned by a later
	// Continue or by End. src may be empty.
	Continue(dst, src []byte) (int, error)

	// End compresses src, terminates the frame and flushes all remaining
	// output to dst, returning the number of bytes written.
	End(dst, src []byte) (int, error)

	// InvalidateRepeatOffsets discards any repeated-offset state carried
	// over from a previous frame, decoupling the new frame's entropy
	// state from its predecessor. Codecs whose frames are already
	// independent may treat this as a no-op.
	InvalidateRepeatOffsets()

	// Close releases the context. No other method may be called after
	// Close.
	Close() error
}

// usableDictSize bounds the dictionary prefix handed to the codec for a
// job compressed at level. The codec's window is shrunk by an overlap
// factor of 8 except at maximum level, matching the window the codec
// will actually search; passing more dictionary than that is wasted.
// The result never exceeds dictSize.
func usableDictSize(c Codec, level, dictSize int) int {
	overlapLog := uint(3)
	if level >= c.MaxLevel() {
		overlapLog = 0
	}
	useDict := 1 << (c.WindowLog(level) - overlapLog)
	if useDict > dictSize {
		useDict = dictSize
	}
	return useDict
}
