// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.
package azstd

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// See RFC 8878 for the container format parsed here. The scanner walks
// frame and block headers only; payloads are carried through opaquely.
const (
	frameMagic         = 0xfd2fb528
	skippableMagicLow  = 0x184d2a50
	skippableMagicHigh = 0x184d2a5f
)

type scannerOpts struct {
	maxFrameSize int
}

// ScannerOption represents an option to NewFrameScanner.
type ScannerOption func(*scannerOpts)

// ScanFrameSizeLimit bounds the size of a single frame the scanner will
// buffer. It should only ever be needed for streams of unusual
// provenance; the default is 1 GiB.
func ScanFrameSizeLimit(n int) ScannerOption {
	return func(o *scannerOpts) {
		o.maxFrameSize = n
	}
}

// Frame represents a single frame split out of a stream.
type Frame struct {
	// Data holds the entire frame, magic number included.
	Data []byte

	Skippable   bool
	Blocks      int
	HasChecksum bool
	WindowSize  int64
	DictID      uint32
	ContentSize int64 // decoded size if declared by the header, else -1
}

func (f Frame) String() string {
	out := &strings.Builder{}
	if f.Skippable {
		fmt.Fprintf(out, "skippable frame, %v bytes", len(f.Data))
		return out.String()
	}
	fmt.Fprintf(out, "%v bytes, %v blocks, window %v", len(f.Data), f.Blocks, f.WindowSize)
	if f.ContentSize >= 0 {
		fmt.Fprintf(out, ", content size %v", f.ContentSize)
	}
	if f.DictID != 0 {
		fmt.Fprintf(out, ", dict %08x", f.DictID)
	}
	if f.HasChecksum {
		fmt.Fprintf(out, ", checksum")
	}
	return out.String()
}

// FrameScanner splits a stream into its constituent frames by walking
// the container format: magic number, frame header, then block headers
// until the last-block flag, plus the optional content checksum.
// Nothing is decompressed. The adaptive compressor emits one frame per
// job, so scanning its output recovers the original job boundaries.
type FrameScanner struct {
	brd   *bufio.Reader
	frame Frame
	buf   []byte
	err   error
	done  bool
	max   int
}

// NewFrameScanner returns a new instance of FrameScanner.
func NewFrameScanner(rd io.Reader, opts ...ScannerOption) *FrameScanner {
	o := scannerOpts{
		maxFrameSize: 1 << 30,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return &FrameScanner{
		brd: bufio.NewReader(rd),
		max: o.maxFrameSize,
	}
}

// Scan returns true if there is a frame to be returned.
func (sc *FrameScanner) Scan(ctx context.Context) bool {
	if sc.err != nil || sc.done {
		return false
	}
	select {
	case <-ctx.Done():
		sc.err = ctx.Err()
		return false
	default:
	}
	sc.buf = sc.buf[:0]
	var magicBuf [4]byte
	if _, err := io.ReadFull(sc.brd, magicBuf[:]); err != nil {
		if err == io.EOF {
			sc.done = true
		} else {
			sc.err = fmt.Errorf("failed to read frame magic: %v", err)
		}
		return false
	}
	sc.buf = append(sc.buf, magicBuf[:]...)
	magic := binary.LittleEndian.Uint32(magicBuf[:])
	switch {
	case magic == frameMagic:
		return sc.scanFrame()
	case magic >= skippableMagicLow && magic <= skippableMagicHigh:
		return sc.scanSkippable()
	}
	sc.err = fmt.Errorf("wrong frame magic: %x", magicBuf)
	return false
}

func (sc *FrameScanner) scanSkippable() bool {
	size, ok := sc.consume(4, "skippable frame size")
	if !ok {
		return false
	}
	n := binary.LittleEndian.Uint32(size)
	if int64(n) > int64(sc.max) {
		sc.err = fmt.Errorf("skippable frame of %v bytes exceeds limit %v", n, sc.max)
		return false
	}
	if _, ok := sc.consume(int(n), "skippable frame payload"); !ok {
		return false
	}
	sc.frame = Frame{Data: sc.copyBuf(), Skippable: true, ContentSize: -1}
	return true
}

func (sc *FrameScanner) scanFrame() bool {
	hdr, ok := sc.consume(1, "frame header descriptor")
	if !ok {
		return false
	}
	fhd := hdr[0]
	if fhd&0x08 != 0 {
		sc.err = fmt.Errorf("reserved bit set in frame header descriptor %02x", fhd)
		return false
	}
	singleSegment := fhd&0x20 != 0
	hasChecksum := fhd&0x04 != 0
	fcsFlag := int(fhd >> 6)
	dictIDLen := []int{0, 1, 2, 4}[fhd&0x03]
	fcsLen := []int{0, 2, 4, 8}[fcsFlag]
	if fcsFlag == 0 && singleSegment {
		fcsLen = 1
	}

	var windowSize int64
	if !singleSegment {
		wd, ok := sc.consume(1, "window descriptor")
		if !ok {
			return false
		}
		base := int64(1) << (10 + wd[0]>>3)
		windowSize = base + (base/8)*int64(wd[0]&0x07)
	}
	var dictID uint32
	if dictIDLen > 0 {
		raw, ok := sc.consume(dictIDLen, "dictionary id")
		if !ok {
			return false
		}
		var padded [4]byte
		copy(padded[:], raw)
		dictID = binary.LittleEndian.Uint32(padded[:])
	}
	contentSize := int64(-1)
	if fcsLen > 0 {
		raw, ok := sc.consume(fcsLen, "frame content size")
		if !ok {
			return false
		}
		var padded [8]byte
		copy(padded[:], raw)
		contentSize = int64(binary.LittleEndian.Uint64(padded[:]))
		if fcsLen == 2 {
			contentSize += 256
		}
	}
	if singleSegment {
		windowSize = contentSize
	}

	blocks := 0
	for {
		raw, ok := sc.consume(3, "block header")
		if !ok {
			return false
		}
		bh := uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16
		lastBlock := bh&1 != 0
		blockType := (bh >> 1) & 0x03
		payload := int(bh >> 3)
		switch blockType {
		case 1: // RLE: a single byte regenerated blockSize times
			payload = 1
		case 3:
			sc.err = fmt.Errorf("reserved block type in block %v", blocks)
			return false
		}
		if _, ok := sc.consume(payload, "block payload"); !ok {
			return false
		}
		blocks++
		if lastBlock {
			break
		}
	}
	if hasChecksum {
		if _, ok := sc.consume(4, "content checksum"); !ok {
			return false
		}
	}
	sc.frame = Frame{
		Data:        sc.copyBuf(),
		Blocks:      blocks,
		HasChecksum: hasChecksum,
		WindowSize:  windowSize,
		DictID:      dictID,
		ContentSize: contentSize,
	}
	return true
}

// consume reads exactly n bytes into the frame buffer, returning the
// bytes read. A short read is reported against what, since a partial
// frame always means a truncated or corrupt stream.
func (sc *FrameScanner) consume(n int, what string) ([]byte, bool) {
	if n == 0 {
		return nil, true
	}
	pos := len(sc.buf)
	if pos+n > sc.max {
		sc.err = fmt.Errorf("frame exceeds size limit %v", sc.max)
		return nil, false
	}
	sc.buf = append(sc.buf, make([]byte, n)...)
	if _, err := io.ReadFull(sc.brd, sc.buf[pos:]); err != nil {
		sc.err = fmt.Errorf("failed to read %v: %v", what, err)
		return nil, false
	}
	return sc.buf[pos:], true
}

func (sc *FrameScanner) copyBuf() []byte {
	out := make([]byte, len(sc.buf))
	copy(out, sc.buf)
	return out
}

// Frame returns the current frame.
func (sc *FrameScanner) Frame() Frame {
	return sc.frame
}

// Err returns any error encountered by the scanner.
func (sc *FrameScanner) Err() error {
	return sc.err
}
