// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package azstd

import (
	"context"
	"io"
	"log"

	"github.com/cosnicolaou/azstd/internal/zstdcodec"
)

type readerOpts struct {
	verbose  bool
	scanOpts []ScannerOption
}

// ReaderOption represents an option to NewReader.
type ReaderOption func(o *readerOpts)

// ReaderVerbose controls verbose logging for decompression.
func ReaderVerbose(v bool) ReaderOption {
	return func(o *readerOpts) {
		o.verbose = v
	}
}

// ReaderScannerOptions passes ScannerOptions to the underlying frame
// scanner created by NewReader.
func ReaderScannerOptions(opts ...ScannerOption) ReaderOption {
	return func(o *readerOpts) {
		o.scanOpts = append(o.scanOpts, opts...)
	}
}

// NewReader returns an io.Reader that decompresses a stream produced by
// Compress. Frames are decoded strictly in order: frame k's raw
// dictionary is frame k-1's decoded content, so unlike the compressor's
// input side there is no useful concurrency to exploit here.
func NewReader(ctx context.Context, rd io.Reader, opts ...ReaderOption) io.Reader {
	o := &readerOpts{}
	for _, fn := range opts {
		fn(o)
	}
	return &reader{
		ctx:     ctx,
		sc:      NewFrameScanner(rd, o.scanOpts...),
		verbose: o.verbose,
	}
}

type reader struct {
	ctx     context.Context
	sc      *FrameScanner
	dict    []byte // previous frame's decoded content
	buf     []byte // decoded bytes not yet delivered
	err     error
	verbose bool
}

func (rd *reader) trace(format string, args ...interface{}) {
	if rd.verbose {
		log.Printf(format, args...)
	}
}

// Read implements io.Reader on the decompressed stream.
func (rd *reader) Read(buf []byte) (int, error) {
	for len(rd.buf) == 0 {
		if rd.err != nil {
			return 0, rd.err
		}
		if !rd.sc.Scan(rd.ctx) {
			if err := rd.sc.Err(); err != nil {
				rd.err = err
			} else {
				rd.err = io.EOF
			}
			continue
		}
		frame := rd.sc.Frame()
		if frame.Skippable {
			rd.trace("reader: skipping %v byte skippable frame", len(frame.Data))
			continue
		}
		data, err := zstdcodec.DecompressFrame(frame.Data, rd.dict)
		if err != nil {
			rd.err = err
			return 0, err
		}
		rd.trace("reader: frame %v -> %v bytes", len(frame.Data), len(data))
		rd.dict = data
		rd.buf = data
	}
	n := copy(buf, rd.buf)
	rd.buf = rd.buf[n:]
	return n, nil
}
