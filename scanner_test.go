// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package azstd_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/cosnicolaou/azstd"
)

func compressToStream(t *testing.T, data []byte) []byte {
	t.Helper()
	out := &bytes.Buffer{}
	if err := azstd.Compress(context.Background(), out, bytes.NewReader(data),
		azstd.ChunkSize(testChunk)); err != nil {
		t.Fatalf("compress failed: %v", err)
	}
	return out.Bytes()
}

func TestFrameScanner(t *testing.T) {
	ctx := context.Background()
	data := genMixedEntropyData(testChunk * 5 / 2)
	stream := compressToStream(t, data)

	sc := azstd.NewFrameScanner(bytes.NewReader(stream))
	var frames []azstd.Frame
	for sc.Scan(ctx) {
		frames = append(frames, sc.Frame())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	// One frame per job: two full chunks and a half chunk.
	if got, want := len(frames), 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	total := 0
	for i, frame := range frames {
		total += len(frame.Data)
		if frame.Skippable {
			t.Errorf("frame %v: unexpectedly skippable", i)
		}
		if frame.Blocks == 0 {
			t.Errorf("frame %v: no blocks", i)
		}
		if frame.WindowSize <= 0 {
			t.Errorf("frame %v: window size %v", i, frame.WindowSize)
		}
		if got, want := frame.DictID, uint32(0); got != want {
			t.Errorf("frame %v: got dict id %v, want %v", i, got, want)
		}
	}
	if got, want := total, len(stream); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFrameScannerSkippable(t *testing.T) {
	ctx := context.Background()
	stream := []byte{0x50, 0x2a, 0x4d, 0x18}
	stream = binary.LittleEndian.AppendUint32(stream, 6)
	stream = append(stream, "sixby!"...)

	sc := azstd.NewFrameScanner(bytes.NewReader(stream))
	if !sc.Scan(ctx) {
		t.Fatalf("scan failed: %v", sc.Err())
	}
	frame := sc.Frame()
	if !frame.Skippable {
		t.Errorf("expected a skippable frame")
	}
	if got, want := len(frame.Data), len(stream); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if sc.Scan(ctx) {
		t.Errorf("expected end of stream")
	}
	if err := sc.Err(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFrameScannerErrors(t *testing.T) {
	ctx := context.Background()

	testError := func(stream []byte, msg string) {
		sc := azstd.NewFrameScanner(bytes.NewReader(stream))
		for sc.Scan(ctx) {
		}
		err := sc.Err()
		if err == nil || !strings.Contains(err.Error(), msg) {
			t.Errorf("%v: expected an error or different error to the one received: %v", msg, err)
		}
	}

	testError([]byte("this is not a zstd stream at all"), "wrong frame magic")

	stream := compressToStream(t, genMixedEntropyData(testChunk))
	testError(stream[:len(stream)-3], "failed to read")
	testError(stream[:5], "failed to read")

	// Reserved bit set in the frame header descriptor.
	testError([]byte{0x28, 0xb5, 0x2f, 0xfd, 0x08}, "reserved bit")

	// A well-formed header followed by a block of the reserved type.
	bad := []byte{0x28, 0xb5, 0x2f, 0xfd, 0x00, 0x00}
	bh := uint32(1) | 3<<1 | 8<<3
	bad = append(bad, byte(bh), byte(bh>>8), byte(bh>>16))
	testError(bad, "reserved block type")

	// A cancelled context surfaces as the scan error.
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	sc := azstd.NewFrameScanner(bytes.NewReader(stream))
	if sc.Scan(cctx) {
		t.Errorf("scan succeeded with a cancelled context")
	}
	if got, want := sc.Err(), context.Canceled; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFrameScannerSizeLimit(t *testing.T) {
	ctx := context.Background()
	stream := compressToStream(t, genMixedEntropyData(testChunk))
	sc := azstd.NewFrameScanner(bytes.NewReader(stream), azstd.ScanFrameSizeLimit(16))
	for sc.Scan(ctx) {
	}
	err := sc.Err()
	if err == nil || !strings.Contains(err.Error(), "size limit") {
		t.Errorf("expected an error or different error to the one received: %v", err)
	}
}
