// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package azstd_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/cosnicolaou/azstd"
)

func TestReaderRoundTrips(t *testing.T) {
	ctx := context.Background()
	for _, size := range []int{0, 1, 1000, testChunk, testChunk * 5 / 2, testChunk * 4} {
		data := genMixedEntropyData(size)
		stream := compressToStream(t, data)

		rd := azstd.NewReader(ctx, bytes.NewReader(stream))
		decompressed, err := io.ReadAll(rd)
		if err != nil {
			t.Errorf("size %v: read failed: %v", size, err)
			continue
		}
		if got, want := decompressed, data; !bytes.Equal(got, want) {
			t.Errorf("size %v: got %v bytes, want %v bytes", size, len(got), len(want))
		}
	}
}

func TestReaderSmallReads(t *testing.T) {
	ctx := context.Background()
	data := genMixedEntropyData(testChunk * 2)
	stream := compressToStream(t, data)

	rd := azstd.NewReader(ctx, bytes.NewReader(stream))
	out := &bytes.Buffer{}
	buf := make([]byte, 137)
	for {
		n, err := rd.Read(buf)
		out.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
	}
	if got, want := out.Bytes(), data; !bytes.Equal(got, want) {
		t.Errorf("got %v bytes, want %v bytes", len(got), len(want))
	}
}

func TestReaderSkipsSkippableFrames(t *testing.T) {
	ctx := context.Background()
	data := genMixedEntropyData(testChunk + 100)
	stream := compressToStream(t, data)

	// Splice a skippable frame in front of the compressed stream.
	prefixed := []byte{0x50, 0x2a, 0x4d, 0x18}
	prefixed = binary.LittleEndian.AppendUint32(prefixed, 8)
	prefixed = append(prefixed, "metadata"...)
	prefixed = append(prefixed, stream...)

	decompressed, err := io.ReadAll(azstd.NewReader(ctx, bytes.NewReader(prefixed)))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got, want := decompressed, data; !bytes.Equal(got, want) {
		t.Errorf("got %v bytes, want %v bytes", len(got), len(want))
	}
}

func TestReaderErrors(t *testing.T) {
	ctx := context.Background()

	testError := func(stream []byte, msg string) {
		_, err := io.ReadAll(azstd.NewReader(ctx, bytes.NewReader(stream)))
		if err == nil || !strings.Contains(err.Error(), msg) {
			t.Errorf("%v: expected an error or different error to the one received: %v", msg, err)
		}
	}

	testError([]byte("junk that is long enough to read"), "wrong frame magic")

	stream := compressToStream(t, genMixedEntropyData(testChunk))
	testError(stream[:len(stream)-2], "failed to read")

	// Corrupt a byte near the end of the stream, inside the empty
	// terminal frame that follows the full chunk's frame; reading must
	// fail.
	corrupted := append([]byte{}, stream...)
	corrupted[len(corrupted)-6] ^= 0xa5
	if _, err := io.ReadAll(azstd.NewReader(ctx, bytes.NewReader(corrupted))); err == nil {
		t.Errorf("expected an error decoding a corrupted frame")
	}

	// An empty stream decompresses to nothing.
	decompressed, err := io.ReadAll(azstd.NewReader(ctx, bytes.NewReader(nil)))
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if got, want := len(decompressed), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
