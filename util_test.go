// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package azstd_test

import (
	"fmt"
	"math/rand"
)

// Seed for the pseudorandom generator, shared by all tests so that
// failures reproduce.
const fixedRandSeed = 0x1234

// genPredictableRandomData generates random data starting with a fixed
// known seed.
func genPredictableRandomData(size int) []byte {
	gen := rand.New(rand.NewSource(fixedRandSeed))
	out := make([]byte, size)
	for i := range out {
		out[i] = byte(gen.Intn(256))
	}
	return out
}

// genMixedEntropyData alternates compressible text with random bytes so
// that compression ratios and levels have something to react to.
func genMixedEntropyData(size int) []byte {
	gen := rand.New(rand.NewSource(fixedRandSeed))
	out := make([]byte, 0, size)
	block := 0
	for len(out) < size {
		if block%2 == 0 {
			for i := 0; i < 64 && len(out) < size; i++ {
				out = append(out, []byte(fmt.Sprintf("the quick brown fox %v jumps over the lazy dog %v\n", block, i))...)
			}
		} else {
			n := 4096
			if len(out)+n > size {
				n = size - len(out)
			}
			chunk := make([]byte, n)
			for i := range chunk {
				chunk[i] = byte(gen.Intn(256))
			}
			out = append(out, chunk...)
		}
		block++
	}
	return out[:size]
}
