// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/cosnicolaou/azstd"
)

func scan(ctx context.Context, values interface{}, args []string) error {
	for _, input := range args {
		rd, size, readerCleanup, err := openFileOrURL(ctx, input)
		if err != nil {
			return err
		}
		defer readerCleanup(ctx)
		fmt.Printf("%v: %v bytes\n", input, size)

		sc := azstd.NewFrameScanner(rd)
		frames, compressed := 0, int64(0)
		for sc.Scan(ctx) {
			frame := sc.Frame()
			fmt.Printf("%4d: %v\n", frames, frame)
			frames++
			compressed += int64(len(frame.Data))
		}
		if err := sc.Err(); err != nil {
			return err
		}
		fmt.Printf("%v frames, %v compressed bytes\n", frames, compressed)
	}
	return nil
}
