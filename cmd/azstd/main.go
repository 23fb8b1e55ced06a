// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"cloudeng.io/cmdutil"
	"cloudeng.io/cmdutil/subcmd"
	"cloudeng.io/errors"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/cosnicolaou/azstd"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/schollz/progressbar/v2"
	"golang.org/x/crypto/ssh/terminal"
)

const compressedSuffix = ".zst"

type CommonFlags struct {
	Verbose int `subcmd:"verbose,1,'display level, higher values show more diagnostics on stderr'"`
}

type compressFlags struct {
	CommonFlags
	Level       int    `subcmd:"level,6,'initial compression level'"`
	ForceLevel  bool   `subcmd:"force-level,false,'pin the compression level to its initial value, disabling adaptation'"`
	ProgressBar bool   `subcmd:"progress,false,display a progress bar"`
	OutputFile  string `subcmd:"output,,'output file or s3 path; omit to derive <input>.zst, or with no input to write to stdout'"`
	Stdout      bool   `subcmd:"stdout,false,'write all output to stdout'"`
}

type catFlags struct {
	CommonFlags
}

type noFlags struct{}

var cmdSet *subcmd.CommandSet

func init() {
	compressCmd := subcmd.NewCommand("compress",
		subcmd.MustRegisterFlagStruct(&compressFlags{}, nil, nil),
		compress, subcmd.AtLeastNArguments(0))
	compressCmd.Document(`compress files or stdin with an adaptively chosen zstd compression level. Files may be local, on S3 or a URL; each input is compressed to <input>.zst unless -output or -stdout is specified.`)

	catCmd := subcmd.NewCommand("cat",
		subcmd.MustRegisterFlagStruct(&catFlags{}, nil, nil),
		cat, subcmd.AtLeastNArguments(0))
	catCmd.Document(`decompress files or stdin to stdout.`)

	scanCmd := subcmd.NewCommand("scan",
		subcmd.MustRegisterFlagStruct(&noFlags{}, nil, nil),
		scan, subcmd.AtLeastNArguments(1))
	scanCmd.Document(`scan a compressed file listing its frames without decompressing them; the adaptive compressor emits one frame per job.`)

	cmdSet = subcmd.NewCommandSet(compressCmd, catCmd, scanCmd)
	cmdSet.Document(`adaptively compress, decompress and inspect zstd files. Files may be local, on S3 or a URL.`)

	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(
			s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
}

func openFileOrURL(ctx context.Context, name string) (io.Reader, int64, func(context.Context) error, error) {
	if strings.HasPrefix(name, "http") {
		resp, err := http.Get(name)
		if err != nil {
			return nil, 0, nil, err
		}
		return resp.Body,
			resp.ContentLength,
			func(context.Context) error {
				resp.Body.Close()
				return nil
			},
			err
	}
	info, err := file.Stat(ctx, name)
	if err != nil {
		return nil, 0, nil, err
	}
	file, err := file.Open(ctx, name)
	if err != nil {
		return nil, 0, nil, err
	}
	return file.Reader(ctx), info.Size(), file.Close, nil
}

func createFile(ctx context.Context, name string) (io.Writer, func(context.Context) error, error) {
	if len(name) == 0 {
		return os.Stdout,
			func(context.Context) error {
				return nil
			},
			nil
	}
	file, err := file.Create(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	return file.Writer(ctx), file.Close, nil
}

func progressBar(ctx context.Context, wr io.Writer, ch chan azstd.Progress, size int64) {
	bar := progressbar.NewOptions64(size,
		progressbar.OptionSetBytes64(size),
		progressbar.OptionSetWriter(wr),
		progressbar.OptionSetPredictTime(true))
	bar.RenderBlank()
	for {
		select {
		case p, ok := <-ch:
			if !ok {
				fmt.Fprintf(wr, "\n")
				return
			}
			bar.Add(p.In)
			if p.Last {
				fmt.Fprintf(wr, "\n")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func main() {
	cmdSet.MustDispatch(context.Background())
}

func optsFromCompressFlags(cl *compressFlags) []azstd.CompressorOption {
	return []azstd.CompressorOption{
		azstd.Level(cl.Level),
		azstd.ForceLevel(cl.ForceLevel),
		azstd.Verbose(cl.Verbose > 1),
	}
}

// compressInput runs one input through the pipeline, wiring up the
// progress bar when requested.
func compressInput(ctx context.Context, cl *compressFlags, input, output string) error {
	var (
		rd   io.Reader = os.Stdin
		size int64
		err  error
	)
	readerCleanup := func(context.Context) error { return nil }
	if len(input) > 0 {
		rd, size, readerCleanup, err = openFileOrURL(ctx, input)
		if err != nil {
			return err
		}
	}
	defer readerCleanup(ctx)

	wr, writerCleanup, err := createFile(ctx, output)
	if err != nil {
		return err
	}

	opts := optsFromCompressFlags(cl)
	var (
		progressBarWg sync.WaitGroup
		progressBarCh chan azstd.Progress
	)
	isTTY := terminal.IsTerminal(int(os.Stdout.Fd()))
	if cl.ProgressBar && (len(output) > 0 || !isTTY) {
		progressBarCh = make(chan azstd.Progress, azstd.DefaultRingSize)
		opts = append(opts, azstd.SendUpdates(progressBarCh))
		progressBarWg.Add(1)
		go func() {
			progressBar(ctx, os.Stderr, progressBarCh, size)
			progressBarWg.Done()
		}()
	}

	errs := &errors.M{}
	err = azstd.Compress(ctx, wr, rd, opts...)
	errs.Append(err)
	errs.Append(writerCleanup(ctx))

	if progressBarCh != nil {
		close(progressBarCh)
		progressBarWg.Wait()
	}
	return errs.Err()
}

func compress(ctx context.Context, values interface{}, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cl := values.(*compressFlags)
	cmdutil.HandleSignals(cancel, os.Interrupt)

	if len(args) == 0 {
		return compressInput(ctx, cl, "", cl.OutputFile)
	}
	if len(args) > 1 && len(cl.OutputFile) > 0 {
		return fmt.Errorf("multiple input files provided, cannot use a single output file")
	}
	errs := &errors.M{}
	for _, input := range args {
		output := cl.OutputFile
		if len(output) == 0 && !cl.Stdout {
			output = input + compressedSuffix
		}
		errs.Append(compressInput(ctx, cl, input, output))
	}
	return errs.Err()
}

func cat(ctx context.Context, values interface{}, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cl := values.(*catFlags)
	cmdutil.HandleSignals(cancel, os.Interrupt)

	readerOpts := []azstd.ReaderOption{azstd.ReaderVerbose(cl.Verbose > 1)}
	if len(args) == 0 {
		_, err := io.Copy(os.Stdout, azstd.NewReader(ctx, os.Stdin, readerOpts...))
		return err
	}
	for _, input := range args {
		rd, _, readerCleanup, err := openFileOrURL(ctx, input)
		if err != nil {
			return err
		}
		defer readerCleanup(ctx)
		if _, err := io.Copy(os.Stdout, azstd.NewReader(ctx, rd, readerOpts...)); err != nil {
			return err
		}
	}
	return nil
}
