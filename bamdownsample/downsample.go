// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bamdownsample

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bio-downsample/downsample"
	"github.com/grailbio/bio-downsample/encoding/bam"
)

// ProgramID names the @PG line added to the output header.
const ProgramID = "bio-bam-downsample"

// Opts configures Run.
type Opts struct {
	// Input is the BAM or SAM path.  Empty or "-" reads stdin.
	Input string
	// InputFormat is "bam" or "sam".  Empty picks "sam" for paths ending
	// in ".sam" and "bam" otherwise.
	InputFormat string
	// Output is the BAM path.  Empty or "-" writes stdout.
	Output string

	// Downsample configures the selection engine.
	Downsample downsample.Opts

	// Exclude lists the flags of records dropped before collation, as
	// accepted by bam.ParseFlags.  It has no effect in hash mode.
	Exclude string

	// MD5 enables the checksum of the output.  MD5File defaults to
	// Output + ".md5".
	MD5     bool
	MD5File string

	// Index enables the .gbai index of the output, and forces hash mode.
	// IndexFile defaults to Output + ".gbai".
	Index         bool
	IndexFile     string
	IndexInterval int

	// Level is the output compression level.
	Level int
	// InputThreads is the bgzf decompression parallelism.
	InputThreads int
	// OutputThreads is the number of output compressors.
	OutputThreads int

	// StatsFile, if set, receives a TSV of run statistics.
	StatsFile string

	// CommandLine and Version go into the @PG line.
	CommandLine string
	Version     string
}

// DefaultOpts are the defaults of the bio-bam-downsample command.
var DefaultOpts = Opts{
	Downsample:    downsample.DefaultOpts,
	Exclude:       "SECONDARY,SUPPLEMENTARY",
	IndexInterval: bam.DefaultGIndexInterval,
	Level:         6,
	InputThreads:  1,
	OutputThreads: 1,
	Version:       "1.0",
}

func isStdio(path string) bool {
	return path == "" || path == "-"
}

// sidePath returns the path of a side-channel file, or "" if it cannot
// be derived because the output goes to stdout.
func sidePath(explicit, output, suffix string) string {
	if explicit != "" {
		return explicit
	}
	if isStdio(output) {
		return ""
	}
	return output + suffix
}

func openInput(ctx context.Context, opts *Opts) (bam.BlockReader, func() error, error) {
	format := strings.ToLower(opts.InputFormat)
	if format == "" {
		format = "bam"
		if strings.HasSuffix(opts.Input, ".sam") {
			format = "sam"
		}
	}
	if format != "bam" && format != "sam" {
		return nil, nil, errors.E(errors.Invalid, fmt.Sprintf("unknown input format %q, want bam or sam", opts.InputFormat))
	}
	var (
		r      io.Reader = os.Stdin
		closer           = func() error { return nil }
	)
	if !isStdio(opts.Input) {
		f, err := file.Open(ctx, opts.Input)
		if err != nil {
			return nil, nil, errors.E(err, "open input", opts.Input)
		}
		r = f.Reader(ctx)
		closer = func() error { return f.Close(ctx) }
	}
	var (
		br  bam.BlockReader
		err error
	)
	if format == "sam" {
		br, err = bam.NewSAMBlockReader(r)
	} else {
		br, err = bam.NewBlockReader(r, opts.InputThreads)
	}
	if err != nil {
		_ = closer()
		return nil, nil, errors.E(err, "read input header", opts.Input)
	}
	return br, closer, nil
}

// Run downsamples opts.Input into opts.Output and writes the requested
// side channels.  It returns the run's statistics.
func Run(ctx context.Context, opts Opts) (stats downsample.Stats, err error) {
	if opts.Index && !opts.Downsample.Hash {
		log.Printf("warning: the index needs the input order, switching to hash mode")
		opts.Downsample.Hash = true
	}
	exclude, err := bam.ParseFlags(opts.Exclude)
	if err != nil {
		return stats, err
	}
	engine, err := downsample.NewEngine(opts.Downsample)
	if err != nil {
		return stats, err
	}

	in, closeIn, err := openInput(ctx, &opts)
	if err != nil {
		return stats, err
	}
	defer func() {
		if cerr := closeIn(); err == nil && cerr != nil {
			err = errors.E(cerr, "close input", opts.Input)
		}
	}()

	header := in.Header()
	var src downsample.Source
	if engine.HashMode() {
		src = bam.NewRecordSource(in, 0)
	} else {
		src = bam.NewCollator(in, exclude)
		bam.MarkUnsorted(header)
	}
	if err := bam.AddProgramLine(header, ProgramID, opts.CommandLine, opts.Version); err != nil {
		return stats, errors.E(err, "add @PG line")
	}

	var out io.Writer = os.Stdout
	if !isStdio(opts.Output) {
		var f file.File
		if f, err = file.Create(ctx, opts.Output); err != nil {
			return stats, errors.E(err, "create output", opts.Output)
		}
		defer file.CloseAndReport(ctx, f, &err)
		out = f.Writer(ctx)
	}

	var finalizers []downsample.Finalizer
	if opts.MD5 {
		if path := sidePath(opts.MD5File, opts.Output, ".md5"); path == "" {
			log.Printf("warning: no md5 file given for stdout output, skipping checksum")
		} else {
			md5 := bam.NewMD5Checksum(ctx, path)
			out = io.MultiWriter(out, md5)
			finalizers = append(finalizers, md5)
		}
	}
	var observers []bam.BlockObserver
	if opts.Index {
		if path := sidePath(opts.IndexFile, opts.Output, ".gbai"); path == "" {
			log.Printf("warning: no index file given for stdout output, skipping index")
		} else {
			gindex := bam.NewGIndexBuilder(ctx, path, opts.IndexInterval)
			observers = append(observers, gindex)
			finalizers = append(finalizers, gindex)
		}
	}

	w, err := bam.NewBlockWriter(out, header, bam.BlockWriterOpts{
		Level:       opts.Level,
		Parallelism: opts.OutputThreads,
	}, observers...)
	if err != nil {
		return stats, errors.E(err, "write output header", opts.Output)
	}
	d := downsample.NewDriver(engine)
	if err := d.Run(src, w, finalizers...); err != nil {
		w.Abort()
		return d.Stats(), err
	}
	stats = d.Stats()
	if opts.StatsFile != "" {
		if err := downsample.WriteStats(ctx, opts.StatsFile, stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}
