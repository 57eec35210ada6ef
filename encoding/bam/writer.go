// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/syncqueue"
	"github.com/grailbio/bio-downsample/encoding/bgzf"
	"github.com/grailbio/hts/sam"
	"golang.org/x/sync/errgroup"
)

// BlockObserver is told about every block a BlockWriter writes, in
// output order, along with the virtual offset at which the block
// starts in the output.  block must not be retained.
type BlockObserver interface {
	ObserveBlock(block []byte, voffset uint64)
}

// DefaultShardSize is the uncompressed size at which a parallel
// BlockWriter hands a shard to a compressor.
const DefaultShardSize = 8 << 20

// BlockWriterOpts configures a BlockWriter.
type BlockWriterOpts struct {
	// Level is the deflate compression level.
	Level int
	// Parallelism is the number of shard compressors.  Values <= 1
	// compress on the calling goroutine.
	Parallelism int
	// ShardSize is the uncompressed size of a shard in parallel mode.
	// Defaults to DefaultShardSize.
	ShardSize int
}

// BlockWriter writes a BAM header followed by raw record blocks.  It
// implements downsample.Sink.
//
// In parallel mode, blocks are grouped into shards.  Each shard is
// compressed by one of Parallelism workers into a self-contained run of
// bgzf members, and the runs are written in shard order.  Observers are
// called from the goroutine that writes the output, once a shard's file
// position is known.
type BlockWriter struct {
	w         io.Writer
	observers []BlockObserver
	closed    bool

	// Serial mode.
	bgzf *bgzf.Writer

	// Parallel mode.
	level     int
	shardSize int
	shard     *shardBuffer
	nextShard int
	work      chan *shardBuffer
	queue     *syncqueue.OrderedQueue
	group     *errgroup.Group
	ctx       context.Context
	failed    errors.Once
	written   uint64 // compressed bytes written, owned by the output goroutine
}

// shardBuffer holds the uncompressed blocks of one shard and, once
// compressed, its bgzf members.
type shardBuffer struct {
	num        int
	raw        bytes.Buffer
	ends       []int    // end offset of each block in raw
	voffsets   []uint64 // shard-relative voffset of each block
	compressed bytes.Buffer
}

// NewBlockWriter writes header to w and returns a writer for the
// records that follow.
func NewBlockWriter(w io.Writer, header *sam.Header, opts BlockWriterOpts, observers ...BlockObserver) (*BlockWriter, error) {
	bw := &BlockWriter{w: w, observers: observers, level: opts.Level}
	hdr, err := bgzf.NewWriter(w, opts.Level)
	if err != nil {
		return nil, err
	}
	if err := header.EncodeBinary(hdr); err != nil {
		return nil, errors.E(err, "bam: encode header")
	}
	// Records start on a fresh member.
	if err := hdr.Flush(); err != nil {
		return nil, errors.E(err, "bam: write header")
	}
	if opts.Parallelism <= 1 {
		bw.bgzf = hdr
		return bw, nil
	}

	bw.written = hdr.CompressedOffset()
	bw.shardSize = opts.ShardSize
	if bw.shardSize <= 0 {
		bw.shardSize = DefaultShardSize
	}
	bw.work = make(chan *shardBuffer)
	bw.queue = syncqueue.NewOrderedQueue(2 * opts.Parallelism)
	bw.group, bw.ctx = errgroup.WithContext(context.Background())
	var compressors sync.WaitGroup
	for i := 0; i < opts.Parallelism; i++ {
		compressors.Add(1)
		bw.group.Go(func() error {
			defer compressors.Done()
			err := bw.compressShards()
			if err != nil {
				bw.failed.Set(err)
				// Unblocks the output goroutine and the other compressors.
				bw.queue.Close(err)
			}
			return err
		})
	}
	bw.group.Go(func() error {
		compressors.Wait()
		if bw.failed.Err() != nil {
			return nil
		}
		return bw.queue.Close(nil)
	})
	bw.group.Go(bw.writeShards)
	log.Debug.Printf("bam: writing with %d compressors", opts.Parallelism)
	return bw, nil
}

// WriteBlock appends one record block to the output.
func (w *BlockWriter) WriteBlock(block []byte) error {
	if w.closed {
		return errors.E(errors.Precondition, "bam: write to closed writer")
	}
	if w.bgzf != nil {
		voffset := w.bgzf.VOffset()
		if _, err := w.bgzf.Write(block); err != nil {
			return err
		}
		for _, o := range w.observers {
			o.ObserveBlock(block, voffset)
		}
		return nil
	}
	if w.shard == nil {
		w.shard = &shardBuffer{num: w.nextShard}
		w.nextShard++
	}
	w.shard.raw.Write(block)
	w.shard.ends = append(w.shard.ends, w.shard.raw.Len())
	if w.shard.raw.Len() >= w.shardSize {
		return w.dispatch()
	}
	return nil
}

func (w *BlockWriter) dispatch() error {
	shard := w.shard
	w.shard = nil
	select {
	case w.work <- shard:
		return nil
	case <-w.ctx.Done():
		w.closed = true
		return w.shutdown()
	}
}

// shutdown stops the compressors, waits for the output goroutine, and
// returns the first error any of them saw.
func (w *BlockWriter) shutdown() error {
	close(w.work)
	return w.group.Wait()
}

func (w *BlockWriter) compressShards() error {
	for shard := range w.work {
		bz, err := bgzf.NewWriter(&shard.compressed, w.level)
		if err != nil {
			return err
		}
		raw := shard.raw.Bytes()
		shard.voffsets = make([]uint64, len(shard.ends))
		start := 0
		for i, end := range shard.ends {
			shard.voffsets[i] = bz.VOffset()
			if _, err := bz.Write(raw[start:end]); err != nil {
				return err
			}
			start = end
		}
		if err := bz.CloseWithoutTerminator(); err != nil {
			return err
		}
		if err := w.queue.Insert(shard.num, shard); err != nil {
			return err
		}
	}
	return nil
}

func (w *BlockWriter) writeShards() error {
	for {
		entry, ok, err := w.queue.Next()
		if err != nil || !ok {
			return err
		}
		shard := entry.(*shardBuffer)
		base := w.written
		n, err := shard.compressed.WriteTo(w.w)
		if err != nil {
			w.queue.Close(err)
			return err
		}
		w.written += uint64(n)
		if len(w.observers) == 0 {
			continue
		}
		raw := shard.raw.Bytes()
		start := 0
		for i, end := range shard.ends {
			rel := shard.voffsets[i]
			voffset := (base+rel>>16)<<16 | rel&0xffff
			for _, o := range w.observers {
				o.ObserveBlock(raw[start:end], voffset)
			}
			start = end
		}
	}
}

var errAborted = errors.E(errors.Canceled, "bam: writer aborted")

// Abort stops the writer without finishing the output: buffered blocks
// are discarded and no terminator is written.  In parallel mode it stops
// the compressors and the output goroutine and waits for them to exit.
// Abort is a no-op on a closed writer.  The output is left truncated; use
// Abort on an error path, after which w must not be used.
func (w *BlockWriter) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	if w.bgzf != nil {
		return
	}
	w.shard = nil
	w.failed.Set(errAborted)
	w.queue.Close(errAborted)
	if err := w.shutdown(); err != nil && err != errAborted {
		log.Debug.Printf("bam: abort: %v", err)
	}
}

// Close flushes the remaining blocks and writes the bgzf terminator.
// It does not close the underlying writer.
func (w *BlockWriter) Close() error {
	if w.closed {
		return errors.E(errors.Precondition, "bam: writer already closed")
	}
	w.closed = true
	if w.bgzf != nil {
		return w.bgzf.Close()
	}
	if w.shard != nil {
		shard := w.shard
		w.shard = nil
		select {
		case w.work <- shard:
		case <-w.ctx.Done():
			return w.shutdown()
		}
	}
	if err := w.shutdown(); err != nil {
		return err
	}
	_, err := w.w.Write(bgzf.Terminator())
	return err
}
