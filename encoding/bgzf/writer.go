// Package bgzf writes the block gzipped (.bgzf) format used by .bam
// files.  A .bgzf file is a series of complete gzip members, each
// holding at most 64KB of uncompressed payload, followed by a 28 byte
// terminator which is itself an empty gzip member.  Every member
// carries a "BC" Extra subfield with its compressed size - 1.
//
// See the SAM/BAM spec: https://samtools.github.io/hts-specs/SAMv1.pdf
//
// A file can be produced in pieces: each piece is written by its own
// Writer and ended with CloseWithoutTerminator, except the last one,
// which is ended with Close.  Concatenating the pieces in order yields
// a valid .bgzf file.
package bgzf

import (
	"bytes"
	"fmt"
	"io"

	"github.com/grailbio/base/compress/libdeflate"
	"github.com/grailbio/base/errors"
	"v.io/x/lib/vlog"
)

const (
	// DefaultUncompressedBlockSize matches sambamba and biogo.  It is
	// slightly under 64KB so a poorly compressible block still fits in
	// a member.
	DefaultUncompressedBlockSize = 0x0ff00

	// MaxUncompressedBlockSize is the largest legal uncompressed block.
	MaxUncompressedBlockSize = 0x10000

	// compressedBlockSize bounds the size of one gzip member.
	compressedBlockSize = 0x10000

	// Offsets into the gzip member header.
	xflOffset   = 8
	extraOffset = 12
)

var (
	// bgzfExtra is the gzip Extra field: subfield ids 66, 67, length 2,
	// followed by BSIZE, which is patched for each member.
	bgzfExtra       = [...]byte{66, 67, 2, 0, 0, 0}
	bgzfExtraPrefix = [...]byte{66, 67, 2, 0}

	terminator = []byte{
		0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0x06, 0x00, 0x42, 0x43,
		0x02, 0x00, 0x1b, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
)

// Terminator returns a copy of the .bgzf end-of-file marker.
func Terminator() []byte {
	return append([]byte(nil), terminator...)
}

// Writer compresses a payload into .bgzf members.  The zero value is
// not usable; use NewWriter or NewWriterParams.
type Writer struct {
	level            int
	uncompressedSize int
	xfl              int
	w                io.Writer
	gz               *libdeflate.Writer
	pending          bytes.Buffer
	compressed       bytes.Buffer
	coffset          uint64 // file position of the member being filled
}

// NewWriter returns a .bgzf writer with the given deflate level and the
// default block size.
func NewWriter(w io.Writer, level int) (*Writer, error) {
	return NewWriterParams(w, level, DefaultUncompressedBlockSize, -1)
}

// NewWriterParams returns a .bgzf writer.  uncompressedBlockSize is the
// most payload bytes put into one member.  xfl, if not -1, overrides the
// XFL byte of every member header.
func NewWriterParams(w io.Writer, level, uncompressedBlockSize, xfl int) (*Writer, error) {
	if uncompressedBlockSize < 1 || uncompressedBlockSize > MaxUncompressedBlockSize {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("bgzf: uncompressedBlockSize %d must be in [1,%d]", uncompressedBlockSize, MaxUncompressedBlockSize))
	}
	if xfl != -1 && (xfl < 0 || xfl > 255) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("bgzf: xfl must be -1 or in [0,255], not %d", xfl))
	}
	return &Writer{
		level:            level,
		uncompressedSize: uncompressedBlockSize,
		xfl:              xfl,
		w:                w,
	}, nil
}

// Write appends buf to the payload.  Full blocks are compressed and
// written to the underlying writer as they fill.
func (w *Writer) Write(buf []byte) (int, error) {
	for i := 0; i < len(buf); {
		end := len(buf)
		if limit := i + w.uncompressedSize - w.pending.Len(); limit < end {
			end = limit
		}
		n, _ := w.pending.Write(buf[i:end])
		i += n
		if err := w.flushBlocks(false); err != nil {
			return i, err
		}
	}
	return len(buf), nil
}

// Flush compresses any buffered payload into a member, so that the
// next byte written starts a new member.
func (w *Writer) Flush() error {
	return w.flushBlocks(true)
}

// CloseWithoutTerminator flushes the last member but does not append
// the terminator.
func (w *Writer) CloseWithoutTerminator() error {
	return w.flushBlocks(true)
}

// Close flushes the last member and appends the terminator.
func (w *Writer) Close() error {
	if err := w.CloseWithoutTerminator(); err != nil {
		return err
	}
	_, err := w.w.Write(terminator)
	return err
}

// VOffset returns the virtual offset of the next payload byte:
// the member's file position in the upper 48 bits and the position
// within the member's payload in the lower 16.
func (w *Writer) VOffset() uint64 {
	return w.coffset<<16 | uint64(w.pending.Len())
}

// CompressedOffset returns the number of compressed bytes written so
// far, not counting the terminator.
func (w *Writer) CompressedOffset() uint64 {
	return w.coffset
}

func (w *Writer) newMember() error {
	w.compressed.Reset()
	if w.gz == nil {
		var err error
		if w.gz, err = libdeflate.NewWriterLevel(&w.compressed, w.level); err != nil {
			return err
		}
	} else {
		w.gz.Reset(&w.compressed)
	}
	w.gz.Header.Extra = append(w.gz.Header.Extra[:0], bgzfExtra[:]...)
	w.gz.Header.OS = 0xff // Unknown.
	return nil
}

func (w *Writer) flushBlocks(all bool) error {
	for w.pending.Len() >= w.uncompressedSize || (all && w.pending.Len() > 0) {
		if err := w.newMember(); err != nil {
			return err
		}
		if _, err := w.gz.Write(w.pending.Next(w.uncompressedSize)); err != nil {
			return err
		}
		if err := w.gz.Close(); err != nil {
			return err
		}

		b := w.compressed.Bytes()
		if len(b) < extraOffset+len(bgzfExtra) {
			vlog.Fatalf("bgzf: compressed member too short: %d < %d", len(b), extraOffset+len(bgzfExtra))
		}
		if !bytes.Equal(b[extraOffset:extraOffset+len(bgzfExtraPrefix)], bgzfExtraPrefix[:]) {
			vlog.Fatalf("bgzf: missing BC extra subfield")
		}
		if w.xfl >= 0 {
			b[xflOffset] = byte(w.xfl)
		}
		bsize := len(b) - 1
		if bsize >= compressedBlockSize {
			return errors.E(errors.Invalid, fmt.Sprintf("bgzf: compressed block is too big: %d >= %d", bsize, compressedBlockSize))
		}
		b[extraOffset+4] = byte(bsize)
		b[extraOffset+5] = byte(bsize >> 8)

		if _, err := w.w.Write(b); err != nil {
			return err
		}
		w.coffset += uint64(len(b))
	}
	return nil
}
