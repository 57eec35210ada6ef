package bam

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/bgzf"
	"github.com/klauspost/compress/gzip"
)

// GIndex is an alternate .bam file index format that uses the .gbai
// file extension.  The .gbai file format contains mappings from
// genomic position to .bam file voffset.  This index format is
// simpler than the legacy style .bai file, but allows a user to seek
// into a .bam file much more efficiently for some genomic positions.
//
// The .gbai format exists because the .bai format can point into a
// .bam file with a minimum genomic spacing of 16 kbp.  The problem
// with this minimum spacing is that if there are many alignments in
// the .bam file within a 16 kbp region, then seeking to a target
// genomic position within the 16 kbp region requires the reader to
// seek to the beginning for the 16 kbp region and then scan through
// bam records until reaching the target genomic position.  This
// scanning requires unnecessary IO and CPU time for reading and
// decompressing records that come before the target position.
//
// The .gbai file format contains a set of mappings from (genomic
// position, and record number at that position) to the voffset in the
// bam file where the record begins.  In typical use, the spacing
// between the genomic positions in the .gbai file are chosen so that
// the spacing between voffsets in the .bam file are uniform and
// relatively small.  This allows a user to divide the .bam file into
// uniform sized shards.  For example, 64 KBytes is a reasonable
// default spacing between voffsets.  This spacing allows a reader to
// seek directly to within 64 KBytes of any target genomic position.
//
// The on disk .gbai format is a header followed by a sequence of
// entries.  The header consists of the magic byte sequence
// {0x47, 0x42, 0x41, 0x49, 0x01, 0xf1, 0x78, 0x5c,
//  0x7b, 0xcb, 0xc1, 0xba, 0x08, 0x23, 0xb1, 0x19}
// which is "GBAI1" followed by 11 random bytes.
//
// Each entry consists of 4 values, each in little-endian byte order:
//   1) int32 RefID to match the .bam file RefIDs.  The unmapped
//      records at the end of the .bam have RefID equal to -1.
//   2) int32 Position to match the .bam file Positions
//   3) uint32 Sequence number of the record at the particular (RefID,
//      Position) pair.  If the record is the first record with this
//      (RefID, Position) pair, then Sequence will be 0.  If the
//      record is the second, then Sequence will be 1, and so on.
//   4) uint64 VOffset of the record in the .bam file as described in
//      the .bam specification.
//
// The .gbai index entries are sorted in ascending order using the key
// (RefID, Position, Sequence) and the .gbai index requires that the
// corresponding .bam file is also sorted by position.
//
// If the bam file contains a bam record for a given RefID, then the
// gindex contains an entry for the first bam record with the given
// RefID.  This implies that the first entry in the gindex points to
// the first record in the bam file.  If there are no bam records with
// RefID R, then there will be no entries in the gindex with RefID R.
//
// The series of index entries is then compressed with gzip before
// writing to the .gbai file.
type GIndex []GIndexEntry

var gbaiMagic = []byte{
	'G', 'B', 'A', 'I', 0x01, 0xf1, 0x78, 0x5c,
	0x7b, 0xcb, 0xc1, 0xba, 0x08, 0x23, 0xb1, 0x19,
}

// GIndexEntry is one entry of the .gbai index.
type GIndexEntry struct {
	RefID   int32
	Pos     int32
	Seq     uint32
	VOffset uint64
}

// RecordOffset returns a voffset into the bam from which, reading
// forward will eventually read records at the target position.  When
// reading from the returned voffset, if the bam record's (refid,
// position) is greater than the target (refid, position), then the
// target position is not present in the bam file.
func (idx *GIndex) RecordOffset(refID, pos int32, seq uint32) bgzf.Offset {
	if len(*idx) < 1 {
		panic("GIndex must have at least one entry")
	}
	target := GIndexEntry{refID, pos, seq, 0}
	x := sort.Search(len(*idx), func(i int) bool {
		return comparePos(&(*idx)[i], &target) >= 0
	})

	if x == len(*idx) {
		return ToBGZFOffset((*idx)[x-1].VOffset)
	}

	// If search returned an entry that is larger than target, then
	// try to back up one entry.
	if comparePos(&(*idx)[x], &target) > 0 {
		if x > 0 {
			x--
		}
	}
	return ToBGZFOffset((*idx)[x].VOffset)
}

// UnmappedOffset returns a voffset at or before the first read in the
// .bam's unmapped section.
func (idx *GIndex) UnmappedOffset() bgzf.Offset {
	return idx.RecordOffset(-1, 0, 0)
}

// ToBGZFOffset takes a uint64 voffset and returns a bgzf.Offset.
func ToBGZFOffset(voffset uint64) bgzf.Offset {
	return bgzf.Offset{File: int64(voffset >> 16), Block: uint16(voffset & 0xffff)}
}

// toVOffset takes a bgzf.Offset and returns a uint64 voffset.
func toVOffset(offset bgzf.Offset) uint64 {
	return uint64(offset.File)<<16 | uint64(offset.Block)
}

// gIndexWriter writes a .gbai index file.
type gIndexWriter struct {
	gz *gzip.Writer
}

func newGIndexWriter(w io.Writer) *gIndexWriter {
	return &gIndexWriter{gz: gzip.NewWriter(w)}
}

func (w *gIndexWriter) writeHeader() error {
	n, err := w.gz.Write(gbaiMagic)
	if err != nil {
		return err
	}
	if n != len(gbaiMagic) {
		return fmt.Errorf("short write to gbai header: %d should be %d", n, len(gbaiMagic))
	}
	return nil
}

func (w *gIndexWriter) append(entry *GIndexEntry) error {
	return binary.Write(w.gz, binary.LittleEndian, entry)
}

func (w *gIndexWriter) close() error {
	return w.gz.Close()
}

func comparePos(x, y *GIndexEntry) int {
	if x.RefID != y.RefID {
		if x.RefID < 0 && y.RefID >= 0 {
			return 1
		} else if x.RefID >= 0 && y.RefID < 0 {
			return -1
		}
		return int(x.RefID) - int(y.RefID)
	}
	if x.Pos > y.Pos {
		return 1
	} else if x.Pos < y.Pos {
		return -1
	}

	if x.Seq > y.Seq {
		return 1
	} else if x.Seq < y.Seq {
		return -1
	}
	return 0
}

func compareFilePos(x, y *GIndexEntry) int {
	return int(int64(x.VOffset) - int64(y.VOffset))
}

// DefaultGIndexInterval is the default spacing, in compressed bytes,
// between .gbai entries.
const DefaultGIndexInterval = 64 * 1024

// GIndexBuilder builds a .gbai index from records as they are written.
// It implements BlockObserver, so it can watch a BlockWriter, and
// downsample.Finalizer, which writes the index to its path.
//
// The index is only valid for position-sorted output.  A record that
// sorts before its predecessor marks the index as failed; Finalize then
// reports the error and writes nothing.
type GIndexBuilder struct {
	ctx          context.Context
	path         string
	byteInterval uint64

	entries        GIndex
	prev           GIndexEntry
	prevFileOffset uint64
	n              int
	err            error
}

// NewGIndexBuilder creates a builder that writes to path on Finalize.
// byteInterval is the approximate compressed distance between entries.
func NewGIndexBuilder(ctx context.Context, path string, byteInterval int) *GIndexBuilder {
	if byteInterval <= 0 {
		byteInterval = DefaultGIndexInterval
	}
	return &GIndexBuilder{ctx: ctx, path: path, byteInterval: uint64(byteInterval)}
}

// ObserveBlock implements BlockObserver.
func (b *GIndexBuilder) ObserveBlock(block []byte, voffset uint64) {
	b.add(BlockRefID(block), BlockPos(block), voffset)
}

func (b *GIndexBuilder) add(refID, pos int32, voffset uint64) {
	if b.err != nil {
		return
	}
	cur := GIndexEntry{RefID: refID, Pos: pos, VOffset: voffset}
	fileOffset := voffset >> 16
	defer func() {
		b.prev = cur
		b.n++
	}()
	// Always add an entry for the first record of a new RefID.
	if b.n == 0 || refID != b.prev.RefID {
		if b.n > 0 && comparePos(&b.prev, &cur) > 0 {
			b.fail(cur)
			return
		}
		b.entries = append(b.entries, cur)
		b.prevFileOffset = fileOffset
		return
	}
	if pos == b.prev.Pos {
		return
	}
	if pos < b.prev.Pos {
		b.fail(cur)
		return
	}
	if fileOffset-b.prevFileOffset >= b.byteInterval {
		b.entries = append(b.entries, cur)
		b.prevFileOffset = fileOffset
	}
}

func (b *GIndexBuilder) fail(cur GIndexEntry) {
	b.err = errors.E(errors.Precondition, fmt.Sprintf(
		"gbai: record %d at (%d, %d) follows (%d, %d); output is not sorted by position",
		b.n, cur.RefID, cur.Pos, b.prev.RefID, b.prev.Pos))
	b.entries = nil
}

// Index returns the entries collected so far, or the error that stopped
// collection.
func (b *GIndexBuilder) Index() (GIndex, error) {
	return b.entries, b.err
}

// Write writes the .gbai file to w.
func (b *GIndexBuilder) Write(w io.Writer) error {
	if b.err != nil {
		return b.err
	}
	gw := newGIndexWriter(w)
	if err := gw.writeHeader(); err != nil {
		return err
	}
	for i := range b.entries {
		if err := gw.append(&b.entries[i]); err != nil {
			return err
		}
	}
	return gw.close()
}

// Finalize writes the index to the builder's path.
func (b *GIndexBuilder) Finalize() (err error) {
	if b.err != nil {
		return b.err
	}
	out, err := file.Create(b.ctx, b.path)
	if err != nil {
		return errors.E(err, fmt.Sprintf("gbai: create %s", b.path))
	}
	defer file.CloseAndReport(b.ctx, out, &err)
	if err := b.Write(out.Writer(b.ctx)); err != nil {
		return errors.E(err, fmt.Sprintf("gbai: write %s", b.path))
	}
	log.Debug.Printf("gbai: wrote %d entries for %d records to %s", len(b.entries), b.n, b.path)
	return nil
}

// WriteGIndex reads a .bam file from r, and writes a .gbai file to w.
// The spacing between voffset file locations will be approximately
// byteInterval, and parallelism controls the .bam file read
// parallelism.  WriteGIndex will not create two index entries for a
// given (RefID, Pos) pair, i.e. Seq will always be zero.  That means
// there will be only one entry for the entire unmapped region.
func WriteGIndex(w io.Writer, r io.Reader, byteInterval, parallelism int) error {
	br, err := newBAMBlockReader(r, parallelism)
	if err != nil {
		return err
	}
	b := NewGIndexBuilder(context.Background(), "", byteInterval)
	for {
		block, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		b.ObserveBlock(block, toVOffset(br.voffset))
	}
	return b.Write(w)
}

// ReadGIndex expects a .gbai file as r, and returns the parsed GIndex
// and any errors encountered while reading and unmarshalling r.
func ReadGIndex(r io.Reader) (gindex *GIndex, err error) {
	var gz *gzip.Reader
	gz, err = gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := gz.Close(); cerr != nil && err != nil {
			err = cerr
		}
	}()

	buf := make([]byte, len(gbaiMagic))
	if _, err = io.ReadFull(gz, buf); err != nil {
		return nil, err
	}

	if !bytes.Equal(gbaiMagic, buf) {
		return nil, fmt.Errorf("Unexpected gbai magic: %v should be %v", buf, gbaiMagic)
	}

	index := make(GIndex, 0)
	for i := 0; ; i++ {
		entry := GIndexEntry{}
		if err = binary.Read(gz, binary.LittleEndian, &entry); err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		if i > 0 {
			prev := index[i-1]
			if comparePos(&prev, &entry) >= 0 {
				return nil, fmt.Errorf("Index positions are out of order %v must be less than %v", prev, entry)
			}
			if compareFilePos(&prev, &entry) >= 0 {
				return nil, fmt.Errorf("Voffsets are out of order %v must be less than %v", prev, entry)
			}
		}

		// It is possible for some reference IDs to be skipped if there are no records in that Ref.
		index = append(index, entry)
	}
	return &index, nil
}
