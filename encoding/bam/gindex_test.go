package bam

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	offset0 = 1<<16 | 2
	offset1 = 3<<16 | 4
	offset2 = 5<<16 | 6
	offset3 = 7<<16 | 8
)

func bgzfOffset(offset uint64) bgzf.Offset {
	return bgzf.Offset{File: int64(offset >> 16), Block: uint16(offset & 0xffff)}
}

func TestRecordOffset(t *testing.T) {
	index := make(GIndex, 0)
	index = append(index, GIndexEntry{0, 0, 1, offset0})
	index = append(index, GIndexEntry{0, 5, 0, offset1})
	index = append(index, GIndexEntry{1, 0, 3, offset2})
	index = append(index, GIndexEntry{-1, 0, 0, offset3})

	offset := index.RecordOffset(0, 0, 1)
	assert.Equal(t, bgzfOffset(offset0), offset)

	offset = index.RecordOffset(0, 6, 0)
	assert.Equal(t, bgzfOffset(offset1), offset)

	offset = index.RecordOffset(1, 0, 0)
	assert.Equal(t, bgzfOffset(offset1), offset)

	offset = index.RecordOffset(1, 0, 3)
	assert.Equal(t, bgzfOffset(offset2), offset)

	offset = index.UnmappedOffset()
	assert.Equal(t, bgzfOffset(offset3), offset)
}

func TestUnmapped(t *testing.T) {
	index := GIndex{GIndexEntry{-1, 0, 0, offset0}}
	offset := index.UnmappedOffset()
	assert.Equal(t, bgzfOffset(offset0), offset)
}

func TestWriteGIndex(t *testing.T) {
	header, records := manyRecords(t, 30000)
	_, chr2Records := sortedRecords(t)
	for _, r := range chr2Records[6:] {
		r.Ref = header.Refs()[1]
		r.MateRef = header.Refs()[1]
	}
	records = append(records, chr2Records[6:]...)
	data := encodeBAM(t, header, records)

	// Write a .gbai index and read it back.
	var indexBuf bytes.Buffer
	require.NoError(t, WriteGIndex(&indexBuf, bytes.NewReader(data), 1024, 1))
	index, err := ReadGIndex(&indexBuf)
	require.NoError(t, err)
	require.True(t, len(*index) > 2)
	assert.Equal(t, int32(0), (*index)[0].RefID)
	assert.Equal(t, int32(1), (*index)[len(*index)-1].RefID)

	reader, err := bam.NewReader(bytes.NewReader(data), 1)
	require.NoError(t, err)

	bamPosCounts := make(map[string]int)
	indexedPosCounts := make(map[string]int)

	// Seek to each entry in the index, and check that the record's
	// (ref, pos) is equal to the index entry's (ref, pos).
	for _, e := range *index {
		err := reader.Seek(ToBGZFOffset(e.VOffset))
		require.NoError(t, err)
		record, err := reader.Read()
		require.NoError(t, err)
		assert.Equal(t, int(e.RefID), record.Ref.ID())
		assert.Equal(t, int(e.Pos), record.Pos)
		assert.Equal(t, int(e.Seq), 0)

		// Count how many records have the same (ref, pos).
		indexedPosCounts[fmt.Sprintf("%d:%d", record.Ref.ID(), record.Pos)]++
		for {
			record, err := reader.Read()
			if err == io.EOF {
				break
			}
			assert.NoError(t, err)
			if int(e.RefID) != record.Ref.ID() || int(e.Pos) != record.Pos {
				break
			}
			indexedPosCounts[fmt.Sprintf("%d:%d", record.Ref.ID(), record.Pos)]++
		}
	}
	assert.NoError(t, reader.Close())

	for _, r := range records {
		bamPosCounts[fmt.Sprintf("%d:%d", r.Ref.ID(), r.Pos)]++
	}
	for k, v := range indexedPosCounts {
		assert.Equal(t, bamPosCounts[k], v, "key: %s", k)
	}
}

func TestGIndexBuilderWithWriter(t *testing.T) {
	header, records := manyRecords(t, 30000)
	blocks := blocksOf(t, records...)
	var want GIndex
	for _, par := range []int{1, 3} {
		b := NewGIndexBuilder(context.Background(), "", 1024)
		var buf bytes.Buffer
		w, err := NewBlockWriter(&buf, header, BlockWriterOpts{Level: 1, Parallelism: par, ShardSize: 50000}, b)
		require.NoError(t, err)
		for _, block := range blocks {
			require.NoError(t, w.WriteBlock(block))
		}
		require.NoError(t, w.Close())

		index, err := b.Index()
		require.NoError(t, err)
		require.True(t, len(index) > 1)
		if par == 1 {
			want = index
		} else {
			// Shards start new bgzf members, so offsets differ from the
			// serial run, but the indexed positions are close.
			assert.True(t, len(index) > len(want)/2)
		}

		reader, err := bam.NewReader(bytes.NewReader(buf.Bytes()), 1)
		require.NoError(t, err)
		for _, e := range index {
			require.NoError(t, reader.Seek(ToBGZFOffset(e.VOffset)))
			record, err := reader.Read()
			require.NoError(t, err)
			assert.Equal(t, int(e.Pos), record.Pos)
		}

		// The serialized index reads back.
		var indexBuf bytes.Buffer
		require.NoError(t, b.Write(&indexBuf))
		got, err := ReadGIndex(&indexBuf)
		require.NoError(t, err)
		assert.Equal(t, index, *got)
	}
}

func TestGIndexBuilderUnsorted(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(dir, "out.gbai")

	_, records := sortedRecords(t)
	b := NewGIndexBuilder(context.Background(), path, 1)
	b.ObserveBlock(marshalBlock(t, records[2]), 1<<16)
	b.ObserveBlock(marshalBlock(t, records[0]), 2<<16)
	_, err := b.Index()
	assert.True(t, errors.Is(errors.Precondition, err))
	assert.True(t, errors.Is(errors.Precondition, b.Finalize()))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Going back to an earlier reference is also out of order.
	b = NewGIndexBuilder(context.Background(), path, 1)
	b.ObserveBlock(marshalBlock(t, records[6]), 1<<16)
	b.ObserveBlock(marshalBlock(t, records[0]), 2<<16)
	_, err = b.Index()
	assert.Error(t, err)
}

func TestGIndexBuilderFinalize(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(dir, "out.gbai")

	_, records := sortedRecords(t)
	b := NewGIndexBuilder(context.Background(), path, 1)
	for i, r := range records {
		b.ObserveBlock(marshalBlock(t, r), uint64(i+1)<<16)
	}
	require.NoError(t, b.Finalize())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() // nolint: errcheck
	index, err := ReadGIndex(f)
	require.NoError(t, err)
	// One entry per position, since every record is a member apart.
	assert.Equal(t, len(records), len(*index))
	assert.Equal(t, GIndexEntry{RefID: 1, Pos: 60, VOffset: 7 << 16}, (*index)[6])
}
