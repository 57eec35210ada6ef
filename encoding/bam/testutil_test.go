package bam

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/require"
)

var (
	r1F = sam.Paired | sam.Read1
	r2R = sam.Paired | sam.Read2 | sam.Reverse
)

func newTestHeader(t *testing.T) (*sam.Header, *sam.Reference, *sam.Reference) {
	chr1, err := sam.NewReference("chr1", "", "", 1000000, nil, nil)
	require.NoError(t, err)
	chr2, err := sam.NewReference("chr2", "", "", 2000000, nil, nil)
	require.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{chr1, chr2})
	require.NoError(t, err)
	return header, chr1, chr2
}

func testCigar() sam.Cigar {
	return []sam.CigarOp{
		sam.NewCigarOp(sam.CigarSoftClipped, 1),
		sam.NewCigarOp(sam.CigarMatch, 8),
		sam.NewCigarOp(sam.CigarSoftClipped, 1),
	}
}

// sortedRecords returns position-sorted pairs on two references.
func sortedRecords(t *testing.T) (*sam.Header, []*sam.Record) {
	header, chr1, chr2 := newTestHeader(t)
	cigar := testCigar()
	return header, []*sam.Record{
		{Name: "A", Ref: chr1, Pos: 0, Flags: r1F, MatePos: 10, MateRef: chr1, Cigar: cigar},
		{Name: "A", Ref: chr1, Pos: 10, Flags: r2R, MatePos: 0, MateRef: chr1, Cigar: cigar},
		{Name: "B", Ref: chr1, Pos: 20, Flags: r1F, MatePos: 30, MateRef: chr1, Cigar: cigar},
		{Name: "B", Ref: chr1, Pos: 30, Flags: r2R, MatePos: 20, MateRef: chr1, Cigar: cigar},
		{Name: "C", Ref: chr1, Pos: 40, Flags: r1F, MatePos: 50, MateRef: chr1, Cigar: cigar},
		{Name: "C", Ref: chr1, Pos: 50, Flags: r2R, MatePos: 40, MateRef: chr1, Cigar: cigar},
		{Name: "D", Ref: chr2, Pos: 60, Flags: r1F, MatePos: 70, MateRef: chr2, Cigar: cigar},
		{Name: "D", Ref: chr2, Pos: 70, Flags: r2R, MatePos: 60, MateRef: chr2, Cigar: cigar},
		{Name: "E", Ref: chr2, Pos: 80, Flags: r1F, MatePos: 90, MateRef: chr2, Cigar: cigar},
		{Name: "E", Ref: chr2, Pos: 90, Flags: r2R, MatePos: 80, MateRef: chr2, Cigar: cigar},
	}
}

// manyRecords returns n sorted single-end records on chr1.
func manyRecords(t *testing.T, n int) (*sam.Header, []*sam.Record) {
	header, chr1, _ := newTestHeader(t)
	records := make([]*sam.Record, n)
	for i := range records {
		records[i] = &sam.Record{
			Name:    fmt.Sprintf("read%06d", i),
			Ref:     chr1,
			Pos:     i / 3,
			MapQ:    60,
			Cigar:   testCigar(),
			MatePos: -1,
		}
	}
	return header, records
}

// encodeBAM writes records to an in-memory BAM with the hts writer.
func encodeBAM(t *testing.T, header *sam.Header, records []*sam.Record) []byte {
	var buf bytes.Buffer
	w, err := bam.NewWriter(&buf, header, 1)
	require.NoError(t, err)
	for _, r := range records {
		require.NoError(t, w.Write(r))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// decodeBAM reads every record of an in-memory BAM with the hts reader.
func decodeBAM(t *testing.T, data []byte) (*sam.Header, []*sam.Record) {
	r, err := bam.NewReader(bytes.NewReader(data), 1)
	require.NoError(t, err)
	var records []*sam.Record
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		records = append(records, rec)
	}
	require.NoError(t, r.Close())
	return r.Header(), records
}

func marshalBlock(t *testing.T, r *sam.Record) []byte {
	var buf bytes.Buffer
	require.NoError(t, Marshal(r, &buf))
	return buf.Bytes()
}

func recordTexts(t *testing.T, records []*sam.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		b, err := r.MarshalText()
		require.NoError(t, err)
		out[i] = string(b)
	}
	return out
}

// sliceBlockReader serves prebuilt blocks.
type sliceBlockReader struct {
	header *sam.Header
	blocks [][]byte
	err    error // returned instead of io.EOF, if set
}

func (r *sliceBlockReader) Header() *sam.Header { return r.header }

func (r *sliceBlockReader) Read() ([]byte, error) {
	if len(r.blocks) == 0 {
		if r.err != nil {
			return nil, r.err
		}
		return nil, io.EOF
	}
	b := r.blocks[0]
	r.blocks = r.blocks[1:]
	return b, nil
}

func blocksOf(t *testing.T, records ...*sam.Record) [][]byte {
	blocks := make([][]byte, len(records))
	for i, r := range records {
		blocks[i] = marshalBlock(t, r)
	}
	return blocks
}
