package bam

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/sam"
)

const maxRecordSize = 0xffffff

// BlockReader reads the records of a BAM stream as raw blocks.  Use
// NewBlockReader to create one.
type BlockReader interface {
	// Header returns the header of the stream.
	Header() *sam.Header
	// Read returns the next block, or io.EOF at the end of the stream.
	// Each call returns a newly allocated slice.
	Read() ([]byte, error)
}

type bamBlockReader struct {
	bgzf    *bgzf.Reader
	header  *sam.Header
	sizeBuf [blockSizeBytes]byte
	voffset bgzf.Offset // start of the last block read
	n       int
}

// NewBlockReader reads the BAM header from r and returns a reader for the
// records that follow.  parallelism is passed to the bgzf decompressor.
func NewBlockReader(r io.Reader, parallelism int) (BlockReader, error) {
	return newBAMBlockReader(r, parallelism)
}

func newBAMBlockReader(r io.Reader, parallelism int) (*bamBlockReader, error) {
	bz, err := bgzf.NewReader(r, parallelism)
	if err != nil {
		return nil, errors.E(err, "bam: open bgzf stream")
	}
	header, err := sam.NewHeader(nil, nil)
	if err != nil {
		return nil, err
	}
	if err := header.DecodeBinary(bz); err != nil {
		return nil, errors.E(err, "bam: decode header")
	}
	return &bamBlockReader{bgzf: bz, header: header}, nil
}

func (r *bamBlockReader) Header() *sam.Header { return r.header }

func (r *bamBlockReader) Read() ([]byte, error) {
	if _, err := io.ReadFull(r.bgzf, r.sizeBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.E(err, fmt.Sprintf("bam: read size of record %d", r.n))
	}
	r.voffset = r.bgzf.LastChunk().Begin
	sz := int(binary.LittleEndian.Uint32(r.sizeBuf[:]))
	if sz > maxRecordSize {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("bam: record %d exceeds max size: %d", r.n, sz))
	}
	b := make([]byte, blockSizeBytes+sz)
	copy(b, r.sizeBuf[:])
	if _, err := io.ReadFull(r.bgzf, b[blockSizeBytes:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.E(err, fmt.Sprintf("bam: read record %d", r.n))
	}
	if err := ValidateBlock(b); err != nil {
		return nil, errors.E(err, fmt.Sprintf("record %d", r.n))
	}
	r.n++
	return b, nil
}

// samBlockReader reads SAM text and serializes each record into a block.
type samBlockReader struct {
	r   *sam.Reader
	buf bytes.Buffer
	n   int
}

// NewSAMBlockReader reads the SAM header from r and returns a reader that
// yields the following records as BAM blocks.
func NewSAMBlockReader(r io.Reader) (BlockReader, error) {
	sr, err := sam.NewReader(r)
	if err != nil {
		return nil, errors.E(err, "sam: read header")
	}
	return &samBlockReader{r: sr}, nil
}

func (r *samBlockReader) Header() *sam.Header { return r.r.Header() }

func (r *samBlockReader) Read() ([]byte, error) {
	rec, err := r.r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.E(err, fmt.Sprintf("sam: read record %d", r.n))
	}
	r.buf.Reset()
	if err := Marshal(rec, &r.buf); err != nil {
		return nil, errors.E(err, fmt.Sprintf("sam: encode record %d (%s)", r.n, rec.Name))
	}
	r.n++
	return append([]byte(nil), r.buf.Bytes()...), nil
}
