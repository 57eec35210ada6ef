package fastq

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bio-downsample/downsample"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// PairSource reads read pairs from R1 and R2 FASTQ streams.  Each pair
// is one Paired unit whose blocks are the two FASTQ records, R1 first,
// and whose name is the read ID without "@", anything after the first
// space, or a "/1" or "/2" suffix.
type PairSource struct {
	s      *PairScanner
	r1, r2 Read
}

// NewPairSource creates a PairSource.
func NewPairSource(r1, r2 io.Reader) *PairSource {
	return &PairSource{s: NewPairScanner(r1, r2, All)}
}

// Next implements downsample.Source.
func (p *PairSource) Next() (downsample.Unit, error) {
	if !p.s.Scan(&p.r1, &p.r2) {
		if err := p.s.Err(); err != nil {
			return downsample.Unit{}, errors.Wrapf(err, "reading read pair %d", p.s.Pairs())
		}
		return downsample.Unit{}, io.EOF
	}
	b1, b2 := encodeRead(&p.r1), encodeRead(&p.r2)
	return downsample.Unit{
		Kind:   downsample.Paired,
		Blocks: [][]byte{b1, b2},
		Name:   readName(b1),
	}, nil
}

func encodeRead(r *Read) []byte {
	return AppendRead(make([]byte, 0, len(r.ID)+len(r.Seq)+len(r.Unk)+len(r.Qual)+4), r)
}

// readName extracts the pair identifier from an encoded read.
func readName(block []byte) []byte {
	name := block[1:] // "@"
	if i := bytes.IndexAny(name, " \t\n"); i >= 0 {
		name = name[:i]
	}
	return downsample.TrimMateSuffix(name)
}

// PairSink writes the blocks of Paired units alternately to R1 and R2.
type PairSink struct {
	r1, r2 *Writer
	second bool
}

// NewPairSink creates a PairSink.  Close flushes the outputs but does
// not close them.
func NewPairSink(r1, r2 io.Writer) *PairSink {
	return &PairSink{r1: NewWriter(r1), r2: NewWriter(r2)}
}

// WriteBlock implements downsample.Sink.  b must be one encoded FASTQ
// record.
func (s *PairSink) WriteBlock(b []byte) error {
	w := s.r1
	if s.second {
		w = s.r2
	}
	s.second = !s.second
	return w.WriteRecord(b)
}

// Close implements downsample.Sink.
func (s *PairSink) Close() error {
	if s.second {
		return errors.New("unpaired R1 read at end of output")
	}
	if s.r1.Records() != s.r2.Records() {
		return errors.Errorf("wrote %d R1 reads but %d R2 reads", s.r1.Records(), s.r2.Records())
	}
	if err := s.r1.Flush(); err != nil {
		return errors.Wrap(err, "R1")
	}
	return errors.Wrap(s.r2.Flush(), "R2")
}

// openFASTQ opens path for reading, decompressing it if its name ends
// in ".gz".  The returned function closes everything it opened.
func openFASTQ(ctx context.Context, path string) (io.Reader, func() error, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening %s", path)
	}
	closer := func() error { return f.Close(ctx) }
	r := io.Reader(f.Reader(ctx))
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			_ = closer()
			return nil, nil, errors.Wrapf(err, "reading gzip header of %s", path)
		}
		closer = func() error {
			err := gz.Close()
			if cerr := f.Close(ctx); err == nil {
				err = cerr
			}
			return err
		}
		r = gz
	}
	return r, closer, nil
}

// Downsample writes a selection of the read pairs in r1Path and r2Path
// to r1Out and r2Out, as configured by opts.  It returns the run's
// statistics.
func Downsample(ctx context.Context, opts downsample.Opts, r1Path, r2Path string, r1Out, r2Out io.Writer) (stats downsample.Stats, err error) {
	engine, err := downsample.NewEngine(opts)
	if err != nil {
		return stats, err
	}
	r1, close1, err := openFASTQ(ctx, r1Path)
	if err != nil {
		return stats, err
	}
	defer func() {
		if cerr := close1(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	r2, close2, err := openFASTQ(ctx, r2Path)
	if err != nil {
		return stats, err
	}
	defer func() {
		if cerr := close2(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	d := downsample.NewDriver(engine)
	err = d.Run(NewPairSource(r1, r2), NewPairSink(r1Out, r2Out))
	return d.Stats(), err
}

// DownsampleToCount is Downsample with the keep probability chosen so
// that about count read pairs are kept.  It reads the inputs twice:
// once to count the pairs and once to select them.
func DownsampleToCount(ctx context.Context, count int64, opts downsample.Opts, r1Path, r2Path string, r1Out, r2Out io.Writer) (downsample.Stats, error) {
	if count < 0 {
		return downsample.Stats{}, errors.Errorf("count must be non-negative, not %d", count)
	}
	total, err := countPairs(ctx, r1Path, r2Path)
	if err != nil {
		return downsample.Stats{}, err
	}
	opts.Probability = 1.0
	if total > count {
		opts.Probability = float64(count) / float64(total)
	}
	log.Printf("fastq: %d read pairs, keeping each with probability %v", total, opts.Probability)
	return Downsample(ctx, opts, r1Path, r2Path, r1Out, r2Out)
}

func countPairs(ctx context.Context, r1Path, r2Path string) (n int64, err error) {
	r1, close1, err := openFASTQ(ctx, r1Path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := close1(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	r2, close2, err := openFASTQ(ctx, r2Path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := close2(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	var read1, read2 Read
	s := NewPairScanner(r1, r2, ID)
	for s.Scan(&read1, &read2) {
		n++
	}
	if err := s.Err(); err != nil {
		return 0, errors.Wrapf(err, "counting read pairs in %s, %s", r1Path, r2Path)
	}
	return n, nil
}
