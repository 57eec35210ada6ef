package bam

import (
	"io"

	"github.com/grailbio/base/log"
	"github.com/grailbio/bio-downsample/downsample"
	"github.com/grailbio/hts/sam"
)

// DefaultExclude is the set of flags a Collator skips by default: only
// primary alignments are collated.
const DefaultExclude = sam.Secondary | sam.Supplementary

type pendingMate struct {
	block []byte
	flags sam.Flags
	done  bool
}

// Collator groups the records of a BlockReader into downsampling units.
// Unpaired records become Single units as they are read.  Paired
// records are held until their mate arrives, then returned as one
// Paired unit with the first mate's block first.  Mates still waiting
// at the end of input are returned as OrphanFirst or OrphanSecond units
// in the order they were read.  Records with any of the exclude flags
// set are skipped.
//
// Mates are matched on their read name with any "/1" or "/2" suffix
// removed.
type Collator struct {
	r       BlockReader
	exclude sam.Flags
	pending map[string]*pendingMate
	order   []*pendingMate
	nDone   int
	eof     bool
	skipped int
}

// NewCollator creates a Collator over r.
func NewCollator(r BlockReader, exclude sam.Flags) *Collator {
	return &Collator{
		r:       r,
		exclude: exclude,
		pending: make(map[string]*pendingMate),
	}
}

// Next implements downsample.Source.
func (c *Collator) Next() (downsample.Unit, error) {
	for !c.eof {
		b, err := c.r.Read()
		if err == io.EOF {
			c.eof = true
			if c.skipped > 0 {
				log.Debug.Printf("bam: collator skipped %d excluded records", c.skipped)
			}
			break
		}
		if err != nil {
			return downsample.Unit{}, err
		}
		flags := BlockFlags(b)
		if flags&c.exclude != 0 {
			c.skipped++
			continue
		}
		name := downsample.TrimMateSuffix(BlockName(b))
		if flags&sam.Paired == 0 {
			return downsample.Unit{Kind: downsample.Single, Blocks: [][]byte{b}, Name: name}, nil
		}
		key := string(name)
		mate, ok := c.pending[key]
		if !ok || mateIndex(mate.flags) == mateIndex(flags) {
			// A repeated mate displaces the earlier one, which ends up
			// as an orphan.
			m := &pendingMate{block: b, flags: flags}
			c.pending[key] = m
			c.order = append(c.order, m)
			continue
		}
		delete(c.pending, key)
		mate.done = true
		c.nDone++
		c.compact()
		first, second := mate.block, b
		if mateIndex(flags) == 1 {
			first, second = b, mate.block
		}
		return downsample.Unit{Kind: downsample.Paired, Blocks: [][]byte{first, second}, Name: name}, nil
	}
	for len(c.order) > 0 {
		m := c.order[0]
		c.order[0] = nil
		c.order = c.order[1:]
		if m.done {
			continue
		}
		kind := downsample.OrphanSecond
		if mateIndex(m.flags) == 1 {
			kind = downsample.OrphanFirst
		}
		return downsample.Unit{
			Kind:   kind,
			Blocks: [][]byte{m.block},
			Name:   downsample.TrimMateSuffix(BlockName(m.block)),
		}, nil
	}
	return downsample.Unit{}, io.EOF
}

// compact drops matched entries from the order list once they make up
// most of it.
func (c *Collator) compact() {
	if c.nDone < 1024 || c.nDone*2 < len(c.order) {
		return
	}
	live := c.order[:0]
	for _, m := range c.order {
		if !m.done {
			live = append(live, m)
		}
	}
	for i := len(live); i < len(c.order); i++ {
		c.order[i] = nil
	}
	c.order = live
	c.nDone = 0
}

// mateIndex is 1 for a first mate and 2 otherwise.
func mateIndex(flags sam.Flags) int {
	if flags&sam.Read1 != 0 {
		return 1
	}
	return 2
}

// RecordSource returns every record of a BlockReader as a Single unit,
// in input order.  Records with any of the exclude flags set are
// skipped.  It is used in hash mode, where mates need no collation
// because they share a name.
type RecordSource struct {
	r       BlockReader
	exclude sam.Flags
}

// NewRecordSource creates a RecordSource over r.
func NewRecordSource(r BlockReader, exclude sam.Flags) *RecordSource {
	return &RecordSource{r: r, exclude: exclude}
}

// Next implements downsample.Source.
func (s *RecordSource) Next() (downsample.Unit, error) {
	for {
		b, err := s.r.Read()
		if err != nil {
			return downsample.Unit{}, err
		}
		if BlockFlags(b)&s.exclude != 0 {
			continue
		}
		return downsample.Unit{
			Kind:   downsample.Single,
			Blocks: [][]byte{b},
			Name:   downsample.TrimMateSuffix(BlockName(b)),
		}, nil
	}
}
