package downsample

import "bytes"

// Kind is the pairing category of a Unit.
type Kind uint8

const (
	// Single is an unpaired read.
	Single Kind = iota
	// Paired is a mate pair; both blocks are kept or dropped together.
	Paired
	// OrphanFirst is a first mate whose partner was never seen.
	OrphanFirst
	// OrphanSecond is a second mate whose partner was never seen.
	OrphanSecond
)

func (k Kind) String() string {
	switch k {
	case Single:
		return "single"
	case Paired:
		return "paired"
	case OrphanFirst:
		return "orphan1"
	case OrphanSecond:
		return "orphan2"
	}
	return "unknown"
}

// Unit is the item one selection decision is made for.
type Unit struct {
	Kind Kind
	// Blocks holds the serialized records in output order: one block, or
	// two for Paired.
	Blocks [][]byte
	// Name identifies the unit in hash mode.  Mates share a Name.
	Name []byte
}

// Size is the total number of bytes in u.Blocks.
func (u *Unit) Size() uint64 {
	var n uint64
	for _, b := range u.Blocks {
		n += uint64(len(b))
	}
	return n
}

// Source yields units.  Next returns io.EOF once the input is exhausted.
// A Source never returns part of a unit: on error, no blocks of the
// failed unit are returned.
type Source interface {
	Next() (Unit, error)
}

// Sink accepts the blocks of kept units, in order.  Close flushes and
// closes any container framing; it is called exactly once.
type Sink interface {
	WriteBlock(b []byte) error
	Close() error
}

// Finalizer is a side channel that persists its result once the Sink has
// been closed.
type Finalizer interface {
	Finalize() error
}

var (
	mateSuffix1 = []byte("/1")
	mateSuffix2 = []byte("/2")
)

// TrimMateSuffix strips a trailing "/1" or "/2" from a read name so that
// both mates map to the same identifier.
func TrimMateSuffix(name []byte) []byte {
	if bytes.HasSuffix(name, mateSuffix1) || bytes.HasSuffix(name, mateSuffix2) {
		return name[:len(name)-2]
	}
	return name
}
