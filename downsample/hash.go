package downsample

import (
	"encoding/binary"
	"fmt"

	"blainsmith.com/go/seahash"
	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/errors"
	"github.com/minio/highwayhash"
	"github.com/spaolacci/murmur3"
)

// HashFunction selects the digest used in hash mode.
type HashFunction int

const (
	// Murmur3 is MurmurHash3 x64_128.  The 16-byte digest is h1 followed by
	// h2, each little-endian.
	Murmur3 HashFunction = iota
	// HighwayHash is HighwayHash-256 keyed by the seed repeated over the
	// 32-byte key.
	HighwayHash
	// Farm is FarmHash64 with the seed as its 64-bit seed.
	Farm
	// SeaHash is SeaHash over the little-endian seed followed by the name.
	SeaHash
)

var hashFunctionNames = map[HashFunction]string{
	Murmur3:     "murmur3",
	HighwayHash: "highwayhash",
	Farm:        "farm",
	SeaHash:     "seahash",
}

func (fn HashFunction) String() string {
	if s, ok := hashFunctionNames[fn]; ok {
		return s
	}
	return fmt.Sprintf("HashFunction(%d)", int(fn))
}

// ParseHashFunction parses the name of a hash function, as printed by
// HashFunction.String.  An empty name means Murmur3.
func ParseHashFunction(name string) (HashFunction, error) {
	if name == "" {
		return Murmur3, nil
	}
	for fn, s := range hashFunctionNames {
		if s == name {
			return fn, nil
		}
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("unknown hash function %q", name))
}

// Digest computes the seeded digest of name.  The result has a fixed length
// for a given function (16, 32, 8 and 8 bytes respectively).
func (fn HashFunction) Digest(seed uint32, name []byte) []byte {
	switch fn {
	case HighwayHash:
		var key [32]byte
		for i := 0; i < len(key); i += 4 {
			binary.LittleEndian.PutUint32(key[i:], seed)
		}
		d := highwayhash.Sum(name, key[:])
		return d[:]
	case Farm:
		d := make([]byte, 8)
		binary.LittleEndian.PutUint64(d, farm.Hash64WithSeed(name, uint64(seed)))
		return d
	case SeaHash:
		buf := make([]byte, 4+len(name))
		binary.LittleEndian.PutUint32(buf, seed)
		copy(buf[4:], name)
		d := make([]byte, 8)
		binary.LittleEndian.PutUint64(d, seahash.Sum64(buf))
		return d
	default:
		h1, h2 := murmur3.Sum128WithSeed(name, seed)
		d := make([]byte, 16)
		binary.LittleEndian.PutUint64(d[0:], h1)
		binary.LittleEndian.PutUint64(d[8:], h2)
		return d
	}
}

// Fold reduces a digest of any length to 32 bits.  Byte i is XORed into
// lane i%4 of the result, so every byte of the digest contributes.
func Fold(digest []byte) uint32 {
	var v uint32
	for i, b := range digest {
		v ^= uint32(b) << (8 * uint(i&3))
	}
	return v
}

// Hash returns the 32-bit selection value for name under the given seed.
func Hash(fn HashFunction, seed uint32, name []byte) uint32 {
	return Fold(fn.Digest(seed, name))
}
