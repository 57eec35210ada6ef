package downsample

import (
	"encoding/binary"
	"testing"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFold(t *testing.T) {
	expect.EQ(t, Fold(nil), uint32(0))
	expect.EQ(t, Fold([]byte{0x01, 0x02, 0x03, 0x04}), uint32(0x04030201))
	// The whole digest is folded, not just its first four bytes.
	expect.EQ(t, Fold([]byte{0x01, 0x02, 0x03, 0x04, 0x01, 0x02, 0x03, 0x04}), uint32(0))
	expect.EQ(t, Fold([]byte{0, 0, 0, 0, 0xff, 0, 0, 0, 0, 0x10}), uint32(0x10ff))
	expect.EQ(t, Fold([]byte{0xaa, 0, 0, 0, 0, 0, 0, 0, 0x55}), uint32(0xff))
}

func TestDigestLength(t *testing.T) {
	name := []byte("readA")
	expect.EQ(t, len(Murmur3.Digest(7, name)), 16)
	expect.EQ(t, len(HighwayHash.Digest(7, name)), 32)
	expect.EQ(t, len(Farm.Digest(7, name)), 8)
	expect.EQ(t, len(SeaHash.Digest(7, name)), 8)
}

func TestSeaHashSeedPrefix(t *testing.T) {
	// The seed is hashed as a 4-byte little-endian prefix of the name.
	name := []byte("readA")
	want := seahash.Sum64(append([]byte{7, 0, 0, 0}, name...))
	d := SeaHash.Digest(7, name)
	expect.EQ(t, binary.LittleEndian.Uint64(d), want)
	expect.EQ(t, SeaHash.String(), "seahash")
}

func TestMurmur3EmptyInput(t *testing.T) {
	// MurmurHash3 x64_128 of the empty string with seed 0 is all zeros.
	expect.EQ(t, Murmur3.Digest(0, nil), make([]byte, 16))
	expect.EQ(t, Hash(Murmur3, 0, nil), uint32(0))
}

func TestHashDeterministic(t *testing.T) {
	names := []string{"readA", "readB", "HWI-ST1234:8:1101:1234:5678", ""}
	for _, fn := range []HashFunction{Murmur3, HighwayHash, Farm, SeaHash} {
		for _, name := range names {
			h := Hash(fn, 123, []byte(name))
			for i := 0; i < 3; i++ {
				expect.EQ(t, Hash(fn, 123, []byte(name)), h, "fn=%v name=%q", fn, name)
			}
			expect.EQ(t, h, Fold(fn.Digest(123, []byte(name))))
		}
	}
}

func TestHashSeedMatters(t *testing.T) {
	for _, fn := range []HashFunction{Murmur3, HighwayHash, Farm, SeaHash} {
		distinct := 0
		for seed := uint32(1); seed <= 8; seed++ {
			if Hash(fn, seed, []byte("readA")) != Hash(fn, 0, []byte("readA")) {
				distinct++
			}
		}
		expect.GT(t, distinct, 0, "fn=%v", fn)
	}
}

func TestParseHashFunction(t *testing.T) {
	for _, fn := range []HashFunction{Murmur3, HighwayHash, Farm, SeaHash} {
		got, err := ParseHashFunction(fn.String())
		require.NoError(t, err)
		expect.EQ(t, got, fn)
	}
	got, err := ParseHashFunction("")
	require.NoError(t, err)
	expect.EQ(t, got, Murmur3)

	_, err = ParseHashFunction("md5")
	require.Error(t, err)
	assert.True(t, errors.Is(errors.Invalid, err))
}

func TestTrimMateSuffix(t *testing.T) {
	tests := []struct{ in, want string }{
		{"readA/1", "readA"},
		{"readA/2", "readA"},
		{"readA/3", "readA/3"},
		{"readA", "readA"},
		{"/1", ""},
		{"", ""},
	}
	for _, test := range tests {
		expect.EQ(t, string(TrimMateSuffix([]byte(test.in))), test.want)
	}
}
