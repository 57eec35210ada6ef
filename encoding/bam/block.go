package bam

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// A block is one serialized BAM record exactly as it appears in the
// decompressed stream: a little-endian int32 block_size followed by
// block_size bytes of record data.  The functions below read fields out of
// a block without decoding the rest of it.
const (
	// bamFixedBytes is the size of the fixed-length part of a record,
	// excluding block_size.
	bamFixedBytes  = 32
	blockSizeBytes = 4
	blockNameOff   = blockSizeBytes + bamFixedBytes
)

// ValidateBlock checks that b is large enough to hold the fields read by
// the Block* accessors and that its size prefix matches its length.
func ValidateBlock(b []byte) error {
	if len(b) < blockNameOff {
		return errors.E(errors.Integrity, fmt.Sprintf("bam: record too short: %d bytes", len(b)))
	}
	if sz := int(binary.LittleEndian.Uint32(b[0:4])); sz != len(b)-blockSizeBytes {
		return errors.E(errors.Integrity, fmt.Sprintf("bam: record size %d does not match block of %d bytes", sz, len(b)-blockSizeBytes))
	}
	if nameLen := int(b[12]); nameLen < 1 || blockNameOff+nameLen > len(b) {
		return errors.E(errors.Integrity, fmt.Sprintf("bam: bad read name length %d", nameLen))
	}
	return nil
}

// BlockRefID returns the reference ID of the record in b.
func BlockRefID(b []byte) int32 {
	return int32(binary.LittleEndian.Uint32(b[4:8]))
}

// BlockPos returns the 0-based position of the record in b.
func BlockPos(b []byte) int32 {
	return int32(binary.LittleEndian.Uint32(b[8:12]))
}

// BlockFlags returns the SAM flags of the record in b.
func BlockFlags(b []byte) sam.Flags {
	return sam.Flags(binary.LittleEndian.Uint16(b[18:20]))
}

// BlockName returns the read name of the record in b, without the
// terminating NUL.  The result aliases b.
func BlockName(b []byte) []byte {
	name := b[blockNameOff : blockNameOff+int(b[12])]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return name
}

var flagNames = map[string]sam.Flags{
	"PAIRED":        sam.Paired,
	"PROPER_PAIR":   sam.ProperPair,
	"UNMAP":         sam.Unmapped,
	"MUNMAP":        sam.MateUnmapped,
	"REVERSE":       sam.Reverse,
	"MREVERSE":      sam.MateReverse,
	"READ1":         sam.Read1,
	"READ2":         sam.Read2,
	"SECONDARY":     sam.Secondary,
	"QCFAIL":        sam.QCFail,
	"DUP":           sam.Duplicate,
	"SUPPLEMENTARY": sam.Supplementary,
}

// ParseFlags parses a comma-separated list of flag names (PAIRED,
// PROPER_PAIR, UNMAP, MUNMAP, REVERSE, MREVERSE, READ1, READ2, SECONDARY,
// QCFAIL, DUP, SUPPLEMENTARY) or numeric values into a flag mask.
func ParseFlags(s string) (sam.Flags, error) {
	var flags sam.Flags
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if v, ok := flagNames[strings.ToUpper(f)]; ok {
			flags |= v
			continue
		}
		v, err := strconv.ParseUint(f, 0, 16)
		if err != nil {
			return 0, errors.E(errors.Invalid, fmt.Sprintf("unknown alignment flag %q", f))
		}
		flags |= sam.Flags(v)
	}
	return flags, nil
}
