package bam

import (
	"encoding/binary"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/expect"
)

func TestParseFlags(t *testing.T) {
	f, err := ParseFlags("SECONDARY,SUPPLEMENTARY")
	expect.NoError(t, err)
	expect.EQ(t, f, DefaultExclude)

	f, err = ParseFlags(" dup , 0x4,512")
	expect.NoError(t, err)
	expect.EQ(t, f, sam.Duplicate|sam.Unmapped|sam.QCFail)

	f, err = ParseFlags("")
	expect.NoError(t, err)
	expect.EQ(t, f, sam.Flags(0))

	_, err = ParseFlags("SECONDARY,BOGUS")
	expect.True(t, errors.Is(errors.Invalid, err))
}

func TestValidateBlock(t *testing.T) {
	_, records := sortedRecords(t)
	b := marshalBlock(t, records[0])
	expect.NoError(t, ValidateBlock(b))

	err := ValidateBlock(b[:20])
	expect.True(t, errors.Is(errors.Integrity, err))

	err = ValidateBlock(b[:len(b)-1])
	expect.True(t, errors.Is(errors.Integrity, err))

	bad := append([]byte(nil), b...)
	bad[12] = 0
	expect.True(t, errors.Is(errors.Integrity, ValidateBlock(bad)))

	bad = append([]byte(nil), b...)
	bad[12] = 200
	binary.LittleEndian.PutUint32(bad[0:4], uint32(len(bad)-4))
	expect.True(t, errors.Is(errors.Integrity, ValidateBlock(bad)))
}
