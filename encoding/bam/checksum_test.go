package bam

import (
	"context"
	"io"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestMD5Checksum(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(dir, "out.bam.md5")

	c := NewMD5Checksum(context.Background(), path)
	expect.EQ(t, c.Sum(), "d41d8cd98f00b204e9800998ecf8427e")
	_, err := io.WriteString(c, "hello ")
	assert.NoError(t, err)
	_, err = io.WriteString(c, "world")
	assert.NoError(t, err)
	assert.NoError(t, c.Finalize())

	data, err := ioutil.ReadFile(path)
	assert.NoError(t, err)
	expect.EQ(t, string(data), "5eb63bbbe01eeed093cb22bb8f5acdc3\n")
}

func TestMD5ChecksumOfOutput(t *testing.T) {
	header, records := sortedRecords(t)
	c := NewMD5Checksum(context.Background(), "")
	var out writeCounter
	w, err := NewBlockWriter(io.MultiWriter(&out, c), header, BlockWriterOpts{Level: 1})
	assert.NoError(t, err)
	for _, b := range blocksOf(t, records...) {
		assert.NoError(t, w.WriteBlock(b))
	}
	assert.NoError(t, w.Close())
	expect.GT(t, out.n, 0)
	expect.EQ(t, len(c.Sum()), 32)
}

type writeCounter struct{ n int }

func (w *writeCounter) Write(p []byte) (int, error) {
	w.n += len(p)
	return len(p), nil
}
