package bam

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// MD5Checksum computes the MD5 digest of the bytes written to it.  Tee
// it onto the output file with io.MultiWriter.  It implements
// downsample.Finalizer: Finalize writes the lowercase hex digest and a
// newline to its path.
type MD5Checksum struct {
	ctx  context.Context
	path string
	h    hash.Hash
}

// NewMD5Checksum creates a checksum that is written to path on Finalize.
func NewMD5Checksum(ctx context.Context, path string) *MD5Checksum {
	return &MD5Checksum{ctx: ctx, path: path, h: md5.New()}
}

// Write implements io.Writer.
func (c *MD5Checksum) Write(p []byte) (int, error) {
	return c.h.Write(p)
}

// Sum returns the hex digest of the bytes written so far.
func (c *MD5Checksum) Sum() string {
	return hex.EncodeToString(c.h.Sum(nil))
}

// Finalize writes the digest to the checksum's path.
func (c *MD5Checksum) Finalize() (err error) {
	out, err := file.Create(c.ctx, c.path)
	if err != nil {
		return errors.E(err, fmt.Sprintf("md5: create %s", c.path))
	}
	defer file.CloseAndReport(c.ctx, out, &err)
	if _, err := io.WriteString(out.Writer(c.ctx), c.Sum()+"\n"); err != nil {
		return errors.E(err, fmt.Sprintf("md5: write %s", c.path))
	}
	return nil
}
