package fastq

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

// AppendRead appends r to dst as a four-line FASTQ record and returns the
// extended slice.
func AppendRead(dst []byte, r *Read) []byte {
	for _, line := range [...]string{r.ID, r.Seq, r.Unk, r.Qual} {
		dst = append(dst, line...)
		dst = append(dst, '\n')
	}
	return dst
}

// Writer writes FASTQ records through a buffer.  Records are given either
// decoded, to Write, or already encoded by AppendRead, to WriteRecord.
// Errors are sticky.  Call Flush when done.
type Writer struct {
	w   *bufio.Writer
	buf []byte
	n   int
	err error
}

// NewWriter constructs a new FASTQ writer
// that writes reads to the underlying writer w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write writes the read r in FASTQ format.
func (w *Writer) Write(r *Read) error {
	w.buf = AppendRead(w.buf[:0], r)
	return w.WriteRecord(w.buf)
}

// WriteRecord writes one encoded record.  The record must start with '@'
// and end with a newline.
func (w *Writer) WriteRecord(b []byte) error {
	if w.err != nil {
		return w.err
	}
	if len(b) < 2 || b[0] != '@' || b[len(b)-1] != '\n' {
		return errors.Errorf("malformed FASTQ record %d", w.n)
	}
	if _, err := w.w.Write(b); err != nil {
		w.err = errors.Wrapf(err, "writing FASTQ record %d", w.n)
		return w.err
	}
	w.n++
	return nil
}

// Records returns the number of records written so far.
func (w *Writer) Records() int { return w.n }

// Flush writes any buffered records to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if err := w.w.Flush(); err != nil {
		w.err = errors.Wrap(err, "flushing FASTQ output")
	}
	return w.err
}
