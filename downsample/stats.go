package downsample

import (
	"context"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
)

// WriteStats writes s to path as a two-line TSV: a header and one row.
func WriteStats(ctx context.Context, path string, s Stats) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create stats file", path)
	}
	defer func() {
		if err2 := out.Close(ctx); err == nil && err2 != nil {
			err = errors.E(err2, "close stats file", path)
		}
	}()
	w := tsv.NewWriter(out.Writer(ctx))
	w.WriteString("UNITS\tRECORDS\tBYTES\tKEPT_UNITS\tKEPT_RECORDS\tKEPT_FRACTION\tELAPSED_SECONDS")
	if err = w.EndLine(); err != nil {
		return errors.E(err, "write stats file", path)
	}
	w.WriteInt64(int64(s.Units))
	w.WriteInt64(int64(s.Records))
	w.WriteInt64(int64(s.Bytes))
	w.WriteInt64(int64(s.KeptUnits))
	w.WriteInt64(int64(s.KeptRecords))
	w.WriteString(strconv.FormatFloat(s.KeptFraction(), 'f', 6, 64))
	w.WriteString(strconv.FormatFloat(s.Elapsed.Seconds(), 'f', 3, 64))
	if err = w.EndLine(); err != nil {
		return errors.E(err, "write stats file", path)
	}
	if err = w.Flush(); err != nil {
		return errors.E(err, "write stats file", path)
	}
	return nil
}
