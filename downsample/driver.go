package downsample

import (
	"io"

	"github.com/grailbio/base/errors"
)

type driverState int

const (
	idle driverState = iota
	running
	drained
)

// Driver runs one downsampling pass: it pulls units from a Source, keeps
// or drops each via its Engine, writes kept blocks to a Sink and records
// progress.  A Driver is single-use.
type Driver struct {
	engine   *Engine
	progress *Progress
	state    driverState
}

// NewDriver creates a Driver around a configured engine.
func NewDriver(engine *Engine) *Driver {
	return &Driver{engine: engine, progress: NewProgress()}
}

// Run processes src until it returns io.EOF, then closes sink and runs the
// finalizers in order.  Finalizers only run after a successful close.
//
// A read or write error aborts the run immediately; sink is left as is and
// is not closed.  The caller owns its cleanup: a sink that holds goroutines
// or buffers should be released, e.g. with (*bam.BlockWriter).Abort, which
// stops a parallel writer without writing the terminator.  Every finalizer is attempted even if an earlier one
// fails; the first failure is returned.
func (d *Driver) Run(src Source, sink Sink, finalizers ...Finalizer) error {
	if d.state != idle {
		return errors.E("downsample: driver has already run")
	}
	d.state = running
	for {
		u, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.E(err, "downsample: read unit")
		}
		kept := d.engine.Keep(&u)
		if kept {
			for _, b := range u.Blocks {
				if err := sink.WriteBlock(b); err != nil {
					return errors.E(err, "downsample: write block")
				}
			}
		}
		d.progress.Record(len(u.Blocks), u.Size(), kept)
	}
	d.state = drained
	d.progress.Done()
	if err := sink.Close(); err != nil {
		return errors.E(err, "downsample: close output")
	}
	var e errors.Once
	for _, f := range finalizers {
		if err := f.Finalize(); err != nil {
			e.Set(errors.E(err, "downsample: finalize side channel"))
		}
	}
	return e.Err()
}

// Stats returns the counters accumulated so far.
func (d *Driver) Stats() Stats {
	return d.progress.Stats()
}
