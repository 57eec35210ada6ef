package downsample

import (
	"time"

	"github.com/grailbio/base/log"
)

// progressShift controls how often Progress logs: once every
// 1<<progressShift records.
const progressShift = 20

// Stats summarizes a run.
type Stats struct {
	// Units is the number of units pulled from the source.
	Units uint64
	// Records is the number of blocks in those units.
	Records uint64
	// Bytes is the total size of those blocks.
	Bytes uint64
	// KeptUnits and KeptRecords count what was written to the sink.
	KeptUnits   uint64
	KeptRecords uint64
	// Elapsed is the wall time since the reporter was created.
	Elapsed time.Duration
}

// KeptFraction is KeptRecords/Records, or 0 before any record is seen.
func (s Stats) KeptFraction() float64 {
	if s.Records == 0 {
		return 0
	}
	return float64(s.KeptRecords) / float64(s.Records)
}

// Progress accumulates Stats and logs a line whenever the record count
// crosses a multiple of 2^20.  It never affects control flow.
type Progress struct {
	stats Stats
	start time.Time

	// now and logf are replaced in tests.
	now  func() time.Time
	logf func(format string, args ...interface{})
}

// NewProgress starts the clock.
func NewProgress() *Progress {
	p := &Progress{now: time.Now, logf: log.Printf}
	p.start = p.now()
	return p
}

// Record adds one unit of the given number of records and bytes.
func (p *Progress) Record(records int, bytes uint64, kept bool) {
	before := p.stats.Records
	p.stats.Units++
	p.stats.Records += uint64(records)
	p.stats.Bytes += bytes
	if kept {
		p.stats.KeptUnits++
		p.stats.KeptRecords += uint64(records)
	}
	if before>>progressShift != p.stats.Records>>progressShift {
		p.report()
	}
}

func (p *Progress) report() {
	s := p.Stats()
	var mbps, rps float64
	if secs := s.Elapsed.Seconds(); secs > 0 {
		mbps = float64(s.Bytes) / float64(1<<20) / secs
		rps = float64(s.Records) / secs
	}
	p.logf("downsample: %dM records, %.2f MB/s, %.0f records/s, kept %d (%.4f)",
		s.Records>>progressShift, mbps, rps, s.KeptRecords, s.KeptFraction())
}

// Done logs the final record count.
func (p *Progress) Done() {
	p.logf("downsample: processed %d records", p.stats.Records)
}

// Stats returns a snapshot of the counters.
func (p *Progress) Stats() Stats {
	s := p.stats
	s.Elapsed = p.now().Sub(p.start)
	return s
}
