/*Command bio-fastq-downsample keeps a random fraction of the read pairs
  in a pair of FASTQ files.  Inputs ending in .gz are decompressed.

  Usage: bio-fastq-downsample --r1=in_R1.fastq.gz --r2=in_R2.fastq.gz \
           --r1-out=out_R1.fastq --r2-out=out_R2.fastq (--p=0.1 | --count=1000000)
*/
package main

import (
	"context"
	"flag"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/bio-downsample/downsample"
	"github.com/grailbio/bio-downsample/encoding/fastq"
)

var (
	r1Path    = flag.String("r1", "", "R1 FASTQ input")
	r2Path    = flag.String("r2", "", "R2 FASTQ input")
	r1OutPath = flag.String("r1-out", "", "R1 FASTQ output")
	r2OutPath = flag.String("r2-out", "", "R2 FASTQ output")
	p         = flag.Float64("p", 1.0, "Probability of keeping each read pair, in [0,1]")
	count     = flag.Int64("count", -1, "If non-negative, keep about this many read pairs; overrides --p")
	seed      = flag.String("seed", "", "Random seed, a decimal integer. By default, a random seed is chosen")
	hash      = flag.Bool("hash", false, "Select read pairs by a seeded hash of their name")
	hashSeed  = flag.String("hash-seed", "", "Seed for --hash. By default, the first value drawn from --seed")
	statsFile = flag.String("stats", "", "If set, write run statistics to this TSV file")
)

func create(ctx context.Context, path string) (file.File, io.Writer) {
	f, err := file.Create(ctx, path)
	if err != nil {
		log.Fatalf("create %s: %v", path, err)
	}
	return f, f.Writer(ctx)
}

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if *r1Path == "" || *r2Path == "" || *r1OutPath == "" || *r2OutPath == "" {
		log.Fatalf("--r1, --r2, --r1-out and --r2-out are required")
	}
	ctx := vcontext.Background()
	opts := downsample.Opts{
		Probability: *p,
		Seed:        *seed,
		Hash:        *hash,
		HashSeed:    *hashSeed,
	}
	// Reject bad options before creating any output.  With --count the
	// probability is computed later and --p is ignored.
	check := opts
	if *count >= 0 {
		check.Probability = 1
	}
	if err := check.Validate(); err != nil {
		log.Fatalf("%v", err)
	}
	r1File, r1Out := create(ctx, *r1OutPath)
	r2File, r2Out := create(ctx, *r2OutPath)

	var (
		stats downsample.Stats
		err   error
	)
	if *count >= 0 {
		stats, err = fastq.DownsampleToCount(ctx, *count, opts, *r1Path, *r2Path, r1Out, r2Out)
	} else {
		stats, err = fastq.Downsample(ctx, opts, *r1Path, *r2Path, r1Out, r2Out)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
	for _, f := range []file.File{r1File, r2File} {
		if err := f.Close(ctx); err != nil {
			log.Fatalf("close %s: %v", f.Name(), err)
		}
	}
	if *statsFile != "" {
		if err := downsample.WriteStats(ctx, *statsFile, stats); err != nil {
			log.Fatalf("%v", err)
		}
	}
	log.Printf("kept %d of %d read pairs", stats.KeptUnits, stats.Units)
}
