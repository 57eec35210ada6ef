package main

// See doc.go for documentation
import (
	"flag"
	"os"
	"runtime"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/bio-downsample/bamdownsample"
)

var (
	input         = flag.String("input", "-", "Input BAM or SAM path, '-' for stdin")
	inputFormat   = flag.String("input-format", "", "Input format, 'bam' or 'sam'. By default, 'sam' if the input ends in .sam and 'bam' otherwise")
	output        = flag.String("output", "-", "Output BAM path, '-' for stdout")
	p             = flag.Float64("p", 1.0, "Probability of keeping each read or pair, in [0,1]")
	seed          = flag.String("seed", "", "Random seed, a decimal integer. By default, a random seed is chosen")
	hash          = flag.Bool("hash", false, "Select reads by a seeded hash of their name instead of collating mates")
	hashSeed      = flag.String("hash-seed", "", "Seed for --hash. By default, the first value drawn from --seed")
	hashFunction  = flag.String("hash-function", "murmur3", "Hash function for --hash: murmur3, highwayhash, farm or seahash")
	exclude       = flag.String("exclude", bamdownsample.DefaultOpts.Exclude, "Comma-separated flags of records to drop before collation; ignored with --hash")
	md5           = flag.Bool("md5", false, "Write the MD5 of the output")
	md5File       = flag.String("md5-file", "", "MD5 path. By default, output + .md5")
	index         = flag.Bool("index", false, "Write a .gbai index of the output; implies --hash")
	indexFile     = flag.String("index-file", "", "Index path. By default, output + .gbai")
	indexInterval = flag.Int("index-interval", bamdownsample.DefaultOpts.IndexInterval, "Approximate compressed bytes between index entries")
	level         = flag.Int("level", bamdownsample.DefaultOpts.Level, "Output compression level")
	inputThreads  = flag.Int("input-threads", runtime.NumCPU(), "Input decompression parallelism")
	outputThreads = flag.Int("output-threads", runtime.NumCPU(), "Number of output compressors")
	statsFile     = flag.String("stats", "", "If set, write run statistics to this TSV file")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		a := flag.Args()
		log.Fatalf("unparsed flags, please check flag syntax: '%s'", strings.Join(a[len(a)-flag.NArg():], " "))
	}

	opts := bamdownsample.DefaultOpts
	opts.Input = *input
	opts.InputFormat = *inputFormat
	opts.Output = *output
	opts.Downsample.Probability = *p
	opts.Downsample.Seed = *seed
	opts.Downsample.Hash = *hash
	opts.Downsample.HashSeed = *hashSeed
	opts.Downsample.HashFunction = *hashFunction
	opts.Exclude = *exclude
	opts.MD5 = *md5
	opts.MD5File = *md5File
	opts.Index = *index
	opts.IndexFile = *indexFile
	opts.IndexInterval = *indexInterval
	opts.Level = *level
	opts.InputThreads = *inputThreads
	opts.OutputThreads = *outputThreads
	opts.StatsFile = *statsFile
	opts.CommandLine = strings.Join(os.Args, " ")

	ctx := vcontext.Background()
	stats, err := bamdownsample.Run(ctx, opts)
	if err != nil {
		log.Fatalf("%v", err)
	}
	log.Printf("kept %d of %d units (%d of %d records)", stats.KeptUnits, stats.Units, stats.KeptRecords, stats.Records)
}
