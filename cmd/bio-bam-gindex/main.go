package main

// See doc.go for documentation
import (
	"flag"
	"io"
	"os"
	"runtime"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/bio-downsample/encoding/bam"
)

var (
	shardSize = flag.Int("shard-size", bam.DefaultGIndexInterval, "Approximate bytes per interval in index")
	input     = flag.String("input", "-", "Input BAM path, '-' for stdin")
	output    = flag.String("output", "-", "Output .gbai path, '-' for stdout")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()
	ctx := vcontext.Background()

	r := io.Reader(os.Stdin)
	if *input != "-" {
		in, err := file.Open(ctx, *input)
		if err != nil {
			log.Fatalf("open %s: %v", *input, err)
		}
		defer in.Close(ctx) // nolint: errcheck
		r = in.Reader(ctx)
	}
	w := io.Writer(os.Stdout)
	var out file.File
	if *output != "-" {
		var err error
		if out, err = file.Create(ctx, *output); err != nil {
			log.Fatalf("create %s: %v", *output, err)
		}
		w = out.Writer(ctx)
	}
	if err := bam.WriteGIndex(w, r, *shardSize, runtime.NumCPU()); err != nil {
		log.Fatalf("%v", err)
	}
	if out != nil {
		if err := out.Close(ctx); err != nil {
			log.Fatalf("close %s: %v", *output, err)
		}
	}
}
