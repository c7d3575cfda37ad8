// Command yahs scaffolds a contig assembly against Hi-C link evidence: it
// reads a sequence index and a binary link stream, runs the scaffolding
// pipeline (spec §5-§7), and writes the resulting assembly as AGP.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/shulp2211/yahs/enzyme"
	"github.com/shulp2211/yahs/internal/kinds"
	"github.com/shulp2211/yahs/pipeline"
	"github.com/shulp2211/yahs/sdict"
)

// fileLinkSource reopens the link-record file for every pass the pipeline
// makes over it (intra/inter collection, then each error-break
// detector's re-derivation against that round's output) (pipeline.LinkSource).
type fileLinkSource struct {
	path string
}

func (s fileLinkSource) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := file.Open(ctx, s.path)
	if err != nil {
		return nil, err
	}
	return &closerFunc{r: f.Reader(ctx), close: func() error { return f.Close(ctx) }}, nil
}

type closerFunc struct {
	r     io.Reader
	close func() error
}

func (c *closerFunc) Read(p []byte) (int, error) { return c.r.Read(p) }
func (c *closerFunc) Close() error                { return c.close() }

func usage() {
	fmt.Fprintln(os.Stderr, `
yahs scaffolds a contig assembly using Hi-C link evidence.

Usage:
  yahs [flags] -index <seq.idx> -link <links.bin>

Required flags:
  -index   path to the sequence index (name, length per record)
  -link    path to the binary link-record stream

Examples:

1. Scaffold with the automatic resolution ladder

    yahs -index asm.idx -link asm.links -agp out.agp

2. Hold sequences under 10kb out of scaffolding, and disable contig error-break

    yahs -index asm.idx -link asm.links -ml 10000 -no-contig-ec -agp out.agp
`)
	panic("")
}

func main() {
	var (
		indexPath    string
		linkPath     string
		agpPath      string
		resolutions  string
		ml           uint
		mq           uint
		noContigEC   bool
		noScaffoldEC bool
		noMemCheck   bool
		rssLimit     int64
		enzymeList   string
	)
	flag.Usage = usage
	flag.StringVar(&indexPath, "index", "", "path to the sequence index")
	flag.StringVar(&linkPath, "link", "", "path to the binary link-record stream")
	flag.StringVar(&agpPath, "agp", "out.agp", "path to write the final AGP")
	flag.StringVar(&resolutions, "resolutions", "", "comma-separated resolution ladder, finest first (default: automatic, spec §12)")
	flag.UintVar(&ml, "ml", 0, "minimum sequence length to participate in scaffolding; shorter sequences stay singletons")
	flag.UintVar(&mq, "mq", 0, "minimum mapping quality; links below this are dropped")
	flag.BoolVar(&noContigEC, "no-contig-ec", false, "disable contig-mode error breaking")
	flag.BoolVar(&noScaffoldEC, "no-scaffold-ec", false, "disable scaffold-mode error breaking")
	flag.BoolVar(&noMemCheck, "no-mem-check", false, "disable the per-resolution memory budget gate")
	flag.Int64Var(&rssLimit, "rss-limit", 0, "memory budget in bytes for one round's intra matrices (0: unlimited)")
	flag.StringVar(&enzymeList, "enzyme", "", "comma-separated restriction motif list, N as a wildcard (e.g. GATC,GANTC)")
	flag.Parse()

	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()

	if indexPath == "" || linkPath == "" {
		log.Fatal("both -index and -link are required")
	}

	opts := pipeline.DefaultOpts()
	opts.MinLength = uint32(ml)
	opts.MinMapQ = uint8(mq)
	opts.NoContigEC = noContigEC
	opts.NoScaffoldEC = noScaffoldEC
	opts.NoMemCheck = noMemCheck
	opts.RSSLimit = rssLimit

	if enzymeList != "" {
		if _, err := enzyme.ParseMotifList(enzymeList); err != nil {
			log.Printf("yahs: %v", err)
			os.Exit(kinds.ExitCode(err))
		}
		// Cut-site counting needs the assembly's own sequence bytes, which
		// this pipeline never loads (spec Non-goal: no FASTA I/O); area
		// normalization falls back to bp span (intramat.ComputeAreas).
	}

	if resolutions != "" {
		res, err := parseResolutions(resolutions)
		if err != nil {
			log.Printf("yahs: %v", err)
			os.Exit(kinds.ExitInputError)
		}
		opts.Resolutions = res
	}

	sd, err := loadIndex(ctx, indexPath)
	if err != nil {
		log.Printf("yahs: %v", err)
		os.Exit(kinds.ExitCode(err))
	}
	log.Printf("yahs: loaded %d sequences, %d bp total", sd.Len(), sd.TotalLength())

	start := time.Now()
	result, err := pipeline.Run(ctx, sd, fileLinkSource{path: linkPath}, opts)
	if err != nil {
		log.Printf("yahs: %v", err)
		os.Exit(kinds.ExitCode(err))
	}
	log.Printf("yahs: %d rounds in %s, %d scaffolds, N50 %d", result.RoundsRun, time.Since(start).Round(time.Second), result.Final.Len(), result.Final.N50())

	if err := writeAGP(ctx, agpPath, result.Final); err != nil {
		log.Panicf("write %v: %v", agpPath, err)
	}
	log.Printf("yahs: wrote %s", agpPath)
	log.Printf("All done")
}

func loadIndex(ctx context.Context, path string) (*sdict.SDict, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(kinds.IOError, err)
	}
	once := errors.Once{}
	sd, err := sdict.LoadIndex(f.Reader(ctx))
	once.Set(f.Close(ctx))
	if err != nil {
		return nil, err
	}
	return sd, once.Err()
}

func writeAGP(ctx context.Context, path string, dict *sdict.ADict) error {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out.Writer(ctx))
	once := errors.Once{}
	once.Set(pipeline.WriteAGP(w, dict))
	once.Set(w.Flush())
	once.Set(out.Close(ctx))
	return once.Err()
}

func parseResolutions(s string) ([]uint32, error) {
	parts := strings.Split(s, ",")
	out := make([]uint32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, errors.E(kinds.InputFormat, fmt.Sprintf("resolutions: %v", err))
		}
		out = append(out, uint32(v))
	}
	return out, nil
}
