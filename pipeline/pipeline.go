// Package pipeline drives one or more scaffolding rounds end to end: it
// streams links at each resolution, builds and prunes the scaffolding
// graph, extracts paths, runs the error-break detectors, and decides
// whether to continue to the next resolution (spec §5, §6, §7, §12).
package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/shulp2211/yahs/agp"
	"github.com/shulp2211/yahs/enzyme"
	"github.com/shulp2211/yahs/errbreak"
	"github.com/shulp2211/yahs/internal/kinds"
	"github.com/shulp2211/yahs/intermat"
	"github.com/shulp2211/yahs/intramat"
	"github.com/shulp2211/yahs/linkio"
	"github.com/shulp2211/yahs/sdict"
	"github.com/shulp2211/yahs/sgraph"
	"github.com/shulp2211/yahs/spath"
)

// defaultLadder is the resolution ladder rounds are tried at, finest
// (smallest bin) first (spec §12, modeled on the original's resolution
// schedule).
var defaultLadder = []uint32{
	10_000, 20_000, 50_000, 100_000, 200_000, 500_000,
	1_000_000, 2_000_000, 5_000_000, 10_000_000, 20_000_000,
	50_000_000, 100_000_000, 200_000_000, 500_000_000,
}

// DefaultResolutions picks the resolution ladder to use for an assembly
// of the given total size: the starting (finest) resolution is the
// coarsest ladder entry that still tiles genomeSize into more than 200
// bins, and every finer entry is skipped. An assembly no larger than 200
// times the finest entry has no such entry and starts at the finest. The
// ladder always runs on to its coarsest entry (spec §12).
func DefaultResolutions(genomeSize uint64) []uint32 {
	start := 0
	for i, r := range defaultLadder {
		if uint64(r)*200 < genomeSize {
			start = i
		}
	}
	out := append([]uint32(nil), defaultLadder[start:]...)
	return out
}

// Opts configures a pipeline run (spec §6).
type Opts struct {
	Resolutions     []uint32      // explicit ladder; if empty, DefaultResolutions(sd.TotalLength()) is used
	MinLength       uint32        // ml: scaffolds shorter than this never join another scaffold
	MinMapQ         uint8         // mq: links with either endpoint's mapq below this are dropped
	NoContigEC      bool          // no_contig_ec
	NoScaffoldEC    bool          // no_scaffold_ec
	NoMemCheck      bool          // no_mem_check
	RSSLimit        int64         // bytes; <= 0 disables the memory gate
	EnzymeSites     *enzyme.Sites // optional pre-computed cut-site table
	MaxContigECIter int           // bound on the contig error-break iterate-to-zero loop
}

// DefaultOpts returns Opts with the spec's defaults.
func DefaultOpts() Opts {
	return Opts{
		MaxContigECIter: 5,
	}
}

// LinkSource reopens the link stream, since a round may need to read it
// more than once (intra/inter collection, then error-break re-derivation
// against the round's output).
type LinkSource interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Result is the outcome of a pipeline run.
type Result struct {
	Final     *sdict.ADict
	RoundsRun int
}

// Run executes the round loop over sd's sequences, reading links from
// links at each resolution, and returns the final scaffolded assembly
// (spec §5, §7).
func Run(ctx context.Context, sd *sdict.SDict, links LinkSource, opts Opts) (*Result, error) {
	if sd.Len() > kinds.MaxSequences {
		return nil, errors.E(kinds.InputSize, fmt.Sprintf("pipeline: %d input sequences exceeds the limit of %d", sd.Len(), kinds.MaxSequences))
	}

	dict, err := sdict.FromSDict(sd)
	if err != nil {
		return nil, err
	}

	resolutions := opts.Resolutions
	if len(resolutions) == 0 {
		resolutions = DefaultResolutions(sd.TotalLength())
	}

	var (
		roundsRun     int
		memorySkipped bool
	)
	for _, resolution := range resolutions {
		if dict.Len() > kinds.MaxSequences {
			return nil, errors.E(kinds.InputSize, "pipeline: scaffold count exceeds the input sequence limit")
		}
		if !memoryOK(dict, resolution, opts) {
			log.Printf("pipeline: resolution %d skipped, exceeds memory budget", resolution)
			memorySkipped = true
			continue
		}

		newDict, err := runRound(ctx, dict, links, resolution, opts)
		if err != nil {
			if errors.Is(kinds.InsufficientBands, err) {
				log.Printf("pipeline: resolution %d skipped: %v", resolution, err)
				continue
			}
			return nil, err
		}
		dict = newDict
		roundsRun++
		log.Printf("pipeline: round at resolution %d done: %d scaffolds, N50 %d", resolution, dict.Len(), dict.N50())

		if roundsRun > 1 && dict.N50() < uint64(10)*uint64(resolution) {
			log.Printf("pipeline: stopping early at resolution %d, N50 %d below the continuation threshold", resolution, dict.N50())
			break
		}
	}

	if roundsRun == 0 && memorySkipped {
		return nil, errors.E(kinds.NoMemory, "pipeline: no resolution fit within the memory budget")
	}
	return &Result{Final: dict, RoundsRun: roundsRun}, nil
}

// memoryOK estimates the intra-matrix footprint of every scaffold at
// resolution and compares it against opts.RSSLimit before any matrix is
// allocated (spec §5).
func memoryOK(dict *sdict.ADict, resolution uint32, opts Opts) bool {
	if opts.NoMemCheck || opts.RSSLimit <= 0 {
		return true
	}
	var total int64
	for id := int32(0); id < int32(dict.Len()); id++ {
		total += intramat.EstimateBytes(dict.Scaffold(id).TotalLen, resolution)
	}
	return total <= opts.RSSLimit
}

// sinkCollector accumulates one round's translated links, grouped by
// scaffold (intra) and by canonical scaffold pair (inter), implementing
// linkio.Sink.
type sinkCollector struct {
	intra map[int32][][2]uint32
	inter map[intermat.PairKey][]intermat.Link
}

func newSinkCollector() *sinkCollector {
	return &sinkCollector{
		intra: make(map[int32][][2]uint32),
		inter: make(map[intermat.PairKey][]intermat.Link),
	}
}

func (s *sinkCollector) Intra(scaffoldID int32, posA, posB uint32) {
	s.intra[scaffoldID] = append(s.intra[scaffoldID], [2]uint32{posA, posB})
}

func (s *sinkCollector) Inter(scaffoldA, scaffoldB int32, posA, posB uint32) {
	key := intermat.PairKey{A: scaffoldA, B: scaffoldB}
	if scaffoldA > scaffoldB {
		key = intermat.PairKey{A: scaffoldB, B: scaffoldA}
		posA, posB = posB, posA
	}
	s.inter[key] = append(s.inter[key], intermat.Link{PosA: posA, PosB: posB})
}

func readLinks(ctx context.Context, src LinkSource, dict *sdict.ADict, mq uint8) (*sinkCollector, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, errors.E(kinds.IOError, err)
	}
	defer rc.Close()
	sink := newSinkCollector()
	if err := linkio.Read(rc, dict, mq, sink); err != nil {
		return nil, err
	}
	return sink, nil
}

// runRound performs one full scaffolding round at resolution: score,
// build and prune the graph, extract paths, then run whichever
// error-break detectors are enabled (spec §5, §4.8).
func runRound(ctx context.Context, dict *sdict.ADict, links LinkSource, resolution uint32, opts Opts) (*sdict.ADict, error) {
	sink, err := readLinks(ctx, links, dict, opts.MinMapQ)
	if err != nil {
		return nil, err
	}

	matrices, err := intramat.FillAll(dict, resolution, opts.EnzymeSites, sink.intra)
	if err != nil {
		return nil, err
	}
	norm, err := intramat.FitGlobal(matrices)
	if err != nil {
		return nil, err
	}

	lengths := make(map[int32]uint32, dict.Len())
	areas := make(map[int32][]float64, len(matrices))
	for id := int32(0); id < int32(dict.Len()); id++ {
		lengths[id] = dict.Scaffold(id).TotalLen
	}
	for id, m := range matrices {
		areas[id] = m.BinAreas()
	}

	pairStats := intermat.ScoreAll(sink.inter, lengths, areas, norm, intermat.DefaultOpts(resolution))

	// Hold out short scaffolds from joining (spec §6 "ml"): they stay
	// singletons and are implicitly carried through to final output.
	if opts.MinLength > 0 {
		for k := range pairStats {
			if lengths[k.A] < opts.MinLength || lengths[k.B] < opts.MinLength {
				delete(pairStats, k)
			}
		}
	}

	g := sgraph.Build(pairStats, sgraph.DefaultOpts())
	g.Prune(sgraph.DefaultOpts())

	newDict, joins, err := spath.BuildWithJoins(dict, g)
	if err != nil {
		return nil, err
	}

	if !opts.NoScaffoldEC {
		newDict, err = scaffoldErrorBreak(ctx, newDict, joins, links, resolution, opts)
		if err != nil {
			return nil, err
		}
	}
	if !opts.NoContigEC {
		newDict, err = contigErrorBreak(ctx, newDict, links, opts)
		if err != nil {
			return nil, err
		}
	}
	return newDict, nil
}

// breakPlan holds one scaffold's computed cuts and excisions.
type breakPlan struct {
	cuts      []uint32
	excisions [][2]uint32
}

func applyPlans(dict *sdict.ADict, plans map[int32]breakPlan) (*sdict.ADict, bool, error) {
	changed := false
	var defs []sdict.SliceDef
	for id := int32(0); id < int32(dict.Len()); id++ {
		rec := dict.Scaffold(id)
		plan, ok := plans[id]
		if !ok || (len(plan.cuts) == 0 && len(plan.excisions) == 0) {
			defs = append(defs, sdict.SliceDef{Name: rec.Name, SourceScaffold: id, Start: 0, End: rec.TotalLen})
			continue
		}
		changed = true
		spans := errbreak.ApplyBreaks(rec.TotalLen, plan.cuts, plan.excisions)
		for i, span := range spans {
			name := rec.Name
			if len(spans) > 1 {
				name = fmt.Sprintf("%s_ec%d", rec.Name, i+1)
			}
			defs = append(defs, sdict.SliceDef{Name: name, SourceScaffold: id, Start: span.Start, End: span.End})
		}
	}
	newDict, err := sdict.FromSlices(dict, defs)
	if err != nil {
		return nil, false, err
	}
	return newDict, changed, nil
}

// scaffoldErrorBreak scans only the join flanks spath just created, at a
// window width of resolution (spec §4.8 scaffold mode).
func scaffoldErrorBreak(ctx context.Context, dict *sdict.ADict, joins map[string][]uint32, links LinkSource, resolution uint32, opts Opts) (*sdict.ADict, error) {
	if len(joins) == 0 {
		return dict, nil
	}
	sink, err := readLinks(ctx, links, dict, opts.MinMapQ)
	if err != nil {
		return nil, err
	}
	plans := make(map[int32]breakPlan)
	for id := int32(0); id < int32(dict.Len()); id++ {
		rec := dict.Scaffold(id)
		joinPositions, ok := joins[rec.Name]
		if !ok {
			continue
		}
		cuts, excisions := errbreak.DetectScaffold(rec.TotalLen, sink.intra[id], joinPositions, resolution)
		if len(cuts) > 0 || len(excisions) > 0 {
			plans[id] = breakPlan{cuts: cuts, excisions: excisions}
		}
	}
	newDict, _, err := applyPlans(dict, plans)
	return newDict, err
}

// contigErrorBreak scans every scaffold in full for misassembly
// signatures, reapplying and re-scanning until no breaks remain or
// MaxContigECIter is reached (spec §4.8 contig mode, "iterate to zero
// breaks").
func contigErrorBreak(ctx context.Context, dict *sdict.ADict, links LinkSource, opts Opts) (*sdict.ADict, error) {
	maxIter := opts.MaxContigECIter
	if maxIter <= 0 {
		maxIter = 1
	}
	for iter := 0; iter < maxIter; iter++ {
		sink, err := readLinks(ctx, links, dict, opts.MinMapQ)
		if err != nil {
			return nil, err
		}
		lengths := make([]uint32, dict.Len())
		for id := int32(0); id < int32(dict.Len()); id++ {
			lengths[id] = dict.Scaffold(id).TotalLen
		}
		distThres := errbreak.DistThres(lengths)

		plans := make(map[int32]breakPlan)
		for id := int32(0); id < int32(dict.Len()); id++ {
			rec := dict.Scaffold(id)
			cuts, excisions := errbreak.DetectContig(rec.TotalLen, sink.intra[id], distThres)
			if len(cuts) > 0 || len(excisions) > 0 {
				plans[id] = breakPlan{cuts: cuts, excisions: excisions}
			}
		}
		if len(plans) == 0 {
			break
		}
		newDict, changed, err := applyPlans(dict, plans)
		if err != nil {
			return nil, err
		}
		dict = newDict
		if !changed {
			break
		}
	}
	return dict, nil
}

// WriteAGP renders dict as AGP, scaffolds sorted by descending total
// length (spec §6).
func WriteAGP(w io.Writer, dict *sdict.ADict) error {
	records := dict.ToAGP()
	return agp.WriteScaffolds(w, agp.GroupByScaffold(records))
}
