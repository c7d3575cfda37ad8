// Package errbreak implements the link-depth based error-break detector,
// in its two modes: contig (scans a whole scaffold for misassembly
// signatures) and scaffold (restricted to the flanks of joins made in the
// current round) (spec §4.8).
package errbreak

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Tuning constants, carried over unrevised from the algorithm this
// detector is modeled on (spec §9 Open Question: the dist_thres floor is
// preserved verbatim).
const (
	MinWindow       = 1_000_000 // floor for the adaptive dist_thres
	Resolution      = 10_000    // default scaffold-mode flank scan resolution
	Bin             = 1_000     // link-depth profile bin width
	MergeThresh     = 10_000    // candidate breakpoints this close are merged
	DualBreakThresh = 50_000    // merged breakpoints this close are treated as one excision
	MinFrac         = 0.8       // quantile of scaffold lengths used to derive dist_thres
	FoldThresh      = 0.2       // a bin below this fraction of the scaffold-wide median is a candidate break
)

// DistThres computes the adaptive breakpoint search window from the
// current assembly's scaffold-length distribution: the MinFrac quantile
// of lengths, floored at MinWindow (spec §4.8, §9).
func DistThres(scaffoldLengths []uint32) uint32 {
	if len(scaffoldLengths) == 0 {
		return MinWindow
	}
	vals := make([]float64, len(scaffoldLengths))
	for i, l := range scaffoldLengths {
		vals[i] = float64(l)
	}
	sort.Float64s(vals)
	q := stat.Quantile(MinFrac, stat.Empirical, vals, nil)
	if q < MinWindow {
		q = MinWindow
	}
	return uint32(q)
}

func buildDepth(length uint32, links [][2]uint32) []float64 {
	nbins := int((length + Bin - 1) / Bin)
	if nbins == 0 {
		nbins = 1
	}
	depth := make([]float64, nbins)
	for _, link := range links {
		a, b := link[0], link[1]
		if a > b {
			a, b = b, a
		}
		startBin := int(a / Bin)
		endBin := int(b / Bin)
		if endBin >= nbins {
			endBin = nbins - 1
		}
		for i := startBin; i <= endBin; i++ {
			depth[i]++
		}
	}
	return depth
}

func movingAverage(xs []float64, window int) []float64 {
	n := len(xs)
	out := make([]float64, n)
	half := window / 2
	for i := range xs {
		lo, hi := i-half, i+half
		if lo < 0 {
			lo = 0
		}
		if hi >= n {
			hi = n - 1
		}
		var sum float64
		for k := lo; k <= hi; k++ {
			sum += xs[k]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}

func medianOf(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// mergeCandidates clusters candidate breakpoints within thresh of their
// neighbor, replacing each cluster with its mean position (spec §4.8
// "merge candidates within ec_merge_thresh").
func mergeCandidates(candidates []uint32, thresh uint32) []uint32 {
	if len(candidates) == 0 {
		return nil
	}
	sorted := append([]uint32(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var merged []uint32
	sum, count := uint64(sorted[0]), uint64(1)
	last := sorted[0]
	for _, c := range sorted[1:] {
		if c-last <= thresh {
			sum += uint64(c)
			count++
		} else {
			merged = append(merged, uint32(sum/count))
			sum, count = uint64(c), 1
		}
		last = c
	}
	merged = append(merged, uint32(sum/count))
	return merged
}

// Plan splits merged breakpoints into single cuts and paired excisions:
// two breakpoints within DualBreakThresh of each other are treated as
// bracketing one misassembled region to excise outright, rather than two
// independent splits (spec §4.8 "dual-break detection").
func Plan(breaks []uint32) (cuts []uint32, excisions [][2]uint32) {
	sorted := append([]uint32(nil), breaks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i := 0; i < len(sorted); i++ {
		if i+1 < len(sorted) && sorted[i+1]-sorted[i] <= DualBreakThresh {
			excisions = append(excisions, [2]uint32{sorted[i], sorted[i+1]})
			i++
			continue
		}
		cuts = append(cuts, sorted[i])
	}
	return cuts, excisions
}

func rawCandidates(length uint32, links [][2]uint32, distThres uint32) []uint32 {
	depth := buildDepth(length, links)
	smoothed := movingAverage(depth, 5)
	median := medianOf(smoothed)
	if median == 0 {
		return nil
	}
	var candidates []uint32
	for i, d := range smoothed {
		if d >= FoldThresh*median {
			continue
		}
		pos := uint32(i) * Bin
		if pos < distThres || (length > distThres && pos > length-distThres) {
			continue
		}
		candidates = append(candidates, pos)
	}
	return candidates
}

// DetectContig scans the whole scaffold for misassembly signatures:
// positions where smoothed link depth falls below FoldThresh of the
// median smoothed depth over the whole scaffold (the median is not taken
// over a local window), away from the scaffold ends by distThres (spec §4.8
// contig mode). Callers iterate: apply the resulting plan, rebuild links
// for the resulting sub-scaffolds, and call DetectContig again until it
// returns no breaks (spec §4.8 "iterate to zero breaks").
func DetectContig(length uint32, links [][2]uint32, distThres uint32) (cuts []uint32, excisions [][2]uint32) {
	candidates := rawCandidates(length, links, distThres)
	return Plan(mergeCandidates(candidates, MergeThresh))
}

// DetectScaffold scans only the flanks (width = resolution on each side)
// of the positions in joinPositions — where this round's path extraction
// joined two prior scaffolds — rather than the whole scaffold (spec §4.8
// scaffold mode).
func DetectScaffold(length uint32, links [][2]uint32, joinPositions []uint32, resolution uint32) (cuts []uint32, excisions [][2]uint32) {
	depth := buildDepth(length, links)
	smoothed := movingAverage(depth, 5)
	median := medianOf(smoothed)
	if median == 0 {
		return nil, nil
	}
	var candidates []uint32
	for _, join := range joinPositions {
		lo := uint32(0)
		if join > resolution {
			lo = join - resolution
		}
		hi := join + resolution
		if hi > length {
			hi = length
		}
		for pos := lo; pos < hi; pos += Bin {
			idx := int(pos / Bin)
			if idx >= len(smoothed) {
				continue
			}
			if smoothed[idx] < FoldThresh*median {
				candidates = append(candidates, pos)
			}
		}
	}
	return Plan(mergeCandidates(candidates, MergeThresh))
}

// Span is a kept, contiguous sub-range of a scaffold, [Start, End).
type Span struct{ Start, End uint32 }

// ApplyBreaks computes the surviving spans of a scaffold of the given
// length after cutting at each position in cuts and excising each range
// in excisions outright.
func ApplyBreaks(length uint32, cuts []uint32, excisions [][2]uint32) []Span {
	points := []uint32{0, length}
	points = append(points, cuts...)
	for _, e := range excisions {
		points = append(points, e[0], e[1])
	}
	sort.Slice(points, func(i, j int) bool { return points[i] < points[j] })
	uniq := points[:0]
	for i, p := range points {
		if i == 0 || p != uniq[len(uniq)-1] {
			uniq = append(uniq, p)
		}
	}
	points = uniq

	var spans []Span
	for i := 0; i+1 < len(points); i++ {
		s, e := points[i], points[i+1]
		mid := s + (e-s)/2
		excised := false
		for _, ex := range excisions {
			if mid >= ex[0] && mid < ex[1] {
				excised = true
				break
			}
		}
		if !excised {
			spans = append(spans, Span{Start: s, End: e})
		}
	}
	return spans
}
