// Package intermat scores the four relative orientations in which two
// scaffolds could be joined, from their observed inter-scaffold links
// against the expected link density under each orientation, subtracting
// a local noise baseline and flagging orientations too weak to trust
// (spec §4.4).
package intermat

import (
	"sort"

	"github.com/grailbio/base/traverse"

	"github.com/shulp2211/yahs/intramat"
)

// Orientation combination indices: bit 0 is scaffold A's joining end, bit
// 1 is scaffold B's (0 = the scaffold's right/"+" end, 1 = its left/"-"
// end), matching the four cases a scaffolding arc can represent.
const (
	PlusPlus   = 0 // A's right end to B's right end
	PlusMinus  = 2 // A's right end to B's left end
	MinusPlus  = 1 // A's left end to B's right end
	MinusMinus = 3 // A's left end to B's left end
)

// Link is one observed inter-scaffold link, with positions already
// translated into each scaffold's own coordinate space.
type Link struct {
	PosA, PosB uint32
}

// Opts configures the orientation scorer.
type Opts struct {
	// Resolution is the bin width in bp, matching the round's matrix
	// resolution.
	Resolution uint32
	// R sizes the near-end window as R bins from the relevant scaffold end
	// (spec §4.4 "near-end window of size r·resolution"). Must be >= 1.
	R int
	// FarWindow is the distance from a scaffold end (measuring from the
	// opposite end of the one under test) used to estimate a local noise
	// density, which is scaled to the near window's size and subtracted
	// from the observed count (spec §4.4 "far-end noise baseline
	// subtraction"). Must be >= R*Resolution.
	FarWindow uint32
	// Rel is the weak-direction threshold: an orientation whose
	// normalized score is less than Rel times the strongest orientation's
	// score is excluded from LinkT (spec §4.4, default 0.1).
	Rel float64
}

// DefaultOpts returns Opts with the spec's default Rel, r=1, and a far
// window four times the near one (spec §4.4).
func DefaultOpts(resolution uint32) Opts {
	return Opts{
		Resolution: resolution,
		R:          1,
		FarWindow:  resolution * 4,
		Rel:        0.1,
	}
}

// PairStats is the per-ordered-scaffold-pair orientation scoring result.
type PairStats struct {
	ScaffoldA, ScaffoldB int32
	Raw                  [4]float64 // near-window observed link counts, before noise subtraction (QL filter sample)
	Scores               [4]float64 // normalized scores: noise-subtracted observed over expected
	LinkT                uint8      // bitmask: bit k set iff orientation k survives the weak-direction filter
	N0                   int        // total observed inter-links between A and B, used as QL filter sample size
}

// Best returns the surviving orientation with the highest score, or
// (-1, 0) if LinkT excludes every orientation.
func (p PairStats) Best() (orient int, score float64) {
	orient = -1
	for k := 0; k < 4; k++ {
		if p.LinkT&(1<<uint(k)) == 0 {
			continue
		}
		if orient == -1 || p.Scores[k] > score {
			orient, score = k, p.Scores[k]
		}
	}
	return orient, score
}

func endDistance(pos, length uint32, end int) uint32 {
	if end == 0 { // right/"+" end
		return length - 1 - pos
	}
	return pos // left/"-" end
}

// binDistance is a bin's distance, in bins, from scaffold end "end" (0 =
// right, 1 = left).
func binDistance(bin, nBins, end int) int {
	if end == 0 {
		return nBins - 1 - bin
	}
	return bin
}

// endWindow lists the bin indices within r bins of end "end" in a
// scaffold with nBins bins.
func endWindow(nBins, end, r int) []int {
	if nBins == 0 || r <= 0 {
		return nil
	}
	idx := make([]int, 0, r)
	if end == 0 {
		lo := nBins - r
		if lo < 0 {
			lo = 0
		}
		for b := lo; b < nBins; b++ {
			idx = append(idx, b)
		}
	} else {
		hi := r
		if hi > nBins {
			hi = nBins
		}
		for b := 0; b < hi; b++ {
			idx = append(idx, b)
		}
	}
	return idx
}

// expected sums norm(d_eff)*area over every bin pair (i, j) in A's end
// window and B's end window, where d_eff is the bin distance the pair
// would have if A and B were joined end-to-end at this orientation (spec
// §4.4 "expected = Σ norm(d_eff)·area"). areaA/areaB are each scaffold's
// own per-bin area (intramat.Matrix.BinAreas), norm is the fitted
// distance-decay curve shared across the round (intramat.Norm.Factor).
func expected(areaA, areaB []float64, endA, endB, r int, norm *intramat.Norm) float64 {
	if norm == nil {
		return 0
	}
	winA := endWindow(len(areaA), endA, r)
	winB := endWindow(len(areaB), endB, r)
	var sum float64
	for _, i := range winA {
		dA := binDistance(i, len(areaA), endA)
		for _, j := range winB {
			dB := binDistance(j, len(areaB), endB)
			sum += norm.Factor(dA+dB+1) * areaA[i] * areaB[j]
		}
	}
	return sum
}

// Score computes PairStats for scaffold A (length lenA, per-bin areas
// areaA) and B (length lenB, per-bin areas areaB) from their observed
// links, against norm's shared distance-decay curve (spec §4.4).
func Score(links []Link, lenA, lenB uint32, areaA, areaB []float64, norm *intramat.Norm, opts Opts) PairStats {
	stats := PairStats{N0: len(links)}
	r := opts.R
	if r <= 0 {
		r = 1
	}
	nearWindow := uint32(r) * opts.Resolution

	var farA, farB [2]float64 // far-window counts per end, for noise density
	for _, link := range links {
		for endA := 0; endA < 2; endA++ {
			for endB := 0; endB < 2; endB++ {
				combo := endA | endB<<1
				if endDistance(link.PosA, lenA, endA) < nearWindow &&
					endDistance(link.PosB, lenB, endB) < nearWindow {
					stats.Raw[combo]++
				}
			}
		}
		for end := 0; end < 2; end++ {
			// The far window for "end" is measured from the opposite end,
			// giving a local background sample away from the join site.
			if endDistance(link.PosA, lenA, 1-end) < opts.FarWindow {
				farA[end]++
			}
			if endDistance(link.PosB, lenB, 1-end) < opts.FarWindow {
				farB[end]++
			}
		}
	}

	scale := 0.0
	if opts.FarWindow > 0 {
		scale = float64(nearWindow) / float64(opts.FarWindow)
	}
	var maxScore float64
	for endA := 0; endA < 2; endA++ {
		for endB := 0; endB < 2; endB++ {
			combo := endA | endB<<1
			noise := (farA[endA] + farB[endB]) * scale / 2
			observed := stats.Raw[combo] - noise
			if observed < 0 {
				observed = 0
			}
			exp := expected(areaA, areaB, endA, endB, r, norm)
			score := 0.0
			switch {
			case exp > 0:
				score = observed / exp
			case observed > 0:
				// Zero expected with a nonzero observed count is an
				// unbounded ratio (no within-scaffold background to
				// compare against); fall back to the noise-subtracted
				// count itself so a genuine signal still clears MinNorm.
				score = observed
			}
			stats.Scores[combo] = score
			if score > maxScore {
				maxScore = score
			}
		}
	}
	for k := 0; k < 4; k++ {
		if maxScore == 0 || stats.Scores[k] >= opts.Rel*maxScore {
			stats.LinkT |= 1 << uint(k)
		}
	}
	return stats
}

// PairKey identifies an ordered scaffold pair.
type PairKey struct{ A, B int32 }

// ScoreAll scores every pair present in links concurrently via
// traverse.Each (spec §5: embarrassingly-parallel per-pair accumulation).
// areas and norm come from the round's intra-matrix fit: areas holds each
// scaffold's own per-bin area total, norm the distance-decay curve shared
// across every scaffold that round.
func ScoreAll(links map[PairKey][]Link, lengths map[int32]uint32, areas map[int32][]float64, norm *intramat.Norm, opts Opts) map[PairKey]PairStats {
	keys := make([]PairKey, 0, len(links))
	for k := range links {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].A != keys[j].A {
			return keys[i].A < keys[j].A
		}
		return keys[i].B < keys[j].B
	})

	results := make([]PairStats, len(keys))
	_ = traverse.Each(len(keys), func(idx int) error {
		k := keys[idx]
		s := Score(links[k], lengths[k.A], lengths[k.B], areas[k.A], areas[k.B], norm, opts)
		s.ScaffoldA, s.ScaffoldB = k.A, k.B
		results[idx] = s
		return nil
	})

	out := make(map[PairKey]PairStats, len(keys))
	for i, k := range keys {
		out[k] = results[i]
	}
	return out
}
