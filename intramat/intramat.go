// Package intramat builds the per-scaffold triangular intra-link matrix,
// aggregates it by genomic distance band, and fits a monotone
// non-increasing distance-decay normalization curve (spec §4.3).
package intramat

import (
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/traverse"
	"github.com/shulp2211/yahs/enzyme"
	"github.com/shulp2211/yahs/internal/kinds"
	"github.com/shulp2211/yahs/sdict"
)

// cellBytes is the per-cell footprint counted against the memory estimate
// before a Matrix is allocated: one float64 for the raw link count and one
// float64 for the effective area (spec §5).
const cellBytes = 16

// NumBins returns the number of resolution-sized bins a scaffold of the
// given length is tiled into: B = ceil(length/resolution).
func NumBins(length, resolution uint32) int {
	if resolution == 0 {
		resolution = 1
	}
	return int((uint64(length) + uint64(resolution) - 1) / uint64(resolution))
}

// EstimateBytes returns the memory a Matrix for a scaffold of length, at
// resolution, would occupy: the triangular bin-pair matrix's two float64
// planes (spec §5, used to gate allocation against rss_limit before it
// happens).
func EstimateBytes(length, resolution uint32) int64 {
	b := int64(NumBins(length, resolution))
	return b * (b + 1) / 2 * cellBytes
}

// Matrix is the triangular intra-scaffold bin-pair link-count matrix (spec
// §4.3): cell (i, j), i <= j, holds the raw link count observed between
// bins i and j, plus a precomputed effective area used to normalize for
// distance decay.
type Matrix struct {
	ScaffoldID int32
	Resolution uint32
	NBins      int

	counts  []float64
	areas   []float64
	binArea []float64 // per-bin total area, kept alongside the triangular product areas for cross-scaffold (inter-matrix) expected-count sums
}

func triIndex(nbins, i, j int) int {
	if i > j {
		i, j = j, i
	}
	return i*nbins - (i-1)*i/2 + (j - i)
}

// NewMatrix allocates a Matrix for a scaffold of length at resolution.
// Callers must consult EstimateBytes against their memory budget first
// (spec §5); NewMatrix itself does not re-check it.
func NewMatrix(scaffoldID int32, length, resolution uint32) *Matrix {
	if resolution == 0 {
		resolution = 1
	}
	nbins := NumBins(length, resolution)
	if nbins == 0 {
		nbins = 1
	}
	size := nbins * (nbins + 1) / 2
	return &Matrix{
		ScaffoldID: scaffoldID,
		Resolution: resolution,
		NBins:      nbins,
		counts:     make([]float64, size),
		areas:      make([]float64, size),
	}
}

// Add records one link between scaffold positions posA and posB.
func (m *Matrix) Add(posA, posB uint32) {
	i := int(posA / m.Resolution)
	j := int(posB / m.Resolution)
	if i >= m.NBins {
		i = m.NBins - 1
	}
	if j >= m.NBins {
		j = m.NBins - 1
	}
	m.counts[triIndex(m.NBins, i, j)]++
}

// Count returns the raw link count at bin pair (i, j).
func (m *Matrix) Count(i, j int) float64 { return m.counts[triIndex(m.NBins, i, j)] }

// Area returns the effective area at bin pair (i, j).
func (m *Matrix) Area(i, j int) float64 { return m.areas[triIndex(m.NBins, i, j)] }

// ComputeAreas fills in the per-cell effective area from dict's segment
// tiling of scaffold m.ScaffoldID: the bp of actual sequence (excluding
// gaps) covering each bin, scaled by enzyme cut-site density when sites is
// non-nil (spec §4.3). It must run before normalization.
func (m *Matrix) ComputeAreas(dict *sdict.ADict, sites *enzyme.Sites) {
	binArea := make([]float64, m.NBins)
	for _, seg := range dict.Segments(m.ScaffoldID) {
		startBin := int(seg.ScaffoldStart / m.Resolution)
		endBin := int((seg.ScaffoldStart + seg.Length - 1) / m.Resolution)
		for b := startBin; b <= endBin && b < m.NBins; b++ {
			binLo := uint32(b) * m.Resolution
			binHi := binLo + m.Resolution
			lo := maxU32(binLo, seg.ScaffoldStart)
			hi := minU32(binHi, seg.ScaffoldStart+seg.Length)
			if hi <= lo {
				continue
			}
			covered := hi - lo
			if sites == nil {
				binArea[b] += float64(covered)
				continue
			}
			srcLo := seg.SourceOffset + (lo - seg.ScaffoldStart)
			srcHi := srcLo + covered
			count := sites.CutSiteCount(seg.SourceID, srcLo, srcHi)
			binArea[b] += float64(count)
		}
	}
	for i := 0; i < m.NBins; i++ {
		for j := i; j < m.NBins; j++ {
			m.areas[triIndex(m.NBins, i, j)] = binArea[i] * binArea[j]
		}
	}
	m.binArea = binArea
}

// BinAreas returns a copy of the per-bin area totals computed by
// ComputeAreas, indexed by bin. Used by the inter-matrix scorer, which
// needs each scaffold's own per-bin area rather than the triangular
// bin-pair product Area serves.
func (m *Matrix) BinAreas() []float64 {
	return append([]float64(nil), m.binArea...)
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// MinBandsForFit is the minimum number of distinct bands with nonzero
// area support a scaffold must offer before a normalization fit is
// attempted (spec §4.3 "insufficient bands").
const MinBandsForFit = 3

// Norm is a fitted distance-decay normalization curve: Factor(d) gives the
// expected count-per-area at genomic distance d bins, monotone
// non-increasing in d (spec §4.3, §9 design note on isotonic fit).
type Norm struct {
	factors []float64 // factors[d] for band d = j-i
}

// Fit aggregates m by band (diagonal d = j-i), computes the raw
// count/area ratio per band, and fits a monotone non-increasing curve
// to it via pool-adjacent-violators (PAVA) so the result never
// increases with distance (spec §4.3, §9). It returns InsufficientBands
// if fewer than MinBandsForFit bands have area support.
func (m *Matrix) Fit() (*Norm, error) {
	sumCount := make([]float64, m.NBins)
	sumArea := make([]float64, m.NBins)
	for i := 0; i < m.NBins; i++ {
		for j := i; j < m.NBins; j++ {
			d := j - i
			sumCount[d] += m.counts[triIndex(m.NBins, i, j)]
			sumArea[d] += m.areas[triIndex(m.NBins, i, j)]
		}
	}
	ratios := make([]float64, m.NBins)
	support := 0
	for d := 0; d < m.NBins; d++ {
		if sumArea[d] > 0 {
			ratios[d] = sumCount[d] / sumArea[d]
			support++
		}
	}
	if support < MinBandsForFit {
		return nil, errors.E(kinds.InsufficientBands, fmt.Sprintf("intramat: scaffold %d has only %d supported bands, need >= %d", m.ScaffoldID, support, MinBandsForFit))
	}
	return &Norm{factors: pava(ratios)}, nil
}

// FitGlobal pools per-band count/area sums across every scaffold's matrix
// before fitting, giving one genome-wide decay curve instead of one per
// scaffold. The distance-decay rate is a property of the Hi-C library
// preparation, not of any single scaffold, so pooling bands gives the
// inter-matrix scorer (spec §4.4) a curve that stays well-supported even
// for scaffolds too short to fit on their own. Returns InsufficientBands
// if the pooled curve still falls short of MinBandsForFit.
func FitGlobal(matrices map[int32]*Matrix) (*Norm, error) {
	maxBins := 0
	for _, m := range matrices {
		if m.NBins > maxBins {
			maxBins = m.NBins
		}
	}
	if maxBins == 0 {
		return nil, errors.E(kinds.InsufficientBands, "intramat: no scaffolds to fit")
	}
	sumCount := make([]float64, maxBins)
	sumArea := make([]float64, maxBins)
	for _, m := range matrices {
		for i := 0; i < m.NBins; i++ {
			for j := i; j < m.NBins; j++ {
				d := j - i
				sumCount[d] += m.counts[triIndex(m.NBins, i, j)]
				sumArea[d] += m.areas[triIndex(m.NBins, i, j)]
			}
		}
	}
	ratios := make([]float64, maxBins)
	support := 0
	for d := 0; d < maxBins; d++ {
		if sumArea[d] > 0 {
			ratios[d] = sumCount[d] / sumArea[d]
			support++
		}
	}
	if support < MinBandsForFit {
		return nil, errors.E(kinds.InsufficientBands, fmt.Sprintf("intramat: only %d supported bands across all scaffolds, need >= %d", support, MinBandsForFit))
	}
	return &Norm{factors: pava(ratios)}, nil
}

// pava runs pool-adjacent-violators isotonic regression, returning the
// least-squares monotone non-increasing fit to values: each run of
// adjacent violators is replaced by its mean.
func pava(values []float64) []float64 {
	type block struct {
		sum    float64
		weight float64
		count  int
	}
	var blocks []block
	for _, v := range values {
		blocks = append(blocks, block{sum: v, weight: 1, count: 1})
		for len(blocks) > 1 {
			n := len(blocks)
			prev, cur := blocks[n-2], blocks[n-1]
			if prev.sum/prev.weight >= cur.sum/cur.weight {
				break
			}
			merged := block{sum: prev.sum + cur.sum, weight: prev.weight + cur.weight, count: prev.count + cur.count}
			blocks = append(blocks[:n-2], merged)
		}
	}
	out := make([]float64, 0, len(values))
	for _, b := range blocks {
		mean := b.sum / b.weight
		for k := 0; k < b.count; k++ {
			out = append(out, mean)
		}
	}
	return out
}

// Factor returns the fitted expected count-per-area at band distance d.
func (n *Norm) Factor(d int) float64 {
	if d < 0 {
		d = 0
	}
	if d >= len(n.factors) {
		d = len(n.factors) - 1
	}
	return n.factors[d]
}

// Expected returns the expected count at bin pair (i, j) under n, scaled
// by m's cell area there.
func (n *Norm) Expected(m *Matrix, i, j int) float64 {
	d := j - i
	if d < 0 {
		d = -d
	}
	return n.Factor(d) * m.Area(i, j)
}

// FillAll builds and fills one Matrix per scaffold in dict concurrently
// via traverse.Each (spec §5: embarrassingly-parallel per-scaffold
// accumulation, barrier before reduction). links maps a scaffold id to its
// observed (posA, posB) link pairs, e.g. gathered from a linkio.Sink
// during the intra-matrix pass.
func FillAll(dict *sdict.ADict, resolution uint32, sites *enzyme.Sites, links map[int32][][2]uint32) (map[int32]*Matrix, error) {
	ids := make([]int32, 0, dict.Len())
	for id := int32(0); id < int32(dict.Len()); id++ {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	matrices := make([]*Matrix, len(ids))
	err := traverse.Each(len(ids), func(idx int) error {
		id := ids[idx]
		rec := dict.Scaffold(id)
		m := NewMatrix(id, rec.TotalLen, resolution)
		m.ComputeAreas(dict, sites)
		for _, pair := range links[id] {
			m.Add(pair[0], pair[1])
		}
		matrices[idx] = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make(map[int32]*Matrix, len(ids))
	for i, id := range ids {
		out[id] = matrices[i]
	}
	return out, nil
}
