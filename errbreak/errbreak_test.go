package errbreak

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistThresEmptyIsFloor(t *testing.T) {
	assert.Equal(t, uint32(MinWindow), DistThres(nil))
}

func TestDistThresFloorsSmallAssemblies(t *testing.T) {
	lengths := []uint32{1000, 2000, 3000, 4000, 5000}
	assert.Equal(t, uint32(MinWindow), DistThres(lengths))
}

func TestDistThresTracksLargeAssemblies(t *testing.T) {
	lengths := make([]uint32, 100)
	for i := range lengths {
		lengths[i] = uint32((i + 1) * 100_000) // up to 10,000,000
	}
	got := DistThres(lengths)
	assert.GreaterOrEqual(t, got, uint32(MinWindow))
	assert.LessOrEqual(t, got, lengths[len(lengths)-1])
}

func TestMovingAverageClipsAtBoundaries(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	got := movingAverage(xs, 5)
	want := []float64{2, 2.5, 3, 3.5, 4}
	require := assert.New(t)
	require.Len(got, len(want))
	for i := range want {
		require.InDelta(want[i], got[i], 1e-9)
	}
}

func TestMedianOfOddAndEven(t *testing.T) {
	assert.Equal(t, 2.0, medianOf([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, medianOf([]float64{1, 2, 3, 4}))
	assert.Equal(t, 0.0, medianOf(nil))
}

func TestMergeCandidatesClustersByThreshold(t *testing.T) {
	got := mergeCandidates([]uint32{100, 105, 115, 500}, 20)
	require := assert.New(t)
	require.Equal([]uint32{106, 500}, got)
}

func TestMergeCandidatesEmpty(t *testing.T) {
	assert.Nil(t, mergeCandidates(nil, 20))
}

func TestPlanPairsCloseBreaksIntoExcisions(t *testing.T) {
	cuts, excisions := Plan([]uint32{100, 140, 100000})
	assert.Equal(t, []uint32{100000}, cuts)
	assert.Equal(t, [][2]uint32{{100, 140}}, excisions)
}

func TestPlanAllCutsWhenFarApart(t *testing.T) {
	cuts, excisions := Plan([]uint32{0, 1_000_000, 2_000_000})
	assert.Equal(t, []uint32{0, 1_000_000, 2_000_000}, cuts)
	assert.Empty(t, excisions)
}

// depthLinks builds a synthetic link list that makes buildDepth report a
// depth of 1 in every bin listed, and 0 elsewhere.
func depthLinks(bins ...int) [][2]uint32 {
	links := make([][2]uint32, 0, len(bins))
	for _, b := range bins {
		pos := uint32(b) * Bin
		links = append(links, [2]uint32{pos, pos + 1})
	}
	return links
}

func TestDetectContigFindsDipAtZeroDepthRegion(t *testing.T) {
	// 20 bins; bins 8-12 carry no links, everything else carries one.
	var covered []int
	for i := 0; i < 20; i++ {
		if i < 8 || i > 12 {
			covered = append(covered, i)
		}
	}
	links := depthLinks(covered...)
	length := uint32(20_000)

	cuts, excisions := DetectContig(length, links, 1000)
	require := assert.New(t)
	require.Empty(excisions)
	require.Equal([]uint32{10_000}, cuts)
}

func TestDetectContigNoDipNoCandidates(t *testing.T) {
	var covered []int
	for i := 0; i < 10; i++ {
		covered = append(covered, i)
	}
	links := depthLinks(covered...)
	cuts, excisions := DetectContig(10_000, links, 1000)
	assert.Empty(t, cuts)
	assert.Empty(t, excisions)
}

func TestDetectScaffoldFindsDipNearJoin(t *testing.T) {
	var covered []int
	for i := 0; i < 20; i++ {
		if i < 8 || i > 12 {
			covered = append(covered, i)
		}
	}
	links := depthLinks(covered...)
	length := uint32(20_000)

	cuts, excisions := DetectScaffold(length, links, []uint32{10_000}, 3000)
	assert.Empty(t, excisions)
	assert.Equal(t, []uint32{10_000}, cuts)
}

func TestDetectScaffoldIgnoresDipOutsideFlank(t *testing.T) {
	var covered []int
	for i := 0; i < 20; i++ {
		if i < 8 || i > 12 {
			covered = append(covered, i)
		}
	}
	links := depthLinks(covered...)
	length := uint32(20_000)

	// the join is nowhere near the zero-depth region, so restricting the
	// scan to its flank should surface nothing.
	cuts, excisions := DetectScaffold(length, links, []uint32{19_000}, 500)
	assert.Empty(t, cuts)
	assert.Empty(t, excisions)
}

func TestApplyBreaksSplitsAtCuts(t *testing.T) {
	spans := ApplyBreaks(1000, []uint32{300, 700}, nil)
	assert.Equal(t, []Span{{0, 300}, {300, 700}, {700, 1000}}, spans)
}

func TestApplyBreaksDropsExcisedRegion(t *testing.T) {
	spans := ApplyBreaks(1000, nil, [][2]uint32{{400, 600}})
	assert.Equal(t, []Span{{0, 400}, {600, 1000}}, spans)
}

func TestApplyBreaksCombinesCutsAndExcisions(t *testing.T) {
	spans := ApplyBreaks(1000, []uint32{100}, [][2]uint32{{400, 600}})
	assert.Equal(t, []Span{{0, 100}, {100, 400}, {600, 1000}}, spans)
}

func TestApplyBreaksNoBreaksIsWholeScaffold(t *testing.T) {
	spans := ApplyBreaks(500, nil, nil)
	assert.Equal(t, []Span{{0, 500}}, spans)
}
