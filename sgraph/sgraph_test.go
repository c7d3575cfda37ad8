package sgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulp2211/yahs/intermat"
)

func TestVertexPackingRoundTrip(t *testing.T) {
	v := Vertex(5, 1)
	assert.Equal(t, int32(5), VertexScaffold(v))
	assert.Equal(t, 1, VertexEnd(v))
	v0 := Vertex(5, 0)
	assert.Equal(t, 0, VertexEnd(v0))
}

func TestAddArcPairIsReciprocal(t *testing.T) {
	g := NewGraph()
	vA, vB := Vertex(0, 0), Vertex(1, 0)
	g.AddArcPair(vA, vB, 0.5, 10, 20)

	outA := g.OutArcs(vA)
	outB := g.OutArcs(vB)
	require.Len(t, outA, 1)
	require.Len(t, outB, 1)
	assert.Equal(t, outA[0].LinkID, outB[0].LinkID)
	assert.Equal(t, vB, outA[0].To)
	assert.Equal(t, vA, outB[0].To)
}

func TestRemoveTakesBothArcsOfAPair(t *testing.T) {
	// spec §8 invariant 3: arcs always exist as reciprocal pairs.
	g := NewGraph()
	vA, vB := Vertex(0, 0), Vertex(1, 0)
	g.AddArcPair(vA, vB, 0.5, 10, 20)
	arcs := g.OutArcs(vA)
	require.Len(t, arcs, 1)
	g.Remove(arcs[0])
	assert.Empty(t, g.OutArcs(vA))
	assert.Empty(t, g.OutArcs(vB))
}

func TestRemoveIsIdempotent(t *testing.T) {
	g := NewGraph()
	vA, vB := Vertex(0, 0), Vertex(1, 0)
	g.AddArcPair(vA, vB, 0.5, 10, 20)
	a := g.OutArcs(vA)[0]
	g.Remove(a)
	assert.NotPanics(t, func() { g.Remove(a) })
}

func buildPairStats(a, b int32, combo int, score float64, n0 int) map[intermat.PairKey]intermat.PairStats {
	var stats intermat.PairStats
	stats.ScaffoldA, stats.ScaffoldB = a, b
	stats.N0 = n0
	stats.Raw[combo] = float64(n0) // full support, so the QL filter passes on its own
	stats.Scores[combo] = score
	stats.LinkT = 1 << uint(combo)
	return map[intermat.PairKey]intermat.PairStats{{A: a, B: b}: stats}
}

func TestBuildCreatesArcsForStrongPairs(t *testing.T) {
	stats := buildPairStats(0, 1, intermat.PlusPlus, 0.9, 100)
	g := Build(stats, DefaultOpts())
	assert.NotEmpty(t, g.Arcs())
}

func TestBuildSkipsWeakPairsBelowMinNorm(t *testing.T) {
	stats := buildPairStats(0, 1, intermat.PlusPlus, 0.01, 100)
	g := Build(stats, DefaultOpts())
	assert.Empty(t, g.Arcs())
}

func TestBuildSkipsPairsWithNoSupport(t *testing.T) {
	stats := map[intermat.PairKey]intermat.PairStats{
		{A: 0, B: 1}: {N0: 0},
	}
	g := Build(stats, DefaultOpts())
	assert.Empty(t, g.Arcs())
}

func TestPruneAmbiguousTripletRemovesAllArcs(t *testing.T) {
	// S3: three scaffolds with equal pairwise cross-link counts -> after
	// pruning + ambiguity pass, every arc should be gone.
	stats := map[intermat.PairKey]intermat.PairStats{}
	for _, pair := range [][2]int32{{0, 1}, {1, 2}, {0, 2}} {
		s := buildPairStats(pair[0], pair[1], intermat.PlusPlus, 0.9, 100)
		for k, v := range s {
			stats[k] = v
		}
	}
	g := Build(stats, DefaultOpts())
	g.Prune(DefaultOpts())
	for _, v := range g.Vertices() {
		assert.LessOrEqual(t, len(g.OutArcs(v)), 1)
	}
	assert.Empty(t, g.Arcs())
}

func TestAmbiguityPassKeepsClearWinner(t *testing.T) {
	g := NewGraph()
	v0, v1, v2 := Vertex(0, 0), Vertex(1, 0), Vertex(2, 0)
	g.AddArcPair(v0, v1, 1.0, 100, 100)
	g.AddArcPair(v0, v2, 0.1, 100, 100)
	opts := DefaultOpts()
	g.ambiguityPass(opts)
	out := g.OutArcs(v0)
	require.Len(t, out, 1)
	assert.Equal(t, v1, out[0].To)
}

func TestAmbiguityPassDropsCloseCompetitors(t *testing.T) {
	g := NewGraph()
	v0, v1, v2 := Vertex(0, 0), Vertex(1, 0), Vertex(2, 0)
	g.AddArcPair(v0, v1, 1.0, 100, 100)
	g.AddArcPair(v0, v2, 0.9, 100, 100)
	opts := DefaultOpts()
	g.ambiguityPass(opts)
	assert.Empty(t, g.OutArcs(v0))
}

func TestSelfLoopsRemoved(t *testing.T) {
	g := NewGraph()
	v0a, v0b := Vertex(0, 0), Vertex(0, 1)
	g.AddArcPair(v0a, v0b, 0.5, 10, 10)
	changed := g.selfLoops()
	assert.True(t, changed)
	assert.Empty(t, g.Arcs())
}

func TestOutDegreeAtMostOneAfterPrune(t *testing.T) {
	// spec §8 invariant 4.
	stats := map[intermat.PairKey]intermat.PairStats{}
	merge := func(m map[intermat.PairKey]intermat.PairStats) {
		for k, v := range m {
			stats[k] = v
		}
	}
	merge(buildPairStats(0, 1, intermat.PlusPlus, 0.9, 100))
	merge(buildPairStats(1, 2, intermat.PlusPlus, 0.9, 100))
	g := Build(stats, DefaultOpts())
	g.Prune(DefaultOpts())
	for _, v := range g.Vertices() {
		assert.LessOrEqual(t, len(g.OutArcs(v)), 1)
	}
}
