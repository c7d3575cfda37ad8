// Package sgraph builds the scaffolding graph from scored inter-scaffold
// orientation candidates and prunes it to a confident skeleton (spec §3,
// §4.5, §4.6).
package sgraph

import (
	"sort"

	"github.com/shulp2211/yahs/intermat"
	"github.com/shulp2211/yahs/internal/qbinom"
)

// Vertex packs a scaffold id and which end of it into one id: (id<<1)|end,
// end 0 being the scaffold's right ("+") end and 1 its left ("-") end
// (spec §3).
func Vertex(scaffoldID int32, end int) int64 {
	return int64(scaffoldID)<<1 | int64(end&1)
}

// VertexScaffold extracts the scaffold id from a Vertex.
func VertexScaffold(v int64) int32 { return int32(v >> 1) }

// VertexEnd extracts the end bit from a Vertex.
func VertexEnd(v int64) int { return int(v & 1) }

func otherEnd(v int64) int64 { return v ^ 1 }

// OtherEnd returns the vertex id for the opposite end of v's own scaffold,
// exported for spath's cycle detection, which needs to walk through a
// scaffold body the same way the pruning passes do internally.
func OtherEnd(v int64) int64 { return otherEnd(v) }

// Arc is one candidate directed join from one scaffold end to another.
// Arcs are always created in reciprocal pairs that share a LinkID (spec
// §8 invariant 3): the arc A->B and its mirror B->A are removed together,
// never independently.
type Arc struct {
	From, To int64
	Weight   float64 // normalized score (spec §4.5), used for ordering and pruning
	N, N0    int      // raw count and sample size backing Weight
	LinkID   int32
	removed  bool
}

// Graph is the scaffolding graph: an arena of Arcs indexed by vertex, so
// that both per-vertex lookups and bulk iteration stay O(1) amortized
// (spec §9 design note: "arena-and-index pattern").
type Graph struct {
	nextLinkID int32
	arcs       []*Arc
	byLink     map[int32][2]*Arc
	out        map[int64][]*Arc
	nodeSet    map[int64]bool
}

// NewGraph returns an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		byLink:  make(map[int32][2]*Arc),
		out:     make(map[int64][]*Arc),
		nodeSet: make(map[int64]bool),
	}
}

// AddArcPair adds the reciprocal arc pair vA->vB and vB->vA, sharing one
// LinkID, with weight, n (raw count), and n0 (sample size) carried on
// both.
func (g *Graph) AddArcPair(vA, vB int64, weight float64, n, n0 int) {
	g.nodeSet[vA] = true
	g.nodeSet[vB] = true
	id := g.nextLinkID
	g.nextLinkID++
	ab := &Arc{From: vA, To: vB, Weight: weight, N: n, N0: n0, LinkID: id}
	ba := &Arc{From: vB, To: vA, Weight: weight, N: n, N0: n0, LinkID: id}
	g.arcs = append(g.arcs, ab, ba)
	g.byLink[id] = [2]*Arc{ab, ba}
	g.out[vA] = append(g.out[vA], ab)
	g.out[vB] = append(g.out[vB], ba)
}

// Remove deletes a and its reciprocal mirror together.
func (g *Graph) Remove(a *Arc) {
	if a.removed {
		return
	}
	a.removed = true
	pair := g.byLink[a.LinkID]
	for _, other := range pair {
		if other != nil && other != a {
			other.removed = true
		}
	}
}

// OutArcs returns the live (non-removed) arcs leaving v.
func (g *Graph) OutArcs(v int64) []*Arc {
	var live []*Arc
	for _, a := range g.out[v] {
		if !a.removed {
			live = append(live, a)
		}
	}
	return live
}

// Vertices returns every vertex that has ever had an arc, in ascending
// order.
func (g *Graph) Vertices() []int64 {
	vs := make([]int64, 0, len(g.nodeSet))
	for v := range g.nodeSet {
		vs = append(vs, v)
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i] < vs[j] })
	return vs
}

// Arcs returns every live arc.
func (g *Graph) Arcs() []*Arc {
	var live []*Arc
	for _, a := range g.arcs {
		if !a.removed {
			live = append(live, a)
		}
	}
	return live
}

// Opts configures graph construction and pruning (spec §4.5, §4.6, §9).
type Opts struct {
	MinNorm         float64 // minimum normalized score to add an arc at all; default 0.1
	SimpleFactor    float64 // simple-filter competitor ratio; default 0.7
	QLProb          float64 // chance rate under no real orientation preference; default 0.25 (one in four orientations)
	QLQuantile      float64 // QL filter confidence quantile; default 0.99
	AmbiguityMargin float64 // final ambiguity-pass runner-up/winner ratio; default 0.5 (spec §9 Open Question)
	RepeatDegree    int     // out-degree at or above which a vertex is treated as a repeat; default 4
	WeakFactor      float64 // weak-edge-vs-local-median ratio; default 0.2
}

// DefaultOpts returns the spec's documented defaults.
func DefaultOpts() Opts {
	return Opts{
		MinNorm:         0.1,
		SimpleFactor:    0.7,
		QLProb:          0.25,
		QLQuantile:      0.99,
		AmbiguityMargin: 0.5,
		RepeatDegree:    4,
		WeakFactor:      0.2,
	}
}

// Build constructs a Graph from scored inter-scaffold pairs: each
// surviving orientation (LinkT bit set) is run through the QL filter
// (a binomial-quantile outlier gate against the chance rate QLProb) and
// the MinNorm absolute floor before becoming an arc pair (spec §4.5).
func Build(stats map[intermat.PairKey]intermat.PairStats, opts Opts) *Graph {
	g := NewGraph()
	keys := make([]intermat.PairKey, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].A != keys[j].A {
			return keys[i].A < keys[j].A
		}
		return keys[i].B < keys[j].B
	})

	for _, k := range keys {
		s := stats[k]
		if s.N0 == 0 {
			continue
		}
		for combo := 0; combo < 4; combo++ {
			if s.LinkT&(1<<uint(combo)) == 0 {
				continue
			}
			count := int(s.Raw[combo])
			if !qlSurvives(count, s.N0, opts.QLProb, opts.QLQuantile) {
				continue
			}
			normScore := s.Scores[combo]
			if normScore < opts.MinNorm {
				continue
			}
			endA := combo & 1
			endB := (combo >> 1) & 1
			g.AddArcPair(Vertex(k.A, endA), Vertex(k.B, endB), normScore, count, s.N0)
		}
	}
	return g
}

func qlSurvives(count, n0 int, prob, quantile float64) bool {
	if n0 == 0 {
		return false
	}
	threshold := qbinom.Qbinom(quantile, n0, prob, true, false) / float64(n0)
	return float64(count)/float64(n0) > threshold
}

// Prune runs the fixed-point pruning loop (spec §4.6: simple filter, tip
// trimming, blunt trimming, repeat trimming, transitive reduction,
// directed bubble popping, undirected bubble popping, weak edges, self
// loops — repeated until none of them change the graph) followed by the
// final ambiguity pass.
func (g *Graph) Prune(opts Opts) {
	for {
		changed := false
		if g.simpleFilter(opts) {
			changed = true
		}
		if g.tipTrim() {
			changed = true
		}
		if g.bluntTrim(opts) {
			changed = true
		}
		if g.repeatTrim(opts) {
			changed = true
		}
		if g.transitiveReduction() {
			changed = true
		}
		if g.directedBubblePop() {
			changed = true
		}
		if g.undirectedBubblePop() {
			changed = true
		}
		if g.weakEdges(opts) {
			changed = true
		}
		if g.selfLoops() {
			changed = true
		}
		if !changed {
			break
		}
	}
	g.ambiguityPass(opts)
}

// simpleFilter drops arcs that are either below the absolute MinNorm floor
// or below SimpleFactor times their vertex's best arc (spec §4.6 "simple
// filter factor 0.7/min_norm 0.1").
func (g *Graph) simpleFilter(opts Opts) bool {
	changed := false
	for _, v := range g.Vertices() {
		arcs := g.OutArcs(v)
		if len(arcs) == 0 {
			continue
		}
		var best float64
		for _, a := range arcs {
			if a.Weight > best {
				best = a.Weight
			}
		}
		for _, a := range arcs {
			if a.Weight < opts.MinNorm || a.Weight < opts.SimpleFactor*best {
				g.Remove(a)
				changed = true
			}
		}
	}
	return changed
}

// tipTrim removes a dangling single arc from a vertex whose scaffold has
// no arcs on its other end, when the arc's partner is itself connected
// elsewhere (the classic assembly-graph "tip").
func (g *Graph) tipTrim() bool {
	changed := false
	for _, v := range g.Vertices() {
		arcs := g.OutArcs(v)
		if len(arcs) != 1 || len(g.OutArcs(otherEnd(v))) != 0 {
			continue
		}
		if len(g.OutArcs(arcs[0].To)) > 1 {
			g.Remove(arcs[0])
			changed = true
		}
	}
	return changed
}

// bluntTrim removes a dangling single arc whose scaffold is unconnected
// on its other end and whose weight falls below a stricter floor than
// simpleFilter's, even when its partner isn't independently branching
// (an isolated, weakly supported pair rather than a true tip).
func (g *Graph) bluntTrim(opts Opts) bool {
	changed := false
	floor := opts.SimpleFactor * opts.MinNorm * 2
	for _, v := range g.Vertices() {
		arcs := g.OutArcs(v)
		if len(arcs) != 1 || len(g.OutArcs(otherEnd(v))) != 0 {
			continue
		}
		if arcs[0].Weight < floor {
			g.Remove(arcs[0])
			changed = true
		}
	}
	return changed
}

// repeatTrim removes every arc at a vertex whose out-degree has reached
// RepeatDegree, on the premise that a scaffold end joining that many
// candidates is more likely a collapsed repeat than a genuine join (spec
// §4.6).
func (g *Graph) repeatTrim(opts Opts) bool {
	changed := false
	for _, v := range g.Vertices() {
		arcs := g.OutArcs(v)
		if len(arcs) >= opts.RepeatDegree {
			for _, a := range arcs {
				g.Remove(a)
			}
			changed = true
		}
	}
	return changed
}

// transitiveReduction removes a direct arc v->w when w is also reachable
// from v through some other out-arc's scaffold body (v->mid, mid's other
// end->w), since the direct arc adds no information beyond the indirect
// path.
func (g *Graph) transitiveReduction() bool {
	changed := false
	for _, v := range g.Vertices() {
		arcs := g.OutArcs(v)
		for _, direct := range arcs {
			w := direct.To
			for _, mid := range arcs {
				if mid.To == w {
					continue
				}
				for _, second := range g.OutArcs(otherEnd(mid.To)) {
					if second.To == w {
						g.Remove(direct)
						changed = true
					}
				}
			}
		}
	}
	return changed
}

// directedBubblePop finds vertices with multiple out-arcs that converge
// on the same downstream vertex through their partners' scaffold bodies,
// keeping only the strongest branch of each such bubble.
func (g *Graph) directedBubblePop() bool {
	changed := false
	for _, v := range g.Vertices() {
		arcs := g.OutArcs(v)
		if len(arcs) < 2 {
			continue
		}
		mergeOf := map[int64][]*Arc{}
		for _, a := range arcs {
			for _, second := range g.OutArcs(otherEnd(a.To)) {
				if second.To == v {
					continue
				}
				mergeOf[second.To] = append(mergeOf[second.To], a)
			}
		}
		for w, branch := range mergeOf {
			if len(branch) < 2 || w == v {
				continue
			}
			sort.Slice(branch, func(i, j int) bool { return branch[i].Weight > branch[j].Weight })
			for _, weak := range branch[1:] {
				g.Remove(weak)
				changed = true
			}
		}
	}
	return changed
}

func pairKey(a, b int32) [2]int32 {
	if a > b {
		a, b = b, a
	}
	return [2]int32{a, b}
}

// undirectedBubblePop treats every arc connecting the same two scaffolds
// (regardless of which ends) as one bubble group; a single reciprocal
// pair is normal, but more than one surviving end-pairing between the
// same two scaffolds is an undirected bubble, and only the strongest
// pairing survives.
func (g *Graph) undirectedBubblePop() bool {
	changed := false
	groups := map[[2]int32][]*Arc{}
	for _, a := range g.Arcs() {
		scA, scB := VertexScaffold(a.From), VertexScaffold(a.To)
		if scA == scB {
			continue
		}
		key := pairKey(scA, scB)
		groups[key] = append(groups[key], a)
	}
	for _, group := range groups {
		if len(group) <= 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Weight > group[j].Weight })
		for _, weak := range group[2:] {
			g.Remove(weak)
			changed = true
		}
	}
	return changed
}

// weakEdges removes arcs whose weight falls far below the local median
// weight among their vertex's competitors (spec §4.6 "weak edges vs local
// median").
func (g *Graph) weakEdges(opts Opts) bool {
	changed := false
	for _, v := range g.Vertices() {
		arcs := g.OutArcs(v)
		if len(arcs) < 2 {
			continue
		}
		weights := make([]float64, len(arcs))
		for i, a := range arcs {
			weights[i] = a.Weight
		}
		median := medianOf(weights)
		for _, a := range arcs {
			if a.Weight < opts.WeakFactor*median {
				g.Remove(a)
				changed = true
			}
		}
	}
	return changed
}

func medianOf(values []float64) float64 {
	sorted := append([]float64(nil), values...)
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

// selfLoops removes any arc whose endpoints resolve to the same scaffold
// (should not occur from Build, but is guarded against defensively).
func (g *Graph) selfLoops() bool {
	changed := false
	for _, a := range g.Arcs() {
		if VertexScaffold(a.From) == VertexScaffold(a.To) {
			g.Remove(a)
			changed = true
		}
	}
	return changed
}

// ambiguityPass is the final pass (spec §9 Open Question, resolved as a
// configurable AmbiguityMargin defaulting to 0.5): at a vertex with
// multiple surviving out-arcs, if the runner-up is within AmbiguityMargin
// of the winner the join is ambiguous and all of that vertex's arcs are
// dropped; otherwise only the winner survives. Every vertex is judged on
// the arcs that survived pruning; removals are applied after all vertices
// have been judged.
func (g *Graph) ambiguityPass(opts Opts) {
	var drop []*Arc
	for _, v := range g.Vertices() {
		arcs := g.OutArcs(v)
		if len(arcs) < 2 {
			continue
		}
		sort.Slice(arcs, func(i, j int) bool { return arcs[i].Weight > arcs[j].Weight })
		if arcs[1].Weight > opts.AmbiguityMargin*arcs[0].Weight {
			drop = append(drop, arcs...)
			continue
		}
		drop = append(drop, arcs[1:]...)
	}
	for _, a := range drop {
		g.Remove(a)
	}
}
