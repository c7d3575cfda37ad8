// Package spath walks the pruned scaffolding graph into ordered, oriented
// scaffold chains and renders them as a new assembly dictionary (spec
// §4.7). Any cycle surviving pruning is broken at its weakest arc before
// walking (spec §8 invariants 4 and 5).
package spath

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/shulp2211/yahs/sdict"
	"github.com/shulp2211/yahs/sgraph"
)

// undirectedView overlays g's surviving join arcs with an implicit edge
// between each scaffold's own two ends (the same "walk through the
// scaffold body" step spath's own walk() takes), as an undirected graph:
// since every join arc is itself a reciprocal pair, a plain directed SCC
// over the arcs alone would call every single ordinary join its own
// 2-node cycle. Connectivity here, not strong connectivity, is what
// distinguishes a true ring from a path (spec §4.7: "each connected
// component should be a simple path or cycle").
func undirectedView(g *sgraph.Graph) graph.Undirected {
	ug := simple.NewUndirectedGraph()
	seen := map[int64]bool{}
	addNode := func(v int64) {
		if !seen[v] {
			seen[v] = true
			ug.AddNode(simple.Node(v))
		}
	}
	for _, v := range g.Vertices() {
		addNode(v)
		addNode(sgraph.OtherEnd(v))
	}
	for v := range seen {
		if other := sgraph.OtherEnd(v); v < other {
			ug.SetEdge(ug.NewEdge(simple.Node(v), simple.Node(other)))
		}
	}
	for _, a := range g.Arcs() {
		if a.From < a.To {
			ug.SetEdge(ug.NewEdge(simple.Node(a.From), simple.Node(a.To)))
		}
	}
	return ug
}

// breakCycles finds every connected component of g that forms a closed
// ring rather than a path -- every member vertex has both its internal
// scaffold-body edge and a surviving join arc, so there is no terminus to
// start a walk from -- and removes that ring's single weakest arc,
// guaranteeing every remaining component can be walked start to end
// (spec §4.7, §8 invariant 5).
func breakCycles(g *sgraph.Graph) {
	for _, comp := range topo.ConnectedComponents(undirectedView(g)) {
		members := make(map[int64]bool, len(comp))
		for _, n := range comp {
			members[n.ID()] = true
		}
		hasTerminus := false
		var weakest *sgraph.Arc
		for v := range members {
			arcs := g.OutArcs(v)
			if len(arcs) == 0 {
				hasTerminus = true
			}
			for _, a := range arcs {
				if weakest == nil || a.Weight < weakest.Weight {
					weakest = a
				}
			}
		}
		if !hasTerminus && weakest != nil {
			g.Remove(weakest)
		}
	}
}

// walk follows the graph starting at scaffold start, entered via end eIn,
// until it reaches a scaffold with no further outgoing arc or one already
// visited (a defensive stop for any residual cycle breakCycles missed).
func walk(g *sgraph.Graph, start int32, eIn int, visited map[int32]bool) []sdict.Placement {
	var chain []sdict.Placement
	curID, curEIn := start, eIn
	for !visited[curID] {
		visited[curID] = true
		orient := sdict.Forward
		if curEIn == 0 {
			orient = sdict.Reverse
		}
		chain = append(chain, sdict.Placement{ScaffoldID: curID, Orient: orient})

		eOut := 1 - curEIn
		arcs := g.OutArcs(sgraph.Vertex(curID, eOut))
		if len(arcs) == 0 {
			break
		}
		best := arcs[0]
		for _, a := range arcs[1:] {
			if a.Weight > best.Weight {
				best = a
			}
		}
		curID, curEIn = sgraph.VertexScaffold(best.To), sgraph.VertexEnd(best.To)
	}
	return chain
}

// Extract walks every chain implied by g over dict's n scaffolds,
// starting from true termini (a scaffold end with no surviving arc) and
// falling back to an arbitrary unvisited scaffold for any chain that
// never produced one (spec §4.7).
func Extract(dict *sdict.ADict, g *sgraph.Graph) [][]sdict.Placement {
	breakCycles(g)

	visited := make(map[int32]bool, dict.Len())
	var chains [][]sdict.Placement
	n := int32(dict.Len())

	for id := int32(0); id < n; id++ {
		if visited[id] {
			continue
		}
		right := g.OutArcs(sgraph.Vertex(id, 0))
		left := g.OutArcs(sgraph.Vertex(id, 1))
		switch {
		case len(right) == 0 && len(left) == 0:
			visited[id] = true
			chains = append(chains, []sdict.Placement{{ScaffoldID: id, Orient: sdict.Forward}})
		case len(right) == 0:
			chains = append(chains, walk(g, id, 0, visited))
		case len(left) == 0:
			chains = append(chains, walk(g, id, 1, visited))
		}
	}
	for id := int32(0); id < n; id++ {
		if !visited[id] {
			chains = append(chains, walk(g, id, 1, visited))
		}
	}
	return chains
}

// Build runs Extract and renders the resulting chains as a new ADict,
// naming scaffolds "scaffold_1", "scaffold_2", ... in descending order of
// assembled length (spec §6 "Scaffolds are emitted sorted by descending
// total length").
func Build(dict *sdict.ADict, g *sgraph.Graph) (*sdict.ADict, error) {
	newDict, _, err := BuildWithJoins(dict, g)
	return newDict, err
}

// BuildWithJoins is Build plus, for every new scaffold made of more than
// one placement, the internal coordinates where two placements meet
// (spec §4.8 scaffold-mode error break scans exactly these flanks).
func BuildWithJoins(dict *sdict.ADict, g *sgraph.Graph) (*sdict.ADict, map[string][]uint32, error) {
	chains := Extract(dict, g)

	type scored struct {
		chain  []sdict.Placement
		length uint64
		joins  []uint32
	}
	scoredChains := make([]scored, len(chains))
	for i, chain := range chains {
		var length uint64
		var joins []uint32
		for ci, p := range chain {
			if ci > 0 {
				joins = append(joins, uint32(length))
			}
			length += uint64(dict.Scaffold(p.ScaffoldID).TotalLen)
		}
		scoredChains[i] = scored{chain: chain, length: length, joins: joins}
	}
	sort.SliceStable(scoredChains, func(i, j int) bool { return scoredChains[i].length > scoredChains[j].length })

	names := make([]string, len(scoredChains))
	ordered := make([][]sdict.Placement, len(scoredChains))
	joins := make(map[string][]uint32, len(scoredChains))
	for i, sc := range scoredChains {
		name := fmt.Sprintf("scaffold_%d", i+1)
		names[i] = name
		ordered[i] = sc.chain
		if len(sc.joins) > 0 {
			joins[name] = sc.joins
		}
	}
	newDict, err := sdict.FromPlacements(dict, names, ordered)
	if err != nil {
		return nil, nil, err
	}
	return newDict, joins, nil
}
