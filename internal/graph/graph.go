// Package graph implements identity-graph analytics: feature extraction,
// community detection and versioned cluster runs.
package graph

import (
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// LinkWeight is the edge weight contributed by one shared element type.
func LinkWeight(t domain.ElementType) float64 {
	switch t {
	case domain.ElementSSN:
		return 1.0
	case domain.ElementDevice:
		return 0.7
	case domain.ElementPhone:
		return 0.6
	case domain.ElementEmail:
		return 0.5
	case domain.ElementAddress:
		return 0.4
	default:
		return 0.3
	}
}

// Edge joins two identities that share at least one element.
type Edge struct {
	Types  []domain.ElementType
	Weight float64
}

// Has reports whether the edge carries the element type.
func (e *Edge) Has(t domain.ElementType) bool {
	for _, et := range e.Types {
		if et == t {
			return true
		}
	}
	return false
}

type pair struct{ u, v int }

func pairOf(u, v int) pair {
	if u > v {
		u, v = v, u
	}
	return pair{u, v}
}

// Graph is an immutable undirected identity graph. Nodes are indexed in
// sorted id order and neighbour lists are sorted, so every traversal is
// deterministic.
type Graph struct {
	ids   []string
	index map[string]int
	attrs []domain.NodeAttributes
	nbrs  [][]int
	edges map[pair]*Edge
}

// Build creates a graph from a snapshot. Repeated links of the same type
// between a pair count once.
func Build(s *domain.GraphSnapshot) *Graph {
	g := &Graph{
		index: make(map[string]int),
		edges: make(map[pair]*Edge),
	}
	if s == nil {
		return g
	}

	seen := make(map[string]bool, len(s.Nodes))
	for id := range s.Nodes {
		seen[id] = true
	}
	for _, l := range s.Links {
		if l.A == "" || l.B == "" {
			continue
		}
		seen[l.A] = true
		seen[l.B] = true
	}
	g.ids = make([]string, 0, len(seen))
	for id := range seen {
		g.ids = append(g.ids, id)
	}
	sort.Strings(g.ids)

	g.attrs = make([]domain.NodeAttributes, len(g.ids))
	g.nbrs = make([][]int, len(g.ids))
	for i, id := range g.ids {
		g.index[id] = i
		g.attrs[i] = s.Nodes[id]
	}

	for _, l := range s.Links {
		if l.A == "" || l.B == "" || l.A == l.B {
			continue
		}
		u, v := g.index[l.A], g.index[l.B]
		k := pairOf(u, v)
		e, ok := g.edges[k]
		if !ok {
			e = &Edge{}
			g.edges[k] = e
			g.nbrs[u] = append(g.nbrs[u], v)
			g.nbrs[v] = append(g.nbrs[v], u)
		}
		if !e.Has(l.Type) {
			e.Types = append(e.Types, l.Type)
			e.Weight += LinkWeight(l.Type)
		}
	}

	for i := range g.nbrs {
		sort.Ints(g.nbrs[i])
	}
	for _, e := range g.edges {
		sort.Slice(e.Types, func(i, j int) bool { return e.Types[i] < e.Types[j] })
	}
	return g
}

// NodeCount returns the number of identities.
func (g *Graph) NodeCount() int { return len(g.ids) }

// EdgeCount returns the number of identity pairs that share anything.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// ID returns the identity id of node i.
func (g *Graph) ID(i int) string { return g.ids[i] }

// Index returns the node index of an identity.
func (g *Graph) Index(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Attrs returns the stored attributes of node i.
func (g *Graph) Attrs(i int) domain.NodeAttributes { return g.attrs[i] }

// Neighbors returns the sorted neighbours of node i.
func (g *Graph) Neighbors(i int) []int { return g.nbrs[i] }

// Degree returns the number of neighbours of node i.
func (g *Graph) Degree(i int) int { return len(g.nbrs[i]) }

// Edge returns the edge between u and v, or nil.
func (g *Graph) Edge(u, v int) *Edge { return g.edges[pairOf(u, v)] }

// Density is 2m / (n(n-1)); 0 for fewer than two nodes.
func Density(nodes, edges int) float64 {
	if nodes < 2 {
		return 0
	}
	return 2 * float64(edges) / (float64(nodes) * float64(nodes-1))
}

// InducedEdges counts edges with both ends in members.
func (g *Graph) InducedEdges(members []int) int {
	in := make(map[int]bool, len(members))
	for _, m := range members {
		in[m] = true
	}
	n := 0
	for _, m := range members {
		for _, v := range g.nbrs[m] {
			if v > m && in[v] {
				n++
			}
		}
	}
	return n
}
