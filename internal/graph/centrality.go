package graph

import (
	"math"
	"sort"
)

const (
	pageRankDamping   = 0.85
	pageRankMaxIter   = 100
	pageRankTolerance = 1e-6

	// Betweenness switches to pivot sampling above this many nodes.
	betweennessSampleAbove = 10000
	betweennessPivots      = 500
)

// PageRank runs unweighted power iteration. Dangling mass is spread uniformly.
func PageRank(g *Graph) []float64 {
	n := g.NodeCount()
	if n == 0 {
		return nil
	}
	rank := make([]float64, n)
	for i := range rank {
		rank[i] = 1 / float64(n)
	}
	next := make([]float64, n)

	for iter := 0; iter < pageRankMaxIter; iter++ {
		dangling := 0.0
		for i := 0; i < n; i++ {
			if g.Degree(i) == 0 {
				dangling += rank[i]
			}
		}
		base := (1-pageRankDamping)/float64(n) + pageRankDamping*dangling/float64(n)
		for i := range next {
			next[i] = base
		}
		for u := 0; u < n; u++ {
			d := g.Degree(u)
			if d == 0 {
				continue
			}
			share := pageRankDamping * rank[u] / float64(d)
			for _, v := range g.Neighbors(u) {
				next[v] += share
			}
		}

		diff := 0.0
		for i := range rank {
			diff += math.Abs(next[i] - rank[i])
		}
		rank, next = next, rank
		if diff < float64(n)*pageRankTolerance {
			break
		}
	}
	return rank
}

// Betweenness computes normalized shortest-path betweenness with Brandes'
// algorithm. Graphs above the sampling size use evenly spaced pivots in node
// order and rescale by n/k.
func Betweenness(g *Graph) []float64 {
	n := g.NodeCount()
	bc := make([]float64, n)
	if n < 3 {
		return bc
	}

	sources := make([]int, 0, n)
	if n > betweennessSampleAbove {
		k := betweennessPivots
		for i := 0; i < k; i++ {
			sources = append(sources, i*n/k)
		}
	} else {
		for i := 0; i < n; i++ {
			sources = append(sources, i)
		}
	}

	sigma := make([]float64, n)
	dist := make([]int, n)
	delta := make([]float64, n)
	preds := make([][]int, n)
	stack := make([]int, 0, n)
	queue := make([]int, 0, n)

	for _, s := range sources {
		for i := 0; i < n; i++ {
			sigma[i] = 0
			dist[i] = -1
			delta[i] = 0
			preds[i] = preds[i][:0]
		}
		stack = stack[:0]
		queue = append(queue[:0], s)
		sigma[s] = 1
		dist[s] = 0

		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range g.Neighbors(v) {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				bc[w] += delta[w]
			}
		}
	}

	scale := 1 / (float64(n-1) * float64(n-2))
	if len(sources) < n {
		scale *= float64(n) / float64(len(sources))
	}
	for i := range bc {
		bc[i] *= scale
	}
	return bc
}

// ClusteringCoefficient is the fraction of node i's neighbour pairs that are
// themselves connected.
func ClusteringCoefficient(g *Graph, i int) float64 {
	nbrs := g.Neighbors(i)
	d := len(nbrs)
	if d < 2 {
		return 0
	}
	links := 0
	for a := 0; a < d; a++ {
		for b := a + 1; b < d; b++ {
			if g.Edge(nbrs[a], nbrs[b]) != nil {
				links++
			}
		}
	}
	return 2 * float64(links) / float64(d*(d-1))
}

// Components labels every node with its connected component. Component ids
// follow the order of each component's smallest node; members are sorted.
func Components(g *Graph) (label []int, members [][]int) {
	n := g.NodeCount()
	label = make([]int, n)
	for i := range label {
		label[i] = -1
	}
	for s := 0; s < n; s++ {
		if label[s] >= 0 {
			continue
		}
		id := len(members)
		comp := []int{s}
		label[s] = id
		for q := 0; q < len(comp); q++ {
			for _, v := range g.Neighbors(comp[q]) {
				if label[v] < 0 {
					label[v] = id
					comp = append(comp, v)
				}
			}
		}
		sort.Ints(comp)
		members = append(members, comp)
	}
	return label, members
}
