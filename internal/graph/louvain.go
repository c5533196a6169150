package graph

import "sort"

const louvainMaxPasses = 100

// weighted is one level of the Louvain hierarchy. Self-loops hold the weight
// internal to an aggregated community.
type weighted struct {
	adj      []map[int]float64
	strength []float64
	total    float64 // sum of strengths, i.e. 2m
}

func newWeighted(n int) *weighted {
	w := &weighted{adj: make([]map[int]float64, n), strength: make([]float64, n)}
	for i := range w.adj {
		w.adj[i] = make(map[int]float64)
	}
	return w
}

func (w *weighted) add(u, v int, weight float64) {
	if u == v {
		w.adj[u][u] += weight
		return
	}
	w.adj[u][v] += weight
	w.adj[v][u] += weight
}

func (w *weighted) finish() {
	w.total = 0
	for i, nb := range w.adj {
		s := 0.0
		for j, wt := range nb {
			if j == i {
				s += 2 * wt
			} else {
				s += wt
			}
		}
		w.strength[i] = s
		w.total += s
	}
}

func sortedKeys(m map[int]float64) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Louvain partitions g by greedy modularity optimisation with the given
// resolution, using edge weights. Nodes are visited in index order and ties
// keep the current community, so the result is deterministic.
func Louvain(g *Graph, resolution float64) [][]int {
	n := g.NodeCount()
	if n == 0 {
		return nil
	}
	if resolution <= 0 {
		resolution = 1
	}

	level := newWeighted(n)
	for k, e := range g.edges {
		level.add(k.u, k.v, e.Weight)
	}
	level.finish()

	// membership of each original node in the current level's nodes
	member := make([]int, n)
	for i := range member {
		member[i] = i
	}

	for {
		comm, moved := louvainMoves(level, resolution)
		if !moved {
			break
		}
		renum, count := renumber(comm)
		for i := range member {
			member[i] = renum[member[i]]
		}
		level = aggregate(level, renum, count)
		if count == len(comm) {
			break
		}
	}

	return groupBy(member)
}

// louvainMoves runs local moving until no node changes community.
func louvainMoves(w *weighted, resolution float64) ([]int, bool) {
	n := len(w.adj)
	comm := make([]int, n)
	tot := make([]float64, n)
	for i := range comm {
		comm[i] = i
		tot[i] = w.strength[i]
	}
	if w.total == 0 {
		return comm, false
	}

	moved := false
	for pass := 0; pass < louvainMaxPasses; pass++ {
		changed := false
		for i := 0; i < n; i++ {
			ki := w.strength[i]
			own := comm[i]

			links := make(map[int]float64)
			for j, wt := range w.adj[i] {
				if j != i {
					links[comm[j]] += wt
				}
			}

			tot[own] -= ki
			best := own
			bestGain := links[own] - resolution*tot[own]*ki/w.total
			for _, c := range sortedKeys(links) {
				gain := links[c] - resolution*tot[c]*ki/w.total
				if gain > bestGain+1e-12 {
					best, bestGain = c, gain
				}
			}
			tot[best] += ki
			if best != own {
				comm[i] = best
				changed = true
				moved = true
			}
		}
		if !changed {
			break
		}
	}
	return comm, moved
}

// renumber maps community labels to 0..count-1 in order of first appearance.
func renumber(comm []int) ([]int, int) {
	ids := make(map[int]int)
	out := make([]int, len(comm))
	for i, c := range comm {
		id, ok := ids[c]
		if !ok {
			id = len(ids)
			ids[c] = id
		}
		out[i] = id
	}
	return out, len(ids)
}

func aggregate(w *weighted, comm []int, count int) *weighted {
	next := newWeighted(count)
	for u, nb := range w.adj {
		for v, wt := range nb {
			switch {
			case u == v:
				next.add(comm[u], comm[u], wt)
			case u < v:
				next.add(comm[u], comm[v], wt)
			}
		}
	}
	next.finish()
	return next
}

// groupBy turns a node -> label slice into communities ordered by their
// smallest member.
func groupBy(labels []int) [][]int {
	byLabel := make(map[int]int)
	var out [][]int
	for i, l := range labels {
		idx, ok := byLabel[l]
		if !ok {
			idx = len(out)
			byLabel[l] = idx
			out = append(out, nil)
		}
		out[idx] = append(out[idx], i)
	}
	return out
}
