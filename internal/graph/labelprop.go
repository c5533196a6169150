package graph

const labelPropagationMaxIter = 100

// LabelPropagation finds communities by repeatedly adopting the most common
// neighbour label. Updates are asynchronous in node order; a node keeps its
// label when it is among the most common, otherwise it takes the smallest.
func LabelPropagation(g *Graph) [][]int {
	n := g.NodeCount()
	if n == 0 {
		return nil
	}
	labels := make([]int, n)
	for i := range labels {
		labels[i] = i
	}

	counts := make(map[int]int)
	for iter := 0; iter < labelPropagationMaxIter; iter++ {
		changed := false
		for i := 0; i < n; i++ {
			nbrs := g.Neighbors(i)
			if len(nbrs) == 0 {
				continue
			}
			for k := range counts {
				delete(counts, k)
			}
			maxCount := 0
			for _, v := range nbrs {
				counts[labels[v]]++
				if counts[labels[v]] > maxCount {
					maxCount = counts[labels[v]]
				}
			}
			if counts[labels[i]] == maxCount {
				continue
			}
			best := -1
			for l, c := range counts {
				if c == maxCount && (best < 0 || l < best) {
					best = l
				}
			}
			labels[i] = best
			changed = true
		}
		if !changed {
			break
		}
	}
	return groupBy(labels)
}
