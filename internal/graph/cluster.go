package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Supported community detection algorithms.
const (
	AlgorithmLouvain          = "louvain"
	AlgorithmLabelPropagation = "label_propagation"
)

// DetectOptions tune one detection pass. Zero values take the detector defaults.
type DetectOptions struct {
	Algorithm  string
	MinSize    int
	Resolution float64
}

// Detection is the outcome of a detection pass.
type Detection struct {
	Clusters    []domain.SyntheticCluster
	Assignments map[string]string
	NodeCount   int
	EdgeCount   int
	Options     DetectOptions
}

// ClusterDetector partitions a tenant's identity graph into suspected rings.
type ClusterDetector struct {
	store    domain.GraphStore
	defaults domain.ClusterConfig
}

// NewClusterDetector creates a detector reading snapshots from store.
func NewClusterDetector(store domain.GraphStore, cfg domain.ClusterConfig) *ClusterDetector {
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmLouvain
	}
	if cfg.MinClusterSize <= 0 {
		cfg.MinClusterSize = 3
	}
	if cfg.Resolution <= 0 {
		cfg.Resolution = 1.0
	}
	return &ClusterDetector{store: store, defaults: cfg}
}

func (d *ClusterDetector) resolve(opts DetectOptions) (DetectOptions, error) {
	if opts.Algorithm == "" {
		opts.Algorithm = d.defaults.Algorithm
	}
	if opts.MinSize <= 0 {
		opts.MinSize = d.defaults.MinClusterSize
	}
	if opts.Resolution <= 0 {
		opts.Resolution = d.defaults.Resolution
	}
	switch opts.Algorithm {
	case AlgorithmLouvain, AlgorithmLabelPropagation:
		return opts, nil
	default:
		return opts, fmt.Errorf("%w: %s", domain.ErrUnknownAlgorithm, opts.Algorithm)
	}
}

// Detect reads the tenant snapshot and returns scored clusters.
func (d *ClusterDetector) Detect(ctx context.Context, tenantID string, opts DetectOptions) (*Detection, error) {
	opts, err := d.resolve(opts)
	if err != nil {
		return nil, err
	}
	snap, err := d.store.Snapshot(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load graph snapshot: %w", err)
	}
	return DetectClusters(Build(snap), opts)
}

// DetectClusters partitions g and scores every community of at least
// opts.MinSize members. Options must already be resolved.
func DetectClusters(g *Graph, opts DetectOptions) (*Detection, error) {
	det := &Detection{
		Clusters:    []domain.SyntheticCluster{},
		Assignments: make(map[string]string),
		NodeCount:   g.NodeCount(),
		EdgeCount:   g.EdgeCount(),
		Options:     opts,
	}
	if g.NodeCount() == 0 {
		return det, nil
	}

	var communities [][]int
	switch opts.Algorithm {
	case AlgorithmLouvain:
		communities = Louvain(g, opts.Resolution)
	case AlgorithmLabelPropagation:
		communities = LabelPropagation(g)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAlgorithm, opts.Algorithm)
	}

	for i, members := range communities {
		if len(members) < opts.MinSize {
			continue
		}
		c := AnalyzeCluster(g, members, fmt.Sprintf("cluster_%d", i))
		det.Clusters = append(det.Clusters, c)
		for _, id := range c.Members {
			det.Assignments[id] = c.ClusterID
		}
	}

	sort.SliceStable(det.Clusters, func(i, j int) bool {
		if det.Clusters[i].Score != det.Clusters[j].Score {
			return det.Clusters[i].Score > det.Clusters[j].Score
		}
		return det.Clusters[i].ClusterID < det.Clusters[j].ClusterID
	})
	return det, nil
}

// AnalyzeCluster tallies shared elements, picks a centre and scores a community.
func AnalyzeCluster(g *Graph, members []int, clusterID string) domain.SyntheticCluster {
	sorted := append([]int(nil), members...)
	sort.Ints(sorted)

	in := make(map[int]bool, len(sorted))
	for _, m := range sorted {
		in[m] = true
	}

	shared := map[domain.ElementType]int{}
	degree := make(map[int]int, len(sorted))
	edges := 0
	for _, u := range sorted {
		for _, v := range g.Neighbors(u) {
			if !in[v] {
				continue
			}
			degree[u]++
			if v < u {
				continue
			}
			edges++
			for _, t := range g.Edge(u, v).Types {
				shared[t]++
			}
		}
	}

	center := sorted[0]
	for _, m := range sorted[1:] {
		if degree[m] > degree[center] {
			center = m
		}
	}

	ids := make([]string, len(sorted))
	for i, m := range sorted {
		ids[i] = g.ID(m)
	}

	density := Density(len(sorted), edges)
	score := ClusterScore(len(sorted), shared, density)
	return domain.SyntheticCluster{
		ClusterID:      clusterID,
		Members:        ids,
		SharedElements: shared,
		Score:          score,
		CenterIdentity: g.ID(center),
		RiskLevel:      ClusterRiskLevel(score),
		Density:        density,
	}
}

// ClusterScore estimates how likely a community is a synthetic ring.
func ClusterScore(size int, shared map[domain.ElementType]int, density float64) float64 {
	score := 0.0
	if shared[domain.ElementSSN] > 0 {
		score += 0.5
	}
	if shared[domain.ElementPhone] > size {
		score += 0.2
	}
	if shared[domain.ElementDevice] > 0 {
		score += 0.15
	}
	score += density * 0.15
	switch {
	case size >= 10:
		score += 0.1
	case size >= 5:
		score += 0.05
	}
	return domain.Clamp(score)
}

// ClusterRiskLevel maps a cluster score to a risk level. Clusters are never minimal.
func ClusterRiskLevel(score float64) domain.RiskLevel {
	switch {
	case score >= 0.8:
		return domain.RiskCritical
	case score >= 0.6:
		return domain.RiskHigh
	case score >= 0.4:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}
