package graph

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"golang.org/x/sync/singleflight"
)

// analysis is a graph with its precomputed global metrics.
type analysis struct {
	g             *Graph
	pagerank      []float64
	betweenness   []float64
	component     []int
	components    [][]int
	componentEdge []int
	communitySize map[string]int
	builtAt       time.Time
}

func analyze(g *Graph, now time.Time) *analysis {
	a := &analysis{
		g:             g,
		pagerank:      PageRank(g),
		betweenness:   Betweenness(g),
		communitySize: make(map[string]int),
		builtAt:       now,
	}
	a.component, a.components = Components(g)
	a.componentEdge = make([]int, len(a.components))
	for k := range g.edges {
		a.componentEdge[a.component[k.u]]++
	}
	for i := 0; i < g.NodeCount(); i++ {
		if c := g.Attrs(i).ClusterID; c != "" {
			a.communitySize[c]++
		}
	}
	return a
}

// Extractor computes per-identity graph features from a cached tenant graph.
// The cache is dropped by Invalidate or when older than maxAge. Concurrent
// misses for one tenant share a single rebuild.
type Extractor struct {
	store  domain.GraphStore
	maxAge time.Duration
	now    func() time.Time
	flight singleflight.Group

	mu    sync.RWMutex
	cache map[string]*analysis
	gen   map[string]uint64
}

// NewExtractor creates a feature extractor. maxAge <= 0 keeps graphs until invalidated.
func NewExtractor(store domain.GraphStore, maxAge time.Duration) *Extractor {
	return &Extractor{
		store:  store,
		maxAge: maxAge,
		now:    time.Now,
		cache:  make(map[string]*analysis),
		gen:    make(map[string]uint64),
	}
}

// Invalidate drops the cached graph of a tenant.
func (e *Extractor) Invalidate(tenantID string) {
	e.mu.Lock()
	delete(e.cache, tenantID)
	e.gen[tenantID]++
	e.mu.Unlock()
}

func (e *Extractor) load(ctx context.Context, tenantID string) (*analysis, error) {
	e.mu.RLock()
	a, ok := e.cache[tenantID]
	e.mu.RUnlock()
	if ok && (e.maxAge <= 0 || e.now().Sub(a.builtAt) < e.maxAge) {
		return a, nil
	}

	v, err, _ := e.flight.Do(tenantID, func() (any, error) {
		e.mu.RLock()
		gen := e.gen[tenantID]
		e.mu.RUnlock()

		snap, err := e.store.Snapshot(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to load graph snapshot: %w", err)
		}
		a := analyze(Build(snap), e.now())

		// a build that raced an Invalidate is served once but not cached
		e.mu.Lock()
		if e.gen[tenantID] == gen {
			e.cache[tenantID] = a
		}
		e.mu.Unlock()
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*analysis), nil
}

// Extract returns the features of one identity. An identity absent from the
// graph gets empty features.
func (e *Extractor) Extract(ctx context.Context, tenantID, identityID string) (*domain.GraphFeatures, error) {
	a, err := e.load(ctx, tenantID)
	if err != nil {
		f := domain.EmptyGraphFeatures()
		return &f, err
	}
	f := a.features(identityID)
	return &f, nil
}

// ExtractCurrent returns the features of one identity with its neighbourhood
// read from the store, so elements shared since the last build are counted.
// Centrality and community metrics come from the cached build. Neighbours
// absent from that build have no known score and are left out of the
// neighbour score averages.
func (e *Extractor) ExtractCurrent(ctx context.Context, tenantID, identityID string) (*domain.GraphFeatures, error) {
	a, err := e.load(ctx, tenantID)
	if err != nil {
		f := domain.EmptyGraphFeatures()
		return &f, err
	}

	shared, err := e.store.FindSharedElements(ctx, tenantID, identityID)
	if errors.Is(err, domain.ErrNotFound) {
		f := domain.EmptyGraphFeatures()
		return &f, nil
	}
	if err != nil {
		f := domain.EmptyGraphFeatures()
		return &f, fmt.Errorf("failed to read shared elements: %w", err)
	}
	f := a.overlay(identityID, shared)
	return &f, nil
}

// ExtractBatch returns features for several identities from one graph load.
func (e *Extractor) ExtractBatch(ctx context.Context, tenantID string, identityIDs []string) ([]domain.GraphFeatures, error) {
	a, err := e.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.GraphFeatures, len(identityIDs))
	for i, id := range identityIDs {
		out[i] = a.features(id)
	}
	return out, nil
}

func (a *analysis) features(identityID string) domain.GraphFeatures {
	g := a.g
	i, ok := g.Index(identityID)
	if !ok {
		return domain.EmptyGraphFeatures()
	}

	f := domain.GraphFeatures{
		Degree:                float64(g.Degree(i)),
		ClusteringCoefficient: ClusteringCoefficient(g, i),
		Betweenness:           a.betweenness[i],
		PageRank:              a.pagerank[i],
	}

	var sum, maxScore float64
	for _, v := range g.Neighbors(i) {
		edge := g.Edge(i, v)
		f.WeightedDegree += float64(len(edge.Types))
		for _, t := range edge.Types {
			switch t {
			case domain.ElementSSN:
				f.SharedSSNCount++
			case domain.ElementAddress:
				f.SharedAddressCount++
			case domain.ElementPhone:
				f.SharedPhoneCount++
			case domain.ElementEmail:
				f.SharedEmailCount++
			case domain.ElementDevice:
				f.SharedDeviceCount++
			}
		}

		s := g.Attrs(v).SyntheticScore
		sum += s
		if s > maxScore {
			maxScore = s
		}
		if s > 0.5 {
			f.HighRiskNeighborCount++
		}
	}
	if d := g.Degree(i); d > 0 {
		f.NeighborAvgScore = sum / float64(d)
		f.NeighborMaxScore = maxScore
	}

	c := a.component[i]
	f.ClusterSize = len(a.components[c])
	f.ClusterDensity = Density(f.ClusterSize, a.componentEdge[c])

	f.ClusterID = g.Attrs(i).ClusterID
	if f.ClusterID != "" {
		f.CommunitySize = a.communitySize[f.ClusterID]
	}
	return f
}

// overlay computes features for an identity whose links are given by shared,
// merging the cached components it touches.
func (a *analysis) overlay(identityID string, shared map[domain.ElementType][]string) domain.GraphFeatures {
	g := a.g
	f := domain.GraphFeatures{}

	types := make(map[string]int)
	for t, ids := range shared {
		for _, id := range ids {
			types[id]++
		}
		switch t {
		case domain.ElementSSN:
			f.SharedSSNCount = len(ids)
		case domain.ElementAddress:
			f.SharedAddressCount = len(ids)
		case domain.ElementPhone:
			f.SharedPhoneCount = len(ids)
		case domain.ElementEmail:
			f.SharedEmailCount = len(ids)
		case domain.ElementDevice:
			f.SharedDeviceCount = len(ids)
		}
	}
	f.Degree = float64(len(types))

	i, cached := g.Index(identityID)
	if cached {
		f.ClusteringCoefficient = ClusteringCoefficient(g, i)
		f.Betweenness = a.betweenness[i]
		f.PageRank = a.pagerank[i]
		f.ClusterID = g.Attrs(i).ClusterID
		if f.ClusterID != "" {
			f.CommunitySize = a.communitySize[f.ClusterID]
		}
	}

	merged := make(map[int]bool)
	size, edges := 0, 0
	join := func(id string) {
		j, ok := g.Index(id)
		if !ok {
			size++
			return
		}
		if c := a.component[j]; !merged[c] {
			merged[c] = true
			size += len(a.components[c])
			edges += a.componentEdge[c]
		}
	}
	join(identityID)

	var sum, maxScore float64
	scored := 0
	for _, id := range slices.Sorted(maps.Keys(types)) {
		f.WeightedDegree += float64(types[id])
		join(id)

		j, ok := g.Index(id)
		if !ok || !cached || g.Edge(i, j) == nil {
			edges++
		}
		if !ok {
			continue
		}
		s := g.Attrs(j).SyntheticScore
		sum += s
		scored++
		if s > maxScore {
			maxScore = s
		}
		if s > 0.5 {
			f.HighRiskNeighborCount++
		}
	}
	if scored > 0 {
		f.NeighborAvgScore = sum / float64(scored)
		f.NeighborMaxScore = maxScore
	}

	f.ClusterSize = size
	f.ClusterDensity = Density(size, edges)
	return f
}
