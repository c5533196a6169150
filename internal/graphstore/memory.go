package graphstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type elementKey struct {
	t    domain.ElementType
	hash string
}

type link struct {
	firstSeen time.Time
	lastSeen  time.Time
}

type memIdentity struct {
	identity domain.Identity
	links    map[elementKey]*link
}

type memGraph struct {
	identities     map[string]*memIdentity
	elements       map[elementKey]map[string]bool
	clusterVersion int64
}

// MemoryStore is an in-process GraphStore for the Community tier and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]*memGraph
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory graph.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants: make(map[string]*memGraph),
		now:     time.Now,
	}
}

func (s *MemoryStore) tenant(tenantID string) *memGraph {
	g, ok := s.tenants[tenantID]
	if !ok {
		g = &memGraph{
			identities: make(map[string]*memIdentity),
			elements:   make(map[elementKey]map[string]bool),
		}
		s.tenants[tenantID] = g
	}
	return g
}

// AddIdentity merges the identity and links it to each element it carries.
// Links are never removed; a changed element adds a new link.
func (s *MemoryStore) AddIdentity(ctx context.Context, tenantID string, identity *domain.Identity) error {
	if identity == nil {
		return fmt.Errorf("%w: identity is required", domain.ErrInvalidInput)
	}
	if err := requireIDs(tenantID, identity.ID); err != nil {
		return err
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.tenant(tenantID)
	node, ok := g.identities[identity.ID]
	if !ok {
		node = &memIdentity{links: make(map[elementKey]*link)}
		node.identity.FirstSeen = now
		g.identities[identity.ID] = node
	}

	firstSeen := node.identity.FirstSeen
	score, cluster := node.identity.SyntheticScore, node.identity.ClusterID
	node.identity = *identity
	node.identity.TenantID = tenantID
	node.identity.FirstSeen = firstSeen
	node.identity.LastSeen = now
	node.identity.SyntheticScore = score
	node.identity.ClusterID = cluster

	for _, t := range domain.ElementTypes {
		hash := identity.Element(t)
		if hash == "" {
			continue
		}
		k := elementKey{t, hash}
		l, ok := node.links[k]
		if !ok {
			l = &link{firstSeen: now}
			node.links[k] = l
		}
		l.lastSeen = now

		members, ok := g.elements[k]
		if !ok {
			members = make(map[string]bool)
			g.elements[k] = members
		}
		members[identity.ID] = true
	}
	return nil
}

// GetIdentitySubgraph walks identity-element edges up to depth hops.
func (s *MemoryStore) GetIdentitySubgraph(ctx context.Context, tenantID string, identityID string, depth int) (*domain.Subgraph, error) {
	if err := requireIDs(tenantID, identityID); err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = 2
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	g := s.tenants[tenantID]
	if g == nil || g.identities[identityID] == nil {
		return nil, fmt.Errorf("%w: identity %s", domain.ErrNotFound, identityID)
	}

	sub := &domain.Subgraph{IdentityID: identityID, Depth: depth}
	seenIdentity := map[string]bool{identityID: true}
	seenElement := map[elementKey]bool{}
	seenEdge := map[string]bool{}
	sub.Nodes = append(sub.Nodes, domain.SubgraphNode{ID: identityID, Label: "Identity"})

	frontier := []string{identityID}
	for hop := 0; hop < depth && len(frontier) > 0; hop += 2 {
		var next []string
		for _, id := range frontier {
			node := g.identities[id]
			for _, k := range sortedLinks(node.links) {
				elemID := elementNodeID(k.t, k.hash)
				edgeKey := id + "|" + elemID
				if !seenEdge[edgeKey] {
					seenEdge[edgeKey] = true
					l := node.links[k]
					sub.Edges = append(sub.Edges, domain.SubgraphEdge{
						From:      id,
						To:        elemID,
						Type:      relType(k.t),
						FirstSeen: l.firstSeen,
						LastSeen:  l.lastSeen,
					})
				}
				if !seenElement[k] {
					seenElement[k] = true
					sub.Nodes = append(sub.Nodes, domain.SubgraphNode{ID: elemID, Label: nodeLabel(k.t)})
				}
				if hop+1 >= depth {
					continue
				}
				for _, other := range sortedMembers(g.elements[k]) {
					if other == id {
						continue
					}
					otherLink := g.identities[other].links[k]
					edgeKey := other + "|" + elemID
					if !seenEdge[edgeKey] {
						seenEdge[edgeKey] = true
						sub.Edges = append(sub.Edges, domain.SubgraphEdge{
							From:      other,
							To:        elemID,
							Type:      relType(k.t),
							FirstSeen: otherLink.firstSeen,
							LastSeen:  otherLink.lastSeen,
						})
					}
					if !seenIdentity[other] {
						seenIdentity[other] = true
						sub.Nodes = append(sub.Nodes, domain.SubgraphNode{ID: other, Label: "Identity"})
						next = append(next, other)
					}
				}
			}
		}
		frontier = next
	}
	return sub, nil
}

func sortedLinks(links map[elementKey]*link) []elementKey {
	keys := make([]elementKey, 0, len(links))
	for k := range links {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].t != keys[j].t {
			return keys[i].t < keys[j].t
		}
		return keys[i].hash < keys[j].hash
	})
	return keys
}

func sortedMembers(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// FindSharedElements lists, per element type, the other identities sharing it.
func (s *MemoryStore) FindSharedElements(ctx context.Context, tenantID string, identityID string) (map[domain.ElementType][]string, error) {
	if err := requireIDs(tenantID, identityID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	g := s.tenants[tenantID]
	if g == nil || g.identities[identityID] == nil {
		return nil, fmt.Errorf("%w: identity %s", domain.ErrNotFound, identityID)
	}

	shared := emptyShared()
	seen := make(map[domain.ElementType]map[string]bool)
	for k := range g.identities[identityID].links {
		for other := range g.elements[k] {
			if other == identityID {
				continue
			}
			if seen[k.t] == nil {
				seen[k.t] = make(map[string]bool)
			}
			seen[k.t][other] = true
		}
	}
	for t, ids := range seen {
		shared[t] = sortedMembers(ids)
	}
	return shared, nil
}

// UpdateSyntheticScore stores the latest score on the identity.
func (s *MemoryStore) UpdateSyntheticScore(ctx context.Context, tenantID string, identityID string, score float64) error {
	if err := requireIDs(tenantID, identityID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.tenants[tenantID]
	if g == nil || g.identities[identityID] == nil {
		return fmt.Errorf("%w: identity %s", domain.ErrNotFound, identityID)
	}
	g.identities[identityID].identity.SyntheticScore = domain.Clamp(score)
	return nil
}

// AssignCluster sets one identity's cluster outside a versioned commit.
func (s *MemoryStore) AssignCluster(ctx context.Context, tenantID string, identityID string, clusterID string) error {
	if err := requireIDs(tenantID, identityID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.tenants[tenantID]
	if g == nil || g.identities[identityID] == nil {
		return fmt.Errorf("%w: identity %s", domain.ErrNotFound, identityID)
	}
	g.identities[identityID].identity.ClusterID = clusterID
	return nil
}

// CommitClusterAssignments swaps in a new partition atomically. Versions must increase.
func (s *MemoryStore) CommitClusterAssignments(ctx context.Context, tenantID string, version int64, assignments map[string]string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.tenant(tenantID)
	if version <= g.clusterVersion {
		return fmt.Errorf("%w: %d is not newer than %d", domain.ErrStaleClusterVersion, version, g.clusterVersion)
	}
	for id, node := range g.identities {
		if c, ok := assignments[id]; ok {
			node.identity.ClusterID = c
		} else {
			node.identity.ClusterID = ""
		}
	}
	g.clusterVersion = version
	return nil
}

// ClusterVersion returns the tenant's last committed assignment version.
func (s *MemoryStore) ClusterVersion(ctx context.Context, tenantID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if g := s.tenants[tenantID]; g != nil {
		return g.clusterVersion, nil
	}
	return 0, nil
}

// SharesAddressWithSSN reports whether identityID lives at an address used by
// another identity holding ssnHash.
func (s *MemoryStore) SharesAddressWithSSN(ctx context.Context, tenantID string, identityID string, ssnHash string) (bool, error) {
	if err := requireIDs(tenantID, identityID); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	g := s.tenants[tenantID]
	if g == nil || g.identities[identityID] == nil {
		return false, nil
	}
	holders := g.elements[elementKey{domain.ElementSSN, ssnHash}]
	if len(holders) == 0 {
		return false, nil
	}
	for k := range g.identities[identityID].links {
		if k.t != domain.ElementAddress {
			continue
		}
		for resident := range g.elements[k] {
			if resident != identityID && holders[resident] {
				return true, nil
			}
		}
	}
	return false, nil
}

// Snapshot emits one link per identity pair and shared element type.
func (s *MemoryStore) Snapshot(ctx context.Context, tenantID string) (*domain.GraphSnapshot, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &domain.GraphSnapshot{Nodes: make(map[string]domain.NodeAttributes)}
	g := s.tenants[tenantID]
	if g == nil {
		return snap, nil
	}
	for id, node := range g.identities {
		snap.Nodes[id] = domain.NodeAttributes{
			SyntheticScore: node.identity.SyntheticScore,
			ClusterID:      node.identity.ClusterID,
		}
	}

	seen := make(map[domain.SharingLink]bool)
	for k, members := range g.elements {
		if len(members) < 2 {
			continue
		}
		ids := sortedMembers(members)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				l := domain.SharingLink{A: ids[i], B: ids[j], Type: k.t}
				if !seen[l] {
					seen[l] = true
					snap.Links = append(snap.Links, l)
				}
			}
		}
	}
	sort.Slice(snap.Links, func(i, j int) bool {
		a, b := snap.Links[i], snap.Links[j]
		if a.A != b.A {
			return a.A < b.A
		}
		if a.B != b.B {
			return a.B < b.B
		}
		return a.Type < b.Type
	})
	return snap, nil
}

// Identity returns a copy of a stored identity.
func (s *MemoryStore) Identity(tenantID, identityID string) (*domain.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := s.tenants[tenantID]
	if g == nil || g.identities[identityID] == nil {
		return nil, false
	}
	cp := g.identities[identityID].identity
	return &cp, true
}

// Ping checks store health.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close releases all data.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants = make(map[string]*memGraph)
	return nil
}
