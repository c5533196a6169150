package domain

import (
	"context"
	"time"
)

// GraphStore persists identities, their PII elements and cluster assignments.
// All methods require tenantID for strict multi-tenancy isolation.
type GraphStore interface {
	// AddIdentity merges the identity node, its element nodes and the edges between them.
	AddIdentity(ctx context.Context, tenantID string, identity *Identity) error

	// GetIdentitySubgraph returns the neighbourhood of an identity up to depth hops.
	GetIdentitySubgraph(ctx context.Context, tenantID string, identityID string, depth int) (*Subgraph, error)

	// FindSharedElements returns, per element type, the identities sharing that element.
	FindSharedElements(ctx context.Context, tenantID string, identityID string) (map[ElementType][]string, error)

	// UpdateSyntheticScore stores the latest synthetic score on the identity.
	UpdateSyntheticScore(ctx context.Context, tenantID string, identityID string, score float64) error

	// AssignCluster sets the cluster of a single identity.
	AssignCluster(ctx context.Context, tenantID string, identityID string, clusterID string) error

	// CommitClusterAssignments replaces the tenant's cluster partition in one transaction.
	// Identities absent from assignments lose their cluster id.
	CommitClusterAssignments(ctx context.Context, tenantID string, version int64, assignments map[string]string) error

	// ClusterVersion returns the last committed assignment version, 0 when none.
	ClusterVersion(ctx context.Context, tenantID string) (int64, error)

	// SharesAddressWithSSN reports whether the identity shares an address with any
	// identity holding the given SSN hash.
	SharesAddressWithSSN(ctx context.Context, tenantID string, identityID string, ssnHash string) (bool, error)

	// Snapshot returns every sharing link and identity attribute for the tenant.
	Snapshot(ctx context.Context, tenantID string) (*GraphSnapshot, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// SharingLink records that two identities share one element of the given type.
type SharingLink struct {
	A    string      `json:"a"`
	B    string      `json:"b"`
	Type ElementType `json:"type"`
}

// NodeAttributes are the mutable identity properties needed by graph analytics.
type NodeAttributes struct {
	SyntheticScore float64 `json:"syntheticScore"`
	ClusterID      string  `json:"clusterId,omitempty"`
}

// GraphSnapshot is a point-in-time copy of a tenant's sharing graph.
type GraphSnapshot struct {
	Nodes map[string]NodeAttributes `json:"nodes"`
	Links []SharingLink             `json:"links"`
}

// Subgraph is an identity-centred neighbourhood.
type Subgraph struct {
	IdentityID string         `json:"identityId"`
	Depth      int            `json:"depth"`
	Nodes      []SubgraphNode `json:"nodes"`
	Edges      []SubgraphEdge `json:"edges"`
}

// SubgraphNode is an identity or element node.
type SubgraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// SubgraphEdge connects an identity to one of its elements.
type SubgraphEdge struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Type      string    `json:"type"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// GraphStoreConfig holds configuration for graph store initialization.
type GraphStoreConfig struct {
	// Type is the store type: "memory", "neo4j" or "none"
	Type string

	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string
}
