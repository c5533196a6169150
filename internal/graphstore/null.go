package graphstore

import (
	"context"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// NullStore stores nothing. Graph features degrade to the empty set.
type NullStore struct{}

func (NullStore) AddIdentity(context.Context, string, *domain.Identity) error { return nil }

func (NullStore) GetIdentitySubgraph(_ context.Context, _ string, identityID string, depth int) (*domain.Subgraph, error) {
	return &domain.Subgraph{IdentityID: identityID, Depth: depth, Nodes: []domain.SubgraphNode{}, Edges: []domain.SubgraphEdge{}}, nil
}

func (NullStore) FindSharedElements(context.Context, string, string) (map[domain.ElementType][]string, error) {
	return emptyShared(), nil
}

func (NullStore) UpdateSyntheticScore(context.Context, string, string, float64) error { return nil }

func (NullStore) AssignCluster(context.Context, string, string, string) error { return nil }

func (NullStore) CommitClusterAssignments(context.Context, string, int64, map[string]string) error {
	return nil
}

func (NullStore) ClusterVersion(context.Context, string) (int64, error) { return 0, nil }

// SharesAddressWithSSN reports true: without a graph no account can be shown unrelated.
func (NullStore) SharesAddressWithSSN(context.Context, string, string, string) (bool, error) {
	return true, nil
}

func (NullStore) Snapshot(context.Context, string) (*domain.GraphSnapshot, error) {
	return &domain.GraphSnapshot{Nodes: map[string]domain.NodeAttributes{}}, nil
}

func (NullStore) Ping(context.Context) error { return nil }

func (NullStore) Close() error { return nil }
