package graphstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// maxSubgraphDepth bounds variable-length traversals.
const maxSubgraphDepth = 6

// Neo4jStore implements GraphStore on Neo4j. Every node carries tenant_id and
// uniqueness is scoped by tenant.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	now      func() time.Time
}

// NewNeo4jStore connects to Neo4j, verifies connectivity and ensures the schema.
func NewNeo4jStore(cfg domain.GraphStoreConfig) (*Neo4jStore, error) {
	uri := cfg.Neo4jURI
	if uri == "" {
		uri = "bolt://localhost:7687"
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(context.Background())
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}

	s := &Neo4jStore{driver: driver, database: cfg.Neo4jDatabase, now: time.Now}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = driver.Close(context.Background())
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the tenant-scoped constraints and indexes.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		"CREATE CONSTRAINT kestrel_identity IF NOT EXISTS FOR (i:Identity) REQUIRE (i.tenant_id, i.identity_id) IS UNIQUE",
		"CREATE CONSTRAINT kestrel_cluster_meta IF NOT EXISTS FOR (m:ClusterMeta) REQUIRE m.tenant_id IS UNIQUE",
		"CREATE INDEX kestrel_identity_cluster IF NOT EXISTS FOR (i:Identity) ON (i.tenant_id, i.cluster_id)",
		"CREATE INDEX kestrel_identity_synthetic IF NOT EXISTS FOR (i:Identity) ON (i.synthetic_score)",
	}
	for _, t := range domain.ElementTypes {
		label := nodeLabel(t)
		statements = append(statements, fmt.Sprintf(
			"CREATE CONSTRAINT kestrel_%s IF NOT EXISTS FOR (e:%s) REQUIRE (e.tenant_id, e.hash) IS UNIQUE",
			strings.ToLower(label), label,
		))
	}

	for _, stmt := range statements {
		if err := s.write(ctx, func(tx neo4j.ManagedTransaction) error {
			_, err := tx.Run(ctx, stmt, nil)
			return err
		}); err != nil {
			return fmt.Errorf("failed to create graph schema: %w", err)
		}
	}
	return nil
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

func (s *Neo4jStore) write(ctx context.Context, fn func(tx neo4j.ManagedTransaction) error) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(tx)
	})
	return err
}

func (s *Neo4jStore) read(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return records.([]*neo4j.Record), nil
}

func (s *Neo4jStore) exists(ctx context.Context, tenantID, identityID string) (bool, error) {
	records, err := s.read(ctx,
		"MATCH (i:Identity {tenant_id: $tenant_id, identity_id: $identity_id}) RETURN count(i) AS n",
		map[string]any{"tenant_id": tenantID, "identity_id": identityID},
	)
	if err != nil {
		return false, fmt.Errorf("failed to look up identity: %w", err)
	}
	return len(records) > 0 && recordInt(records[0], "n") > 0, nil
}

const mergeIdentityQuery = `
MERGE (i:Identity {tenant_id: $tenant_id, identity_id: $identity_id})
ON CREATE SET i.first_seen = $now, i.synthetic_score = 0.0
SET i.ssn_hash = $ssn_hash,
    i.name_hash = $name_hash,
    i.dob = $dob,
    i.last_seen = $now`

// mergeElementQuery is formatted with a label and relationship type from fixed tables.
const mergeElementQuery = `
MATCH (i:Identity {tenant_id: $tenant_id, identity_id: $identity_id})
MERGE (e:%s {tenant_id: $tenant_id, hash: $hash})
MERGE (i)-[r:%s]->(e)
ON CREATE SET r.first_seen = $now
SET r.last_seen = $now`

// AddIdentity merges the identity, its elements and their links in one transaction.
func (s *Neo4jStore) AddIdentity(ctx context.Context, tenantID string, identity *domain.Identity) error {
	if identity == nil {
		return fmt.Errorf("%w: identity is required", domain.ErrInvalidInput)
	}
	if err := requireIDs(tenantID, identity.ID); err != nil {
		return err
	}
	now := s.now().UTC()

	err := s.write(ctx, func(tx neo4j.ManagedTransaction) error {
		var dob any
		if !identity.ClaimedDOB.IsZero() {
			dob = identity.ClaimedDOB.UTC().Format("2006-01-02")
		}
		if _, err := tx.Run(ctx, mergeIdentityQuery, map[string]any{
			"tenant_id":   tenantID,
			"identity_id": identity.ID,
			"ssn_hash":    identity.SSNHash,
			"name_hash":   identity.NameHash,
			"dob":         dob,
			"now":         now,
		}); err != nil {
			return err
		}

		for _, t := range domain.ElementTypes {
			hash := identity.Element(t)
			if hash == "" {
				continue
			}
			query := fmt.Sprintf(mergeElementQuery, nodeLabel(t), relType(t))
			if _, err := tx.Run(ctx, query, map[string]any{
				"tenant_id":   tenantID,
				"identity_id": identity.ID,
				"hash":        hash,
				"now":         now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add identity: %w", err)
	}
	return nil
}

// GetIdentitySubgraph returns every identity-element edge on paths of up to depth hops.
func (s *Neo4jStore) GetIdentitySubgraph(ctx context.Context, tenantID string, identityID string, depth int) (*domain.Subgraph, error) {
	if err := requireIDs(tenantID, identityID); err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = 2
	}
	if depth > maxSubgraphDepth {
		depth = maxSubgraphDepth
	}
	ok, err := s.exists(ctx, tenantID, identityID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: identity %s", domain.ErrNotFound, identityID)
	}

	query := fmt.Sprintf(`
MATCH path = (i:Identity {tenant_id: $tenant_id, identity_id: $identity_id})-[*1..%d]-(n)
WHERE all(x IN nodes(path) WHERE x.tenant_id = $tenant_id)
UNWIND relationships(path) AS r
WITH DISTINCT r
RETURN startNode(r) AS src, endNode(r) AS dst, type(r) AS rel, r.first_seen AS first_seen, r.last_seen AS last_seen`, depth)

	records, err := s.read(ctx, query, map[string]any{"tenant_id": tenantID, "identity_id": identityID})
	if err != nil {
		return nil, fmt.Errorf("failed to read subgraph: %w", err)
	}

	sub := &domain.Subgraph{
		IdentityID: identityID,
		Depth:      depth,
		Nodes:      []domain.SubgraphNode{{ID: identityID, Label: "Identity"}},
		Edges:      []domain.SubgraphEdge{},
	}
	seen := map[string]bool{identityID: true}
	addNode := func(n neo4j.Node) string {
		id, label := subgraphNodeID(n)
		if !seen[id] {
			seen[id] = true
			sub.Nodes = append(sub.Nodes, domain.SubgraphNode{ID: id, Label: label})
		}
		return id
	}

	for _, rec := range records {
		src, _ := recordNode(rec, "src")
		dst, _ := recordNode(rec, "dst")
		sub.Edges = append(sub.Edges, domain.SubgraphEdge{
			From:      addNode(src),
			To:        addNode(dst),
			Type:      recordString(rec, "rel"),
			FirstSeen: recordTime(rec, "first_seen"),
			LastSeen:  recordTime(rec, "last_seen"),
		})
	}
	sort.Slice(sub.Edges, func(i, j int) bool {
		if sub.Edges[i].From != sub.Edges[j].From {
			return sub.Edges[i].From < sub.Edges[j].From
		}
		return sub.Edges[i].To < sub.Edges[j].To
	})
	return sub, nil
}

func subgraphNodeID(n neo4j.Node) (id, label string) {
	for _, l := range n.Labels {
		if l == "Identity" {
			v, _ := n.Props["identity_id"].(string)
			return v, l
		}
		for _, t := range domain.ElementTypes {
			if nodeLabel(t) == l {
				hash, _ := n.Props["hash"].(string)
				return elementNodeID(t, hash), l
			}
		}
	}
	return n.ElementId, strings.Join(n.Labels, ":")
}

// FindSharedElements lists, per element type, the other identities sharing it.
func (s *Neo4jStore) FindSharedElements(ctx context.Context, tenantID string, identityID string) (map[domain.ElementType][]string, error) {
	if err := requireIDs(tenantID, identityID); err != nil {
		return nil, err
	}
	ok, err := s.exists(ctx, tenantID, identityID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: identity %s", domain.ErrNotFound, identityID)
	}

	records, err := s.read(ctx, `
MATCH (i:Identity {tenant_id: $tenant_id, identity_id: $identity_id})-[r]->(e)<-[r2]-(o:Identity {tenant_id: $tenant_id})
WHERE o <> i AND type(r) = type(r2)
RETURN type(r) AS rel, collect(DISTINCT o.identity_id) AS others`,
		map[string]any{"tenant_id": tenantID, "identity_id": identityID},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find shared elements: %w", err)
	}

	shared := emptyShared()
	for _, rec := range records {
		t, ok := elementTypeOfRel(recordString(rec, "rel"))
		if !ok {
			continue
		}
		others := recordStrings(rec, "others")
		sort.Strings(others)
		shared[t] = others
	}
	return shared, nil
}

// UpdateSyntheticScore stores the latest score on the identity.
func (s *Neo4jStore) UpdateSyntheticScore(ctx context.Context, tenantID string, identityID string, score float64) error {
	if err := requireIDs(tenantID, identityID); err != nil {
		return err
	}
	return s.setProperty(ctx, tenantID, identityID,
		"SET i.synthetic_score = $value, i.score_updated = $now",
		domain.Clamp(score),
	)
}

// AssignCluster sets one identity's cluster outside a versioned commit.
func (s *Neo4jStore) AssignCluster(ctx context.Context, tenantID string, identityID string, clusterID string) error {
	if err := requireIDs(tenantID, identityID); err != nil {
		return err
	}
	return s.setProperty(ctx, tenantID, identityID, "SET i.cluster_id = $value", clusterID)
}

func (s *Neo4jStore) setProperty(ctx context.Context, tenantID, identityID, set string, value any) error {
	var matched int64
	err := s.write(ctx, func(tx neo4j.ManagedTransaction) error {
		result, err := tx.Run(ctx,
			"MATCH (i:Identity {tenant_id: $tenant_id, identity_id: $identity_id}) "+set+" RETURN count(i) AS n",
			map[string]any{"tenant_id": tenantID, "identity_id": identityID, "value": value, "now": s.now().UTC()},
		)
		if err != nil {
			return err
		}
		rec, err := result.Single(ctx)
		if err != nil {
			return err
		}
		matched = recordInt(rec, "n")
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update identity: %w", err)
	}
	if matched == 0 {
		return fmt.Errorf("%w: identity %s", domain.ErrNotFound, identityID)
	}
	return nil
}

// CommitClusterAssignments writes the partition and clears older assignments
// in one transaction. Versions must increase.
func (s *Neo4jStore) CommitClusterAssignments(ctx context.Context, tenantID string, version int64, assignments map[string]string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	ids := make([]string, 0, len(assignments))
	for id := range assignments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([]any, len(ids))
	for i, id := range ids {
		rows[i] = map[string]any{"id": id, "cluster": assignments[id]}
	}
	params := map[string]any{
		"tenant_id": tenantID,
		"version":   version,
		"rows":      rows,
		"now":       s.now().UTC(),
	}

	err := s.write(ctx, func(tx neo4j.ManagedTransaction) error {
		result, err := tx.Run(ctx,
			"MERGE (m:ClusterMeta {tenant_id: $tenant_id}) RETURN coalesce(m.version, 0) AS version",
			params,
		)
		if err != nil {
			return err
		}
		rec, err := result.Single(ctx)
		if err != nil {
			return err
		}
		if current := recordInt(rec, "version"); version <= current {
			return fmt.Errorf("%w: %d is not newer than %d", domain.ErrStaleClusterVersion, version, current)
		}

		statements := []string{
			`UNWIND $rows AS row
MATCH (i:Identity {tenant_id: $tenant_id, identity_id: row.id})
SET i.cluster_id = row.cluster, i.cluster_version = $version`,
			`MATCH (i:Identity {tenant_id: $tenant_id})
WHERE coalesce(i.cluster_version, 0) < $version
SET i.cluster_id = null, i.cluster_version = $version`,
			`MATCH (m:ClusterMeta {tenant_id: $tenant_id})
SET m.version = $version, m.committed_at = $now`,
		}
		for _, stmt := range statements {
			if _, err := tx.Run(ctx, stmt, params); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit cluster assignments: %w", err)
	}
	return nil
}

// ClusterVersion reads the tenant's committed assignment version.
func (s *Neo4jStore) ClusterVersion(ctx context.Context, tenantID string) (int64, error) {
	records, err := s.read(ctx,
		"MATCH (m:ClusterMeta {tenant_id: $tenant_id}) RETURN coalesce(m.version, 0) AS version",
		map[string]any{"tenant_id": tenantID},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to read cluster version: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	return recordInt(records[0], "version"), nil
}

// SharesAddressWithSSN reports whether identityID shares an address with
// another identity holding ssnHash.
func (s *Neo4jStore) SharesAddressWithSSN(ctx context.Context, tenantID string, identityID string, ssnHash string) (bool, error) {
	if err := requireIDs(tenantID, identityID); err != nil {
		return false, err
	}
	records, err := s.read(ctx, `
MATCH (i:Identity {tenant_id: $tenant_id, identity_id: $identity_id})-[:HAS_ADDRESS]->(:Address)<-[:HAS_ADDRESS]-(h:Identity)-[:HAS_SSN]->(:SSN {tenant_id: $tenant_id, hash: $ssn_hash})
RETURN count(h) AS n`,
		map[string]any{"tenant_id": tenantID, "identity_id": identityID, "ssn_hash": ssnHash},
	)
	if err != nil {
		return false, fmt.Errorf("failed to check address relationship: %w", err)
	}
	return len(records) > 0 && recordInt(records[0], "n") > 0, nil
}

// Snapshot reads every identity and every pair of identities sharing an element.
func (s *Neo4jStore) Snapshot(ctx context.Context, tenantID string) (*domain.GraphSnapshot, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	params := map[string]any{"tenant_id": tenantID}

	nodes, err := s.read(ctx, `
MATCH (i:Identity {tenant_id: $tenant_id})
RETURN i.identity_id AS id, coalesce(i.synthetic_score, 0.0) AS score, i.cluster_id AS cluster`, params)
	if err != nil {
		return nil, fmt.Errorf("failed to read identities: %w", err)
	}

	links, err := s.read(ctx, `
MATCH (a:Identity {tenant_id: $tenant_id})-[r1]->(e)<-[r2]-(b:Identity {tenant_id: $tenant_id})
WHERE a.identity_id < b.identity_id AND type(r1) = type(r2)
RETURN DISTINCT a.identity_id AS a, b.identity_id AS b, type(r1) AS rel`, params)
	if err != nil {
		return nil, fmt.Errorf("failed to read sharing links: %w", err)
	}

	snap := &domain.GraphSnapshot{Nodes: make(map[string]domain.NodeAttributes, len(nodes))}
	for _, rec := range nodes {
		snap.Nodes[recordString(rec, "id")] = domain.NodeAttributes{
			SyntheticScore: recordFloat(rec, "score"),
			ClusterID:      recordString(rec, "cluster"),
		}
	}
	for _, rec := range links {
		t, ok := elementTypeOfRel(recordString(rec, "rel"))
		if !ok {
			continue
		}
		snap.Links = append(snap.Links, domain.SharingLink{
			A:    recordString(rec, "a"),
			B:    recordString(rec, "b"),
			Type: t,
		})
	}
	slog.Debug("graph snapshot loaded",
		"tenant_id", tenantID,
		"nodes", len(snap.Nodes),
		"links", len(snap.Links),
	)
	return snap, nil
}

// Ping verifies connectivity.
func (s *Neo4jStore) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Close closes the driver.
func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}

func recordString(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	s, _ := v.(string)
	return s
}

func recordStrings(rec *neo4j.Record, key string) []string {
	v, _ := rec.Get(key)
	raw, _ := v.([]any)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func recordInt(rec *neo4j.Record, key string) int64 {
	v, _ := rec.Get(key)
	n, _ := v.(int64)
	return n
}

func recordFloat(rec *neo4j.Record, key string) float64 {
	v, _ := rec.Get(key)
	switch f := v.(type) {
	case float64:
		return f
	case int64:
		return float64(f)
	}
	return 0
}

func recordTime(rec *neo4j.Record, key string) time.Time {
	v, _ := rec.Get(key)
	t, _ := v.(time.Time)
	return t
}

func recordNode(rec *neo4j.Record, key string) (neo4j.Node, bool) {
	v, _ := rec.Get(key)
	n, ok := v.(neo4j.Node)
	return n, ok
}
