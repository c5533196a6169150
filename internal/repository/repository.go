// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	return nil
}

// SaveIdentity upserts an identity. first_seen keeps its original value and an
// empty cluster ID does not clear a previous assignment.
func (r *SQLRepository) SaveIdentity(ctx context.Context, tenantID string, identity *domain.Identity) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if identity == nil || identity.ID == "" {
		return fmt.Errorf("%w: identity ID is required", domain.ErrInvalidInput)
	}

	now := time.Now().UTC()
	firstSeen := identity.FirstSeen.UTC()
	if identity.FirstSeen.IsZero() {
		firstSeen = now
	}
	lastSeen := identity.LastSeen.UTC()
	if identity.LastSeen.IsZero() {
		lastSeen = now
	}

	query := `
		INSERT INTO identities (
			id, tenant_id, ssn_hash, name_hash, address_hash, phone_hash, email_hash,
			device_fingerprint, claimed_dob, synthetic_score, cluster_id, first_seen, last_seen
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			ssn_hash = excluded.ssn_hash,
			name_hash = excluded.name_hash,
			address_hash = excluded.address_hash,
			phone_hash = excluded.phone_hash,
			email_hash = excluded.email_hash,
			device_fingerprint = excluded.device_fingerprint,
			claimed_dob = excluded.claimed_dob,
			synthetic_score = excluded.synthetic_score,
			cluster_id = CASE WHEN excluded.cluster_id = '' THEN identities.cluster_id ELSE excluded.cluster_id END,
			last_seen = excluded.last_seen
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		identity.ID, tenantID, identity.SSNHash, identity.NameHash,
		identity.AddressHash, identity.PhoneHash, identity.EmailHash,
		identity.DeviceFingerprint, identity.ClaimedDOB.UTC(), identity.SyntheticScore,
		identity.ClusterID, firstSeen, lastSeen,
	)
	return err
}

// GetIdentity retrieves an identity with tenant isolation.
func (r *SQLRepository) GetIdentity(ctx context.Context, tenantID string, identityID string) (*domain.Identity, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, ssn_hash, name_hash, address_hash, phone_hash, email_hash,
			   device_fingerprint, claimed_dob, synthetic_score, cluster_id, first_seen, last_seen
		FROM identities
		WHERE tenant_id = ? AND id = ?
	`

	var id domain.Identity
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, identityID).Scan(
		&id.ID, &id.TenantID, &id.SSNHash, &id.NameHash,
		&id.AddressHash, &id.PhoneHash, &id.EmailHash,
		&id.DeviceFingerprint, &id.ClaimedDOB, &id.SyntheticScore,
		&id.ClusterID, &id.FirstSeen, &id.LastSeen,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// SaveScore stores an ensemble result with tenant isolation.
func (r *SQLRepository) SaveScore(ctx context.Context, tenantID string, result *domain.EnsembleResult) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if result == nil || result.ID == "" {
		return fmt.Errorf("%w: score ID is required", domain.ErrInvalidInput)
	}

	signals, err := json.Marshal(result.Signals)
	if err != nil {
		return fmt.Errorf("failed to encode signals: %w", err)
	}
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode score: %w", err)
	}

	query := `
		INSERT INTO score_results (
			id, tenant_id, identity_id, final_score, risk_level, recommended_action,
			signals, result, analyzed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		result.ID, tenantID, result.IdentityID, result.FinalScore,
		result.RiskLevel.String(), result.RecommendedAction,
		string(signals), string(body), result.AnalyzedAt.UTC(),
	)
	return err
}

// GetScore retrieves a stored ensemble result.
func (r *SQLRepository) GetScore(ctx context.Context, tenantID string, scoreID string) (*domain.EnsembleResult, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT result FROM score_results WHERE tenant_id = ? AND id = ?`

	var body string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, scoreID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeScore(body)
}

// ListScoresByIdentity returns an identity's results since the given time, newest first.
func (r *SQLRepository) ListScoresByIdentity(ctx context.Context, tenantID string, identityID string, since time.Time) ([]*domain.EnsembleResult, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT result
		FROM score_results
		WHERE tenant_id = ? AND identity_id = ? AND analyzed_at >= ?
		ORDER BY analyzed_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, identityID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.EnsembleResult
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		res, err := decodeScore(body)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func decodeScore(body string) (*domain.EnsembleResult, error) {
	var res domain.EnsembleResult
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return nil, fmt.Errorf("failed to parse score result: %w", err)
	}
	return &res, nil
}

// CommitClusterRun stores a run and its clusters in one transaction. A run
// without a version gets the next one; an explicit version must be newer than
// the latest committed run.
func (r *SQLRepository) CommitClusterRun(ctx context.Context, tenantID string, run *domain.ClusterRun) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("%w: run is required", domain.ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var latest int64
	err = tx.QueryRowContext(ctx,
		r.rebind(`SELECT COALESCE(MAX(version), 0) FROM cluster_runs WHERE tenant_id = ?`),
		tenantID,
	).Scan(&latest)
	if err != nil {
		return err
	}

	switch {
	case run.Version == 0:
		run.Version = latest + 1
	case run.Version <= latest:
		return fmt.Errorf("%w: run %d is not newer than %d", domain.ErrStaleClusterVersion, run.Version, latest)
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.TenantID = tenantID

	_, err = tx.ExecContext(ctx, r.rebind(`
		INSERT INTO cluster_runs (
			id, tenant_id, version, algorithm, resolution, min_size,
			node_count, edge_count, cluster_count, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		run.ID, tenantID, run.Version, run.Algorithm, run.Resolution, run.MinSize,
		run.NodeCount, run.EdgeCount, len(run.Clusters),
		run.StartedAt.UTC(), run.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cluster run: %w", err)
	}

	insertCluster := r.rebind(`
		INSERT INTO clusters (
			tenant_id, run_version, cluster_id, members, shared_elements,
			score, center_identity, risk_level, density
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	for _, c := range run.Clusters {
		members, _ := json.Marshal(c.Members)
		shared, _ := json.Marshal(c.SharedElements)
		if _, err := tx.ExecContext(ctx, insertCluster,
			tenantID, run.Version, c.ClusterID, string(members), string(shared),
			c.Score, c.CenterIdentity, c.RiskLevel.String(), c.Density,
		); err != nil {
			return fmt.Errorf("failed to insert cluster %s: %w", c.ClusterID, err)
		}
	}

	return tx.Commit()
}

// GetLatestClusterRun returns the newest committed run with its clusters.
func (r *SQLRepository) GetLatestClusterRun(ctx context.Context, tenantID string) (*domain.ClusterRun, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, version, algorithm, resolution, min_size,
			   node_count, edge_count, started_at, completed_at
		FROM cluster_runs
		WHERE tenant_id = ?
		ORDER BY version DESC
		LIMIT 1
	`

	var run domain.ClusterRun
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID).Scan(
		&run.ID, &run.TenantID, &run.Version, &run.Algorithm, &run.Resolution, &run.MinSize,
		&run.NodeCount, &run.EdgeCount, &run.StartedAt, &run.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT cluster_id, members, shared_elements, score, center_identity, risk_level, density
		FROM clusters
		WHERE tenant_id = ? AND run_version = ?
		ORDER BY cluster_id
	`), tenantID, run.Version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		run.Clusters = append(run.Clusters, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetCluster returns a cluster from the latest committed run.
func (r *SQLRepository) GetCluster(ctx context.Context, tenantID string, clusterID string) (*domain.SyntheticCluster, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT cluster_id, members, shared_elements, score, center_identity, risk_level, density
		FROM clusters
		WHERE tenant_id = ? AND cluster_id = ?
		  AND run_version = (SELECT MAX(version) FROM cluster_runs WHERE tenant_id = ?)
	`

	c, err := scanCluster(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, clusterID, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return c, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCluster(row rowScanner) (*domain.SyntheticCluster, error) {
	var c domain.SyntheticCluster
	var members, shared, level string

	if err := row.Scan(&c.ClusterID, &members, &shared, &c.Score, &c.CenterIdentity, &level, &c.Density); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(members), &c.Members); err != nil {
		return nil, fmt.Errorf("failed to parse cluster members: %w", err)
	}
	if err := json.Unmarshal([]byte(shared), &c.SharedElements); err != nil {
		return nil, fmt.Errorf("failed to parse shared elements: %w", err)
	}
	rl, err := domain.ParseRiskLevel(level)
	if err != nil {
		return nil, err
	}
	c.RiskLevel = rl
	return &c, nil
}

// SaveRuleConfig stores a rule configuration with tenant isolation.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, tenantID string, rule *domain.RuleConfig) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	bands, _ := json.Marshal(rule.Bands)

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, tenant_id, name, description, version, expression, bands, signal, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			bands = excluded.bands,
			signal = excluded.signal,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(bands), rule.Signal, enabled,
		now, now,
	)
	return err
}

// GetRuleConfig retrieves the newest enabled version of a rule.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*domain.RuleConfig, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, signal, enabled
		FROM rule_configs
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	cfg, err := scanRuleConfig(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return cfg, err
}

// ListRuleConfigs retrieves all active rule configurations for a tenant.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, tenantID string) ([]*domain.RuleConfig, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, signal, enabled
		FROM rule_configs
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY id, version
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		cfg, err := scanRuleConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}

	return configs, rows.Err()
}

func scanRuleConfig(row rowScanner) (*domain.RuleConfig, error) {
	var cfg domain.RuleConfig
	var bands, signal sql.NullString
	var description sql.NullString
	var enabled int

	if err := row.Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Name, &description,
		&cfg.Version, &cfg.Expression, &bands, &signal, &enabled,
	); err != nil {
		return nil, err
	}

	cfg.Description = description.String
	cfg.Signal = signal.String
	cfg.Enabled = enabled == 1
	if bands.Valid {
		if err := json.Unmarshal([]byte(bands.String), &cfg.Bands); err != nil {
			return nil, fmt.Errorf("failed to parse bands for rule %s: %w", cfg.ID, err)
		}
	}
	return &cfg, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
