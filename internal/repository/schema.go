package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaIdentities = `
CREATE TABLE IF NOT EXISTS identities (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    ssn_hash TEXT NOT NULL,
    name_hash TEXT NOT NULL,
    address_hash TEXT,
    phone_hash TEXT,
    email_hash TEXT,
    device_fingerprint TEXT,
    claimed_dob TIMESTAMP,
    synthetic_score REAL NOT NULL DEFAULT 0,
    cluster_id TEXT,
    first_seen TIMESTAMP NOT NULL,
    last_seen TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_identities_ssn ON identities(tenant_id, ssn_hash);
CREATE INDEX IF NOT EXISTS idx_identities_score ON identities(tenant_id, synthetic_score);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    signal TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_tenant ON rule_configs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(tenant_id, enabled);
`

// schemaScores holds one row per ensemble result. The full result is kept as
// JSON; the indexed columns serve case history queries.
const schemaScores = `
CREATE TABLE IF NOT EXISTS score_results (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    identity_id TEXT NOT NULL,
    final_score REAL NOT NULL,
    risk_level TEXT NOT NULL,
    recommended_action TEXT NOT NULL,
    signals TEXT NOT NULL,
    result TEXT NOT NULL,
    analyzed_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_score_results_tenant ON score_results(tenant_id);
CREATE INDEX IF NOT EXISTS idx_score_results_identity ON score_results(tenant_id, identity_id, analyzed_at);
CREATE INDEX IF NOT EXISTS idx_score_results_level ON score_results(tenant_id, risk_level);
`

const schemaClusterRuns = `
CREATE TABLE IF NOT EXISTS cluster_runs (
    id TEXT NOT NULL UNIQUE,
    tenant_id TEXT NOT NULL,
    version INTEGER NOT NULL,
    algorithm TEXT NOT NULL,
    resolution REAL NOT NULL,
    min_size INTEGER NOT NULL,
    node_count INTEGER NOT NULL,
    edge_count INTEGER NOT NULL,
    cluster_count INTEGER NOT NULL,
    started_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, version)
);

CREATE TABLE IF NOT EXISTS clusters (
    tenant_id TEXT NOT NULL,
    run_version INTEGER NOT NULL,
    cluster_id TEXT NOT NULL,
    members TEXT NOT NULL,
    shared_elements TEXT NOT NULL,
    score REAL NOT NULL,
    center_identity TEXT NOT NULL,
    risk_level TEXT NOT NULL,
    density REAL NOT NULL,
    PRIMARY KEY (tenant_id, run_version, cluster_id)
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaIdentities,
		schemaRuleConfigs,
		schemaScores,
		schemaClusterRuns,
	}
}
