// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Identity operations
	SaveIdentity(ctx context.Context, tenantID string, identity *Identity) error
	GetIdentity(ctx context.Context, tenantID string, identityID string) (*Identity, error)

	// Score results
	SaveScore(ctx context.Context, tenantID string, result *EnsembleResult) error
	GetScore(ctx context.Context, tenantID string, scoreID string) (*EnsembleResult, error)
	ListScoresByIdentity(ctx context.Context, tenantID string, identityID string, since time.Time) ([]*EnsembleResult, error)

	// Cluster runs. CommitClusterRun stores a run and all its clusters atomically.
	// A zero Version is assigned the next number; an explicit Version must be
	// newer than the latest committed run.
	CommitClusterRun(ctx context.Context, tenantID string, run *ClusterRun) error
	GetLatestClusterRun(ctx context.Context, tenantID string) (*ClusterRun, error)
	GetCluster(ctx context.Context, tenantID string, clusterID string) (*SyntheticCluster, error)

	// Rule configuration operations
	SaveRuleConfig(ctx context.Context, tenantID string, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context, tenantID string) ([]*RuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
