package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("kestrel-graph")

// ClusterService runs detection and commits each partition as a new version.
// At most one run per tenant executes at a time; scoring keeps reading the
// previously committed assignments until the commit lands.
type ClusterService struct {
	detector  *ClusterDetector
	graph     domain.GraphStore
	repo      domain.Repository
	bus       domain.EventBus
	extractor *Extractor
	now       func() time.Time

	mu      sync.Mutex
	running map[string]bool
}

// NewClusterService wires a cluster service. bus and extractor may be nil.
func NewClusterService(detector *ClusterDetector, graph domain.GraphStore, repo domain.Repository, bus domain.EventBus, extractor *Extractor) *ClusterService {
	return &ClusterService{
		detector:  detector,
		graph:     graph,
		repo:      repo,
		bus:       bus,
		extractor: extractor,
		now:       time.Now,
		running:   make(map[string]bool),
	}
}

func (s *ClusterService) acquire(tenantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[tenantID] {
		return false
	}
	s.running[tenantID] = true
	return true
}

func (s *ClusterService) release(tenantID string) {
	s.mu.Lock()
	delete(s.running, tenantID)
	s.mu.Unlock()
}

// Running reports whether a run is executing for the tenant.
func (s *ClusterService) Running(tenantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[tenantID]
}

// Run detects clusters and commits them. A concurrent run for the same tenant
// fails fast with ErrClusterRunInProgress.
func (s *ClusterService) Run(ctx context.Context, tenantID string, opts DetectOptions) (*domain.ClusterRun, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if !s.acquire(tenantID) {
		return nil, domain.ErrClusterRunInProgress
	}
	defer s.release(tenantID)

	ctx, span := tracer.Start(ctx, "cluster.run",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	started := s.now()
	det, err := s.detector.Detect(ctx, tenantID, opts)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	version, err := s.nextVersion(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.graph.CommitClusterAssignments(ctx, tenantID, version, det.Assignments); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to commit cluster assignments: %w", err)
	}

	run := &domain.ClusterRun{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Version:     version,
		Algorithm:   det.Options.Algorithm,
		Resolution:  det.Options.Resolution,
		MinSize:     det.Options.MinSize,
		NodeCount:   det.NodeCount,
		EdgeCount:   det.EdgeCount,
		StartedAt:   started,
		CompletedAt: s.now(),
		Clusters:    det.Clusters,
	}
	if err := s.repo.CommitClusterRun(ctx, tenantID, run); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to record cluster run: %w", err)
	}

	if s.extractor != nil {
		s.extractor.Invalidate(tenantID)
	}

	duration := run.CompletedAt.Sub(run.StartedAt)
	metrics.ObserveClusterRun(run.Algorithm, duration, len(run.Clusters))
	span.SetAttributes(
		attribute.Int64("cluster.version", version),
		attribute.Int("cluster.count", len(run.Clusters)),
	)

	slog.Info("cluster run committed",
		"tenant_id", tenantID,
		"version", version,
		"algorithm", run.Algorithm,
		"nodes", run.NodeCount,
		"clusters", len(run.Clusters),
		"duration_ms", duration.Milliseconds(),
	)

	s.publishCompleted(ctx, run)
	return run, nil
}

// nextVersion is one past the newer of the repository's latest run and the
// graph's assignment version. The graph can be ahead when a repository commit
// failed after the assignments landed.
func (s *ClusterService) nextVersion(ctx context.Context, tenantID string) (int64, error) {
	var committed int64
	latest, err := s.repo.GetLatestClusterRun(ctx, tenantID)
	switch {
	case err == nil:
		committed = latest.Version
	case errors.Is(err, domain.ErrNotFound):
	default:
		return 0, fmt.Errorf("failed to read latest cluster run: %w", err)
	}

	assigned, err := s.graph.ClusterVersion(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to read cluster assignment version: %w", err)
	}
	return max(committed, assigned) + 1, nil
}

// ClusterCompleted is the payload published after a run commits.
type ClusterCompleted struct {
	RunID    string `json:"runId"`
	Version  int64  `json:"version"`
	Clusters int    `json:"clusters"`
	Critical int    `json:"critical"`
}

func (s *ClusterService) publishCompleted(ctx context.Context, run *domain.ClusterRun) {
	if s.bus == nil {
		return
	}
	evt := ClusterCompleted{RunID: run.ID, Version: run.Version, Clusters: len(run.Clusters)}
	for _, c := range run.Clusters {
		if c.RiskLevel == domain.RiskCritical {
			evt.Critical++
		}
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, run.TenantID, domain.TopicClusterCompleted, payload); err != nil {
		slog.Warn("failed to publish cluster completion",
			"tenant_id", run.TenantID,
			"error", err,
		)
	}
}

// Latest returns the most recent committed run with its clusters.
func (s *ClusterService) Latest(ctx context.Context, tenantID string) (*domain.ClusterRun, error) {
	return s.repo.GetLatestClusterRun(ctx, tenantID)
}

// GetCluster returns one cluster of the latest run.
func (s *ClusterService) GetCluster(ctx context.Context, tenantID, clusterID string) (*domain.SyntheticCluster, error) {
	return s.repo.GetCluster(ctx, tenantID, clusterID)
}

// GetClusterMembers returns the identities of a cluster in the latest run.
func (s *ClusterService) GetClusterMembers(ctx context.Context, tenantID, clusterID string) ([]string, error) {
	c, err := s.repo.GetCluster(ctx, tenantID, clusterID)
	if err != nil {
		return nil, err
	}
	return c.Members, nil
}
