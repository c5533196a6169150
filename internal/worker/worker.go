// Package worker provides async message processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ensemble"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// globalTenant receives messages for any tenant in development setups.
const globalTenant = "_global"

// Worker scores applications and runs cluster detection from the EventBus.
type Worker struct {
	bus      domain.EventBus
	pipeline *ensemble.Pipeline
	clusters *graph.ClusterService

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = global subscription)
	TenantIDs []string
}

// NewWorker creates a new async worker. clusters may be nil, in which case
// cluster run requests are not subscribed.
func NewWorker(eventBus domain.EventBus, pipeline *ensemble.Pipeline, clusters *graph.ClusterService) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      eventBus,
		pipeline: pipeline,
		clusters: clusters,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		if err := w.subscribeTenant(globalTenant); err != nil {
			return err
		}
		slog.Info("global worker started")
		return nil
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.subscribeTenant(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

func (w *Worker) subscribeTenant(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicApplicationReceived, func(ctx context.Context, msg *domain.Message) error {
		return w.processApplication(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	if w.clusters != nil {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicClusterRun, func(ctx context.Context, msg *domain.Message) error {
			return w.processClusterRun(ctx, tenantID, msg)
		})
		if err != nil {
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topics", len(w.subscriptions),
	)
	return nil
}

// resolveTenant picks the tenant a message is processed for. Only the global
// subscription may take the tenant from the payload.
func resolveTenant(subscribed, fromPayload string) (string, error) {
	switch {
	case subscribed == globalTenant:
		if fromPayload == "" {
			return "", fmt.Errorf("%w: tenantId is required on the global topic", domain.ErrInvalidInput)
		}
		return fromPayload, nil
	case fromPayload != "" && fromPayload != subscribed:
		return "", fmt.Errorf("%w: message for tenant %s on tenant %s subscription", domain.ErrInvalidInput, fromPayload, subscribed)
	default:
		return subscribed, nil
	}
}

// processApplication scores one application through the pipeline. When the
// message is a request, the result is sent back on its reply topic.
func (w *Worker) processApplication(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var req domain.ScoringRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse application message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	tenant, err := resolveTenant(tenantID, req.TenantID)
	if err != nil {
		return err
	}
	req.TenantID = tenant
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = time.Unix(0, msg.Timestamp).UTC()
	}

	res, err := w.pipeline.Score(ctx, &req)
	if err != nil {
		slog.Error("application scoring failed",
			"tenant_id", tenant,
			"identity_id", req.Identity.ID,
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if replyTo := msg.Metadata[bus.MetaReplyTo]; replyTo != "" {
		payload, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("failed to encode score reply: %w", err)
		}
		if err := w.bus.Publish(ctx, tenant, replyTo, payload); err != nil {
			slog.Error("failed to send score reply",
				"tenant_id", tenant,
				"score_id", res.ID,
				"error", err,
			)
		}
	}

	slog.Info("application processed",
		"tenant_id", tenant,
		"identity_id", res.IdentityID,
		"score_id", res.ID,
		"risk_level", res.RiskLevel.String(),
		"score", res.FinalScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// ClusterRunMessage requests a cluster detection run. Zero fields take the
// configured defaults.
type ClusterRunMessage struct {
	TenantID   string  `json:"tenantId,omitempty"`
	Algorithm  string  `json:"algorithm,omitempty"`
	MinSize    int     `json:"minClusterSize,omitempty"`
	Resolution float64 `json:"resolution,omitempty"`
}

// processClusterRun runs detection for a tenant. A run already in progress
// absorbs the request.
func (w *Worker) processClusterRun(ctx context.Context, tenantID string, msg *domain.Message) error {
	var req ClusterRunMessage
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			slog.Error("failed to parse cluster run message",
				"message_id", msg.ID,
				"error", err,
			)
			return err
		}
	}

	tenant, err := resolveTenant(tenantID, req.TenantID)
	if err != nil {
		return err
	}

	run, err := w.clusters.Run(ctx, tenant, graph.DetectOptions{
		Algorithm:  req.Algorithm,
		MinSize:    req.MinSize,
		Resolution: req.Resolution,
	})
	if errors.Is(err, domain.ErrClusterRunInProgress) {
		slog.Info("cluster run already in progress, request skipped",
			"tenant_id", tenant,
			"message_id", msg.ID,
		)
		return nil
	}
	if err != nil {
		return err
	}

	slog.Debug("cluster run processed",
		"tenant_id", tenant,
		"version", run.Version,
	)
	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
