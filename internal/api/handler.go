package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ensemble"
	"github.com/opensource-finance/kestrel/internal/graph"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/pii"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/signals"
	"github.com/opensource-finance/kestrel/internal/velocity"
)

// Request limits.
const (
	MaxBatchSize     = 1000
	DefaultGraphHops = 2
	MaxGraphHops     = 3
)

// Dependencies are the collaborators served by the API. Only Pipeline and
// Engine are required.
type Dependencies struct {
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Graph     domain.GraphStore
	Pipeline  *ensemble.Pipeline
	Engine    *rules.Engine
	Clusters  *graph.ClusterService
	Extractor *graph.Extractor
	Velocity  *velocity.Analyzer
	AU        *signals.AUDetector

	// SSN checks applied when an application carries a raw SSN and no
	// pre-computed signals. Either may be nil.
	SSNValidator *signals.SSNValidator
	Issuance     *signals.IssuanceChecker
}

// Handler holds dependencies for API handlers.
type Handler struct {
	deps    Dependencies
	version string
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies, version string) *Handler {
	return &Handler{deps: deps, version: version}
}

// ApplicationRequest is one application for POST /score. Raw PII is hashed
// on arrival and never stored.
type ApplicationRequest struct {
	IdentityID        string                 `json:"identityId,omitempty"`
	SSN               string                 `json:"ssn"`
	Name              string                 `json:"name"`
	Address           string                 `json:"address,omitempty"`
	Phone             string                 `json:"phone,omitempty"`
	Email             string                 `json:"email,omitempty"`
	DeviceFingerprint string                 `json:"deviceFingerprint,omitempty"`
	DateOfBirth       string                 `json:"dateOfBirth"` // YYYY-MM-DD
	SSNSignals        *domain.SSNSignals     `json:"ssnSignals,omitempty"`
	DeviceSignals     domain.DeviceSignals   `json:"deviceSignals"`
	GraphFeatures     *domain.GraphFeatures  `json:"graphFeatures,omitempty"`
	AccountID         string                 `json:"accountId,omitempty"`
	CreditSequence    *domain.CreditSequence `json:"creditSequence,omitempty"`
}

// toScoringRequest validates an application and hashes its PII.
func (h *Handler) toScoringRequest(tenantID string, req *ApplicationRequest, now time.Time) (*domain.ScoringRequest, error) {
	if req.SSN == "" || req.Name == "" {
		return nil, fmt.Errorf("%w: ssn and name are required", domain.ErrInvalidInput)
	}
	dob, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		return nil, fmt.Errorf("%w: dateOfBirth must be YYYY-MM-DD", domain.ErrInvalidInput)
	}
	if dob.After(now) {
		return nil, fmt.Errorf("%w: dateOfBirth is in the future", domain.ErrInvalidInput)
	}

	id := req.IdentityID
	if id == "" {
		id = pii.IdentityID(req.SSN, req.Name)
	}

	ssnSignals := signals.DeriveSSNSignals(h.deps.SSNValidator, h.deps.Issuance, req.SSN, dob)
	if req.SSNSignals != nil {
		ssnSignals = *req.SSNSignals
	}

	return &domain.ScoringRequest{
		TenantID: tenantID,
		Identity: domain.Identity{
			ID:                id,
			TenantID:          tenantID,
			SSNHash:           pii.Hash(pii.NormalizeSSN(req.SSN)),
			NameHash:          pii.Hash(pii.NormalizeName(req.Name)),
			AddressHash:       pii.Hash(pii.NormalizeAddress(req.Address)),
			PhoneHash:         pii.Hash(pii.NormalizePhone(req.Phone)),
			EmailHash:         pii.Hash(pii.NormalizeEmail(req.Email)),
			DeviceFingerprint: req.DeviceFingerprint,
			ClaimedDOB:        dob,
			FirstSeen:         now,
			LastSeen:          now,
		},
		SSN:            ssnSignals,
		Device:         req.DeviceSignals,
		Graph:          req.GraphFeatures,
		AccountID:      req.AccountID,
		CreditSequence: req.CreditSequence,
		ReceivedAt:     now,
	}, nil
}

// Score handles POST /score requests.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req ApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	scoringReq, err := h.toScoringRequest(tenantID, &req, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.deps.Pipeline.Score(ctx, scoringReq)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// BatchRequest is the request body for POST /score/batch.
type BatchRequest struct {
	Applications []ApplicationRequest `json:"applications"`
}

// BatchResponse preserves the order of the submitted applications.
type BatchResponse struct {
	Results   []ensemble.BatchResult `json:"results"`
	Count     int                    `json:"count"`
	Failed    int                    `json:"failed"`
	ElapsedMs int64                  `json:"elapsedMs"`
}

// ScoreBatch handles POST /score/batch requests. Invalid applications fail
// individually; the rest are scored.
func (h *Handler) ScoreBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if len(req.Applications) == 0 {
		writeError(w, http.StatusBadRequest, "applications are required")
		return
	}
	if len(req.Applications) > MaxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch exceeds %d applications", MaxBatchSize))
		return
	}

	now := time.Now().UTC()
	results := make([]ensemble.BatchResult, len(req.Applications))
	var valid []*domain.ScoringRequest
	var positions []int
	for i := range req.Applications {
		sr, err := h.toScoringRequest(tenantID, &req.Applications[i], now)
		if err != nil {
			results[i] = ensemble.BatchResult{Err: err, Error: err.Error()}
			continue
		}
		valid = append(valid, sr)
		positions = append(positions, i)
	}

	for j, res := range h.deps.Pipeline.ScoreBatch(ctx, valid) {
		results[positions[j]] = res
	}

	resp := BatchResponse{Results: results, Count: len(results), ElapsedMs: time.Since(start).Milliseconds()}
	for _, res := range results {
		if res.Err != nil {
			resp.Failed++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetScore retrieves a stored score by ID.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	scoreID := chi.URLParam(r, "id")

	if h.deps.Repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	res, err := h.deps.Repo.GetScore(ctx, tenantID, scoreID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Error("failed to get score", "id", scoreID, "error", err)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// IdentityFeatures returns the graph feature vector of an identity.
func (h *Handler) IdentityFeatures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	identityID := chi.URLParam(r, "id")

	if h.deps.Extractor == nil {
		writeError(w, http.StatusServiceUnavailable, "graph not available")
		return
	}

	f, err := h.deps.Extractor.ExtractCurrent(ctx, tenantID, identityID)
	if err != nil {
		slog.Error("failed to extract graph features", "identity_id", identityID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "graph not available")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"identityId": identityID,
		"features":   f,
		"vector":     f.Vector(),
	})
}

// IdentitySubgraph returns the neighbourhood of an identity. depth defaults
// to 2 and is capped at 3.
func (h *Handler) IdentitySubgraph(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	identityID := chi.URLParam(r, "id")

	depth := DefaultGraphHops
	if raw := r.URL.Query().Get("depth"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 1 {
			writeError(w, http.StatusBadRequest, "depth must be a positive integer")
			return
		}
		depth = min(d, MaxGraphHops)
	}

	if h.deps.Graph == nil {
		writeError(w, http.StatusServiceUnavailable, "graph not available")
		return
	}

	sub, err := h.deps.Graph.GetIdentitySubgraph(ctx, tenantID, identityID, depth)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// IdentityShared returns the identities sharing each PII element.
func (h *Handler) IdentityShared(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	identityID := chi.URLParam(r, "id")

	if h.deps.Graph == nil {
		writeError(w, http.StatusServiceUnavailable, "graph not available")
		return
	}

	shared, err := h.deps.Graph.FindSharedElements(ctx, tenantID, identityID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identityId": identityID,
		"shared":     shared,
	})
}

// BustOutRequest is the request body for POST /bustout/predict.
type BustOutRequest struct {
	AccountID      string                 `json:"accountId"`
	CreditSequence *domain.CreditSequence `json:"creditSequence"`
	SyntheticScore *float64               `json:"syntheticScore,omitempty"`
}

// PredictBustOut runs the bust-out predictor alone.
func (h *Handler) PredictBustOut(w http.ResponseWriter, r *http.Request) {
	var req BustOutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.CreditSequence == nil || len(req.CreditSequence.Balances) == 0 {
		writeError(w, http.StatusBadRequest, "creditSequence with balances is required")
		return
	}
	if req.SyntheticScore != nil && (*req.SyntheticScore < 0 || *req.SyntheticScore > 1) {
		writeError(w, http.StatusBadRequest, "syntheticScore must be in [0, 1]")
		return
	}

	pred, err := h.deps.Pipeline.Detector().BustOut().Predict(req.AccountID, req.CreditSequence, req.SyntheticScore)
	if pred == nil {
		writeDomainError(w, err)
		return
	}
	if err != nil {
		slog.Warn("bust-out model degraded", "account_id", pred.AccountID, "error", err)
		metrics.CollaboratorFailure(ensemble.CollaboratorBustOut)
	}
	metrics.ObserveBustOut(pred.RiskLevel.String())

	writeJSON(w, http.StatusOK, pred)
}

// ClusterRunRequest is the optional body of POST /clusters/run.
type ClusterRunRequest struct {
	Algorithm  string  `json:"algorithm,omitempty"`
	MinSize    int     `json:"minClusterSize,omitempty"`
	Resolution float64 `json:"resolution,omitempty"`
}

// RunClusters runs cluster detection synchronously.
func (h *Handler) RunClusters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.deps.Clusters == nil {
		writeError(w, http.StatusServiceUnavailable, "cluster detection not available")
		return
	}

	var req ClusterRunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON request body")
			return
		}
	}

	run, err := h.deps.Clusters.Run(ctx, tenantID, graph.DetectOptions{
		Algorithm:  req.Algorithm,
		MinSize:    req.MinSize,
		Resolution: req.Resolution,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// ListClusters returns the latest committed cluster run.
func (h *Handler) ListClusters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.deps.Clusters == nil {
		writeError(w, http.StatusServiceUnavailable, "cluster detection not available")
		return
	}

	run, err := h.deps.Clusters.Latest(ctx, GetTenantID(ctx))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetCluster returns one cluster of the latest run.
func (h *Handler) GetCluster(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.deps.Clusters == nil {
		writeError(w, http.StatusServiceUnavailable, "cluster detection not available")
		return
	}

	c, err := h.deps.Clusters.GetCluster(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.deps.Repo != nil {
		if err := h.deps.Repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.deps.Cache != nil {
		if err := h.deps.Cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.deps.Graph != nil {
		if err := h.deps.Graph.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready reports whether the server can accept traffic: the repository and
// the bus must answer.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.deps.Repo != nil {
		if err := h.deps.Repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false", "reason": "repository"})
			return
		}
	}
	if h.deps.Bus != nil {
		if err := h.deps.Bus.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false", "reason": "bus"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns all loaded rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.deps.Engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.deps.Engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeError(w, http.StatusNotFound, "rule not found")
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Version     string            `json:"version,omitempty"`
	Expression  string            `json:"expression"`
	Bands       []domain.RuleBand `json:"bands"`
	Signal      string            `json:"signal,omitempty"`
	Enabled     bool              `json:"enabled"`
}

// CreateRule validates a rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeError(w, http.StatusBadRequest, "id, name, and expression are required")
		return
	}
	if req.Version == "" {
		req.Version = "1.0.0"
	}

	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     req.Version,
		Expression:  req.Expression,
		Bands:       req.Bands,
		Signal:      req.Signal,
		Enabled:     req.Enabled,
	}

	if err := h.deps.Engine.ValidateRule(ruleConfig); err != nil {
		writeError(w, http.StatusBadRequest, "invalid CEL expression: "+err.Error())
		return
	}

	if h.deps.Repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}
	if err := h.deps.Repo.SaveRuleConfig(ctx, GlobalTenantID, ruleConfig); err != nil {
		slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save rule")
		return
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// ReloadRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.deps.Repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	dbRules, err := h.deps.Repo.ListRuleConfigs(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load rules from database")
		return
	}

	if err := h.deps.Engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload rules: "+err.Error())
		return
	}

	slog.Info("rules reloaded from database", "count", h.deps.Engine.RulesCount())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   h.deps.Engine.RulesCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain sentinels to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnknownAlgorithm):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrClusterRunInProgress), errors.Is(err, domain.ErrStaleClusterVersion):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ClusterMembers returns the identity IDs of one cluster of the latest run.
func (h *Handler) ClusterMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clusterID := chi.URLParam(r, "id")

	if h.deps.Clusters == nil {
		writeError(w, http.StatusServiceUnavailable, "cluster detection not available")
		return
	}

	members, err := h.deps.Clusters.GetClusterMembers(ctx, GetTenantID(ctx), clusterID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"clusterId":  clusterID,
		"identities": members,
		"count":      len(members),
	})
}

// ElementHistoryRequest is the request body for POST /elements/history. Value
// is raw PII and is normalized and hashed like an application field; Hash is
// used as given.
type ElementHistoryRequest struct {
	Type  domain.ElementType `json:"type"`
	Value string             `json:"value,omitempty"`
	Hash  string             `json:"hash,omitempty"`
	Days  int                `json:"days,omitempty"`
}

// ElementHistory lists the identities and SSNs seen with one PII element.
func (h *Handler) ElementHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.deps.Velocity == nil {
		writeError(w, http.StatusServiceUnavailable, "velocity not available")
		return
	}

	var req ElementHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.Days < 0 {
		writeError(w, http.StatusBadRequest, "days must not be negative")
		return
	}
	hash, ok := elementHash(req.Type, req.Value)
	if !ok {
		writeError(w, http.StatusBadRequest, "type must be one of address, phone, email, device")
		return
	}
	if req.Hash != "" {
		hash = req.Hash
	}

	history, err := h.deps.Velocity.ElementHistory(ctx, GetTenantID(ctx), req.Type, hash, req.Days)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// elementHash hashes a raw element value the way applications are hashed.
// Device fingerprints are stored as given.
func elementHash(t domain.ElementType, value string) (string, bool) {
	switch t {
	case domain.ElementAddress:
		return pii.Hash(pii.NormalizeAddress(value)), true
	case domain.ElementPhone:
		return pii.Hash(pii.NormalizePhone(value)), true
	case domain.ElementEmail:
		return pii.Hash(pii.NormalizeEmail(value)), true
	case domain.ElementDevice:
		return value, true
	default:
		return "", false
	}
}

// AURingsRequest is the request body for POST /au/rings.
type AURingsRequest struct {
	IdentityIDs []string `json:"identityIds"`
}

// AURings groups stored identities that are authorized users on the same
// primary holder's accounts. Unknown identities are reported, not fatal.
func (h *Handler) AURings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.deps.AU == nil || h.deps.Repo == nil {
		writeError(w, http.StatusServiceUnavailable, "bureau not available")
		return
	}

	var req AURingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if len(req.IdentityIDs) < 2 {
		writeError(w, http.StatusBadRequest, "at least two identityIds are required")
		return
	}
	if len(req.IdentityIDs) > MaxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d identityIds", MaxBatchSize))
		return
	}

	identities := make([]*domain.Identity, 0, len(req.IdentityIDs))
	missing := []string{}
	for _, id := range req.IdentityIDs {
		identity, err := h.deps.Repo.GetIdentity(ctx, tenantID, id)
		if errors.Is(err, domain.ErrNotFound) {
			missing = append(missing, id)
			continue
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}
		identities = append(identities, identity)
	}

	rings, err := h.deps.AU.Rings(ctx, identities)
	if err != nil {
		slog.Warn("au ring lookup incomplete", "tenant_id", tenantID, "error", err)
		metrics.CollaboratorFailure(ensemble.CollaboratorAU)
	}
	if rings == nil {
		rings = []signals.AURing{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rings":      rings,
		"missing":    missing,
		"incomplete": err != nil,
	})
}
