// Package ensemble combines the signal detectors, the synthetic scorer and the
// bust-out predictor into one risk decision per application.
package ensemble

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/signals"
	"github.com/opensource-finance/kestrel/internal/velocity"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("kestrel-ensemble")

// Final score weights. The bust-out weight is redistributed when no
// prediction is made.
const (
	WeightSynthetic = 0.40
	WeightVelocity  = 0.20
	WeightCredit    = 0.15
	WeightAU        = 0.15
	WeightBustOut   = 0.10
)

// Collaborator names used in degradation notes and metrics.
const (
	CollaboratorVelocity       = "velocity"
	CollaboratorCredit         = "credit"
	CollaboratorAU             = "authorized_user"
	CollaboratorGraph          = "graph"
	CollaboratorApplications   = "applications"
	CollaboratorSyntheticModel = "synthetic_model"
	CollaboratorBustOut        = "bustout"
	CollaboratorRules          = "rules"
	CollaboratorWriteThrough   = "write_through"
)

// Dependencies are the collaborators of a Detector. Any of them may be nil;
// a missing detector contributes a neutral result.
type Dependencies struct {
	Graph        domain.GraphStore
	Extractor    *graph.Extractor
	Velocity     *velocity.Analyzer
	Credit       *signals.CreditAnalyzer
	AU           *signals.AUDetector
	Applications *signals.ApplicationCounter
	Synthetic    *scoring.SyntheticScorer
	BustOut      *scoring.BustOutPredictor
	Rules        *rules.Engine
}

// Detector produces the final risk decision for an application.
type Detector struct {
	cfg       domain.ScoringConfig
	graph     domain.GraphStore
	extractor *graph.Extractor
	velocity  *velocity.Analyzer
	credit    *signals.CreditAnalyzer
	au        *signals.AUDetector
	apps      *signals.ApplicationCounter
	synthetic *scoring.SyntheticScorer
	bustOut   *scoring.BustOutPredictor
	rules     *rules.Engine
	now       func() time.Time
}

// NewDetector creates an ensemble detector.
func NewDetector(cfg domain.ScoringConfig, deps Dependencies) *Detector {
	def := domain.DefaultScoringConfig()
	if cfg.CollaboratorTimeout <= 0 {
		cfg.CollaboratorTimeout = def.CollaboratorTimeout
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = def.BatchWorkers
	}

	synthetic := deps.Synthetic
	if synthetic == nil {
		synthetic = scoring.NewSyntheticScorer(cfg)
	}
	bustOut := deps.BustOut
	if bustOut == nil {
		bustOut = scoring.NewBustOutPredictor(domain.DefaultBustOutConfig())
	}

	return &Detector{
		cfg:       cfg,
		graph:     deps.Graph,
		extractor: deps.Extractor,
		velocity:  deps.Velocity,
		credit:    deps.Credit,
		au:        deps.AU,
		apps:      deps.Applications,
		synthetic: synthetic,
		bustOut:   bustOut,
		rules:     deps.Rules,
		now:       time.Now,
	}
}

// WithClock sets the analysis clock.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// BustOut returns the detector's bust-out predictor.
func (d *Detector) BustOut() *scoring.BustOutPredictor {
	return d.bustOut
}

// notes collects degradation notes from concurrent detectors.
type notes struct {
	mu    sync.Mutex
	items []string
}

func (n *notes) degrade(collaborator string, err error) {
	slog.Warn("collaborator degraded",
		"collaborator", collaborator,
		"error", err,
	)
	metrics.CollaboratorFailure(collaborator)

	n.mu.Lock()
	n.items = append(n.items, fmt.Sprintf("%s: %v", collaborator, err))
	n.mu.Unlock()
}

func (n *notes) list() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	sort.Strings(n.items)
	return n.items
}

// Analyze scores one application. Collaborator failures degrade the result
// and are recorded in its notes; only invalid requests return an error.
func (d *Detector) Analyze(ctx context.Context, req *domain.ScoringRequest) (*domain.EnsembleResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return d.score(ctx, d.admit(ctx, req)), nil
}

// admission is a validated application whose identity has joined the graph
// and whose elements are recorded.
type admission struct {
	req      *domain.ScoringRequest
	identity domain.Identity
	joined   bool
	start    time.Time
	n        notes
}

// admit writes the application into the shared stores. Everything score
// reads afterwards sees it.
func (d *Detector) admit(ctx context.Context, req *domain.ScoringRequest) *admission {
	a := &admission{req: req, identity: req.Identity, start: time.Now()}
	a.identity.TenantID = req.TenantID
	a.joined = d.joinGraph(ctx, &a.identity, req.ReceivedAt, &a.n)
	d.recordElements(ctx, &a.identity, req.ReceivedAt, &a.n)
	return a
}

func (d *Detector) score(ctx context.Context, a *admission) *domain.EnsembleResult {
	req, identity, n := a.req, &a.identity, &a.n

	ctx, span := tracer.Start(ctx, "ensemble.Analyze", trace.WithAttributes(
		attribute.String("tenant_id", req.TenantID),
		attribute.String("identity_id", identity.ID),
	))
	defer span.End()

	start := a.start
	now := d.now()

	var (
		wg       sync.WaitGroup
		vel      *domain.VelocityAnalysis
		credit   *domain.CreditBehaviorAnalysis
		au       *domain.AUAbuseAnalysis
		features domain.GraphFeatures
		apps     *signals.ApplicationVelocity
	)

	run := func(fn func(ctx context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, d.cfg.CollaboratorTimeout)
			defer cancel()
			fn(cctx)
		}()
	}

	run(func(ctx context.Context) { vel = d.analyzeVelocity(ctx, identity, n) })
	run(func(ctx context.Context) { credit = d.analyzeCredit(ctx, identity, n) })
	run(func(ctx context.Context) { au = d.analyzeAU(ctx, identity, n) })
	run(func(ctx context.Context) { features = d.graphFeatures(ctx, req, n) })
	run(func(ctx context.Context) { apps = d.countApplication(ctx, identity, n) })
	wg.Wait()

	device := req.Device
	if identity.DeviceFingerprint == "" {
		device.WeakBinding = true
	}

	syn, err := d.synthetic.Score(scoring.SyntheticInputs{
		IdentityID: identity.ID,
		SSN:        req.SSN,
		Graph:      features,
		Velocity:   vel,
		Credit:     scoring.CreditSignalsFrom(credit, au),
		Device:     device,
	})
	if err != nil {
		n.degrade(CollaboratorSyntheticModel, err)
	}

	var bust *domain.BustOutPrediction
	if req.AccountID != "" && req.CreditSequence != nil {
		score := syn.Score
		bust, err = d.bustOut.Predict(req.AccountID, req.CreditSequence, &score)
		if err != nil {
			n.degrade(CollaboratorBustOut, err)
		}
		if bust != nil {
			metrics.ObserveBustOut(bust.RiskLevel.String())
		}
	}

	all := make([]string, 0, 16)
	all = append(all, vel.Anomalies...)
	all = append(all, credit.Anomalies...)
	all = append(all, au.Indicators...)
	all = append(all, syn.TriggeredSignals...)
	if bust != nil {
		all = append(all, bust.WarningSignals...)
	}
	if apps != nil && apps.IsHigh {
		all = append(all, domain.SignalHighApplicationVelocity)
	}
	all = Dedupe(all)

	final, contributions := FinalScore(syn.Score, vel.OverallVelocity, credit.BehaviorScore, au.Probability, bust)
	level := FinalRiskLevel(final, all)

	result := &domain.EnsembleResult{
		ID:            uuid.New().String(),
		TenantID:      req.TenantID,
		IdentityID:    identity.ID,
		FinalScore:    final,
		RiskLevel:     level,
		Signals:       all,
		Synthetic:     syn,
		BustOut:       bust,
		Velocity:      vel,
		Credit:        credit,
		AUAbuse:       au,
		GraphFeatures: &features,
		Contributions: contributions,
		AnalyzedAt:    now.UTC(),
	}
	if sc := span.SpanContext(); sc.HasTraceID() {
		result.TraceID = sc.TraceID().String()
	}

	if d.rules != nil && d.rules.RulesCount() > 0 {
		input := &rules.EvaluateInput{
			TenantID:   req.TenantID,
			IdentityID: identity.ID,
			Result:     result,
		}
		if apps != nil {
			input.AppCount7d, input.AppCount30d, input.AppCount90d = apps.Count7d, apps.Count30d, apps.Count90d
		}
		ruleResults, err := d.rules.EvaluateAll(ctx, input)
		if err != nil {
			n.degrade(CollaboratorRules, err)
		} else {
			result.RuleResults = ruleResults
			result.RiskLevel, result.Signals = rules.Escalate(result.RiskLevel, result.Signals, ruleResults)
			result.Signals = Dedupe(result.Signals)
		}
	}

	result.RecommendedAction = RecommendedAction(result.RiskLevel, bust)
	result.Explanation = Explanation(result.RiskLevel, syn, bust, vel, au)

	d.writeScore(ctx, identity, syn.Score, a.joined, n)

	result.Notes = n.list()
	result.TotalMs = time.Since(start).Milliseconds()

	metrics.ObserveScore(result.RiskLevel.String(), time.Since(start))
	span.SetAttributes(
		attribute.String("risk_level", result.RiskLevel.String()),
		attribute.Float64("final_score", result.FinalScore),
	)

	slog.Debug("identity scored",
		"tenant_id", req.TenantID,
		"identity_id", identity.ID,
		"final_score", result.FinalScore,
		"risk_level", result.RiskLevel.String(),
		"notes", len(result.Notes),
		"duration_ms", result.TotalMs,
	)

	return result
}

func validateRequest(req *domain.ScoringRequest) error {
	switch {
	case req == nil:
		return fmt.Errorf("%w: scoring request is required", domain.ErrInvalidInput)
	case req.TenantID == "":
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	case req.Identity.ID == "":
		return fmt.Errorf("%w: identity id is required", domain.ErrInvalidInput)
	case req.Identity.TenantID != "" && req.Identity.TenantID != req.TenantID:
		return fmt.Errorf("%w: identity tenant %q does not match request tenant %q", domain.ErrInvalidInput, req.Identity.TenantID, req.TenantID)
	}
	return nil
}

func (d *Detector) analyzeVelocity(ctx context.Context, identity *domain.Identity, n *notes) *domain.VelocityAnalysis {
	if d.velocity == nil {
		return neutralVelocity()
	}
	res, err := d.velocity.Analyze(ctx, identity.TenantID, identity)
	if err != nil {
		n.degrade(CollaboratorVelocity, err)
	}
	if res == nil {
		return neutralVelocity()
	}
	return res
}

func (d *Detector) analyzeCredit(ctx context.Context, identity *domain.Identity, n *notes) *domain.CreditBehaviorAnalysis {
	if d.credit == nil {
		return neutralCredit()
	}
	res, err := d.credit.Analyze(ctx, identity)
	if err != nil {
		n.degrade(CollaboratorCredit, err)
	}
	if res == nil {
		return neutralCredit()
	}
	return res
}

func (d *Detector) analyzeAU(ctx context.Context, identity *domain.Identity, n *notes) *domain.AUAbuseAnalysis {
	if d.au == nil {
		return neutralAU()
	}
	res, err := d.au.Analyze(ctx, identity.TenantID, identity)
	if err != nil {
		n.degrade(CollaboratorAU, err)
	}
	if res == nil {
		return neutralAU()
	}
	return res
}

// graphFeatures prefers features supplied with the request.
func (d *Detector) graphFeatures(ctx context.Context, req *domain.ScoringRequest, n *notes) domain.GraphFeatures {
	if req.Graph != nil {
		return *req.Graph
	}
	if d.extractor == nil {
		return domain.EmptyGraphFeatures()
	}
	f, err := d.extractor.ExtractCurrent(ctx, req.TenantID, req.Identity.ID)
	if err != nil {
		n.degrade(CollaboratorGraph, err)
		return domain.EmptyGraphFeatures()
	}
	return *f
}

func (d *Detector) countApplication(ctx context.Context, identity *domain.Identity, n *notes) *signals.ApplicationVelocity {
	if d.apps == nil {
		return nil
	}
	v, err := d.apps.Record(ctx, identity.TenantID, identity.SSNHash)
	if err != nil {
		n.degrade(CollaboratorApplications, err)
		return nil
	}
	return v
}

// joinGraph adds the identity to the graph before features are extracted,
// so a first application already shares PII with earlier ones. The cached
// graph build is kept; ExtractCurrent reads the new links from the store.
func (d *Detector) joinGraph(ctx context.Context, identity *domain.Identity, at time.Time, n *notes) bool {
	if d.graph == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.CollaboratorTimeout)
	defer cancel()

	if at.IsZero() {
		at = d.now()
	}
	if identity.FirstSeen.IsZero() {
		identity.FirstSeen = at
	}
	identity.LastSeen = at
	if err := d.graph.AddIdentity(ctx, identity.TenantID, identity); err != nil {
		n.degrade(CollaboratorWriteThrough, err)
		return false
	}
	return true
}

// recordElements stores the identity's element observations before velocity
// is read, so every scoring of an identity counts it exactly once.
func (d *Detector) recordElements(ctx context.Context, identity *domain.Identity, at time.Time, n *notes) {
	if d.velocity == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.CollaboratorTimeout)
	defer cancel()

	if at.IsZero() {
		at = d.now()
	}
	if err := d.velocity.RecordIdentityElements(ctx, identity.TenantID, identity, at); err != nil {
		n.degrade(CollaboratorWriteThrough, err)
	}
}

// writeScore stores the synthetic score on the identity's graph node so later
// applications see it as a neighbour score. Failures are noted, never returned.
func (d *Detector) writeScore(ctx context.Context, identity *domain.Identity, score float64, joined bool, n *notes) {
	if !joined {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.CollaboratorTimeout)
	defer cancel()

	if err := d.graph.UpdateSyntheticScore(ctx, identity.TenantID, identity.ID, score); err != nil {
		n.degrade(CollaboratorWriteThrough, err)
	}
}

func neutralVelocity() *domain.VelocityAnalysis {
	return &domain.VelocityAnalysis{Anomalies: []string{}, RiskLevel: domain.RiskMinimal}
}

func neutralCredit() *domain.CreditBehaviorAnalysis {
	return &domain.CreditBehaviorAnalysis{Anomalies: []string{}}
}

func neutralAU() *domain.AUAbuseAnalysis {
	return &domain.AUAbuseAnalysis{Accounts: []domain.AUAccount{}, Indicators: []string{}, RiskLevel: domain.RiskMinimal}
}

// FinalScore combines component scores into the final risk score and
// reports each component's weighted contribution.
func FinalScore(synthetic, velocityScore, credit, au float64, bust *domain.BustOutPrediction) (float64, []domain.Contribution) {
	parts := []domain.Contribution{
		{Component: "synthetic", Score: synthetic, Weight: WeightSynthetic},
		{Component: "velocity", Score: velocityScore, Weight: WeightVelocity},
		{Component: "credit", Score: credit, Weight: WeightCredit},
		{Component: "authorized_user", Score: au, Weight: WeightAU},
	}
	scale := 1.0
	if bust != nil {
		parts = append(parts, domain.Contribution{Component: "bustout", Score: bust.Probability, Weight: WeightBustOut})
	} else {
		scale = 1 / (1 - WeightBustOut)
	}

	total := 0.0
	for i := range parts {
		parts[i].Weight *= scale
		parts[i].Contribution = parts[i].Score * parts[i].Weight
		total += parts[i].Contribution
	}
	return domain.Clamp(total), parts
}

// FinalRiskLevel tiers the final score. Any critical signal forces critical.
func FinalRiskLevel(score float64, sigs []string) domain.RiskLevel {
	for _, s := range sigs {
		if domain.CriticalSignals[s] {
			return domain.RiskCritical
		}
	}
	switch {
	case score >= 0.85:
		return domain.RiskCritical
	case score >= 0.65:
		return domain.RiskHigh
	case score >= 0.45:
		return domain.RiskMedium
	case score >= 0.25:
		return domain.RiskLow
	default:
		return domain.RiskMinimal
	}
}

// RecommendedAction maps the final level to an action.
func RecommendedAction(level domain.RiskLevel, bust *domain.BustOutPrediction) string {
	switch level {
	case domain.RiskCritical:
		if bust != nil && bust.Probability > 0.8 {
			return domain.ActionFreezeAndFileSAR
		}
		return domain.ActionReviewDecline
	case domain.RiskHigh:
		return domain.ActionManualReview
	case domain.RiskMedium:
		return domain.ActionEnhancedVerification
	case domain.RiskLow:
		return domain.ActionStandardMonitor
	default:
		return domain.ActionApprove
	}
}

// Explanation renders the human-readable summary of a result.
func Explanation(level domain.RiskLevel, syn *domain.SyntheticScore, bust *domain.BustOutPrediction, vel *domain.VelocityAnalysis, au *domain.AUAbuseAnalysis) string {
	parts := []string{fmt.Sprintf("Overall risk: %s.", level.Upper())}

	if syn != nil && syn.Score > 0.5 {
		parts = append(parts, fmt.Sprintf("High synthetic identity risk (%s). %s", percent(syn.Score), syn.Explanation))
	}
	if bust != nil && bust.Probability > 0.5 {
		days := "unknown"
		if bust.DaysToBustOut != nil {
			days = fmt.Sprintf("%d", *bust.DaysToBustOut)
		}
		parts = append(parts, fmt.Sprintf("Elevated bust-out risk (%s). Estimated %s days to potential bust-out.", percent(bust.Probability), days))
	}
	if vel != nil && vel.OverallVelocity > 0.5 {
		parts = append(parts, fmt.Sprintf("High PII velocity detected. Anomalies: %s.", strings.Join(vel.Anomalies, ", ")))
	}
	if au != nil && au.Probability > 0.5 {
		parts = append(parts, fmt.Sprintf("Authorized user abuse pattern detected. %d AU accounts, %d unrelated.", au.AUCount, au.UnrelatedAUCount))
	}

	return strings.Join(parts, " ")
}

func percent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

// Dedupe returns the sorted distinct non-empty signals.
func Dedupe(sigs []string) []string {
	seen := make(map[string]bool, len(sigs))
	out := make([]string, 0, len(sigs))
	for _, s := range sigs {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
