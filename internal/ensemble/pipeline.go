package ensemble

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Pipeline scores an application, persists the result and publishes the
// resulting events. The API and the async worker both score through it.
type Pipeline struct {
	detector *Detector
	repo     domain.Repository
	bus      domain.EventBus
}

// NewPipeline creates a scoring pipeline. repo and bus may be nil.
func NewPipeline(detector *Detector, repo domain.Repository, bus domain.EventBus) *Pipeline {
	return &Pipeline{
		detector: detector,
		repo:     repo,
		bus:      bus,
	}
}

// Detector returns the pipeline's detector.
func (p *Pipeline) Detector() *Detector {
	return p.detector
}

// Score analyzes one request. Persistence and publish failures are logged and
// recorded as notes; only invalid requests return an error.
func (p *Pipeline) Score(ctx context.Context, req *domain.ScoringRequest) (*domain.EnsembleResult, error) {
	res, err := p.detector.Analyze(ctx, req)
	if err != nil {
		return nil, err
	}
	p.record(ctx, req, res)
	return res, nil
}

// ScoreBatch analyzes requests in order through the detector's worker pool.
func (p *Pipeline) ScoreBatch(ctx context.Context, reqs []*domain.ScoringRequest) []BatchResult {
	results := p.detector.AnalyzeBatch(ctx, reqs)
	for i, r := range results {
		if r.Result != nil {
			p.record(ctx, reqs[i], r.Result)
		}
	}
	return results
}

func (p *Pipeline) record(ctx context.Context, req *domain.ScoringRequest, res *domain.EnsembleResult) {
	if p.repo != nil {
		identity := req.Identity
		identity.TenantID = req.TenantID
		if res.Synthetic != nil {
			identity.SyntheticScore = res.Synthetic.Score
		}
		if err := p.repo.SaveIdentity(ctx, req.TenantID, &identity); err != nil {
			p.note(res, "repository", err)
		}
		if err := p.repo.SaveScore(ctx, req.TenantID, res); err != nil {
			p.note(res, "repository", err)
		}
	}

	if p.bus == nil {
		return
	}
	if err := p.publish(ctx, res.TenantID, domain.TopicScoreResult, res); err != nil {
		p.note(res, "bus", err)
	}
	if ShouldAlert(res) {
		if err := p.publish(ctx, res.TenantID, domain.TopicAlert, NewAlert(res)); err != nil {
			p.note(res, "bus", err)
		}
	}
	if ShouldAlertBustOut(res, p.detector.BustOut().Threshold()) {
		if err := p.publish(ctx, res.TenantID, domain.TopicBustOutAlert, NewBustOutAlert(res)); err != nil {
			p.note(res, "bus", err)
		}
	}
}

func (p *Pipeline) note(res *domain.EnsembleResult, collaborator string, err error) {
	slog.Error("failed to record score",
		"tenant_id", res.TenantID,
		"identity_id", res.IdentityID,
		"score_id", res.ID,
		"collaborator", collaborator,
		"error", err,
	)
	res.Notes = append(res.Notes, fmt.Sprintf("%s: %v", collaborator, err))
}

func (p *Pipeline) publish(ctx context.Context, tenantID, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", topic, err)
	}
	return p.bus.Publish(ctx, tenantID, topic, payload)
}

// Alert is published for results at high risk or above.
type Alert struct {
	ScoreID           string           `json:"scoreId"`
	TenantID          string           `json:"tenantId"`
	IdentityID        string           `json:"identityId"`
	FinalScore        float64          `json:"finalRiskScore"`
	RiskLevel         domain.RiskLevel `json:"riskLevel"`
	Signals           []string         `json:"primarySignals"`
	RecommendedAction string           `json:"recommendedAction"`
	Reasons           []string         `json:"reasons,omitempty"`
}

// NewAlert builds the alert for a result.
func NewAlert(res *domain.EnsembleResult) Alert {
	return Alert{
		ScoreID:           res.ID,
		TenantID:          res.TenantID,
		IdentityID:        res.IdentityID,
		FinalScore:        res.FinalScore,
		RiskLevel:         res.RiskLevel,
		Signals:           res.Signals,
		RecommendedAction: res.RecommendedAction,
		Reasons:           Reasons(res),
	}
}

// BustOutAlert is published when an account's bust-out probability reaches
// the configured threshold.
type BustOutAlert struct {
	ScoreID           string   `json:"scoreId"`
	TenantID          string   `json:"tenantId"`
	IdentityID        string   `json:"identityId"`
	AccountID         string   `json:"accountId"`
	Probability       float64  `json:"bustOutProbability"`
	DaysToBustOut     *int     `json:"estimatedDaysToBustOut,omitempty"`
	WarningSignals    []string `json:"warningSignals"`
	RecommendedAction string   `json:"recommendedAction"`
}

// NewBustOutAlert builds the bust-out alert for a result with a prediction.
func NewBustOutAlert(res *domain.EnsembleResult) BustOutAlert {
	b := res.BustOut
	return BustOutAlert{
		ScoreID:           res.ID,
		TenantID:          res.TenantID,
		IdentityID:        res.IdentityID,
		AccountID:         b.AccountID,
		Probability:       b.Probability,
		DaysToBustOut:     b.DaysToBustOut,
		WarningSignals:    b.WarningSignals,
		RecommendedAction: b.RecommendedAction,
	}
}

// ShouldAlert reports whether a result warrants an alert.
func ShouldAlert(res *domain.EnsembleResult) bool {
	return res.RiskLevel >= domain.RiskHigh
}

// ShouldAlertBustOut reports whether a result carries a bust-out prediction
// at or above threshold.
func ShouldAlertBustOut(res *domain.EnsembleResult, threshold float64) bool {
	return res.BustOut != nil && res.BustOut.Probability >= threshold
}

// Reasons extracts the reasons of escalating policy rules.
func Reasons(res *domain.EnsembleResult) []string {
	var reasons []string
	for _, r := range res.RuleResults {
		if r.SubRuleRef == domain.RuleOutcomeFail || r.SubRuleRef == domain.RuleOutcomeReview {
			if r.Reason != "" {
				reasons = append(reasons, r.Reason)
			}
		}
	}
	return reasons
}
