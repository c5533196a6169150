package scoring

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// CreditSignals are the credit flags the synthetic scorer consumes.
type CreditSignals struct {
	ThinFile            bool
	FileAgeMismatch     bool
	RapidCreditBuilding bool
	AUAbusePattern      bool
}

// CreditSignalsFrom derives credit flags from the credit and AU analyses.
// The AU pattern is set when the AU abuse probability exceeds 0.5.
func CreditSignalsFrom(credit *domain.CreditBehaviorAnalysis, au *domain.AUAbuseAnalysis) CreditSignals {
	var s CreditSignals
	if credit != nil {
		s.ThinFile = credit.IsThinFile
		s.FileAgeMismatch = credit.HasAnomaly(domain.SignalFileAgeMismatch)
		s.RapidCreditBuilding = credit.HasAnomaly(domain.SignalRapidCreditBuilding)
	}
	if au != nil {
		s.AUAbusePattern = au.Probability > 0.5
	}
	return s
}

// SyntheticInputs is everything the synthetic scorer looks at.
type SyntheticInputs struct {
	IdentityID string
	SSN        domain.SSNSignals
	Graph      domain.GraphFeatures
	Velocity   *domain.VelocityAnalysis
	Credit     CreditSignals
	Device     domain.DeviceSignals
}

// SyntheticScorer combines component scores into a synthetic identity score.
type SyntheticScorer struct {
	cfg   domain.ScoringConfig
	model Model
	now   func() time.Time
}

// NewSyntheticScorer creates a rule-based scorer. Zero weights and thresholds
// take the defaults.
func NewSyntheticScorer(cfg domain.ScoringConfig) *SyntheticScorer {
	def := domain.DefaultScoringConfig()
	if cfg.SSNWeight+cfg.GraphWeight+cfg.VelocityWeight+cfg.CreditWeight+cfg.DeviceWeight <= 0 {
		cfg.SSNWeight = def.SSNWeight
		cfg.GraphWeight = def.GraphWeight
		cfg.VelocityWeight = def.VelocityWeight
		cfg.CreditWeight = def.CreditWeight
		cfg.DeviceWeight = def.DeviceWeight
	}
	if cfg.HighRiskThreshold <= 0 {
		cfg.HighRiskThreshold = def.HighRiskThreshold
	}
	if cfg.MediumRiskThreshold <= 0 {
		cfg.MediumRiskThreshold = def.MediumRiskThreshold
	}
	if cfg.ReviewThreshold <= 0 {
		cfg.ReviewThreshold = def.ReviewThreshold
	}
	return &SyntheticScorer{cfg: cfg, now: time.Now}
}

// WithModel makes the scorer use m instead of the weighted sum.
func (s *SyntheticScorer) WithModel(m Model) *SyntheticScorer {
	s.model = m
	return s
}

// WithClock overrides the timestamp source.
func (s *SyntheticScorer) WithClock(now func() time.Time) *SyntheticScorer {
	s.now = now
	return s
}

// Score computes the synthetic score. The result is always usable; a non-nil
// error means the model failed and the rule-based score was used.
func (s *SyntheticScorer) Score(in SyntheticInputs) (*domain.SyntheticScore, error) {
	components := domain.ComponentScores{
		SSN:      SSNComponent(in.SSN),
		Graph:    GraphComponent(in.Graph),
		Velocity: VelocityComponent(in.Velocity),
		Credit:   CreditComponent(in.Credit),
		Device:   DeviceComponent(in.Device),
	}

	score := domain.Clamp(components.SSN*s.cfg.SSNWeight +
		components.Graph*s.cfg.GraphWeight +
		components.Velocity*s.cfg.VelocityWeight +
		components.Credit*s.cfg.CreditWeight +
		components.Device*s.cfg.DeviceWeight)

	var modelErr error
	modelScored := false
	if s.model != nil {
		p, err := predict(s.model, SyntheticFeatureVector(components, in.Graph))
		if err != nil {
			modelErr = fmt.Errorf("synthetic model failed, using rule-based score: %w", err)
		} else {
			score = p
			modelScored = true
		}
	}

	level := s.RiskLevel(score)
	triggered := TriggeredSignals(in)
	return &domain.SyntheticScore{
		IdentityID:       in.IdentityID,
		Score:            score,
		RiskLevel:        level,
		Components:       components,
		TriggeredSignals: triggered,
		Explanation:      SyntheticExplanation(components, triggered, level),
		ModelScored:      modelScored,
		Timestamp:        s.now().UTC(),
	}, modelErr
}

// RiskLevel tiers a synthetic score.
func (s *SyntheticScorer) RiskLevel(score float64) domain.RiskLevel {
	switch {
	case score >= s.cfg.HighRiskThreshold:
		if score >= 0.9 {
			return domain.RiskCritical
		}
		return domain.RiskHigh
	case score >= s.cfg.MediumRiskThreshold:
		return domain.RiskMedium
	case score >= s.cfg.ReviewThreshold:
		return domain.RiskLow
	default:
		return domain.RiskMinimal
	}
}

// SSNComponent scores the SSN validity flags.
func SSNComponent(s domain.SSNSignals) float64 {
	score := 0.0
	if s.SSNDOBMismatch {
		score += 0.6
	}
	if s.DeathMasterMatch {
		score += 0.8
	}
	if s.InvalidSSN {
		score += 0.5
	}
	if s.ITINAsSSN {
		score += 0.4
	}
	if s.MultipleSSNs {
		score += 0.5
	}
	return domain.Clamp(score)
}

// GraphComponent scores the graph features.
func GraphComponent(f domain.GraphFeatures) float64 {
	score := 0.0
	if f.SharedSSNCount > 0 {
		score += min(0.6, float64(f.SharedSSNCount)*0.3)
	}
	if f.ClusterDensity > 0.5 {
		score += 0.2
	}
	if f.ClusterSize > 5 {
		score += min(0.3, float64(f.ClusterSize-5)*0.05)
	}
	if f.NeighborAvgScore > 0.5 {
		score += 0.2
	}
	return domain.Clamp(score)
}

// VelocityComponent weights address, phone and email velocity.
func VelocityComponent(v *domain.VelocityAnalysis) float64 {
	if v == nil {
		return 0
	}
	return domain.Clamp(v.AddressVelocity*0.3 + v.PhoneVelocity*0.4 + v.EmailVelocity*0.3)
}

// CreditComponent scores the credit flags.
func CreditComponent(c CreditSignals) float64 {
	score := 0.0
	if c.ThinFile {
		score += 0.2
	}
	if c.FileAgeMismatch {
		score += 0.4
	}
	if c.RapidCreditBuilding {
		score += 0.3
	}
	if c.AUAbusePattern {
		score += 0.5
	}
	return domain.Clamp(score)
}

// DeviceComponent scores the device signals.
func DeviceComponent(d domain.DeviceSignals) float64 {
	score := 0.0
	if d.WeakBinding {
		score += 0.3
	}
	if d.SharedDeviceCount > 3 {
		score += 0.4
	}
	if d.KnownFraudDevice {
		score += 0.8
	}
	if d.EmulatorDetected {
		score += 0.5
	}
	return domain.Clamp(score)
}

// TriggeredSignals lists the named flags raised by the inputs, in a fixed order.
func TriggeredSignals(in SyntheticInputs) []string {
	triggered := []string{}
	add := func(cond bool, name string) {
		if cond {
			triggered = append(triggered, name)
		}
	}

	add(in.SSN.SSNDOBMismatch, domain.SignalSSNDOBMismatch)
	add(in.SSN.DeathMasterMatch, domain.SignalDeathMasterMatch)
	add(in.SSN.MultipleSSNs, domain.SignalMultipleSSNs)

	add(in.Graph.SharedSSNCount > 0, domain.SignalSharedSSN)
	add(in.Graph.ClusterSize > 5, domain.SignalLargeCluster)

	if in.Velocity != nil {
		add(in.Velocity.AddressVelocity > 0.5, domain.SignalHighAddressVelocity)
		add(in.Velocity.PhoneVelocity > 0.5, domain.SignalHighPhoneVelocity)
	}

	add(in.Credit.ThinFile, domain.SignalThinFile)
	add(in.Credit.AUAbusePattern, domain.SignalAUAbuse)

	add(in.Device.KnownFraudDevice, domain.SignalFraudDevice)
	return triggered
}

type namedScore struct {
	name  string
	score float64
}

// SyntheticExplanation names the level, the top component above 0.3 and up to
// five signals. Ties go to the earlier component in ssn, graph, velocity,
// credit, device order.
func SyntheticExplanation(c domain.ComponentScores, triggered []string, level domain.RiskLevel) string {
	if level == domain.RiskMinimal {
		return "No significant synthetic identity indicators detected."
	}

	parts := []string{fmt.Sprintf("Risk level: %s.", level.Upper())}

	ranked := []namedScore{
		{"ssn", c.SSN},
		{"graph", c.Graph},
		{"velocity", c.Velocity},
		{"credit", c.Credit},
		{"device", c.Device},
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if top := ranked[0]; top.score > 0.3 {
		parts = append(parts, fmt.Sprintf("Primary risk factor: %s signals (score: %.2f).", top.name, top.score))
	}

	if len(triggered) > 0 {
		shown := triggered
		if len(shown) > 5 {
			shown = shown[:5]
		}
		parts = append(parts, fmt.Sprintf("Triggered signals: %s.", strings.Join(shown, ", ")))
	}
	return strings.Join(parts, " ")
}

// SyntheticFeatureVector is the model input: the five component scores
// followed by the 15 graph features.
func SyntheticFeatureVector(c domain.ComponentScores, g domain.GraphFeatures) []float64 {
	v := []float64{c.SSN, c.Graph, c.Velocity, c.Credit, c.Device}
	return append(v, g.Vector()...)
}
