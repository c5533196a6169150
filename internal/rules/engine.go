// Package rules provides the CEL-Go based policy rule engine that tenants
// use to escalate scored applications.
package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine is the CEL-based rule evaluation engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a new rule evaluation engine.
// Rules see the scored result through the variables declared here.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("final_score", cel.DoubleType),
		cel.Variable("risk_level", cel.StringType),
		cel.Variable("risk_rank", cel.IntType),
		cel.Variable("synthetic_score", cel.DoubleType),
		cel.Variable("velocity_score", cel.DoubleType),
		cel.Variable("credit_score", cel.DoubleType),
		cel.Variable("au_probability", cel.DoubleType),
		cel.Variable("bustout_probability", cel.DoubleType),
		cel.Variable("has_bustout", cel.BoolType),
		cel.Variable("signals", cel.ListType(cel.StringType)),
		cel.Variable("graph", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("au_count", cel.IntType),
		cel.Variable("unrelated_au_count", cel.IntType),
		cel.Variable("is_thin_file", cel.BoolType),
		// Application counts per SSN
		cel.Variable("app_count_7d", cel.IntType),
		cel.Variable("app_count_30d", cel.IntType),
		cel.Variable("app_count_90d", cel.IntType),
		cel.Variable("data", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: rule config is required", domain.ErrInvalidInput)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateInput holds the scored result a rule set is evaluated against.
type EvaluateInput struct {
	TenantID   string
	IdentityID string
	Result     *domain.EnsembleResult

	// Windowed application counts for the applicant's SSN
	AppCount7d  int64
	AppCount30d int64
	AppCount90d int64

	// Exposed to rules as the "data" map
	AdditionalData map[string]any
}

// EvaluateAll evaluates all loaded rules in parallel.
// Results are ordered by rule ID.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) ([]domain.RuleResult, error) {
	if input == nil || input.Result == nil {
		return nil, fmt.Errorf("%w: evaluation input requires a result", domain.ErrInvalidInput)
	}

	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Config.ID < rules[j].Config.ID })

	activation := buildActivation(input)

	// Parallel evaluation using worker pool pattern
	results := make([]domain.RuleResult, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateRule(ctx, r, activation, input)
		}(i, rule)
	}

	wg.Wait()

	return results, nil
}

func buildActivation(input *EvaluateInput) map[string]any {
	res := input.Result

	activation := map[string]any{
		"final_score":         res.FinalScore,
		"risk_level":          res.RiskLevel.String(),
		"risk_rank":           int64(res.RiskLevel),
		"synthetic_score":     0.0,
		"velocity_score":      0.0,
		"credit_score":        0.0,
		"au_probability":      0.0,
		"bustout_probability": 0.0,
		"has_bustout":         res.BustOut != nil,
		"signals":             append([]string{}, res.Signals...),
		"graph":               graphMap(res.GraphFeatures),
		"au_count":            int64(0),
		"unrelated_au_count":  int64(0),
		"is_thin_file":        false,
		"app_count_7d":        input.AppCount7d,
		"app_count_30d":       input.AppCount30d,
		"app_count_90d":       input.AppCount90d,
		"data":                map[string]any{},
	}

	if res.Synthetic != nil {
		activation["synthetic_score"] = res.Synthetic.Score
	}
	if res.Velocity != nil {
		activation["velocity_score"] = res.Velocity.OverallVelocity
	}
	if res.Credit != nil {
		activation["credit_score"] = res.Credit.BehaviorScore
		activation["is_thin_file"] = res.Credit.IsThinFile
	}
	if res.AUAbuse != nil {
		activation["au_probability"] = res.AUAbuse.Probability
		activation["au_count"] = int64(res.AUAbuse.AUCount)
		activation["unrelated_au_count"] = int64(res.AUAbuse.UnrelatedAUCount)
	}
	if res.BustOut != nil {
		activation["bustout_probability"] = res.BustOut.Probability
	}
	if input.AdditionalData != nil {
		activation["data"] = input.AdditionalData
	}
	return activation
}

// graphMap exposes graph features under their JSON names.
func graphMap(f *domain.GraphFeatures) map[string]float64 {
	if f == nil {
		empty := domain.EmptyGraphFeatures()
		f = &empty
	}
	return map[string]float64{
		"degree":                   f.Degree,
		"weighted_degree":          f.WeightedDegree,
		"clustering_coefficient":   f.ClusteringCoefficient,
		"betweenness":              f.Betweenness,
		"pagerank":                 f.PageRank,
		"shared_ssn_count":         float64(f.SharedSSNCount),
		"shared_address_count":     float64(f.SharedAddressCount),
		"shared_phone_count":       float64(f.SharedPhoneCount),
		"shared_email_count":       float64(f.SharedEmailCount),
		"shared_device_count":      float64(f.SharedDeviceCount),
		"cluster_size":             float64(f.ClusterSize),
		"cluster_density":          f.ClusterDensity,
		"neighbor_avg_score":       f.NeighborAvgScore,
		"neighbor_max_score":       f.NeighborMaxScore,
		"high_risk_neighbor_count": float64(f.HighRiskNeighborCount),
		"community_size":           float64(f.CommunitySize),
	}
}

// evaluateRule evaluates a single rule and returns the result.
func (e *Engine) evaluateRule(ctx context.Context, rule *CompiledRule, activation map[string]any, input *EvaluateInput) domain.RuleResult {
	start := time.Now()

	result := domain.RuleResult{
		RuleID:     rule.Config.ID,
		TenantID:   input.TenantID,
		IdentityID: input.IdentityID,
		Signal:     SignalFor(rule.Config),
	}

	out, _, err := rule.Program.ContextEval(ctx, activation)
	if err != nil {
		result.SubRuleRef = domain.RuleOutcomeError
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	score := toScore(out)
	result.Score = score

	result.SubRuleRef, result.Reason = matchBand(score, rule.Config.Bands)
	result.ProcessMs = time.Since(start).Milliseconds()

	return result
}

// SignalFor returns the signal a rule adds when it escalates.
func SignalFor(cfg *domain.RuleConfig) string {
	if cfg.Signal != "" {
		return cfg.Signal
	}
	return "RULE_" + strings.ToUpper(strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(cfg.ID))
}

// Escalate applies rule outcomes to a risk level and signal set.
// A .fail raises the level to critical and adds the rule's signal;
// a .review raises it to at least high. Levels are never lowered.
func Escalate(level domain.RiskLevel, signals []string, results []domain.RuleResult) (domain.RiskLevel, []string) {
	for _, r := range results {
		switch r.SubRuleRef {
		case domain.RuleOutcomeFail:
			level = domain.RiskCritical
			if r.Signal != "" {
				signals = append(signals, r.Signal)
			}
		case domain.RuleOutcomeReview:
			level = domain.MaxRisk(level, domain.RiskHigh)
		}
	}
	return level, signals
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the matching band for a score.
// Bands are evaluated in order. Use lower inclusive, upper exclusive,
// except when upper is nil (meaning infinity).
func matchBand(score float64, bands []domain.RuleBand) (string, string) {
	for _, band := range bands {
		lower := 0.0
		hasUpper := band.UpperLimit != nil
		upper := float64(1e9) // effectively infinity

		if band.LowerLimit != nil {
			lower = *band.LowerLimit
		}
		if hasUpper {
			upper = *band.UpperLimit
		}

		// Match: lower <= score < upper (or lower <= score if no upper bound)
		if score >= lower {
			if !hasUpper || score < upper {
				return band.SubRuleRef, band.Reason
			}
			// Special case: if score equals upper and this is the last band, match it
			if score == upper && band.UpperLimit != nil {
				// Continue to next band which should have this as its lower
				continue
			}
		}
	}

	// Default to pass if no band matches
	return domain.RuleOutcomePass, "no matching band"
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	// Load new rules
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("%w: rule id is required", domain.ErrInvalidInput)
	}
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: failed to compile rule %s: %v", domain.ErrInvalidInput, cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("%w: rule %s: expression must return bool, int, or double, got %s", domain.ErrInvalidInput, cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
