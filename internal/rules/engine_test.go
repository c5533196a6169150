package rules

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func sampleResult() *domain.EnsembleResult {
	return &domain.EnsembleResult{
		TenantID:   "tenant-001",
		IdentityID: "id-001",
		FinalScore: 0.42,
		RiskLevel:  domain.RiskLow,
		Signals:    []string{domain.SignalThinFile},
		Synthetic:  &domain.SyntheticScore{Score: 0.55},
		Velocity:   &domain.VelocityAnalysis{OverallVelocity: 0.2},
		Credit:     &domain.CreditBehaviorAnalysis{IsThinFile: true, BehaviorScore: 0.5},
		AUAbuse:    &domain.AUAbuseAnalysis{AUCount: 3, UnrelatedAUCount: 2, Probability: 0.6},
		GraphFeatures: &domain.GraphFeatures{
			Degree:                2,
			SharedAddressCount:    2,
			ClusterSize:           3,
			HighRiskNeighborCount: 1,
		},
	}
}

func sampleInput() *EvaluateInput {
	return &EvaluateInput{
		TenantID:   "tenant-001",
		IdentityID: "id-001",
		Result:     sampleResult(),
	}
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "test-rule-001",
		Name:       "Test Rule",
		Expression: "final_score > 0.5",
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	tests := []struct {
		name string
		rule *domain.RuleConfig
	}{
		{"Syntax", &domain.RuleConfig{ID: "bad-syntax", Expression: "this is not valid CEL !!!"}},
		{"UnknownVariable", &domain.RuleConfig{ID: "bad-var", Expression: "amount > 100.0"}},
		{"StringOutput", &domain.RuleConfig{ID: "bad-type", Expression: "risk_level"}},
		{"MissingID", &domain.RuleConfig{Expression: "final_score > 0.5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.LoadRule(tt.rule)
			if err == nil {
				t.Fatal("expected error for invalid rule")
			}
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	if engine.RulesCount() != 0 {
		t.Errorf("invalid rules must not be loaded, got %d", engine.RulesCount())
	}
}

func TestValidateRuleDoesNotLoad(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	if err := engine.ValidateRule(&domain.RuleConfig{ID: "v", Expression: "risk_rank >= 3"}); err != nil {
		t.Fatalf("expected valid rule, got %v", err)
	}
	if engine.RulesCount() != 0 {
		t.Errorf("ValidateRule must not load, got %d rules", engine.RulesCount())
	}
	if err := engine.ValidateRule(nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil rule, got %v", err)
	}
}

func TestEvaluateVariables(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	tests := []struct {
		expression string
		want       float64
	}{
		{"final_score", 0.42},
		{"synthetic_score", 0.55},
		{"velocity_score", 0.2},
		{"credit_score", 0.5},
		{"au_probability", 0.6},
		{"bustout_probability", 0.0},
		{"risk_level == 'low'", 1},
		{"risk_rank", 1},
		{"has_bustout", 0},
		{"'THIN_FILE' in signals", 1},
		{"graph['shared_address_count']", 2},
		{"graph['cluster_size']", 3},
		{"au_count", 3},
		{"unrelated_au_count", 2},
		{"is_thin_file", 1},
		{"app_count_7d", 4},
		{"has(data.channel) && data.channel == 'online'", 1},
	}

	input := sampleInput()
	input.AppCount7d = 4
	input.AdditionalData = map[string]any{"channel": "online"}

	for i, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			engine.ReloadRules([]*domain.RuleConfig{{ID: fmt.Sprintf("var-%d", i), Expression: tt.expression, Enabled: true}})

			results, err := engine.EvaluateAll(context.Background(), input)
			if err != nil {
				t.Fatalf("evaluation failed: %v", err)
			}
			if len(results) != 1 {
				t.Fatalf("expected 1 result, got %d", len(results))
			}
			if results[0].SubRuleRef == domain.RuleOutcomeError {
				t.Fatalf("evaluation error: %s", results[0].Reason)
			}
			if diff := results[0].Score - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("expected %.2f, got %.2f", tt.want, results[0].Score)
			}
		})
	}
}

func TestEvaluateBustOutVariables(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadRule(&domain.RuleConfig{
		ID:         "bustout",
		Expression: "has_bustout && bustout_probability > 0.7",
		Enabled:    true,
	})

	input := sampleInput()
	input.Result.BustOut = &domain.BustOutPrediction{AccountID: "acct-1", Probability: 0.8}

	results, err := engine.EvaluateAll(context.Background(), input)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if results[0].Score != 1.0 {
		t.Errorf("expected 1.0 with bust-out present, got %.2f", results[0].Score)
	}
}

func TestEvaluateRequiresResult(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	if _, err := engine.EvaluateAll(context.Background(), &EvaluateInput{TenantID: "t1"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEvaluateNoRules(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	results, err := engine.EvaluateAll(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results != nil {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestEvaluateRuntimeError(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadRule(&domain.RuleConfig{
		ID:         "missing-key",
		Expression: "graph['no_such_feature'] > 1.0",
		Enabled:    true,
	})

	results, _ := engine.EvaluateAll(context.Background(), sampleInput())
	if results[0].SubRuleRef != domain.RuleOutcomeError {
		t.Errorf("expected .err outcome, got %s", results[0].SubRuleRef)
	}
}

func TestParallelExecution(t *testing.T) {
	engine, _ := NewEngine(3)
	defer engine.Close()

	for i := 0; i < 10; i++ {
		engine.LoadRule(&domain.RuleConfig{
			ID:         fmt.Sprintf("rule-%d", i),
			Name:       fmt.Sprintf("Rule %d", i),
			Expression: "final_score > 0.0",
			Enabled:    true,
		})
	}

	if engine.RulesCount() != 10 {
		t.Fatalf("expected 10 rules, got %d", engine.RulesCount())
	}

	results, err := engine.EvaluateAll(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("parallel evaluation failed: %v", err)
	}

	if len(results) != 10 {
		t.Errorf("expected 10 results, got %d", len(results))
	}

	for i, r := range results {
		if r.Score != 1.0 {
			t.Errorf("rule %d: expected score 1.0, got %.2f", i, r.Score)
		}
		if i > 0 && results[i-1].RuleID >= r.RuleID {
			t.Errorf("results not ordered by rule id: %s before %s", results[i-1].RuleID, r.RuleID)
		}
	}
}

func TestBandsMatchOutcomes(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	zero, one := 0.0, 1.0
	engine.LoadRule(&domain.RuleConfig{
		ID:          "synthetic-review",
		Name:        "Synthetic Review",
		Description: "Sends high synthetic scores to review",
		Version:     "1.0.0",
		Expression:  "synthetic_score > 0.7 ? 1.0 : 0.0",
		Bands: []domain.RuleBand{
			{LowerLimit: &zero, UpperLimit: &one, SubRuleRef: domain.RuleOutcomePass, Reason: "Synthetic score acceptable"},
			{LowerLimit: &one, SubRuleRef: domain.RuleOutcomeReview, Reason: "High synthetic score"},
		},
		Enabled: true,
	})

	ctx := context.Background()

	input := sampleInput()
	results, _ := engine.EvaluateAll(ctx, input)
	if results[0].SubRuleRef != domain.RuleOutcomePass {
		t.Errorf("expected PASS, got %s", results[0].SubRuleRef)
	}

	input.Result.Synthetic.Score = 0.9
	results, _ = engine.EvaluateAll(ctx, input)
	if results[0].SubRuleRef != domain.RuleOutcomeReview {
		t.Errorf("expected REVIEW, got %s", results[0].SubRuleRef)
	}
	if results[0].Reason != "High synthetic score" {
		t.Errorf("unexpected reason %q", results[0].Reason)
	}
}

func TestRuleResultMetadata(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadRule(&domain.RuleConfig{
		ID:         "meta-test",
		Expression: "final_score > 0.0",
		Enabled:    true,
	})
	engine.LoadRule(&domain.RuleConfig{
		ID:         "custom-signal",
		Expression: "final_score > 0.0",
		Signal:     "CUSTOM_SIGNAL",
		Enabled:    true,
	})

	results, _ := engine.EvaluateAll(context.Background(), sampleInput())

	custom, meta := results[0], results[1]
	if meta.RuleID != "meta-test" {
		t.Errorf("expected RuleID 'meta-test', got '%s'", meta.RuleID)
	}
	if meta.TenantID != "tenant-001" {
		t.Errorf("expected TenantID 'tenant-001', got '%s'", meta.TenantID)
	}
	if meta.IdentityID != "id-001" {
		t.Errorf("expected IdentityID 'id-001', got '%s'", meta.IdentityID)
	}
	if meta.Signal != "RULE_META_TEST" {
		t.Errorf("expected default signal RULE_META_TEST, got '%s'", meta.Signal)
	}
	if custom.Signal != "CUSTOM_SIGNAL" {
		t.Errorf("expected CUSTOM_SIGNAL, got '%s'", custom.Signal)
	}
	if meta.ProcessMs < 0 {
		t.Error("ProcessMs should be non-negative")
	}
}

func TestReloadRulesSkipsDisabled(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	err := engine.ReloadRules([]*domain.RuleConfig{
		{ID: "b", Expression: "final_score > 0.5", Enabled: true},
		{ID: "a", Expression: "final_score > 0.5", Enabled: true},
		{ID: "off", Expression: "final_score > 0.5", Enabled: false},
	})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	loaded := engine.GetLoadedRules()
	if len(loaded) != 2 || loaded[0].ID != "a" || loaded[1].ID != "b" {
		t.Errorf("unexpected loaded rules: %v", loaded)
	}

	// A failing reload keeps the previous set.
	if err := engine.ReloadRules([]*domain.RuleConfig{{ID: "x", Expression: "nope(", Enabled: true}}); err == nil {
		t.Fatal("expected reload error")
	}
	if engine.RulesCount() != 2 {
		t.Errorf("expected previous 2 rules after failed reload, got %d", engine.RulesCount())
	}
}

func TestEscalate(t *testing.T) {
	tests := []struct {
		name        string
		level       domain.RiskLevel
		results     []domain.RuleResult
		wantLevel   domain.RiskLevel
		wantSignals int
	}{
		{"PassKeepsLevel", domain.RiskLow, []domain.RuleResult{{SubRuleRef: domain.RuleOutcomePass, Signal: "S"}}, domain.RiskLow, 0},
		{"ReviewRaisesToHigh", domain.RiskLow, []domain.RuleResult{{SubRuleRef: domain.RuleOutcomeReview, Signal: "S"}}, domain.RiskHigh, 0},
		{"ReviewNeverLowers", domain.RiskCritical, []domain.RuleResult{{SubRuleRef: domain.RuleOutcomeReview}}, domain.RiskCritical, 0},
		{"FailRaisesToCritical", domain.RiskMinimal, []domain.RuleResult{{SubRuleRef: domain.RuleOutcomeFail, Signal: "S"}}, domain.RiskCritical, 1},
		{"ErrorIgnored", domain.RiskMedium, []domain.RuleResult{{SubRuleRef: domain.RuleOutcomeError, Signal: "S"}}, domain.RiskMedium, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, signals := Escalate(tt.level, nil, tt.results)
			if level != tt.wantLevel {
				t.Errorf("expected %s, got %s", tt.wantLevel, level)
			}
			if len(signals) != tt.wantSignals {
				t.Errorf("expected %d signals, got %v", tt.wantSignals, signals)
			}
		})
	}
}

func TestDefaultRulesCompile(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	if err := engine.LoadRules(DefaultRules()); err != nil {
		t.Fatalf("default rules failed to load: %v", err)
	}

	input := sampleInput()
	input.AppCount7d = 8
	results, err := engine.EvaluateAll(context.Background(), input)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	outcomes := map[string]string{}
	for _, r := range results {
		outcomes[r.RuleID] = r.SubRuleRef
	}
	if outcomes["application-burst"] != domain.RuleOutcomeFail {
		t.Errorf("expected application burst to fail, got %s", outcomes["application-burst"])
	}
	if outcomes["thin-file-au-stacking"] != domain.RuleOutcomeFail {
		t.Errorf("expected AU stacking to fail, got %s", outcomes["thin-file-au-stacking"])
	}
	if outcomes["high-risk-neighbourhood"] != domain.RuleOutcomePass {
		t.Errorf("expected neighbourhood to pass, got %s", outcomes["high-risk-neighbourhood"])
	}
}
