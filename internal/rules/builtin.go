package rules

import "github.com/opensource-finance/kestrel/internal/domain"

// DefaultRules returns the stock policy rules loaded when a deployment has
// none configured. Tenants replace them through the rules API.
func DefaultRules() []*domain.RuleConfig {
	zero, half, one := 0.0, 0.5, 1.0

	return []*domain.RuleConfig{
		{
			ID:          "application-burst",
			Name:        "Application Burst",
			Description: "More than six applications on one SSN within a week",
			Version:     "1.0.0",
			Expression:  "app_count_7d > 6",
			Bands: []domain.RuleBand{
				{LowerLimit: &zero, UpperLimit: &one, SubRuleRef: domain.RuleOutcomePass, Reason: "Normal application rate"},
				{LowerLimit: &one, SubRuleRef: domain.RuleOutcomeFail, Reason: "Application burst on SSN"},
			},
			Signal:  domain.SignalHighApplicationVelocity,
			Enabled: true,
		},
		{
			ID:          "thin-file-au-stacking",
			Name:        "Thin File With Unrelated AU Accounts",
			Description: "Thin credit file carried mostly by unrelated authorized-user tradelines",
			Version:     "1.0.0",
			Expression:  "is_thin_file && unrelated_au_count >= 2 ? 1.0 : (is_thin_file && au_count > 0 ? 0.5 : 0.0)",
			Bands: []domain.RuleBand{
				{LowerLimit: &zero, UpperLimit: &half, SubRuleRef: domain.RuleOutcomePass, Reason: "No AU stacking"},
				{LowerLimit: &half, UpperLimit: &one, SubRuleRef: domain.RuleOutcomeReview, Reason: "Thin file with AU tradelines"},
				{LowerLimit: &one, SubRuleRef: domain.RuleOutcomeFail, Reason: "Thin file built on unrelated AU tradelines"},
			},
			Enabled: true,
		},
		{
			ID:          "high-risk-neighbourhood",
			Name:        "High Risk Neighbourhood",
			Description: "Identity linked to several identities already scored high",
			Version:     "1.0.0",
			Expression:  "graph['high_risk_neighbor_count'] >= 2.0",
			Bands: []domain.RuleBand{
				{LowerLimit: &zero, UpperLimit: &one, SubRuleRef: domain.RuleOutcomePass, Reason: "Neighbourhood clear"},
				{LowerLimit: &one, SubRuleRef: domain.RuleOutcomeReview, Reason: "Linked to high risk identities"},
			},
			Enabled: true,
		},
	}
}
