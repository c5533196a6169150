package scoring

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Bust-out feature names, in model vector order.
const (
	FeatureBalanceTrend          = "balance_trend"
	FeatureBalanceVolatility     = "balance_volatility"
	FeatureMaxBalance            = "max_balance"
	FeatureRecentBalanceIncrease = "recent_balance_increase"
	FeatureAvgPayment            = "avg_payment"
	FeaturePaymentTrend          = "payment_trend"
	FeatureDecliningPayments     = "declining_payments"
	FeatureAvgUtilization        = "avg_utilization"
	FeatureMaxUtilization        = "max_utilization"
	FeatureUtilizationTrend      = "utilization_trend"
	FeatureTotalCashAdvances     = "total_cash_advances"
	FeatureCashAdvanceFrequency  = "cash_advance_frequency"
	FeatureRecentCashAdvances    = "recent_cash_advances"
	FeatureMonthsOnBooks         = "months_on_books"
	FeatureSyntheticScore        = "synthetic_score"

	// Not part of the model vector.
	FeatureMinPaymentRatio     = "min_payment_ratio"
	FeatureTotalLimitIncreases = "total_limit_increases"
	FeatureRecentLimitIncrease = "recent_limit_increase"
)

// BustOutFeatureOrder is the model input order.
var BustOutFeatureOrder = []string{
	FeatureBalanceTrend,
	FeatureBalanceVolatility,
	FeatureMaxBalance,
	FeatureRecentBalanceIncrease,
	FeatureAvgPayment,
	FeaturePaymentTrend,
	FeatureDecliningPayments,
	FeatureAvgUtilization,
	FeatureMaxUtilization,
	FeatureUtilizationTrend,
	FeatureTotalCashAdvances,
	FeatureCashAdvanceFrequency,
	FeatureRecentCashAdvances,
	FeatureMonthsOnBooks,
	FeatureSyntheticScore,
}

// BustOutPredictor estimates the probability an account is about to bust out.
type BustOutPredictor struct {
	threshold float64
	lookback  int
	maxDays   int
	model     Model
}

// NewBustOutPredictor creates a rule-based predictor.
func NewBustOutPredictor(cfg domain.BustOutConfig) *BustOutPredictor {
	def := domain.DefaultBustOutConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.LookbackMonths <= 0 {
		cfg.LookbackMonths = def.LookbackMonths
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = def.WindowDays
	}
	return &BustOutPredictor{
		threshold: cfg.Threshold,
		lookback:  cfg.LookbackMonths,
		maxDays:   cfg.WindowDays,
	}
}

// WithModel makes the predictor use m instead of the rule-based sum.
func (p *BustOutPredictor) WithModel(m Model) *BustOutPredictor {
	p.model = m
	return p
}

// Threshold is the probability at which a prediction is high risk.
func (p *BustOutPredictor) Threshold() float64 {
	return p.threshold
}

// Predict scores one account. syntheticScore is optional. A non-nil error
// with a non-nil prediction means the model failed and rules were used.
func (p *BustOutPredictor) Predict(accountID string, seq *domain.CreditSequence, syntheticScore *float64) (*domain.BustOutPrediction, error) {
	if seq == nil {
		return nil, fmt.Errorf("%w: credit sequence is required", domain.ErrInvalidInput)
	}
	if accountID == "" {
		accountID = seq.AccountID
	}
	trimmed := p.trim(seq)

	features := ExtractSequenceFeatures(trimmed)
	if syntheticScore != nil {
		features[FeatureSyntheticScore] = *syntheticScore
	}

	probability := RuleProbability(features)
	var modelErr error
	modelScored := false
	if p.model != nil {
		prob, err := predict(p.model, BustOutFeatureVector(features))
		if err != nil {
			modelErr = fmt.Errorf("bust-out model failed, using rule-based probability: %w", err)
		} else {
			probability = prob
			modelScored = true
		}
	}

	pred := &domain.BustOutPrediction{
		AccountID:      accountID,
		Probability:    probability,
		WarningSignals: WarningSignals(features),
		Features:       features,
		ModelScored:    modelScored,
	}
	if probability > 0.5 {
		days := p.DaysToBustOut(trimmed.Utilization)
		pred.DaysToBustOut = &days
	}
	pred.RiskLevel, pred.RecommendedAction = p.RiskAction(probability)
	return pred, modelErr
}

// trim keeps the most recent lookback months of every series.
func (p *BustOutPredictor) trim(seq *domain.CreditSequence) *domain.CreditSequence {
	out := *seq
	out.Balances = tail(seq.Balances, p.lookback)
	out.Payments = tail(seq.Payments, p.lookback)
	out.Utilization = tail(seq.Utilization, p.lookback)
	out.CashAdvances = tail(seq.CashAdvances, p.lookback)
	out.LimitChanges = tail(seq.LimitChanges, p.lookback)
	return &out
}

// ExtractSequenceFeatures derives trend and volatility features. Series with
// fewer than three points contribute nothing.
func ExtractSequenceFeatures(seq *domain.CreditSequence) map[string]float64 {
	f := make(map[string]float64)

	if b := seq.Balances; len(b) >= 3 {
		f[FeatureBalanceTrend] = slope(b)
		f[FeatureBalanceVolatility] = stddev(b)
		f[FeatureMaxBalance] = maxOf(b)
		f[FeatureRecentBalanceIncrease] = b[len(b)-1] - b[len(b)-3]
	}

	if pay := seq.Payments; len(pay) >= 3 {
		f[FeatureAvgPayment] = mean(pay)
		f[FeaturePaymentTrend] = slope(pay)
		if hi := maxOf(pay); hi > 0 {
			f[FeatureMinPaymentRatio] = minOf(pay) / hi
		} else {
			f[FeatureMinPaymentRatio] = 0
		}
		f[FeatureDecliningPayments] = 0
		if DecliningPayments(pay) {
			f[FeatureDecliningPayments] = 1
		}
	}

	if u := seq.Utilization; len(u) >= 3 {
		f[FeatureAvgUtilization] = mean(u)
		f[FeatureMaxUtilization] = maxOf(u)
		f[FeatureUtilizationTrend] = slope(u)
	}

	if cash := seq.CashAdvances; len(cash) > 0 {
		f[FeatureTotalCashAdvances] = sum(cash)
		freq := 0
		for _, c := range cash {
			if c > 0 {
				freq++
			}
		}
		f[FeatureCashAdvanceFrequency] = float64(freq)
		f[FeatureRecentCashAdvances] = sum(tail(cash, 3))
	}

	if limits := seq.LimitChanges; len(limits) > 0 {
		inc := 0.0
		for _, l := range limits {
			if l > 0 {
				inc += l
			}
		}
		f[FeatureTotalLimitIncreases] = inc
		f[FeatureRecentLimitIncrease] = limits[len(limits)-1]
	}

	f[FeatureMonthsOnBooks] = float64(seq.MonthsOnBooks)
	return f
}

// DecliningPayments reports whether the last three payments average under 80%
// of the earlier ones. Needs at least six months.
func DecliningPayments(payments []float64) bool {
	if len(payments) < 6 {
		return false
	}
	recent := payments[len(payments)-3:]
	prior := payments[:len(payments)-3]
	return mean(recent) < mean(prior)*0.8
}

// RuleProbability is the fallback used when no model is loaded.
func RuleProbability(f map[string]float64) float64 {
	p := 0.0
	if f[FeatureUtilizationTrend] > 0.05 {
		p += 0.2
	}
	if f[FeatureMaxUtilization] > 0.9 {
		p += 0.15
	}
	if f[FeatureDecliningPayments] > 0 {
		p += 0.25
	}
	if f[FeaturePaymentTrend] < -100 {
		p += 0.15
	}
	if f[FeatureCashAdvanceFrequency] > 2 {
		p += 0.2
	}
	if f[FeatureRecentCashAdvances] > 1000 {
		p += 0.15
	}
	if f[FeatureMonthsOnBooks] < 12 && f[FeatureBalanceTrend] > 500 {
		p += 0.2
	}
	if f[FeatureSyntheticScore] > 0.7 {
		p += 0.3
	}
	return domain.Clamp(p)
}

// WarningSignals names the individual bust-out warnings present in f.
func WarningSignals(f map[string]float64) []string {
	signals := []string{}
	if f[FeatureMaxUtilization] > 0.95 {
		signals = append(signals, domain.SignalMaxedOut)
	}
	if f[FeatureDecliningPayments] > 0 {
		signals = append(signals, domain.SignalDecliningPayments)
	}
	if f[FeatureCashAdvanceFrequency] >= 3 {
		signals = append(signals, domain.SignalFrequentCashAdvances)
	}
	if f[FeatureUtilizationTrend] > 0.1 {
		signals = append(signals, domain.SignalRapidUtilizationIncrease)
	}
	if f[FeatureBalanceTrend] > 1000 {
		signals = append(signals, domain.SignalRapidBalanceGrowth)
	}
	if f[FeatureSyntheticScore] > 0.7 {
		signals = append(signals, domain.SignalHighSyntheticRisk)
	}
	return signals
}

// DaysToBustOut extrapolates utilisation to 100% over the trailing six months.
func (p *BustOutPredictor) DaysToBustOut(utilization []float64) int {
	if len(utilization) < 3 {
		return p.maxDays
	}
	current := utilization[len(utilization)-1]
	if current >= 0.95 {
		return 30
	}

	recent := tail(utilization, 6)
	diffs := make([]float64, 0, len(recent)-1)
	for i := 1; i < len(recent); i++ {
		diffs = append(diffs, recent[i]-recent[i-1])
	}
	trend := mean(diffs)
	if trend <= 0 {
		return p.maxDays
	}

	days := (1 - current) / trend * 30
	switch {
	case days < 7:
		return 7
	case days > float64(p.maxDays):
		return p.maxDays
	default:
		return int(days)
	}
}

// RiskAction maps a probability to a risk level and recommended action.
func (p *BustOutPredictor) RiskAction(probability float64) (domain.RiskLevel, string) {
	switch {
	case probability >= 0.9:
		return domain.RiskCritical, domain.ActionReviewCreditFreeze
	case probability >= p.threshold:
		return domain.RiskHigh, domain.ActionUrgentReviewReduce
	case probability >= 0.5:
		return domain.RiskMedium, domain.ActionMonitorClosely
	case probability >= 0.3:
		return domain.RiskLow, domain.ActionStandardMonitoring
	default:
		return domain.RiskMinimal, domain.ActionNoAction
	}
}

// BustOutFeatureVector orders features for a model. Missing features are 0.
func BustOutFeatureVector(f map[string]float64) []float64 {
	v := make([]float64, len(BustOutFeatureOrder))
	for i, name := range BustOutFeatureOrder {
		v[i] = f[name]
	}
	return v
}
