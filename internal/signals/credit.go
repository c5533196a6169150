package signals

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	thinFileTradelines     = 3
	fileAgeMismatchRatio   = 0.3
	auAbuseRatio           = 0.6
	auAbuseMinAccounts     = 3
	rapidCreditVelocity    = 0.7
	consistentFileAgeGapMo = 24
)

// CreditAnalyzer scores credit-bureau behaviour typical of synthetic identities.
type CreditAnalyzer struct {
	bureau domain.BureauConnector
	now    func() time.Time
}

// NewCreditAnalyzer creates an analyzer over a bureau connector.
func NewCreditAnalyzer(bureau domain.BureauConnector) *CreditAnalyzer {
	return &CreditAnalyzer{bureau: bureau, now: time.Now}
}

// WithClock replaces the analyzer's time source.
func (a *CreditAnalyzer) WithClock(now func() time.Time) *CreditAnalyzer {
	a.now = now
	return a
}

// Analyze scores an identity's credit file. It always returns a usable result;
// a bureau error yields the neutral result together with the error.
func (a *CreditAnalyzer) Analyze(ctx context.Context, identity *domain.Identity) (*domain.CreditBehaviorAnalysis, error) {
	now := a.now()
	neutral := &domain.CreditBehaviorAnalysis{
		Anomalies:       []string{},
		ClaimedAgeYears: identity.ClaimedAgeYears(now),
	}

	file, err := a.bureau.GetCreditFile(ctx, identity.SSNHash)
	if err != nil {
		return neutral, fmt.Errorf("credit file lookup: %w", err)
	}
	if file == nil {
		return neutral, nil
	}

	var fileAge *int
	if months, ok, err := a.bureau.GetCreditFileAge(ctx, identity.SSNHash); err != nil {
		return neutral, fmt.Errorf("credit file age lookup: %w", err)
	} else if ok {
		fileAge = &months
	}

	tradelines := file.Tradelines
	if len(tradelines) == 0 {
		if tradelines, err = a.bureau.GetTradelines(ctx, identity.SSNHash); err != nil {
			return neutral, fmt.Errorf("tradeline lookup: %w", err)
		}
	}
	auCount, err := a.bureau.GetAuthorizedUserCount(ctx, identity.SSNHash)
	if err != nil {
		return neutral, fmt.Errorf("authorized user lookup: %w", err)
	}

	return ScoreCredit(CreditInputs{
		FileAgeMonths:   fileAge,
		TradelineCount:  len(tradelines),
		AUCount:         auCount,
		CreditVelocity:  CreditVelocity(tradelines, now),
		ClaimedAgeYears: identity.ClaimedAgeYears(now),
	}), nil
}

// CreditInputs are the bureau facts the credit score is computed from.
type CreditInputs struct {
	FileAgeMonths   *int
	TradelineCount  int
	AUCount         int
	CreditVelocity  float64
	ClaimedAgeYears float64
}

// ScoreCredit computes the credit behaviour analysis from bureau facts.
func ScoreCredit(in CreditInputs) *domain.CreditBehaviorAnalysis {
	res := &domain.CreditBehaviorAnalysis{
		IsThinFile:       in.TradelineCount < thinFileTradelines,
		FileAgeMonths:    in.FileAgeMonths,
		TradelineCount:   in.TradelineCount,
		AUTradelineCount: in.AUCount,
		CreditVelocity:   domain.Clamp(in.CreditVelocity),
		ClaimedAgeYears:  in.ClaimedAgeYears,
		Anomalies:        []string{},
	}
	if in.TradelineCount > 0 {
		res.AUTradelineRatio = float64(in.AUCount) / float64(in.TradelineCount)
	}
	res.ExpectedFileMonths = math.Max(0, (in.ClaimedAgeYears-18)*12)
	if in.FileAgeMonths != nil {
		c := CheckFileAgeConsistency(*in.FileAgeMonths, in.ClaimedAgeYears)
		res.FileAgeConsistent = &c.Consistent
		res.FileAgeGapMonths = c.GapMonths
	}

	mismatch := in.FileAgeMonths != nil && float64(*in.FileAgeMonths) < res.ExpectedFileMonths*fileAgeMismatchRatio
	if mismatch {
		res.Anomalies = append(res.Anomalies, domain.SignalFileAgeMismatch)
	}
	if res.IsThinFile && in.ClaimedAgeYears > 30 {
		res.Anomalies = append(res.Anomalies, domain.SignalThinFileOldIdentity)
	}
	if res.AUTradelineRatio > auAbuseRatio && in.AUCount >= auAbuseMinAccounts {
		res.Anomalies = append(res.Anomalies, domain.SignalAUAbusePattern)
	}
	if res.CreditVelocity > rapidCreditVelocity {
		res.Anomalies = append(res.Anomalies, domain.SignalRapidCreditBuilding)
	}

	var score float64
	if res.IsThinFile {
		score += 0.2
		if in.ClaimedAgeYears > 35 {
			score += 0.3
		}
	}
	if res.AUTradelineRatio > 0.5 {
		score += res.AUTradelineRatio * 0.4
	}
	score += res.CreditVelocity * 0.3
	if mismatch {
		score += 0.4
	}
	res.BehaviorScore = domain.Clamp(score)

	return res
}

// CreditVelocity measures how fast credit was built: half from the share of
// tradelines opened in the last year, half from accounts opened in the last six
// months (saturating at five).
func CreditVelocity(tradelines []domain.Tradeline, now time.Time) float64 {
	if len(tradelines) == 0 {
		return 0
	}
	yearAgo := now.AddDate(-1, 0, 0)
	halfYearAgo := now.AddDate(0, -6, 0)

	var lastYear, lastHalf int
	for _, t := range tradelines {
		if t.OpenedDate.After(yearAgo) {
			lastYear++
		}
		if t.OpenedDate.After(halfYearAgo) {
			lastHalf++
		}
	}
	share := float64(lastYear) / float64(len(tradelines))
	return domain.Clamp(0.5*share + 0.5*math.Min(1, float64(lastHalf)/5))
}

// FileAgeConsistency compares a credit file's age with the claimed age.
type FileAgeConsistency struct {
	Consistent     bool    `json:"consistent"`
	ExpectedMonths float64 `json:"expectedMonths"`
	ActualMonths   int     `json:"actualMonths"`
	GapMonths      float64 `json:"gapMonths"`
	Message        string  `json:"message"`
}

// CheckFileAgeConsistency reports whether a file is within two years of the age
// expected from the claimed date of birth.
func CheckFileAgeConsistency(fileAgeMonths int, claimedAgeYears float64) FileAgeConsistency {
	expected := math.Max(0, (claimedAgeYears-18)*12)
	gap := expected - float64(fileAgeMonths)
	res := FileAgeConsistency{
		Consistent:     gap < consistentFileAgeGapMo,
		ExpectedMonths: expected,
		ActualMonths:   fileAgeMonths,
		GapMonths:      gap,
	}
	if res.Consistent {
		res.Message = "File age consistent with claimed age"
	} else {
		res.Message = fmt.Sprintf("File %d months younger than expected", int(gap))
	}
	return res
}
