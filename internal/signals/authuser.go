package signals

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	excessiveAUCount     = 6
	highAUCount          = 4
	minAUCountForBase    = 3
	mostlyUnrelatedRatio = 0.7
	rapidAUWindow        = 180 * 24 * time.Hour
	rapidAUAdditions     = 3
	highAULimit          = 10000.0
	newAccountMonths     = 6
)

var auIndicatorWeights = map[string]float64{
	domain.SignalExcessiveAUAccounts: 0.2,
	domain.SignalMostlyUnrelatedAU:   0.25,
	domain.SignalRapidAUAdditions:    0.15,
	domain.SignalHighLimitAUAccounts: 0.1,
	domain.SignalAUOnNewAccounts:     0.1,
}

const otherAUIndicatorWeight = 0.05

// AUDetector detects piggybacking on authorized-user tradelines of unrelated people.
type AUDetector struct {
	bureau domain.BureauConnector
	graph  domain.GraphStore
	now    func() time.Time
}

// NewAUDetector creates a detector over a bureau and graph store.
func NewAUDetector(bureau domain.BureauConnector, graph domain.GraphStore) *AUDetector {
	return &AUDetector{bureau: bureau, graph: graph, now: time.Now}
}

// WithClock replaces the detector's time source.
func (d *AUDetector) WithClock(now func() time.Time) *AUDetector {
	d.now = now
	return d
}

// Analyze scores the identity's AU tradelines. A bureau error yields the empty
// result; relationship lookup errors count the account as related.
func (d *AUDetector) Analyze(ctx context.Context, tenantID string, identity *domain.Identity) (*domain.AUAbuseAnalysis, error) {
	now := d.now()

	tradelines, err := d.bureau.GetTradelines(ctx, identity.SSNHash)
	if err != nil {
		return ScoreAU(nil, now), fmt.Errorf("tradeline lookup: %w", err)
	}

	var errs []error
	var accounts []domain.AUAccount
	for _, t := range tradelines {
		if !t.IsAuthorizedUser {
			continue
		}
		related := true
		if t.PrimaryHolder != "" {
			shares, err := d.graph.SharesAddressWithSSN(ctx, tenantID, identity.ID, t.PrimaryHolder)
			if err != nil {
				errs = append(errs, err)
			} else {
				related = shares
			}
		}
		accounts = append(accounts, auAccount(t, related, now))
	}

	res := ScoreAU(accounts, now)
	if len(errs) > 0 {
		return res, fmt.Errorf("relationship lookup: %w", errors.Join(errs...))
	}
	return res, nil
}

// Rings fetches each identity's tradelines and groups identities riding on
// the same primary holder. Identities whose bureau lookup fails are left out.
func (d *AUDetector) Rings(ctx context.Context, identities []*domain.Identity) ([]AURing, error) {
	byIdentity := make(map[string][]domain.Tradeline, len(identities))
	var errs []error
	for _, identity := range identities {
		tradelines, err := d.bureau.GetTradelines(ctx, identity.SSNHash)
		if err != nil {
			errs = append(errs, fmt.Errorf("identity %s: %w", identity.ID, err))
			continue
		}
		byIdentity[identity.ID] = tradelines
	}
	rings := FindAURings(byIdentity)
	if len(errs) > 0 {
		return rings, fmt.Errorf("tradeline lookup: %w", errors.Join(errs...))
	}
	return rings, nil
}

func auAccount(t domain.Tradeline, related bool, now time.Time) domain.AUAccount {
	added := t.AddedDate
	if added.IsZero() {
		added = t.OpenedDate
	}
	age := -1 // unknown
	if !t.OpenedDate.IsZero() {
		age = monthsBetween(t.OpenedDate, now)
	}
	return domain.AUAccount{
		AccountID:        t.AccountID,
		PrimaryHolder:    t.PrimaryHolder,
		AddedDate:        added,
		AccountAgeMonths: age,
		CreditLimit:      t.CreditLimit,
		IsRelated:        related,
	}
}

// ScoreAU computes the AU abuse analysis for a set of AU accounts.
func ScoreAU(accounts []domain.AUAccount, now time.Time) *domain.AUAbuseAnalysis {
	res := &domain.AUAbuseAnalysis{
		AUCount:    len(accounts),
		Accounts:   accounts,
		Indicators: []string{},
	}
	if res.Accounts == nil {
		res.Accounts = []domain.AUAccount{}
	}

	var recent, highLimit, onNew int
	for _, a := range accounts {
		if !a.IsRelated {
			res.UnrelatedAUCount++
		}
		if !a.AddedDate.IsZero() && now.Sub(a.AddedDate) < rapidAUWindow {
			recent++
		}
		if a.CreditLimit > highAULimit {
			highLimit++
		}
		if a.AccountAgeMonths >= 0 && a.AccountAgeMonths < newAccountMonths {
			onNew++
		}
	}

	var unrelatedRatio float64
	if res.AUCount > 0 {
		unrelatedRatio = float64(res.UnrelatedAUCount) / float64(res.AUCount)
	}

	switch {
	case res.AUCount >= excessiveAUCount:
		res.Indicators = append(res.Indicators, domain.SignalExcessiveAUAccounts)
	case res.AUCount >= highAUCount:
		res.Indicators = append(res.Indicators, domain.SignalHighAUCount)
	}
	if unrelatedRatio > mostlyUnrelatedRatio {
		res.Indicators = append(res.Indicators, domain.SignalMostlyUnrelatedAU)
	}
	if recent >= rapidAUAdditions {
		res.Indicators = append(res.Indicators, domain.SignalRapidAUAdditions)
	}
	if highLimit >= 2 {
		res.Indicators = append(res.Indicators, domain.SignalHighLimitAUAccounts)
	}
	if onNew >= 2 {
		res.Indicators = append(res.Indicators, domain.SignalAUOnNewAccounts)
	}

	var p float64
	switch {
	case res.AUCount >= excessiveAUCount:
		p = 0.4
	case res.AUCount >= highAUCount:
		p = 0.25
	case res.AUCount >= minAUCountForBase:
		p = 0.1
	}
	p += unrelatedRatio * 0.3
	excessive := false
	for _, ind := range res.Indicators {
		w, ok := auIndicatorWeights[ind]
		if !ok {
			w = otherAUIndicatorWeight
		}
		p += w
		if ind == domain.SignalExcessiveAUAccounts {
			excessive = true
		}
	}
	res.Probability = domain.Clamp(p)

	switch {
	case res.Probability >= 0.8 || excessive:
		res.RiskLevel = domain.RiskCritical
	case res.Probability >= 0.6:
		res.RiskLevel = domain.RiskHigh
	case res.Probability >= 0.4:
		res.RiskLevel = domain.RiskMedium
	case res.Probability >= 0.2:
		res.RiskLevel = domain.RiskLow
	default:
		res.RiskLevel = domain.RiskMinimal
	}

	return res
}

// AURing is a group of identities riding on the same primary holder's accounts.
type AURing struct {
	PrimaryHolder string   `json:"primaryHolderSsnHash"`
	Identities    []string `json:"identities"`
}

// FindAURings groups identities by the primary holders of their AU tradelines
// and returns every holder shared by at least two identities.
func FindAURings(tradelinesByIdentity map[string][]domain.Tradeline) []AURing {
	holders := make(map[string]map[string]bool)
	for identityID, tradelines := range tradelinesByIdentity {
		for _, t := range tradelines {
			if !t.IsAuthorizedUser || t.PrimaryHolder == "" {
				continue
			}
			if holders[t.PrimaryHolder] == nil {
				holders[t.PrimaryHolder] = make(map[string]bool)
			}
			holders[t.PrimaryHolder][identityID] = true
		}
	}

	var rings []AURing
	for holder, ids := range holders {
		if len(ids) < 2 {
			continue
		}
		ring := AURing{PrimaryHolder: holder}
		for id := range ids {
			ring.Identities = append(ring.Identities, id)
		}
		sort.Strings(ring.Identities)
		rings = append(rings, ring)
	}
	sort.Slice(rings, func(i, j int) bool {
		if len(rings[i].Identities) != len(rings[j].Identities) {
			return len(rings[i].Identities) > len(rings[j].Identities)
		}
		return rings[i].PrimaryHolder < rings[j].PrimaryHolder
	})
	return rings
}

func monthsBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()-from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
