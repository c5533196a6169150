// Package velocity scores how fast PII elements are being reused across identities.
package velocity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Default per-element thresholds: distinct identities per 180 days.
const (
	DefaultAddressThreshold = 5
	DefaultPhoneThreshold   = 3
	DefaultEmailThreshold   = 2
	DefaultDeviceThreshold  = 3

	// DefaultRetention is how long observations are kept.
	DefaultRetention = 180 * 24 * time.Hour
)

// Element weights for the overall velocity score.
const (
	addressWeight = 0.25
	phoneWeight   = 0.35
	emailWeight   = 0.20
	deviceWeight  = 0.20
)

// scoredElements are the element types that carry a velocity score.
var scoredElements = []domain.ElementType{
	domain.ElementAddress,
	domain.ElementPhone,
	domain.ElementEmail,
	domain.ElementDevice,
}

// Analyzer scores PII element velocity from a VelocityStore.
type Analyzer struct {
	store      domain.VelocityStore
	thresholds map[domain.ElementType]int
	retention  time.Duration
	now        func() time.Time

	mu      sync.Mutex
	tenants map[string]struct{} // tenants with recorded observations
}

// NewAnalyzer creates a velocity analyzer. Zero thresholds fall back to defaults.
func NewAnalyzer(store domain.VelocityStore, cfg domain.VelocityConfig) *Analyzer {
	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Analyzer{
		store: store,
		thresholds: map[domain.ElementType]int{
			domain.ElementAddress: orDefault(cfg.AddressThreshold, DefaultAddressThreshold),
			domain.ElementPhone:   orDefault(cfg.PhoneThreshold, DefaultPhoneThreshold),
			domain.ElementEmail:   orDefault(cfg.EmailThreshold, DefaultEmailThreshold),
			domain.ElementDevice:  orDefault(cfg.DeviceThreshold, DefaultDeviceThreshold),
		},
		retention: retention,
		now:       time.Now,
		tenants:   make(map[string]struct{}),
	}
}

// WithClock overrides the analyzer clock.
func (a *Analyzer) WithClock(now func() time.Time) *Analyzer {
	a.now = now
	return a
}

// Threshold returns the configured threshold for an element type.
func (a *Analyzer) Threshold(t domain.ElementType) int {
	if v, ok := a.thresholds[t]; ok {
		return v
	}
	return DefaultAddressThreshold
}

// Analyze scores every element the identity carries.
// The result is always usable: an element whose window cannot be read scores 0
// and the store error is returned alongside.
func (a *Analyzer) Analyze(ctx context.Context, tenantID string, identity *domain.Identity) (*domain.VelocityAnalysis, error) {
	result := &domain.VelocityAnalysis{
		Anomalies: []string{},
		RiskLevel: domain.RiskMinimal,
		Elements:  make(map[domain.ElementType]domain.ElementVelocity),
	}
	if identity == nil {
		return result, fmt.Errorf("%w: identity is required", domain.ErrInvalidInput)
	}

	now := a.now()
	var errs []error
	scores := make(map[domain.ElementType]float64, len(scoredElements))

	for _, t := range scoredElements {
		hash := identity.Element(t)
		if hash == "" {
			continue
		}
		w, err := a.store.Window(ctx, tenantID, t, hash, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s velocity: %w", t, err))
			continue
		}
		if w == nil {
			continue
		}
		score := ScoreElement(w, a.Threshold(t))
		scores[t] = score
		result.Elements[t] = domain.ElementVelocity{
			Score:        score,
			Identities30: w.Identities30,
			Identities90: w.Identities90,
			Identities:   w.Identities180,
			SSNs:         w.SSNs180,
		}
	}

	result.AddressVelocity = scores[domain.ElementAddress]
	result.PhoneVelocity = scores[domain.ElementPhone]
	result.EmailVelocity = scores[domain.ElementEmail]
	result.DeviceVelocity = scores[domain.ElementDevice]
	result.OverallVelocity = OverallScore(result.AddressVelocity, result.PhoneVelocity, result.EmailVelocity, result.DeviceVelocity)
	result.Anomalies = Anomalies(result.AddressVelocity, result.PhoneVelocity, result.EmailVelocity, result.DeviceVelocity)
	result.RiskLevel = RiskLevelFor(result.OverallVelocity, len(result.Anomalies))

	return result, errors.Join(errs...)
}

// ScoreElement turns windowed counts into a 0-1 velocity score.
// When more than half of the identities arrived in the last 30 days the score
// is boosted by 1.2. The boost is taken at the largest 180-day count that
// still qualifies, so the score never falls as the 180-day count grows.
func ScoreElement(w *domain.ElementWindow, threshold int) float64 {
	if w == nil || w.Identities180 <= 1 {
		return 0
	}
	if threshold <= 0 {
		threshold = DefaultAddressThreshold
	}

	score := baseScore(w.Identities180, w.SSNs180, threshold)
	if n := min(w.Identities180, 2*w.Identities30-1); n > 1 {
		score = math.Max(score, 1.2*baseScore(n, w.SSNs180, threshold))
	}
	return math.Min(1, score)
}

func baseScore(identities, ssns int64, threshold int) float64 {
	ratio := float64(identities) / float64(threshold)
	var score float64
	if ratio <= 1 {
		score = ratio * 0.3
	} else {
		// saturates at 4x threshold
		score = 0.3 + math.Min(ratio-1, 3)*0.233
	}

	if ssns > 1 {
		score += math.Min(0.2, float64(ssns-1)*0.05)
	}
	return score
}

// OverallScore is the weighted velocity across element types.
func OverallScore(address, phone, email, device float64) float64 {
	total := address*addressWeight + phone*phoneWeight + email*emailWeight + device*deviceWeight
	return math.Min(1, total)
}

// Anomalies lists the velocity anomaly signals for the element scores.
func Anomalies(address, phone, email, device float64) []string {
	anomalies := []string{}
	if address > 0.5 {
		anomalies = append(anomalies, domain.SignalHighAddressVelocity)
	}
	if phone > 0.5 {
		anomalies = append(anomalies, domain.SignalHighPhoneVelocity)
	}
	if email > 0.5 {
		anomalies = append(anomalies, domain.SignalHighEmailVelocity)
	}
	if device > 0.5 {
		anomalies = append(anomalies, domain.SignalSharedDevice)
	}
	if address > 0.3 && phone > 0.3 {
		anomalies = append(anomalies, domain.SignalAddressPhoneCorrelation)
	}
	return anomalies
}

// RiskLevelFor maps the overall score and anomaly count to a risk level.
func RiskLevelFor(overall float64, anomalies int) domain.RiskLevel {
	switch {
	case overall >= 0.8 || anomalies >= 4:
		return domain.RiskCritical
	case overall >= 0.6 || anomalies >= 3:
		return domain.RiskHigh
	case overall >= 0.4 || anomalies >= 2:
		return domain.RiskMedium
	case overall >= 0.2 || anomalies >= 1:
		return domain.RiskLow
	default:
		return domain.RiskMinimal
	}
}

// RecordIdentityElements records every element the identity carries.
// Inserts are set inserts keyed by identity and SSN, so repeating a call is harmless.
func (a *Analyzer) RecordIdentityElements(ctx context.Context, tenantID string, identity *domain.Identity, at time.Time) error {
	if identity == nil {
		return fmt.Errorf("%w: identity is required", domain.ErrInvalidInput)
	}
	if at.IsZero() {
		at = a.now()
	}
	a.mu.Lock()
	a.tenants[tenantID] = struct{}{}
	a.mu.Unlock()

	var errs []error
	for _, t := range scoredElements {
		hash := identity.Element(t)
		if hash == "" {
			continue
		}
		err := a.store.Record(ctx, tenantID, domain.ElementObservation{
			Type:       t,
			Hash:       hash,
			IdentityID: identity.ID,
			SSNHash:    identity.SSNHash,
			Timestamp:  at,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("record %s: %w", t, err))
		}
	}
	return errors.Join(errs...)
}

// ElementHistory returns what has been seen with an element over the last daysBack days.
func (a *Analyzer) ElementHistory(ctx context.Context, tenantID string, elementType domain.ElementType, elementHash string, daysBack int) (*domain.ElementHistory, error) {
	if elementHash == "" {
		return nil, fmt.Errorf("%w: element hash is required", domain.ErrInvalidInput)
	}
	if daysBack <= 0 {
		daysBack = 180
	}
	since := a.now().AddDate(0, 0, -daysBack)
	return a.store.History(ctx, tenantID, elementType, elementHash, since)
}

// Cleanup removes observations older than the retention period.
func (a *Analyzer) Cleanup(ctx context.Context, tenantID string) (int64, error) {
	return a.store.Cleanup(ctx, tenantID, a.now().Add(-a.retention))
}

// CleanupAll runs Cleanup for every tenant this analyzer has recorded for.
func (a *Analyzer) CleanupAll(ctx context.Context) (int64, error) {
	a.mu.Lock()
	tenants := slices.Sorted(maps.Keys(a.tenants))
	a.mu.Unlock()

	var total int64
	var errs []error
	for _, tenantID := range tenants {
		n, err := a.Cleanup(ctx, tenantID)
		if err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenantID, err))
			continue
		}
		total += n
	}
	return total, errors.Join(errs...)
}

// RunCleanup calls CleanupAll every interval until ctx is done.
func (a *Analyzer) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := a.CleanupAll(ctx)
			if err != nil {
				slog.Warn("velocity cleanup failed", "error", err, "removed", removed)
				continue
			}
			if removed > 0 {
				slog.Info("velocity cleanup", "removed", removed)
			}
		}
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
