package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Application velocity limits per SSN.
const (
	MaxApplications7d  = 3
	MaxApplications30d = 6
	MaxApplications90d = 12
)

var applicationWindows = []struct {
	name   string
	window time.Duration
}{
	{"7d", 7 * 24 * time.Hour},
	{"30d", 30 * 24 * time.Hour},
	{"90d", 90 * 24 * time.Hour},
}

// ApplicationVelocity is the application count per SSN in each window.
type ApplicationVelocity struct {
	Count7d   int64   `json:"count7d"`
	Count30d  int64   `json:"count30d"`
	Count90d  int64   `json:"count90d"`
	IsHigh    bool    `json:"isHigh"`
	Severity  string  `json:"severity,omitempty"`
	RiskBoost float64 `json:"riskBoost"`
}

// ApplicationCounter counts credit applications per SSN using cache counters.
type ApplicationCounter struct {
	cache domain.Cache
}

// NewApplicationCounter creates a counter backed by the cache.
func NewApplicationCounter(cache domain.Cache) *ApplicationCounter {
	return &ApplicationCounter{cache: cache}
}

// Record counts one application for the SSN and returns the updated velocity.
func (c *ApplicationCounter) Record(ctx context.Context, tenantID, ssnHash string) (*ApplicationVelocity, error) {
	if ssnHash == "" {
		return &ApplicationVelocity{}, nil
	}

	counts := make([]int64, len(applicationWindows))
	for i, w := range applicationWindows {
		n, err := c.cache.IncrementCounter(ctx, tenantID, "apps:"+w.name+":"+ssnHash, w.window)
		if err != nil {
			return &ApplicationVelocity{}, fmt.Errorf("application counter %s: %w", w.name, err)
		}
		counts[i] = n
	}
	return EvaluateApplicationVelocity(counts[0], counts[1], counts[2]), nil
}

// EvaluateApplicationVelocity grades windowed application counts.
func EvaluateApplicationVelocity(count7d, count30d, count90d int64) *ApplicationVelocity {
	v := &ApplicationVelocity{
		Count7d:  count7d,
		Count30d: count30d,
		Count90d: count90d,
		IsHigh:   count7d > MaxApplications7d || count30d > MaxApplications30d || count90d > MaxApplications90d,
	}
	switch {
	case count7d > MaxApplications7d*2:
		v.Severity, v.RiskBoost = "critical", 0.40
	case count7d > MaxApplications7d || count30d > MaxApplications30d*1.5:
		v.Severity, v.RiskBoost = "high", 0.30
	case v.IsHigh:
		v.Severity, v.RiskBoost = "medium", 0.20
	}
	return v
}
