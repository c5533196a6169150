package domain

import (
	"fmt"
	"strings"
)

// RiskLevel is an ordered risk tier. Higher values are riskier.
type RiskLevel int

const (
	RiskMinimal RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskLevelNames = [...]string{"minimal", "low", "medium", "high", "critical"}

// String returns the lower-case name of the level.
func (l RiskLevel) String() string {
	if l < RiskMinimal || l > RiskCritical {
		return fmt.Sprintf("RiskLevel(%d)", int(l))
	}
	return riskLevelNames[l]
}

// Upper returns the level name in upper case, as used in explanations.
func (l RiskLevel) Upper() string {
	return strings.ToUpper(l.String())
}

// MarshalText encodes the level as its name.
func (l RiskLevel) MarshalText() ([]byte, error) {
	if l < RiskMinimal || l > RiskCritical {
		return nil, fmt.Errorf("%w: risk level %d", ErrInvalidInput, int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name.
func (l *RiskLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseRiskLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseRiskLevel parses a case-insensitive level name.
func ParseRiskLevel(s string) (RiskLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range riskLevelNames {
		if n == name {
			return RiskLevel(i), nil
		}
	}
	return RiskMinimal, fmt.Errorf("%w: unknown risk level %q", ErrInvalidInput, s)
}

// MaxRisk returns the higher of two levels.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if a > b {
		return a
	}
	return b
}

// Clamp bounds a score to [0, 1].
func Clamp(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
