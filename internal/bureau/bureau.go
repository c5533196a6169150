// Package bureau provides credit-bureau connector implementations for Kestrel.
package bureau

import (
	"context"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// New creates a bureau connector based on configuration. When c is non-nil
// and CacheTTL is positive the connector is wrapped in a read-through cache.
func New(cfg domain.BureauConfig, c domain.Cache) (domain.BureauConnector, error) {
	var conn domain.BureauConnector

	switch cfg.Type {
	case "none", "":
		return NullConnector{}, nil

	case "static":
		static, err := LoadStatic(cfg.FixturesPath)
		if err != nil {
			return nil, err
		}
		conn = static

	default:
		return nil, fmt.Errorf("unsupported bureau type: %s", cfg.Type)
	}

	if c != nil && cfg.CacheTTL > 0 {
		conn = NewCached(conn, c, cfg.CacheTTL)
	}
	return conn, nil
}

// NullConnector knows no credit files. Credit and authorized-user signals
// fall back to their neutral values.
type NullConnector struct{}

func (NullConnector) GetCreditFile(context.Context, string) (*domain.CreditFile, error) {
	return nil, nil
}

func (NullConnector) GetTradelines(context.Context, string) ([]domain.Tradeline, error) {
	return nil, nil
}

func (NullConnector) GetCreditFileAge(context.Context, string) (int, bool, error) {
	return 0, false, nil
}

func (NullConnector) GetAuthorizedUserCount(context.Context, string) (int, error) {
	return 0, nil
}
