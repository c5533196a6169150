package domain

//go:generate mockgen -destination=mocks/mock_domain.go -package=domain_mocks github.com/opensource-finance/kestrel/internal/domain BureauConnector,GraphStore,VelocityStore

import (
	"context"
	"time"
)

// BureauConnector reads credit-bureau data keyed by hashed SSN.
type BureauConnector interface {
	// GetCreditFile returns nil, nil when the bureau has no file.
	GetCreditFile(ctx context.Context, ssnHash string) (*CreditFile, error)

	GetTradelines(ctx context.Context, ssnHash string) ([]Tradeline, error)

	// GetCreditFileAge returns the file age in months; ok is false when unknown.
	GetCreditFileAge(ctx context.Context, ssnHash string) (months int, ok bool, err error)

	GetAuthorizedUserCount(ctx context.Context, ssnHash string) (int, error)
}

// CreditFile is a bureau credit file summary.
type CreditFile struct {
	SSNHash       string      `json:"ssnHash"`
	OpenedDate    time.Time   `json:"openedDate"`
	FileAgeMonths int         `json:"fileAgeMonths"`
	Tradelines    []Tradeline `json:"tradelines"`
}

// Tradeline is one credit account on a file.
type Tradeline struct {
	AccountID        string    `json:"accountId"`
	IsAuthorizedUser bool      `json:"isAuthorizedUser"`
	PrimaryHolder    string    `json:"primaryHolderSsnHash,omitempty"`
	OpenedDate       time.Time `json:"openedDate"`
	AddedDate        time.Time `json:"addedDate"`
	CreditLimit      float64   `json:"creditLimit"`
	Balance          float64   `json:"balance"`
}

// BureauConfig holds configuration for the bureau connector.
type BureauConfig struct {
	// Type is the connector type: "static" or "none"
	Type string

	// FixturesPath is a JSON file of credit files for the static connector.
	FixturesPath string

	// CacheTTL is how long bureau responses are cached (0 disables caching).
	CacheTTL time.Duration
}
