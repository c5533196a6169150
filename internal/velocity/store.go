package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// NewStore creates a velocity store based on configuration.
// For Community tier: returns the in-memory store.
// For Pro tier: returns the Redis sorted-set store.
func NewStore(cfg domain.VelocityConfig) (domain.VelocityStore, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryStore(), nil

	case "redis":
		return NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Retention)

	case "none":
		return NullStore{}, nil

	default:
		return nil, fmt.Errorf("unsupported velocity store type: %s", cfg.Type)
	}
}

func validateObservation(tenantID string, obs domain.ElementObservation) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if obs.Hash == "" || obs.IdentityID == "" {
		return fmt.Errorf("%w: element hash and identity are required", domain.ErrInvalidInput)
	}
	return nil
}

// windowStarts returns the start of the 30, 90 and 180 day windows ending at now.
func windowStarts(now time.Time) [3]time.Time {
	return [3]time.Time{
		now.AddDate(0, 0, -30),
		now.AddDate(0, 0, -90),
		now.AddDate(0, 0, -180),
	}
}

// NullStore records nothing and reports empty windows.
type NullStore struct{}

func (NullStore) Record(context.Context, string, domain.ElementObservation) error { return nil }

func (NullStore) Window(context.Context, string, domain.ElementType, string, time.Time) (*domain.ElementWindow, error) {
	return &domain.ElementWindow{}, nil
}

func (NullStore) History(_ context.Context, _ string, t domain.ElementType, hash string, _ time.Time) (*domain.ElementHistory, error) {
	return &domain.ElementHistory{Type: t, Hash: hash, Identities: []domain.TimestampedItem{}, SSNs: []domain.TimestampedItem{}}, nil
}

func (NullStore) Cleanup(context.Context, string, time.Time) (int64, error) { return 0, nil }

func (NullStore) Ping(context.Context) error { return nil }

func (NullStore) Close() error { return nil }
