package bureau

import (
	"context"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// cacheNamespace scopes bureau entries in the shared cache. Bureau data is
// keyed by SSN hash and is not tenant specific.
const cacheNamespace = "@bureau"

// fileEntry is the cached form of a lookup, including misses.
type fileEntry struct {
	Found bool               `json:"found"`
	File  *domain.CreditFile `json:"file,omitempty"`
}

// CachedConnector caches whole credit files and answers every lookup from
// them. Cache errors fall through to the wrapped connector.
type CachedConnector struct {
	next  domain.BureauConnector
	files *cache.Namespace
	now   func() time.Time
}

// NewCached wraps next with a read-through cache.
func NewCached(next domain.BureauConnector, c domain.Cache, ttl time.Duration) *CachedConnector {
	return &CachedConnector{next: next, files: cache.NewNamespace(c, cacheNamespace, ttl), now: time.Now}
}

func (c *CachedConnector) file(ctx context.Context, ssnHash string) (*domain.CreditFile, error) {
	key := "file:" + ssnHash
	entry, ok, err := cache.Load[fileEntry](ctx, c.files, key)
	if err != nil {
		slog.Warn("bureau cache read failed", "error", err)
	}
	if ok {
		return entry.File, nil
	}

	f, err := c.next.GetCreditFile(ctx, ssnHash)
	if err != nil {
		return nil, err
	}
	if err := c.files.Store(ctx, key, fileEntry{Found: f != nil, File: f}); err != nil {
		slog.Warn("bureau cache write failed", "error", err)
	}
	return f, nil
}

func (c *CachedConnector) GetCreditFile(ctx context.Context, ssnHash string) (*domain.CreditFile, error) {
	return c.file(ctx, ssnHash)
}

func (c *CachedConnector) GetTradelines(ctx context.Context, ssnHash string) ([]domain.Tradeline, error) {
	f, err := c.file(ctx, ssnHash)
	if err != nil || f == nil {
		return nil, err
	}
	return f.Tradelines, nil
}

func (c *CachedConnector) GetCreditFileAge(ctx context.Context, ssnHash string) (int, bool, error) {
	f, err := c.file(ctx, ssnHash)
	if err != nil || f == nil {
		return 0, false, err
	}
	if f.FileAgeMonths > 0 {
		return f.FileAgeMonths, true, nil
	}
	if f.OpenedDate.IsZero() {
		return 0, false, nil
	}
	return monthsBetween(f.OpenedDate, c.now()), true, nil
}

func (c *CachedConnector) GetAuthorizedUserCount(ctx context.Context, ssnHash string) (int, error) {
	f, err := c.file(ctx, ssnHash)
	if err != nil || f == nil {
		return 0, err
	}
	n := 0
	for _, t := range f.Tradelines {
		if t.IsAuthorizedUser {
			n++
		}
	}
	return n, nil
}
