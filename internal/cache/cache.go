// Package cache holds the byte caches shared by the bureau connector and the
// application counters, plus namespaced JSON views over them.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const defaultLocalTTL = 5 * time.Minute

// New builds the cache named by cfg.Type. "memory" (or empty) is a process
// local LRU; "redis" is Redis, fronted by a local LRU when EnableTwoPhase is set.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory", "":
		return NewLRUCache(cfg.LocalMaxSize), nil
	case "redis":
		remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		if !cfg.EnableTwoPhase {
			return remote, nil
		}
		return NewTiered(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// Tiered serves reads from a local LRU and falls back to Redis. Local copies
// never outlive localTTL, so a replica sees another replica's bureau refresh
// within that window. Counters bypass the LRU: application counts must agree
// across replicas.
type Tiered struct {
	local    *LRUCache
	remote   *RedisCache
	localTTL time.Duration
}

// NewTiered layers local over remote. A non-positive localTTL means five minutes.
func NewTiered(local *LRUCache, remote *RedisCache, localTTL time.Duration) *Tiered {
	if localTTL <= 0 {
		localTTL = defaultLocalTTL
	}
	return &Tiered{local: local, remote: remote, localTTL: localTTL}
}

func (c *Tiered) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if val, err := c.local.Get(ctx, tenantID, key); err != nil || val != nil {
		return val, err
	}
	val, err := c.remote.Get(ctx, tenantID, key)
	if err != nil || val == nil {
		return nil, err
	}
	_ = c.local.Set(ctx, tenantID, key, val, c.localTTL)
	return val, nil
}

func (c *Tiered) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, tenantID, key, value, min(ttl, c.localTTL)); err != nil {
		return err
	}
	return c.remote.Set(ctx, tenantID, key, value, ttl)
}

// Delete clears the local copy first so a failed remote delete cannot leave
// it behind.
func (c *Tiered) Delete(ctx context.Context, tenantID string, key string) error {
	if err := c.local.Delete(ctx, tenantID, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, tenantID, key)
}

func (c *Tiered) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, tenantID, key, window)
}

func (c *Tiered) Ping(ctx context.Context) error {
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *Tiered) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Namespace is a JSON view of a cache whose entries share one key space and
// one TTL. Entries are not tenant scoped: the namespace name takes the
// tenant's place in the key, so it should use a character tenant IDs cannot.
type Namespace struct {
	cache domain.Cache
	name  string
	ttl   time.Duration
}

// NewNamespace binds c to a key space and TTL.
func NewNamespace(c domain.Cache, name string, ttl time.Duration) *Namespace {
	return &Namespace{cache: c, name: name, ttl: ttl}
}

// Load decodes the entry under key. ok is false on a miss.
func Load[T any](ctx context.Context, n *Namespace, key string) (v *T, ok bool, err error) {
	return GetJSON[T](ctx, n.cache, n.name, key)
}

// Store encodes v under key with the namespace TTL.
func (n *Namespace) Store(ctx context.Context, key string, v any) error {
	return SetJSON(ctx, n.cache, n.name, key, v, n.ttl)
}
