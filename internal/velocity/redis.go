package velocity

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements VelocityStore with Redis sorted sets.
// Members are identity or SSN hashes scored by last-seen unix milliseconds.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultRetention
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) prefix(tenantID string) string {
	return "kestrel:" + tenantID + ":velocity:"
}

func (s *RedisStore) keys(tenantID string, t domain.ElementType, hash string) (identities, ssns, meta string) {
	base := s.prefix(tenantID) + string(t) + ":" + hash
	return base + ":identities", base + ":ssns", base + ":meta"
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func minScore(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// Record adds the observation in a single MULTI/EXEC.
func (s *RedisStore) Record(ctx context.Context, tenantID string, obs domain.ElementObservation) error {
	if err := validateObservation(tenantID, obs); err != nil {
		return err
	}
	ts := obs.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	idKey, ssnKey, metaKey := s.keys(tenantID, obs.Type, obs.Hash)
	stamp := ts.UTC().Format(time.RFC3339Nano)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAddGT(ctx, idKey, redis.Z{Score: score(ts), Member: obs.IdentityID})
		if obs.SSNHash != "" {
			pipe.ZAddGT(ctx, ssnKey, redis.Z{Score: score(ts), Member: obs.SSNHash})
		}
		pipe.HSetNX(ctx, metaKey, "first_seen", stamp)
		pipe.HSet(ctx, metaKey, "last_seen", stamp)
		pipe.Expire(ctx, idKey, s.ttl)
		if obs.SSNHash != "" {
			pipe.Expire(ctx, ssnKey, s.ttl)
		}
		pipe.Expire(ctx, metaKey, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record %s velocity: %w", obs.Type, err)
	}
	return nil
}

// Window counts members in each window with ZCOUNT.
func (s *RedisStore) Window(ctx context.Context, tenantID string, elementType domain.ElementType, elementHash string, now time.Time) (*domain.ElementWindow, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	idKey, ssnKey, metaKey := s.keys(tenantID, elementType, elementHash)
	starts := windowStarts(now)

	var counts [6]int64
	for i, start := range starts {
		n, err := s.client.ZCount(ctx, idKey, minScore(start), "+inf").Result()
		if err != nil {
			return nil, fmt.Errorf("failed to count identities: %w", err)
		}
		counts[i] = n

		n, err = s.client.ZCount(ctx, ssnKey, minScore(start), "+inf").Result()
		if err != nil {
			return nil, fmt.Errorf("failed to count ssns: %w", err)
		}
		counts[i+3] = n
	}

	first, last, err := s.meta(ctx, metaKey)
	if err != nil {
		return nil, err
	}

	return &domain.ElementWindow{
		Identities30:  counts[0],
		Identities90:  counts[1],
		Identities180: counts[2],
		SSNs30:        counts[3],
		SSNs90:        counts[4],
		SSNs180:       counts[5],
		FirstSeen:     first,
		LastSeen:      last,
	}, nil
}

func (s *RedisStore) meta(ctx context.Context, key string) (first, last time.Time, err error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return first, last, fmt.Errorf("failed to read velocity metadata: %w", err)
	}
	if v, ok := m["first_seen"]; ok {
		first, _ = time.Parse(time.RFC3339Nano, v)
	}
	if v, ok := m["last_seen"]; ok {
		last, _ = time.Parse(time.RFC3339Nano, v)
	}
	return first, last, nil
}

// History lists members seen since the given time, oldest first.
func (s *RedisStore) History(ctx context.Context, tenantID string, elementType domain.ElementType, elementHash string, since time.Time) (*domain.ElementHistory, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	idKey, ssnKey, metaKey := s.keys(tenantID, elementType, elementHash)
	rng := &redis.ZRangeBy{Min: minScore(since), Max: "+inf"}

	ids, err := s.client.ZRangeByScoreWithScores(ctx, idKey, rng).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read identities: %w", err)
	}
	ssns, err := s.client.ZRangeByScoreWithScores(ctx, ssnKey, rng).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ssns: %w", err)
	}
	first, last, err := s.meta(ctx, metaKey)
	if err != nil {
		return nil, err
	}

	return &domain.ElementHistory{
		Type:       elementType,
		Hash:       elementHash,
		Identities: toItems(ids),
		SSNs:       toItems(ssns),
		FirstSeen:  first,
		LastSeen:   last,
	}, nil
}

func toItems(zs []redis.Z) []domain.TimestampedItem {
	items := make([]domain.TimestampedItem, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		items = append(items, domain.TimestampedItem{
			Value: member,
			Seen:  time.UnixMilli(int64(z.Score)).UTC(),
		})
	}
	return items
}

// Cleanup trims members older than the cutoff from every element of the tenant.
// It returns the number of identity entries removed.
func (s *RedisStore) Cleanup(ctx context.Context, tenantID string, before time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	pattern := s.prefix(tenantID) + "*:identities"
	maxScore := "(" + minScore(before)

	var removed int64
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to scan velocity keys: %w", err)
		}
		for _, key := range keys {
			n, err := s.client.ZRemRangeByScore(ctx, key, "-inf", maxScore).Result()
			if err != nil {
				return removed, fmt.Errorf("failed to trim %s: %w", key, err)
			}
			removed += n

			ssnKey := strings.TrimSuffix(key, ":identities") + ":ssns"
			if err := s.client.ZRemRangeByScore(ctx, ssnKey, "-inf", maxScore).Err(); err != nil {
				return removed, fmt.Errorf("failed to trim %s: %w", ssnKey, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
