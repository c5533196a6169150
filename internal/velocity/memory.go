package velocity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// MemoryStore is an in-process VelocityStore.
// Each element keeps member -> latest sighting maps, mirroring Redis sorted sets.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]map[string]*elementSets
}

type elementSets struct {
	identities map[string]time.Time
	ssns       map[string]time.Time
	firstSeen  time.Time
	lastSeen   time.Time
}

// NewMemoryStore creates an empty in-memory velocity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tenants: make(map[string]map[string]*elementSets)}
}

func elementKey(t domain.ElementType, hash string) string {
	return string(t) + ":" + hash
}

// Record adds an observation. A member keeps its latest timestamp.
func (s *MemoryStore) Record(ctx context.Context, tenantID string, obs domain.ElementObservation) error {
	if err := validateObservation(tenantID, obs); err != nil {
		return err
	}
	ts := obs.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	elements, ok := s.tenants[tenantID]
	if !ok {
		elements = make(map[string]*elementSets)
		s.tenants[tenantID] = elements
	}
	key := elementKey(obs.Type, obs.Hash)
	e, ok := elements[key]
	if !ok {
		e = &elementSets{
			identities: make(map[string]time.Time),
			ssns:       make(map[string]time.Time),
			firstSeen:  ts,
		}
		elements[key] = e
	}

	touch(e.identities, obs.IdentityID, ts)
	if obs.SSNHash != "" {
		touch(e.ssns, obs.SSNHash, ts)
	}
	if ts.Before(e.firstSeen) {
		e.firstSeen = ts
	}
	if ts.After(e.lastSeen) {
		e.lastSeen = ts
	}
	return nil
}

func touch(set map[string]time.Time, member string, ts time.Time) {
	if prev, ok := set[member]; !ok || ts.After(prev) {
		set[member] = ts
	}
}

// Window counts members seen inside each window.
func (s *MemoryStore) Window(ctx context.Context, tenantID string, elementType domain.ElementType, elementHash string, now time.Time) (*domain.ElementWindow, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	w := &domain.ElementWindow{}
	e, ok := s.tenants[tenantID][elementKey(elementType, elementHash)]
	if !ok {
		return w, nil
	}

	starts := windowStarts(now)
	w.Identities30 = countSince(e.identities, starts[0])
	w.Identities90 = countSince(e.identities, starts[1])
	w.Identities180 = countSince(e.identities, starts[2])
	w.SSNs30 = countSince(e.ssns, starts[0])
	w.SSNs90 = countSince(e.ssns, starts[1])
	w.SSNs180 = countSince(e.ssns, starts[2])
	w.FirstSeen = e.firstSeen
	w.LastSeen = e.lastSeen
	return w, nil
}

func countSince(set map[string]time.Time, since time.Time) int64 {
	var n int64
	for _, ts := range set {
		if !ts.Before(since) {
			n++
		}
	}
	return n
}

// History lists members seen since the given time, oldest first.
func (s *MemoryStore) History(ctx context.Context, tenantID string, elementType domain.ElementType, elementHash string, since time.Time) (*domain.ElementHistory, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	h := &domain.ElementHistory{
		Type:       elementType,
		Hash:       elementHash,
		Identities: []domain.TimestampedItem{},
		SSNs:       []domain.TimestampedItem{},
	}
	e, ok := s.tenants[tenantID][elementKey(elementType, elementHash)]
	if !ok {
		return h, nil
	}
	h.Identities = itemsSince(e.identities, since)
	h.SSNs = itemsSince(e.ssns, since)
	h.FirstSeen = e.firstSeen
	h.LastSeen = e.lastSeen
	return h, nil
}

func itemsSince(set map[string]time.Time, since time.Time) []domain.TimestampedItem {
	items := make([]domain.TimestampedItem, 0, len(set))
	for v, ts := range set {
		if !ts.Before(since) {
			items = append(items, domain.TimestampedItem{Value: v, Seen: ts})
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Seen.Equal(items[j].Seen) {
			return items[i].Value < items[j].Value
		}
		return items[i].Seen.Before(items[j].Seen)
	})
	return items
}

// Cleanup drops members last seen before the cutoff and returns the number of
// identity entries removed.
func (s *MemoryStore) Cleanup(ctx context.Context, tenantID string, before time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	elements := s.tenants[tenantID]
	for key, e := range elements {
		for id, ts := range e.identities {
			if ts.Before(before) {
				delete(e.identities, id)
				removed++
			}
		}
		for ssn, ts := range e.ssns {
			if ts.Before(before) {
				delete(e.ssns, ssn)
			}
		}
		if len(e.identities) == 0 && len(e.ssns) == 0 {
			delete(elements, key)
		}
	}
	return removed, nil
}

// Ping checks store health.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close releases all data.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants = make(map[string]map[string]*elementSets)
	return nil
}
