package graph

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graphstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runRepo keeps cluster runs in memory. Other Repository methods are not used.
type runRepo struct {
	domain.Repository
	mu       sync.Mutex
	runs     []*domain.ClusterRun
	failNext bool
}

func (r *runRepo) CommitClusterRun(_ context.Context, _ string, run *domain.ClusterRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext {
		r.failNext = false
		return errors.New("connection reset")
	}
	r.runs = append(r.runs, run)
	return nil
}

func (r *runRepo) GetLatestClusterRun(_ context.Context, _ string) (*domain.ClusterRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.runs) == 0 {
		return nil, domain.ErrNotFound
	}
	return r.runs[len(r.runs)-1], nil
}

func (r *runRepo) GetCluster(_ context.Context, _ string, clusterID string) (*domain.SyntheticCluster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.runs) == 0 {
		return nil, domain.ErrNotFound
	}
	for _, c := range r.runs[len(r.runs)-1].Clusters {
		if c.ClusterID == clusterID {
			c := c
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

// recordingBus captures published payloads.
type recordingBus struct {
	domain.EventBus
	mu       sync.Mutex
	messages map[string][][]byte
}

func (b *recordingBus) Publish(_ context.Context, _ string, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.messages == nil {
		b.messages = make(map[string][][]byte)
	}
	b.messages[topic] = append(b.messages[topic], payload)
	return nil
}

// blockingStore holds Snapshot until release is closed.
type blockingStore struct {
	domain.GraphStore
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) Snapshot(ctx context.Context, tenantID string) (*domain.GraphSnapshot, error) {
	close(s.entered)
	<-s.release
	return s.GraphStore.Snapshot(ctx, tenantID)
}

func seedRing(t *testing.T, store domain.GraphStore) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []string{"r1", "r2", "r3", "r4", "r5", "r6"} {
		require.NoError(t, store.AddIdentity(ctx, "tenant-001", &domain.Identity{ID: id, SSNHash: "ssn-shared"}))
	}
	require.NoError(t, store.AddIdentity(ctx, "tenant-001", &domain.Identity{ID: "other", SSNHash: "ssn-other"}))
}

func TestClusterService(t *testing.T) {
	ctx := context.Background()

	t.Run("CommitsVersionedRuns", func(t *testing.T) {
		store := graphstore.NewMemoryStore()
		seedRing(t, store)
		repo := &runRepo{}
		bus := &recordingBus{}
		extractor := NewExtractor(store, 0)

		_, err := extractor.Extract(ctx, "tenant-001", "r1")
		require.NoError(t, err)

		svc := NewClusterService(NewClusterDetector(store, domain.DefaultClusterConfig()), store, repo, bus, extractor)
		run, err := svc.Run(ctx, "tenant-001", DetectOptions{})
		require.NoError(t, err)
		assert.EqualValues(t, 1, run.Version)
		assert.Equal(t, 7, run.NodeCount)
		require.Len(t, run.Clusters, 1)
		assert.Equal(t, domain.RiskHigh, run.Clusters[0].RiskLevel)

		member, ok := store.Identity("tenant-001", "r3")
		require.True(t, ok)
		assert.Equal(t, run.Clusters[0].ClusterID, member.ClusterID)
		outsider, _ := store.Identity("tenant-001", "other")
		assert.Empty(t, outsider.ClusterID)

		// the extractor sees the new assignment after invalidation
		f, err := extractor.Extract(ctx, "tenant-001", "r1")
		require.NoError(t, err)
		assert.Equal(t, run.Clusters[0].ClusterID, f.ClusterID)
		assert.Equal(t, 6, f.CommunitySize)

		second, err := svc.Run(ctx, "tenant-001", DetectOptions{Algorithm: AlgorithmLabelPropagation})
		require.NoError(t, err)
		assert.EqualValues(t, 2, second.Version)
		assert.Equal(t, AlgorithmLabelPropagation, second.Algorithm)

		latest, err := svc.Latest(ctx, "tenant-001")
		require.NoError(t, err)
		assert.Equal(t, second.ID, latest.ID)

		members, err := svc.GetClusterMembers(ctx, "tenant-001", second.Clusters[0].ClusterID)
		require.NoError(t, err)
		assert.Len(t, members, 6)

		require.Len(t, bus.messages[domain.TopicClusterCompleted], 2)
		var evt ClusterCompleted
		require.NoError(t, json.Unmarshal(bus.messages[domain.TopicClusterCompleted][1], &evt))
		assert.EqualValues(t, 2, evt.Version)
		assert.Equal(t, 1, evt.Clusters)
	})

	t.Run("RecoversFromFailedRepositoryCommit", func(t *testing.T) {
		store := graphstore.NewMemoryStore()
		seedRing(t, store)
		repo := &runRepo{failNext: true}
		svc := NewClusterService(NewClusterDetector(store, domain.DefaultClusterConfig()), store, repo, nil, nil)

		_, err := svc.Run(ctx, "tenant-001", DetectOptions{})
		require.Error(t, err)
		_, err = svc.Latest(ctx, "tenant-001")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		for want := int64(2); want <= 4; want++ {
			run, err := svc.Run(ctx, "tenant-001", DetectOptions{})
			require.NoError(t, err)
			assert.Equal(t, want, run.Version)
		}

		latest, err := svc.Latest(ctx, "tenant-001")
		require.NoError(t, err)
		assert.EqualValues(t, 4, latest.Version)
		member, _ := store.Identity("tenant-001", "r1")
		assert.Equal(t, latest.Clusters[0].ClusterID, member.ClusterID)
	})

	t.Run("RejectsConcurrentRun", func(t *testing.T) {
		mem := graphstore.NewMemoryStore()
		seedRing(t, mem)
		store := &blockingStore{GraphStore: mem, entered: make(chan struct{}), release: make(chan struct{})}
		svc := NewClusterService(NewClusterDetector(store, domain.DefaultClusterConfig()), mem, &runRepo{}, nil, nil)

		done := make(chan error, 1)
		go func() {
			_, err := svc.Run(ctx, "tenant-001", DetectOptions{})
			done <- err
		}()

		select {
		case <-store.entered:
		case <-time.After(5 * time.Second):
			t.Fatal("first run never started")
		}
		assert.True(t, svc.Running("tenant-001"))

		_, err := svc.Run(ctx, "tenant-001", DetectOptions{})
		assert.ErrorIs(t, err, domain.ErrClusterRunInProgress)

		close(store.release)
		require.NoError(t, <-done)
		assert.False(t, svc.Running("tenant-001"))
	})

	t.Run("UnknownAlgorithmReleasesLock", func(t *testing.T) {
		store := graphstore.NewMemoryStore()
		svc := NewClusterService(NewClusterDetector(store, domain.DefaultClusterConfig()), store, &runRepo{}, nil, nil)

		_, err := svc.Run(ctx, "tenant-001", DetectOptions{Algorithm: "girvan_newman"})
		assert.ErrorIs(t, err, domain.ErrUnknownAlgorithm)
		assert.False(t, svc.Running("tenant-001"))

		_, err = svc.Run(ctx, "", DetectOptions{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}
