package bureau

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	domain_mocks "github.com/opensource-finance/kestrel/internal/domain/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var now = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func fixtureFiles() []domain.CreditFile {
	return []domain.CreditFile{
		{
			SSNHash:       "ssn-thick",
			FileAgeMonths: 96,
			Tradelines: []domain.Tradeline{
				{AccountID: "a1", CreditLimit: 5000},
				{AccountID: "a2", IsAuthorizedUser: true, PrimaryHolder: "ssn-parent"},
			},
		},
		{
			SSNHash:    "ssn-thin",
			OpenedDate: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
			Tradelines: []domain.Tradeline{
				{AccountID: "b1", IsAuthorizedUser: true},
				{AccountID: "b2", IsAuthorizedUser: true},
				{AccountID: "b3", IsAuthorizedUser: true},
			},
		},
		{SSNHash: "ssn-undated"},
	}
}

func TestStaticConnector(t *testing.T) {
	ctx := context.Background()
	s := NewStatic(fixtureFiles()).WithClock(func() time.Time { return now })

	t.Run("KnownFile", func(t *testing.T) {
		f, err := s.GetCreditFile(ctx, "ssn-thick")
		require.NoError(t, err)
		require.NotNil(t, f)
		assert.Len(t, f.Tradelines, 2)

		months, ok, err := s.GetCreditFileAge(ctx, "ssn-thick")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 96, months)

		au, err := s.GetAuthorizedUserCount(ctx, "ssn-thick")
		require.NoError(t, err)
		assert.Equal(t, 1, au)
	})

	t.Run("AgeFromOpenedDate", func(t *testing.T) {
		months, ok, err := s.GetCreditFileAge(ctx, "ssn-thin")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 4, months)
	})

	t.Run("UnknownAge", func(t *testing.T) {
		_, ok, err := s.GetCreditFileAge(ctx, "ssn-undated")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("MissingFile", func(t *testing.T) {
		f, err := s.GetCreditFile(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, f)

		tl, err := s.GetTradelines(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, tl)
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		tl, err := s.GetTradelines(ctx, "ssn-thin")
		require.NoError(t, err)
		tl[0].AccountID = "mutated"

		again, err := s.GetTradelines(ctx, "ssn-thin")
		require.NoError(t, err)
		assert.Equal(t, "b1", again[0].AccountID)
	})
}

func TestLoadStatic(t *testing.T) {
	dir := t.TempDir()

	t.Run("Valid", func(t *testing.T) {
		path := filepath.Join(dir, "bureau.json")
		require.NoError(t, os.WriteFile(path, []byte(`[
			{"ssnHash": "ssn-1", "fileAgeMonths": 12, "tradelines": [{"accountId": "x", "isAuthorizedUser": true}]}
		]`), 0o600))

		s, err := LoadStatic(path)
		require.NoError(t, err)
		au, err := s.GetAuthorizedUserCount(context.Background(), "ssn-1")
		require.NoError(t, err)
		assert.Equal(t, 1, au)
	})

	t.Run("MissingHash", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"fileAgeMonths": 3}]`), 0o600))

		_, err := LoadStatic(path)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("NoPath", func(t *testing.T) {
		_, err := LoadStatic("")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("Malformed", func(t *testing.T) {
		path := filepath.Join(dir, "broken.json")
		require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))

		_, err := LoadStatic(path)
		assert.Error(t, err)
	})
}

func TestCachedConnector(t *testing.T) {
	ctx := context.Background()

	t.Run("SingleUpstreamCallPerFile", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		upstream := domain_mocks.NewMockBureauConnector(ctrl)
		upstream.EXPECT().GetCreditFile(gomock.Any(), "ssn-thick").
			Return(&fixtureFiles()[0], nil).Times(1)

		c := NewCached(upstream, cache.NewLRUCache(100), time.Minute)

		f, err := c.GetCreditFile(ctx, "ssn-thick")
		require.NoError(t, err)
		require.NotNil(t, f)

		tl, err := c.GetTradelines(ctx, "ssn-thick")
		require.NoError(t, err)
		assert.Len(t, tl, 2)

		au, err := c.GetAuthorizedUserCount(ctx, "ssn-thick")
		require.NoError(t, err)
		assert.Equal(t, 1, au)

		months, ok, err := c.GetCreditFileAge(ctx, "ssn-thick")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 96, months)
	})

	t.Run("CachesMisses", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		upstream := domain_mocks.NewMockBureauConnector(ctrl)
		upstream.EXPECT().GetCreditFile(gomock.Any(), "nobody").Return(nil, nil).Times(1)

		c := NewCached(upstream, cache.NewLRUCache(100), time.Minute)
		for i := 0; i < 3; i++ {
			f, err := c.GetCreditFile(ctx, "nobody")
			require.NoError(t, err)
			assert.Nil(t, f)
		}
	})

	t.Run("ErrorsAreNotCached", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		upstream := domain_mocks.NewMockBureauConnector(ctrl)
		gomock.InOrder(
			upstream.EXPECT().GetCreditFile(gomock.Any(), "ssn-1").Return(nil, errors.New("timeout")),
			upstream.EXPECT().GetCreditFile(gomock.Any(), "ssn-1").Return(&domain.CreditFile{SSNHash: "ssn-1"}, nil),
		)

		c := NewCached(upstream, cache.NewLRUCache(100), time.Minute)
		_, err := c.GetCreditFile(ctx, "ssn-1")
		assert.Error(t, err)

		f, err := c.GetCreditFile(ctx, "ssn-1")
		require.NoError(t, err)
		assert.Equal(t, "ssn-1", f.SSNHash)
	})
}

func TestNew(t *testing.T) {
	t.Run("None", func(t *testing.T) {
		conn, err := New(domain.BureauConfig{Type: "none"}, nil)
		require.NoError(t, err)
		f, err := conn.GetCreditFile(context.Background(), "x")
		require.NoError(t, err)
		assert.Nil(t, f)
	})

	t.Run("StaticWithCache", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bureau.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"ssnHash": "ssn-1"}]`), 0o600))

		conn, err := New(domain.BureauConfig{Type: "static", FixturesPath: path, CacheTTL: time.Minute}, cache.NewLRUCache(10))
		require.NoError(t, err)
		assert.IsType(t, &CachedConnector{}, conn)
	})

	t.Run("Unsupported", func(t *testing.T) {
		_, err := New(domain.BureauConfig{Type: "equifax"}, nil)
		assert.Error(t, err)
	})
}
