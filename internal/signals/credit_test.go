package signals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	domain_mocks "github.com/opensource-finance/kestrel/internal/domain/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var testNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func intPtr(v int) *int { return &v }

func TestScoreCredit(t *testing.T) {
	t.Run("ThinFileOlderApplicant", func(t *testing.T) {
		res := ScoreCredit(CreditInputs{TradelineCount: 1, ClaimedAgeYears: 40})
		assert.True(t, res.IsThinFile)
		assert.Contains(t, res.Anomalies, domain.SignalThinFileOldIdentity)
		assert.InDelta(t, 0.5, res.BehaviorScore, 1e-9)
	})

	t.Run("FileAgeMismatch", func(t *testing.T) {
		// 40 years old: expected 264 months, 30% is 79.2
		res := ScoreCredit(CreditInputs{FileAgeMonths: intPtr(12), TradelineCount: 5, ClaimedAgeYears: 40})
		assert.Contains(t, res.Anomalies, domain.SignalFileAgeMismatch)
		assert.InDelta(t, 264, res.ExpectedFileMonths, 1e-9)
		assert.InDelta(t, 0.4, res.BehaviorScore, 1e-9)
	})

	t.Run("ReportsFileAgeConsistency", func(t *testing.T) {
		res := ScoreCredit(CreditInputs{FileAgeMonths: intPtr(12), TradelineCount: 5, ClaimedAgeYears: 40})
		require.NotNil(t, res.FileAgeConsistent)
		assert.False(t, *res.FileAgeConsistent)
		assert.InDelta(t, 252, res.FileAgeGapMonths, 1e-9)

		res = ScoreCredit(CreditInputs{FileAgeMonths: intPtr(250), TradelineCount: 5, ClaimedAgeYears: 40})
		require.NotNil(t, res.FileAgeConsistent)
		assert.True(t, *res.FileAgeConsistent)
	})

	t.Run("UnknownFileAgeIsNotMismatch", func(t *testing.T) {
		res := ScoreCredit(CreditInputs{TradelineCount: 5, ClaimedAgeYears: 40})
		assert.NotContains(t, res.Anomalies, domain.SignalFileAgeMismatch)
		assert.Nil(t, res.FileAgeConsistent)
	})

	t.Run("AUAbusePattern", func(t *testing.T) {
		res := ScoreCredit(CreditInputs{FileAgeMonths: intPtr(300), TradelineCount: 5, AUCount: 4, ClaimedAgeYears: 40})
		assert.Contains(t, res.Anomalies, domain.SignalAUAbusePattern)
		assert.InDelta(t, 0.8, res.AUTradelineRatio, 1e-9)
		assert.InDelta(t, 0.32, res.BehaviorScore, 1e-9)
	})

	t.Run("RapidCreditBuilding", func(t *testing.T) {
		res := ScoreCredit(CreditInputs{TradelineCount: 5, CreditVelocity: 0.9, ClaimedAgeYears: 25})
		assert.Contains(t, res.Anomalies, domain.SignalRapidCreditBuilding)
	})

	t.Run("ZeroTradelinesNoDivide", func(t *testing.T) {
		res := ScoreCredit(CreditInputs{AUCount: 2})
		assert.Zero(t, res.AUTradelineRatio)
	})

	t.Run("Bounded", func(t *testing.T) {
		res := ScoreCredit(CreditInputs{FileAgeMonths: intPtr(0), TradelineCount: 2, AUCount: 2, CreditVelocity: 1, ClaimedAgeYears: 60})
		assert.LessOrEqual(t, res.BehaviorScore, 1.0)
	})
}

func TestCreditVelocity(t *testing.T) {
	tradelines := []domain.Tradeline{
		{OpenedDate: testNow.AddDate(0, -2, 0)},
		{OpenedDate: testNow.AddDate(0, -3, 0)},
		{OpenedDate: testNow.AddDate(0, -9, 0)},
		{OpenedDate: testNow.AddDate(-5, 0, 0)},
	}
	// 3 of 4 in the last year, 2 in the last six months
	assert.InDelta(t, 0.5*0.75+0.5*0.4, CreditVelocity(tradelines, testNow), 1e-9)
	assert.Zero(t, CreditVelocity(nil, testNow))
}

func TestCheckFileAgeConsistency(t *testing.T) {
	ok := CheckFileAgeConsistency(250, 40)
	assert.True(t, ok.Consistent)

	bad := CheckFileAgeConsistency(100, 40)
	assert.False(t, bad.Consistent)
	assert.Equal(t, "File 164 months younger than expected", bad.Message)
}

func TestCreditAnalyzer(t *testing.T) {
	ctx := context.Background()
	identity := &domain.Identity{
		ID:         "id-1",
		SSNHash:    "ssn-1",
		ClaimedDOB: testNow.AddDate(-45, 0, 0),
	}

	t.Run("ThinFileFromBureau", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		bureau := domain_mocks.NewMockBureauConnector(ctrl)

		tradelines := []domain.Tradeline{{AccountID: "t1", OpenedDate: testNow.AddDate(-1, -1, 0)}}
		bureau.EXPECT().GetCreditFile(gomock.Any(), "ssn-1").Return(&domain.CreditFile{SSNHash: "ssn-1", Tradelines: tradelines}, nil)
		bureau.EXPECT().GetCreditFileAge(gomock.Any(), "ssn-1").Return(13, true, nil)
		bureau.EXPECT().GetAuthorizedUserCount(gomock.Any(), "ssn-1").Return(0, nil)

		res, err := NewCreditAnalyzer(bureau).WithClock(fixedClock).Analyze(ctx, identity)
		require.NoError(t, err)
		assert.True(t, res.IsThinFile)
		assert.Equal(t, 13, *res.FileAgeMonths)
		assert.Contains(t, res.Anomalies, domain.SignalFileAgeMismatch)
		assert.Contains(t, res.Anomalies, domain.SignalThinFileOldIdentity)
		assert.InDelta(t, 0.9, res.BehaviorScore, 1e-9)
	})

	t.Run("NoFileIsNeutral", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		bureau := domain_mocks.NewMockBureauConnector(ctrl)
		bureau.EXPECT().GetCreditFile(gomock.Any(), "ssn-1").Return(nil, nil)

		res, err := NewCreditAnalyzer(bureau).WithClock(fixedClock).Analyze(ctx, identity)
		require.NoError(t, err)
		assert.False(t, res.IsThinFile)
		assert.Zero(t, res.BehaviorScore)
	})

	t.Run("BureauErrorDegrades", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		bureau := domain_mocks.NewMockBureauConnector(ctrl)
		bureau.EXPECT().GetCreditFile(gomock.Any(), "ssn-1").Return(nil, errors.New("connection refused"))

		res, err := NewCreditAnalyzer(bureau).WithClock(fixedClock).Analyze(ctx, identity)
		require.Error(t, err)
		require.NotNil(t, res)
		assert.Zero(t, res.BehaviorScore)
		assert.Empty(t, res.Anomalies)
	})
}
