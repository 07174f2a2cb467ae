package churn

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/retention-engine/internal/domain"
	"github.com/ignite/retention-engine/internal/health"
)

type stubEngagement struct{ score int }

func (s stubEngagement) Score(_ context.Context, _ string) int { return s.score }

func setupPredictor(t *testing.T, engagement int) (*Predictor, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	predictor := NewPredictor(NewStore(db), health.NewStore(db), stubEngagement{score: engagement}, "heuristic_v2")
	return predictor, mock, func() { db.Close() }
}

func expectSnapshotHistory(mock sqlmock.Sqlmock, entries []struct {
	Score int
	Trend domain.Trend
}) {
	rows := sqlmock.NewRows([]string{"id", "account_id", "overall_score",
		"engagement_score", "adoption_score", "satisfaction_score",
		"support_score", "growth_score", "category", "trend", "breakdown",
		"calculated_at"})
	for i, entry := range entries {
		rows.AddRow("snap", "acct-1", entry.Score, 0, 0, 0, 0, 0,
			"neutral", string(entry.Trend), []byte("{}"),
			time.Now().Add(-time.Duration(i)*24*time.Hour))
	}
	mock.ExpectQuery(regexp.QuoteMeta("FROM health_snapshots")).WillReturnRows(rows)
}

func TestPredict_DiscountedHighRiskScenario(t *testing.T) {
	// average=35, engagement=25, declining trend, 2 snapshots:
	// raw = 0.4 + 0.25 + 0.2 = 0.85, discounted *0.8 = 0.68 -> high
	predictor, mock, cleanup := setupPredictor(t, 25)
	defer cleanup()

	expectSnapshotHistory(mock, []struct {
		Score int
		Trend domain.Trend
	}{
		{Score: 30, Trend: domain.TrendDeclining},
		{Score: 40, Trend: domain.TrendDeclining},
	})
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO churn_predictions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	prediction, err := predictor.Predict(context.Background(), "acct-1")
	require.NoError(t, err)

	assert.InDelta(t, 0.68, prediction.Probability, 0.0001)
	assert.Equal(t, domain.RiskHigh, prediction.RiskLevel)
	require.NotNil(t, prediction.PredictedChurnDate)
	// 30*(1-0.68) = 9.6 -> 10 days out
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 10), *prediction.PredictedChurnDate, time.Minute)
	// confidence = 0.5 + 0.05*2
	assert.InDelta(t, 0.60, prediction.Confidence, 0.0001)

	factorIDs := make([]string, 0, len(prediction.RiskFactors))
	for _, f := range prediction.RiskFactors {
		factorIDs = append(factorIDs, f.ID)
	}
	assert.Contains(t, factorIDs, "low_health_average")
	assert.Contains(t, factorIDs, "low_engagement")
	assert.Contains(t, factorIDs, "declining_health_trend")
	assert.Contains(t, factorIDs, "insufficient_history")
}

func TestPredict_HealthyAccount(t *testing.T) {
	predictor, mock, cleanup := setupPredictor(t, 90)
	defer cleanup()

	entries := make([]struct {
		Score int
		Trend domain.Trend
	}, 7)
	for i := range entries {
		entries[i].Score = 90
		entries[i].Trend = domain.TrendStable
	}
	expectSnapshotHistory(mock, entries)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO churn_predictions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	prediction, err := predictor.Predict(context.Background(), "acct-1")
	require.NoError(t, err)

	// Nothing triggers; probability floors at 0.01.
	assert.Equal(t, 0.01, prediction.Probability)
	assert.Equal(t, domain.RiskLow, prediction.RiskLevel)
	assert.Nil(t, prediction.PredictedChurnDate)
	assert.Empty(t, prediction.RiskFactors)
	require.Len(t, prediction.RecommendedActions, 1)
	assert.Equal(t, "monitor_weekly", prediction.RecommendedActions[0].Action)
	// confidence capped contribution: 0.5 + 0.35
	assert.InDelta(t, 0.85, prediction.Confidence, 0.0001)
}

func TestProbability_ChurnDateFloor(t *testing.T) {
	// probability 0.99 -> 30*(0.01) = 0.3 -> rounds to 0 -> floored to 7
	date := predictedChurnDate(time.Now().UTC(), 0.99)
	require.NotNil(t, date)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 7), *date, time.Minute)

	assert.Nil(t, predictedChurnDate(time.Now().UTC(), 0.5))
}

func TestProbability_Clamped(t *testing.T) {
	for _, avg := range []float64{0, 35, 55, 70, 100} {
		for _, eng := range []int{0, 25, 45, 80} {
			for _, declining := range []bool{true, false} {
				for _, count := range []int{0, 2, 7} {
					p := Probability(avg, eng, declining, count)
					assert.GreaterOrEqual(t, p, 0.01)
					assert.LessOrEqual(t, p, 0.99)
				}
			}
		}
	}
}

func TestHasDecliningTrend_OnlyLastThreeCount(t *testing.T) {
	history := []domain.HealthSnapshot{
		{Trend: domain.TrendStable},
		{Trend: domain.TrendDeclining},
		{Trend: domain.TrendStable},
		{Trend: domain.TrendDeclining}, // outside window
		{Trend: domain.TrendDeclining}, // outside window
	}
	assert.False(t, hasDecliningTrend(history))

	history[0].Trend = domain.TrendDeclining
	assert.True(t, hasDecliningTrend(history))
}

func TestClassifyRisk_Monotonic(t *testing.T) {
	prev := ClassifyRisk(0)
	for p := 0.0; p <= 1.0; p += 0.01 {
		level := ClassifyRisk(p)
		assert.GreaterOrEqual(t, level.Rank(), prev.Rank(),
			"classifyRisk must be monotone at p=%.2f", p)
		prev = level
	}

	assert.Equal(t, domain.RiskLow, ClassifyRisk(0.24))
	assert.Equal(t, domain.RiskMedium, ClassifyRisk(0.25))
	assert.Equal(t, domain.RiskHigh, ClassifyRisk(0.50))
	assert.Equal(t, domain.RiskCritical, ClassifyRisk(0.75))
}

func TestHighRisk_OrderedAndBounded(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewStore(db)

	rows := sqlmock.NewRows([]string{"id", "account_id", "probability",
		"risk_level", "predicted_churn_date", "risk_factors",
		"recommended_actions", "model_version", "confidence", "created_at"})
	for _, r := range []struct {
		account string
		prob    float64
	}{
		{"acct-1", 0.55},
		{"acct-2", 0.91},
		{"acct-3", 0.78},
	} {
		rows.AddRow("pred-"+r.account, r.account, r.prob, "high", nil,
			[]byte("[]"), []byte("[]"), "heuristic_v2", 0.7, time.Now())
	}
	mock.ExpectQuery(regexp.QuoteMeta("FROM churn_predictions")).WillReturnRows(rows)

	predictions, err := store.HighRisk(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, predictions, 2)
	assert.Equal(t, "acct-2", predictions[0].AccountID)
	assert.Equal(t, "acct-3", predictions[1].AccountID)
}
