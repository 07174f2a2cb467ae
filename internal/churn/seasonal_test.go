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
)

func testProfile(adjustment float64) *domain.RetentionProfile {
	profile := &domain.RetentionProfile{
		ID:        "prof-1",
		SegmentID: "agriculture",
		HealthScoreWeights: domain.HealthWeights{
			Engagement: 30, Adoption: 25, Satisfaction: 20, Support: 15, Growth: 10,
		},
		ExpectedUsagePattern: map[int]domain.UsagePattern{},
		MaxInactivityDays:    45,
		PlaybookOverrides: map[domain.TriggerType]string{
			domain.TriggerChurnRisk:  "pb-churn",
			domain.TriggerHealthDrop: "pb-health",
		},
		Status: domain.ProfileActive,
	}
	for i := range profile.SeasonalityCalendar {
		profile.SeasonalityCalendar[i] = domain.SeasonalityMonth{
			Label:      time.Month(i + 1).String(),
			RiskLevel:  domain.RiskLow,
			Adjustment: adjustment,
		}
	}
	return profile
}

func expectLatestPrediction(mock sqlmock.Sqlmock, probability float64) {
	rows := sqlmock.NewRows([]string{"id", "account_id", "probability",
		"risk_level", "predicted_churn_date", "risk_factors",
		"recommended_actions", "model_version", "confidence", "created_at"}).
		AddRow("pred-1", "acct-1", probability, "medium", nil, []byte("[]"),
			[]byte("[]"), "heuristic_v2", 0.7, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM churn_predictions")).WillReturnRows(rows)
}

func expectNoPrediction(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(regexp.QuoteMeta("FROM churn_predictions")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
}

func TestSeasonalPredict_AdjustsBase(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adjuster := NewSeasonalAdjuster(NewStore(db), 0.30)

	expectLatestPrediction(mock, 0.40)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO seasonal_churn_predictions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	prediction, err := adjuster.Predict(context.Background(), "acct-1", testProfile(0.20))
	require.NoError(t, err)

	assert.Equal(t, 0.40, prediction.BaseProbability)
	assert.InDelta(t, 0.60, prediction.AdjustedProbability, 0.0001)
	assert.Equal(t, domain.UrgencyHigh, prediction.Urgency)
	require.NotNil(t, prediction.RecommendedPlaybookID)
	assert.Equal(t, "pb-churn", *prediction.RecommendedPlaybookID)
	assert.Equal(t, time.Now().UTC().Format("2006-01"), prediction.PredictionMonth)
	assert.Equal(t, "agriculture", prediction.SegmentID)
}

func TestSeasonalPredict_DefaultBaseWhenNoHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adjuster := NewSeasonalAdjuster(NewStore(db), 0.30)

	expectNoPrediction(mock)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO seasonal_churn_predictions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	prediction, err := adjuster.Predict(context.Background(), "acct-1", testProfile(0))
	require.NoError(t, err)

	assert.Equal(t, 0.30, prediction.BaseProbability)
	assert.Equal(t, domain.UrgencyMedium, prediction.Urgency)
	require.NotNil(t, prediction.RecommendedPlaybookID)
	assert.Equal(t, "pb-health", *prediction.RecommendedPlaybookID)
}

func TestSeasonalPredict_ClampsExtremeAdjustments(t *testing.T) {
	for _, adjustment := range []float64{-5, -1, 1, 5} {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)

		adjuster := NewSeasonalAdjuster(NewStore(db), 0.30)
		expectLatestPrediction(mock, 0.50)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO seasonal_churn_predictions")).
			WillReturnResult(sqlmock.NewResult(1, 1))

		prediction, err := adjuster.Predict(context.Background(), "acct-1", testProfile(adjustment))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, prediction.AdjustedProbability, 0.0)
		assert.LessOrEqual(t, prediction.AdjustedProbability, 1.0)

		db.Close()
	}
}

func TestClassifyUrgency_Ladder(t *testing.T) {
	assert.Equal(t, domain.UrgencyNone, ClassifyUrgency(0.14))
	assert.Equal(t, domain.UrgencyLow, ClassifyUrgency(0.15))
	assert.Equal(t, domain.UrgencyMedium, ClassifyUrgency(0.30))
	assert.Equal(t, domain.UrgencyHigh, ClassifyUrgency(0.50))
	assert.Equal(t, domain.UrgencyCritical, ClassifyUrgency(0.75))
	assert.Equal(t, domain.UrgencyCritical, ClassifyUrgency(1.0))
}

func TestPlaybookForUrgency_NoOverride(t *testing.T) {
	profile := testProfile(0)
	profile.PlaybookOverrides = map[domain.TriggerType]string{}

	assert.Nil(t, playbookForUrgency(profile, domain.UrgencyCritical))
	assert.Nil(t, playbookForUrgency(profile, domain.UrgencyNone))
	assert.Nil(t, playbookForUrgency(profile, domain.UrgencyLow))
}
