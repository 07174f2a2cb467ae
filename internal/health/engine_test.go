package health

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

// stub scorers with fixed component values.
type stubEngagement struct{ engagement, adoption int }

func (s stubEngagement) Score(_ context.Context, _ string) int         { return s.engagement }
func (s stubEngagement) AdoptionScore(_ context.Context, _ string) int { return s.adoption }

type stubSatisfaction struct{ score int }

func (s stubSatisfaction) Score(_ context.Context, _ string) int { return s.score }

type stubGrowth struct{ score int }

func (s stubGrowth) GrowthScore(_ context.Context, _ string) int { return s.score }

type stubSupport struct{ score int }

func (s stubSupport) Score(_ string) int { return s.score }

func newTestEngine(t *testing.T, engagement, adoption, satisfaction, support, growth int) (*Engine, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	engine := NewEngine(NewStore(db),
		stubEngagement{engagement: engagement, adoption: adoption},
		stubSatisfaction{score: satisfaction},
		stubGrowth{score: growth},
		stubSupport{score: support},
		domain.DefaultHealthWeights(), DefaultThresholds())

	return engine, mock, func() { db.Close() }
}

func expectHistory(mock sqlmock.Sqlmock, scores ...int) {
	rows := sqlmock.NewRows([]string{"id", "account_id", "overall_score",
		"engagement_score", "adoption_score", "satisfaction_score",
		"support_score", "growth_score", "category", "trend", "breakdown",
		"calculated_at"})
	for i, score := range scores {
		rows.AddRow("snap-"+string(rune('a'+i)), "acct-1", score, 0, 0, 0, 0, 0,
			"neutral", "stable", []byte("{}"), time.Now().Add(-time.Duration(i+1)*24*time.Hour))
	}
	mock.ExpectQuery(regexp.QuoteMeta("FROM health_snapshots")).WillReturnRows(rows)
}

func TestCalculate_CompositeScenario(t *testing.T) {
	// engagement 20, adoption 30, satisfaction 40, support 75, growth 20
	// with default weights -> round(6 + 7.5 + 8 + 11.25 + 2) = 35 -> critical
	engine, mock, cleanup := newTestEngine(t, 20, 30, 40, 75, 20)
	defer cleanup()

	expectHistory(mock) // no priors -> stable
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO health_snapshots")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	snap := engine.Calculate(context.Background(), "acct-1")
	require.NotNil(t, snap)
	assert.Equal(t, 35, snap.OverallScore)
	assert.Equal(t, domain.HealthCritical, snap.Category)
	assert.Equal(t, domain.TrendStable, snap.Trend)
	assert.Equal(t, 35, Composite(snap.Breakdown))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCalculate_TrendImproving(t *testing.T) {
	// components chosen so the composite lands at 80
	engine, mock, cleanup := newTestEngine(t, 80, 80, 80, 80, 80)
	defer cleanup()

	expectHistory(mock, 72, 68) // prior average 70, current 80 -> diff 10 > 5
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO health_snapshots")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	snap := engine.Calculate(context.Background(), "acct-1")
	require.NotNil(t, snap)
	assert.Equal(t, 80, snap.OverallScore)
	assert.Equal(t, domain.TrendImproving, snap.Trend)
	assert.Equal(t, domain.HealthHealthy, snap.Category)
}

func TestCalculate_TrendDeclining(t *testing.T) {
	engine, mock, cleanup := newTestEngine(t, 40, 40, 40, 40, 40)
	defer cleanup()

	expectHistory(mock, 55, 55) // prior average 55, current 40 -> diff -15
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO health_snapshots")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	snap := engine.Calculate(context.Background(), "acct-1")
	require.NotNil(t, snap)
	assert.Equal(t, domain.TrendDeclining, snap.Trend)
}

func TestCalculate_SinglePriorIsStable(t *testing.T) {
	engine, mock, cleanup := newTestEngine(t, 90, 90, 90, 90, 90)
	defer cleanup()

	expectHistory(mock, 20) // only one prior -> stable regardless of diff
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO health_snapshots")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	snap := engine.Calculate(context.Background(), "acct-1")
	require.NotNil(t, snap)
	assert.Equal(t, domain.TrendStable, snap.Trend)
}

func TestCalculate_PersistFailureReturnsNil(t *testing.T) {
	engine, mock, cleanup := newTestEngine(t, 50, 50, 50, 50, 50)
	defer cleanup()

	expectHistory(mock)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO health_snapshots")).
		WillReturnError(assert.AnError)

	snap := engine.Calculate(context.Background(), "acct-1")
	assert.Nil(t, snap)
}

func TestCalculate_IdempotentScoring(t *testing.T) {
	engine, mock, cleanup := newTestEngine(t, 60, 60, 60, 60, 60)
	defer cleanup()

	// First call: empty history.
	expectHistory(mock)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO health_snapshots")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	first := engine.Calculate(context.Background(), "acct-1")
	require.NotNil(t, first)

	// Second call: first snapshot is now history; identical inputs produce
	// an identical score and the diff of 0 reads stable.
	expectHistory(mock, first.OverallScore)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO health_snapshots")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	second := engine.Calculate(context.Background(), "acct-1")
	require.NotNil(t, second)

	assert.Equal(t, first.OverallScore, second.OverallScore)
	assert.Equal(t, domain.TrendStable, second.Trend)
}

func TestComposite_NeverOutOfRange(t *testing.T) {
	weights := []domain.HealthWeights{
		{Engagement: 100, Adoption: 0, Satisfaction: 0, Support: 0, Growth: 0},
		{Engagement: 20, Adoption: 20, Satisfaction: 20, Support: 20, Growth: 20},
		{Engagement: 60, Adoption: 30, Satisfaction: 20, Support: 10, Growth: 10}, // oversubscribed
	}
	scores := []int{0, 1, 35, 50, 99, 100}

	for _, w := range weights {
		for _, sc := range scores {
			components := map[string]domain.ComponentScore{
				"engagement":   {Score: sc, Weight: w.Engagement},
				"adoption":     {Score: sc, Weight: w.Adoption},
				"satisfaction": {Score: sc, Weight: w.Satisfaction},
				"support":      {Score: sc, Weight: w.Support},
				"growth":       {Score: sc, Weight: w.Growth},
			}
			got := Composite(components)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, 100)
		}
	}
}

func TestCategorize(t *testing.T) {
	engine, _, cleanup := newTestEngine(t, 0, 0, 0, 0, 0)
	defer cleanup()

	assert.Equal(t, domain.HealthHealthy, engine.Categorize(80))
	assert.Equal(t, domain.HealthNeutral, engine.Categorize(79))
	assert.Equal(t, domain.HealthNeutral, engine.Categorize(60))
	assert.Equal(t, domain.HealthAtRisk, engine.Categorize(59))
	assert.Equal(t, domain.HealthAtRisk, engine.Categorize(40))
	assert.Equal(t, domain.HealthCritical, engine.Categorize(39))
	assert.Equal(t, domain.HealthCritical, engine.Categorize(0))
}
