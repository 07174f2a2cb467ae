package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/retention-engine/internal/churn"
	"github.com/ignite/retention-engine/internal/domain"
	"github.com/ignite/retention-engine/internal/health"
	"github.com/ignite/retention-engine/internal/scoring"
)

type stubEvaluator struct {
	result *domain.RetentionResult
	err    error
}

func (s stubEvaluator) Evaluate(_ context.Context, accountID string) (*domain.RetentionResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	r := *s.result
	r.AccountID = accountID
	return &r, nil
}

func testServer(t *testing.T, evaluator RetentionEvaluator) (*httptest.Server, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	h := NewHandlers(
		health.NewStore(db),
		churn.NewStore(db),
		evaluator,
		scoring.NewSatisfactionScorer(rdb),
		scoring.NewLifecycleTracker(rdb),
		nil, nil,
	)
	srv := httptest.NewServer(SetupRoutes(h))
	t.Cleanup(srv.Close)
	return srv, mock
}

func TestHealthCheck(t *testing.T) {
	srv, _ := testServer(t, stubEvaluator{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestAccountRetention(t *testing.T) {
	result := &domain.RetentionResult{
		SegmentID: "agriculture",
		RiskScore: 0.42,
		RiskLevel: domain.RiskMedium,
	}
	srv, _ := testServer(t, stubEvaluator{result: result})

	resp, err := http.Get(srv.URL + "/api/accounts/acct-1/retention")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body domain.RetentionResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "acct-1", body.AccountID)
	assert.Equal(t, domain.RiskMedium, body.RiskLevel)
}

func TestRecordSatisfaction(t *testing.T) {
	srv, _ := testServer(t, stubEvaluator{})

	resp, err := http.Post(srv.URL+"/api/accounts/acct-1/satisfaction",
		"application/json", strings.NewReader(`{"score": 75}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestRecordSatisfaction_OutOfRange(t *testing.T) {
	srv, _ := testServer(t, stubEvaluator{})

	resp, err := http.Post(srv.URL+"/api/accounts/acct-1/satisfaction",
		"application/json", strings.NewReader(`{"score": 250}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSetLifecycle(t *testing.T) {
	srv, _ := testServer(t, stubEvaluator{})

	resp, err := http.Post(srv.URL+"/api/accounts/acct-1/lifecycle",
		"application/json", strings.NewReader(`{"stage": "active"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSetLifecycle_UnknownStage(t *testing.T) {
	srv, _ := testServer(t, stubEvaluator{})

	resp, err := http.Post(srv.URL+"/api/accounts/acct-1/lifecycle",
		"application/json", strings.NewReader(`{"stage": "ascended"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecomputeWithoutWorker(t *testing.T) {
	srv, _ := testServer(t, stubEvaluator{})

	resp, err := http.Post(srv.URL+"/api/retention/recompute", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHighRisk(t *testing.T) {
	srv, mock := testServer(t, stubEvaluator{})

	factors, _ := json.Marshal([]domain.RiskFactor{})
	actions, _ := json.Marshal([]domain.RecommendedAction{})
	mock.ExpectQuery("SELECT (.+) FROM churn_predictions").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "account_id", "probability", "risk_level", "predicted_churn_date",
			"risk_factors", "recommended_actions", "model_version", "confidence", "created_at",
		}).AddRow("pred-1", "acct-9", 0.81, "critical", nil, factors, actions, "heuristic_v2", 0.7, time.Now()))

	resp, err := http.Get(srv.URL + "/api/churn/high-risk")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Count    int                      `json:"count"`
		Accounts []domain.ChurnPrediction `json:"accounts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "acct-9", body.Accounts[0].AccountID)
}
