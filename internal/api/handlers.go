// Package api exposes the engine's operational HTTP surface: account
// health, churn, and retention reads, satisfaction and lifecycle writes,
// and manual kicks for the two scheduled jobs.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/retention-engine/internal/churn"
	"github.com/ignite/retention-engine/internal/domain"
	"github.com/ignite/retention-engine/internal/health"
	"github.com/ignite/retention-engine/internal/scoring"
	"github.com/ignite/retention-engine/internal/worker"
)

// RetentionEvaluator evaluates one account's retention risk on demand.
type RetentionEvaluator interface {
	Evaluate(ctx context.Context, accountID string) (*domain.RetentionResult, error)
}

// Handlers holds the engine components the HTTP surface fronts.
type Handlers struct {
	healthStore    *health.Store
	churnStore     *churn.Store
	evaluator      RetentionEvaluator
	satisfaction   *scoring.SatisfactionScorer
	lifecycle      *scoring.LifecycleTracker
	scoringWorker  *worker.ScoringWorker
	playbookWorker *worker.PlaybookWorker
	startTime      time.Time
}

// NewHandlers creates the handler set. Worker references may be nil; the
// corresponding kick endpoints then report 503.
func NewHandlers(healthStore *health.Store, churnStore *churn.Store, evaluator RetentionEvaluator,
	satisfaction *scoring.SatisfactionScorer, lifecycle *scoring.LifecycleTracker,
	scoringWorker *worker.ScoringWorker, playbookWorker *worker.PlaybookWorker) *Handlers {
	return &Handlers{
		healthStore:    healthStore,
		churnStore:     churnStore,
		evaluator:      evaluator,
		satisfaction:   satisfaction,
		lifecycle:      lifecycle,
		scoringWorker:  scoringWorker,
		playbookWorker: playbookWorker,
		startTime:      time.Now(),
	}
}

// HealthCheck reports process liveness and worker status.
//
//	GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	}
	if h.scoringWorker != nil {
		status["scoring_worker"] = map[string]interface{}{
			"healthy":     h.scoringWorker.IsHealthy(),
			"last_run_at": h.scoringWorker.LastRunAt(),
		}
	}
	if h.playbookWorker != nil {
		status["playbook_worker"] = map[string]interface{}{
			"healthy":     h.playbookWorker.IsHealthy(),
			"last_run_at": h.playbookWorker.LastRunAt(),
		}
	}
	respondJSON(w, http.StatusOK, status)
}

// Recompute runs a full scoring pass synchronously.
//
//	POST /api/retention/recompute
func (h *Handlers) Recompute(w http.ResponseWriter, r *http.Request) {
	if h.scoringWorker == nil {
		respondError(w, http.StatusServiceUnavailable, "scoring worker not running")
		return
	}
	scored, failed := h.scoringWorker.RunOnce(r.Context())
	respondJSON(w, http.StatusOK, map[string]int{"scored": scored, "failed": failed})
}

// AdvancePlaybooks runs one playbook tick synchronously.
//
//	POST /api/playbooks/advance
func (h *Handlers) AdvancePlaybooks(w http.ResponseWriter, r *http.Request) {
	if h.playbookWorker == nil {
		respondError(w, http.StatusServiceUnavailable, "playbook worker not running")
		return
	}
	started, advanced := h.playbookWorker.RunOnce(r.Context())
	respondJSON(w, http.StatusOK, map[string]int{"started": started, "advanced": advanced})
}

// AccountHealth returns an account's recent health snapshots, newest first.
//
//	GET /api/accounts/{id}/health?limit=30
func (h *Handlers) AccountHealth(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	limit := queryInt(r, "limit", 30)

	snapshots, err := h.healthStore.History(r.Context(), accountID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"snapshots":  snapshots,
	})
}

// AccountChurn returns the latest prediction plus the probability trend.
//
//	GET /api/accounts/{id}/churn?days=90
func (h *Handlers) AccountChurn(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	days := queryInt(r, "days", 90)

	latest, err := h.churnStore.Latest(r.Context(), accountID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	trend, err := h.churnStore.Trend(r.Context(), accountID, days)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	seasonal, err := h.churnStore.LatestSeasonal(r.Context(), accountID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"latest":     latest,
		"seasonal":   seasonal,
		"trend":      trend,
	})
}

// AccountRetention evaluates the account's retention risk right now.
//
//	GET /api/accounts/{id}/retention
func (h *Handlers) AccountRetention(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	result, err := h.evaluator.Evaluate(r.Context(), accountID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// HighRisk lists accounts whose latest prediction is high or critical.
//
//	GET /api/churn/high-risk?limit=50
func (h *Handlers) HighRisk(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	predictions, err := h.churnStore.HighRisk(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(predictions),
		"accounts": predictions,
	})
}

type satisfactionRequest struct {
	Score int `json:"score"`
}

// RecordSatisfaction stores one survey response for the account.
//
//	POST /api/accounts/{id}/satisfaction
func (h *Handlers) RecordSatisfaction(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	var req satisfactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.satisfaction.Record(r.Context(), accountID, req.Score); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

type lifecycleRequest struct {
	Stage string `json:"stage"`
}

// SetLifecycle moves the account to a new lifecycle stage.
//
//	POST /api/accounts/{id}/lifecycle
func (h *Handlers) SetLifecycle(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	var req lifecycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.lifecycle.SetStage(r.Context(), accountID, domain.LifecycleStage(req.Stage)); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated", "stage": req.Stage})
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
