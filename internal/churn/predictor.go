// Package churn derives churn probabilities and seasonal adjustments from
// health history. Prediction here is deterministic, explainable rule
// weighting, not a statistical model.
package churn

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/ignite/retention-engine/internal/domain"
	"github.com/ignite/retention-engine/internal/health"
)

// EngagementSource supplies the current engagement score.
// Implemented by scoring.EngagementScorer.
type EngagementSource interface {
	Score(ctx context.Context, accountID string) int
}

// Predictor computes generic churn predictions from health history.
type Predictor struct {
	store        *Store
	snapshots    *health.Store
	engagement   EngagementSource
	modelVersion string
}

// NewPredictor creates a churn predictor.
func NewPredictor(store *Store, snapshots *health.Store, engagement EngagementSource, modelVersion string) *Predictor {
	if modelVersion == "" {
		modelVersion = "heuristic_v2"
	}
	return &Predictor{
		store:        store,
		snapshots:    snapshots,
		engagement:   engagement,
		modelVersion: modelVersion,
	}
}

// Store exposes the churn store for read-side consumers.
func (p *Predictor) Store() *Store {
	return p.store
}

// snapshotWindow is how many recent snapshots feed a prediction.
const snapshotWindow = 7

// Predict computes and persists one churn prediction for the account.
func (p *Predictor) Predict(ctx context.Context, accountID string) (*domain.ChurnPrediction, error) {
	history, err := p.snapshots.History(ctx, accountID, snapshotWindow)
	if err != nil {
		return nil, fmt.Errorf("load health history: %w", err)
	}

	average, lowest := summarize(history)
	declining := hasDecliningTrend(history)
	engagement := p.engagement.Score(ctx, accountID)

	probability := Probability(average, engagement, declining, len(history))

	now := time.Now().UTC()
	prediction := &domain.ChurnPrediction{
		AccountID:          accountID,
		Probability:        probability,
		RiskLevel:          ClassifyRisk(probability),
		PredictedChurnDate: predictedChurnDate(now, probability),
		RiskFactors:        riskFactors(average, lowest, engagement, declining, len(history)),
		RecommendedActions: recommendedActions(average, engagement, declining),
		ModelVersion:       p.modelVersion,
		Confidence:         confidence(len(history)),
		CreatedAt:          now,
	}

	if err := p.store.InsertPrediction(ctx, prediction); err != nil {
		return nil, err
	}

	log.Printf("[churn] prediction for account %s: probability=%.2f level=%s confidence=%.2f",
		accountID, prediction.Probability, prediction.RiskLevel, prediction.Confidence)
	return prediction, nil
}

// summarize returns the average and lowest overall score in the window.
// An empty window reads as a neutral 50.
func summarize(history []domain.HealthSnapshot) (average float64, lowest int) {
	if len(history) == 0 {
		return 50, 50
	}
	sum := 0
	lowest = history[0].OverallScore
	for _, snap := range history {
		sum += snap.OverallScore
		if snap.OverallScore < lowest {
			lowest = snap.OverallScore
		}
	}
	return float64(sum) / float64(len(history)), lowest
}

// hasDecliningTrend is true when at least 2 of the last 3 snapshots are
// declining. History is most-recent-first.
func hasDecliningTrend(history []domain.HealthSnapshot) bool {
	declining := 0
	for i, snap := range history {
		if i >= 3 {
			break
		}
		if snap.Trend == domain.TrendDeclining {
			declining++
		}
	}
	return declining >= 2
}

// Probability applies the additive rule table and clamps the result.
func Probability(average float64, engagement int, declining bool, snapshotCount int) float64 {
	prob := 0.0

	if average < 40 {
		prob += 0.4
	} else if average < 60 {
		prob += 0.2
	}

	if engagement < 30 {
		prob += 0.25
	} else if engagement < 50 {
		prob += 0.1
	}

	if declining {
		prob += 0.2
	}

	// Low-confidence discount for thin history.
	if snapshotCount < 3 {
		prob *= 0.8
	}

	if prob < 0.01 {
		return 0.01
	}
	if prob > 0.99 {
		return 0.99
	}
	return prob
}

// ClassifyRisk maps a probability onto the risk ladder.
func ClassifyRisk(probability float64) domain.RiskLevel {
	switch {
	case probability >= 0.75:
		return domain.RiskCritical
	case probability >= 0.50:
		return domain.RiskHigh
	case probability >= 0.25:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// predictedChurnDate is set only above 0.5 probability: the higher the
// probability, the sooner the predicted date, floored at 7 days out.
func predictedChurnDate(now time.Time, probability float64) *time.Time {
	if probability <= 0.5 {
		return nil
	}
	days := int(math.Round(30 * (1 - probability)))
	if days < 7 {
		days = 7
	}
	date := now.AddDate(0, 0, days)
	return &date
}

func confidence(snapshotCount int) float64 {
	c := 0.5 + 0.05*float64(snapshotCount)
	if c > 0.95 {
		return 0.95
	}
	return c
}

// riskFactors emits the explainable contributors keyed on the same
// thresholds the probability uses.
func riskFactors(average float64, lowest, engagement int, declining bool, snapshotCount int) []domain.RiskFactor {
	var factors []domain.RiskFactor

	if average < 40 {
		factors = append(factors, domain.RiskFactor{
			ID:          "low_health_average",
			Severity:    "critical",
			Description: fmt.Sprintf("Average health score %.0f over recent window (lowest %d)", average, lowest),
		})
	} else if average < 60 {
		factors = append(factors, domain.RiskFactor{
			ID:          "low_health_average",
			Severity:    "high",
			Description: fmt.Sprintf("Average health score %.0f below neutral (lowest %d)", average, lowest),
		})
	}

	if engagement < 30 {
		factors = append(factors, domain.RiskFactor{
			ID:          "low_engagement",
			Severity:    "high",
			Description: fmt.Sprintf("Engagement score %d indicates minimal product usage", engagement),
		})
	} else if engagement < 50 {
		factors = append(factors, domain.RiskFactor{
			ID:          "low_engagement",
			Severity:    "medium",
			Description: fmt.Sprintf("Engagement score %d below expected usage", engagement),
		})
	}

	if declining {
		factors = append(factors, domain.RiskFactor{
			ID:          "declining_health_trend",
			Severity:    "high",
			Description: "Health declining in at least 2 of the last 3 snapshots",
		})
	}

	if snapshotCount < 3 {
		factors = append(factors, domain.RiskFactor{
			ID:          "insufficient_history",
			Severity:    "low",
			Description: fmt.Sprintf("Only %d health snapshots available; probability discounted", snapshotCount),
		})
	}

	return factors
}

// recommendedActions maps the triggered thresholds to interventions.
func recommendedActions(average float64, engagement int, declining bool) []domain.RecommendedAction {
	var actions []domain.RecommendedAction

	if average < 40 {
		actions = append(actions, domain.RecommendedAction{Action: "schedule_executive_review", Priority: "urgent"})
	} else if average < 60 {
		actions = append(actions, domain.RecommendedAction{Action: "schedule_success_call", Priority: "high"})
	}

	if engagement < 30 {
		actions = append(actions, domain.RecommendedAction{Action: "launch_reengagement_campaign", Priority: "high"})
	} else if engagement < 50 {
		actions = append(actions, domain.RecommendedAction{Action: "send_feature_adoption_nudge", Priority: "medium"})
	}

	if declining {
		actions = append(actions, domain.RecommendedAction{Action: "open_retention_ticket", Priority: "high"})
	}

	if len(actions) == 0 {
		actions = append(actions, domain.RecommendedAction{Action: "monitor_weekly", Priority: "low"})
	}

	return actions
}
