// Package health computes composite customer-health scores and persists
// them as immutable snapshots.
package health

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/ignite/retention-engine/internal/domain"
)

// EngagementSource supplies the engagement and adoption components.
// Implemented by scoring.EngagementScorer.
type EngagementSource interface {
	Score(ctx context.Context, accountID string) int
	AdoptionScore(ctx context.Context, accountID string) int
}

// SatisfactionSource supplies the satisfaction component.
// Implemented by scoring.SatisfactionScorer.
type SatisfactionSource interface {
	Score(ctx context.Context, accountID string) int
}

// GrowthSource supplies the growth component.
// Implemented by scoring.LifecycleTracker.
type GrowthSource interface {
	GrowthScore(ctx context.Context, accountID string) int
}

// SupportSource supplies the support component.
// Implemented by scoring.SupportScorer.
type SupportSource interface {
	Score(accountID string) int
}

// Thresholds are the deployment-wide category cutoffs. Segment-specific
// re-weighting happens in the retention evaluator, not here.
type Thresholds struct {
	Healthy int // score >= Healthy -> healthy
	Neutral int // score >= Neutral -> neutral
	AtRisk  int // score >= AtRisk  -> at_risk, else critical
}

// DefaultThresholds returns the standard 80/60/40 category cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{Healthy: 80, Neutral: 60, AtRisk: 40}
}

// Engine combines the component scorers into one composite health score.
type Engine struct {
	store        *Store
	engagement   EngagementSource
	satisfaction SatisfactionSource
	growth       GrowthSource
	support      SupportSource
	weights      domain.HealthWeights
	thresholds   Thresholds
}

// NewEngine creates a health score engine.
func NewEngine(store *Store, engagement EngagementSource, satisfaction SatisfactionSource,
	growth GrowthSource, support SupportSource, weights domain.HealthWeights, thresholds Thresholds) *Engine {
	if weights == (domain.HealthWeights{}) {
		weights = domain.DefaultHealthWeights()
	}
	if thresholds == (Thresholds{}) {
		thresholds = DefaultThresholds()
	}
	return &Engine{
		store:        store,
		engagement:   engagement,
		satisfaction: satisfaction,
		growth:       growth,
		support:      support,
		weights:      weights,
		thresholds:   thresholds,
	}
}

// Store exposes the snapshot store for read-side consumers.
func (e *Engine) Store() *Store {
	return e.store
}

// Calculate computes and persists one health snapshot for the account.
// A persistence failure is logged and surfaced as a nil snapshot; callers
// treat that as retryable, not fatal.
func (e *Engine) Calculate(ctx context.Context, accountID string) *domain.HealthSnapshot {
	components := map[string]domain.ComponentScore{
		"engagement":   {Score: e.engagement.Score(ctx, accountID), Weight: e.weights.Engagement},
		"adoption":     {Score: e.engagement.AdoptionScore(ctx, accountID), Weight: e.weights.Adoption},
		"satisfaction": {Score: e.satisfaction.Score(ctx, accountID), Weight: e.weights.Satisfaction},
		"support":      {Score: e.support.Score(accountID), Weight: e.weights.Support},
		"growth":       {Score: e.growth.GrowthScore(ctx, accountID), Weight: e.weights.Growth},
	}

	overall := Composite(components)
	trend := e.trendFor(ctx, accountID, overall)

	snap := &domain.HealthSnapshot{
		AccountID:         accountID,
		OverallScore:      overall,
		EngagementScore:   components["engagement"].Score,
		AdoptionScore:     components["adoption"].Score,
		SatisfactionScore: components["satisfaction"].Score,
		SupportScore:      components["support"].Score,
		GrowthScore:       components["growth"].Score,
		Category:          e.Categorize(overall),
		Trend:             trend,
		Breakdown:         components,
		CalculatedAt:      time.Now().UTC(),
	}

	if err := e.store.Insert(ctx, snap); err != nil {
		log.Printf("[health] snapshot insert failed for account %s: %v", accountID, err)
		return nil
	}
	return snap
}

// Composite collapses weighted components into one rounded 0-100 score.
func Composite(components map[string]domain.ComponentScore) int {
	total := 0.0
	for _, c := range components {
		total += float64(c.Score) * float64(c.Weight)
	}
	score := int(math.Round(total / 100))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Categorize maps a composite score onto the deployment category ladder.
func (e *Engine) Categorize(score int) domain.HealthCategory {
	switch {
	case score >= e.thresholds.Healthy:
		return domain.HealthHealthy
	case score >= e.thresholds.Neutral:
		return domain.HealthNeutral
	case score >= e.thresholds.AtRisk:
		return domain.HealthAtRisk
	default:
		return domain.HealthCritical
	}
}

// trendFor compares the current score against the average of the two most
// recent prior snapshots. Fewer than two priors reads as stable.
func (e *Engine) trendFor(ctx context.Context, accountID string, current int) domain.Trend {
	history, err := e.store.History(ctx, accountID, 2)
	if err != nil {
		log.Printf("[health] history lookup failed for account %s: %v (trend stable)", accountID, err)
		return domain.TrendStable
	}
	if len(history) < 2 {
		return domain.TrendStable
	}

	avg := float64(history[0].OverallScore+history[1].OverallScore) / 2
	diff := float64(current) - avg
	switch {
	case diff > 5:
		return domain.TrendImproving
	case diff < -5:
		return domain.TrendDeclining
	default:
		return domain.TrendStable
	}
}
