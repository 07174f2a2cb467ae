package domain

import (
	"time"
)

// HealthCategory enumerates the health buckets for an account.
type HealthCategory string

const (
	HealthHealthy  HealthCategory = "healthy"
	HealthNeutral  HealthCategory = "neutral"
	HealthAtRisk   HealthCategory = "at_risk"
	HealthCritical HealthCategory = "critical"
)

// Trend describes the direction of an account's health over recent snapshots.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// ComponentScore is one weighted component inside a health breakdown.
type ComponentScore struct {
	Score  int `json:"score"`
	Weight int `json:"weight"`
}

// HealthSnapshot is one immutable health calculation for an account.
// Snapshots are append-only: they are inserted once and never updated.
type HealthSnapshot struct {
	ID                string                    `json:"id" db:"id"`
	AccountID         string                    `json:"account_id" db:"account_id"`
	OverallScore      int                       `json:"overall_score" db:"overall_score"`
	EngagementScore   int                       `json:"engagement_score" db:"engagement_score"`
	AdoptionScore     int                       `json:"adoption_score" db:"adoption_score"`
	SatisfactionScore int                       `json:"satisfaction_score" db:"satisfaction_score"`
	SupportScore      int                       `json:"support_score" db:"support_score"`
	GrowthScore       int                       `json:"growth_score" db:"growth_score"`
	Category          HealthCategory            `json:"category" db:"category"`
	Trend             Trend                     `json:"trend" db:"trend"`
	Breakdown         map[string]ComponentScore `json:"breakdown" db:"breakdown"`
	CalculatedAt      time.Time                 `json:"calculated_at" db:"calculated_at"`
}

// HealthWeights holds the relative weight of each health component.
// Weights are percentages and should sum to ~100.
type HealthWeights struct {
	Engagement   int `json:"engagement" yaml:"engagement"`
	Adoption     int `json:"adoption" yaml:"adoption"`
	Satisfaction int `json:"satisfaction" yaml:"satisfaction"`
	Support      int `json:"support" yaml:"support"`
	Growth       int `json:"growth" yaml:"growth"`
}

// DefaultHealthWeights returns the deployment-default component weights.
func DefaultHealthWeights() HealthWeights {
	return HealthWeights{
		Engagement:   30,
		Adoption:     25,
		Satisfaction: 20,
		Support:      15,
		Growth:       10,
	}
}

// LifecycleStage enumerates the growth stages an account moves through.
type LifecycleStage string

const (
	StageOnboarding LifecycleStage = "onboarding"
	StageActive     LifecycleStage = "active"
	StagePower      LifecycleStage = "power"
	StageDormant    LifecycleStage = "dormant"
)

// StageTransition records one lifecycle stage change for an account.
type StageTransition struct {
	From       LifecycleStage `json:"from"`
	To         LifecycleStage `json:"to"`
	OccurredAt time.Time      `json:"occurred_at"`
}
