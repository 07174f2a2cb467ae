package domain

import (
	"time"
)

// RiskLevel enumerates churn risk buckets, ordered low < medium < high < critical.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// riskOrder maps risk levels to their position in the severity ordering.
var riskOrder = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// Rank returns the position of the risk level in the low..critical ordering.
// Unknown levels rank lowest.
func (r RiskLevel) Rank() int {
	return riskOrder[r]
}

// Urgency enumerates how urgently a seasonal prediction needs intervention.
type Urgency string

const (
	UrgencyNone     Urgency = "none"
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// RiskFactor is one explainable contributor to a churn prediction.
type RiskFactor struct {
	ID          string `json:"id"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// RecommendedAction is one suggested intervention attached to a prediction.
type RecommendedAction struct {
	Action   string `json:"action"`
	Priority string `json:"priority"`
}

// ChurnPrediction is one immutable churn probability calculation.
// Predictions are append-only; newest-by-timestamp wins for readers.
type ChurnPrediction struct {
	ID                 string              `json:"id" db:"id"`
	AccountID          string              `json:"account_id" db:"account_id"`
	Probability        float64             `json:"probability" db:"probability"`
	RiskLevel          RiskLevel           `json:"risk_level" db:"risk_level"`
	PredictedChurnDate *time.Time          `json:"predicted_churn_date" db:"predicted_churn_date"`
	RiskFactors        []RiskFactor        `json:"risk_factors" db:"risk_factors"`
	RecommendedActions []RecommendedAction `json:"recommended_actions" db:"recommended_actions"`
	ModelVersion       string              `json:"model_version" db:"model_version"`
	Confidence         float64             `json:"confidence" db:"confidence"`
	CreatedAt          time.Time           `json:"created_at" db:"created_at"`
}

// SeasonalContext captures the calendar context of a seasonal prediction.
type SeasonalContext struct {
	MonthLabel      string    `json:"month_label"`
	RiskLevel       RiskLevel `json:"risk_level"`
	ExpectedPattern string    `json:"expected_pattern"`
}

// SeasonalChurnPrediction is a churn probability adjusted by a segment's
// seasonality profile. Logically one per account per calendar month, but
// stored append-only; the latest by timestamp wins.
type SeasonalChurnPrediction struct {
	ID                    string          `json:"id" db:"id"`
	AccountID             string          `json:"account_id" db:"account_id"`
	SegmentID             string          `json:"segment_id" db:"segment_id"`
	PredictionMonth       string          `json:"prediction_month" db:"prediction_month"` // YYYY-MM
	BaseProbability       float64         `json:"base_probability" db:"base_probability"`
	SeasonalAdjustment    float64         `json:"seasonal_adjustment" db:"seasonal_adjustment"`
	AdjustedProbability   float64         `json:"adjusted_probability" db:"adjusted_probability"`
	SeasonalContext       SeasonalContext `json:"seasonal_context" db:"seasonal_context"`
	RecommendedPlaybookID *string         `json:"recommended_playbook_id" db:"recommended_playbook_id"`
	Urgency               Urgency         `json:"urgency" db:"urgency"`
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
}

// ChurnTrendPoint is one point in an account's churn probability history.
type ChurnTrendPoint struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Probability float64   `json:"probability"`
	RiskLevel   RiskLevel `json:"risk_level"`
}
