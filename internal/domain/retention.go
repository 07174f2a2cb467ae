package domain

import (
	"fmt"
	"time"
)

// ProfileStatus enumerates retention profile states.
type ProfileStatus string

const (
	ProfileActive   ProfileStatus = "active"
	ProfileInactive ProfileStatus = "inactive"
)

// UsagePattern describes the expected usage level for a calendar month.
type UsagePattern string

const (
	UsageLow    UsagePattern = "low"
	UsageMedium UsagePattern = "medium"
	UsageHigh   UsagePattern = "high"
)

// SeasonalityMonth is one entry in a segment's 12-month seasonality calendar.
type SeasonalityMonth struct {
	Label      string    `json:"label"`
	RiskLevel  RiskLevel `json:"risk_level"`
	Adjustment float64   `json:"adjustment"` // signed correction applied to churn probability
}

// signal comparison operators accepted in profiles.
var validOperators = map[string]bool{
	"==": true, "!=": true, ">": true, ">=": true, "<": true, "<=": true,
}

// ChurnRiskSignal is a named, thresholded metric check defined per segment.
type ChurnRiskSignal struct {
	SignalID     string  `json:"signal_id"`
	Metric       string  `json:"metric"`
	LookbackDays int     `json:"lookback_days"`
	Operator     string  `json:"operator"`
	Threshold    float64 `json:"threshold"`
	Weight       float64 `json:"weight"`
	Description  string  `json:"description"`
}

// TriggeredSignal is a ChurnRiskSignal that matched during evaluation.
type TriggeredSignal struct {
	SignalID    string  `json:"signal_id"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
	MetricValue int     `json:"metric_value"`
}

// RetentionProfile is the per-segment retention configuration. At most one
// active profile exists per segment (enforced by storage).
type RetentionProfile struct {
	ID                   string                   `json:"id" db:"id"`
	SegmentID            string                   `json:"segment_id" db:"segment_id"`
	HealthScoreWeights   HealthWeights            `json:"health_score_weights" db:"health_score_weights"`
	SeasonalityCalendar  [12]SeasonalityMonth     `json:"seasonality_calendar" db:"seasonality_calendar"`
	ExpectedUsagePattern map[int]UsagePattern     `json:"expected_usage_pattern" db:"expected_usage_pattern"` // 1-indexed month
	ChurnRiskSignals     []ChurnRiskSignal        `json:"churn_risk_signals" db:"churn_risk_signals"`
	MaxInactivityDays    int                      `json:"max_inactivity_days" db:"max_inactivity_days"`
	PlaybookOverrides    map[TriggerType]string   `json:"playbook_overrides" db:"playbook_overrides"`
	Status               ProfileStatus            `json:"status" db:"status"`
	CreatedAt            time.Time                `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time                `json:"updated_at" db:"updated_at"`
}

// SeasonalAdjustment returns the signed churn adjustment for a 1-indexed
// calendar month. Out-of-range months adjust by zero.
func (p *RetentionProfile) SeasonalAdjustment(month int) float64 {
	if month < 1 || month > 12 {
		return 0
	}
	return p.SeasonalityCalendar[month-1].Adjustment
}

// SeasonalMonth returns the calendar entry for a 1-indexed month.
func (p *RetentionProfile) SeasonalMonth(month int) SeasonalityMonth {
	if month < 1 || month > 12 {
		return SeasonalityMonth{RiskLevel: RiskLow}
	}
	return p.SeasonalityCalendar[month-1]
}

// ExpectedUsage returns the expected usage pattern for a 1-indexed month,
// defaulting to medium when the profile doesn't specify one.
func (p *RetentionProfile) ExpectedUsage(month int) UsagePattern {
	if pattern, ok := p.ExpectedUsagePattern[month]; ok {
		return pattern
	}
	return UsageMedium
}

// Validate checks profile configuration at load time so malformed profiles
// are rejected before they can fail mid-batch.
func (p *RetentionProfile) Validate() error {
	if p.SegmentID == "" {
		return fmt.Errorf("profile %s: segment_id is required", p.ID)
	}
	w := p.HealthScoreWeights
	sum := w.Engagement + w.Adoption + w.Satisfaction + w.Support + w.Growth
	if sum < 95 || sum > 105 {
		return fmt.Errorf("profile %s: health weights sum to %d, want ~100", p.ID, sum)
	}
	if p.MaxInactivityDays < 0 {
		return fmt.Errorf("profile %s: max_inactivity_days must be >= 0", p.ID)
	}
	for _, s := range p.ChurnRiskSignals {
		if s.SignalID == "" || s.Metric == "" {
			return fmt.Errorf("profile %s: signal missing id or metric", p.ID)
		}
		if !validOperators[s.Operator] {
			return fmt.Errorf("profile %s: signal %s has invalid operator %q", p.ID, s.SignalID, s.Operator)
		}
		if s.LookbackDays <= 0 {
			return fmt.Errorf("profile %s: signal %s has non-positive lookback", p.ID, s.SignalID)
		}
	}
	for month, pattern := range p.ExpectedUsagePattern {
		if month < 1 || month > 12 {
			return fmt.Errorf("profile %s: usage pattern has month %d outside 1..12", p.ID, month)
		}
		switch pattern {
		case UsageLow, UsageMedium, UsageHigh:
		default:
			return fmt.Errorf("profile %s: unknown usage pattern %q for month %d", p.ID, pattern, month)
		}
	}
	return nil
}

// RetentionResult is the outcome of evaluating one account's retention risk.
type RetentionResult struct {
	AccountID             string            `json:"account_id"`
	SegmentID             string            `json:"segment_id"`
	HealthScore           int               `json:"health_score"`
	AdjustedHealthScore   int               `json:"adjusted_health_score"`
	RiskScore             float64           `json:"risk_score"`
	RiskLevel             RiskLevel         `json:"risk_level"`
	IsSeasonalInactivity  bool              `json:"is_seasonal_inactivity"`
	SignalsTriggered      []TriggeredSignal `json:"signals_triggered"`
	RecommendedAction     string            `json:"recommended_action"`
	RecommendedPlaybookID *string           `json:"recommended_playbook_id"`
	SeasonalContext       *SeasonalContext  `json:"seasonal_context"`
	EvaluatedAt           time.Time         `json:"evaluated_at"`
}
