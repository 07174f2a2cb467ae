// Package retention evaluates account churn risk through the lens of a
// segment's retention profile: segment-specific health weights, churn risk
// signals, and a seasonality calendar. Accounts without a segment profile
// get a generic evaluation derived from the raw health score alone.
package retention

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/ignite/retention-engine/internal/churn"
	"github.com/ignite/retention-engine/internal/directory"
	"github.com/ignite/retention-engine/internal/domain"
	"github.com/ignite/retention-engine/internal/health"
	"github.com/ignite/retention-engine/internal/metrics"
)

// GenericSegmentID marks results evaluated without a segment profile.
const GenericSegmentID = "generic"

// seasonalDiscount scales risk down when low usage matches the segment's
// expected seasonal pattern.
const seasonalDiscount = 0.6

// HealthEngine is the slice of the health engine the evaluator needs.
type HealthEngine interface {
	Calculate(ctx context.Context, accountID string) *domain.HealthSnapshot
}

// Evaluator combines a fresh health snapshot with the account segment's
// retention profile to produce an explainable risk assessment.
type Evaluator struct {
	directory directory.Directory
	profiles  *ProfileStore
	engine    HealthEngine
	metrics   metrics.Source
	now       func() time.Time
}

// NewEvaluator creates a retention evaluator.
func NewEvaluator(dir directory.Directory, profiles *ProfileStore, engine HealthEngine, src metrics.Source) *Evaluator {
	return &Evaluator{
		directory: dir,
		profiles:  profiles,
		engine:    engine,
		metrics:   src,
		now:       time.Now,
	}
}

// Evaluate assesses one account's retention risk. Accounts whose segment has
// no active profile fall back to a generic health-only assessment.
func (e *Evaluator) Evaluate(ctx context.Context, accountID string) (*domain.RetentionResult, error) {
	snap := e.engine.Calculate(ctx, accountID)
	if snap == nil {
		return nil, fmt.Errorf("evaluate %s: health calculation failed", accountID)
	}

	segmentID, err := e.directory.SegmentID(ctx, accountID)
	if err != nil {
		log.Printf("[retention] segment lookup failed for account %s: %v (using generic)", accountID, err)
		segmentID = ""
	}

	var profile *domain.RetentionProfile
	if segmentID != "" {
		profile, err = e.profiles.ActiveForSegment(ctx, segmentID)
		if err != nil {
			log.Printf("[retention] profile load failed for segment %s: %v (using generic)", segmentID, err)
			profile = nil
		}
	}
	if profile == nil {
		return e.genericResult(accountID, snap), nil
	}

	now := e.now()
	month := int(now.Month())

	adjusted := reweight(snap, profile.HealthScoreWeights)
	triggered, signalWeight := e.evaluateSignals(ctx, accountID, profile.ChurnRiskSignals)

	daysInactive := metrics.SafeDaysInactive(ctx, e.metrics, accountID)
	seasonal := e.isSeasonalInactivity(profile, month, daysInactive)

	seasonalAdj := profile.SeasonalAdjustment(month)
	risk := riskScore(adjusted, signalWeight, seasonalAdj, seasonal)
	level := churn.ClassifyRisk(risk)

	seasonEntry := profile.SeasonalMonth(month)
	result := &domain.RetentionResult{
		AccountID:            accountID,
		SegmentID:            profile.SegmentID,
		HealthScore:          snap.OverallScore,
		AdjustedHealthScore:  adjusted,
		RiskScore:            risk,
		RiskLevel:            level,
		IsSeasonalInactivity: seasonal,
		SignalsTriggered:     triggered,
		RecommendedAction:    recommendedAction(level, seasonal),
		SeasonalContext: &domain.SeasonalContext{
			MonthLabel:      seasonEntry.Label,
			RiskLevel:       seasonEntry.RiskLevel,
			ExpectedPattern: string(profile.ExpectedUsage(month)),
		},
		EvaluatedAt: now.UTC(),
	}
	result.RecommendedPlaybookID = playbookForRisk(profile, level)
	return result, nil
}

// genericResult is the no-profile fallback: risk is derived from the raw
// health score alone, with no signals and no seasonal context.
func (e *Evaluator) genericResult(accountID string, snap *domain.HealthSnapshot) *domain.RetentionResult {
	risk := float64(100-snap.OverallScore) / 100
	level := churn.ClassifyRisk(risk)
	return &domain.RetentionResult{
		AccountID:           accountID,
		SegmentID:           GenericSegmentID,
		HealthScore:         snap.OverallScore,
		AdjustedHealthScore: snap.OverallScore,
		RiskScore:           risk,
		RiskLevel:           level,
		SignalsTriggered:    []domain.TriggeredSignal{},
		RecommendedAction:   recommendedAction(level, false),
		EvaluatedAt:         e.now().UTC(),
	}
}

// reweight recomputes the composite health score using the profile's
// component weights instead of the deployment defaults.
func reweight(snap *domain.HealthSnapshot, weights domain.HealthWeights) int {
	return health.Composite(map[string]domain.ComponentScore{
		"engagement":   {Score: snap.EngagementScore, Weight: weights.Engagement},
		"adoption":     {Score: snap.AdoptionScore, Weight: weights.Adoption},
		"satisfaction": {Score: snap.SatisfactionScore, Weight: weights.Satisfaction},
		"support":      {Score: snap.SupportScore, Weight: weights.Support},
		"growth":       {Score: snap.GrowthScore, Weight: weights.Growth},
	})
}

// evaluateSignals checks every profile signal against live metric counts.
// The returned weight is the plain sum of triggered signal weights; the
// final risk score clamp is the only bound.
func (e *Evaluator) evaluateSignals(ctx context.Context, accountID string, signals []domain.ChurnRiskSignal) ([]domain.TriggeredSignal, float64) {
	triggered := []domain.TriggeredSignal{}
	weight := 0.0
	for _, sig := range signals {
		value := metrics.SafeCount(ctx, e.metrics, accountID, sig.Metric, sig.LookbackDays)
		if !compare(float64(value), sig.Operator, sig.Threshold) {
			continue
		}
		triggered = append(triggered, domain.TriggeredSignal{
			SignalID:    sig.SignalID,
			Weight:      sig.Weight,
			Description: sig.Description,
			MetricValue: value,
		})
		weight += sig.Weight
	}
	return triggered, weight
}

func compare(value float64, operator string, threshold float64) bool {
	switch operator {
	case "==":
		return value == threshold
	case "!=":
		return value != threshold
	case ">":
		return value > threshold
	case ">=":
		return value >= threshold
	case "<":
		return value < threshold
	case "<=":
		return value <= threshold
	default:
		return false
	}
}

// isSeasonalInactivity reports whether current inactivity is explained by
// the calendar: the month expects low usage and the quiet period is still
// within the segment's tolerated window.
func (e *Evaluator) isSeasonalInactivity(profile *domain.RetentionProfile, month, daysInactive int) bool {
	if profile.ExpectedUsage(month) != domain.UsageLow {
		return false
	}
	return daysInactive <= profile.MaxInactivityDays
}

// riskScore blends inverted health (50%), triggered signal weight (30%),
// and the positive part of the seasonal adjustment (20%). Seasonal
// inactivity discounts the whole score.
func riskScore(adjustedHealth int, signalWeight, seasonalAdj float64, seasonal bool) float64 {
	risk := 0.5*float64(100-adjustedHealth)/100 +
		0.3*signalWeight +
		0.2*math.Max(0, seasonalAdj)
	if seasonal {
		risk *= seasonalDiscount
	}
	if risk < 0 {
		return 0
	}
	if risk > 1 {
		return 1
	}
	return risk
}

// recommendedAction maps risk to an intervention. Seasonal inactivity always
// resolves to monitoring; intervening during an expected quiet period burns
// goodwill for no retention gain.
func recommendedAction(level domain.RiskLevel, seasonal bool) string {
	if seasonal {
		return "monitor"
	}
	switch level {
	case domain.RiskCritical:
		return "immediate_intervention"
	case domain.RiskHigh:
		return "reengagement"
	case domain.RiskMedium:
		return "proactive_outreach"
	default:
		return "monitor"
	}
}

// playbookForRisk resolves the profile's playbook override for the risk
// level. Low risk launches nothing.
func playbookForRisk(profile *domain.RetentionProfile, level domain.RiskLevel) *string {
	var trigger domain.TriggerType
	switch level {
	case domain.RiskCritical, domain.RiskHigh:
		trigger = domain.TriggerChurnRisk
	case domain.RiskMedium:
		trigger = domain.TriggerHealthDrop
	default:
		return nil
	}
	if id, ok := profile.PlaybookOverrides[trigger]; ok && id != "" {
		return &id
	}
	return nil
}
