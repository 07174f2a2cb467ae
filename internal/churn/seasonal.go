package churn

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ignite/retention-engine/internal/domain"
)

// SeasonalAdjuster corrects the generic churn probability with a segment's
// seasonality profile and persists monthly snapshots.
type SeasonalAdjuster struct {
	store           *Store
	defaultBaseProb float64
}

// NewSeasonalAdjuster creates a seasonal churn adjuster. defaultBaseProb is
// the probability assumed for accounts with no generic prediction yet.
func NewSeasonalAdjuster(store *Store, defaultBaseProb float64) *SeasonalAdjuster {
	if defaultBaseProb <= 0 {
		defaultBaseProb = 0.30
	}
	return &SeasonalAdjuster{store: store, defaultBaseProb: defaultBaseProb}
}

// Predict adjusts the account's latest churn probability by the profile's
// adjustment for the current month and persists the result. Every call
// inserts a new row, even within the same month; dedup is a reporting
// concern.
func (a *SeasonalAdjuster) Predict(ctx context.Context, accountID string, profile *domain.RetentionProfile) (*domain.SeasonalChurnPrediction, error) {
	base := a.defaultBaseProb
	if latest, err := a.store.Latest(ctx, accountID); err != nil {
		log.Printf("[seasonal] latest prediction lookup failed for account %s: %v (using default base)", accountID, err)
	} else if latest != nil {
		base = latest.Probability
	}

	now := time.Now().UTC()
	month := int(now.Month())
	adjustment := profile.SeasonalAdjustment(month)
	adjusted := clampProbability(base + adjustment)
	urgency := ClassifyUrgency(adjusted)

	seasonalMonth := profile.SeasonalMonth(month)
	prediction := &domain.SeasonalChurnPrediction{
		AccountID:           accountID,
		SegmentID:           profile.SegmentID,
		PredictionMonth:     now.Format("2006-01"),
		BaseProbability:     base,
		SeasonalAdjustment:  adjustment,
		AdjustedProbability: adjusted,
		SeasonalContext: domain.SeasonalContext{
			MonthLabel:      seasonalMonth.Label,
			RiskLevel:       seasonalMonth.RiskLevel,
			ExpectedPattern: string(profile.ExpectedUsage(month)),
		},
		RecommendedPlaybookID: playbookForUrgency(profile, urgency),
		Urgency:               urgency,
		CreatedAt:             now,
	}

	if err := a.store.InsertSeasonal(ctx, prediction); err != nil {
		return nil, fmt.Errorf("persist seasonal prediction: %w", err)
	}
	return prediction, nil
}

func clampProbability(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// ClassifyUrgency maps an adjusted probability onto the urgency ladder.
func ClassifyUrgency(probability float64) domain.Urgency {
	switch {
	case probability < 0.15:
		return domain.UrgencyNone
	case probability < 0.30:
		return domain.UrgencyLow
	case probability < 0.50:
		return domain.UrgencyMedium
	case probability < 0.75:
		return domain.UrgencyHigh
	default:
		return domain.UrgencyCritical
	}
}

// playbookForUrgency resolves the segment's playbook override for the
// urgency bucket: critical/high reach for the churn_risk playbook, medium
// for health_drop, anything lower gets none.
func playbookForUrgency(profile *domain.RetentionProfile, urgency domain.Urgency) *string {
	var trigger domain.TriggerType
	switch urgency {
	case domain.UrgencyCritical, domain.UrgencyHigh:
		trigger = domain.TriggerChurnRisk
	case domain.UrgencyMedium:
		trigger = domain.TriggerHealthDrop
	default:
		return nil
	}

	if id, ok := profile.PlaybookOverrides[trigger]; ok && id != "" {
		return &id
	}
	return nil
}
