// Package scoring turns raw usage, survey, and lifecycle state into the
// 0-100 component scores consumed by the health engine.
package scoring

import (
	"context"

	"github.com/ignite/retention-engine/internal/metrics"
)

// EngagementScorer derives engagement and adoption scores from usage
// counters over a 30-day window.
type EngagementScorer struct {
	source metrics.Source

	expectedLogins  int // logins/30d that count as fully engaged
	expectedEvents  int // feature events/30d that count as fully engaged
	trackedFeatures int // feature areas instrumented in the product
}

// NewEngagementScorer creates an engagement scorer with deployment
// expectations for a "fully engaged" account.
func NewEngagementScorer(source metrics.Source, expectedLogins, expectedEvents, trackedFeatures int) *EngagementScorer {
	if expectedLogins <= 0 {
		expectedLogins = 20
	}
	if expectedEvents <= 0 {
		expectedEvents = 200
	}
	if trackedFeatures <= 0 {
		trackedFeatures = 10
	}
	return &EngagementScorer{
		source:          source,
		expectedLogins:  expectedLogins,
		expectedEvents:  expectedEvents,
		trackedFeatures: trackedFeatures,
	}
}

const engagementWindowDays = 30

// Score returns the account's 0-100 engagement score: logins 40%, feature
// events 40%, distinct active days 20%. Metric failures count as zero.
func (s *EngagementScorer) Score(ctx context.Context, accountID string) int {
	logins := metrics.SafeCount(ctx, s.source, accountID, "login", engagementWindowDays)
	events := metrics.SafeCount(ctx, s.source, accountID, "feature_event", engagementWindowDays)

	activeDays, err := s.source.DistinctActiveDays(ctx, accountID, engagementWindowDays)
	if err != nil {
		activeDays = 0
	}

	loginPart := ratio(logins, s.expectedLogins) * 40
	eventPart := ratio(events, s.expectedEvents) * 40
	daysPart := ratio(activeDays, engagementWindowDays) * 20

	return clampScore(int(loginPart + eventPart + daysPart + 0.5))
}

// AdoptionScore returns the 0-100 share of tracked feature areas the
// account used in the window.
func (s *EngagementScorer) AdoptionScore(ctx context.Context, accountID string) int {
	used, err := s.source.DistinctMetrics(ctx, accountID, engagementWindowDays)
	if err != nil {
		used = 0
	}
	return clampScore(int(ratio(used, s.trackedFeatures)*100 + 0.5))
}

func ratio(actual, expected int) float64 {
	if expected <= 0 {
		return 0
	}
	r := float64(actual) / float64(expected)
	if r > 1 {
		return 1
	}
	return r
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
