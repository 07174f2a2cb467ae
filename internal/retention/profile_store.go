package retention

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/retention-engine/internal/domain"
)

// profileCacheTTL bounds how stale a cached segment profile can get.
const profileCacheTTL = 24 * time.Hour

// ProfileStore persists per-segment retention profiles. Active profile
// lookups are cached in Redis for 24 hours; Save invalidates the cache.
// At most one active profile per segment is enforced by a partial unique
// index on (segment_id) WHERE status='active'.
type ProfileStore struct {
	db  *sql.DB
	rdb *redis.Client
}

// NewProfileStore creates a profile store. rdb may be nil, which disables
// caching (every lookup hits Postgres).
func NewProfileStore(db *sql.DB, rdb *redis.Client) *ProfileStore {
	return &ProfileStore{db: db, rdb: rdb}
}

func cacheKey(segmentID string) string {
	return "retention:profile:" + segmentID
}

// ActiveForSegment returns the segment's active profile, or nil when the
// segment has none. Results are cached for 24 hours.
func (s *ProfileStore) ActiveForSegment(ctx context.Context, segmentID string) (*domain.RetentionProfile, error) {
	if segmentID == "" {
		return nil, nil
	}

	if s.rdb != nil {
		cached, err := s.rdb.Get(ctx, cacheKey(segmentID)).Result()
		if err == nil {
			var profile domain.RetentionProfile
			if json.Unmarshal([]byte(cached), &profile) == nil && profile.Status == domain.ProfileActive {
				return &profile, nil
			}
		} else if err != redis.Nil {
			log.Printf("[retention] profile cache read failed for segment %s: %v", segmentID, err)
		}
	}

	profile, err := s.loadActive(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, nil
	}

	if s.rdb != nil {
		if payload, err := json.Marshal(profile); err == nil {
			if err := s.rdb.Set(ctx, cacheKey(segmentID), payload, profileCacheTTL).Err(); err != nil {
				log.Printf("[retention] profile cache write failed for segment %s: %v", segmentID, err)
			}
		}
	}
	return profile, nil
}

// Invalidate drops the cached profile for a segment.
func (s *ProfileStore) Invalidate(ctx context.Context, segmentID string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, cacheKey(segmentID)).Err(); err != nil {
		log.Printf("[retention] profile cache invalidate failed for segment %s: %v", segmentID, err)
	}
}

const profileColumns = `id, segment_id, health_score_weights, seasonality_calendar,
		expected_usage_pattern, churn_risk_signals, max_inactivity_days,
		playbook_overrides, status, created_at, updated_at`

func (s *ProfileStore) loadActive(ctx context.Context, segmentID string) (*domain.RetentionProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM retention_profiles
		WHERE segment_id = $1 AND status = 'active'
	`, segmentID)

	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile for segment %s: %w", segmentID, err)
	}
	return profile, nil
}

// Get returns a profile by ID, or nil when it doesn't exist.
func (s *ProfileStore) Get(ctx context.Context, id string) (*domain.RetentionProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+` FROM retention_profiles WHERE id = $1
	`, id)

	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", id, err)
	}
	return profile, nil
}

// Save validates and upserts a profile, then invalidates the segment cache.
func (s *ProfileStore) Save(ctx context.Context, profile *domain.RetentionProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	if err := profile.Validate(); err != nil {
		return err
	}

	weightsJSON, _ := json.Marshal(profile.HealthScoreWeights)
	calendarJSON, _ := json.Marshal(profile.SeasonalityCalendar)
	usageJSON, _ := json.Marshal(profile.ExpectedUsagePattern)
	signalsJSON, _ := json.Marshal(profile.ChurnRiskSignals)
	overridesJSON, _ := json.Marshal(profile.PlaybookOverrides)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO retention_profiles
			(id, segment_id, health_score_weights, seasonality_calendar,
			 expected_usage_pattern, churn_risk_signals, max_inactivity_days,
			 playbook_overrides, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			health_score_weights = EXCLUDED.health_score_weights,
			seasonality_calendar = EXCLUDED.seasonality_calendar,
			expected_usage_pattern = EXCLUDED.expected_usage_pattern,
			churn_risk_signals = EXCLUDED.churn_risk_signals,
			max_inactivity_days = EXCLUDED.max_inactivity_days,
			playbook_overrides = EXCLUDED.playbook_overrides,
			status = EXCLUDED.status,
			updated_at = NOW()
	`, profile.ID, profile.SegmentID, weightsJSON, calendarJSON, usageJSON,
		signalsJSON, profile.MaxInactivityDays, overridesJSON, profile.Status)
	if err != nil {
		return fmt.Errorf("save profile %s: %w", profile.ID, err)
	}

	s.Invalidate(ctx, profile.SegmentID)
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row scanner) (*domain.RetentionProfile, error) {
	var p domain.RetentionProfile
	var weightsJSON, calendarJSON, usageJSON, signalsJSON, overridesJSON []byte
	err := row.Scan(&p.ID, &p.SegmentID, &weightsJSON, &calendarJSON,
		&usageJSON, &signalsJSON, &p.MaxInactivityDays, &overridesJSON,
		&p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	json.Unmarshal(weightsJSON, &p.HealthScoreWeights)
	json.Unmarshal(calendarJSON, &p.SeasonalityCalendar)
	json.Unmarshal(usageJSON, &p.ExpectedUsagePattern)
	json.Unmarshal(signalsJSON, &p.ChurnRiskSignals)
	json.Unmarshal(overridesJSON, &p.PlaybookOverrides)
	return &p, nil
}
