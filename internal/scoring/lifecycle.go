package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/retention-engine/internal/domain"
)

// LifecycleTracker holds the current growth stage per account and a capped
// transition history, both in Redis.
type LifecycleTracker struct {
	rdb *redis.Client
}

// maxTransitions caps the per-account transition history.
const maxTransitions = 50

// NewLifecycleTracker creates a Redis-backed lifecycle tracker.
func NewLifecycleTracker(rdb *redis.Client) *LifecycleTracker {
	return &LifecycleTracker{rdb: rdb}
}

func stageKey(accountID string) string {
	return "retention:lifecycle:stage:" + accountID
}

func historyKey(accountID string) string {
	return "retention:lifecycle:history:" + accountID
}

// stageRank orders stages for transition direction detection.
var stageRank = map[domain.LifecycleStage]int{
	domain.StageDormant:    0,
	domain.StageOnboarding: 1,
	domain.StageActive:     2,
	domain.StagePower:      3,
}

// Stage returns the account's current growth stage, defaulting to
// onboarding for accounts never seen before.
func (t *LifecycleTracker) Stage(ctx context.Context, accountID string) domain.LifecycleStage {
	val, err := t.rdb.Get(ctx, stageKey(accountID)).Result()
	if err == redis.Nil {
		return domain.StageOnboarding
	}
	if err != nil {
		log.Printf("[lifecycle] stage lookup failed for account %s: %v (using onboarding)", accountID, err)
		return domain.StageOnboarding
	}
	stage := domain.LifecycleStage(val)
	if _, ok := stageRank[stage]; !ok {
		return domain.StageOnboarding
	}
	return stage
}

// SetStage records a stage change and appends it to the capped transition
// history. Setting the current stage again is a no-op.
func (t *LifecycleTracker) SetStage(ctx context.Context, accountID string, stage domain.LifecycleStage) error {
	if _, ok := stageRank[stage]; !ok {
		return fmt.Errorf("unknown lifecycle stage %q", stage)
	}

	current := t.Stage(ctx, accountID)
	if current == stage {
		return nil
	}

	transition := domain.StageTransition{
		From:       current,
		To:         stage,
		OccurredAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(transition)
	if err != nil {
		return fmt.Errorf("marshal transition: %w", err)
	}

	pipe := t.rdb.TxPipeline()
	pipe.Set(ctx, stageKey(accountID), string(stage), 0)
	pipe.LPush(ctx, historyKey(accountID), payload)
	pipe.LTrim(ctx, historyKey(accountID), 0, maxTransitions-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set stage for %s: %w", accountID, err)
	}
	return nil
}

// History returns the account's transition history, most recent first.
func (t *LifecycleTracker) History(ctx context.Context, accountID string) ([]domain.StageTransition, error) {
	raw, err := t.rdb.LRange(ctx, historyKey(accountID), 0, maxTransitions-1).Result()
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", accountID, err)
	}

	transitions := make([]domain.StageTransition, 0, len(raw))
	for _, entry := range raw {
		var tr domain.StageTransition
		if err := json.Unmarshal([]byte(entry), &tr); err != nil {
			continue
		}
		transitions = append(transitions, tr)
	}
	return transitions, nil
}

// base growth score per stage.
var stageScore = map[domain.LifecycleStage]int{
	domain.StageOnboarding: 40,
	domain.StageActive:     65,
	domain.StagePower:      90,
	domain.StageDormant:    15,
}

// GrowthScore derives the 0-100 growth component from the current stage,
// nudged by the direction of the most recent transition.
func (t *LifecycleTracker) GrowthScore(ctx context.Context, accountID string) int {
	stage := t.Stage(ctx, accountID)
	score := stageScore[stage]

	history, err := t.History(ctx, accountID)
	if err == nil && len(history) > 0 {
		last := history[0]
		if stageRank[last.To] > stageRank[last.From] {
			score += 10
		} else if stageRank[last.To] < stageRank[last.From] {
			score -= 10
		}
	}

	return clampScore(score)
}
