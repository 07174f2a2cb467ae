package scoring

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// SatisfactionScorer keeps a capped rolling window of survey responses per
// account in Redis and derives satisfaction scores from it.
//
// Responses are NPS-style values in -100..100. The raw index is their
// average; the 0-100 satisfaction score is the index shifted into score
// space. An account with no responses scores a neutral 50.
type SatisfactionScorer struct {
	rdb *redis.Client
}

// maxResponses caps the per-account response window.
const maxResponses = 100

// NewSatisfactionScorer creates a Redis-backed satisfaction scorer.
func NewSatisfactionScorer(rdb *redis.Client) *SatisfactionScorer {
	return &SatisfactionScorer{rdb: rdb}
}

func responseKey(accountID string) string {
	return "retention:satisfaction:" + accountID
}

// Record appends a survey response, keeping only the most recent window.
func (s *SatisfactionScorer) Record(ctx context.Context, accountID string, value int) error {
	if value < -100 || value > 100 {
		return fmt.Errorf("satisfaction response %d outside -100..100", value)
	}
	key := responseKey(accountID)
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, key, value)
	pipe.LTrim(ctx, key, 0, maxResponses-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record satisfaction for %s: %w", accountID, err)
	}
	return nil
}

// Index returns the raw -100..100 satisfaction index (average of the
// response window). Lookup failures and empty windows read as 0 (neutral).
func (s *SatisfactionScorer) Index(ctx context.Context, accountID string) int {
	values, err := s.rdb.LRange(ctx, responseKey(accountID), 0, maxResponses-1).Result()
	if err != nil {
		log.Printf("[satisfaction] response lookup failed for account %s: %v (using neutral)", accountID, err)
		return 0
	}
	if len(values) == 0 {
		return 0
	}

	sum := 0
	counted := 0
	for _, raw := range values {
		v, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		sum += v
		counted++
	}
	if counted == 0 {
		return 0
	}
	return sum / counted
}

// Score returns the 0-100 satisfaction score derived from the raw index.
func (s *SatisfactionScorer) Score(ctx context.Context, accountID string) int {
	return clampScore((s.Index(ctx, accountID) + 100) / 2)
}
