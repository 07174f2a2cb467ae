// Package worker runs the engine's two scheduled entry points: a daily
// scoring pass and a frequent playbook advance loop.
package worker

import (
	"context"
	"log"
	"time"

	"github.com/ignite/retention-engine/internal/directory"
	"github.com/ignite/retention-engine/internal/domain"
	"github.com/ignite/retention-engine/internal/retention"
)

// RetentionEvaluator is the slice of the retention evaluator the scoring
// worker needs.
type RetentionEvaluator interface {
	Evaluate(ctx context.Context, accountID string) (*domain.RetentionResult, error)
}

// ChurnPredictor is the slice of the churn predictor the scoring worker
// needs.
type ChurnPredictor interface {
	Predict(ctx context.Context, accountID string) (*domain.ChurnPrediction, error)
}

// SeasonalPredictor adjusts churn probability by segment seasonality.
type SeasonalPredictor interface {
	Predict(ctx context.Context, accountID string, profile *domain.RetentionProfile) (*domain.SeasonalChurnPrediction, error)
}

// ScoringWorker recomputes health, churn, and retention state for every
// account on a fixed cycle. One account's failure never aborts the batch.
type ScoringWorker struct {
	directory directory.Directory
	profiles  *retention.ProfileStore
	evaluator RetentionEvaluator
	predictor ChurnPredictor
	seasonal  SeasonalPredictor
	interval  time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	lastRunAt time.Time
	healthy   bool
}

// NewScoringWorker creates the daily scoring worker.
func NewScoringWorker(dir directory.Directory, profiles *retention.ProfileStore,
	evaluator RetentionEvaluator, predictor ChurnPredictor, seasonal SeasonalPredictor,
	interval time.Duration) *ScoringWorker {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &ScoringWorker{
		directory: dir,
		profiles:  profiles,
		evaluator: evaluator,
		predictor: predictor,
		seasonal:  seasonal,
		interval:  interval,
		healthy:   true,
	}
}

func (w *ScoringWorker) Start() {
	w.ctx, w.cancel = context.WithCancel(context.Background())
	go func() {
		log.Println("[ScoringWorker] Starting scoring worker")
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.ctx.Done():
				log.Println("[ScoringWorker] Stopped")
				return
			case <-ticker.C:
				w.RunOnce(w.ctx)
			}
		}
	}()
}

func (w *ScoringWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *ScoringWorker) IsHealthy() bool      { return w.healthy }
func (w *ScoringWorker) LastRunAt() time.Time { return w.lastRunAt }

// RunOnce executes one full scoring pass and returns the number of
// accounts scored and the number skipped on error.
func (w *ScoringWorker) RunOnce(ctx context.Context) (scored, failed int) {
	w.lastRunAt = time.Now()

	accounts, err := w.directory.ListAccountIDs(ctx)
	if err != nil {
		log.Printf("[ScoringWorker] list accounts failed: %v", err)
		w.healthy = false
		return 0, 0
	}
	w.healthy = true

	for _, accountID := range accounts {
		if ctx.Err() != nil {
			return scored, failed
		}
		if err := w.scoreAccount(ctx, accountID); err != nil {
			log.Printf("[ScoringWorker] account %s skipped: %v", accountID, err)
			failed++
			continue
		}
		scored++
	}

	log.Printf("[ScoringWorker] pass complete: scored=%d failed=%d", scored, failed)
	return scored, failed
}

// scoreAccount runs the full per-account pipeline: retention evaluation
// (which also writes a fresh health snapshot), churn prediction over the
// updated history, and a seasonal adjustment when the segment has a
// profile.
func (w *ScoringWorker) scoreAccount(ctx context.Context, accountID string) error {
	result, err := w.evaluator.Evaluate(ctx, accountID)
	if err != nil {
		return err
	}

	if _, err := w.predictor.Predict(ctx, accountID); err != nil {
		return err
	}

	if result.SegmentID == retention.GenericSegmentID {
		return nil
	}
	profile, err := w.profiles.ActiveForSegment(ctx, result.SegmentID)
	if err != nil || profile == nil {
		// Profile vanished between evaluation and now; the generic
		// prediction already stands.
		return nil
	}
	if _, err := w.seasonal.Predict(ctx, accountID, profile); err != nil {
		return err
	}
	return nil
}
