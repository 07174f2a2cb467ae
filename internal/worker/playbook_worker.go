package worker

import (
	"context"
	"log"
	"time"

	"github.com/ignite/retention-engine/internal/playbook"
)

// PlaybookWorker evaluates playbook triggers and advances due executions
// on a short cycle. Safe to run on multiple instances: execution claims
// use SKIP LOCKED and duplicate starts are rejected by the storage layer.
type PlaybookWorker struct {
	engine     *playbook.Engine
	interval   time.Duration
	batchLimit int
	ctx        context.Context
	cancel     context.CancelFunc
	lastRunAt  time.Time
	healthy    bool
}

// NewPlaybookWorker creates the playbook advance worker.
func NewPlaybookWorker(engine *playbook.Engine, interval time.Duration, batchLimit int) *PlaybookWorker {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	if batchLimit <= 0 {
		batchLimit = 50
	}
	return &PlaybookWorker{
		engine:     engine,
		interval:   interval,
		batchLimit: batchLimit,
		healthy:    true,
	}
}

func (w *PlaybookWorker) Start() {
	w.ctx, w.cancel = context.WithCancel(context.Background())
	go func() {
		log.Println("[PlaybookWorker] Starting playbook worker")
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.ctx.Done():
				log.Println("[PlaybookWorker] Stopped")
				return
			case <-ticker.C:
				w.RunOnce(w.ctx)
			}
		}
	}()
}

func (w *PlaybookWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *PlaybookWorker) IsHealthy() bool      { return w.healthy }
func (w *PlaybookWorker) LastRunAt() time.Time { return w.lastRunAt }

// RunOnce runs one trigger sweep followed by one advance batch.
func (w *PlaybookWorker) RunOnce(ctx context.Context) (started, advanced int) {
	w.lastRunAt = time.Now()
	w.healthy = true

	started, err := w.engine.EvaluateTriggers(ctx)
	if err != nil {
		log.Printf("[PlaybookWorker] trigger evaluation failed: %v", err)
		w.healthy = false
	}

	advanced, err = w.engine.AdvancePending(ctx, w.batchLimit)
	if err != nil {
		log.Printf("[PlaybookWorker] advance failed: %v", err)
		w.healthy = false
	}

	if started > 0 || advanced > 0 {
		log.Printf("[PlaybookWorker] tick complete: started=%d advanced=%d", started, advanced)
	}
	return started, advanced
}
