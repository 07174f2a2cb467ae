package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/retention-engine/internal/churn"
	"github.com/ignite/retention-engine/internal/config"
	"github.com/ignite/retention-engine/internal/directory"
	"github.com/ignite/retention-engine/internal/health"
	"github.com/ignite/retention-engine/internal/metrics"
	"github.com/ignite/retention-engine/internal/notify"
	"github.com/ignite/retention-engine/internal/playbook"
	"github.com/ignite/retention-engine/internal/retention"
	"github.com/ignite/retention-engine/internal/scoring"
	"github.com/ignite/retention-engine/internal/worker"

	_ "github.com/lib/pq"
)

func main() {
	log.Println("Starting retention engine worker...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Printf("Redis unavailable (%v); lifecycle and survey scores degrade to defaults", err)
	} else {
		log.Println("Connected to Redis")
	}

	// Wire the scoring pipeline
	source := metrics.NewPostgresSource(db)
	dir := directory.NewPostgresDirectory(db)
	engagement := scoring.NewEngagementScorer(source,
		cfg.Scoring.ExpectedLogins30d, cfg.Scoring.ExpectedEvents30d, cfg.Scoring.TrackedFeatureAreas)
	satisfaction := scoring.NewSatisfactionScorer(rdb)
	lifecycle := scoring.NewLifecycleTracker(rdb)
	support := scoring.NewSupportScorer()

	healthEngine := health.NewEngine(health.NewStore(db), engagement, satisfaction, lifecycle, support,
		cfg.Health.Weights, health.Thresholds{
			Healthy: cfg.Health.HealthyThreshold,
			Neutral: cfg.Health.NeutralThreshold,
			AtRisk:  cfg.Health.AtRiskThreshold,
		})

	churnStore := churn.NewStore(db)
	predictor := churn.NewPredictor(churnStore, healthEngine.Store(), engagement, cfg.Churn.ModelVersion)
	seasonal := churn.NewSeasonalAdjuster(churnStore, cfg.Churn.DefaultBaseProb)

	profiles := retention.NewProfileStore(db, rdb)
	evaluator := retention.NewEvaluator(dir, profiles, healthEngine, source)

	alerter := notify.NewAlerter(db, cfg.Alerts)
	playbookEngine := playbook.NewEngine(playbook.NewStore(db), alerter, playbook.Defaults{
		ScoreBelow:            cfg.Playbooks.DefaultScoreBelow,
		ChurnProbabilityAbove: cfg.Playbooks.DefaultChurnProbability,
	})

	scoringWorker := worker.NewScoringWorker(dir, profiles, evaluator, predictor, seasonal,
		time.Duration(cfg.Scoring.IntervalHours)*time.Hour)
	playbookWorker := worker.NewPlaybookWorker(playbookEngine,
		time.Duration(cfg.Playbooks.TickIntervalSeconds)*time.Second, cfg.Playbooks.BatchLimit)

	scoringWorker.Start()
	playbookWorker.Start()
	log.Println("Workers running...")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down workers...")
	scoringWorker.Stop()
	playbookWorker.Stop()
	log.Println("Worker stopped")
}
