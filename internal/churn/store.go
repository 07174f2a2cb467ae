package churn

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/retention-engine/internal/domain"
)

// Store persists churn predictions and seasonal predictions. Both tables
// are append-only; readers take the latest row by timestamp.
type Store struct {
	db *sql.DB
}

// NewStore creates a Postgres-backed churn store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InsertPrediction writes one immutable prediction row.
func (s *Store) InsertPrediction(ctx context.Context, p *domain.ChurnPrediction) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	factorsJSON, _ := json.Marshal(p.RiskFactors)
	actionsJSON, _ := json.Marshal(p.RecommendedActions)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO churn_predictions
			(id, account_id, probability, risk_level, predicted_churn_date,
			 risk_factors, recommended_actions, model_version, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.AccountID, p.Probability, p.RiskLevel, p.PredictedChurnDate,
		factorsJSON, actionsJSON, p.ModelVersion, p.Confidence, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert churn prediction: %w", err)
	}
	return nil
}

// Latest returns the account's most recent prediction, or nil when none exist.
func (s *Store) Latest(ctx context.Context, accountID string) (*domain.ChurnPrediction, error) {
	var p domain.ChurnPrediction
	var factorsJSON, actionsJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, probability, risk_level, predicted_churn_date,
		       risk_factors, recommended_actions, model_version, confidence, created_at
		FROM churn_predictions WHERE account_id = $1
		ORDER BY created_at DESC LIMIT 1
	`, accountID).Scan(&p.ID, &p.AccountID, &p.Probability, &p.RiskLevel,
		&p.PredictedChurnDate, &factorsJSON, &actionsJSON, &p.ModelVersion,
		&p.Confidence, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest prediction for %s: %w", accountID, err)
	}
	json.Unmarshal(factorsJSON, &p.RiskFactors)
	json.Unmarshal(actionsJSON, &p.RecommendedActions)
	return &p, nil
}

// Trend returns the account's prediction history over the last days,
// oldest first, for charting.
func (s *Store) Trend(ctx context.Context, accountID string, days int) ([]domain.ChurnTrendPoint, error) {
	if days <= 0 {
		days = 90
	}
	since := time.Now().AddDate(0, 0, -days)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, probability, risk_level
		FROM churn_predictions
		WHERE account_id = $1 AND created_at >= $2
		ORDER BY created_at ASC
	`, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("churn trend for %s: %w", accountID, err)
	}
	defer rows.Close()

	var points []domain.ChurnTrendPoint
	for rows.Next() {
		var pt domain.ChurnTrendPoint
		if err := rows.Scan(&pt.ID, &pt.Date, &pt.Probability, &pt.RiskLevel); err != nil {
			continue
		}
		points = append(points, pt)
	}
	return points, rows.Err()
}

// HighRisk returns the most recent high/critical prediction per account,
// highest probability first.
func (s *Store) HighRisk(ctx context.Context, limit int) ([]domain.ChurnPrediction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (account_id)
		       id, account_id, probability, risk_level, predicted_churn_date,
		       risk_factors, recommended_actions, model_version, confidence, created_at
		FROM churn_predictions
		WHERE risk_level IN ('high', 'critical')
		ORDER BY account_id, created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("high risk query: %w", err)
	}
	defer rows.Close()

	var predictions []domain.ChurnPrediction
	for rows.Next() {
		var p domain.ChurnPrediction
		var factorsJSON, actionsJSON []byte
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Probability, &p.RiskLevel,
			&p.PredictedChurnDate, &factorsJSON, &actionsJSON, &p.ModelVersion,
			&p.Confidence, &p.CreatedAt); err != nil {
			continue
		}
		json.Unmarshal(factorsJSON, &p.RiskFactors)
		json.Unmarshal(actionsJSON, &p.RecommendedActions)
		predictions = append(predictions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Highest probability first, bounded by limit.
	sort.Slice(predictions, func(i, j int) bool {
		return predictions[i].Probability > predictions[j].Probability
	})
	if len(predictions) > limit {
		predictions = predictions[:limit]
	}
	return predictions, nil
}

// InsertSeasonal writes one immutable seasonal prediction row. Duplicate
// months are allowed; readers take latest-by-timestamp.
func (s *Store) InsertSeasonal(ctx context.Context, p *domain.SeasonalChurnPrediction) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	contextJSON, _ := json.Marshal(p.SeasonalContext)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO seasonal_churn_predictions
			(id, account_id, segment_id, prediction_month, base_probability,
			 seasonal_adjustment, adjusted_probability, seasonal_context,
			 recommended_playbook_id, urgency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.AccountID, p.SegmentID, p.PredictionMonth, p.BaseProbability,
		p.SeasonalAdjustment, p.AdjustedProbability, contextJSON,
		p.RecommendedPlaybookID, p.Urgency, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert seasonal prediction: %w", err)
	}
	return nil
}

// LatestSeasonal returns the account's most recent seasonal prediction, or
// nil when none exist.
func (s *Store) LatestSeasonal(ctx context.Context, accountID string) (*domain.SeasonalChurnPrediction, error) {
	var p domain.SeasonalChurnPrediction
	var contextJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, segment_id, prediction_month, base_probability,
		       seasonal_adjustment, adjusted_probability, seasonal_context,
		       recommended_playbook_id, urgency, created_at
		FROM seasonal_churn_predictions WHERE account_id = $1
		ORDER BY created_at DESC LIMIT 1
	`, accountID).Scan(&p.ID, &p.AccountID, &p.SegmentID, &p.PredictionMonth,
		&p.BaseProbability, &p.SeasonalAdjustment, &p.AdjustedProbability,
		&contextJSON, &p.RecommendedPlaybookID, &p.Urgency, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest seasonal prediction for %s: %w", accountID, err)
	}
	json.Unmarshal(contextJSON, &p.SeasonalContext)
	return &p, nil
}
