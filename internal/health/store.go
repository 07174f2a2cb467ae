package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/retention-engine/internal/domain"
)

// Store persists health snapshots. Snapshots are append-only: Insert is the
// only write and rows are never updated.
type Store struct {
	db *sql.DB
}

// NewStore creates a Postgres-backed snapshot store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert writes one immutable snapshot row.
func (s *Store) Insert(ctx context.Context, snap *domain.HealthSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	breakdownJSON, err := json.Marshal(snap.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO health_snapshots
			(id, account_id, overall_score, engagement_score, adoption_score,
			 satisfaction_score, support_score, growth_score, category, trend,
			 breakdown, calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, snap.ID, snap.AccountID, snap.OverallScore, snap.EngagementScore,
		snap.AdoptionScore, snap.SatisfactionScore, snap.SupportScore,
		snap.GrowthScore, snap.Category, snap.Trend, breakdownJSON, snap.CalculatedAt)
	if err != nil {
		return fmt.Errorf("insert health snapshot: %w", err)
	}
	return nil
}

const snapshotColumns = `id, account_id, overall_score, engagement_score, adoption_score,
		satisfaction_score, support_score, growth_score, category, trend,
		breakdown, calculated_at`

// Latest returns the account's most recent snapshot, or nil when none exist.
func (s *Store) Latest(ctx context.Context, accountID string) (*domain.HealthSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM health_snapshots WHERE account_id = $1
		ORDER BY calculated_at DESC LIMIT 1
	`, accountID)

	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot for %s: %w", accountID, err)
	}
	return snap, nil
}

// History returns up to limit snapshots for the account, most recent first.
func (s *Store) History(ctx context.Context, accountID string, limit int) ([]domain.HealthSnapshot, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM health_snapshots WHERE account_id = $1
		ORDER BY calculated_at DESC LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("snapshot history for %s: %w", accountID, err)
	}
	defer rows.Close()

	var snaps []domain.HealthSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			continue
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row scanner) (*domain.HealthSnapshot, error) {
	var snap domain.HealthSnapshot
	var breakdownJSON []byte
	err := row.Scan(&snap.ID, &snap.AccountID, &snap.OverallScore,
		&snap.EngagementScore, &snap.AdoptionScore, &snap.SatisfactionScore,
		&snap.SupportScore, &snap.GrowthScore, &snap.Category, &snap.Trend,
		&breakdownJSON, &snap.CalculatedAt)
	if err != nil {
		return nil, err
	}
	json.Unmarshal(breakdownJSON, &snap.Breakdown)
	return &snap, nil
}
