// Package metrics reads time-windowed usage counters per account.
//
// The usage_events table is written by the product's event pipeline; this
// package only reads it. Callers treat lookup failures as zero counts so a
// flaky metrics backend never aborts a scoring run.
package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"
)

// Source supplies usage counters for scoring and signal evaluation.
type Source interface {
	// Count returns the number of events of the named metric recorded for
	// the account within the lookback window.
	Count(ctx context.Context, accountID, metric string, lookbackDays int) (int, error)

	// DaysSinceLastActivity returns whole days since the account's most
	// recent event of any type. Accounts with no recorded activity report
	// 999 days.
	DaysSinceLastActivity(ctx context.Context, accountID string) (int, error)

	// DistinctActiveDays returns the number of distinct days with at least
	// one event within the lookback window.
	DistinctActiveDays(ctx context.Context, accountID string, lookbackDays int) (int, error)

	// DistinctMetrics returns the number of distinct metric types the
	// account produced within the lookback window.
	DistinctMetrics(ctx context.Context, accountID string, lookbackDays int) (int, error)
}

// NoActivityDays is reported when an account has no usage events at all.
const NoActivityDays = 999

// PostgresSource reads usage counters from the usage_events table.
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource creates a Postgres-backed metric source.
func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Count(ctx context.Context, accountID, metric string, lookbackDays int) (int, error) {
	since := time.Now().AddDate(0, 0, -lookbackDays)

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM usage_events
		WHERE account_id = $1 AND metric_type = $2 AND created_at >= $3
	`, accountID, metric, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s for %s: %w", metric, accountID, err)
	}
	return count, nil
}

func (s *PostgresSource) DaysSinceLastActivity(ctx context.Context, accountID string) (int, error) {
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(created_at) FROM usage_events WHERE account_id = $1
	`, accountID).Scan(&last)
	if err != nil {
		return NoActivityDays, fmt.Errorf("last activity for %s: %w", accountID, err)
	}
	if !last.Valid {
		return NoActivityDays, nil
	}
	return int(time.Since(last.Time).Hours() / 24), nil
}

func (s *PostgresSource) DistinctActiveDays(ctx context.Context, accountID string, lookbackDays int) (int, error) {
	since := time.Now().AddDate(0, 0, -lookbackDays)

	var days int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT DATE(created_at)) FROM usage_events
		WHERE account_id = $1 AND created_at >= $2
	`, accountID, since).Scan(&days)
	if err != nil {
		return 0, fmt.Errorf("active days for %s: %w", accountID, err)
	}
	return days, nil
}

func (s *PostgresSource) DistinctMetrics(ctx context.Context, accountID string, lookbackDays int) (int, error) {
	since := time.Now().AddDate(0, 0, -lookbackDays)

	var metrics int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT metric_type) FROM usage_events
		WHERE account_id = $1 AND created_at >= $2
	`, accountID, since).Scan(&metrics)
	if err != nil {
		return 0, fmt.Errorf("distinct metrics for %s: %w", accountID, err)
	}
	return metrics, nil
}

// SafeCount wraps Source.Count with the substitute-zero-and-log policy used
// by every scoring path.
func SafeCount(ctx context.Context, src Source, accountID, metric string, lookbackDays int) int {
	count, err := src.Count(ctx, accountID, metric, lookbackDays)
	if err != nil {
		log.Printf("[metrics] count %s failed for account %s: %v (using 0)", metric, accountID, err)
		return 0
	}
	return count
}

// SafeDaysInactive wraps DaysSinceLastActivity, reporting max inactivity on
// failure so a broken metrics backend reads as "long inactive", never as
// "recently active".
func SafeDaysInactive(ctx context.Context, src Source, accountID string) int {
	days, err := src.DaysSinceLastActivity(ctx, accountID)
	if err != nil {
		log.Printf("[metrics] last activity lookup failed for account %s: %v (using %d)", accountID, err, NoActivityDays)
		return NoActivityDays
	}
	return days
}
