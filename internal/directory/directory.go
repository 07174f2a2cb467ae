// Package directory resolves account segments and enumerates accounts for
// batch jobs. Accounts without a recognized segment fall back to generic
// retention evaluation.
package directory

import (
	"context"
	"database/sql"
	"fmt"
)

// Directory resolves an account's segment and lists accounts to score.
type Directory interface {
	// SegmentID returns the account's segment identifier, or "" when the
	// account has no recognized segment.
	SegmentID(ctx context.Context, accountID string) (string, error)

	// ListAccountIDs returns the IDs of all active accounts.
	ListAccountIDs(ctx context.Context) ([]string, error)
}

// PostgresDirectory reads account metadata from the accounts table.
type PostgresDirectory struct {
	db *sql.DB
}

// NewPostgresDirectory creates a Postgres-backed account directory.
func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) SegmentID(ctx context.Context, accountID string) (string, error) {
	var segment sql.NullString
	err := d.db.QueryRowContext(ctx, `
		SELECT segment_id FROM accounts WHERE id = $1
	`, accountID).Scan(&segment)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve segment for %s: %w", accountID, err)
	}
	if !segment.Valid {
		return "", nil
	}
	return segment.String, nil
}

func (d *PostgresDirectory) ListAccountIDs(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id FROM accounts WHERE status = 'active' ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
