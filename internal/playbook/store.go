package playbook

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/retention-engine/internal/domain"
)

// ErrAlreadyRunning is returned by InsertExecution when a running execution
// already exists for the same (playbook, account) pair. Postgres enforces
// the invariant with a partial unique index on (playbook_id, account_id)
// WHERE status = 'running'; a violated insert surfaces as pq code 23505.
var ErrAlreadyRunning = errors.New("playbook execution already running for account")

// Store handles CRUD for the playbooks and playbook_executions tables.
type Store struct {
	db       *sql.DB
	workerID string
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:       db,
		workerID: fmt.Sprintf("worker-%s", uuid.New().String()[:8]),
	}
}

const playbookColumns = `id, name, trigger_type, trigger_conditions, steps,
		auto_execute, status, execution_count, created_at, updated_at`

func (s *Store) GetPlaybook(ctx context.Context, id string) (*domain.Playbook, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+playbookColumns+` FROM playbooks WHERE id = $1
	`, id)

	pb, err := scanPlaybook(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get playbook %s: %w", id, err)
	}
	return pb, nil
}

// ListAutoExecute returns active playbooks flagged for automatic triggering.
func (s *Store) ListAutoExecute(ctx context.Context) ([]domain.Playbook, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+playbookColumns+` FROM playbooks
		WHERE status = 'active' AND auto_execute = TRUE
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list auto-execute playbooks: %w", err)
	}
	defer rows.Close()

	var playbooks []domain.Playbook
	for rows.Next() {
		pb, err := scanPlaybook(rows)
		if err != nil {
			continue
		}
		playbooks = append(playbooks, *pb)
	}
	return playbooks, rows.Err()
}

// SavePlaybook validates and upserts a playbook definition.
func (s *Store) SavePlaybook(ctx context.Context, pb *domain.Playbook) error {
	if pb.ID == "" {
		pb.ID = uuid.New().String()
	}
	if err := pb.Validate(); err != nil {
		return err
	}

	conditionsJSON, _ := json.Marshal(pb.TriggerConditions)
	stepsJSON, _ := json.Marshal(pb.Steps)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO playbooks (id, name, trigger_type, trigger_conditions, steps, auto_execute, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			trigger_type = EXCLUDED.trigger_type,
			trigger_conditions = EXCLUDED.trigger_conditions,
			steps = EXCLUDED.steps,
			auto_execute = EXCLUDED.auto_execute,
			status = EXCLUDED.status,
			updated_at = NOW()
	`, pb.ID, pb.Name, pb.TriggerType, conditionsJSON, stepsJSON, pb.AutoExecute, pb.Status)
	if err != nil {
		return fmt.Errorf("save playbook %s: %w", pb.ID, err)
	}
	return nil
}

// IncrementExecutionCount bumps the lifetime execution counter.
func (s *Store) IncrementExecutionCount(ctx context.Context, playbookID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE playbooks SET execution_count = execution_count + 1, updated_at = NOW()
		WHERE id = $1
	`, playbookID)
	return err
}

const executionColumns = `id, playbook_id, account_id, current_step, total_steps,
		step_results, status, next_action_at, completed_at, created_at, updated_at`

// InsertExecution creates a new running execution. A second running
// execution for the same (playbook, account) pair returns ErrAlreadyRunning.
func (s *Store) InsertExecution(ctx context.Context, e *domain.PlaybookExecution) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	resultsJSON, _ := json.Marshal(e.StepResults)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO playbook_executions
			(id, playbook_id, account_id, current_step, total_steps, step_results, status, next_action_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.PlaybookID, e.AccountID, e.CurrentStep, e.TotalSteps, resultsJSON, e.Status, e.NextActionAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("insert execution for playbook %s account %s: %w", e.PlaybookID, e.AccountID, err)
	}
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (*domain.PlaybookExecution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+executionColumns+` FROM playbook_executions WHERE id = $1
	`, id)

	exec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get execution %s: %w", id, err)
	}
	return exec, nil
}

// ListByAccount returns an account's executions, newest first.
func (s *Store) ListByAccount(ctx context.Context, accountID string) ([]domain.PlaybookExecution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+executionColumns+` FROM playbook_executions
		WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list executions for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var execs []domain.PlaybookExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			continue
		}
		execs = append(execs, *exec)
	}
	return execs, rows.Err()
}

func (s *Store) UpdateExecution(ctx context.Context, e *domain.PlaybookExecution) error {
	resultsJSON, _ := json.Marshal(e.StepResults)
	_, err := s.db.ExecContext(ctx, `
		UPDATE playbook_executions
		SET current_step=$1, step_results=$2, status=$3, next_action_at=$4, completed_at=$5,
			locked_at=NULL, locked_by=NULL, updated_at=NOW()
		WHERE id = $6
	`, e.CurrentStep, resultsJSON, e.Status, e.NextActionAt, e.CompletedAt, e.ID)
	if err != nil {
		return fmt.Errorf("update execution %s: %w", e.ID, err)
	}
	return nil
}

// ClaimPending atomically claims up to limit due executions so concurrent
// workers never advance the same execution twice. The claim stamps
// locked_at/locked_by; a claim older than five minutes is considered
// abandoned and becomes claimable again. UpdateExecution releases the lock.
func (s *Store) ClaimPending(ctx context.Context, before time.Time, limit int) ([]domain.PlaybookExecution, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE playbook_executions
		SET locked_at = NOW(), locked_by = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM playbook_executions
			WHERE status = 'running' AND next_action_at <= $2
			  AND (locked_at IS NULL OR locked_at < NOW() - INTERVAL '5 minutes')
			ORDER BY next_action_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+executionColumns+`
	`, s.workerID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending executions: %w", err)
	}
	defer rows.Close()

	var execs []domain.PlaybookExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			continue
		}
		execs = append(execs, *exec)
	}
	return execs, rows.Err()
}

// AccountsBelowScore returns accounts whose latest health snapshot scored
// below the threshold.
func (s *Store) AccountsBelowScore(ctx context.Context, threshold int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id FROM (
			SELECT DISTINCT ON (account_id) account_id, overall_score
			FROM health_snapshots
			ORDER BY account_id, calculated_at DESC
		) latest
		WHERE overall_score < $1
		ORDER BY account_id
	`, threshold)
	if err != nil {
		return nil, fmt.Errorf("accounts below score %d: %w", threshold, err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

// AccountsAboveChurnProbability returns accounts whose latest churn
// prediction meets or exceeds the threshold.
func (s *Store) AccountsAboveChurnProbability(ctx context.Context, threshold float64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id FROM (
			SELECT DISTINCT ON (account_id) account_id, probability
			FROM churn_predictions
			ORDER BY account_id, created_at DESC
		) latest
		WHERE probability >= $1
		ORDER BY account_id
	`, threshold)
	if err != nil {
		return nil, fmt.Errorf("accounts above churn probability %.2f: %w", threshold, err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

// AccountsWithExpansionSignal returns accounts with unprocessed expansion
// signals.
func (s *Store) AccountsWithExpansionSignal(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT account_id FROM expansion_signals
		WHERE processed = FALSE
		ORDER BY account_id
	`)
	if err != nil {
		return nil, fmt.Errorf("accounts with expansion signal: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

// MarkExpansionProcessed consumes an account's pending expansion signals.
func (s *Store) MarkExpansionProcessed(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE expansion_signals SET processed = TRUE, processed_at = NOW()
		WHERE account_id = $1 AND processed = FALSE
	`, accountID)
	return err
}

func collectIDs(rows *sql.Rows) ([]string, error) {
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

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPlaybook(row scanner) (*domain.Playbook, error) {
	var pb domain.Playbook
	var conditionsJSON, stepsJSON []byte
	err := row.Scan(&pb.ID, &pb.Name, &pb.TriggerType, &conditionsJSON, &stepsJSON,
		&pb.AutoExecute, &pb.Status, &pb.ExecutionCount, &pb.CreatedAt, &pb.UpdatedAt)
	if err != nil {
		return nil, err
	}
	json.Unmarshal(conditionsJSON, &pb.TriggerConditions)
	json.Unmarshal(stepsJSON, &pb.Steps)
	return &pb, nil
}

func scanExecution(row scanner) (*domain.PlaybookExecution, error) {
	var e domain.PlaybookExecution
	var resultsJSON []byte
	err := row.Scan(&e.ID, &e.PlaybookID, &e.AccountID, &e.CurrentStep, &e.TotalSteps,
		&resultsJSON, &e.Status, &e.NextActionAt, &e.CompletedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	json.Unmarshal(resultsJSON, &e.StepResults)
	return &e, nil
}
