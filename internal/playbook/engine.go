// Package playbook runs multi-step retention interventions. Playbooks fire
// on health, churn, or expansion triggers; each execution walks the step
// list on its day offsets until it completes or fails. At most one
// execution per (playbook, account) pair runs at a time.
package playbook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ignite/retention-engine/internal/domain"
)

// Notifier delivers playbook step side effects. Implementations must be
// safe for concurrent use.
type Notifier interface {
	// SendEmail sends an outreach email to the account's primary contact.
	SendEmail(ctx context.Context, accountID, subject, body string) error

	// SendAlert raises an internal alert for the account team.
	SendAlert(ctx context.Context, accountID, subject, details string) error
}

// Defaults hold trigger thresholds used when a playbook's conditions leave
// them unset.
type Defaults struct {
	ScoreBelow            int
	ChurnProbabilityAbove float64
}

// DefaultTriggerDefaults returns the deployment-default trigger thresholds.
func DefaultTriggerDefaults() Defaults {
	return Defaults{ScoreBelow: 60, ChurnProbabilityAbove: 0.5}
}

// stepTimeout bounds each notifier call so a slow SMTP or alert backend
// can't stall a whole batch.
const stepTimeout = 10 * time.Second

// Engine evaluates playbook triggers and advances running executions.
type Engine struct {
	store    *Store
	notifier Notifier
	defaults Defaults
}

// NewEngine creates a playbook engine. notifier may be nil; email steps
// then record errors and internal steps resolve alert_failed.
func NewEngine(store *Store, notifier Notifier, defaults Defaults) *Engine {
	return &Engine{store: store, notifier: notifier, defaults: defaults}
}

func (e *Engine) Store() *Store {
	return e.store
}

// EvaluateTriggers starts executions for every active auto-execute playbook
// whose trigger currently matches. One account's failure never aborts the
// rest of the sweep.
func (e *Engine) EvaluateTriggers(ctx context.Context) (started int, err error) {
	playbooks, err := e.store.ListAutoExecute(ctx)
	if err != nil {
		return 0, fmt.Errorf("evaluate triggers: %w", err)
	}

	for i := range playbooks {
		pb := &playbooks[i]
		accounts, err := e.matchingAccounts(ctx, pb)
		if err != nil {
			log.Printf("[PlaybookEngine] trigger match failed for playbook %s: %v", pb.ID, err)
			continue
		}
		for _, accountID := range accounts {
			if ctx.Err() != nil {
				return started, ctx.Err()
			}
			exec, err := e.StartExecution(ctx, pb, accountID)
			if err != nil {
				log.Printf("[PlaybookEngine] start failed playbook=%s account=%s: %v", pb.ID, accountID, err)
				continue
			}
			if exec == nil {
				continue // already running, skip
			}
			started++
			if pb.TriggerType == domain.TriggerExpansion {
				if err := e.store.MarkExpansionProcessed(ctx, accountID); err != nil {
					log.Printf("[PlaybookEngine] mark expansion processed failed account=%s: %v", accountID, err)
				}
			}
		}
	}
	return started, nil
}

func (e *Engine) matchingAccounts(ctx context.Context, pb *domain.Playbook) ([]string, error) {
	switch pb.TriggerType {
	case domain.TriggerHealthDrop:
		threshold := e.defaults.ScoreBelow
		if pb.TriggerConditions.ScoreBelow != nil {
			threshold = *pb.TriggerConditions.ScoreBelow
		}
		return e.store.AccountsBelowScore(ctx, threshold)
	case domain.TriggerChurnRisk:
		threshold := e.defaults.ChurnProbabilityAbove
		if pb.TriggerConditions.ChurnProbabilityAbove != nil {
			threshold = *pb.TriggerConditions.ChurnProbabilityAbove
		}
		return e.store.AccountsAboveChurnProbability(ctx, threshold)
	case domain.TriggerExpansion:
		return e.store.AccountsWithExpansionSignal(ctx)
	default:
		return nil, fmt.Errorf("unknown trigger type %q", pb.TriggerType)
	}
}

// StartExecution creates a running execution for the playbook against the
// account. A (playbook, account) pair that is already running is a no-op:
// the returned execution is nil with a nil error. Step 0 with a zero day
// offset executes synchronously before returning.
func (e *Engine) StartExecution(ctx context.Context, pb *domain.Playbook, accountID string) (*domain.PlaybookExecution, error) {
	if err := pb.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	exec := &domain.PlaybookExecution{
		PlaybookID:   pb.ID,
		AccountID:    accountID,
		CurrentStep:  0,
		TotalSteps:   len(pb.Steps),
		StepResults:  []domain.StepResult{},
		Status:       domain.ExecutionRunning,
		NextActionAt: now.AddDate(0, 0, pb.Steps[0].Day),
	}

	err := e.store.InsertExecution(ctx, exec)
	if errors.Is(err, ErrAlreadyRunning) {
		log.Printf("[PlaybookEngine] skipping duplicate execution playbook=%s account=%s", pb.ID, accountID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := e.store.IncrementExecutionCount(ctx, pb.ID); err != nil {
		log.Printf("[PlaybookEngine] execution count bump failed playbook=%s: %v", pb.ID, err)
	}

	if pb.Steps[0].Day == 0 {
		e.advance(ctx, exec, pb)
		if err := e.store.UpdateExecution(ctx, exec); err != nil {
			log.Printf("[PlaybookEngine] persist after step 0 failed exec=%s: %v", exec.ID, err)
		}
	}
	return exec, nil
}

// AdvancePending claims up to batchLimit due executions and advances each
// one step. Every claimed execution is persisted regardless of its step
// outcome; a dispatch failure is recorded, never retried in place.
func (e *Engine) AdvancePending(ctx context.Context, batchLimit int) (processed int, err error) {
	execs, err := e.store.ClaimPending(ctx, time.Now(), batchLimit)
	if err != nil {
		return 0, fmt.Errorf("advance pending: %w", err)
	}

	for i := range execs {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		exec := &execs[i]

		pb, err := e.store.GetPlaybook(ctx, exec.PlaybookID)
		if err != nil || pb == nil {
			now := time.Now()
			exec.Status = domain.ExecutionFailed
			exec.CompletedAt = &now
			if uerr := e.store.UpdateExecution(ctx, exec); uerr != nil {
				log.Printf("[PlaybookEngine] persist failed exec=%s: %v", exec.ID, uerr)
			}
			log.Printf("[PlaybookEngine] execution %s failed: playbook %s missing", exec.ID, exec.PlaybookID)
			processed++
			continue
		}

		e.advance(ctx, exec, pb)
		if err := e.store.UpdateExecution(ctx, exec); err != nil {
			log.Printf("[PlaybookEngine] persist failed exec=%s: %v", exec.ID, err)
		}
		processed++
	}
	return processed, nil
}

// advance executes the current step and moves the execution forward,
// completing it when the step list is exhausted. Mutates exec; the caller
// persists.
func (e *Engine) advance(ctx context.Context, exec *domain.PlaybookExecution, pb *domain.Playbook) {
	if exec.CurrentStep >= exec.TotalSteps || exec.CurrentStep >= len(pb.Steps) {
		e.complete(exec)
		return
	}

	step := pb.Steps[exec.CurrentStep]
	result := e.executeStep(ctx, exec.AccountID, exec.CurrentStep, step)
	exec.StepResults = append(exec.StepResults, result)

	next := exec.CurrentStep + 1
	if next >= exec.TotalSteps || next >= len(pb.Steps) {
		e.complete(exec)
		return
	}
	// Day offsets are absolute from execution start, so the wait until the
	// next step is the difference between consecutive offsets.
	delta := pb.Steps[next].Day - step.Day
	if delta < 0 {
		delta = 0
	}
	exec.NextActionAt = time.Now().AddDate(0, 0, delta)
	exec.CurrentStep = next
}

func (e *Engine) complete(exec *domain.PlaybookExecution) {
	now := time.Now()
	exec.Status = domain.ExecutionCompleted
	exec.CompletedAt = &now
}

// executeStep dispatches one step and reports its outcome. Dispatch is
// best-effort: failures are recorded in the result, and a panicking
// notifier is contained here rather than taking down the batch.
func (e *Engine) executeStep(ctx context.Context, accountID string, index int, step domain.PlaybookStep) (result domain.StepResult) {
	result = domain.StepResult{
		Step:       index,
		Action:     step.Action,
		ExecutedAt: time.Now().UTC(),
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[PlaybookEngine] step panic account=%s step=%d: %v", accountID, index, r)
			result.Status = "error"
			result.Details = fmt.Sprintf("panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	switch step.Action {
	case domain.ActionEmail:
		if e.notifier == nil {
			result.Status = "error"
			result.Details = "email notifier disabled"
			return result
		}
		if err := e.notifier.SendEmail(ctx, accountID, step.Subject, step.Details); err != nil {
			result.Status = "error"
			result.Details = err.Error()
			return result
		}
		result.Status = "sent"

	case domain.ActionInternal:
		if e.notifier == nil {
			result.Status = "alert_failed"
			return result
		}
		if err := e.notifier.SendAlert(ctx, accountID, step.Subject, step.Details); err != nil {
			result.Status = "alert_failed"
			result.Details = err.Error()
			return result
		}
		result.Status = "alerted"

	case domain.ActionInApp:
		result.Status = "queued"

	case domain.ActionCall:
		result.Status = "scheduled"

	default:
		log.Printf("[PlaybookEngine] unknown step action %q account=%s step=%d", step.Action, accountID, index)
		result.Status = "skipped"
	}
	return result
}
