package domain

import (
	"fmt"
	"time"
)

// TriggerType enumerates the conditions a playbook can fire on.
type TriggerType string

const (
	TriggerHealthDrop TriggerType = "health_drop"
	TriggerChurnRisk  TriggerType = "churn_risk"
	TriggerExpansion  TriggerType = "expansion"
)

// StepAction enumerates the kinds of intervention step a playbook can run.
type StepAction string

const (
	ActionEmail    StepAction = "email"
	ActionInternal StepAction = "internal"
	ActionInApp    StepAction = "in_app"
	ActionCall     StepAction = "call"
)

// PlaybookStatus enumerates playbook states.
type PlaybookStatus string

const (
	PlaybookActive   PlaybookStatus = "active"
	PlaybookInactive PlaybookStatus = "inactive"
)

// TriggerConditions holds the thresholds interpreted per trigger type.
// Fields are optional; zero values fall back to deployment defaults.
type TriggerConditions struct {
	ScoreBelow            *int     `json:"score_below,omitempty"`             // health_drop
	ChurnProbabilityAbove *float64 `json:"churn_probability_above,omitempty"` // churn_risk
}

// PlaybookStep is one day-offset intervention step.
type PlaybookStep struct {
	Day     int        `json:"day"`
	Action  StepAction `json:"action"`
	Subject string     `json:"subject,omitempty"`
	Details string     `json:"details,omitempty"`
}

// Playbook is an ordered set of automated intervention steps fired by a
// retention risk trigger.
type Playbook struct {
	ID                string            `json:"id" db:"id"`
	Name              string            `json:"name" db:"name"`
	TriggerType       TriggerType       `json:"trigger_type" db:"trigger_type"`
	TriggerConditions TriggerConditions `json:"trigger_conditions" db:"trigger_conditions"`
	Steps             []PlaybookStep    `json:"steps" db:"steps"`
	AutoExecute       bool              `json:"auto_execute" db:"auto_execute"`
	Status            PlaybookStatus    `json:"status" db:"status"`
	ExecutionCount    int               `json:"execution_count" db:"execution_count"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at" db:"updated_at"`
}

// Validate checks playbook configuration at load time. Steps must exist and
// be ordered by ascending day offset.
func (p *Playbook) Validate() error {
	switch p.TriggerType {
	case TriggerHealthDrop, TriggerChurnRisk, TriggerExpansion:
	default:
		return fmt.Errorf("playbook %s: unknown trigger type %q", p.ID, p.TriggerType)
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("playbook %s: has no steps", p.ID)
	}
	prev := -1
	for i, step := range p.Steps {
		if step.Day < 0 {
			return fmt.Errorf("playbook %s: step %d has negative day offset", p.ID, i)
		}
		if step.Day < prev {
			return fmt.Errorf("playbook %s: steps not ordered by ascending day (step %d)", p.ID, i)
		}
		prev = step.Day
	}
	return nil
}

// ExecutionStatus enumerates playbook execution states. Running is the only
// non-terminal state.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// StepResult is one entry in an execution's append-only step log.
type StepResult struct {
	Step       int        `json:"step"`
	Action     StepAction `json:"action"`
	ExecutedAt time.Time  `json:"executed_at"`
	Status     string     `json:"status"` // sent, alerted, alert_failed, queued, scheduled, skipped, error
	Details    string     `json:"details,omitempty"`
}

// PlaybookExecution is one running instance of a playbook against one
// account. At most one execution per (playbook, account) pair may be
// running at a time; the store enforces this with a partial unique index.
type PlaybookExecution struct {
	ID           string          `json:"id" db:"id"`
	PlaybookID   string          `json:"playbook_id" db:"playbook_id"`
	AccountID    string          `json:"account_id" db:"account_id"`
	CurrentStep  int             `json:"current_step" db:"current_step"`
	TotalSteps   int             `json:"total_steps" db:"total_steps"`
	StepResults  []StepResult    `json:"step_results" db:"step_results"`
	Status       ExecutionStatus `json:"status" db:"status"`
	NextActionAt time.Time       `json:"next_action_at" db:"next_action_at"`
	CompletedAt  *time.Time      `json:"completed_at" db:"completed_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true once an execution can no longer transition.
func (e *PlaybookExecution) IsTerminal() bool {
	return e.Status == ExecutionCompleted || e.Status == ExecutionFailed
}
