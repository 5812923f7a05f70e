// Package plan manages step-sequenced plans toward goals, including
// replanning.
package plan

import (
	"time"

	"github.com/google/uuid"
)

// StepStatus is the lifecycle state of a plan step.
type StepStatus string

// Plan step states. Completed, failed, and skipped are terminal.
const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepSkipped    StepStatus = "skipped"
)

// maxStepRetries caps retry attempts per step before the caller must
// escalate (skip or replan).
const maxStepRetries = 3

// Step is a single step in a plan. Order is its fixed position in the
// owning plan's sequence.
type Step struct {
	ID          string     `json:"step_id"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
	Order       int        `json:"order"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	OutcomeNotes string `json:"outcome_notes,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	ActionsTaken int `json:"actions_taken"`
	Retries      int `json:"retries"`
}

// Start marks the step in progress.
func (s *Step) Start() {
	s.Status = StepInProgress
	now := time.Now()
	s.StartedAt = &now
}

// Complete marks the step completed with an optional note.
func (s *Step) Complete(notes string) {
	s.Status = StepCompleted
	now := time.Now()
	s.CompletedAt = &now
	if notes != "" {
		s.OutcomeNotes = notes
	}
}

// Fail marks the step failed with an error message.
func (s *Step) Fail(errMsg string) {
	s.Status = StepFailed
	now := time.Now()
	s.CompletedAt = &now
	s.ErrorMessage = errMsg
}

// Skip marks the step skipped with a reason.
func (s *Step) Skip(reason string) {
	s.Status = StepSkipped
	now := time.Now()
	s.CompletedAt = &now
	s.OutcomeNotes = reason
}

func (s *Step) retry() {
	s.Retries++
	s.Status = StepInProgress
	s.ErrorMessage = ""
}

// IsDone reports whether the step reached a terminal state.
func (s *Step) IsDone() bool {
	return s.Status == StepCompleted || s.Status == StepFailed || s.Status == StepSkipped
}

// DurationSeconds is how long the step has been (or was) running.
func (s *Step) DurationSeconds() float64 {
	if s.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if s.CompletedAt != nil {
		end = *s.CompletedAt
	}
	return end.Sub(*s.StartedAt).Seconds()
}

// Plan is an ordered step sequence toward a goal. A goal may
// accumulate several plans over time through replanning, but at most
// one is active.
type Plan struct {
	ID        string `json:"plan_id"`
	GoalID    string `json:"goal_id"`
	SessionID string `json:"session_id"`
	Steps     []Step `json:"steps"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	IsActive      bool     `json:"is_active"`
	ReplanCount   int      `json:"replan_count"`
	ReplanReasons []string `json:"replan_reasons,omitempty"`

	CurrentStepIndex int `json:"current_step_index"`
}

// AddStep appends a pending step.
func (p *Plan) AddStep(description string) *Step {
	p.Steps = append(p.Steps, Step{
		ID:          uuid.NewString(),
		Description: description,
		Status:      StepPending,
		Order:       len(p.Steps),
	})
	return &p.Steps[len(p.Steps)-1]
}

// AddSteps appends multiple pending steps.
func (p *Plan) AddSteps(descriptions []string) {
	for _, desc := range descriptions {
		p.AddStep(desc)
	}
}

// Start begins executing the plan at its first step.
func (p *Plan) Start() {
	now := time.Now()
	p.StartedAt = &now
	if len(p.Steps) > 0 {
		p.Steps[0].Start()
	}
}

// CurrentStep returns the step being executed, or nil when the plan
// has run past its last step.
func (p *Plan) CurrentStep() *Step {
	if p.CurrentStepIndex >= 0 && p.CurrentStepIndex < len(p.Steps) {
		return &p.Steps[p.CurrentStepIndex]
	}
	return nil
}

// Advance completes the current step if still in progress and moves to
// the next one, starting it. Returns nil when no steps remain; the
// plan is then stamped completed.
func (p *Plan) Advance() *Step {
	if current := p.CurrentStep(); current != nil && current.Status == StepInProgress {
		current.Complete("")
	}

	p.CurrentStepIndex++

	if next := p.CurrentStep(); next != nil {
		next.Start()
		return next
	}

	now := time.Now()
	p.CompletedAt = &now
	return nil
}

// MarkStepFailed fails the current step with an error message.
func (p *Plan) MarkStepFailed(errMsg string) {
	if current := p.CurrentStep(); current != nil {
		current.Fail(errMsg)
	}
}

// RetryCurrentStep retries the current step, returning false once the
// retry cap is reached; the step is left untouched in that case and
// the caller must skip or replan.
func (p *Plan) RetryCurrentStep() bool {
	current := p.CurrentStep()
	if current == nil || current.Retries >= maxStepRetries {
		return false
	}
	current.retry()
	return true
}

// SkipCurrentStep skips the current step with a reason and advances.
func (p *Plan) SkipCurrentStep(reason string) {
	if current := p.CurrentStep(); current != nil {
		current.Skip(reason)
	}
	p.Advance()
}

// Invalidate deactivates the plan, recording the reason. Used both for
// explicit replanning and when superseded by a newer plan.
func (p *Plan) Invalidate(reason string) {
	p.IsActive = false
	p.ReplanReasons = append(p.ReplanReasons, reason)
	now := time.Now()
	p.CompletedAt = &now
}

// IsDone reports whether the plan finished or was invalidated.
func (p *Plan) IsDone() bool {
	return p.CompletedAt != nil || !p.IsActive
}

// ProgressPercent is the completed-step fraction as a percentage.
func (p *Plan) ProgressPercent() float64 {
	if len(p.Steps) == 0 {
		return 0
	}
	return float64(p.CompletedSteps()) / float64(len(p.Steps)) * 100
}

// CompletedSteps counts steps that completed successfully.
func (p *Plan) CompletedSteps() int {
	n := 0
	for i := range p.Steps {
		if p.Steps[i].Status == StepCompleted {
			n++
		}
	}
	return n
}

// FailedSteps counts steps that failed.
func (p *Plan) FailedSteps() int {
	n := 0
	for i := range p.Steps {
		if p.Steps[i].Status == StepFailed {
			n++
		}
	}
	return n
}
