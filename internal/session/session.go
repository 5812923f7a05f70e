// Package session tracks per-session observations, actions, and agent
// lifecycle phases.
package session

import (
	"strings"
	"time"
)

// Phase is the agent lifecycle phase for a session. The machine is
// event-driven: any phase is reachable from any other.
type Phase string

// Agent lifecycle phases.
const (
	PhaseIdle      Phase = "idle"
	PhaseObserving Phase = "observing"
	PhasePlanning  Phase = "planning"
	PhaseExecuting Phase = "executing"
	PhaseWaiting   Phase = "waiting"
	PhaseCompleted Phase = "completed"
	PhaseStuck     Phase = "stuck"
)

// Outcome is the result of an action.
type Outcome string

// Action outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomePending Outcome = "pending"
	OutcomeTimeout Outcome = "timeout"
	OutcomeSkipped Outcome = "skipped"
)

// ParseOutcome normalizes an external outcome string. Unknown values
// classify as failed rather than erroring.
func ParseOutcome(s string) Outcome {
	switch Outcome(strings.ToLower(strings.TrimSpace(s))) {
	case OutcomeSuccess:
		return OutcomeSuccess
	case OutcomeTimeout:
		return OutcomeTimeout
	case OutcomePending:
		return OutcomePending
	case OutcomeSkipped:
		return OutcomeSkipped
	default:
		return OutcomeFailed
	}
}

var errorKeywords = []string{"error", "failed", "exception", "traceback"}

// Observation is a single snapshot of a session's screen. Derived
// fields are computed once at construction and never change.
type Observation struct {
	Timestamp     time.Time `json:"timestamp"`
	SessionID     string    `json:"session_id"`
	ScreenContent string    `json:"-"`
	PromptType    string    `json:"prompt_type,omitempty"`
	PromptText    string    `json:"prompt_text,omitempty"`

	HasError      bool `json:"has_error"`
	HasPermission bool `json:"has_permission"`
	HasQuestion   bool `json:"has_question"`
	LineCount     int  `json:"line_count"`
}

// NewObservation builds an observation and computes its derived fields.
func NewObservation(sessionID, screenContent, promptType, promptText string) Observation {
	obs := Observation{
		Timestamp:     time.Now(),
		SessionID:     sessionID,
		ScreenContent: screenContent,
		PromptType:    promptType,
		PromptText:    promptText,
	}
	if screenContent != "" {
		obs.LineCount = len(strings.Split(screenContent, "\n"))
		lower := strings.ToLower(screenContent)
		for _, kw := range errorKeywords {
			if strings.Contains(lower, kw) {
				obs.HasError = true
				break
			}
		}
	}
	obs.HasPermission = promptType == "permission"
	obs.HasQuestion = promptType == "question"
	return obs
}

// Action is a response the agent sent to a session. Its outcome is
// mutated exactly once when the watcher reports back.
type Action struct {
	Timestamp        time.Time `json:"timestamp"`
	ActionType       string    `json:"action_type"`
	ActionValue      string    `json:"action_value"`
	ObservationIndex int       `json:"observation_index"`
	SessionID        string    `json:"session_id"`
	ContextHash      string    `json:"context_hash,omitempty"`

	Outcome          Outcome   `json:"outcome"`
	OutcomeTimestamp time.Time `json:"outcome_timestamp,omitzero"`
	OutcomeDetails   string    `json:"outcome_details,omitempty"`
}

// MarkOutcome records the outcome of this action.
func (a *Action) MarkOutcome(outcome Outcome, details string) {
	a.Outcome = outcome
	a.OutcomeTimestamp = time.Now()
	a.OutcomeDetails = details
}

// historyLimit bounds per-session observation/action history.
const historyLimit = 100

// stuckAfter is how long without rewarded progress counts as stuck.
const stuckAfter = 5 * time.Minute

// State is the complete tracked state for one session.
type State struct {
	SessionID      string
	Phase          Phase
	PhaseChangedAt time.Time

	observations []Observation
	actions      []Action

	TotalObservations int
	TotalActions      int
	SuccessfulActions int
	FailedActions     int

	SimilarObservations int
	LastProgressAt      time.Time

	CurrentGoalID string
}

func newState(sessionID string) *State {
	now := time.Now()
	return &State{
		SessionID:      sessionID,
		Phase:          PhaseIdle,
		PhaseChangedAt: now,
		LastProgressAt: now,
	}
}

func (s *State) addObservation(obs Observation) int {
	if len(s.observations) == historyLimit {
		s.observations = s.observations[1:]
	}
	s.observations = append(s.observations, obs)
	s.TotalObservations++
	return s.TotalObservations - 1
}

func (s *State) addAction(action Action) {
	if len(s.actions) == historyLimit {
		s.actions = s.actions[1:]
	}
	s.actions = append(s.actions, action)
	s.TotalActions++
}

// LatestObservation returns the most recent observation, or nil.
func (s *State) LatestObservation() *Observation {
	if len(s.observations) == 0 {
		return nil
	}
	return &s.observations[len(s.observations)-1]
}

// LatestAction returns the most recent action, or nil.
func (s *State) LatestAction() *Action {
	if len(s.actions) == 0 {
		return nil
	}
	return &s.actions[len(s.actions)-1]
}

// SetPhase transitions the session to a new phase.
func (s *State) SetPhase(phase Phase) {
	if phase == s.Phase {
		return
	}
	s.Phase = phase
	s.PhaseChangedAt = time.Now()
}

// SuccessRate is the fraction of resolved actions that succeeded.
// With no resolved actions yet it reports 1.0.
func (s *State) SuccessRate() float64 {
	total := s.SuccessfulActions + s.FailedActions
	if total == 0 {
		return 1.0
	}
	return float64(s.SuccessfulActions) / float64(total)
}

// IsStuck reports whether the session looks unable to progress: three
// or more similar observations in a row, or no rewarded progress
// within the stuck window.
func (s *State) IsStuck() bool {
	if s.SimilarObservations >= 3 {
		return true
	}
	return time.Since(s.LastProgressAt) > stuckAfter
}

// Status is the read-only summary of a session for presentation.
type Status struct {
	SessionID            string  `json:"session_id"`
	Phase                Phase   `json:"phase"`
	PhaseChangedAt       string  `json:"phase_changed_at"`
	TotalObservations    int     `json:"total_observations"`
	TotalActions         int     `json:"total_actions"`
	SuccessfulActions    int     `json:"successful_actions"`
	FailedActions        int     `json:"failed_actions"`
	SuccessRate          float64 `json:"success_rate"`
	IsStuck              bool    `json:"is_stuck"`
	CurrentGoalID        string  `json:"current_goal_id,omitempty"`
	SecondsSinceProgress float64 `json:"seconds_since_progress"`
}

// Status returns the presentation summary for this session.
func (s *State) Status() Status {
	return Status{
		SessionID:            s.SessionID,
		Phase:                s.Phase,
		PhaseChangedAt:       s.PhaseChangedAt.UTC().Format(time.RFC3339),
		TotalObservations:    s.TotalObservations,
		TotalActions:         s.TotalActions,
		SuccessfulActions:    s.SuccessfulActions,
		FailedActions:        s.FailedActions,
		SuccessRate:          s.SuccessRate(),
		IsStuck:              s.IsStuck(),
		CurrentGoalID:        s.CurrentGoalID,
		SecondsSinceProgress: time.Since(s.LastProgressAt).Seconds(),
	}
}
