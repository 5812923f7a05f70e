// Package orchestrator wires the state tracker, goal and plan stores,
// learning engine, and decision arbiter into the single entry point
// the watcher layer talks to.
package orchestrator

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"helmsman/internal/arbiter"
	"helmsman/internal/goal"
	"helmsman/internal/learning"
	"helmsman/internal/plan"
	"helmsman/internal/session"
)

// ActionResult is a decision that the watcher should act on.
type ActionResult struct {
	SessionID   string           `json:"session_id"`
	ActionType  string           `json:"action_type"`
	ActionValue string           `json:"action_value"`
	Decision    arbiter.Decision `json:"decision"`
}

// Orchestrator coordinates one decision cycle per observation. A
// single mutex keeps the watcher and the status server from
// interleaving; per-session granularity is not needed at this scale.
type Orchestrator struct {
	mu sync.Mutex

	tracker  *session.Tracker
	goals    *goal.Store
	plans    *plan.Store
	arbiter  *arbiter.Arbiter
	learning *learning.Engine
}

// New assembles an orchestrator and primes the arbiter with learned
// recommendations.
func New(tracker *session.Tracker, goals *goal.Store, plans *plan.Store, arb *arbiter.Arbiter, eng *learning.Engine) *Orchestrator {
	o := &Orchestrator{
		tracker:  tracker,
		goals:    goals,
		plans:    plans,
		arbiter:  arb,
		learning: eng,
	}
	o.syncRecommendations()
	return o
}

// ProcessObservation records a screen snapshot and, when it carries a
// prompt, decides what to do about it. Returns nil when no action
// should be sent to the session.
func (o *Orchestrator) ProcessObservation(ctx context.Context, sessionID, screenContent, promptType, promptText string) *ActionResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.tracker.RecordObservation(sessionID, screenContent, promptType, promptText)
	state := o.tracker.State(sessionID)

	if promptType == "" {
		state.SetPhase(session.PhaseObserving)
		return nil
	}

	goalDescription := ""
	activeGoal := o.goals.ActiveGoal(sessionID)
	if activeGoal != nil {
		goalDescription = activeGoal.Description
	}

	decision := o.arbiter.Decide(ctx, arbiter.DecideParams{
		PromptType:      promptType,
		PromptText:      promptText,
		Context:         screenContent,
		GoalDescription: goalDescription,
		IsStuck:         state.IsStuck(),
		SimilarCount:    state.SimilarObservations,
	})

	log.Debug().
		Str("session_id", shortID(sessionID)).
		Str("tier", string(decision.Tier)).
		Str("action_type", decision.ActionType).
		Float64("confidence", decision.Confidence).
		Msg("decision made")

	switch decision.ActionType {
	case "wait":
		state.SetPhase(session.PhaseIdle)
		return nil
	case "replan":
		o.handleReplan(ctx, sessionID, activeGoal, decision.Reason)
		return nil
	}

	o.tracker.RecordAction(sessionID, decision.ActionType, decision.ActionValue,
		state.TotalObservations-1, decision.ContextHash)

	return &ActionResult{
		SessionID:   sessionID,
		ActionType:  decision.ActionType,
		ActionValue: decision.ActionValue,
		Decision:    decision,
	}
}

// RecordOutcome resolves the session's latest action, feeds the
// experience to the learning engine, and refreshes the arbiter's
// recommendations.
func (o *Orchestrator) RecordOutcome(ctx context.Context, sessionID, outcomeStr, details string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	outcome := session.ParseOutcome(outcomeStr)
	state := o.tracker.State(sessionID)
	action := state.LatestAction()
	if action == nil {
		log.Warn().Str("session_id", shortID(sessionID)).Msg("outcome with no recorded action")
		return
	}

	goalID := ""
	progressBefore, progressAfter := 0.0, 0.0
	if activeGoal := o.goals.ActiveGoal(sessionID); activeGoal != nil {
		goalID = activeGoal.ID
		if activeGoal.EstimatedSteps > 0 {
			progressBefore = float64(activeGoal.CompletedSteps-1) / float64(activeGoal.EstimatedSteps)
			if progressBefore < 0 {
				progressBefore = 0
			}
		}
		progressAfter = activeGoal.ProgressPercent() / 100
	}

	promptType, promptText := "", ""
	if obs := state.LatestObservation(); obs != nil {
		promptType = obs.PromptType
		promptText = obs.PromptText
	}
	contextHash := action.ContextHash
	if contextHash == "" {
		contextHash = learning.ContextHash(promptType, promptText)
	}

	o.learning.RecordExperience(ctx, learning.RecordParams{
		SessionID:      sessionID,
		ContextHash:    contextHash,
		PromptType:     promptType,
		PromptText:     promptText,
		ActionType:     action.ActionType,
		ActionValue:    action.ActionValue,
		Outcome:        outcome,
		OutcomeDetails: details,
		GoalID:         goalID,
		ProgressBefore: progressBefore,
		ProgressAfter:  progressAfter,
	})

	o.tracker.RecordOutcome(sessionID, outcome, details)

	if outcome == session.OutcomeSuccess && goalID != "" {
		if activePlan := o.plans.ActivePlan(goalID); activePlan != nil {
			if step := activePlan.CurrentStep(); step != nil {
				step.ActionsTaken++
				o.plans.Save(ctx, activePlan)
			}
		}
	}

	o.syncRecommendations()
}

// SetGoal creates a goal for a session and moves it to the planning
// phase.
func (o *Orchestrator) SetGoal(ctx context.Context, p goal.NewGoal) *goal.Goal {
	o.mu.Lock()
	defer o.mu.Unlock()

	g := o.goals.Create(ctx, p)
	g.Start()
	o.goals.Save(ctx, g)

	state := o.tracker.State(p.SessionID)
	state.CurrentGoalID = g.ID
	state.SetPhase(session.PhasePlanning)
	return g
}

// CreatePlan creates and starts a plan for a goal and moves the
// session to the executing phase.
func (o *Orchestrator) CreatePlan(ctx context.Context, goalID string, steps []string) *plan.Plan {
	o.mu.Lock()
	defer o.mu.Unlock()

	g := o.goals.Get(goalID)
	if g == nil {
		log.Warn().Str("goal_id", shortID(goalID)).Msg("plan requested for unknown goal")
		return nil
	}

	p := o.plans.Create(ctx, goalID, g.SessionID, steps)
	p.Start()
	o.plans.Save(ctx, p)

	g.EstimatedSteps = len(steps)
	o.goals.Save(ctx, g)

	o.tracker.SetPhase(g.SessionID, session.PhaseExecuting)
	return p
}

// CompleteCurrentStep advances the goal's active plan. When the plan
// finishes with no failed steps the goal completes and the session
// phase becomes completed.
func (o *Orchestrator) CompleteCurrentStep(ctx context.Context, goalID, notes string) *plan.Step {
	o.mu.Lock()
	defer o.mu.Unlock()

	g := o.goals.Get(goalID)
	activePlan := o.plans.ActivePlan(goalID)
	if g == nil || activePlan == nil {
		return nil
	}

	if notes != "" {
		if step := activePlan.CurrentStep(); step != nil {
			step.OutcomeNotes = notes
		}
	}
	next := o.plans.Advance(ctx, activePlan.ID)

	g.CompletedSteps = activePlan.CompletedSteps()
	o.goals.Save(ctx, g)

	if next == nil && activePlan.FailedSteps() == 0 {
		o.goals.Complete(ctx, g.ID, "All plan steps completed")
		o.tracker.SetPhase(g.SessionID, session.PhaseCompleted)
	}
	return next
}

// RemoveSession drops tracker state and in-memory goals/plans for a
// closed session. Persisted records remain.
func (o *Orchestrator) RemoveSession(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, g := range o.goals.SessionGoals(sessionID) {
		o.plans.RemoveGoalPlans(g.ID)
	}
	o.goals.RemoveSessionGoals(sessionID)
	o.tracker.Remove(sessionID)
}

// SessionStatus is the full per-session view: tracker state plus the
// active goal and plan.
type SessionStatus struct {
	Session session.Status `json:"session"`
	Goal    *goal.Goal     `json:"goal,omitempty"`
	Plan    *plan.Plan     `json:"plan,omitempty"`
	Stuck   bool           `json:"stuck"`
}

// GetSessionStatus returns the combined status for one session, or nil
// when the session is unknown.
func (o *Orchestrator) GetSessionStatus(sessionID string) *SessionStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	states := o.tracker.Sessions()
	state, ok := states[sessionID]
	if !ok {
		return nil
	}

	status := &SessionStatus{
		Session: state.Status(),
		Stuck:   state.IsStuck(),
	}
	if g := o.goals.ActiveGoal(sessionID); g != nil {
		status.Goal = g
		status.Plan = o.plans.ActivePlan(g.ID)
	}
	return status
}

// FullStatus aggregates every subsystem's status view.
type FullStatus struct {
	Sessions session.TrackerStatus `json:"sessions"`
	Goals    goal.StoreStatus      `json:"goals"`
	Plans    plan.StoreStatus      `json:"plans"`
	Learning learning.EngineStatus `json:"learning"`
}

// GetFullStatus returns the aggregate view for the status server.
func (o *Orchestrator) GetFullStatus() FullStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	return FullStatus{
		Sessions: o.tracker.Status(),
		Goals:    o.goals.Status(),
		Plans:    o.plans.Status(),
		Learning: o.learning.Status(),
	}
}

// handleReplan invalidates the goal's active plan and notes the goal.
// The caller decides the new plan later; replanning never auto-creates
// steps.
func (o *Orchestrator) handleReplan(ctx context.Context, sessionID string, g *goal.Goal, reason string) {
	if g == nil {
		log.Warn().Str("session_id", shortID(sessionID)).Msg("replan decision with no active goal")
		return
	}
	if activePlan := o.plans.ActivePlan(g.ID); activePlan != nil {
		activePlan.Invalidate(reason)
		o.plans.Save(ctx, activePlan)
	}
	g.AddProgress("Replan requested: " + reason)
	o.goals.Save(ctx, g)
	o.tracker.SetPhase(sessionID, session.PhasePlanning)
}

// syncRecommendations pushes the learning engine's current rankings
// into the arbiter wholesale.
func (o *Orchestrator) syncRecommendations() {
	o.arbiter.SetRecommendations(o.learning.AllRecommendations())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
