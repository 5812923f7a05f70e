package session

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Tracker maintains state for all monitored sessions. Sessions are
// created lazily on first observation; none of its operations fail.
type Tracker struct {
	sessions map[string]*State
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*State)}
}

// State returns the state for a session, creating it if needed.
func (t *Tracker) State(sessionID string) *State {
	state, ok := t.sessions[sessionID]
	if !ok {
		state = newState(sessionID)
		t.sessions[sessionID] = state
		log.Info().Str("session_id", shortID(sessionID)).Msg("session state created")
	}
	return state
}

// RecordObservation records a screen snapshot for a session and
// updates stuck-detection counters.
func (t *Tracker) RecordObservation(sessionID, screenContent, promptType, promptText string) Observation {
	state := t.State(sessionID)
	obs := NewObservation(sessionID, screenContent, promptType, promptText)

	if prev := state.LatestObservation(); prev != nil {
		if similar(obs, *prev) {
			state.SimilarObservations++
		} else {
			state.SimilarObservations = 0
		}
	}

	state.addObservation(obs)

	if promptType != "" {
		state.SetPhase(PhaseObserving)
	}
	return obs
}

// RecordAction records an action taken for a session and moves the
// session to the waiting phase.
func (t *Tracker) RecordAction(sessionID, actionType, actionValue string, observationIndex int, contextHash string) Action {
	state := t.State(sessionID)
	action := Action{
		Timestamp:        time.Now(),
		ActionType:       actionType,
		ActionValue:      actionValue,
		ObservationIndex: observationIndex,
		SessionID:        sessionID,
		ContextHash:      contextHash,
		Outcome:          OutcomePending,
	}
	state.addAction(action)
	state.SetPhase(PhaseWaiting)
	return action
}

// RecordOutcome resolves the most recent action and updates progress
// metrics and phase.
func (t *Tracker) RecordOutcome(sessionID string, outcome Outcome, details string) {
	state := t.State(sessionID)
	action := state.LatestAction()
	if action == nil {
		return
	}
	action.MarkOutcome(outcome, details)

	switch outcome {
	case OutcomeSuccess:
		state.SuccessfulActions++
		state.LastProgressAt = time.Now()
		state.SimilarObservations = 0
		state.SetPhase(PhaseObserving)
	case OutcomeFailed:
		state.FailedActions++
		if state.IsStuck() {
			state.SetPhase(PhaseStuck)
		} else {
			state.SetPhase(PhaseObserving)
		}
	}
}

// SetPhase force-sets the phase for a session.
func (t *Tracker) SetPhase(sessionID string, phase Phase) {
	t.State(sessionID).SetPhase(phase)
}

// Remove drops state for a closed session. Goals and plans persist
// independently.
func (t *Tracker) Remove(sessionID string) {
	if _, ok := t.sessions[sessionID]; ok {
		delete(t.sessions, sessionID)
		log.Info().Str("session_id", shortID(sessionID)).Msg("session state removed")
	}
}

// Sessions returns the tracked states keyed by session id.
func (t *Tracker) Sessions() map[string]*State {
	out := make(map[string]*State, len(t.sessions))
	for id, state := range t.sessions {
		out[id] = state
	}
	return out
}

// TrackerStatus is the aggregate read view over all sessions.
type TrackerStatus struct {
	ActiveSessions int               `json:"active_sessions"`
	Sessions       map[string]Status `json:"sessions"`
}

// Status returns the aggregate summary for presentation.
func (t *Tracker) Status() TrackerStatus {
	sessions := make(map[string]Status, len(t.sessions))
	for id, state := range t.sessions {
		sessions[id] = state.Status()
	}
	return TrackerStatus{ActiveSessions: len(t.sessions), Sessions: sessions}
}

// similar reports whether two observations look alike for stuck
// detection: same prompt type, line counts within 5, and identical
// trailing five lines.
func similar(a, b Observation) bool {
	if a.PromptType != b.PromptType {
		return false
	}
	if diff := a.LineCount - b.LineCount; diff > 5 || diff < -5 {
		return false
	}
	return tailLines(a.ScreenContent) == tailLines(b.ScreenContent)
}

func tailLines(content string) string {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
