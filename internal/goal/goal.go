// Package goal manages hierarchical goals per session with durable
// persistence.
package goal

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a goal.
type Status string

// Goal lifecycle states. Completed and failed are terminal.
const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPaused    Status = "paused"
)

// Goal is an objective an agent pursues for a session. Goals form a
// forest: a subgoal carries its parent's id and appears in the
// parent's subgoal list.
type Goal struct {
	ID          string     `json:"goal_id"`
	SessionID   string     `json:"session_id"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ParentID   string   `json:"parent_id,omitempty"`
	SubgoalIDs []string `json:"subgoal_ids,omitempty"`

	SuccessCriteria []string `json:"success_criteria,omitempty"`
	CriteriaMet     []bool   `json:"criteria_met,omitempty"`

	ProgressNotes  []string `json:"progress_notes,omitempty"`
	EstimatedSteps int      `json:"estimated_steps"`
	CompletedSteps int      `json:"completed_steps"`

	Tags     []string `json:"tags,omitempty"`
	Priority int      `json:"priority"`
}

// Start marks the goal active.
func (g *Goal) Start() {
	g.Status = StatusActive
	now := time.Now()
	g.StartedAt = &now
}

// Complete marks the goal completed with an optional note.
func (g *Goal) Complete(notes string) {
	g.Status = StatusCompleted
	now := time.Now()
	g.CompletedAt = &now
	if notes != "" {
		g.ProgressNotes = append(g.ProgressNotes, "[COMPLETED] "+notes)
	}
}

// Fail marks the goal failed with a reason.
func (g *Goal) Fail(reason string) {
	g.Status = StatusFailed
	now := time.Now()
	g.CompletedAt = &now
	g.ProgressNotes = append(g.ProgressNotes, "[FAILED] "+reason)
}

// Pause pauses an active goal.
func (g *Goal) Pause(reason string) {
	g.Status = StatusPaused
	if reason != "" {
		g.ProgressNotes = append(g.ProgressNotes, "[PAUSED] "+reason)
	}
}

// Resume returns a paused goal to active.
func (g *Goal) Resume() {
	if g.Status == StatusPaused {
		g.Status = StatusActive
		g.ProgressNotes = append(g.ProgressNotes, "[RESUMED]")
	}
}

// AddProgress appends a timestamped progress note.
func (g *Goal) AddProgress(note string) {
	g.ProgressNotes = append(g.ProgressNotes, fmt.Sprintf("[%s] %s", time.Now().Format("15:04"), note))
}

// MarkCriterion marks a success criterion met or unmet. Out-of-range
// indexes are ignored.
func (g *Goal) MarkCriterion(index int, met bool) {
	if index >= 0 && index < len(g.CriteriaMet) {
		g.CriteriaMet[index] = met
	}
}

func (g *Goal) addSubgoalID(id string) {
	for _, existing := range g.SubgoalIDs {
		if existing == id {
			return
		}
	}
	g.SubgoalIDs = append(g.SubgoalIDs, id)
}

// IsActive reports whether the goal is currently being pursued.
func (g *Goal) IsActive() bool {
	return g.Status == StatusActive
}

// IsDone reports whether the goal reached a terminal state.
func (g *Goal) IsDone() bool {
	return g.Status == StatusCompleted || g.Status == StatusFailed
}

// ProgressPercent blends the criteria-met fraction with the
// step-completion fraction. With only one signal present that signal
// is used alone; with neither it is 0. Always within [0, 100].
func (g *Goal) ProgressPercent() float64 {
	var criteria float64
	if len(g.CriteriaMet) > 0 {
		met := 0
		for _, ok := range g.CriteriaMet {
			if ok {
				met++
			}
		}
		criteria = float64(met) / float64(len(g.CriteriaMet))
	}

	var steps float64
	if g.EstimatedSteps > 0 {
		steps = float64(g.CompletedSteps) / float64(g.EstimatedSteps)
		if steps > 1 {
			steps = 1
		}
	}

	switch {
	case len(g.CriteriaMet) > 0 && g.EstimatedSteps > 0:
		return (criteria + steps) / 2 * 100
	case len(g.CriteriaMet) > 0:
		return criteria * 100
	case g.EstimatedSteps > 0:
		return steps * 100
	default:
		return 0
	}
}

// DurationSeconds is how long the goal has been (or was) active.
func (g *Goal) DurationSeconds() float64 {
	if g.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if g.CompletedAt != nil {
		end = *g.CompletedAt
	}
	return end.Sub(*g.StartedAt).Seconds()
}
