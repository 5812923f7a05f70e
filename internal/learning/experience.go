// Package learning implements a persistent contextual UCB bandit over
// discretized prompt contexts, with reward shaping and experience
// replay.
package learning

import (
	"encoding/hex"
	"math"
	"time"

	"github.com/zeebo/blake3"

	"helmsman/internal/session"
)

// ContextHash fingerprints a decision situation from the prompt type
// and the first 100 characters of the prompt text. It buckets similar
// situations for the bandit; it is not a security boundary.
func ContextHash(promptType, promptText string) string {
	if len(promptText) > 100 {
		promptText = promptText[:100]
	}
	sum := blake3.Sum256([]byte(promptType + ":" + promptText))
	return hex.EncodeToString(sum[:8])
}

// Experience is a single (context, action, outcome, reward) record.
// Immutable once written; the on-disk log is append-only.
type Experience struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`

	ContextHash string `json:"context_hash"`
	PromptType  string `json:"prompt_type"`
	PromptText  string `json:"prompt_text"`

	ActionType  string `json:"action_type"`
	ActionValue string `json:"action_value"`

	Outcome        session.Outcome `json:"outcome"`
	OutcomeDetails string          `json:"outcome_details,omitempty"`

	Reward float64 `json:"reward"`

	GoalID             string  `json:"goal_id,omitempty"`
	GoalProgressBefore float64 `json:"goal_progress_before"`
	GoalProgressAfter  float64 `json:"goal_progress_after"`
}

// Reward shapes the reward for an action: a base from the immediate
// outcome plus half the goal-progress delta, clamped to [-1, 1].
// Progress values are fractions in [0, 1].
func Reward(outcome session.Outcome, progressBefore, progressAfter float64) float64 {
	var base float64
	switch outcome {
	case session.OutcomeSuccess:
		base = 0.5
	case session.OutcomeFailed:
		base = -0.5
	case session.OutcomeTimeout:
		base = -0.2
	}

	reward := base + (progressAfter-progressBefore)*0.5
	return math.Max(-1, math.Min(1, reward))
}

// ActionStats aggregates outcomes for one action value within one
// context. Derived from experiences and rebuildable by replay.
type ActionStats struct {
	ActionValue string  `json:"action_value"`
	Count       int     `json:"count"`
	TotalReward float64 `json:"total_reward"`
	Successes   int     `json:"successes"`
	Failures    int     `json:"failures"`
}

// MeanReward is the average reward observed for this action.
func (s *ActionStats) MeanReward() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.TotalReward / float64(s.Count)
}

// SuccessRate is the fraction of resolved outcomes that succeeded,
// 0.5 when nothing is known yet.
func (s *ActionStats) SuccessRate() float64 {
	total := s.Successes + s.Failures
	if total == 0 {
		return 0.5
	}
	return float64(s.Successes) / float64(total)
}

// UCBScore is mean reward plus an exploration bonus that shrinks as
// the action is tried more. Untried actions score +Inf so they are
// explored first.
func (s *ActionStats) UCBScore(totalCount int, explorationConstant float64) float64 {
	if s.Count == 0 {
		return math.Inf(1)
	}
	exploration := explorationConstant * math.Sqrt(math.Log(float64(totalCount))/float64(s.Count))
	return s.MeanReward() + exploration
}
