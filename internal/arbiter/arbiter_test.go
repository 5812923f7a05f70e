package arbiter

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helmsman/internal/learning"
	"helmsman/internal/responder"
)

type stubAdvisor struct {
	canCall bool
	reply   string
	err     error
	calls   int
}

func (s *stubAdvisor) CanCall() bool { return s.canCall }

func (s *stubAdvisor) Call(ctx context.Context, prompt string) (string, error) {
	s.calls++
	return s.reply, s.err
}

func newTestArbiter(adv Advisor) *Arbiter {
	r := responder.New(true)
	return New(r, r, adv, true)
}

func TestPermissionSafeEditApproved(t *testing.T) {
	a := newTestArbiter(nil)

	d := a.Decide(context.Background(), DecideParams{
		PromptType: "permission",
		PromptText: "Claude wants to edit file.py",
		Context:    "Do you want to proceed?\n1. Yes\n2. No",
	})

	assert.Equal(t, TierRules, d.Tier)
	assert.Equal(t, "approve", d.ActionType)
	assert.Equal(t, "1", d.ActionValue)
	assert.InDelta(t, 0.9, d.Confidence, 1e-9)
	assert.NotEmpty(t, d.ContextHash)
}

func TestPermissionDangerousCommandDenied(t *testing.T) {
	a := newTestArbiter(nil)

	d := a.Decide(context.Background(), DecideParams{
		PromptType: "permission",
		PromptText: "Claude wants to run: rm -rf /",
	})

	assert.Equal(t, TierRules, d.Tier)
	assert.Equal(t, "deny", d.ActionType)
	assert.Equal(t, "2", d.ActionValue)
	assert.InDelta(t, 0.95, d.Confidence, 1e-9)
}

func TestContinuationPrompt(t *testing.T) {
	a := newTestArbiter(nil)

	d := a.Decide(context.Background(), DecideParams{
		PromptType: "continuation",
		PromptText: "Stopped",
	})

	assert.Equal(t, TierRules, d.Tier)
	assert.Equal(t, "continue", d.ActionType)
	assert.Equal(t, "continue", d.ActionValue)
	assert.InDelta(t, 0.9, d.Confidence, 1e-9)
}

func TestCompletedPromptBelowThresholdFallsBack(t *testing.T) {
	a := newTestArbiter(nil)

	// The completed rule scores 0.6, under the rules threshold, so it
	// survives only as the fallback.
	d := a.Decide(context.Background(), DecideParams{
		PromptType: "completed",
		PromptText: "All done",
	})

	assert.Equal(t, TierFallback, d.Tier)
	assert.Equal(t, "wait", d.ActionType)
	assert.InDelta(t, 0.6, d.Confidence, 1e-9)
}

func TestLearnedRecommendationUsedForUnmatchedPermission(t *testing.T) {
	r := responder.New(false) // unmatched permissions defer, scoring 0.5
	a := New(r, r, nil, true)

	promptText := "Claude wants to frobnicate the widget"
	hash := learning.ContextHash("permission", promptText)
	a.SetRecommendations(map[string][]learning.ScoredAction{
		hash: {{ActionValue: "1", Score: 1.6}},
	})

	d := a.Decide(context.Background(), DecideParams{
		PromptType: "permission",
		PromptText: promptText,
	})

	assert.Equal(t, TierUCB, d.Tier)
	assert.Equal(t, "approve", d.ActionType)
	assert.Equal(t, "1", d.ActionValue)
	assert.InDelta(t, 0.8, d.Confidence, 1e-9)
}

func TestUCBConfidenceCappedAtOne(t *testing.T) {
	d, ok := newTestArbiter(nil).decideByLearning("h")
	assert.False(t, ok)
	_ = d

	a := newTestArbiter(nil)
	a.SetRecommendations(map[string][]learning.ScoredAction{
		"h": {{ActionValue: "continue", Score: 5.0}},
	})
	got, ok := a.decideByLearning("h")
	require.True(t, ok)
	assert.InDelta(t, 1.0, got.Confidence, 1e-9)
	assert.Equal(t, "continue", got.ActionType)
}

func TestAdvisorEscalationWhenStuck(t *testing.T) {
	adv := &stubAdvisor{
		canCall: true,
		reply:   `{"action_type": "respond", "action_value": "try another approach", "confidence": 0.85, "reason": "loop detected", "goal_relevance": 0.9}`,
	}
	r := responder.New(false)
	a := New(r, r, adv, true)

	d := a.Decide(context.Background(), DecideParams{
		PromptType:      "permission",
		PromptText:      "Claude wants to frobnicate the widget",
		GoalDescription: "ship the widget",
		IsStuck:         true,
	})

	assert.Equal(t, TierAdvisor, d.Tier)
	assert.Equal(t, "respond", d.ActionType)
	assert.Equal(t, "try another approach", d.ActionValue)
	assert.InDelta(t, 0.85, d.Confidence, 1e-9)
	assert.InDelta(t, 0.9, d.GoalRelevance, 1e-9)
	assert.Equal(t, 1, adv.calls)
}

func TestNoEscalationWhenHealthy(t *testing.T) {
	adv := &stubAdvisor{canCall: true, reply: `{"action_type": "approve"}`}
	r := responder.New(false)
	a := New(r, r, adv, true)

	d := a.Decide(context.Background(), DecideParams{
		PromptType: "permission",
		PromptText: "Claude wants to frobnicate the widget",
	})

	assert.Zero(t, adv.calls)
	assert.Equal(t, TierFallback, d.Tier)
}

func TestNoEscalationWhenBudgetExhausted(t *testing.T) {
	adv := &stubAdvisor{canCall: false}
	r := responder.New(false)
	a := New(r, r, adv, true)

	a.Decide(context.Background(), DecideParams{
		PromptType:   "permission",
		PromptText:   "anything",
		SimilarCount: 5,
	})

	assert.Zero(t, adv.calls)
}

func TestAdvisorFailureFallsThrough(t *testing.T) {
	adv := &stubAdvisor{canCall: true, err: fmt.Errorf("upstream down")}
	r := responder.New(false)
	a := New(r, r, adv, true)

	d := a.Decide(context.Background(), DecideParams{
		PromptType: "continuation",
		PromptText: "",
		IsStuck:    true,
	})

	// Continuation rules already decide at 0.9, so the advisor is never
	// consulted; force the advisor path with an unmatched permission.
	assert.Equal(t, TierRules, d.Tier)

	d = a.Decide(context.Background(), DecideParams{
		PromptType: "permission",
		PromptText: "Claude wants to frobnicate the widget",
		IsStuck:    true,
	})
	assert.Equal(t, 1, adv.calls)
	assert.Equal(t, TierFallback, d.Tier)
}

func TestFallbackDefaults(t *testing.T) {
	r := responder.New(false)
	a := New(r, r, nil, false)

	d := a.Decide(context.Background(), DecideParams{PromptType: "question", PromptText: "What now?"})
	assert.Equal(t, TierFallback, d.Tier)
	assert.Equal(t, "wait", d.ActionType)
	assert.InDelta(t, 0.2, d.Confidence, 1e-9)

	d = a.Decide(context.Background(), DecideParams{PromptType: "continuation", PromptText: ""})
	assert.Equal(t, "continue", d.ActionType)
}

func TestInferActionType(t *testing.T) {
	assert.Equal(t, "approve", inferActionType("1"))
	assert.Equal(t, "deny", inferActionType("2"))
	assert.Equal(t, "continue", inferActionType("continue"))
	assert.Equal(t, "continue", inferActionType("Yes"))
	assert.Equal(t, "respond", inferActionType("use option A"))
}
