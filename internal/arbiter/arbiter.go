// Package arbiter picks an action for each prompt through tiered
// decision making: cheap rules first, learned statistics second, an
// external advisor only when the session is in trouble.
package arbiter

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"helmsman/internal/advisor"
	"helmsman/internal/learning"
)

// Tier identifies which decision layer produced a decision.
type Tier string

// Decision tiers in escalation order.
const (
	TierRules    Tier = "rules"
	TierUCB      Tier = "ucb"
	TierAdvisor  Tier = "advisor"
	TierFallback Tier = "fallback"
)

// Confidence thresholds per tier. A tier's decision is accepted only
// at or above its threshold; otherwise arbitration escalates.
const (
	rulesThreshold = 0.7
	ucbThreshold   = 0.6
)

// advisorContextLimit bounds how much trailing terminal context is
// sent on escalation.
const advisorContextLimit = 1500

// Decision is the arbiter's verdict for one prompt.
type Decision struct {
	ActionType    string  `json:"action_type"`
	ActionValue   string  `json:"action_value"`
	Confidence    float64 `json:"confidence"`
	Tier          Tier    `json:"tier"`
	Reason        string  `json:"reason"`
	ContextHash   string  `json:"context_hash"`
	GoalRelevance float64 `json:"goal_relevance,omitempty"`
}

// SafetyEvaluator classifies a proposed action as approvable or not.
type SafetyEvaluator interface {
	ClassifyAction(actionText string) (approve bool, confidence float64, reason string)
}

// QuestionAnswerer answers a question from the prompt and its context.
type QuestionAnswerer interface {
	AnswerQuestion(question, context string) (response string, confidence float64, reason string)
}

// Advisor is the escalation backend. CanCall must be cheap; Call may
// block on the network.
type Advisor interface {
	CanCall() bool
	Call(ctx context.Context, prompt string) (string, error)
}

// DecideParams carries everything known about the prompt being decided.
type DecideParams struct {
	PromptType      string
	PromptText      string
	Context         string
	GoalDescription string
	IsStuck         bool
	SimilarCount    int
}

// Arbiter runs tiered arbitration. Recommendations are pushed in by
// the owner whenever learned statistics change.
type Arbiter struct {
	safety          SafetyEvaluator
	answerer        QuestionAnswerer
	advisor         Advisor
	answerQuestions bool

	recommendations map[string][]learning.ScoredAction
}

// New creates an arbiter. advisor may be nil when escalation is not
// configured.
func New(safety SafetyEvaluator, answerer QuestionAnswerer, adv Advisor, answerQuestions bool) *Arbiter {
	return &Arbiter{
		safety:          safety,
		answerer:        answerer,
		advisor:         adv,
		answerQuestions: answerQuestions,
		recommendations: make(map[string][]learning.ScoredAction),
	}
}

// SetRecommendations replaces the learned per-context action rankings.
func (a *Arbiter) SetRecommendations(recs map[string][]learning.ScoredAction) {
	if recs == nil {
		recs = make(map[string][]learning.ScoredAction)
	}
	a.recommendations = recs
}

// Decide picks an action for a prompt. It never returns an empty
// decision: when every tier declines, the fallback tier produces a
// conservative default.
func (a *Arbiter) Decide(ctx context.Context, p DecideParams) Decision {
	contextHash := learning.ContextHash(p.PromptType, p.PromptText)

	ruleDecision, ruleOK := a.decideByRules(p)
	if ruleOK && ruleDecision.Confidence >= rulesThreshold {
		ruleDecision.ContextHash = contextHash
		return ruleDecision
	}

	if d, ok := a.decideByLearning(contextHash); ok && d.Confidence >= ucbThreshold {
		d.ContextHash = contextHash
		return d
	}

	if a.shouldEscalate(p) {
		if d, ok := a.decideByAdvisor(ctx, p); ok {
			d.ContextHash = contextHash
			return d
		}
	}

	d := a.fallback(p, ruleDecision, ruleOK)
	d.ContextHash = contextHash
	return d
}

// decideByRules is tier one: pattern rules keyed on the prompt type.
func (a *Arbiter) decideByRules(p DecideParams) (Decision, bool) {
	switch p.PromptType {
	case "permission":
		approve, confidence, reason := a.safety.ClassifyAction(p.PromptText)
		actionType, actionValue := "approve", "1"
		if !approve {
			actionType, actionValue = "deny", "2"
		}
		return Decision{
			ActionType:  actionType,
			ActionValue: actionValue,
			Confidence:  confidence,
			Tier:        TierRules,
			Reason:      reason,
		}, true

	case "continuation":
		return Decision{
			ActionType:  "continue",
			ActionValue: "continue",
			Confidence:  0.9,
			Tier:        TierRules,
			Reason:      "Continuation prompt",
		}, true

	case "question":
		if !a.answerQuestions {
			return Decision{}, false
		}
		response, confidence, reason := a.answerer.AnswerQuestion(p.PromptText, p.Context)
		return Decision{
			ActionType:  "respond",
			ActionValue: response,
			Confidence:  confidence,
			Tier:        TierRules,
			Reason:      reason,
		}, true

	case "completed":
		return Decision{
			ActionType:  "wait",
			ActionValue: "",
			Confidence:  0.6,
			Tier:        TierRules,
			Reason:      "Session reports completion",
		}, true
	}

	return Decision{}, false
}

// decideByLearning is tier two: the best UCB-ranked action for this
// context, when enough has been observed to rank at all.
func (a *Arbiter) decideByLearning(contextHash string) (Decision, bool) {
	recs := a.recommendations[contextHash]
	if len(recs) == 0 {
		return Decision{}, false
	}

	best := recs[0]
	confidence := best.Score / 2
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		return Decision{}, false
	}

	return Decision{
		ActionType:  inferActionType(best.ActionValue),
		ActionValue: best.ActionValue,
		Confidence:  confidence,
		Tier:        TierUCB,
		Reason:      fmt.Sprintf("Learned action (score %.2f)", best.Score),
	}, true
}

// shouldEscalate gates tier three on genuine trouble: the session is
// stuck or the same situation keeps repeating.
func (a *Arbiter) shouldEscalate(p DecideParams) bool {
	if a.advisor == nil || !a.advisor.CanCall() {
		return false
	}
	return p.IsStuck || p.SimilarCount >= 3
}

func (a *Arbiter) decideByAdvisor(ctx context.Context, p DecideParams) (Decision, bool) {
	prompt := a.buildAdvisorPrompt(p)

	raw, err := a.advisor.Call(ctx, prompt)
	if err != nil {
		log.Warn().Err(err).Msg("advisor call failed")
		return Decision{}, false
	}

	parsed, err := advisor.ParseDecision(raw)
	if err != nil {
		log.Warn().Err(err).Msg("advisor returned unparseable decision")
		return Decision{}, false
	}

	return Decision{
		ActionType:    parsed.ActionType,
		ActionValue:   parsed.ActionValue,
		Confidence:    parsed.Confidence,
		Tier:          TierAdvisor,
		Reason:        parsed.Reason,
		GoalRelevance: parsed.GoalRelevance,
	}, true
}

func (a *Arbiter) buildAdvisorPrompt(p DecideParams) string {
	var b strings.Builder

	if p.GoalDescription != "" {
		fmt.Fprintf(&b, "Current goal: %s\n\n", p.GoalDescription)
	}

	fmt.Fprintf(&b, "Prompt type: %s\n", p.PromptType)
	fmt.Fprintf(&b, "Prompt: %s\n", p.PromptText)
	if p.IsStuck {
		b.WriteString("The session appears to be stuck.\n")
	}
	if p.SimilarCount > 0 {
		fmt.Fprintf(&b, "The same situation has repeated %d times.\n", p.SimilarCount)
	}

	context := p.Context
	if len(context) > advisorContextLimit {
		context = context[len(context)-advisorContextLimit:]
	}
	if context != "" {
		fmt.Fprintf(&b, "\nRecent terminal output:\n%s\n", context)
	}

	b.WriteString("\nDecide the best action and respond with the JSON object only.")
	return b.String()
}

// fallback is the safety net: a below-threshold rule decision when one
// exists, otherwise a conservative default per prompt type.
func (a *Arbiter) fallback(p DecideParams, ruleDecision Decision, ruleOK bool) Decision {
	if ruleOK {
		ruleDecision.Tier = TierFallback
		ruleDecision.Reason = "Below threshold, used as fallback: " + ruleDecision.Reason
		return ruleDecision
	}

	switch p.PromptType {
	case "permission":
		return Decision{
			ActionType:  "approve",
			ActionValue: "1",
			Confidence:  0.3,
			Tier:        TierFallback,
			Reason:      "Fallback approval",
		}
	case "continuation":
		return Decision{
			ActionType:  "continue",
			ActionValue: "continue",
			Confidence:  0.5,
			Tier:        TierFallback,
			Reason:      "Fallback continuation",
		}
	}
	return Decision{
		ActionType:  "wait",
		ActionValue: "",
		Confidence:  0.2,
		Tier:        TierFallback,
		Reason:      "Fallback wait",
	}
}

// inferActionType maps a learned action value back to an action type.
func inferActionType(actionValue string) string {
	switch strings.ToLower(strings.TrimSpace(actionValue)) {
	case "1":
		return "approve"
	case "2":
		return "deny"
	case "continue", "yes":
		return "continue"
	}
	return "respond"
}
