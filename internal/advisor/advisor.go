// Package advisor escalates hard decisions to an external language
// model over the OpenAI-compatible chat completions API. Calls are
// rate limited; the advisor is a scarce tier of last resort.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"

	"helmsman/internal/config"
)

const systemPrompt = "You are an expert assistant supervising an automated coding session. " +
	"Given the session context, respond ONLY with a JSON object: " +
	`{"action_type": "approve|deny|continue|respond|wait", "action_value": "<text to send>", ` +
	`"confidence": <0.0-1.0>, "reason": "<short explanation>", "goal_relevance": <0.0-1.0>}`

// Decision is the parsed advisor verdict.
type Decision struct {
	ActionType    string  `json:"action_type"`
	ActionValue   string  `json:"action_value"`
	Confidence    float64 `json:"confidence"`
	Reason        string  `json:"reason"`
	GoalRelevance float64 `json:"goal_relevance"`
}

// RateLimiter enforces a sliding one-hour window over call timestamps.
type RateLimiter struct {
	mu           sync.Mutex
	callsPerHour int
	window       time.Duration
	calls        []time.Time
	now          func() time.Time
}

// NewRateLimiter allows callsPerHour calls in any rolling hour.
func NewRateLimiter(callsPerHour int) *RateLimiter {
	return &RateLimiter{
		callsPerHour: callsPerHour,
		window:       time.Hour,
		now:          time.Now,
	}
}

func (r *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-r.window)
	kept := r.calls[:0]
	for _, t := range r.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.calls = kept
}

// CanCall reports whether another call fits in the current window.
func (r *RateLimiter) CanCall() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune(r.now())
	return len(r.calls) < r.callsPerHour
}

// RecordCall charges one call against the window.
func (r *RateLimiter) RecordCall() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.prune(now)
	r.calls = append(r.calls, now)
}

// Remaining is how many calls are left in the current window.
func (r *RateLimiter) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune(r.now())
	return r.callsPerHour - len(r.calls)
}

// SecondsUntilNext is how long until the oldest charged call expires
// from the window, 0 when a call is already allowed.
func (r *RateLimiter) SecondsUntilNext() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.prune(now)
	if len(r.calls) < r.callsPerHour {
		return 0
	}
	wait := r.calls[0].Add(r.window).Sub(now).Seconds()
	if wait < 0 {
		return 0
	}
	return wait
}

// Advisor wraps the chat completions client with rate limiting. A nil
// or keyless advisor reports CanCall false and the caller falls back
// to cheaper tiers.
type Advisor struct {
	cfg     config.AdvisorConfig
	client  openai.Client
	limiter *RateLimiter
	enabled bool
}

// New builds an advisor from config. The API key is read from the
// configured environment variable; without one the advisor stays
// disabled rather than erroring, since the engine must keep deciding
// offline.
func New(cfg config.AdvisorConfig) *Advisor {
	a := &Advisor{
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.CallsPerHour),
	}

	apiKey := strings.TrimSpace(os.Getenv(cfg.APIKeyEnv))
	if apiKey == "" {
		log.Info().Str("env", cfg.APIKeyEnv).Msg("advisor disabled: no api key")
		return a
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	a.client = openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithRequestTimeout(timeout),
	)
	a.enabled = true
	log.Info().Str("model", cfg.Model).Str("base_url", cfg.BaseURL).Msg("advisor enabled")
	return a
}

// CanCall reports whether an escalation is currently permitted.
func (a *Advisor) CanCall() bool {
	return a.enabled && a.limiter.CanCall()
}

// Call sends the prompt and returns the raw model output. The call is
// charged against the rate limit before the request, so failures still
// consume budget and cannot retry-storm the upstream.
func (a *Advisor) Call(ctx context.Context, prompt string) (string, error) {
	if !a.enabled {
		return "", fmt.Errorf("advisor is disabled")
	}
	if !a.limiter.CanCall() {
		return "", fmt.Errorf("advisor rate limited: next call in %.0fs", a.limiter.SecondsUntilNext())
	}
	a.limiter.RecordCall()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
	}
	if a.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(a.cfg.MaxTokens))
	}
	if a.cfg.Temperature > 0 {
		params.Temperature = openai.Float(a.cfg.Temperature)
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("advisor chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("advisor response contained no choices")
	}

	output := strings.TrimSpace(resp.Choices[0].Message.Content)
	if output == "" {
		return "", fmt.Errorf("advisor response contained no text")
	}
	return output, nil
}

// ParseDecision extracts a Decision from raw model output, tolerating
// markdown code fences around the JSON.
func ParseDecision(raw string) (Decision, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var d Decision
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return Decision{}, fmt.Errorf("parse advisor decision: %w", err)
	}
	if d.ActionType == "" {
		return Decision{}, fmt.Errorf("advisor decision missing action_type")
	}
	return d, nil
}

// Status is the advisor's rate-limit view for presentation.
type Status struct {
	Enabled          bool    `json:"enabled"`
	CallsPerHour     int     `json:"calls_per_hour"`
	Remaining        int     `json:"remaining"`
	SecondsUntilNext float64 `json:"seconds_until_next"`
	Model            string  `json:"model"`
}

// Status returns the current advisor state.
func (a *Advisor) Status() Status {
	return Status{
		Enabled:          a.enabled,
		CallsPerHour:     a.cfg.CallsPerHour,
		Remaining:        a.limiter.Remaining(),
		SecondsUntilNext: a.limiter.SecondsUntilNext(),
		Model:            a.cfg.Model,
	}
}
