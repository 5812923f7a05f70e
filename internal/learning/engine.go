package learning

import (
	"context"
	"database/sql"
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"helmsman/internal/session"
)

const (
	// minExperiencesPerContext gates recommendations until a context
	// has accumulated enough pulls to be meaningful.
	minExperiencesPerContext = 3

	// batchSizeForAdvisor is how many pending experiences trigger
	// advisor-assisted pattern mining.
	batchSizeForAdvisor = 10

	// replayWindowDays bounds how far back experiences are replayed
	// into memory on startup.
	replayWindowDays = 7
)

// explorationConstant is the UCB1 c value; sqrt(2) is the theoretical
// optimum.
var explorationConstant = math.Sqrt2

// ScoredAction pairs an action value with its UCB score.
type ScoredAction struct {
	ActionValue string  `json:"action_value"`
	Score       float64 `json:"score"`
}

// RecordParams holds the inputs for recording one experience.
type RecordParams struct {
	SessionID      string
	ContextHash    string
	PromptType     string
	PromptText     string
	ActionType     string
	ActionValue    string
	Outcome        session.Outcome
	OutcomeDetails string
	GoalID         string
	ProgressBefore float64
	ProgressAfter  float64
}

// Engine learns which action value tends to produce the best reward
// per context. All persistence is best-effort: I/O failures are logged
// and the in-memory state stays authoritative for the process.
type Engine struct {
	db *sql.DB

	experiences []Experience
	stats       map[string]map[string]*ActionStats
	pending     []Experience
	patterns    map[string]string
}

// NewEngine creates an engine and replays recent experiences, the
// stats snapshot, and learned patterns from the database. Corrupt rows
// are skipped individually.
func NewEngine(ctx context.Context, db *sql.DB) *Engine {
	e := &Engine{
		db:       db,
		stats:    make(map[string]map[string]*ActionStats),
		patterns: make(map[string]string),
	}
	e.load(ctx)
	log.Info().
		Int("experiences", len(e.experiences)).
		Int("contexts", len(e.stats)).
		Int("patterns", len(e.patterns)).
		Msg("learning engine initialized")
	return e
}

// RecordExperience computes the reward, updates the bandit state, adds
// the record to the pending batch, and appends it to the durable log.
func (e *Engine) RecordExperience(ctx context.Context, p RecordParams) Experience {
	exp := Experience{
		Timestamp:          time.Now(),
		SessionID:          p.SessionID,
		ContextHash:        p.ContextHash,
		PromptType:         p.PromptType,
		PromptText:         p.PromptText,
		ActionType:         p.ActionType,
		ActionValue:        p.ActionValue,
		Outcome:            p.Outcome,
		OutcomeDetails:     p.OutcomeDetails,
		Reward:             Reward(p.Outcome, p.ProgressBefore, p.ProgressAfter),
		GoalID:             p.GoalID,
		GoalProgressBefore: p.ProgressBefore,
		GoalProgressAfter:  p.ProgressAfter,
	}

	e.experiences = append(e.experiences, exp)
	e.updateStats(exp)
	e.pending = append(e.pending, exp)
	e.persistExperience(ctx, exp)

	log.Debug().
		Str("action", exp.ActionValue).
		Str("outcome", string(exp.Outcome)).
		Float64("reward", exp.Reward).
		Msg("experience recorded")
	return exp
}

// Recommendations returns UCB-scored action values for a context,
// best first. Empty until the context has at least three pulls across
// all its actions.
func (e *Engine) Recommendations(contextHash string) []ScoredAction {
	actions, ok := e.stats[contextHash]
	if !ok {
		return nil
	}
	total := 0
	for _, s := range actions {
		total += s.Count
	}
	if total < minExperiencesPerContext {
		return nil
	}

	out := make([]ScoredAction, 0, len(actions))
	for value, s := range actions {
		out = append(out, ScoredAction{ActionValue: value, Score: s.UCBScore(total, explorationConstant)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ActionValue < out[j].ActionValue
	})
	return out
}

// AllRecommendations returns recommendations for every known context.
func (e *Engine) AllRecommendations() map[string][]ScoredAction {
	out := make(map[string][]ScoredAction, len(e.stats))
	for ctx := range e.stats {
		out[ctx] = e.Recommendations(ctx)
	}
	return out
}

// ShouldBatchLearn reports whether enough unconsumed experiences have
// accumulated for advisor-assisted pattern mining.
func (e *Engine) ShouldBatchLearn() bool {
	return len(e.pending) >= batchSizeForAdvisor
}

// BatchForLearning drains and returns the pending batch.
func (e *Engine) BatchForLearning() []Experience {
	batch := e.pending
	e.pending = nil
	return batch
}

// AddLearnedPattern registers a mined pattern mapped to a recommended
// action and persists it.
func (e *Engine) AddLearnedPattern(ctx context.Context, pattern, recommendedAction string) {
	e.patterns[pattern] = recommendedAction
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := e.db.ExecContext(ctx, `INSERT INTO learned_patterns(pattern, recommended_action, created_at) VALUES(?, ?, ?)
		ON CONFLICT(pattern) DO UPDATE SET recommended_action=excluded.recommended_action`,
		pattern, recommendedAction, now); err != nil {
		log.Error().Err(err).Msg("save learned pattern")
	}
}

// LearnedPattern returns the recommended action of the first learned
// pattern matching the context, or empty. Invalid patterns are skipped.
func (e *Engine) LearnedPattern(contextText string) string {
	for pattern, action := range e.patterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			continue
		}
		if re.MatchString(contextText) {
			return action
		}
	}
	return ""
}

// ClearOldData drops experiences older than keepDays, rebuilds all
// action stats from the retained log, and persists the rebuilt
// snapshot.
func (e *Engine) ClearOldData(ctx context.Context, keepDays int) {
	if keepDays <= 0 {
		keepDays = 30
	}
	cutoff := time.Now().AddDate(0, 0, -keepDays)

	retained := e.experiences[:0]
	for _, exp := range e.experiences {
		if exp.Timestamp.After(cutoff) {
			retained = append(retained, exp)
		}
	}
	e.experiences = retained

	e.stats = make(map[string]map[string]*ActionStats)
	for _, exp := range e.experiences {
		e.updateStats(exp)
	}

	cutoffDay := cutoff.UTC().Format(time.DateOnly)
	if _, err := e.db.ExecContext(ctx, `DELETE FROM experiences WHERE day < ?`, cutoffDay); err != nil {
		log.Error().Err(err).Msg("prune experiences")
	}
	e.persistStats(ctx)

	log.Info().Int("experiences", len(e.experiences)).Msg("old learning data cleared")
}

func (e *Engine) updateStats(exp Experience) {
	actions, ok := e.stats[exp.ContextHash]
	if !ok {
		actions = make(map[string]*ActionStats)
		e.stats[exp.ContextHash] = actions
	}
	s, ok := actions[exp.ActionValue]
	if !ok {
		s = &ActionStats{ActionValue: exp.ActionValue}
		actions[exp.ActionValue] = s
	}
	s.Count++
	s.TotalReward += exp.Reward

	switch exp.Outcome {
	case session.OutcomeSuccess:
		s.Successes++
	case session.OutcomeFailed:
		s.Failures++
	}
}

func (e *Engine) persistExperience(ctx context.Context, exp Experience) {
	ts := exp.Timestamp.UTC()
	if _, err := e.db.ExecContext(ctx, `INSERT INTO experiences(day, ts, session_id, context_hash, prompt_type, prompt_text,
		action_type, action_value, outcome, outcome_details, reward, goal_id, goal_progress_before, goal_progress_after)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.Format(time.DateOnly), ts.Format(time.RFC3339), exp.SessionID, exp.ContextHash, exp.PromptType, exp.PromptText,
		exp.ActionType, exp.ActionValue, string(exp.Outcome), nullable(exp.OutcomeDetails), exp.Reward,
		nullable(exp.GoalID), exp.GoalProgressBefore, exp.GoalProgressAfter); err != nil {
		log.Error().Err(err).Msg("save experience")
		return
	}

	s := e.stats[exp.ContextHash][exp.ActionValue]
	if _, err := e.db.ExecContext(ctx, `INSERT INTO action_stats(context_hash, action_value, count, total_reward, successes, failures)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(context_hash, action_value) DO UPDATE SET
			count=excluded.count, total_reward=excluded.total_reward,
			successes=excluded.successes, failures=excluded.failures`,
		exp.ContextHash, exp.ActionValue, s.Count, s.TotalReward, s.Successes, s.Failures); err != nil {
		log.Error().Err(err).Msg("save action stats")
	}
}

func (e *Engine) persistStats(ctx context.Context) {
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		log.Error().Err(err).Msg("begin stats snapshot")
		return
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM action_stats`); err != nil {
		_ = tx.Rollback()
		log.Error().Err(err).Msg("reset stats snapshot")
		return
	}
	for contextHash, actions := range e.stats {
		for value, s := range actions {
			if _, err := tx.ExecContext(ctx, `INSERT INTO action_stats(context_hash, action_value, count, total_reward, successes, failures)
				VALUES(?, ?, ?, ?, ?, ?)`,
				contextHash, value, s.Count, s.TotalReward, s.Successes, s.Failures); err != nil {
				_ = tx.Rollback()
				log.Error().Err(err).Msg("write stats snapshot")
				return
			}
		}
	}
	if err := tx.Commit(); err != nil {
		log.Error().Err(err).Msg("commit stats snapshot")
	}
}

func (e *Engine) load(ctx context.Context) {
	e.loadExperiences(ctx)
	e.loadStats(ctx)
	e.loadPatterns(ctx)
}

func (e *Engine) loadExperiences(ctx context.Context) {
	since := time.Now().AddDate(0, 0, -replayWindowDays).UTC().Format(time.DateOnly)
	rows, err := e.db.QueryContext(ctx, `SELECT ts, session_id, context_hash, prompt_type, prompt_text,
		action_type, action_value, outcome, outcome_details, reward, goal_id, goal_progress_before, goal_progress_after
		FROM experiences WHERE day >= ? ORDER BY seq`, since)
	if err != nil {
		log.Warn().Err(err).Msg("load experiences")
		return
	}
	defer rows.Close()
	for rows.Next() {
		var exp Experience
		var ts, outcome string
		var details, goalID sql.NullString
		if err := rows.Scan(&ts, &exp.SessionID, &exp.ContextHash, &exp.PromptType, &exp.PromptText,
			&exp.ActionType, &exp.ActionValue, &outcome, &details, &exp.Reward,
			&goalID, &exp.GoalProgressBefore, &exp.GoalProgressAfter); err != nil {
			log.Warn().Err(err).Msg("skip corrupt experience row")
			continue
		}
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			log.Warn().Err(err).Msg("skip experience with bad timestamp")
			continue
		}
		exp.Timestamp = parsed
		exp.Outcome = session.Outcome(outcome)
		exp.OutcomeDetails = details.String
		exp.GoalID = goalID.String

		e.experiences = append(e.experiences, exp)
		e.updateStats(exp)
	}
	if err := rows.Err(); err != nil {
		log.Warn().Err(err).Msg("iterate experiences")
	}
}

// loadStats overlays the persisted snapshot on top of replayed stats;
// the snapshot may cover experiences outside the replay window.
func (e *Engine) loadStats(ctx context.Context) {
	rows, err := e.db.QueryContext(ctx, `SELECT context_hash, action_value, count, total_reward, successes, failures FROM action_stats`)
	if err != nil {
		log.Warn().Err(err).Msg("load action stats")
		return
	}
	defer rows.Close()
	for rows.Next() {
		var contextHash string
		var s ActionStats
		if err := rows.Scan(&contextHash, &s.ActionValue, &s.Count, &s.TotalReward, &s.Successes, &s.Failures); err != nil {
			log.Warn().Err(err).Msg("skip corrupt stats row")
			continue
		}
		actions, ok := e.stats[contextHash]
		if !ok {
			actions = make(map[string]*ActionStats)
			e.stats[contextHash] = actions
		}
		copied := s
		actions[s.ActionValue] = &copied
	}
	if err := rows.Err(); err != nil {
		log.Warn().Err(err).Msg("iterate action stats")
	}
}

func (e *Engine) loadPatterns(ctx context.Context) {
	rows, err := e.db.QueryContext(ctx, `SELECT pattern, recommended_action FROM learned_patterns`)
	if err != nil {
		log.Warn().Err(err).Msg("load learned patterns")
		return
	}
	defer rows.Close()
	for rows.Next() {
		var pattern, action string
		if err := rows.Scan(&pattern, &action); err != nil {
			log.Warn().Err(err).Msg("skip corrupt pattern row")
			continue
		}
		e.patterns[pattern] = action
	}
	if err := rows.Err(); err != nil {
		log.Warn().Err(err).Msg("iterate learned patterns")
	}
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// ContextSummary describes one frequently seen context.
type ContextSummary struct {
	ContextHash     string `json:"context_hash"`
	ExperienceCount int    `json:"experience_count"`
	BestAction      string `json:"best_action,omitempty"`
}

// EngineStatus is the aggregate read view over the learning state.
type EngineStatus struct {
	TotalExperiences int              `json:"total_experiences"`
	ContextsLearned  int              `json:"contexts_learned"`
	PendingBatchSize int              `json:"pending_batch_size"`
	LearnedPatterns  int              `json:"learned_patterns"`
	TopContexts      []ContextSummary `json:"top_contexts"`
}

// Status returns the aggregate summary for presentation.
func (e *Engine) Status() EngineStatus {
	return EngineStatus{
		TotalExperiences: len(e.experiences),
		ContextsLearned:  len(e.stats),
		PendingBatchSize: len(e.pending),
		LearnedPatterns:  len(e.patterns),
		TopContexts:      e.topContexts(5),
	}
}

func (e *Engine) topContexts(n int) []ContextSummary {
	summaries := make([]ContextSummary, 0, len(e.stats))
	for contextHash, actions := range e.stats {
		count := 0
		for _, s := range actions {
			count += s.Count
		}
		summary := ContextSummary{ContextHash: contextHash, ExperienceCount: count}
		if recs := e.Recommendations(contextHash); len(recs) > 0 {
			summary.BestAction = recs[0].ActionValue
		}
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].ExperienceCount != summaries[j].ExperienceCount {
			return summaries[i].ExperienceCount > summaries[j].ExperienceCount
		}
		return summaries[i].ContextHash < summaries[j].ContextHash
	})
	if len(summaries) > n {
		summaries = summaries[:n]
	}
	return summaries
}
