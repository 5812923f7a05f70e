package goal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"helmsman/internal/store"
)

const bucket = "goals"

// NewGoal holds parameters for creating a goal.
type NewGoal struct {
	SessionID       string
	Description     string
	SuccessCriteria []string
	ParentID        string
	Priority        int
	Tags            []string
}

// Store manages goals for all sessions. Goals persist across daemon
// restarts; only non-terminal goals are rehydrated on load, terminal
// goals stay archived on disk.
type Store struct {
	records      store.RecordStore
	goals        map[string]*Goal
	sessionGoals map[string][]string
}

// NewStore creates a goal store and loads non-terminal goals from the
// record store. Individually corrupt records are skipped.
func NewStore(ctx context.Context, records store.RecordStore) *Store {
	s := &Store{
		records:      records,
		goals:        make(map[string]*Goal),
		sessionGoals: make(map[string][]string),
	}
	s.load(ctx)
	log.Info().Int("goals", len(s.goals)).Msg("goal store initialized")
	return s
}

// Create registers and persists a new pending goal. If the parent id
// resolves to a known goal, the new goal is linked as its subgoal.
func (s *Store) Create(ctx context.Context, p NewGoal) *Goal {
	if p.Priority < 1 {
		p.Priority = 1
	}
	g := &Goal{
		ID:              uuid.NewString(),
		SessionID:       p.SessionID,
		Description:     p.Description,
		Status:          StatusPending,
		CreatedAt:       time.Now(),
		ParentID:        p.ParentID,
		SuccessCriteria: p.SuccessCriteria,
		CriteriaMet:     make([]bool, len(p.SuccessCriteria)),
		Tags:            p.Tags,
		Priority:        p.Priority,
	}

	s.goals[g.ID] = g
	s.sessionGoals[g.SessionID] = append(s.sessionGoals[g.SessionID], g.ID)

	if parent, ok := s.goals[p.ParentID]; ok {
		parent.addSubgoalID(g.ID)
		s.Save(ctx, parent)
	}

	s.Save(ctx, g)
	log.Info().
		Str("goal_id", g.ID[:8]).
		Str("session_id", shortID(p.SessionID)).
		Msg("goal created")
	return g
}

// Get returns a goal by id, or nil.
func (s *Store) Get(id string) *Goal {
	return s.goals[id]
}

// SessionGoals returns all in-memory goals for a session.
func (s *Store) SessionGoals(sessionID string) []*Goal {
	ids := s.sessionGoals[sessionID]
	out := make([]*Goal, 0, len(ids))
	for _, id := range ids {
		if g, ok := s.goals[id]; ok {
			out = append(out, g)
		}
	}
	return out
}

// ActiveGoal returns the session's active goal with the highest
// priority; ties break toward the most recently created goal.
func (s *Store) ActiveGoal(sessionID string) *Goal {
	var best *Goal
	for _, g := range s.SessionGoals(sessionID) {
		if !g.IsActive() {
			continue
		}
		if best == nil || g.Priority > best.Priority ||
			(g.Priority == best.Priority && g.CreatedAt.After(best.CreatedAt)) {
			best = g
		}
	}
	return best
}

// Save persists a goal. Persistence is best-effort: failures are
// logged and in-memory state stays authoritative.
func (s *Store) Save(ctx context.Context, g *Goal) {
	payload, err := json.Marshal(g)
	if err != nil {
		log.Error().Err(err).Str("goal_id", g.ID[:8]).Msg("marshal goal")
		return
	}
	if err := s.records.Put(ctx, bucket, g.ID, payload); err != nil {
		log.Error().Err(err).Str("goal_id", g.ID[:8]).Msg("save goal")
	}
}

// Complete marks a goal completed and persists it.
func (s *Store) Complete(ctx context.Context, id, notes string) {
	if g, ok := s.goals[id]; ok {
		g.Complete(notes)
		s.Save(ctx, g)
	}
}

// Fail marks a goal failed and persists it.
func (s *Store) Fail(ctx context.Context, id, reason string) {
	if g, ok := s.goals[id]; ok {
		g.Fail(reason)
		s.Save(ctx, g)
	}
}

// RemoveSessionGoals drops a session's goals from memory. Their
// records remain on disk as history.
func (s *Store) RemoveSessionGoals(sessionID string) {
	ids := s.sessionGoals[sessionID]
	delete(s.sessionGoals, sessionID)
	for _, id := range ids {
		delete(s.goals, id)
	}
}

// All returns every in-memory goal.
func (s *Store) All() []*Goal {
	out := make([]*Goal, 0, len(s.goals))
	for _, g := range s.goals {
		out = append(out, g)
	}
	return out
}

func (s *Store) load(ctx context.Context) {
	payloads, err := s.records.List(ctx, bucket)
	if err != nil {
		log.Warn().Err(err).Msg("load goals")
		return
	}
	for id, payload := range payloads {
		var g Goal
		if err := json.Unmarshal(payload, &g); err != nil {
			log.Warn().Err(err).Str("goal_id", shortID(id)).Msg("skip corrupt goal record")
			continue
		}
		if g.IsDone() {
			continue
		}
		s.goals[g.ID] = &g
		s.sessionGoals[g.SessionID] = append(s.sessionGoals[g.SessionID], g.ID)
	}
}

// StoreStatus is the aggregate read view over all goals.
type StoreStatus struct {
	TotalGoals  int            `json:"total_goals"`
	ActiveGoals int            `json:"active_goals"`
	BySession   map[string]int `json:"goals_by_session"`
}

// Status returns the aggregate summary for presentation.
func (s *Store) Status() StoreStatus {
	status := StoreStatus{
		TotalGoals: len(s.goals),
		BySession:  make(map[string]int, len(s.sessionGoals)),
	}
	for _, g := range s.goals {
		if g.IsActive() {
			status.ActiveGoals++
		}
	}
	for sessionID, ids := range s.sessionGoals {
		status.BySession[sessionID] = len(ids)
	}
	return status
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
