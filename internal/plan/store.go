package plan

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"helmsman/internal/store"
)

const bucket = "plans"

// Store manages plans for goals, including replanning. Only active
// plans are rehydrated on load; superseded plans stay archived.
type Store struct {
	records   store.RecordStore
	plans     map[string]*Plan
	goalPlans map[string][]string
}

// NewStore creates a plan store and loads active plans from the record
// store. Individually corrupt records are skipped.
func NewStore(ctx context.Context, records store.RecordStore) *Store {
	s := &Store{
		records:   records,
		plans:     make(map[string]*Plan),
		goalPlans: make(map[string][]string),
	}
	s.load(ctx)
	log.Info().Int("plans", len(s.plans)).Msg("plan store initialized")
	return s
}

// Create registers and persists a new plan for a goal. Any existing
// active plan for the goal is invalidated first, and the new plan's
// replan count is one more than the highest among prior plans.
func (s *Store) Create(ctx context.Context, goalID, sessionID string, steps []string) *Plan {
	replanCount := 0
	if existing := s.GoalPlans(goalID); len(existing) > 0 {
		for _, prior := range existing {
			if prior.IsActive {
				prior.Invalidate("Replaced by new plan")
				s.Save(ctx, prior)
			}
			if prior.ReplanCount >= replanCount {
				replanCount = prior.ReplanCount + 1
			}
		}
	}

	p := &Plan{
		ID:          uuid.NewString(),
		GoalID:      goalID,
		SessionID:   sessionID,
		CreatedAt:   time.Now(),
		IsActive:    true,
		ReplanCount: replanCount,
	}
	p.AddSteps(steps)

	s.plans[p.ID] = p
	s.goalPlans[goalID] = append(s.goalPlans[goalID], p.ID)
	s.Save(ctx, p)

	log.Info().
		Str("plan_id", p.ID[:8]).
		Str("goal_id", shortID(goalID)).
		Int("steps", len(steps)).
		Msg("plan created")
	return p
}

// Get returns a plan by id, or nil.
func (s *Store) Get(id string) *Plan {
	return s.plans[id]
}

// GoalPlans returns all in-memory plans for a goal.
func (s *Store) GoalPlans(goalID string) []*Plan {
	ids := s.goalPlans[goalID]
	out := make([]*Plan, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.plans[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// ActivePlan returns the goal's active plan, or nil.
func (s *Store) ActivePlan(goalID string) *Plan {
	for _, p := range s.GoalPlans(goalID) {
		if p.IsActive {
			return p
		}
	}
	return nil
}

// Advance advances a plan to its next step and persists it.
func (s *Store) Advance(ctx context.Context, planID string) *Step {
	p := s.plans[planID]
	if p == nil {
		return nil
	}
	next := p.Advance()
	s.Save(ctx, p)
	return next
}

// Replan invalidates the goal's active plan with a reason and creates
// a fresh plan with the given steps.
func (s *Store) Replan(ctx context.Context, goalID, sessionID, reason string, newSteps []string) *Plan {
	if current := s.ActivePlan(goalID); current != nil {
		current.Invalidate(reason)
		s.Save(ctx, current)
	}
	return s.Create(ctx, goalID, sessionID, newSteps)
}

// Save persists a plan. Persistence is best-effort: failures are
// logged and in-memory state stays authoritative.
func (s *Store) Save(ctx context.Context, p *Plan) {
	payload, err := json.Marshal(p)
	if err != nil {
		log.Error().Err(err).Str("plan_id", p.ID[:8]).Msg("marshal plan")
		return
	}
	if err := s.records.Put(ctx, bucket, p.ID, payload); err != nil {
		log.Error().Err(err).Str("plan_id", p.ID[:8]).Msg("save plan")
	}
}

// RemoveGoalPlans drops a goal's plans from memory. Their records
// remain on disk as history.
func (s *Store) RemoveGoalPlans(goalID string) {
	ids := s.goalPlans[goalID]
	delete(s.goalPlans, goalID)
	for _, id := range ids {
		delete(s.plans, id)
	}
}

func (s *Store) load(ctx context.Context) {
	payloads, err := s.records.List(ctx, bucket)
	if err != nil {
		log.Warn().Err(err).Msg("load plans")
		return
	}
	for id, payload := range payloads {
		var p Plan
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Warn().Err(err).Str("plan_id", shortID(id)).Msg("skip corrupt plan record")
			continue
		}
		if !p.IsActive {
			continue
		}
		s.plans[p.ID] = &p
		s.goalPlans[p.GoalID] = append(s.goalPlans[p.GoalID], p.ID)
	}
}

// StoreStatus is the aggregate read view over all plans.
type StoreStatus struct {
	TotalPlans  int            `json:"total_plans"`
	ActivePlans int            `json:"active_plans"`
	ByGoal      map[string]int `json:"plans_by_goal"`
}

// Status returns the aggregate summary for presentation.
func (s *Store) Status() StoreStatus {
	status := StoreStatus{
		TotalPlans: len(s.plans),
		ByGoal:     make(map[string]int, len(s.goalPlans)),
	}
	for _, p := range s.plans {
		if p.IsActive {
			status.ActivePlans++
		}
	}
	for goalID, ids := range s.goalPlans {
		status.ByGoal[goalID] = len(ids)
	}
	return status
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
