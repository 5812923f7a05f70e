package plan

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helmsman/internal/store"
)

func newTestStore(t *testing.T) (*Store, store.RecordStore) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "helmsman.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	records := store.NewRecords(db)
	return NewStore(context.Background(), records), records
}

func fiveSteps() []string {
	return []string{"one", "two", "three", "four", "five"}
}

func TestAdvanceCompletesAndStartsNext(t *testing.T) {
	p := &Plan{ID: "p1", IsActive: true}
	p.AddSteps([]string{"a", "b"})
	p.Start()

	require.Equal(t, StepInProgress, p.Steps[0].Status)

	next := p.Advance()
	require.NotNil(t, next)
	assert.Equal(t, StepCompleted, p.Steps[0].Status)
	assert.Equal(t, StepInProgress, next.Status)
	assert.Equal(t, "b", next.Description)
}

func TestAdvancePastLastStepCompletesPlan(t *testing.T) {
	p := &Plan{ID: "p1", IsActive: true}
	p.AddSteps([]string{"only"})
	p.Start()

	next := p.Advance()
	assert.Nil(t, next)
	assert.NotNil(t, p.CompletedAt)
	assert.Nil(t, p.CurrentStep())
}

func TestProgressAfterTwoAdvances(t *testing.T) {
	p := &Plan{ID: "p1", IsActive: true}
	p.AddSteps(fiveSteps())
	p.Start()

	p.Advance()
	p.Advance()

	assert.InDelta(t, 40.0, p.ProgressPercent(), 1e-9)
	assert.Equal(t, 2, p.CompletedSteps())
}

func TestRetryCurrentStepCapsAtThree(t *testing.T) {
	p := &Plan{ID: "p1", IsActive: true}
	p.AddSteps([]string{"a"})
	p.Start()

	p.MarkStepFailed("boom")
	for i := 0; i < 3; i++ {
		assert.True(t, p.RetryCurrentStep(), "retry %d should be allowed", i+1)
	}
	assert.False(t, p.RetryCurrentStep())

	// Exhausted retry leaves the step untouched.
	step := p.CurrentStep()
	require.NotNil(t, step)
	assert.Equal(t, 3, step.Retries)
	assert.Equal(t, StepInProgress, step.Status)
}

func TestSkipCurrentStepAdvances(t *testing.T) {
	p := &Plan{ID: "p1", IsActive: true}
	p.AddSteps([]string{"a", "b"})
	p.Start()

	p.SkipCurrentStep("not needed")

	assert.Equal(t, StepSkipped, p.Steps[0].Status)
	assert.Equal(t, "not needed", p.Steps[0].OutcomeNotes)
	assert.Equal(t, StepInProgress, p.Steps[1].Status)
	assert.Equal(t, 0, p.CompletedSteps())
}

func TestCreateInvalidatesPriorActivePlan(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first := s.Create(ctx, "g1", "s1", []string{"a"})
	second := s.Create(ctx, "g1", "s1", []string{"b", "c"})

	assert.False(t, first.IsActive)
	assert.Contains(t, first.ReplanReasons, "Replaced by new plan")
	assert.True(t, second.IsActive)
	assert.Equal(t, 1, second.ReplanCount)
	assert.Equal(t, second.ID, s.ActivePlan("g1").ID)
}

func TestReplanCountIsMaxPriorPlusOne(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.Create(ctx, "g1", "s1", []string{"a"})
	s.Create(ctx, "g1", "s1", []string{"b"})
	third := s.Replan(ctx, "g1", "s1", "stuck on step", []string{"c"})

	assert.Equal(t, 2, third.ReplanCount)

	plans := s.GoalPlans("g1")
	require.Len(t, plans, 3)
	active := 0
	for _, p := range plans {
		if p.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestReplanRecordsReason(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first := s.Create(ctx, "g1", "s1", []string{"a"})
	s.Replan(ctx, "g1", "s1", "approach failed", []string{"b"})

	assert.Contains(t, first.ReplanReasons, "approach failed")
}

func TestOnlyActivePlansReload(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "helmsman.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	records := store.NewRecords(db)
	ctx := context.Background()

	s := NewStore(ctx, records)
	old := s.Create(ctx, "g1", "s1", []string{"a"})
	current := s.Create(ctx, "g1", "s1", []string{"b"})

	reloaded := NewStore(ctx, records)
	assert.Nil(t, reloaded.Get(old.ID))
	require.NotNil(t, reloaded.Get(current.ID))
	assert.Equal(t, current.ID, reloaded.ActivePlan("g1").ID)
}

func TestStoreAdvancePersists(t *testing.T) {
	s, records := newTestStore(t)
	ctx := context.Background()

	p := s.Create(ctx, "g1", "s1", []string{"a", "b"})
	p.Start()

	next := s.Advance(ctx, p.ID)
	require.NotNil(t, next)

	reloaded := NewStore(ctx, records)
	got := reloaded.Get(p.ID)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.CurrentStepIndex)
	assert.Equal(t, StepCompleted, got.Steps[0].Status)
}
