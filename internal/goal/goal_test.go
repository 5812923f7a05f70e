package goal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

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

func TestGoalLifecycle(t *testing.T) {
	g := &Goal{Status: StatusPending}

	g.Start()
	assert.True(t, g.IsActive())
	require.NotNil(t, g.StartedAt)

	g.Pause("waiting for input")
	assert.Equal(t, StatusPaused, g.Status)

	g.Resume()
	assert.True(t, g.IsActive())

	g.Complete("done")
	assert.True(t, g.IsDone())
	require.NotNil(t, g.CompletedAt)
	assert.Contains(t, g.ProgressNotes[len(g.ProgressNotes)-1], "done")
}

func TestProgressPercentBounds(t *testing.T) {
	cases := []Goal{
		{},
		{EstimatedSteps: 4, CompletedSteps: 2},
		{EstimatedSteps: 4, CompletedSteps: 10},
		{CriteriaMet: []bool{true, false, true}},
		{CriteriaMet: []bool{true, true}, EstimatedSteps: 2, CompletedSteps: 1},
	}
	for _, g := range cases {
		p := g.ProgressPercent()
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 100.0)
	}
}

func TestProgressPercentBlend(t *testing.T) {
	g := Goal{
		CriteriaMet:    []bool{true, false},
		EstimatedSteps: 4,
		CompletedSteps: 4,
	}
	// 50% criteria, 100% steps, blended evenly.
	assert.InDelta(t, 75.0, g.ProgressPercent(), 1e-9)

	stepsOnly := Goal{EstimatedSteps: 5, CompletedSteps: 2}
	assert.InDelta(t, 40.0, stepsOnly.ProgressPercent(), 1e-9)

	overshoot := Goal{EstimatedSteps: 2, CompletedSteps: 9}
	assert.InDelta(t, 100.0, overshoot.ProgressPercent(), 1e-9)
}

func TestMarkCriterionIgnoresOutOfRange(t *testing.T) {
	g := Goal{SuccessCriteria: []string{"a"}, CriteriaMet: []bool{false}}
	g.MarkCriterion(5, true)
	g.MarkCriterion(-1, true)
	assert.False(t, g.CriteriaMet[0])

	g.MarkCriterion(0, true)
	assert.True(t, g.CriteriaMet[0])
}

func TestStoreCreateLinksParent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	parent := s.Create(ctx, NewGoal{SessionID: "s1", Description: "parent"})
	child := s.Create(ctx, NewGoal{SessionID: "s1", Description: "child", ParentID: parent.ID})

	assert.Equal(t, parent.ID, child.ParentID)
	assert.Contains(t, parent.SubgoalIDs, child.ID)
	assert.Len(t, s.SessionGoals("s1"), 2)
}

func TestActiveGoalPrefersPriorityThenRecency(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	low := s.Create(ctx, NewGoal{SessionID: "s1", Description: "low", Priority: 1})
	low.Start()
	high := s.Create(ctx, NewGoal{SessionID: "s1", Description: "high", Priority: 5})
	high.Start()

	active := s.ActiveGoal("s1")
	require.NotNil(t, active)
	assert.Equal(t, high.ID, active.ID)

	// Same priority: most recently created wins.
	later := s.Create(ctx, NewGoal{SessionID: "s1", Description: "later", Priority: 5})
	later.Start()
	later.CreatedAt = later.CreatedAt.Add(time.Second)

	active = s.ActiveGoal("s1")
	require.NotNil(t, active)
	assert.Equal(t, later.ID, active.ID)
}

func TestActiveGoalIgnoresTerminal(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	g := s.Create(ctx, NewGoal{SessionID: "s1", Description: "only"})
	g.Start()
	s.Complete(ctx, g.ID, "done")

	assert.Nil(t, s.ActiveGoal("s1"))
}

func TestStoreReloadSkipsTerminalGoals(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "helmsman.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	records := store.NewRecords(db)
	ctx := context.Background()

	s := NewStore(ctx, records)
	kept := s.Create(ctx, NewGoal{SessionID: "s1", Description: "kept"})
	kept.Start()
	s.Save(ctx, kept)
	done := s.Create(ctx, NewGoal{SessionID: "s1", Description: "done"})
	s.Complete(ctx, done.ID, "finished")

	reloaded := NewStore(ctx, records)
	assert.NotNil(t, reloaded.Get(kept.ID))
	assert.Nil(t, reloaded.Get(done.ID))
}

func TestRemoveSessionGoals(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	g := s.Create(ctx, NewGoal{SessionID: "s1", Description: "g"})
	s.RemoveSessionGoals("s1")

	assert.Nil(t, s.Get(g.ID))
	assert.Empty(t, s.SessionGoals("s1"))
}

func TestStoreStatus(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a := s.Create(ctx, NewGoal{SessionID: "s1", Description: "a"})
	a.Start()
	s.Create(ctx, NewGoal{SessionID: "s2", Description: "b"})

	status := s.Status()
	assert.Equal(t, 2, status.TotalGoals)
	assert.Equal(t, 1, status.ActiveGoals)
	assert.Equal(t, 1, status.BySession["s1"])
}
