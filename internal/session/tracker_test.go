package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutcome(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, ParseOutcome("success"))
	assert.Equal(t, OutcomeTimeout, ParseOutcome(" Timeout "))
	assert.Equal(t, OutcomeSkipped, ParseOutcome("skipped"))
	assert.Equal(t, OutcomePending, ParseOutcome("pending"))
	assert.Equal(t, OutcomeFailed, ParseOutcome("failed"))
	assert.Equal(t, OutcomeFailed, ParseOutcome("exploded"))
	assert.Equal(t, OutcomeFailed, ParseOutcome(""))
}

func TestNewObservationDerivedFields(t *testing.T) {
	obs := NewObservation("s1", "line one\nTraceback (most recent call last):\nline three", "permission", "edit file.py")

	assert.True(t, obs.HasError)
	assert.True(t, obs.HasPermission)
	assert.False(t, obs.HasQuestion)
	assert.Equal(t, 3, obs.LineCount)
}

func TestSimilarObservationsIncrementAndReset(t *testing.T) {
	tracker := NewTracker()
	screen := "$ running tests\nwaiting\nwaiting\nwaiting\nstill waiting"

	tracker.RecordObservation("s1", screen, "permission", "approve?")
	tracker.RecordObservation("s1", screen, "permission", "approve?")
	tracker.RecordObservation("s1", screen, "permission", "approve?")

	state := tracker.State("s1")
	assert.Equal(t, 2, state.SimilarObservations)

	// A different tail breaks the streak.
	tracker.RecordObservation("s1", "completely\ndifferent\nscreen\ncontent\nnow", "permission", "approve?")
	assert.Equal(t, 0, state.SimilarObservations)
}

func TestSimilarRequiresSamePromptTypeAndCloseLineCount(t *testing.T) {
	a := NewObservation("s", "x\ny\nz", "permission", "p")
	b := NewObservation("s", "x\ny\nz", "question", "p")
	assert.False(t, similar(a, b))

	long := "x\ny\nz\n1\n2\n3\n4\n5\n6\n7\n8\n9"
	c := NewObservation("s", long, "permission", "p")
	assert.False(t, similar(a, c))
}

func TestIsStuckAfterThreeSimilar(t *testing.T) {
	tracker := NewTracker()
	screen := "same\nscreen\ncontent"

	for i := 0; i < 4; i++ {
		tracker.RecordObservation("s1", screen, "permission", "approve?")
	}

	state := tracker.State("s1")
	assert.GreaterOrEqual(t, state.SimilarObservations, 3)
	assert.True(t, state.IsStuck())
}

func TestIsStuckAfterNoProgress(t *testing.T) {
	tracker := NewTracker()
	state := tracker.State("s1")
	assert.False(t, state.IsStuck())

	state.LastProgressAt = time.Now().Add(-6 * time.Minute)
	assert.True(t, state.IsStuck())
}

func TestRecordActionMovesToWaiting(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordObservation("s1", "screen", "permission", "edit file.py")

	action := tracker.RecordAction("s1", "approve", "1", 0, "abcd1234")

	state := tracker.State("s1")
	assert.Equal(t, PhaseWaiting, state.Phase)
	assert.Equal(t, OutcomePending, action.Outcome)
	assert.Equal(t, "abcd1234", action.ContextHash)
}

func TestRecordOutcomeSuccessResetsStuckCounters(t *testing.T) {
	tracker := NewTracker()
	screen := "same\nscreen"
	tracker.RecordObservation("s1", screen, "permission", "p")
	tracker.RecordObservation("s1", screen, "permission", "p")
	tracker.RecordAction("s1", "approve", "1", 1, "")

	tracker.RecordOutcome("s1", OutcomeSuccess, "")

	state := tracker.State("s1")
	assert.Equal(t, 0, state.SimilarObservations)
	assert.Equal(t, 1, state.SuccessfulActions)
	assert.Equal(t, PhaseObserving, state.Phase)

	latest := state.LatestAction()
	require.NotNil(t, latest)
	assert.Equal(t, OutcomeSuccess, latest.Outcome)
}

func TestRecordOutcomeFailedMarksStuckWhenRepeating(t *testing.T) {
	tracker := NewTracker()
	screen := "same\nscreen"
	for i := 0; i < 4; i++ {
		tracker.RecordObservation("s1", screen, "permission", "p")
	}
	tracker.RecordAction("s1", "approve", "1", 3, "")

	tracker.RecordOutcome("s1", OutcomeFailed, "denied")

	state := tracker.State("s1")
	assert.Equal(t, PhaseStuck, state.Phase)
	assert.Equal(t, 1, state.FailedActions)
}

func TestSuccessRate(t *testing.T) {
	state := newState("s1")
	assert.Equal(t, 1.0, state.SuccessRate())

	state.SuccessfulActions = 3
	state.FailedActions = 1
	assert.InDelta(t, 0.75, state.SuccessRate(), 1e-9)
}

func TestHistoryBounded(t *testing.T) {
	tracker := NewTracker()
	for i := 0; i < historyLimit+20; i++ {
		tracker.RecordObservation("s1", "screen", "", "")
	}
	state := tracker.State("s1")
	assert.Len(t, state.observations, historyLimit)
	assert.Equal(t, historyLimit+20, state.TotalObservations)
}

func TestRemoveSession(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordObservation("s1", "screen", "", "")
	require.Len(t, tracker.Sessions(), 1)

	tracker.Remove("s1")
	assert.Empty(t, tracker.Sessions())
}

func TestTrackerStatus(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordObservation("s1", "screen", "permission", "p")
	tracker.RecordObservation("s2", "screen", "", "")

	status := tracker.Status()
	assert.Equal(t, 2, status.ActiveSessions)
	assert.Equal(t, PhaseObserving, status.Sessions["s1"].Phase)
	assert.Equal(t, PhaseIdle, status.Sessions["s2"].Phase)
}
