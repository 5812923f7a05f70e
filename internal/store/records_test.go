package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecords(t *testing.T) *Records {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "helmsman.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRecords(db)
}

func TestRecordsPutGetRoundTrip(t *testing.T) {
	r := newTestRecords(t)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, "goals", "g1", []byte(`{"x":1}`)))

	payload, err := r.Get(ctx, "goals", "g1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(payload))
}

func TestRecordsPutOverwrites(t *testing.T) {
	r := newTestRecords(t)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, "goals", "g1", []byte(`{"v":1}`)))
	require.NoError(t, r.Put(ctx, "goals", "g1", []byte(`{"v":2}`)))

	payload, err := r.Get(ctx, "goals", "g1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(payload))
}

func TestRecordsGetMissing(t *testing.T) {
	r := newTestRecords(t)

	_, err := r.Get(context.Background(), "goals", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordsListScopedToBucket(t *testing.T) {
	r := newTestRecords(t)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, "goals", "g1", []byte(`{}`)))
	require.NoError(t, r.Put(ctx, "goals", "g2", []byte(`{}`)))
	require.NoError(t, r.Put(ctx, "plans", "p1", []byte(`{}`)))

	goals, err := r.List(ctx, "goals")
	require.NoError(t, err)
	assert.Len(t, goals, 2)
	assert.Contains(t, goals, "g1")
	assert.NotContains(t, goals, "p1")
}

func TestRecordsDelete(t *testing.T) {
	r := newTestRecords(t)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, "goals", "g1", []byte(`{}`)))
	require.NoError(t, r.Delete(ctx, "goals", "g1"))

	_, err := r.Get(ctx, "goals", "g1")
	assert.ErrorIs(t, err, ErrNotFound)
}
