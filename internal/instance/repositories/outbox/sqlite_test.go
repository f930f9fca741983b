package outbox

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/klinikos/medsync/internal/instance/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE outbox (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  record_id TEXT NOT NULL,
  record_type TEXT NOT NULL,
  base_version INTEGER NOT NULL,
  new_version INTEGER NOT NULL,
  payload TEXT NOT NULL,
  deleted INTEGER NOT NULL DEFAULT 0,
  deleted_at TIMESTAMP,
  modified_by TEXT NOT NULL,
  updated_at TIMESTAMP NOT NULL,
  enqueued_at TIMESTAMP NOT NULL,
  acked INTEGER NOT NULL DEFAULT 0
);
`)
	require.NoError(t, err)
	return db
}

func entry(recordID string, base, next int64) *models.OutboxEntry {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.OutboxEntry{
		RecordID:    recordID,
		RecordType:  models.RecordTypeAppointment,
		BaseVersion: base,
		NewVersion:  next,
		Payload:     []byte(`{"status":"booked"}`),
		ModifiedBy:  "clinic-a",
		UpdatedAt:   now,
		EnqueuedAt:  now,
	}
}

func TestEnqueue_AssignsInsertionOrder(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	e1 := entry("x", 0, 1)
	e2 := entry("x", 1, 2)
	require.NoError(t, r.Enqueue(ctx, e1))
	require.NoError(t, r.Enqueue(ctx, e2))

	assert.Greater(t, e2.ID, e1.ID)
}

func TestPeekBatch_OldestFirstAndDoesNotRemove(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	for i := int64(0); i < 5; i++ {
		require.NoError(t, r.Enqueue(ctx, entry("x", i, i+1)))
	}

	batch, err := r.PeekBatch(ctx, 3)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, int64(1), batch[0].NewVersion)
	assert.Equal(t, int64(3), batch[2].NewVersion)

	// peeking again returns the same entries
	again, err := r.PeekBatch(ctx, 3)
	require.NoError(t, err)
	require.Len(t, again, 3)
	assert.Equal(t, batch[0].ID, again[0].ID)
}

func TestAcknowledge_Idempotent(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	e1 := entry("x", 0, 1)
	e2 := entry("y", 0, 1)
	require.NoError(t, r.Enqueue(ctx, e1))
	require.NoError(t, r.Enqueue(ctx, e2))

	require.NoError(t, r.Acknowledge(ctx, []int64{e1.ID}))

	n, err := r.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// double-acknowledge is a no-op
	require.NoError(t, r.Acknowledge(ctx, []int64{e1.ID}))
	n, err = r.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// empty set is a no-op
	require.NoError(t, r.Acknowledge(ctx, nil))
}

func TestPeekBatch_SkipsAcked(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	e1 := entry("x", 0, 1)
	e2 := entry("x", 1, 2)
	require.NoError(t, r.Enqueue(ctx, e1))
	require.NoError(t, r.Enqueue(ctx, e2))
	require.NoError(t, r.Acknowledge(ctx, []int64{e1.ID}))

	batch, err := r.PeekBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, e2.ID, batch[0].ID)
}

func TestEnqueue_PreservesTombstoneFields(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	e := entry("x", 3, 4)
	e.Deleted = true
	e.DeletedAt = &now
	require.NoError(t, r.Enqueue(ctx, e))

	batch, err := r.PeekBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.True(t, batch[0].Deleted)
	require.NotNil(t, batch[0].DeletedAt)
}
