package versioning

import (
	"context"
	"database/sql"
	"testing"

	"github.com/klinikos/medsync/internal/common"
	"github.com/klinikos/medsync/internal/instance/models"
	"github.com/klinikos/medsync/internal/instance/repositories/outbox"
	"github.com/klinikos/medsync/internal/instance/repositories/records"
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
CREATE TABLE records (
  id TEXT PRIMARY KEY,
  record_type TEXT NOT NULL,
  version INTEGER NOT NULL,
  payload TEXT NOT NULL,
  created_by_instance TEXT NOT NULL,
  modified_by_instance TEXT NOT NULL,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL,
  deleted_at TIMESTAMP,
  last_synced_at TIMESTAMP
);
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

func TestStampCreate(t *testing.T) {
	db := setupDB(t)
	s := NewStamper(db, "clinic-a")
	ctx := context.Background()

	rec := &models.Record{
		RecordType: models.RecordTypePatient,
		Payload:    []byte(`{"full_name":"Ann"}`),
	}
	require.NoError(t, s.StampCreate(ctx, rec))

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, int64(1), rec.Version)
	assert.Equal(t, "clinic-a", rec.CreatedByInstance)
	assert.Equal(t, "clinic-a", rec.ModifiedByInstance)
	assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)
	assert.Nil(t, rec.DeletedAt)

	// persisted and enqueued
	got, err := records.NewSQLiteRepository(db).GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)

	batch, err := outbox.NewSQLiteRepository(db).PeekBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, rec.ID, batch[0].RecordID)
	assert.Equal(t, int64(0), batch[0].BaseVersion)
	assert.Equal(t, int64(1), batch[0].NewVersion)
}

func TestStampCreate_RejectsExistingID(t *testing.T) {
	db := setupDB(t)
	s := NewStamper(db, "clinic-a")

	rec := &models.Record{ID: "already", RecordType: models.RecordTypePatient, Payload: []byte(`{}`)}
	err := s.StampCreate(context.Background(), rec)
	require.ErrorIs(t, err, common.ErrInvalidState)
}

func TestStampMutation_IncrementsAndEnqueues(t *testing.T) {
	db := setupDB(t)
	s := NewStamper(db, "clinic-a")
	ctx := context.Background()

	rec := &models.Record{RecordType: models.RecordTypePatient, Payload: []byte(`{"full_name":"Ann"}`)}
	require.NoError(t, s.StampCreate(ctx, rec))

	rec.Payload = []byte(`{"full_name":"Ann B"}`)
	require.NoError(t, s.StampMutation(ctx, rec))

	assert.Equal(t, int64(2), rec.Version)
	assert.Equal(t, "clinic-a", rec.ModifiedByInstance)

	batch, err := outbox.NewSQLiteRepository(db).PeekBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, int64(1), batch[1].BaseVersion)
	assert.Equal(t, int64(2), batch[1].NewVersion)
}

func TestStampMutation_StaleVersion(t *testing.T) {
	db := setupDB(t)
	s := NewStamper(db, "clinic-a")
	ctx := context.Background()

	rec := &models.Record{RecordType: models.RecordTypePatient, Payload: []byte(`{}`)}
	require.NoError(t, s.StampCreate(ctx, rec))

	// another writer advanced the row underneath this in-memory copy
	stale := *rec
	require.NoError(t, s.StampMutation(ctx, rec))

	err := s.StampMutation(ctx, &stale)
	require.ErrorIs(t, err, common.ErrStaleVersion)
	// in-memory version rolled back so caller can re-read
	assert.Equal(t, int64(1), stale.Version)

	// failed stamp did not enqueue
	batch, err2 := outbox.NewSQLiteRepository(db).PeekBatch(ctx, 10)
	require.NoError(t, err2)
	assert.Len(t, batch, 2)
}

func TestStampMutation_RequiresIdentity(t *testing.T) {
	db := setupDB(t)
	s := NewStamper(db, "clinic-a")

	err := s.StampMutation(context.Background(), &models.Record{RecordType: models.RecordTypePatient})
	require.ErrorIs(t, err, common.ErrInvalidState)
}

func TestStampDelete_SetsTombstone(t *testing.T) {
	db := setupDB(t)
	s := NewStamper(db, "clinic-a")
	ctx := context.Background()

	rec := &models.Record{RecordType: models.RecordTypePrescription, Payload: []byte(`{}`)}
	require.NoError(t, s.StampCreate(ctx, rec))
	require.NoError(t, s.StampDelete(ctx, rec))

	assert.Equal(t, int64(2), rec.Version)
	require.NotNil(t, rec.DeletedAt)

	got, err := records.NewSQLiteRepository(db).GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted())

	batch, err := outbox.NewSQLiteRepository(db).PeekBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.True(t, batch[1].Deleted)
}

func TestVersionAfterNMutations(t *testing.T) {
	db := setupDB(t)
	s := NewStamper(db, "clinic-a")
	ctx := context.Background()

	rec := &models.Record{RecordType: models.RecordTypeAppointment, Payload: []byte(`{}`)}
	require.NoError(t, s.StampCreate(ctx, rec))

	const n = 7
	for i := 0; i < n; i++ {
		require.NoError(t, s.StampMutation(ctx, rec))
	}
	assert.Equal(t, int64(1+n), rec.Version)

	// origin never changes
	got, err := records.NewSQLiteRepository(db).GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "clinic-a", got.CreatedByInstance)
}
