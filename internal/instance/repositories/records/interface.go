package records

import (
	"context"
	"time"

	"github.com/klinikos/medsync/internal/instance/models"
)

// Repository describes storage operations for local sync records.
// Implementations are backed by the instance's SQLite database.
type Repository interface {
	// Insert stores a freshly created record (version 1).
	Insert(ctx context.Context, rec *models.Record) error

	// UpdateIfVersion applies rec's new state only if the stored row still
	// holds expectedVersion. Returns common.ErrStaleVersion otherwise.
	UpdateIfVersion(ctx context.Context, rec *models.Record, expectedVersion int64) error

	// GetByID returns a record by id, tombstones included.
	GetByID(ctx context.Context, id string) (*models.Record, error)

	// GetVersion returns the current stored version, or common.ErrNotFound.
	GetVersion(ctx context.Context, id string) (int64, error)

	// List returns non-deleted records of the given type.
	List(ctx context.Context, recordType models.RecordType) ([]models.Record, error)

	// ApplyRemote upserts a record with state accepted by the central
	// authority. A local row at a higher version is left untouched, so the
	// stored version never regresses.
	ApplyRemote(ctx context.Context, rec *models.Record) error

	// MarkSynced sets last_synced_at for the record if its stored version is
	// still version.
	MarkSynced(ctx context.Context, id string, version int64, at time.Time) error
}
