// Package records persists the authoritative copy of every synchronized
// record.
package records

import (
	"context"
	"time"

	"github.com/klinikos/medsync/internal/central/models"
)

type Repository interface {
	// GetByID returns the record regardless of tombstone state, or
	// common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Record, error)

	// Insert stores a brand-new record. Returns common.ErrAlreadyExists if
	// the id is taken.
	Insert(ctx context.Context, r *models.Record) error

	// UpdateIfVersion applies r only if the stored version equals
	// baseVersion. Returns common.ErrStaleVersion when another change won.
	UpdateIfVersion(ctx context.Context, r *models.Record, baseVersion int64) error

	// Overwrite replaces the stored record unconditionally. Used when a
	// conflict resolution picks the incoming change as the winner.
	Overwrite(ctx context.Context, r *models.Record) error

	// PurgeTombstones hard-deletes tombstoned records whose deletion is
	// older than the cutoff. Returns the number of purged rows.
	PurgeTombstones(ctx context.Context, olderThan time.Time) (int64, error)
}
