// Package changelog persists the global, totally ordered log of accepted
// changes. Instances pull from it by sequence cursor.
package changelog

import (
	"context"
	"time"

	"github.com/klinikos/medsync/internal/central/models"
)

type Repository interface {
	// Append stores the entry and fills in its database-assigned Sequence.
	Append(ctx context.Context, e *models.ChangeLogEntry) error

	// ListSince returns up to limit entries with sequence > cursor, in
	// sequence order.
	ListSince(ctx context.Context, cursor int64, limit int) ([]models.ChangeLogEntry, error)

	// GetByRecordVersion returns the entry for (recordID, version), or
	// common.ErrNotFound. Used to detect replayed pushes.
	GetByRecordVersion(ctx context.Context, recordID string, version int64) (*models.ChangeLogEntry, error)

	// PruneThrough deletes entries every instance has already pulled
	// (sequence <= cursor) that were logged before the cutoff. Returns the
	// number of pruned rows.
	PruneThrough(ctx context.Context, cursor int64, olderThan time.Time) (int64, error)
}
