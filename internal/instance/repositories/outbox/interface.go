package outbox

import (
	"context"

	"github.com/klinikos/medsync/internal/instance/models"
)

// Repository is the durable, append-only change log of local mutations
// awaiting acknowledgment from the central authority.
type Repository interface {
	// Enqueue appends an entry. Entries are never overwritten; repeated
	// mutations of the same record produce one entry each.
	Enqueue(ctx context.Context, e *models.OutboxEntry) error

	// PeekBatch returns up to maxSize unacknowledged entries, oldest first,
	// without removing them.
	PeekBatch(ctx context.Context, maxSize int) ([]*models.OutboxEntry, error)

	// Acknowledge marks the given entries as pushed. Acknowledging an entry
	// twice is a no-op.
	Acknowledge(ctx context.Context, ids []int64) error

	// CountPending returns the number of unacknowledged entries.
	CountPending(ctx context.Context) (int, error)
}
