// Package instances persists registered clinic installations and their pull
// cursors.
package instances

import (
	"context"
	"time"

	"github.com/klinikos/medsync/internal/central/models"
)

type Repository interface {
	// Create registers an instance. Returns common.ErrAlreadyExists if the
	// id is taken.
	Create(ctx context.Context, inst *models.Instance) error

	// GetByID returns the instance or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Instance, error)

	List(ctx context.Context) ([]models.Instance, error)

	UpdateLastSeen(ctx context.Context, id string, at time.Time) error

	// SetCursor advances the instance's pull cursor. The cursor never moves
	// backwards.
	SetCursor(ctx context.Context, id string, cursor int64) error

	// MinCursor returns the lowest pull cursor across all instances, or 0
	// if none are registered. Change-log pruning must not pass it.
	MinCursor(ctx context.Context) (int64, error)
}
