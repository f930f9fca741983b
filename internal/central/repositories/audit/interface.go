// Package audit persists the conflict audit trail: every losing change is
// kept for clinical review.
package audit

import (
	"context"

	"github.com/klinikos/medsync/internal/central/models"
)

type Repository interface {
	Insert(ctx context.Context, a *models.ConflictAudit) error
	ListByRecord(ctx context.Context, recordID string) ([]models.ConflictAudit, error)
}
