package audit

import (
	"context"
	"fmt"

	"github.com/klinikos/medsync/internal/central/models"
	"github.com/klinikos/medsync/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, a *models.ConflictAudit) error {
	query := `INSERT INTO conflict_audit
		(record_id, record_type, winning_version, losing_instance, losing_payload,
		 losing_updated_at, reason, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		a.RecordID, a.RecordType, a.WinningVersion, a.LosingInstance,
		string(a.LosingPayload), a.LosingUpdatedAt, a.Reason, a.ResolvedAt).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to insert conflict audit entry: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByRecord(ctx context.Context, recordID string) ([]models.ConflictAudit, error) {
	query := `SELECT id, record_id, record_type, winning_version, losing_instance,
			losing_payload, losing_updated_at, reason, resolved_at
		FROM conflict_audit WHERE record_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to select conflict audit entries: %w", err)
	}
	defer rows.Close()

	var result []models.ConflictAudit
	for rows.Next() {
		var a models.ConflictAudit
		var payload []byte
		if err := rows.Scan(&a.ID, &a.RecordID, &a.RecordType, &a.WinningVersion,
			&a.LosingInstance, &payload, &a.LosingUpdatedAt, &a.Reason, &a.ResolvedAt); err != nil {
			return nil, err
		}
		a.LosingPayload = payload
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
