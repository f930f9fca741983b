package changelog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/klinikos/medsync/internal/central/models"
	"github.com/klinikos/medsync/internal/common"
	"github.com/klinikos/medsync/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, e *models.ChangeLogEntry) error {
	query := `INSERT INTO change_log
		(record_id, record_type, version, payload, origin_instance, created_by_instance,
		 created_at, updated_at, deleted_at, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING sequence`
	err := r.db.QueryRowContext(ctx, query,
		e.RecordID, e.RecordType, e.Version, string(e.Payload),
		e.OriginInstance, e.CreatedByInstance,
		e.CreatedAt, e.UpdatedAt, nullTime(e.DeletedAt), e.LoggedAt).Scan(&e.Sequence)
	if err != nil {
		return fmt.Errorf("failed to append change log entry: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListSince(ctx context.Context, cursor int64, limit int) ([]models.ChangeLogEntry, error) {
	query := `SELECT sequence, record_id, record_type, version, payload, origin_instance,
			created_by_instance, created_at, updated_at, deleted_at, logged_at
		FROM change_log WHERE sequence > $1 ORDER BY sequence LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select change log entries: %w", err)
	}
	defer rows.Close()

	var result []models.ChangeLogEntry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) GetByRecordVersion(ctx context.Context, recordID string, version int64) (*models.ChangeLogEntry, error) {
	query := `SELECT sequence, record_id, record_type, version, payload, origin_instance,
			created_by_instance, created_at, updated_at, deleted_at, logged_at
		FROM change_log WHERE record_id = $1 AND version = $2`
	row := r.db.QueryRowContext(ctx, query, recordID, version)

	e, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) PruneThrough(ctx context.Context, cursor int64, olderThan time.Time) (int64, error) {
	query := `DELETE FROM change_log WHERE sequence <= $1 AND logged_at < $2`
	res, err := r.db.ExecContext(ctx, query, cursor, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune change log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func scanEntry(scan func(dest ...any) error) (*models.ChangeLogEntry, error) {
	var e models.ChangeLogEntry
	var payload []byte
	var deletedAt sql.NullTime
	if err := scan(&e.Sequence, &e.RecordID, &e.RecordType, &e.Version, &payload,
		&e.OriginInstance, &e.CreatedByInstance,
		&e.CreatedAt, &e.UpdatedAt, &deletedAt, &e.LoggedAt); err != nil {
		return nil, err
	}
	e.Payload = payload
	if deletedAt.Valid {
		t := deletedAt.Time
		e.DeletedAt = &t
	}
	return &e, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
