package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/klinikos/medsync/internal/central/models"
	"github.com/klinikos/medsync/internal/common"
	"github.com/klinikos/medsync/internal/dbx"
)

// PostgresRepository implements Repository using a DBTX (either *sql.DB or
// *sql.Tx), so it can participate in the push transaction.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Record, error) {
	query := `SELECT id, record_type, version, payload, created_by_instance, modified_by_instance,
			created_at, updated_at, deleted_at
		FROM records WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, rec *models.Record) error {
	query := `INSERT INTO records
		(id, record_type, version, payload, created_by_instance, modified_by_instance,
		 created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.RecordType, rec.Version, string(rec.Payload),
		rec.CreatedByInstance, rec.ModifiedByInstance,
		rec.CreatedAt, rec.UpdatedAt, nullTime(rec.DeletedAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// UpdateIfVersion is the authoritative compare-and-set: the row is updated
// only if it still holds baseVersion. Zero rows affected means a concurrent
// push won, and the caller must resolve the conflict.
func (r *PostgresRepository) UpdateIfVersion(ctx context.Context, rec *models.Record, baseVersion int64) error {
	query := `UPDATE records SET
			version = $1, payload = $2, modified_by_instance = $3, updated_at = $4, deleted_at = $5
		WHERE id = $6 AND version = $7`
	res, err := r.db.ExecContext(ctx, query,
		rec.Version, string(rec.Payload), rec.ModifiedByInstance, rec.UpdatedAt,
		nullTime(rec.DeletedAt), rec.ID, baseVersion)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrStaleVersion
	}
	return nil
}

func (r *PostgresRepository) Overwrite(ctx context.Context, rec *models.Record) error {
	query := `UPDATE records SET
			record_type = $1, version = $2, payload = $3, modified_by_instance = $4,
			updated_at = $5, deleted_at = $6
		WHERE id = $7`
	_, err := r.db.ExecContext(ctx, query,
		rec.RecordType, rec.Version, string(rec.Payload), rec.ModifiedByInstance,
		rec.UpdatedAt, nullTime(rec.DeletedAt), rec.ID)
	if err != nil {
		return fmt.Errorf("failed to overwrite record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) PurgeTombstones(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM records WHERE deleted_at IS NOT NULL AND deleted_at < $1`
	res, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge tombstones: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func scanRecord(scan func(dest ...any) error) (*models.Record, error) {
	var rec models.Record
	var payload []byte
	var deletedAt sql.NullTime
	if err := scan(&rec.ID, &rec.RecordType, &rec.Version, &payload,
		&rec.CreatedByInstance, &rec.ModifiedByInstance,
		&rec.CreatedAt, &rec.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	rec.Payload = payload
	if deletedAt.Valid {
		t := deletedAt.Time
		rec.DeletedAt = &t
	}
	return &rec, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
