// Package records provides the SQLite-backed repository for local sync
// records.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/klinikos/medsync/internal/common"
	"github.com/klinikos/medsync/internal/dbx"
	"github.com/klinikos/medsync/internal/instance/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, rec *models.Record) error {
	query := `INSERT INTO records
		(id, record_type, version, payload, created_by_instance, modified_by_instance,
		 created_at, updated_at, deleted_at, last_synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.RecordType, rec.Version, string(rec.Payload),
		rec.CreatedByInstance, rec.ModifiedByInstance,
		rec.CreatedAt, rec.UpdatedAt, nullTime(rec.DeletedAt), nullTime(rec.LastSyncedAt))
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// UpdateIfVersion is the local compare-and-set: the row is updated only if it
// still holds expectedVersion. Zero rows affected means a concurrent local
// mutation won, and the caller must re-read.
func (r *SQLiteRepository) UpdateIfVersion(ctx context.Context, rec *models.Record, expectedVersion int64) error {
	query := `UPDATE records SET
			version = ?, payload = ?, modified_by_instance = ?, updated_at = ?, deleted_at = ?
		WHERE id = ? AND version = ?`
	res, err := r.db.ExecContext(ctx, query,
		rec.Version, string(rec.Payload), rec.ModifiedByInstance, rec.UpdatedAt,
		nullTime(rec.DeletedAt), rec.ID, expectedVersion)
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

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Record, error) {
	query := `SELECT id, record_type, version, payload, created_by_instance, modified_by_instance,
			created_at, updated_at, deleted_at, last_synced_at
		FROM records WHERE id = ?`
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

func (r *SQLiteRepository) GetVersion(ctx context.Context, id string) (int64, error) {
	var v int64
	err := r.db.QueryRowContext(ctx, `SELECT version FROM records WHERE id = ?`, id).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, common.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get version: %w", err)
	}
	return v, nil
}

func (r *SQLiteRepository) List(ctx context.Context, recordType models.RecordType) ([]models.Record, error) {
	query := `SELECT id, record_type, version, payload, created_by_instance, modified_by_instance,
			created_at, updated_at, deleted_at, last_synced_at
		FROM records WHERE record_type = ? AND deleted_at IS NULL ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, recordType)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ApplyRemote upserts state already accepted by the central authority.
// The guard on the upsert keeps the local version from ever moving
// backwards: rows behind the incoming version are replaced, rows ahead of it
// are left alone even when a local mutation lands between the caller's
// version check and this statement.
func (r *SQLiteRepository) ApplyRemote(ctx context.Context, rec *models.Record) error {
	query := `INSERT INTO records
		(id, record_type, version, payload, created_by_instance, modified_by_instance,
		 created_at, updated_at, deleted_at, last_synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			payload = excluded.payload,
			modified_by_instance = excluded.modified_by_instance,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			last_synced_at = excluded.last_synced_at
		WHERE excluded.version >= records.version`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.RecordType, rec.Version, string(rec.Payload),
		rec.CreatedByInstance, rec.ModifiedByInstance,
		rec.CreatedAt, rec.UpdatedAt, nullTime(rec.DeletedAt), nullTime(rec.LastSyncedAt))
	if err != nil {
		return fmt.Errorf("failed to apply remote record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, version int64, at time.Time) error {
	query := `UPDATE records SET last_synced_at = ? WHERE id = ? AND version = ?`
	_, err := r.db.ExecContext(ctx, query, at, id, version)
	if err != nil {
		return fmt.Errorf("failed to mark record synced: %w", err)
	}
	return nil
}

func scanRecord(scan func(dest ...any) error) (*models.Record, error) {
	var rec models.Record
	var payload []byte
	var deletedAt, lastSyncedAt sql.NullTime
	if err := scan(&rec.ID, &rec.RecordType, &rec.Version, &payload,
		&rec.CreatedByInstance, &rec.ModifiedByInstance,
		&rec.CreatedAt, &rec.UpdatedAt, &deletedAt, &lastSyncedAt); err != nil {
		return nil, err
	}
	rec.Payload = payload
	if deletedAt.Valid {
		t := deletedAt.Time
		rec.DeletedAt = &t
	}
	if lastSyncedAt.Valid {
		t := lastSyncedAt.Time
		rec.LastSyncedAt = &t
	}
	return &rec, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
