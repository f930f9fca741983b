// Package outbox provides the SQLite-backed local change log drained by the
// sync transport.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

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

func (r *SQLiteRepository) Enqueue(ctx context.Context, e *models.OutboxEntry) error {
	query := `INSERT INTO outbox
		(record_id, record_type, base_version, new_version, payload, deleted, deleted_at,
		 modified_by, updated_at, enqueued_at, acked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`
	res, err := r.db.ExecContext(ctx, query,
		e.RecordID, e.RecordType, e.BaseVersion, e.NewVersion, string(e.Payload),
		boolToInt(e.Deleted), nullTime(e.DeletedAt), e.ModifiedBy, e.UpdatedAt, e.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get outbox entry id: %w", err)
	}
	e.ID = id
	return nil
}

func (r *SQLiteRepository) PeekBatch(ctx context.Context, maxSize int) ([]*models.OutboxEntry, error) {
	query := `SELECT id, record_id, record_type, base_version, new_version, payload,
			deleted, deleted_at, modified_by, updated_at, enqueued_at
		FROM outbox WHERE acked = 0 ORDER BY id LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, maxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to select outbox entries: %w", err)
	}
	defer rows.Close()

	var result []*models.OutboxEntry
	for rows.Next() {
		e := &models.OutboxEntry{}
		var payload []byte
		var deleted int
		var deletedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.RecordID, &e.RecordType, &e.BaseVersion, &e.NewVersion,
			&payload, &deleted, &deletedAt, &e.ModifiedBy, &e.UpdatedAt, &e.EnqueuedAt); err != nil {
			return nil, err
		}
		e.Payload = payload
		e.Deleted = deleted != 0
		if deletedAt.Valid {
			t := deletedAt.Time
			e.DeletedAt = &t
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Acknowledge(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf(`UPDATE outbox SET acked = 1 WHERE id IN (%s)`, placeholders)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to acknowledge outbox entries: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM outbox WHERE acked = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending entries: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
