// Package metadata persists small sync bookkeeping values in the local
// SQLite database.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/klinikos/medsync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns the stored value for key, or nil when the key has never been
// set.
func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete metadata[%s]: %w", key, err)
	}
	return nil
}

// PullCursor reads the persisted change-log cursor. A never-synced instance
// starts at 0.
func PullCursor(ctx context.Context, r Repository) (int64, error) {
	raw, err := r.Get(ctx, KeyPullCursor)
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	cursor, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt pull cursor %q: %w", raw, err)
	}
	return cursor, nil
}

// SetPullCursor persists the change-log cursor after a pull batch has been
// applied.
func SetPullCursor(ctx context.Context, r Repository, cursor int64) error {
	return r.Set(ctx, KeyPullCursor, []byte(strconv.FormatInt(cursor, 10)))
}
