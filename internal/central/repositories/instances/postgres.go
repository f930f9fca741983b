package instances

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

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, inst *models.Instance) error {
	query := `INSERT INTO instances (id, name, secret_hash, cursor, registered_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query,
		inst.ID, inst.Name, inst.SecretHash, inst.Cursor, inst.RegisteredAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert instance: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Instance, error) {
	query := `SELECT id, name, secret_hash, cursor, registered_at, last_seen_at
		FROM instances WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	inst, err := scanInstance(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return inst, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]models.Instance, error) {
	query := `SELECT id, name, secret_hash, cursor, registered_at, last_seen_at
		FROM instances ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select instances: %w", err)
	}
	defer rows.Close()

	var result []models.Instance
	for rows.Next() {
		inst, err := scanInstance(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE instances SET last_seen_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetCursor(ctx context.Context, id string, cursor int64) error {
	query := `UPDATE instances SET cursor = $1 WHERE id = $2 AND cursor < $1`
	_, err := r.db.ExecContext(ctx, query, cursor, id)
	if err != nil {
		return fmt.Errorf("failed to set cursor: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MinCursor(ctx context.Context) (int64, error) {
	var cursor sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT MIN(cursor) FROM instances`).Scan(&cursor)
	if err != nil {
		return 0, fmt.Errorf("failed to get min cursor: %w", err)
	}
	if !cursor.Valid {
		return 0, nil
	}
	return cursor.Int64, nil
}

func scanInstance(scan func(dest ...any) error) (*models.Instance, error) {
	var inst models.Instance
	var lastSeen sql.NullTime
	if err := scan(&inst.ID, &inst.Name, &inst.SecretHash, &inst.Cursor,
		&inst.RegisteredAt, &lastSeen); err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		inst.LastSeenAt = &t
	}
	return &inst, nil
}
