package instances

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/klinikos/medsync/internal/central/models"
	"github.com/klinikos/medsync/internal/common"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	inst := &models.Instance{ID: "clinic-a", Name: "Clinic A", SecretHash: "hash", RegisteredAt: now}

	q := `(?s)^INSERT\s+INTO\s+instances\s*\(.*\)\s*VALUES\s*\(\$1,.*\$5\)\s*$`
	mock.ExpectExec(q).
		WithArgs(inst.ID, inst.Name, inst.SecretHash, inst.Cursor, inst.RegisteredAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), inst); err != nil {
		t.Fatalf("Create error: %v", err)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+.*FROM\s+instances\s+WHERE\s+id\s*=\s*\$1\s*$`
	mock.ExpectQuery(q).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "ghost")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestGetByID_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	q := `(?s)^SELECT\s+.*FROM\s+instances\s+WHERE\s+id\s*=\s*\$1\s*$`
	rows := sqlmock.NewRows([]string{"id", "name", "secret_hash", "cursor", "registered_at", "last_seen_at"}).
		AddRow("clinic-a", "Clinic A", "hash", int64(12), now, now)
	mock.ExpectQuery(q).WithArgs("clinic-a").WillReturnRows(rows)

	got, err := repo.GetByID(context.Background(), "clinic-a")
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.Cursor != 12 || got.LastSeenAt == nil {
		t.Fatalf("unexpected instance: %+v", got)
	}
}

func TestSetCursor_NeverMovesBack(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+instances\s+SET\s+cursor\s*=\s*\$1\s+WHERE\s+id\s*=\s*\$2\s+AND\s+cursor\s*<\s*\$1\s*$`
	mock.ExpectExec(q).WithArgs(int64(30), "clinic-a").WillReturnResult(sqlmock.NewResult(0, 0))

	// A stale cursor just affects zero rows; no error.
	if err := repo.SetCursor(context.Background(), "clinic-a", 30); err != nil {
		t.Fatalf("SetCursor error: %v", err)
	}
}

func TestMinCursor(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+MIN\(cursor\)\s+FROM\s+instances\s*$`

	t.Run("with instances", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"min"}).AddRow(int64(7))
		mock.ExpectQuery(q).WillReturnRows(rows)

		n, err := repo.MinCursor(context.Background())
		if err != nil {
			t.Fatalf("MinCursor error: %v", err)
		}
		if n != 7 {
			t.Fatalf("want min cursor 7, got %d", n)
		}
	})

	t.Run("no instances", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"min"}).AddRow(nil)
		mock.ExpectQuery(q).WillReturnRows(rows)

		n, err := repo.MinCursor(context.Background())
		if err != nil {
			t.Fatalf("MinCursor error: %v", err)
		}
		if n != 0 {
			t.Fatalf("want min cursor 0, got %d", n)
		}
	})
}
