package changelog

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

func TestAppend_AssignsSequence(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e := &models.ChangeLogEntry{
		RecordID:          "rec-1",
		RecordType:        "patient",
		Version:           1,
		Payload:           []byte(`{}`),
		OriginInstance:    "clinic-a",
		CreatedByInstance: "clinic-a",
		CreatedAt:         now,
		UpdatedAt:         now,
		LoggedAt:          now,
	}

	q := `(?s)^INSERT\s+INTO\s+change_log\s*\(.*\)\s*VALUES\s*\(\$1,.*\$10\)\s*RETURNING\s+sequence\s*$`
	rows := sqlmock.NewRows([]string{"sequence"}).AddRow(int64(17))
	mock.ExpectQuery(q).
		WithArgs(e.RecordID, e.RecordType, e.Version, string(e.Payload),
			e.OriginInstance, e.CreatedByInstance, e.CreatedAt, e.UpdatedAt, nil, e.LoggedAt).
		WillReturnRows(rows)

	if err := repo.Append(context.Background(), e); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if e.Sequence != 17 {
		t.Fatalf("want sequence 17, got %d", e.Sequence)
	}
}

func TestListSince(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cols := []string{"sequence", "record_id", "record_type", "version", "payload",
		"origin_instance", "created_by_instance", "created_at", "updated_at", "deleted_at", "logged_at"}
	rows := sqlmock.NewRows(cols).
		AddRow(int64(5), "rec-1", "patient", int64(1), []byte(`{}`), "clinic-a", "clinic-a", now, now, nil, now).
		AddRow(int64(6), "rec-2", "lab_result", int64(2), []byte(`{}`), "clinic-b", "clinic-a", now, now, now, now)

	q := `(?s)^SELECT\s+.*FROM\s+change_log\s+WHERE\s+sequence\s*>\s*\$1\s+ORDER\s+BY\s+sequence\s+LIMIT\s+\$2\s*$`
	mock.ExpectQuery(q).WithArgs(int64(4), 100).WillReturnRows(rows)

	got, err := repo.ListSince(context.Background(), 4, 100)
	if err != nil {
		t.Fatalf("ListSince error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 entries, got %d", len(got))
	}
	if got[0].Sequence != 5 || got[1].DeletedAt == nil {
		t.Fatalf("unexpected entries: %+v", got)
	}
}

func TestGetByRecordVersion_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+.*FROM\s+change_log\s+WHERE\s+record_id\s*=\s*\$1\s+AND\s+version\s*=\s*\$2\s*$`
	mock.ExpectQuery(q).WithArgs("ghost", int64(1)).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByRecordVersion(context.Background(), "ghost", 1)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestPruneThrough(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	cutoff := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	q := `(?s)^DELETE\s+FROM\s+change_log\s+WHERE\s+sequence\s*<=\s*\$1\s+AND\s+logged_at\s*<\s*\$2\s*$`
	mock.ExpectExec(q).WithArgs(int64(40), cutoff).WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := repo.PruneThrough(context.Background(), 40, cutoff)
	if err != nil {
		t.Fatalf("PruneThrough error: %v", err)
	}
	if n != 12 {
		t.Fatalf("want 12 pruned rows, got %d", n)
	}
}
