package records

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

func sampleRecord() *models.Record {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return &models.Record{
		ID:                 "9f0c5a1e-0000-0000-0000-000000000001",
		RecordType:         "patient",
		Version:            3,
		Payload:            []byte(`{"name":"A"}`),
		CreatedByInstance:  "clinic-a",
		ModifiedByInstance: "clinic-b",
		CreatedAt:          now.Add(-time.Hour),
		UpdatedAt:          now,
	}
}

func TestGetByID_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rec := sampleRecord()
	q := `(?s)^SELECT\s+.*FROM\s+records\s+WHERE\s+id\s*=\s*\$1\s*$`

	rows := sqlmock.NewRows([]string{"id", "record_type", "version", "payload",
		"created_by_instance", "modified_by_instance", "created_at", "updated_at", "deleted_at"}).
		AddRow(rec.ID, rec.RecordType, rec.Version, []byte(rec.Payload),
			rec.CreatedByInstance, rec.ModifiedByInstance, rec.CreatedAt, rec.UpdatedAt, nil)
	mock.ExpectQuery(q).WithArgs(rec.ID).WillReturnRows(rows)

	got, err := repo.GetByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.Version != 3 || got.CreatedByInstance != "clinic-a" || got.IsDeleted() {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+.*FROM\s+records\s+WHERE\s+id\s*=\s*\$1\s*$`
	mock.ExpectQuery(q).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "ghost")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestInsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rec := sampleRecord()
	q := `(?s)^INSERT\s+INTO\s+records\s*\(.*\)\s*VALUES\s*\(\$1,.*\$9\)\s*$`
	mock.ExpectExec(q).
		WithArgs(rec.ID, rec.RecordType, rec.Version, string(rec.Payload),
			rec.CreatedByInstance, rec.ModifiedByInstance, rec.CreatedAt, rec.UpdatedAt, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Insert(context.Background(), rec); err != nil {
		t.Fatalf("Insert error: %v", err)
	}
}

func TestUpdateIfVersion_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rec := sampleRecord()
	q := `(?s)^UPDATE\s+records\s+SET\s+.*WHERE\s+id\s*=\s*\$6\s+AND\s+version\s*=\s*\$7\s*$`
	mock.ExpectExec(q).
		WithArgs(rec.Version, string(rec.Payload), rec.ModifiedByInstance, rec.UpdatedAt, nil, rec.ID, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateIfVersion(context.Background(), rec, 2); err != nil {
		t.Fatalf("UpdateIfVersion error: %v", err)
	}
}

func TestUpdateIfVersion_Stale(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rec := sampleRecord()
	q := `(?s)^UPDATE\s+records\s+SET\s+.*WHERE\s+id\s*=\s*\$6\s+AND\s+version\s*=\s*\$7\s*$`
	mock.ExpectExec(q).
		WithArgs(rec.Version, string(rec.Payload), rec.ModifiedByInstance, rec.UpdatedAt, nil, rec.ID, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateIfVersion(context.Background(), rec, 2)
	if !errors.Is(err, common.ErrStaleVersion) {
		t.Fatalf("want common.ErrStaleVersion, got %v", err)
	}
}

func TestPurgeTombstones(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	cutoff := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	q := `(?s)^DELETE\s+FROM\s+records\s+WHERE\s+deleted_at\s+IS\s+NOT\s+NULL\s+AND\s+deleted_at\s*<\s*\$1\s*$`
	mock.ExpectExec(q).WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.PurgeTombstones(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("PurgeTombstones error: %v", err)
	}
	if n != 4 {
		t.Fatalf("want 4 purged rows, got %d", n)
	}
}
