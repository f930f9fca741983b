package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/klinikos/medsync/internal/central/migrations"
	"github.com/klinikos/medsync/internal/central/repositories/audit"
	"github.com/klinikos/medsync/internal/central/repositories/changelog"
	"github.com/klinikos/medsync/internal/central/repositories/instances"
	"github.com/klinikos/medsync/internal/central/repositories/records"
)

type PostgresRepositoryManager struct {
	db        *sql.DB
	records   records.Repository
	changeLog changelog.Repository
	audit     audit.Repository
	instances instances.Repository
}

func (m *PostgresRepositoryManager) Conn() *sql.DB {
	return m.db
}

func (m *PostgresRepositoryManager) Records() records.Repository {
	return m.records
}

func (m *PostgresRepositoryManager) ChangeLog() changelog.Repository {
	return m.changeLog
}

func (m *PostgresRepositoryManager) Audit() audit.Repository {
	return m.audit
}

func (m *PostgresRepositoryManager) Instances() instances.Repository {
	return m.instances
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("pgx"); err != nil {
		log.Fatal("failed to set goose dialect:", err)
	}

	if err := goose.UpContext(ctx, m.db, "."); err != nil {
		return err
	}

	return nil
}

func NewPostgresRepositoryManager(dsn string) (RepositoryManager, error) {

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	m := &PostgresRepositoryManager{
		db:        db,
		records:   records.NewPostgresRepository(db),
		changeLog: changelog.NewPostgresRepository(db),
		audit:     audit.NewPostgresRepository(db),
		instances: instances.NewPostgresRepository(db),
	}

	err = m.RunMigrations(context.Background())
	if err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return m, nil
}
