package instance

import (
	"context"
	"database/sql"
	"log"

	"github.com/pressly/goose/v3"

	"github.com/klinikos/medsync/internal/instance/migrations"
	"github.com/klinikos/medsync/internal/instance/repositories/metadata"
	"github.com/klinikos/medsync/internal/instance/repositories/outbox"
	"github.com/klinikos/medsync/internal/instance/repositories/records"
)

// Repositories bundles the local storage layer of one instance.
type Repositories struct {
	Records  records.Repository
	Outbox   outbox.Repository
	Metadata metadata.Repository
	DB       *sql.DB
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	// Set the database dialect
	if err := goose.SetDialect("sqlite3"); err != nil {
		log.Fatal("failed to set goose dialect:", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens the local SQLite database, applies pending migrations
// and builds the repository set on top of it.
func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		return nil, err
	}

	repos := &Repositories{
		Records:  records.NewSQLiteRepository(db),
		Outbox:   outbox.NewSQLiteRepository(db),
		Metadata: metadata.NewSQLiteRepository(db),
		DB:       db,
	}
	return repos, nil
}
