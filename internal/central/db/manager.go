// Package db wires the central repositories to a PostgreSQL connection and
// runs migrations on startup.
package db

import (
	"context"
	"database/sql"

	"github.com/klinikos/medsync/internal/central/repositories/audit"
	"github.com/klinikos/medsync/internal/central/repositories/changelog"
	"github.com/klinikos/medsync/internal/central/repositories/instances"
	"github.com/klinikos/medsync/internal/central/repositories/records"
)

type RepositoryManager interface {
	RunMigrations(context.Context) error
	Conn() *sql.DB
	Records() records.Repository
	ChangeLog() changelog.Repository
	Audit() audit.Repository
	Instances() instances.Repository
}
