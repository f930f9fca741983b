// Package instance wires up one local medsync installation: the embedded
// SQLite store, the version stamper, the record service and the background
// syncer that exchanges changes with the central authority.
package instance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/klinikos/medsync/internal/instance/config"
	"github.com/klinikos/medsync/internal/instance/services"
	"github.com/klinikos/medsync/internal/instance/syncer"
	"github.com/klinikos/medsync/internal/instance/versioning"
	"github.com/klinikos/medsync/internal/logging"
)

type App struct {
	config        *config.Config
	logger        logging.Logger
	repos         *Repositories
	recordService services.RecordService
	syncer        *syncer.Syncer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	slog := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slog)

	repos, err := InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	stamper := versioning.NewStamper(repos.DB, c.InstanceID)
	rs := services.NewRecordService(stamper, repos.Records)

	client := syncer.NewHTTPClient(c.CentralEndpoint, c.InstanceID, c.APISecret, c.SyncTimeout)
	sc := syncer.New(client, repos.Records, repos.Outbox, repos.Metadata, c.InstanceID, logger,
		syncer.Options{
			BatchSize:  c.BatchSize,
			Interval:   c.SyncInterval,
			MaxRetries: uint64(c.MaxRetries),
		})

	return &App{config: c, logger: logger, repos: repos, recordService: rs, syncer: sc}, nil
}

// Records exposes the local record service for embedding callers (HTTP UI,
// CLI tooling, tests).
func (app *App) Records() services.RecordService {
	return app.recordService
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run starts the background syncer and blocks until the context is cancelled
// or an interrupt signal arrives. The local database is closed on the way out.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting instance...", "instance_id", app.config.InstanceID)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.syncer.Run(ctx)
	}()

	wg.Wait()

	if err := app.repos.DB.Close(); err != nil {
		app.logger.Error(ctx, "closing database", "error", err)
	}
}
