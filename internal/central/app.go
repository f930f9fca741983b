// Package central wires up the central authority: the PostgreSQL-backed
// repositories, the sync and instance services, the HTTP API and the
// retention garbage collector.
package central

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/klinikos/medsync/internal/central/config"
	"github.com/klinikos/medsync/internal/central/db"
	"github.com/klinikos/medsync/internal/central/httpapi"
	"github.com/klinikos/medsync/internal/central/services"
	"github.com/klinikos/medsync/internal/logging"
)

type App struct {
	config *config.Config
	logger logging.Logger
	server *httpapi.Server
	gc     *services.GCService
}

func NewApp(c *config.Config) (*App, error) {

	slog := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slog)

	m, err := db.NewPostgresRepositoryManager(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	syncService := services.NewSyncService(m.Conn(), m.Instances(), logger)
	instanceService := services.NewInstanceService(m.Instances(), []byte(c.SecretKey), c.TokenValidityDuration, logger)
	attachmentService := services.NewAttachmentService(c)
	gc := services.NewGCService(m.Records(), m.ChangeLog(), m.Instances(),
		c.RetentionWindow, c.GCInterval, logger)

	server := httpapi.NewServer(c.EndpointAddr, []byte(c.SecretKey),
		syncService, instanceService, attachmentService, logger)

	return &App{config: c, logger: logger, server: server, gc: gc}, nil
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

// Run starts the HTTP API and the garbage collector and blocks until the
// context is cancelled or an interrupt signal arrives.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting central authority...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.gc.Run(ctx)
	}()

	wg.Wait()

}
