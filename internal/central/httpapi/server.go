// Package httpapi exposes the central authority's HTTP/JSON API: instance
// registration and token exchange, push/pull sync endpoints and attachment
// presigning.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/klinikos/medsync/internal/logging"
	"github.com/klinikos/medsync/internal/wire"
)

// SyncAPI is what the handlers need from the sync service.
type SyncAPI interface {
	AcceptPush(ctx context.Context, instanceID string, req *wire.PushRequest) (*wire.PushResponse, error)
	ServePull(ctx context.Context, instanceID string, req *wire.PullRequest) (*wire.PullResponse, error)
}

// InstanceAPI is what the handlers need from the instance service.
type InstanceAPI interface {
	Register(ctx context.Context, id, name string) (string, error)
	IssueToken(ctx context.Context, id, apiSecret string) (string, time.Time, error)
}

// AttachmentAPI is what the handlers need from the attachment service.
type AttachmentAPI interface {
	GetPresignedPutUrl(ctx context.Context) (string, string, error)
	GetPresignedGetUrl(ctx context.Context, key string) (string, error)
}

// Server is the HTTP front of the central authority.
type Server struct {
	addr        string
	secretKey   []byte
	sync        SyncAPI
	instances   InstanceAPI
	attachments AttachmentAPI
	logger      logging.Logger
}

func NewServer(addr string, secretKey []byte, sync SyncAPI, instances InstanceAPI,
	attachments AttachmentAPI, logger logging.Logger) *Server {
	return &Server{
		addr:        addr,
		secretKey:   secretKey,
		sync:        sync,
		instances:   instances,
		attachments: attachments,
		logger:      logger.With("module", "httpapi"),
	}
}

// Router builds the route table. Sync and attachment endpoints sit behind the
// bearer-token middleware; registration, token exchange and health do not.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/instances", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/instances/token", s.handleToken).Methods(http.MethodPost)

	authed := r.PathPrefix("/api/v1").Subrouter()
	authed.Use(s.authMiddleware)
	authed.HandleFunc("/sync/push", s.handlePush).Methods(http.MethodPost)
	authed.HandleFunc("/sync/pull", s.handlePull).Methods(http.MethodPost)
	authed.HandleFunc("/attachments/presign-put", s.handlePresignPut).Methods(http.MethodPost)
	authed.HandleFunc("/attachments/presign-get", s.handlePresignGet).Methods(http.MethodGet)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "HTTP server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
