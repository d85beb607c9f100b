// Package api exposes the versioned store over JSON/HTTP. Routing is done
// with chi; every route under /{account} requires a session token issued
// for that account.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/logging"
	"github.com/dmitrijs2005/praylist/internal/server/config"
	"github.com/dmitrijs2005/praylist/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type HTTPServer struct {
	address         string
	accounts        services.AccountService
	records         services.RecordService
	backups         services.BackupService
	limiters        *rateLimiterStore
	maxBody         int64
	shutdownTimeout time.Duration
	logger          logging.Logger
}

func NewHTTPServer(cfg *config.Config, l logging.Logger, as services.AccountService, rs services.RecordService, bs services.BackupService) *HTTPServer {
	itemSize := cfg.MaxItemSize
	if itemSize <= 0 {
		itemSize = common.MaxItemSize
	}

	shutdown := cfg.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 10 * time.Second
	}

	s := &HTTPServer{
		address:         cfg.EndpointAddr,
		accounts:        as,
		records:         rs,
		backups:         bs,
		maxBody:         int64(itemSize)*common.BatchChunkSize*2 + 4096,
		shutdownTimeout: shutdown,
		logger:          l.With("module", "http_server"),
	}
	if cfg.AuthRateLimit > 0 {
		s.limiters = newRateLimiterStore(RateLimitConfig{
			Interval: time.Minute / time.Duration(cfg.AuthRateLimit),
			Burst:    max(cfg.AuthRateBurst, 1),
		})
	}
	return s
}

// Router builds the route table.
func (s *HTTPServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	limited := r.With(s.limitByIP)
	limited.Post("/account", s.handleCreateAccount)
	limited.Get("/{account}/salt", s.handleGetSalt)
	limited.Post("/{account}/login", s.handleLogin)

	authed := r.With(s.requireSession)
	authed.Get("/{account}", s.handleGetMetadata)
	authed.Patch("/{account}", s.handleSetMetadata)
	authed.Post("/{account}/backup", s.handleBackup)

	authed.Get("/{account}/items", s.handleGetItems)
	authed.Put("/{account}/items", s.handlePutItems)
	authed.Delete("/{account}/items", s.handleDeleteItems)
	authed.Put("/{account}/items/{id}", s.handlePutItem)
	authed.Delete("/{account}/items/{id}", s.handleDeleteItem)

	authed.Get("/{account}/subscriptions/{id}", s.handleGetSubscription)
	authed.Put("/{account}/subscriptions/{id}", s.handlePutSubscription)
	authed.Delete("/{account}/subscriptions/{id}", s.handleDeleteSubscription)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusOK())
}
