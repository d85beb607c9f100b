// Package server wires configuration, storage, services and the HTTP API
// into a runnable application.
package server

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/praylist/internal/logging"
	"github.com/dmitrijs2005/praylist/internal/server/api"
	"github.com/dmitrijs2005/praylist/internal/server/config"
	"github.com/dmitrijs2005/praylist/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/praylist/internal/server/services"
)

type App struct {
	config *config.Config
	logger logging.Logger
	repos  repomanager.RepositoryManager
	http   *api.HTTPServer
}

// NewApp opens storage, applies migrations and builds the HTTP server.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(c.LogFormat, os.Stdout, c.Debug)

	repos, err := repomanager.New(c.Storage, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := repos.RunMigrations(ctx); err != nil {
		_ = repos.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	as := services.NewAccountService(repos, c, logger)
	rs := services.NewRecordService(repos, c, logger)
	bs := services.NewBackupService(repos, c, logger)

	return &App{
		config: c,
		logger: logger,
		repos:  repos,
		http:   api.NewHTTPServer(c, logger, as, rs, bs),
	}, nil
}

// Run serves until ctx is cancelled and releases storage afterwards.
func (app *App) Run(ctx context.Context) error {
	app.logger.Info(ctx, "Starting app...", "storage", app.config.Storage)

	defer func() {
		if err := app.repos.Close(); err != nil {
			app.logger.Error(ctx, "failed to close storage", "error", err)
		}
	}()

	if err := app.http.Run(ctx); err != nil {
		app.logger.Error(ctx, "http server stopped", "error", err)
		return err
	}

	app.logger.Info(ctx, "App stopped")
	return nil
}
