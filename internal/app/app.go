// Package app wires configuration, stores, the relay core and the HTTP
// transport into one runnable unit.
package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/chanrelay/chanrelay-server/internal/auth"
	"github.com/chanrelay/chanrelay-server/internal/chanlog"
	"github.com/chanrelay/chanrelay-server/internal/config"
	"github.com/chanrelay/chanrelay-server/internal/core"
	"github.com/chanrelay/chanrelay-server/internal/store"
	"github.com/chanrelay/chanrelay-server/internal/store/sqlite"
	transporthttp "github.com/chanrelay/chanrelay-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	history         *chanlog.Store
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	history := chanlog.New(cfg.HistoryDir, cfg.HistoryQueueSize, logger)
	relay := core.NewRelay(core.NewRegistry(), cfg.SharedSecret, history, logger)
	server := transporthttp.NewServer(relay, history, authService, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		history:         history,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.history.Run(ctx)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the database and reports sink health.
func (a *App) cleanup() {
	if dropped, failed := a.history.Stats(); dropped > 0 || failed > 0 {
		a.log.Warn().Int64("dropped", dropped).Int64("failed", failed).Msg("chanlog lost entries")
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
