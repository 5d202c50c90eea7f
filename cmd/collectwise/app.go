package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"collectwise/internal/api"
	"collectwise/internal/config"
	"collectwise/internal/events"
	"collectwise/internal/ingest"
	"collectwise/internal/lookup"
	"collectwise/internal/source"
	"collectwise/internal/storage"
	"collectwise/internal/telemetry"
)

// app is the wired service.
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	store   storage.AccountStore
	tel     telemetry.Telemetry
	events  events.Publisher
	handler http.Handler
}

// boot opens and initializes the store, runs the start-up ingestion when
// enabled and builds the router. Any failure aborts start-up.
func boot(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*app, error) {
	a := &app{cfg: cfg, log: logger}
	a.tel = telemetry.Setup(ctx, cfg, logger)
	a.events = events.New(cfg.RabbitMQURL, cfg.EventsExchange, logger)

	st, err := storage.Open(ctx, storage.Config{Kind: cfg.StoreKind, DSN: cfg.StoreDSN})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = st

	if cfg.AutoIngest {
		logger.WithField("source", cfg.SourcePath).Info("auto-ingesting at startup")
		p := &ingest.Pipeline{
			Store:   st,
			Options: cfg.ParserOptions(),
			Logger:  logger,
			Metrics: a.tel.Backend,
			Events:  a.events,
		}
		stats, err := p.RunLocation(ctx, &source.Opener{Logger: logger}, cfg.SourcePath, cfg.SourceFormat)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("ingest %s: %w", cfg.SourcePath, err)
		}
		logger.WithFields(logrus.Fields{
			"total":    stats.Total,
			"inserted": stats.Inserted,
			"updated":  stats.Updated,
			"skipped":  stats.Skipped,
			"accounts": stats.CountAfter,
		}).Info("database initialized")
	}

	a.handler = api.NewRouter(lookup.New(st), api.Options{
		Logger:         logger,
		Metrics:        a.tel.Backend,
		MetricsHandler: a.tel.Handler,
	})
	return a, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.WithError(err).Warn("store close")
		}
	}
	a.events.Close()
	a.tel.Close()
}

// serve runs the HTTP server on ln until ctx is done, then shuts it down
// within timeout.
func (a *app) serve(ctx context.Context, ln net.Listener, timeout time.Duration) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("CollectWise API server listening on %s", ln.Addr())
		for _, e := range api.Endpoints {
			a.log.Infof("  %s", e)
		}
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down server")
	shutCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.log.Info("server stopped")
	return nil
}

// run boots the service and serves until ctx is done.
func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	a, err := boot(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ln, err := net.Listen("tcp", net.JoinHostPort("0.0.0.0", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.serve(ctx, ln, cfg.ShutdownTimeout)
}
