package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/quadpong-server/internal/config"
	"github.com/DoyleJ11/quadpong-server/internal/httpapi"
	"github.com/DoyleJ11/quadpong-server/internal/hub"
	"github.com/DoyleJ11/quadpong-server/internal/lobby"
	"github.com/DoyleJ11/quadpong-server/internal/logging"
	"github.com/DoyleJ11/quadpong-server/internal/relay"
	"github.com/DoyleJ11/quadpong-server/internal/store"
	"github.com/DoyleJ11/quadpong-server/internal/ws"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hubOpts := hub.Options{Catalog: catalog, Tuning: cfg.Tuning, Logger: log}
	routeOpts := httpapi.RouteOptions{
		WS:     ws.Config{MsgsPerSec: cfg.MsgsPerSec, Burst: cfg.MsgBurst},
		Logger: log,
	}

	st, openErr := store.Open(cfg.DatabaseURL, log)
	switch {
	case errors.Is(openErr, store.ErrNotConfigured):
		log.Info("match recording disabled")
	case openErr != nil:
		return openErr
	default:
		defer func() { err = multierr.Append(err, st.Close()) }()
		hubOpts.Recorder = st
		routeOpts.History = st
		log.Info("match recording enabled")
	}
	if cfg.NATSURL != "" {
		mirror, connErr := relay.Connect(cfg.NATSURL, log)
		if connErr != nil {
			return connErr
		}
		defer func() { err = multierr.Append(err, mirror.Close()) }()
		hubOpts.Sinks = []lobby.Sink{mirror}
		log.Info("event mirror enabled", zap.String("nats", cfg.NATSURL))
	}

	// The hub outlives the signal context; Shutdown below stops it.
	h := hub.NewHub(context.Background(), hubOpts)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(h, routeOpts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		// Sessions stop first so websocket handlers see their outboxes close.
		return multierr.Combine(h.Shutdown(sctx), srv.Shutdown(sctx))
	})
	return g.Wait()
}
