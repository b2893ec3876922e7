package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"fleet-monitor/speedwatch/internal/auth"
	"fleet-monitor/speedwatch/internal/config"
	"fleet-monitor/speedwatch/internal/monitor"
	"fleet-monitor/speedwatch/internal/pipeline"
	"fleet-monitor/speedwatch/internal/source"
	"fleet-monitor/speedwatch/internal/store"
	transport "fleet-monitor/speedwatch/internal/transport/http"
)

const connectTimeout = 10 * time.Second

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	slog.SetDefault(logger)

	if envErr != nil {
		logger.Info("no .env file found, using system environment variables")
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("speedwatch stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		db  *store.TimescaleStore
		rds *store.RedisStore
		err error
	)
	health := make(map[string]transport.Pinger)

	if cfg.EnableDB {
		connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		db, err = store.NewTimescaleStore(connCtx, cfg)
		cancel()
		if err != nil {
			return err
		}
		defer db.Close()
		health["timescale"] = db
		logger.Info("connected to timescaledb", "host", cfg.DBHost, "db", cfg.DBName)
	}

	if cfg.EnableRedis {
		connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		rds, err = store.NewRedisStore(connCtx, cfg)
		cancel()
		if err != nil {
			return err
		}
		defer rds.Close()
		health["redis"] = rds
		logger.Info("connected to redis", "addr", cfg.RedisAddr)
	}

	// Interfaces stay nil for disabled backends.
	var (
		alertStore pipeline.AlertStore
		publisher  pipeline.AlertPublisher
		keys       auth.KeyLookup
		alertLog   transport.AlertHistory
		dbSize     int
		stateSize  int
	)
	if db != nil {
		alertStore = db
		dbSize = cfg.HistoryChannelSize
	}
	if rds != nil {
		publisher = rds
		keys = rds
		alertLog = rds
		stateSize = cfg.HistoryChannelSize
	}

	dispatcher := pipeline.NewDispatcher(dbSize, stateSize)

	writersCtx, cancelWriters := context.WithCancel(context.Background())
	defer cancelWriters()
	var writers errgroup.Group
	if dispatcher.DBChan != nil {
		for i := 0; i < max(cfg.DBWriterWorkers, 1); i++ {
			w := pipeline.NewDBWriter(dispatcher.DBChan, db, cfg.DBBatchSize, cfg.DBFlushIntervalMS, logger)
			writers.Go(func() error {
				w.Run(writersCtx)
				return nil
			})
		}
	}
	if dispatcher.StateChan != nil {
		for i := 0; i < max(cfg.StateWriterWorkers, 1); i++ {
			w := pipeline.NewStateWriter(dispatcher.StateChan, rds, logger)
			writers.Go(func() error {
				w.Run(writersCtx)
				return nil
			})
		}
	}

	fleet := monitor.NewFleet(
		source.NewDigitraffic(cfg),
		pipeline.NewAlertNotifier(alertStore, publisher, logger),
		monitor.Options{
			FetchTimeout:    cfg.FetchTimeout,
			DispatchTimeout: cfg.DispatchTimeout,
			History:         dispatcher,
			Logger:          logger,
		},
	)

	if err := registerFromFile(fleet, cfg, logger); err != nil {
		return err
	}

	handler := transport.NewHandler(fleet, transport.Options{
		Defaults:       cfg.VesselDefaults(),
		StreamInterval: cfg.StreamInterval,
		Alerts:         alertLog,
		Health:         health,
		Logger:         logger,
	})
	authMW := transport.NewAuthMiddleware(auth.NewAuthenticator(cfg, keys, logger))

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.Routes(authMW),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "grace", cfg.ShutdownGrace)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := fleet.Shutdown(shutdownCtx); err != nil {
			// Loops may still Record; stop the writers instead of closing
			// their channels underneath them.
			errs = append(errs, err)
			cancelWriters()
		} else {
			dispatcher.Close()
		}
		return errors.Join(errs...)
	})

	runErr := g.Wait()
	_ = writers.Wait()
	logger.Info("speedwatch stopped")
	return runErr
}

func registerFromFile(fleet *monitor.Fleet, cfg *config.Config, logger *slog.Logger) error {
	vessels, err := config.LoadVessels(cfg.VesselsFile, cfg.VesselDefaults())
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("vessels file not found, starting with an empty fleet", "path", cfg.VesselsFile)
		return nil
	}
	if err != nil {
		return err
	}
	for _, v := range vessels {
		if err := fleet.Register(v); err != nil {
			return fmt.Errorf("register %s: %w", v.ID, err)
		}
	}
	logger.Info("fleet loaded", "vessels", len(vessels), "path", cfg.VesselsFile)
	return nil
}

func newLogger(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
