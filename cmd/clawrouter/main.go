package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clawinfra/clawrouter/internal/api"
	"github.com/clawinfra/clawrouter/internal/config"
	"github.com/clawinfra/clawrouter/internal/engine"
	"github.com/clawinfra/clawrouter/internal/janitor"
	"github.com/clawinfra/clawrouter/internal/providers"
	"github.com/clawinfra/clawrouter/internal/session"
	"github.com/clawinfra/clawrouter/internal/telemetry"
)

var (
	version = "0.1.0"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "clawrouter.json", "path to the config document (.json, .yaml, or .toml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("clawrouter", version)
		return 0
	}

	cfg, err := config.LoadOrInit(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	logger.Info("clawrouter starting", "version", version, "config", *configPath)

	store := telemetry.NewStore(cfg.Telemetry.MaxLogs)
	if cfg.Telemetry.ArchivePath != "" {
		archive, err := telemetry.NewArchive(cfg.Telemetry.ArchivePath, logger)
		if err != nil {
			logger.Error("telemetry archive unavailable", "error", err)
			return 1
		}
		defer archive.Close() //nolint:errcheck
		store.SetArchive(archive)
	}

	sessions := session.NewStore()
	eng := engine.New(providers.NewHTTPInvoker(), store, sessions, logger)

	server, err := api.NewServer(cfg, *configPath, eng, store, sessions, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "startup error:", err)
		return 1
	}

	jan := janitor.New(logger)
	if err := jan.Add("cache-sweep", cfg.Janitor.CacheSweep, func() {
		snap := server.Snapshot()
		if snap.Config.Cache.Enabled {
			snap.Cache.Sweep()
		}
	}); err != nil {
		fmt.Fprintln(os.Stderr, "janitor error:", err)
		return 1
	}
	if err := jan.Add("session-sweep", cfg.Janitor.SessionSweep, func() {
		snap := server.Snapshot()
		if snap.Config.Session.Enabled {
			ttl := time.Duration(snap.Config.Session.TTLSeconds) * time.Second
			sessions.Sweep(ttl)
		}
	}); err != nil {
		fmt.Fprintln(os.Stderr, "janitor error:", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jan.Start()
	defer jan.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("gateway exited with error", "error", err)
		return 1
	}

	logger.Info("clawrouter stopped")
	return 0
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
