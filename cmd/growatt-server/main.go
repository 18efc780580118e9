package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/raterudder/growatt/pkg/common"
	"github.com/raterudder/growatt/pkg/exporter"
	"github.com/raterudder/growatt/pkg/growatt"
	"github.com/raterudder/growatt/pkg/log"
	"github.com/raterudder/growatt/pkg/server"
	"github.com/raterudder/growatt/pkg/storage"
)

func main() {
	// credentials and endpoint come from GROWATT_* (or .env)
	client, err := growatt.FromEnv()
	if err != nil {
		log.Ctx(context.Background()).Error("failed to configure growatt client", slog.Any("error", err))
		os.Exit(1)
	}

	s := storage.Configured()

	registry := prometheus.NewRegistry()
	registry.MustRegister(exporter.NewCollector(client))
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "growatt_build_info",
		Help:        "Build information",
		ConstLabels: prometheus.Labels{"version": common.Version()},
	}, func() float64 { return 1 }))

	srv := server.Configured(client, s, registry)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}
	log.SetDefaultLogLevel(level)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	err = srv.Run(ctx)

	// the context is already canceled, give logout its own
	if client.IsLoggedIn() {
		if ok, lerr := client.Logout(context.Background()); !ok {
			log.Ctx(ctx).WarnContext(ctx, "failed to log out of growatt", slog.Any("error", lerr))
		}
	}

	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
