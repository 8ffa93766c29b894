package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"

	"github.com/solariscontrol/solaris/pkg/device"
	"github.com/solariscontrol/solaris/pkg/forecast"
	"github.com/solariscontrol/solaris/pkg/log"
	"github.com/solariscontrol/solaris/pkg/metrics"
	"github.com/solariscontrol/solaris/pkg/server"
	"github.com/solariscontrol/solaris/pkg/storage"
)

func main() {
	// init packages
	db := storage.Configured()
	sys := device.Configured()
	forecasts := forecast.Configured()
	m := metrics.New()

	// init server
	srv := server.Configured(db, sys, forecasts, m)

	// parse flags
	lflag.Configure()

	// lflag sets llog's level, slog needs to follow it
	level, err := log.LevelFromLLog(llog.GetLevel())
	if err != nil {
		panic(err)
	}
	log.SetDefaultLogLevel(level)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))
	slog.Debug("logger configured", slog.String("level", level.String()))

	if err := run(srv, sys, db); err != nil {
		os.Exit(1)
	}
}

type runner interface {
	Run(ctx context.Context) error
}

// run serves until a signal arrives and always closes the device and storage
// before returning.
func run(srv runner, sys, db io.Closer) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := sys.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close device", slog.Any("error", err))
		}
		if err := db.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	// Run blocks until the context is canceled or the server fails
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", slog.Any("error", err))
		return err
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
	return nil
}
