package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/l0p7/purgectl/internal/config"
	"github.com/l0p7/purgectl/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// run returns the process exit code so deferred cleanup completes before exit.
func run(ctx context.Context, args []string) int {
	flags := flag.NewFlagSet("purgectl", flag.ContinueOnError)
	var (
		configFile = flags.String("config", "", "path to configuration file")
		envPrefix  = flags.String("env-prefix", "PURGECTL", "environment variable prefix")
	)
	if err := flags.Parse(args); err != nil {
		return 2
	}

	var files []string
	if *configFile != "" {
		files = append(files, *configFile)
	}
	loader := config.NewLoader(*envPrefix, files...)
	cfg, err := loader.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to configure logger: %v\n", err)
		return 1
	}

	application, err := newApp(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		logger.Error("unable to assemble engine", slog.Any("error", err))
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		application.close(shutdownCtx)
	}()

	if len(cfg.Sources) > 0 {
		watcher, err := loader.Watch(ctx, cfg, application.reload, func(err error) {
			if err != nil {
				logger.Error("config watcher error", slog.Any("error", err))
			}
		})
		if err != nil {
			logger.Error("config watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	if err := application.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		return 1
	}

	logger.Info("server shutdown complete")
	return 0
}
