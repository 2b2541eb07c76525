package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/beamlinehq/hitwriter/internal/config"
	"github.com/beamlinehq/hitwriter/internal/geometry"
	"github.com/beamlinehq/hitwriter/internal/logging"
	"github.com/beamlinehq/hitwriter/internal/metrics"
	"github.com/beamlinehq/hitwriter/internal/run"
	"github.com/beamlinehq/hitwriter/internal/source"
	"github.com/beamlinehq/hitwriter/internal/watch"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	if err := realMain(*configPath); err != nil {
		slog.Error("hitwriter failed", "error", err)
		os.Exit(1)
	}
}

func realMain(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Setup(cfg.Logging)
	slog.Info("hitwriter starting",
		"version", run.Version,
		"git_sha", run.GitSHA,
		"detector", cfg.Run.DetectorName,
		"run_number", cfg.Run.RunNumber)

	if cfg.Metrics.Enabled {
		metrics.Init("hitwriter")
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	registry, err := geometry.Load(cfg.Source.GeometryFile)
	if err != nil {
		return fmt.Errorf("load geometry: %w", err)
	}
	slog.Info("geometry loaded",
		"file", cfg.Source.GeometryFile,
		"detectors", len(registry.Detectors()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := newSource(ctx, cfg.Source)
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}
	defer src.Close()

	runner, err := run.New(ctx, cfg, registry, src)
	if err != nil {
		return fmt.Errorf("create runner: %w", err)
	}
	defer runner.Close()

	if err := runner.Run(ctx); err != nil {
		if ctx.Err() != nil {
			slog.Info("interrupted, shutting down",
				"events_written", runner.EventsWritten())
			return nil
		}
		return err
	}

	slog.Info("hitwriter finished", "events_written", runner.EventsWritten())
	return nil
}

func newSource(ctx context.Context, cfg config.SourceConfig) (source.HitSource, error) {
	if cfg.Mode == "spool" {
		return watch.NewSpoolSource(cfg.LocalPath)
	}
	return source.New(ctx, source.Config{
		Mode:       cfg.Mode,
		LocalPath:  cfg.LocalPath,
		BlobURL:    cfg.BlobURL,
		BlobPrefix: cfg.BlobPrefix,
	})
}
