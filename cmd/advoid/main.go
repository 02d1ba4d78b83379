package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"advoid/pkg/blocklist"
	"advoid/pkg/config"
	"advoid/pkg/decision"
	"advoid/pkg/dns"
	"advoid/pkg/event"
	"advoid/pkg/logging"
	"advoid/pkg/telemetry"
	"advoid/pkg/upstream"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.ParseFlags("advoid", os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse configuration: %v\n", err)
		return 1
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	logging.SetGlobal(logger)

	logger.Info("advoid starting",
		"version", version,
		"build_time", buildTime,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telem, err := telemetry.New(ctx, cfg, version, logger)
	if err != nil {
		logger.Error("Failed to initialize telemetry", "error", err)
		return 1
	}

	metrics, err := telem.InitMetrics()
	if err != nil {
		logger.Error("Failed to initialize metrics", "error", err)
		return 1
	}

	list, err := blocklist.Load(ctx, cfg.Block, nil, logger)
	if err != nil {
		logger.Error("Failed to load blocklist", "source", cfg.Block, "error", err)
		return 1
	}

	decisions, err := decision.New(cfg.CacheCapacity, metrics)
	if err != nil {
		logger.Error("Failed to create decision cache", "error", err)
		return 1
	}
	defer decisions.Close()

	sink, err := buildSink(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("Failed to initialize event sink", "backend", cfg.Sink.Backend, "error", err)
		return 1
	}

	handler := dns.NewHandler()
	handler.Blocklist = list
	handler.Decisions = decisions
	handler.Upstream = upstream.New(cfg.Upstream, logger)
	handler.BlockLocalZone = !cfg.ForwardLocalZone
	handler.SetSink(sink)
	handler.SetMetrics(metrics)
	handler.SetLogger(logger)

	server := dns.NewServer(cfg.Bind, handler, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	logger.Info("advoid is running",
		"bind", cfg.Bind,
		"upstream", cfg.Upstream,
		"exporter", cfg.Exporter,
		"blocklist_entries", list.Len(),
		"block_local_zone", !cfg.ForwardLocalZone,
		"sink", sinkName(cfg.Sink.Backend),
	)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during server shutdown", "error", err)
		}
		if err := sink.Close(shutdownCtx); err != nil {
			logger.Error("Error during sink shutdown", "error", err)
		}
		if err := telem.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during telemetry shutdown", "error", err)
		}

		logger.Info("advoid stopped")
		return 0

	case err := <-errChan:
		logger.Error("Server error", "error", err)
		return 1
	}
}

// buildSink selects the event sink implementation from configuration. The
// choice is made once; the handler never reselects.
func buildSink(ctx context.Context, cfg *config.Config, logger *logging.Logger, metrics *telemetry.Metrics) (event.Sink, error) {
	switch cfg.Sink.Backend {
	case config.SinkNone:
		return event.NullSink{}, nil
	case config.SinkS3:
		uploader, err := event.NewS3Uploader(ctx, cfg.Sink.S3Bucket, cfg.Sink.S3Prefix)
		if err != nil {
			return nil, err
		}
		return event.NewBatchingSink(uploader, cfg.Sink, logger, metrics), nil
	case config.SinkDatabricks:
		uploader := event.NewDatabricksUploader(ctx, cfg.Sink.Databricks)
		return event.NewBatchingSink(uploader, cfg.Sink, logger, metrics), nil
	default:
		return nil, fmt.Errorf("unknown sink backend %q", cfg.Sink.Backend)
	}
}

func sinkName(backend string) string {
	if backend == config.SinkNone {
		return "none"
	}
	return backend
}
