// Command hotspot runs one crash hotspot analysis from environment
// configuration. When HTTP_ADDR is set it keeps serving health, metrics, and
// the run summary until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/crash-hotspot/internal/adapter/geojson"
	"github.com/couchcryptid/crash-hotspot/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/crash-hotspot/internal/adapter/kafka"
	"github.com/couchcryptid/crash-hotspot/internal/adapter/sqlite"
	"github.com/couchcryptid/crash-hotspot/internal/config"
	"github.com/couchcryptid/crash-hotspot/internal/domain"
	"github.com/couchcryptid/crash-hotspot/internal/observability"
	"github.com/couchcryptid/crash-hotspot/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return domain.Classify(err).ExitCode()
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	store, closeStore, err := openStore(ctx, cfg, logger, clock)
	if err != nil {
		logger.Error("failed to open output store", "error", err, "format", cfg.OutputFormat)
		return domain.Classify(err).ExitCode()
	}
	defer closeStore()

	var publisher pipeline.Publisher
	if cfg.PublishEnabled() {
		pub := kafkaadapter.NewPublisher(cfg, logger, metrics)
		defer func() {
			if err := pub.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		publisher = pub
		logger.Info("result publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaResultTopic)
	}

	p := pipeline.New(geojson.NewSource(), store, publisher, logger, metrics, clock)

	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	code := 0
	if _, err := p.Run(ctx, pipeline.ParamsFromConfig(cfg)); err != nil {
		code = domain.Classify(err).ExitCode()
	}

	if srv != nil {
		if code == 0 {
			<-ctx.Done()
		}
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}

	logger.Info("done", "exit_code", code)
	return code
}

// openStore builds the layer store for OUTPUT_FORMAT.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, clock clockwork.Clock) (pipeline.LayerStore, func(), error) {
	switch cfg.OutputFormat {
	case config.FormatSQLite:
		s, err := sqlite.Open(ctx, cfg.OutputDir, logger, clock)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Error("workspace close error", "error", err)
			}
		}, nil
	case config.FormatGeoJSON:
		return geojson.NewStore(cfg.OutputDir, logger), func() {}, nil
	}
	return nil, nil, &domain.ConfigError{Field: "OUTPUT_FORMAT", Value: cfg.OutputFormat, Err: fmt.Errorf("unsupported output format")}
}
