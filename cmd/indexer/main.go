package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/labinochka/OIP/internal/corpus"
	"github.com/labinochka/OIP/internal/indexer"
	"github.com/labinochka/OIP/internal/indexer/index"
	"github.com/labinochka/OIP/internal/indexer/store"
	"github.com/labinochka/OIP/pkg/config"
	"github.com/labinochka/OIP/pkg/kafka"
	"github.com/labinochka/OIP/pkg/logger"
	"github.com/labinochka/OIP/pkg/metrics"
	"github.com/labinochka/OIP/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting index build",
		"source", cfg.Corpus.Source,
		"data_dir", cfg.Index.DataDir,
		"workers", cfg.Index.BuildWorkers,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, closeSource, err := corpus.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open corpus source", "error", err)
		os.Exit(1)
	}
	defer closeSource()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port, reg)
		if err := metricsServer.Start(); err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer metricsServer.Shutdown(context.Background())
	}

	opts := []indexer.EngineOption{indexer.WithMetrics(m)}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		opts = append(opts, indexer.WithPublisher(producer, resilience.RetryConfig{MaxAttempts: 5}))
		slog.Info("index-complete events enabled", "topic", cfg.Kafka.Topics.IndexComplete)
	}

	engine := indexer.NewEngine(
		source,
		index.NewBuilder(index.WithWorkers(cfg.Index.BuildWorkers)),
		store.New(cfg.Index.DataDir,
			store.WithIOWorkers(cfg.Index.IOWorkers),
			store.WithKeepGenerations(cfg.Index.KeepGenerations),
		),
		opts...,
	)

	summary, err := engine.Run(ctx)
	if err != nil {
		slog.Error("index build failed", "error", err, "generation", summary.Generation)
		os.Exit(1)
	}
	slog.Info("indexer finished", "generation", summary.Generation, "documents", summary.Documents)
}
