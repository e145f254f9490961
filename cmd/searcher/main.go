package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/labinochka/OIP/internal/indexer/store"
	"github.com/labinochka/OIP/internal/searcher/cache"
	"github.com/labinochka/OIP/internal/searcher/executor"
	"github.com/labinochka/OIP/internal/searcher/handler"
	"github.com/labinochka/OIP/internal/searcher/reload"
	"github.com/labinochka/OIP/pkg/config"
	apperrors "github.com/labinochka/OIP/pkg/errors"
	"github.com/labinochka/OIP/pkg/health"
	"github.com/labinochka/OIP/pkg/kafka"
	"github.com/labinochka/OIP/pkg/logger"
	"github.com/labinochka/OIP/pkg/metrics"
	"github.com/labinochka/OIP/pkg/middleware"
	pkgredis "github.com/labinochka/OIP/pkg/redis"
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
	slog.Info("starting search service", "port", cfg.Server.Port, "data_dir", cfg.Index.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port, reg)
		if err := metricsServer.Start(); err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer metricsServer.Shutdown(context.Background())
	}

	st := store.New(cfg.Index.DataDir, store.WithIOWorkers(cfg.Index.IOWorkers), store.WithKeepGenerations(cfg.Index.KeepGenerations))
	exec := executor.New(st, m)
	if summary, err := exec.Reload(ctx); err != nil {
		if !errors.Is(err, apperrors.ErrMissingIndex) {
			slog.Error("failed to load index", "error", err)
			os.Exit(1)
		}
		slog.Warn("no index generation yet, serving not-ready until one is announced", "error", err)
	} else {
		slog.Info("index loaded", "generation", summary.Generation, "documents", summary.Documents, "lemmas", summary.Lemmas)
	}

	var (
		queryCache  *cache.QueryCache
		redisClient *pkgredis.Client
	)
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			breaker := resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{})
			queryCache = cache.New(cache.WithCircuitBreaker(redisClient, breaker), cfg.Redis.CacheTTL, m)
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	if cfg.Kafka.Enabled {
		groupID := cfg.Kafka.ConsumerGroup
		if host, err := os.Hostname(); err == nil {
			groupID = groupID + "-" + host
		}
		var invalidator reload.Invalidator
		if queryCache != nil {
			invalidator = queryCache
		}
		reloader := reload.New(exec, invalidator, cfg.Index.ReloadTimeout)
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, groupID, reloader.HandleMessage)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("reload consumer error", "error", err)
			}
		}()
		slog.Info("reload consumer started", "topic", cfg.Kafka.Topics.IndexComplete, "group", groupID)
	}

	checker := health.NewChecker()
	checker.Register("index", health.Ready(exec.Ready, "no index generation loaded"))
	if redisClient != nil {
		checker.Register("redis", health.Ping(redisClient.Ping, true))
	}

	h := handler.New(exec, queryCache, cfg.Search.DefaultLimit, cfg.Search.MaxResults)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics(m))
	r.Get("/health/live", checker.LiveHandler())
	r.Get("/health/ready", checker.ReadyHandler())
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.Search.RateLimit, cfg.Search.RateBurst))
		r.Use(middleware.Timeout(cfg.Search.RequestTimeout))
		h.Routes(r)
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
