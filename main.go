package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"agriadvisor/config"
	"agriadvisor/db"
	qhttp "agriadvisor/http"
	"agriadvisor/llm"
	"agriadvisor/logging"
	"agriadvisor/ml"
	"agriadvisor/monitoring"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: ./config.yaml, then ../config.yaml)")
	port := flag.Int("port", 0, "override http.port")
	flag.Parse()

	// 1. Load config
	path, baseDir := *configPath, ""
	if path == "" {
		path, baseDir = config.Resolve("config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.String("path", path), zap.Error(err))
	}
	cfg.Rebase(baseDir)
	if *port > 0 {
		cfg.Http.Port = *port
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		zap.NewExample().Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Initialize database (optional)
	var store *db.Store
	if cfg.Database.Path != "" {
		store, err = db.Open(cfg.Database.Path)
		if err != nil {
			logger.Warn("database unavailable, audit log disabled", zap.String("path", cfg.Database.Path), zap.Error(err))
		} else {
			defer store.Close()
			logger.Info("database initialized", zap.String("path", cfg.Database.Path))
		}
	}

	// 3. Load the model bundle once; the server does not start without it
	bundle, err := ml.LoadBundle(cfg.ML.ModelPath)
	if err != nil {
		logger.Fatal("failed to load model bundle", zap.String("path", cfg.ML.ModelPath), zap.Error(err))
	}
	predictor, err := ml.NewPredictor(bundle, cfg.ML.CacheSize)
	if err != nil {
		logger.Fatal("invalid model bundle", zap.String("path", cfg.ML.ModelPath), zap.Error(err))
	}
	registry := ml.NewModelRegistry(predictor)
	logger.Info("model bundle loaded",
		zap.String("path", cfg.ML.ModelPath),
		zap.String("model_type", bundle.Metadata.ModelType),
		zap.Int("rows", bundle.Metadata.Rows),
		zap.Time("trained_at", bundle.Metadata.TrainedAt))

	if cfg.LLM.APIKey == "" {
		logger.Warn("no OpenAI API key configured, /recommend will answer with errors")
	}
	advisor := llm.NewChatAdvisor(llm.Options{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	})

	metrics := monitoring.NewMetricsCollector()
	feed := monitoring.NewEventHub(cfg.Http.AllowedOrigins, logger)
	go feed.Run(ctx)

	// 4. Optional hot reload of the artifact
	if cfg.ML.Watch {
		watcher, err := ml.NewBundleWatcher(cfg.ML.ModelPath, cfg.ML.CacheSize, registry, logger)
		if err != nil {
			logger.Fatal("failed to watch model bundle", zap.Error(err))
		}
		watcher.OnReload(func(path string, b *ml.Bundle) {
			metrics.IncrCounter(monitoring.MetricModelReloads, nil)
			feed.Publish(monitoring.EventModelReload, monitoring.ModelReloadEvent{
				Path:      path,
				ModelType: b.Metadata.ModelType,
				Rows:      b.Metadata.Rows,
				TrainedAt: b.Metadata.TrainedAt,
			})
		})
		watcher.Start(ctx)
		defer watcher.Close()
	}

	opts := []qhttp.HandlerOption{qhttp.WithMetrics(metrics), qhttp.WithEventHub(feed)}
	if store != nil {
		opts = append(opts, qhttp.WithStore(store))
	}
	handlers := qhttp.NewHandlers(registry, advisor, logger, opts...)

	// 5. Start HTTP server
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:            cfg.Http.Port,
		Timeout:         cfg.Http.Timeout,
		AllowedOrigins:  cfg.Http.AllowedOrigins,
		MaxBodyBytes:    cfg.Http.MaxBodyBytes,
		ShutdownTimeout: cfg.Http.ShutdownTimeout,
	}, handlers, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 6. Handle graceful shutdown
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
		return
	}

	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
}
