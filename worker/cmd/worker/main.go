package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"imageBatch/internal/blob"
	"imageBatch/internal/cache"
	"imageBatch/internal/config"
	"imageBatch/internal/kafka"
	"imageBatch/internal/logging"
	"imageBatch/internal/repository"
	"imageBatch/worker/converter"
	"imageBatch/worker/notify"
	"imageBatch/worker/service"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		logging.Bootstrap().Fatal("Failed to load config", zap.Error(err))
	}

	logger, err := logging.New(cfg.IsDevelopment())
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Worker Service starting",
		zap.Int("row_concurrency", cfg.RowConcurrency),
		zap.Int("image_concurrency", cfg.ImageConcurrency),
		zap.String("topic", cfg.Kafka.Topic),
	)

	pool, err := repository.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		logger.Fatal("Failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	repo := repository.NewPostgresRepo(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to prepare schema", zap.Error(err))
	}

	redisClient, err := cache.Connect(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	s3cfg := cfg.S3.Blob()
	s3client, err := blob.NewS3Client(ctx, s3cfg)
	if err != nil {
		logger.Fatal("Failed to create s3 client", zap.Error(err))
	}
	blobs := blob.NewS3Store(s3client, &http.Client{}, s3cfg)

	notifier := notify.NewNotifier(nil, cfg.WebhookTimeout, logger)
	rows := service.NewRowProcessor(
		blobs,
		converter.NewConverter(logger, cfg.JPEGQuality),
		cfg.ImageConcurrency,
		cfg.ImageTimeout,
		logger,
	)
	processor := service.NewProcessor(
		repo,
		cache.NewStatusCache(redisClient),
		blobs,
		rows,
		notifier,
		service.Options{RowConcurrency: cfg.RowConcurrency, TableTimeout: cfg.TableTimeout},
		logger,
	)

	consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, logger)
	if err != nil {
		logger.Fatal("Failed to create kafka consumer", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("Metrics server started", zap.String("address", cfg.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	if err := consumer.Consume(ctx, cfg.Kafka.Topic, processor.Handle); err != nil {
		logger.Error("Consumer stopped", zap.Error(err))
	}

	logger.Info("Worker Service shutting down")

	if err := consumer.Close(); err != nil {
		logger.Warn("Failed to close consumer", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.WebhookTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Failed to stop metrics server", zap.Error(err))
	}

	notifier.Wait()
	logger.Info("Worker Service stopped")
}
