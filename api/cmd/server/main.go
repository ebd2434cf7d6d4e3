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

	"imageBatch/api/handlers"
	"imageBatch/api/middleware"
	"imageBatch/api/service"
	"imageBatch/internal/blob"
	"imageBatch/internal/cache"
	"imageBatch/internal/config"
	"imageBatch/internal/kafka"
	"imageBatch/internal/logging"
	"imageBatch/internal/repository"
)

func main() {
	cfg, err := config.LoadAPI()
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

	logger.Info("API Service starting", zap.String("port", cfg.Port))

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

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		logger.Fatal("Failed to create kafka producer", zap.Error(err))
	}
	defer producer.Close()

	jobService := service.NewJobService(
		repo,
		cache.NewStatusCache(redisClient),
		blob.NewS3Store(s3client, &http.Client{}, s3cfg),
		producer,
		logger,
	)
	jobHandler := handlers.NewJobHandler(jobService, cfg.MaxFileSize, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload_csv", jobHandler.Upload)
	mux.HandleFunc("GET /status/", jobHandler.Status)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := middleware.TraceID(middleware.Logging(logger)(middleware.Recovery(logger)(mux)))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server started", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("API Service shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}
