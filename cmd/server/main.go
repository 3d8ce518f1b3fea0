package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carmarket/internal/adapter/httpserver"
	"carmarket/internal/adapter/messaging/nats"
	"carmarket/internal/adapter/repository/cache"
	"carmarket/internal/adapter/repository/mongodb"
	"carmarket/internal/adapter/storage/s3"
	"carmarket/internal/config"
	"carmarket/internal/identity"
	"carmarket/internal/listing/usecase"
	"carmarket/internal/mailer"
	"carmarket/internal/platform/logger"
	"carmarket/internal/platform/metrics"
	"carmarket/internal/platform/tracer"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	appLogger := logger.NewLogger()
	defer func() { _ = appLogger.Sync() }()

	cfg, err := config.LoadConfig(appLogger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tp := tracer.InitTracer(cfg.ServiceName, cfg.OTLPEndpoint, appLogger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			appLogger.Error("Tracer shutdown failed", zap.Error(err))
		}
	}()

	mm := metrics.NewMetricsManager(cfg.ServiceName)
	go func() {
		if err := metrics.StartMetricsServer(cfg.PrometheusMetricsPort, appLogger, mm.Registry); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return fmt.Errorf("mongo connect: %w", err)
	}
	if err := mongoClient.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo ping: %w", err)
	}
	appLogger.Info("Connected to MongoDB", zap.String("database", cfg.MongoDatabase))
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			appLogger.Error("Mongo disconnect failed", zap.Error(err))
		}
	}()
	db := mongoClient.Database(cfg.MongoDatabase)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	appLogger.Info("Connected to Redis", zap.String("address", cfg.RedisAddress))
	defer func() { _ = redisClient.Close() }()

	photoStorage, err := s3.NewPhotoStorage(ctx, s3.Config{
		Endpoint:        cfg.MinIOEndpoint,
		AccessKeyID:     cfg.MinIOAccessKey,
		SecretAccessKey: cfg.MinIOSecretKey,
		UseSSL:          cfg.MinIOUseSSL,
		BucketName:      cfg.MinIOBucket,
		PublicBaseURL:   cfg.MinIOPublicBaseURL,
	}, appLogger)
	if err != nil {
		return fmt.Errorf("photo storage init: %w", err)
	}

	publisher, err := nats.NewPublisher(cfg.NATSURL, appLogger)
	if err != nil {
		return fmt.Errorf("nats init: %w", err)
	}
	defer publisher.Close()

	listingRepo, err := mongodb.NewListingRepository(db, appLogger)
	if err != nil {
		return fmt.Errorf("listing repository init: %w", err)
	}
	imageRepo, err := mongodb.NewImageRepository(db, appLogger)
	if err != nil {
		return fmt.Errorf("image repository init: %w", err)
	}
	favoriteRepo, err := mongodb.NewFavoriteRepository(db, appLogger)
	if err != nil {
		return fmt.Errorf("favorite repository init: %w", err)
	}

	queryCache := cache.NewQueryCache(redisClient, time.Duration(cfg.CacheTTLSeconds)*time.Second, appLogger)
	mail := mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPEmail, cfg.SMTPPassword, appLogger)

	identityClient := identity.NewClient(cfg.IdentityBaseURL, cfg.IdentityAPIKey, appLogger)
	sessions := identity.NewSessionManager(appLogger)

	// Session-change audit trail; subscribers elsewhere (cache warmers,
	// analytics) attach the same way.
	events, unsubscribe := sessions.Subscribe()
	defer unsubscribe()
	go func() {
		for ev := range events {
			appLogger.Debug("Session event",
				zap.String("type", string(ev.Type)), zap.String("user_id", ev.Principal.UserID))
		}
	}()

	listingUC := usecase.NewListingUsecase(
		listingRepo, imageRepo, favoriteRepo, photoStorage, queryCache,
		publisher, mail, mm, appLogger,
	)
	favoriteUC := usecase.NewFavoriteUsecase(
		favoriteRepo, listingRepo, imageRepo, photoStorage, queryCache, mm, appLogger,
	)
	photoUC := usecase.NewPhotoUsecase(
		listingRepo, imageRepo, photoStorage, queryCache, cfg.MaxImagesPerUpload, mm, appLogger,
	)

	handler := httpserver.NewHandler(
		listingUC, favoriteUC, photoUC, identityClient, sessions,
		cfg.JWTSecret, cfg.PageSize, mm, appLogger,
	)
	server := httpserver.NewServer(cfg.HTTPPort, handler, appLogger)

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Run() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case sig := <-quit:
		appLogger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	appLogger.Info("Server stopped")
	return nil
}
