// server/cmd/api/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"safezone-api-server/config"
	"safezone-api-server/internal/api/middleware"
	"safezone-api-server/internal/api/routes"
	"safezone-api-server/internal/auth"
	"safezone-api-server/internal/cache"
	"safezone-api-server/internal/database"
	"safezone-api-server/internal/events"
	"safezone-api-server/internal/locsearch"
	"safezone-api-server/internal/logger"
	"safezone-api-server/internal/s3"
	"safezone-api-server/internal/safezone"
	"safezone-api-server/internal/socket"
	"safezone-api-server/internal/store"
)

const (
	statsCacheKey  = "safezone:stats"
	visitorIdleTTL = 10 * time.Minute
)

func main() {
	// 1. Load configuration
	cfg, err := config.LoadConfig("./config")
	log := logger.Setup(cfg.Log)
	if err != nil {
		log.Error("Could not load config", slog.Any("error", err))
		os.Exit(1)
	}
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	// 2. Storage
	var (
		repo  store.Repository
		users store.UserRepository
	)
	switch cfg.Storage.Driver {
	case "memory":
		mem := store.NewMemory()
		repo, users = mem, mem
		log.Info("Using in-memory storage")
	default:
		client, err := database.Connect(ctx, cfg.Mongo, log)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		}()

		db := client.Database(cfg.Mongo.DBName)
		if err := database.EnsureIndexes(ctx, db); err != nil {
			return err
		}
		repo = store.NewMongo(db, cfg.Mongo.Timeout, log)
		users = store.NewMongoUsers(db, cfg.Mongo.Timeout, log)
	}

	// 3. Seeding
	if err := database.SeedSuperAdmin(ctx, users, cfg.Admin, log); err != nil {
		return err
	}
	if cfg.Seed.SampleZones {
		if err := database.SeedSampleZones(ctx, repo, log); err != nil {
			return err
		}
	}

	// 4. Optional integrations
	hub := socket.NewHub(log)
	publishers := events.Multi{events.NewHubPublisher(hub)}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		publishers = append(publishers, kp)
		log.Info("Publishing safe zone events to Kafka", slog.String("topic", cfg.Kafka.Topic))
	}

	authz := auth.NewRoleAuthorizer()
	opts := []safezone.Option{
		safezone.WithAuthorizer(authz),
		safezone.WithPublisher(publishers),
	}

	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis, log)
		if err != nil {
			return err
		}
		defer rdb.Close()
		opts = append(opts, safezone.WithStatsCache(cache.NewRedisJSON[safezone.Stats](rdb, statsCacheKey, cfg.Redis.StatsTTL)))
	}

	if cfg.S3.Enabled() {
		uploader, err := s3.NewUploader(ctx, cfg.S3)
		if err != nil {
			return err
		}
		opts = append(opts, safezone.WithPhotoStore(uploader))
	} else {
		log.Warn("S3 is not configured. Photo uploads are disabled.")
	}

	service := safezone.NewService(repo, log, opts...)

	ttl, err := time.ParseDuration(cfg.JWT.Expiration)
	if err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, visitorIdleTTL, log)
	go limiter.Cleanup(ctx)

	// 5. Router
	router := routes.SetupRouter(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Service:     service,
		Users:       users,
		Tokens:      auth.NewTokens(cfg.JWT.Secret, ttl),
		Authorizer:  authz,
		Hub:         hub,
		Locations:   locsearch.New(cfg.LocationSearch, log),
		RateLimiter: limiter,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 6. Start server
	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting API server", slog.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
