package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/checkin"
	"ms-checkin/internal/checkin/checkin_api"
	checkinredis "ms-checkin/internal/checkin/redis"
	"ms-checkin/internal/config"
	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/feed"
	"ms-checkin/internal/kafka"
	"ms-checkin/internal/logger"
	regdb "ms-checkin/internal/registration/db"
	"ms-checkin/internal/registration/registration_api"
	"ms-checkin/internal/resolver"
	"ms-checkin/internal/stats"
)

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	logger.Info("DATABASE", "PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	logger.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s", cfg.Redis.Addr))

	return bunDB, redisClient
}

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Check-In Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	ctx := context.Background()

	logger.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, logger)
	defer bunDB.Close()
	defer redisClient.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
		if err := runner.RunMigrations(); err != nil {
			logger.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
		logger.Info("DATABASE", "Migrations applied")
	}

	var kafkaProducer *kafka.Producer
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.Topics.AttendeeCheckedIn}); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		kafkaProducer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.AttendeeCheckedIn)
		defer kafkaProducer.Close()
		logger.Info("KAFKA", "Kafka producer initialized")
	} else {
		logger.Warn("KAFKA", "Kafka disabled, check-in events stay in-process only")
	}

	store := &regdb.DB{Bun: bunDB}
	locks := checkinredis.NewLocks(redisClient, cfg.CheckIn.LockTTL)
	res := resolver.NewResolver(store, logger)

	eventFeed := feed.NewFeed(cfg.CheckIn.FeedSize)
	aggregator := stats.NewAggregator(store, logger, cfg.CheckIn.ReconcileInterval)
	if err := aggregator.Start(ctx); err != nil {
		logger.Fatal("STATS", fmt.Sprintf("Aggregator seed failed: %v", err))
	}
	defer aggregator.Stop()
	logger.Info("STATS", "Aggregator seeded from store")

	var publisher checkin.KafkaPublisher
	if kafkaProducer != nil {
		publisher = kafkaProducer
	}
	service := checkin.NewService(store, locks, publisher, logger, cfg.CheckIn.MaxWriteRetries)
	service.AddSink(aggregator)
	service.AddSink(eventFeed)

	handler := &checkin_api.Handler{
		Service:    service,
		Resolver:   res,
		Aggregator: aggregator,
		Feed:       eventFeed,
		Logger:     logger,
	}
	sseHandler := checkin_api.NewSSEHandler(logger, aggregator, eventFeed)
	regHandler := &registration_api.Handler{DB: store, Logger: logger}

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public monitor routes ---
	r.Get("/api/checkin/stats", handler.Stats)
	r.Get("/api/checkin/feed", handler.RecentEvents)
	r.Get("/api/checkin/stream", sseHandler.HandleEventStream)
	r.Get("/api/checkin/stats/stream", sseHandler.HandleStatsStream)
	logger.Info("ROUTER", "Monitor endpoints registered under /api/checkin")

	// --- Protected operator routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.Issuer, cfg.Auth.SkipAuth))
		logger.Info("AUTH", "Bearer middleware applied to operator API routes")

		r.Route("/api", func(r chi.Router) {
			r.Route("/checkin", func(r chi.Router) {
				r.Post("/", handler.CheckIn)
				r.Post("/resolve", handler.Resolve)
				r.Post("/qr", handler.ResolveQR)
				r.Post("/stats/reconcile", handler.Reconcile)
			})
			logger.Info("ROUTER", "Check-in routes registered under /api/checkin")

			r.Route("/registrations", func(r chi.Router) {
				r.Post("/", regHandler.CreateRegistration)
				r.Get("/{registrationID}", regHandler.GetRegistration)
				r.Get("/{registrationID}/badge", regHandler.Badge)
			})
			logger.Info("ROUTER", "Registration routes registered under /api/registrations")
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("Check-In Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "Check-In Service shutdown complete")
	}
}
