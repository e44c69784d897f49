package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"studyroom-backend/internal/config"
	"studyroom-backend/internal/database"
	"studyroom-backend/internal/handlers"
	"studyroom-backend/internal/logger"
	"studyroom-backend/internal/metrics"
	"studyroom-backend/internal/middleware"
	"studyroom-backend/internal/repository"
	"studyroom-backend/internal/router"
	"studyroom-backend/internal/services"
	"studyroom-backend/internal/websocket"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("starting study room backend", zap.String("env", cfg.Env))

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("postgres connection failed", zap.Error(err))
	}
	defer pool.Close()
	log.Info("postgres connected")

	// ──── Step 3: Run Database Migrations ────
	if err := database.RunMigrations(pool, cfg.MigrationsDir, logger.WithComponent(log, "migrations")); err != nil {
		log.Fatal("database migration failed", zap.Error(err))
	}
	log.Info("database migrations applied")

	// ──── Step 4: Initialize Redis Client ────
	redisClient, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("redis connected")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	roomRepo := repository.NewRoomRepo(pool)
	sessionRepo := repository.NewStudySessionRepo(pool)
	metricRepo := repository.NewMetricRepo(pool)
	liveCache := repository.NewLiveMetricCache(redisClient, cfg.LiveSnapshotTTL)

	// ──── Metrics ────
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	stats := metrics.NewRegistry(registry)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret, cfg.JWTAccessTTL)
	authService := services.NewAuthService(userRepo, jwtAuth)
	authority := services.NewSessionAuthority(roomRepo, sessionRepo, cfg.Realtime.EnforceRoomOwnership)

	// ──── Step 5: Start Realtime Hub ────
	hub := websocket.NewHub(stats, logger.WithComponent(log, "hub"))
	pipeline := services.NewIngestPipeline(
		hub,
		authority,
		metricRepo,
		hub,
		liveCache,
		cfg.Realtime.PersistTimeout,
		stats,
		logger.WithComponent(log, "ingest"),
	)
	realtime := websocket.NewHandler(
		hub,
		jwtAuth,
		authority,
		pipeline,
		websocket.Options{
			SendBuffer:    cfg.Realtime.SendBuffer,
			InboundQueue:  cfg.Realtime.InboundQueue,
			MaxFrameBytes: cfg.Realtime.MaxFrameBytes,
		},
		stats,
		logger.WithComponent(log, "realtime"),
	)

	// ──── Initialize Handlers ────
	handlerLog := logger.WithComponent(log, "http")
	authHandler := handlers.NewAuthHandler(authService)
	roomHandler := handlers.NewRoomHandler(roomRepo, sessionRepo, authority, liveCache, handlerLog)
	sessionHandler := handlers.NewStudySessionHandler(sessionRepo, authority, roomRepo, metricRepo, handlerLog)

	authLimiter := middleware.NewRateLimiter(10, time.Minute)
	defer authLimiter.Close()

	// ──── Step 6: Start HTTP Server ────
	r := router.New(router.Deps{
		JWTAuth:      jwtAuth,
		AuthLimiter:  authLimiter,
		Auth:         authHandler,
		Rooms:        roomHandler,
		StudySession: sessionHandler,
		Realtime:     realtime,
		Gatherer:     registry,
		FrontendURL:  cfg.FrontendURL,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	idle := make(chan struct{})
	go func() {
		defer close(idle)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
		// Hijacked websocket connections are not covered by Shutdown.
		hub.CloseAll()
	}()

	log.Info("study room backend ready",
		zap.String("api", fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port)),
		zap.String("ws", fmt.Sprintf("ws://localhost:%s/api/v1/ws/rooms", cfg.Port)))

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal("server error", zap.Error(err))
	}
	<-idle
}
