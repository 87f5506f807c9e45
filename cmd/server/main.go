package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/peerprep/matching-server-go/internal/config"
	"github.com/peerprep/matching-server-go/internal/connection"
	"github.com/peerprep/matching-server-go/internal/database"
	"github.com/peerprep/matching-server-go/internal/dispatch"
	"github.com/peerprep/matching-server-go/internal/handler"
	"github.com/peerprep/matching-server-go/internal/hub"
	"github.com/peerprep/matching-server-go/internal/jobs"
	"github.com/peerprep/matching-server-go/internal/match"
	"github.com/peerprep/matching-server-go/internal/metrics"
	"github.com/peerprep/matching-server-go/internal/middleware"
	"github.com/peerprep/matching-server-go/internal/pool"
	"github.com/peerprep/matching-server-go/internal/ratelimit"
	"github.com/peerprep/matching-server-go/internal/redis"
	"github.com/peerprep/matching-server-go/internal/repository"
	"github.com/peerprep/matching-server-go/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
	}

	var historyRepo repository.MatchHistoryRepository
	var db *database.DB
	if cfg.DatabaseURL != "" {
		db, err = database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		if err := db.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		if err := db.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to prepare database schema")
		}
		cancel()
		log.Info().Msg("database connected")

		historyRepo = repository.NewMatchHistoryRepository(db.DB)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	connections := connection.NewRegistry(cfg.DisconnectGrace())
	pools := pool.NewManager(connections)
	matches := match.NewRegistry()
	rooms := hub.New()
	lifecycle := service.NewLifecycle(rooms, m, historyRepo)

	pairingService := service.NewPairingService(connections, pools, matches, rooms, lifecycle, m)

	var queue dispatch.Queue
	switch cfg.QueueMode {
	case config.QueueModeRedis:
		queue = dispatch.NewRedisStreamQueue(redisClient, pairingService.Process)
	default:
		queue = dispatch.NewDirectQueue(pairingService.Process)
	}
	defer queue.Close()
	log.Info().Str("mode", cfg.QueueMode).Msg("match request queue ready")

	sessionService := service.NewSessionService(connections, pools, matches, rooms, queue, lifecycle, m, service.SessionConfig{
		DefaultTTL:     cfg.DefaultRequestTTL(),
		MaxTTL:         cfg.MaxRequestTTL(),
		EnqueueTimeout: cfg.EnqueueTimeout(),
	})

	var limiter middleware.Limiter = ratelimit.NewMemory()
	if redisClient != nil {
		limiter = ratelimit.New(redisClient.Client)
	}
	connectLimit := middleware.NewConnectLimitMiddleware(limiter, cfg.ConnectRateLimitPerMin, config.ConnectRateLimitWindow)

	socketHandler := handler.NewSocketHandler(sessionService, cfg.AllowedOrigins)
	matchHandler := handler.NewMatchHandler(sessionService, pools)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
			"queue":     cfg.QueueMode,
		}
		code := http.StatusOK
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				status["status"] = "degraded"
				status["database"] = err.Error()
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(status)
	})

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.With(connectLimit.Handler).Get("/ws", socketHandler.ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Mount("/", matchHandler.Routes())
		if historyRepo != nil {
			r.Mount("/history", handler.NewHistoryHandler(historyRepo).Routes())
		}
	})

	cleanupJob := jobs.NewCleanupJob(pools, connections, historyRepo, m, cfg.HistoryRetention(), cfg.SweepInterval())
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
