// Package main is the entry point for the election counting API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/uniwahl/zaehlwerk/internal/api"
	"github.com/uniwahl/zaehlwerk/internal/audit"
	"github.com/uniwahl/zaehlwerk/internal/auth"
	"github.com/uniwahl/zaehlwerk/internal/config"
	"github.com/uniwahl/zaehlwerk/internal/counting"
	"github.com/uniwahl/zaehlwerk/internal/db"
	"github.com/uniwahl/zaehlwerk/internal/election"
	"github.com/uniwahl/zaehlwerk/internal/health"
	"github.com/uniwahl/zaehlwerk/internal/jobs"
	"github.com/uniwahl/zaehlwerk/internal/middleware"
	"github.com/uniwahl/zaehlwerk/internal/result"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "path to optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Zaehlwerk Election Counting API")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	env := config.DefaultEnv
	if cfg != nil {
		env = cfg.Env
	}
	logger := middleware.NewLogger(env)
	slog.SetDefault(logger)

	if len(errs) > 0 {
		for _, err := range errs {
			logger.Error("configuration error", "error", err)
		}
		os.Exit(1)
	}
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ctx := context.Background()

	// Metrics registry shared by HTTP and counting collectors.
	registry := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}
	countingMetrics := counting.NewMetrics()
	if err := countingMetrics.Register(registry); err != nil {
		logger.Error("failed to register counting metrics", "error", err)
		os.Exit(1)
	}
	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(registry); err != nil {
		logger.Error("failed to register job metrics", "error", err)
		os.Exit(1)
	}

	// Storage. Postgres when DATABASE_URL is set, otherwise in-memory stores
	// for local development.
	var (
		elections election.Repository
		store     result.Store
		chain     audit.Chain
		ballots   audit.BallotChains
		dbChecker api.HealthChecker
	)
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := conn.Close(); err != nil {
				logger.Error("failed to close database", "error", err)
			}
		}()

		pgChain := audit.NewPostgresChain(conn, cfg.AuditGenesisHash, logger)
		chain = pgChain
		ballots = audit.NewPostgresBallotChains(conn, cfg.AuditGenesisHash, logger)
		store = result.NewPostgresStore(conn, pgChain, logger)
		elections = election.NewPostgresRepository(conn)
		dbChecker = health.NewDBChecker(conn)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		memChain := audit.NewInMemoryChain(cfg.AuditGenesisHash)
		chain = memChain
		ballots = audit.NewInMemoryBallotChains(cfg.AuditGenesisHash)
		store = result.NewInMemoryStore(memChain)
		elections = election.NewInMemoryRepository()
	}

	// Rate limit store. Redis when configured, otherwise in-process.
	var (
		rateLimitStore middleware.RateLimitStore
		redisChecker   api.HealthChecker
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("failed to close redis client", "error", err)
			}
		}()
		rateLimitStore = middleware.NewRedisRateLimitStore(redisClient)
		redisChecker = health.NewRedisChecker(redisClient)
	} else {
		memStore := middleware.NewInMemoryRateLimitStore()
		rateLimitStore = memStore
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				memStore.Cleanup()
			}
		}()
	}

	// Scheduled chain verification. Disabled when the interval is zero.
	if cfg.AuditVerifyIntervalMinutes > 0 {
		verifier := jobs.NewVerifier(jobs.VerifierConfig{
			Chain:        chain,
			Ballots:      ballots,
			Genesis:      cfg.AuditGenesisHash,
			Interval:     time.Duration(cfg.AuditVerifyIntervalMinutes) * time.Minute,
			Logger:       logger,
			Metrics:      jobMetrics,
			ChainMetrics: countingMetrics,
		})
		verifier.Start(ctx)
		defer verifier.Stop()
	}

	jwtService := auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTSecretPrevious)
	countingService := counting.NewService(elections, store, counting.NewRegistry(), countingMetrics, logger)

	countingHandlers := api.NewCountingHandlers(countingService, logger)
	auditHandlers := api.NewAuditHandlers(api.AuditHandlersConfig{
		Chain:       chain,
		BallotChain: ballots,
		Genesis:     cfg.AuditGenesisHash,
		Metrics:     countingMetrics,
		Logger:      logger,
	})
	authHandlers := api.NewAuthHandlers(jwtService, cfg.AdminPassword, logger)
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:    dbChecker,
		RedisChecker: redisChecker,
	})

	adminOnly := api.RequireRole(jwtService, auth.RoleAdmin)
	adminOrCommittee := api.RequireRole(jwtService, auth.RoleAdmin, auth.RoleCommittee)

	loginLimiter := middleware.RateLimiter(rateLimitStore, middleware.RateLimitConfig{
		RequestsPerWindow: cfg.LoginRateLimit,
		WindowDuration:    time.Minute,
	}, middleware.IPKeyFunc())

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/auth/login", loginLimiter(http.HandlerFunc(authHandlers.Login)))
	mux.Handle("/counting/", countingRouter(countingHandlers, adminOnly, adminOrCommittee))
	mux.Handle("/audit/logs", adminOnly(http.HandlerFunc(auditHandlers.Logs)))
	mux.Handle("/audit/verify", adminOnly(http.HandlerFunc(auditHandlers.Verify)))
	mux.Handle("/audit/verify-ballots", adminOnly(http.HandlerFunc(auditHandlers.VerifyBallots)))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"zaehlwerk-api","version":"0.1.0"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	globalLimiter := middleware.RateLimiter(rateLimitStore, middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimitPerMinute,
		WindowDuration:    time.Minute,
	}, middleware.IPKeyFunc())

	// Middleware order: RequestID -> Logging -> HTTPMetrics -> RateLimiter
	handler := middleware.RequestID(
		middleware.Logging(logger)(
			middleware.HTTPMetrics(httpMetrics)(
				globalLimiter(mux))))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// countingRouter applies the per-operation role requirements: counting and
// reads are open to admin and committee, finalization is admin only.
func countingRouter(h *api.CountingHandlers, adminOnly, adminOrCommittee func(http.Handler) http.Handler) http.Handler {
	handle := http.HandlerFunc(h.Handle)
	finalize := adminOnly(handle)
	rest := adminOrCommittee(handle)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && hasSuffixSegment(r.URL.Path, "finalize") {
			finalize.ServeHTTP(w, r)
			return
		}
		rest.ServeHTTP(w, r)
	})
}

func hasSuffixSegment(path, segment string) bool {
	for len(path) > 0 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	idx := len(path) - len(segment)
	return idx > 0 && path[idx:] == segment && path[idx-1] == '/'
}
