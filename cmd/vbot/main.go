package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Jikima/VBot/internal/config"
	"github.com/Jikima/VBot/internal/db"
	dbRedis "github.com/Jikima/VBot/internal/db/redis"
	"github.com/Jikima/VBot/internal/domain"
	"github.com/Jikima/VBot/internal/domain/usage"
	logpkg "github.com/Jikima/VBot/internal/logger"
	"github.com/Jikima/VBot/internal/metrics"
	"github.com/Jikima/VBot/internal/repository/ledgerfile"
	"github.com/Jikima/VBot/internal/repository/ledgerredis"
	chiTransport "github.com/Jikima/VBot/internal/transport/chi"
	openaiProvider "github.com/Jikima/VBot/internal/transport/openai"
	budgetuc "github.com/Jikima/VBot/internal/usecase/budget"
	dedupuc "github.com/Jikima/VBot/internal/usecase/dedup"
	healthuc "github.com/Jikima/VBot/internal/usecase/health"
	uledger "github.com/Jikima/VBot/internal/usecase/ledger"
	meteruc "github.com/Jikima/VBot/internal/usecase/meter"
	relayuc "github.com/Jikima/VBot/internal/usecase/relay"
	"github.com/Jikima/VBot/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting vbot API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("storage_driver", cfg.Storage.Driver),
	)

	ctx := context.Background()

	// Build the ledger store based on driver. The redis driver also backs
	// idempotency claims; the file driver keeps one JSON record per identity.
	var (
		ledgerStore uledger.Store
		pinger      healthuc.StorePinger
		kv          db.Store
	)
	switch cfg.Storage.Driver {
	case "file":
		fileStore, err := ledgerfile.New(cfg.Storage.Dir)
		if err != nil {
			logger.Fatal("Failed to open ledger directory", zap.Error(err))
		}
		ledgerStore = fileStore
		pinger = fileStore
		logger.Info("Using file ledger store", zap.String("dir", cfg.Storage.Dir))
	case "redis":
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Storage.Addrs,
			Password: cfg.Storage.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create redis store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Storage.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Redis not ready", zap.Error(err))
		}
		logger.Info("Connected to redis", zap.Strings("addrs", cfg.Storage.Addrs))

		kv = store
		ledgerStore = ledgerredis.New(store)
		pinger = store
	default:
		logger.Fatal("Unknown storage driver", zap.String("driver", cfg.Storage.Driver))
	}

	// Register metrics explicitly (no init())
	metrics.RegisterLedgerMetrics()
	metrics.RegisterProviderMetrics()

	// Ledger registry and budget gate — composition root
	registry := uledger.NewRegistry(ledgerStore, cfg.Pricing.Table(), logger)

	period, err := usage.ParsePeriod(cfg.Budget.Period)
	if err != nil {
		logger.Fatal("Invalid budget period", zap.Error(err))
	}
	allowed, allowAll := config.ParseAllowList(cfg.Budget.Allowed)
	allowances, unlimited, err := config.ParseAllowances(cfg.Budget.Allowances)
	if err != nil {
		logger.Fatal("Invalid allowances", zap.Error(err))
	}
	gate := budgetuc.New(budgetuc.Policy{
		Period:         period,
		AdminIDs:       config.SplitIDs(cfg.Budget.Admins),
		AllowAll:       allowAll,
		AllowedIDs:     allowed,
		Unlimited:      unlimited,
		Allowances:     allowances,
		GuestAllowance: cfg.Budget.GuestAllowance,
	}, registry, logger)

	meterSvc := meteruc.New(registry, gate, logger)

	// Model provider. An empty API key leaves the relay endpoints disabled
	// while the accounting API keeps working.
	var providers relayuc.Providers

	// Pass nil interface (not typed nil pointer!) if the provider is not
	// configured. Go gotcha: (*Provider)(nil) wrapped in ProviderChecker != nil.
	var providerChecker healthuc.ProviderChecker
	if cfg.Provider.APIKey != "" {
		provider := openaiProvider.NewProvider(&openaiProvider.Config{
			APIKey:             cfg.Provider.APIKey,
			BaseURL:            cfg.Provider.BaseURL,
			ChatModel:          cfg.Provider.ChatModel,
			TranscriptionModel: cfg.Provider.TranscriptionModel,
			ImageModel:         cfg.Provider.ImageModel,
			User:               cfg.Provider.User,
			Logger:             logger,
		})

		var chat domain.ChatCompleter = provider
		if cfg.Provider.SystemPrompt != "" {
			chat = domain.NewSystemPromptCompleter(provider, cfg.Provider.SystemPrompt)
		}

		providers = relayuc.Providers{
			Chat:        chat,
			Transcriber: provider,
			Images:      provider,
		}
		providerChecker = provider

		logger.Info("Model provider configured",
			zap.String("chat_model", cfg.Provider.ChatModel),
			zap.String("transcription_model", cfg.Provider.TranscriptionModel),
			zap.String("image_model", cfg.Provider.ImageModel),
		)
	} else {
		logger.Warn("No provider API key, relay endpoints disabled")
	}

	relaySvc := relayuc.New(providers, gate, meterSvc, logger).
		WithDefaultImageSize(cfg.Relay.DefaultImageSize)

	healthSvc := healthuc.New(pinger, providerChecker)

	server := chiTransport.NewServer(meterSvc, relaySvc, gate, healthSvc, logger)
	if cfg.Dedup.Enabled {
		// Validate guarantees the redis driver here, so kv is non-nil.
		server.WithDedup(dedupuc.New(kv, time.Duration(cfg.Dedup.TTLHours)*time.Hour))
		logger.Info("Idempotency claims enabled", zap.Int("ttl_hours", cfg.Dedup.TTLHours))
	}

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
