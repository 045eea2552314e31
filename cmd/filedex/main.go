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

	"github.com/kailas-cloud/filedex/internal/config"
	dbRedis "github.com/kailas-cloud/filedex/internal/db/redis"
	"github.com/kailas-cloud/filedex/internal/domain"
	"github.com/kailas-cloud/filedex/internal/embedding"
	logpkg "github.com/kailas-cloud/filedex/internal/logger"
	"github.com/kailas-cloud/filedex/internal/metrics"
	"github.com/kailas-cloud/filedex/internal/objectstore/s3objects"
	"github.com/kailas-cloud/filedex/internal/repository/embcache"
	chiTransport "github.com/kailas-cloud/filedex/internal/transport/chi"
	openaiEmb "github.com/kailas-cloud/filedex/internal/transport/openai"
	filesuc "github.com/kailas-cloud/filedex/internal/usecase/files"
	healthuc "github.com/kailas-cloud/filedex/internal/usecase/health"
	"github.com/kailas-cloud/filedex/internal/validation"
	"github.com/kailas-cloud/filedex/internal/vectorstore/s3vectors"
	"github.com/kailas-cloud/filedex/internal/version"
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

	logger.Info("Starting filedex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("vector_bucket", cfg.AWS.VectorBucket),
		zap.String("vector_index", cfg.AWS.VectorIndex),
	)

	ctx := context.Background()

	// Register service metrics explicitly (no init())
	metrics.Register()

	// Vector backend
	backend, err := s3vectors.New(ctx, s3vectors.Config{
		Region:  cfg.AWS.Region,
		Profile: cfg.AWS.Profile,
		Bucket:  cfg.AWS.VectorBucket,
		Index:   cfg.AWS.VectorIndex,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("Failed to create vector backend", zap.Error(err))
	}

	// Embedder chain: OpenAI-compatible provider, optionally wrapped in a
	// Redis-backed cache when cache.enabled is set.
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Vector.Dimension,
		Logger:     logger,
	})

	var embedder domain.Embedder = base
	if cfg.Cache.Enabled {
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, 30*time.Second); err != nil {
			logger.Fatal("Cache store not ready", zap.Error(err))
		}
		logger.Info("Embedding cache enabled", zap.Strings("addrs", cfg.Cache.Addrs))

		ttl := time.Duration(cfg.Cache.TTLSec) * time.Second
		embedder = embcache.New(base, store, ttl, metrics.EmbeddingCacheTotal, logger)
	}

	pipeline := embedding.New(embedder, cfg.Vector, logger)
	gate := validation.New(cfg.Validation)

	filesOpts := []filesuc.Option{filesuc.WithModelName(base.Model())}
	if cfg.AWS.ContentBucket != "" {
		content, err := s3objects.New(ctx, s3objects.Config{
			Region:  cfg.AWS.Region,
			Profile: cfg.AWS.Profile,
			Bucket:  cfg.AWS.ContentBucket,
			Logger:  logger,
		})
		if err != nil {
			logger.Fatal("Failed to create content store", zap.Error(err))
		}
		logger.Info("Content store enabled", zap.String("bucket", cfg.AWS.ContentBucket))
		filesOpts = append(filesOpts, filesuc.WithObjectStore(content))
	}

	filesSvc := filesuc.New(gate, pipeline, backend, cfg.Vector, logger, filesOpts...)
	healthSvc := healthuc.New(backend, base, cfg.Vector, cfg.AWS.VectorBucket, cfg.AWS.VectorIndex)

	server := chiTransport.NewServer(filesSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

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
