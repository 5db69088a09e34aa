package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apihttp "mediastream/internal/api/http"
	"mediastream/internal/app"
	"mediastream/internal/domain"
	"mediastream/internal/metrics"
	mongorepo "mediastream/internal/repository/mongo"
	"mediastream/internal/services/cache"
	"mediastream/internal/services/download"
	"mediastream/internal/services/remote/agent"
	"mediastream/internal/telemetry"
	"mediastream/internal/usecase"

	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

// version is stamped via -ldflags at build time.
var version = "dev"

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), telemetry.FromEnv("mediastream", version))
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "mediastream"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("streamAddr", cfg.StreamAddr),
		slog.String("agentBaseURL", cfg.AgentBaseURL),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("cacheDir", cfg.CacheDir),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Watch history is optional: playback works without MongoDB, resume
	// positions just stop persisting.
	var watchHistoryRepo *mongorepo.WatchHistoryRepository
	mongoCtx, mongoCancel := context.WithTimeout(rootCtx, 5*time.Second)
	mongoClient, err := mongorepo.Connect(mongoCtx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err == nil {
		err = mongoClient.Ping(mongoCtx, readpref.Primary())
	}
	mongoCancel()
	if err != nil {
		logger.Warn("mongo unavailable, watch history disabled", slog.String("error", err.Error()))
		mongoClient = nil
	} else {
		watchHistoryRepo = mongorepo.NewWatchHistoryRepository(mongoClient, cfg.MongoDatabase, cfg.MongoCollection)
		if err := watchHistoryRepo.EnsureIndexes(rootCtx); err != nil {
			logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
		}
	}

	remote := agent.NewClient(agent.Config{BaseURL: cfg.AgentBaseURL})

	registry := apihttp.NewStreamRegistry(apihttp.RegistryConfig{
		ListenAddr:    cfg.StreamAddr,
		MaxChunkBytes: cfg.MaxChunkBytes,
		RetryDelay:    cfg.PollInterval,
		ReadWait:      cfg.StreamReadWait,
		IdleTimeout:   cfg.IdleTimeout,
	}, logger)

	evictor := cache.NewEvictor(cache.Config{
		Dir:          cfg.CacheDir,
		MaxBytes:     cfg.CacheSizeBytes,
		MinFreeBytes: cfg.CacheMinFreeBytes,
		InUse:        registry.InUse,
	}, logger)
	go evictor.Run(rootCtx, cfg.CacheSweepInterval)

	providerCfg := download.Config{
		PollInterval:       cfg.PollInterval,
		InitialBufferBytes: cfg.InitialBuffer,
		SeekWindowBytes:    cfg.SeekWindow,
		FetchTimeout:       cfg.FetchTimeout,
	}
	startUC := &usecase.StartPlayback{
		Registry: registry,
		NewProvider: func(file domain.MediaFile) (usecase.StreamProvider, error) {
			return download.NewProvider(file, remote, providerCfg, logger)
		},
	}
	stopUC := &usecase.StopPlayback{Registry: registry, Sweeper: evictor}

	serverOpts := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithStopPlayback(stopUC),
		apihttp.WithSessions(registry),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
	}
	if watchHistoryRepo != nil {
		serverOpts = append(serverOpts, apihttp.WithWatchHistory(watchHistoryRepo))
	}
	handler := apihttp.NewServer(startUC, serverOpts...)

	go updateStreamMetrics(rootCtx, registry, handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if err := registry.Close(shutdownCtx); err != nil {
		logger.Warn("stream registry close error", slog.String("error", err.Error()))
	}
	if mongoClient != nil {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
}

// updateStreamMetrics refreshes Prometheus gauges from registry state and
// pushes session snapshots to WebSocket clients.
func updateStreamMetrics(ctx context.Context, registry *apihttp.StreamRegistry, handler *apihttp.Server) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			states := registry.Sessions()
			var dlTotal int64
			for _, state := range states {
				dlTotal += state.DownloadSpeed
			}
			metrics.DownloadSpeedBytes.Set(float64(dlTotal))
			handler.BroadcastSessions()
		}
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
