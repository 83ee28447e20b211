package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"intizar/internal/api"
	"intizar/internal/auth"
	"intizar/internal/catalog"
	"intizar/internal/config"
	"intizar/internal/redis"
	"intizar/internal/scope"
	"intizar/internal/service/ai"
	"intizar/internal/storage"
	"intizar/internal/telemetry"
	"intizar/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("INTIZAR_CONFIG"))
	if err != nil {
		fatal("load config", err)
	}
	telemetry.NewLogger(cfg.BasicConfig.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	}
	defer shutdownTracing(context.Background())

	metrics, err := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		fatal("register metrics", err)
	}

	var cache redis.Store
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb, err = redis.NewRedisClient(cfg.Redis)
		if err != nil {
			fatal("create redis client", err)
		}
		cache = rdb
	} else {
		slog.Warn("redis not configured, sessions are kept in process memory")
		cache = redis.NewMemory()
	}
	defer cache.Close()

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		fatal("open catalog", err)
	}
	defer closeRepo()

	files, err := storage.NewFileStore(ctx, cfg.Storage)
	if err != nil {
		fatal("open file store", err)
	}
	if c, ok := files.(io.Closer); ok {
		defer c.Close()
	}

	// one worker owns every catalog append
	appends := worker.NewDispatcher(cfg.BasicConfig.QueueSize)
	defer appends.Close()

	maxUpload := int64(cfg.BasicConfig.MaxUploadMB) << 20
	catalogService := catalog.NewService(repo, files, appends,
		catalog.WithCache(cache, time.Duration(cfg.Catalog.CacheTTLSeconds)*time.Second),
		catalog.WithMetrics(metrics),
		catalog.WithMaxUploadBytes(maxUpload),
	)

	gen, err := ai.NewGenerator(ctx, cfg)
	if err != nil {
		fatal("init ai provider", err)
	}
	if gen == nil {
		slog.Warn("ai provider has no api key, questions will fail", "provider", cfg.AI.Provider)
	}
	gateway := ai.NewGateway(gen, scope.Default(), time.Duration(cfg.AI.TimeoutSeconds)*time.Second,
		ai.WithMetrics(metrics),
		ai.WithRateLimit(cfg.AI.RateLimitPerMinute),
		ai.WithSystemPrompt(cfg.AI.SystemPrompt),
	)

	if cfg.Admin.Username == "" {
		slog.Warn("admin credentials not configured, login is disabled")
	}
	authService := auth.NewService(cache, cfg.Admin, time.Duration(cfg.BasicConfig.SessionTTLMinutes)*time.Minute)

	opts := []api.HandlerOption{
		api.WithMetrics(metrics, prometheus.DefaultGatherer),
		api.WithMaxUploadBytes(maxUpload),
	}
	if rdb != nil {
		opts = append(opts, api.WithCachePing(rdb))
	}
	switch fs := files.(type) {
	case *storage.LocalStore:
		opts = append(opts, api.WithFilesDir(fs.Root()))
	case storage.Presigner:
		opts = append(opts, api.WithFileLinks(fs))
	}
	handlers := api.NewHandler(authService, catalogService, gateway, opts...)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	handlers.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           otelhttp.NewHandler(router, "intizar"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("server listening",
			"addr", srv.Addr,
			"catalog", cfg.Catalog.Backend,
			"file_store", files.Name(),
			"ai_provider", cfg.AI.Provider,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server stopped", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}

// openRepository opens the configured catalog backend and prepares it for
// appends.
func openRepository(ctx context.Context, cfg *config.Config) (catalog.Repository, func() error, error) {
	if cfg.Catalog.Backend == "firestore" {
		client, err := storage.NewFirestoreClient(ctx, cfg.Catalog.FirestoreProject)
		if err != nil {
			return nil, nil, err
		}
		repo := storage.NewDocumentFirestore(client, cfg.Catalog.FirestoreCollection)
		return repo, repo.Close, nil
	}

	db, err := storage.Open(cfg.Catalog.Backend, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := storage.Migrate(db, cfg.Catalog.Backend); err != nil {
		db.Close()
		return nil, nil, err
	}
	return storage.NewDocumentSQL(db, cfg.Catalog.Backend), db.Close, nil
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
