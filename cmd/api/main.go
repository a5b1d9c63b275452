package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"spriteforge/internal/adapter/repo"
	"spriteforge/internal/batch"
	"spriteforge/internal/capability"
	"spriteforge/internal/comfy"
	httpapi "spriteforge/internal/http"
	"spriteforge/internal/http/handlers"
	"spriteforge/internal/infra"
	"spriteforge/internal/pipeline"
	"spriteforge/internal/pose"
	"spriteforge/internal/storage"
	"spriteforge/internal/workflow"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		bootLogger := infra.NewLogger("production")
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	assetRepo := repo.NewAssetRepo(runner)

	var store storage.Store
	var assetsDir string
	switch cfg.StorageBackend {
	case "s3":
		store, err = storage.NewObjectStore(storage.ObjectStoreOptions{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
	default:
		assetsDir = cfg.StoragePath
		store, err = storage.NewFileStore(cfg.StoragePath, "/generated-assets")
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("init storage")
	}

	client := comfy.NewClient(comfy.Options{
		BaseURL:        cfg.ComfyBaseURL,
		Mode:           cfg.ComfyMode,
		Logger:         &logger,
		RequestTimeout: cfg.ComfyRequestTimeout,
		PollInterval:   cfg.ComfyPollInterval,
		SubmitPerSec:   cfg.ComfySubmitPerSec,
	})
	if cfg.ComfyWSProgress {
		go client.StreamProgress(ctx)
	}

	registry, err := workflow.NewRegistry()
	if err != nil {
		logger.Fatal().Err(err).Msg("load workflow templates")
	}
	checker := capability.NewChecker(client, logger)
	poses := pose.NewManager(client, cfg.PoseDir, logger)

	coordinator := pipeline.NewCoordinator(pipeline.Options{
		Client:           client,
		Registry:         registry,
		Capabilities:     checker,
		Poses:            poses,
		Store:            store,
		Logger:           logger,
		FrameConcurrency: cfg.FrameConcurrency,
		SingleDeadline:   cfg.ComfySingleDeadline,
		FramesDeadline:   cfg.ComfyFramesDeadline,
	})
	supervisor := batch.NewSupervisor(assetRepo, coordinator, logger, cfg.MaxBatchSize)

	app := &handlers.App{
		Repo:       assetRepo,
		Supervisor: supervisor,
		Caps:       checker,
		Comfy:      client,
		Logger:     logger,
	}
	router := httpapi.NewRouter(httpapi.RouterOptions{
		App:             app,
		Logger:          logger,
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		AssetsDir:       assetsDir,
	})

	server := infra.NewHTTPServer(cfg, router)
	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.AppEnv).Msg("api listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown http server")
	}
	supervisor.Wait()
	logger.Info().Msg("bye")
}
