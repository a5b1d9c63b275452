// Command worker fails generation records stuck in flight. A record left
// PENDING or PROCESSING past the stale window belongs to an api process that
// died mid-run; failing it lets clients stop polling and resubmit.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"spriteforge/internal/adapter/repo"
	"spriteforge/internal/infra"
)

const reclaimDetail = "worker reclaimed: run abandoned by a dead process"

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

	assetRepo := repo.NewAssetRepo(infra.NewSQLRunner(pool, logger))

	logger.Info().
		Dur("stale_after", cfg.WorkerStaleAfter).
		Dur("poll_interval", cfg.WorkerPollInterval).
		Msg("worker started")

	ticker := time.NewTicker(cfg.WorkerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker stopped")
			return
		case <-ticker.C:
			reclaimed, err := assetRepo.ReclaimStale(ctx, cfg.WorkerStaleAfter, reclaimDetail)
			if err != nil {
				logger.Error().Err(err).Msg("reclaim stale records")
				continue
			}
			if reclaimed > 0 {
				logger.Warn().Int("count", reclaimed).Msg("reclaimed stale records")
			}
		}
	}
}
