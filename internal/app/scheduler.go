package app

import (
	"context"
	"time"

	"github.com/big0725/portfolio-pro/internal/common"
	"github.com/big0725/portfolio-pro/internal/interfaces"
)

// startRefreshScheduler refreshes the default scope on a fixed interval
// under the privileged identity, so snapshots accrue even when nobody
// opens the dashboard.
func startRefreshScheduler(ctx context.Context, portfolioService interfaces.PortfolioService, storage interfaces.StorageManager, config *common.Config, logger *common.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Refresh scheduler: stopped")
			return
		case <-ticker.C:
			refreshDefaultScope(ctx, portfolioService, storage, config, logger)
		}
	}
}

func refreshDefaultScope(ctx context.Context, portfolioService interfaces.PortfolioService, storage interfaces.StorageManager, config *common.Config, logger *common.Logger) {
	start := time.Now()

	scope := common.ResolveDefaultScope(ctx, storage.InternalStore())
	if scope == "" {
		return
	}

	// Ticks run as the admin so snapshot writes are permitted
	tickCtx := common.WithIdentity(ctx, common.ResolveIdentity(config.AdminEmail, config.AdminEmail))

	result, err := portfolioService.Refresh(tickCtx, scope)
	if err != nil {
		logger.Warn().Err(err).Str("scope", scope).Msg("Scheduled refresh failed")
		return
	}

	logger.Info().
		Str("scope", scope).
		Str("sync_status", string(result.SyncStatus)).
		Int("warnings", len(result.Warnings)).
		Dur("elapsed", time.Since(start)).
		Msg("Scheduled refresh complete")
}
