// Package portfolio orchestrates the refresh cycle: ledger reduction,
// market data, valuation, snapshot reconciliation, and insight caching.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/big0725/portfolio-pro/internal/common"
	"github.com/big0725/portfolio-pro/internal/interfaces"
	"github.com/big0725/portfolio-pro/internal/models"
	"github.com/big0725/portfolio-pro/internal/services/ledger"
	"github.com/big0725/portfolio-pro/internal/services/reconcile"
	"github.com/big0725/portfolio-pro/internal/services/valuation"
)

var scopeNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// Service implements PortfolioService
type Service struct {
	storage    interfaces.StorageManager
	market     interfaces.MarketDataService
	insight    interfaces.InsightService
	engine     *valuation.Engine
	reconciler *reconcile.Reconciler
	logger     *common.Logger
	now        func() time.Time // injectable clock for testing
}

// NewService creates a new portfolio service
func NewService(
	storage interfaces.StorageManager,
	market interfaces.MarketDataService,
	insightSvc interfaces.InsightService,
	logger *common.Logger,
) *Service {
	return &Service{
		storage:    storage,
		market:     market,
		insight:    insightSvc,
		engine:     valuation.NewEngine(),
		reconciler: reconcile.NewReconciler(logger),
		logger:     logger,
		now:        time.Now,
	}
}

// AddTransaction records a new buy or sell under the scope.
func (s *Service) AddTransaction(ctx context.Context, scope string, tx *models.Transaction) (*models.Transaction, error) {
	if !common.IsPrivileged(ctx) {
		return nil, models.ErrNotPrivileged
	}

	tx.Symbol = strings.ToUpper(strings.TrimSpace(tx.Symbol))
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.RecordedAt.IsZero() {
		tx.RecordedAt = s.now()
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.storage.PortfolioStore().EnsureScope(ctx, scope); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistenceFailed, err)
	}
	if err := s.storage.PortfolioStore().AppendTransaction(ctx, scope, tx); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistenceFailed, err)
	}

	s.logger.Info().
		Str("scope", scope).
		Str("symbol", tx.Symbol).
		Str("kind", string(tx.Kind)).
		Float64("quantity", tx.Quantity).
		Msg("Transaction recorded")

	return tx, nil
}

// DeleteTransaction removes one transaction by id.
func (s *Service) DeleteTransaction(ctx context.Context, scope, id string) error {
	if !common.IsPrivileged(ctx) {
		return models.ErrNotPrivileged
	}
	if err := s.storage.PortfolioStore().DeleteTransaction(ctx, scope, id); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistenceFailed, err)
	}
	s.logger.Info().Str("scope", scope).Str("id", id).Msg("Transaction deleted")
	return nil
}

// ListTransactions returns the scope's transaction log in insertion order.
func (s *Service) ListTransactions(ctx context.Context, scope string) ([]models.Transaction, error) {
	return s.storage.PortfolioStore().ListTransactions(ctx, scope)
}

// GetHoldings folds the transaction log into the derived net positions.
func (s *Service) GetHoldings(ctx context.Context, scope string) (map[string]models.Holding, error) {
	txs, err := s.storage.PortfolioStore().ListTransactions(ctx, scope)
	if err != nil {
		return nil, err
	}
	return ledger.Reduce(txs), nil
}

// Refresh runs one full cycle for the scope: value the holdings at
// fresh prices, reconcile the snapshot series (writing under the
// privileged identity only), and regenerate insight commentary when the
// cache gate allows it. Vendor failures degrade the result rather than
// failing it.
func (s *Service) Refresh(ctx context.Context, scope string) (*interfaces.RefreshResult, error) {
	return s.refresh(ctx, scope, true)
}

// GetOverview is the read-only variant of Refresh: same computation, no
// snapshot writes and no insight regeneration.
func (s *Service) GetOverview(ctx context.Context, scope string) (*interfaces.RefreshResult, error) {
	return s.refresh(ctx, scope, false)
}

func (s *Service) refresh(ctx context.Context, scope string, write bool) (*interfaces.RefreshResult, error) {
	start := s.now()
	today := common.Today(start)

	holdings, err := s.GetHoldings(ctx, scope)
	if err != nil {
		return nil, err
	}

	result := &interfaces.RefreshResult{SyncStatus: models.SyncStatusSynced}

	quotes, rows, err := s.market.Refresh(ctx, ledger.Symbols(holdings), ledger.CostBasisMap(holdings))
	if err != nil {
		// Stale-or-partial display beats no display: value everything
		// at cost basis and flag the degradation.
		s.logger.Warn().Str("scope", scope).Err(err).Msg("Market data unavailable")
		result.Warnings = append(result.Warnings, models.ErrMarketDataUnavailable.Error())
		quotes = models.NewQuoteSnapshot(start)
	}

	snapshots, err := s.storage.PortfolioStore().GetSnapshots(ctx, scope)
	snapshotsReadable := err == nil
	if err != nil {
		// An unreadable list must never feed the write path: replacing
		// the stored document with one rebuilt from nothing would
		// discard every recorded snapshot.
		s.logger.Warn().Str("scope", scope).Err(err).Msg("Snapshot read failed, write path skipped")
		result.SyncStatus = models.SyncStatusError
		result.Warnings = append(result.Warnings, models.ErrPersistenceFailed.Error())
	}

	result.Stats = s.engine.Compute(holdings, quotes, rows, snapshots, today)

	if write && snapshotsReadable && common.IsPrivileged(ctx) {
		snapshots = s.persistSnapshots(ctx, scope, holdings, rows, snapshots, result, today)
	}

	result.Series = s.reconciler.MergeSeries(holdings, rows, snapshots, models.WindowAll)

	if write {
		if _, err := s.insight.Get(ctx, scope, holdings, false); err != nil {
			result.Warnings = append(result.Warnings, models.ErrInsightGenerationFailed.Error())
		}
		s.cacheChart(ctx, scope, result.Series)
	}

	s.logger.Info().
		Str("scope", scope).
		Float64("total_value", result.Stats.TotalValue).
		Int("series_points", len(result.Series)).
		Str("sync_status", string(result.SyncStatus)).
		Dur("elapsed", s.now().Sub(start)).
		Msg("Refresh cycle complete")

	return result, nil
}

// persistSnapshots applies backfill and the write-path acceptance rules,
// then persists when anything changed. A failed write flips the sync
// status but keeps the locally merged series.
func (s *Service) persistSnapshots(ctx context.Context, scope string, holdings map[string]models.Holding, rows []models.HistoryRow, snapshots []models.ValueSnapshot, result *interfaces.RefreshResult, today string) []models.ValueSnapshot {
	seeded, backfilled := s.reconciler.Backfill(holdings, rows, snapshots)

	updated, accepted, err := s.reconciler.AcceptSnapshot(seeded, today, result.Stats.TotalValue)
	if err != nil {
		s.logger.Info().Str("scope", scope).Err(err).Msg("Snapshot write skipped")
		result.Warnings = append(result.Warnings, err.Error())
	}

	if !backfilled && !accepted {
		return updated
	}

	result.SyncStatus = models.SyncStatusSaving
	if err := s.storage.PortfolioStore().ReplaceSnapshots(ctx, scope, updated); err != nil {
		s.logger.Error().Str("scope", scope).Err(err).Msg("Snapshot write failed")
		result.SyncStatus = models.SyncStatusError
		return updated
	}
	result.SyncStatus = models.SyncStatusSynced

	return updated
}

// GetSeries returns the reconciled value series for the display window.
func (s *Service) GetSeries(ctx context.Context, scope string, window models.SeriesWindow) ([]models.SeriesPoint, error) {
	holdings, err := s.GetHoldings(ctx, scope)
	if err != nil {
		return nil, err
	}

	_, rows, err := s.market.Refresh(ctx, ledger.Symbols(holdings), ledger.CostBasisMap(holdings))
	if err != nil {
		s.logger.Warn().Str("scope", scope).Err(err).Msg("Series built without fresh history")
		rows = nil
	}

	snapshots, err := s.storage.PortfolioStore().GetSnapshots(ctx, scope)
	if err != nil {
		return nil, err
	}

	return s.reconciler.MergeSeries(holdings, rows, snapshots, window), nil
}

// ResetSnapshots clears the recorded value series for the scope.
func (s *Service) ResetSnapshots(ctx context.Context, scope string) error {
	if !common.IsPrivileged(ctx) {
		return models.ErrNotPrivileged
	}
	if err := s.storage.PortfolioStore().ReplaceSnapshots(ctx, scope, nil); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistenceFailed, err)
	}
	// The cached chart still shows the cleared series.
	if err := s.storage.FileStore().DeleteFile(ctx, "charts", scope); err != nil {
		s.logger.Warn().Str("scope", scope).Err(err).Msg("Chart cache delete failed")
	}
	s.logger.Info().Str("scope", scope).Msg("Snapshot series reset")
	return nil
}

// GetChart returns the series chart as a PNG. Full-window requests
// are served from the render cached at the last refresh when one
// exists; narrower windows are rendered on demand.
func (s *Service) GetChart(ctx context.Context, scope string, window models.SeriesWindow) ([]byte, error) {
	if window == models.WindowAll {
		if png, contentType, err := s.storage.FileStore().GetFile(ctx, "charts", scope); err == nil && contentType == "image/png" && len(png) > 0 {
			return png, nil
		}
	}

	series, err := s.GetSeries(ctx, scope, window)
	if err != nil {
		return nil, err
	}

	png, err := RenderSeriesChart(scope, series)
	if err != nil {
		return nil, err
	}

	// Windowed renders must not overwrite the full-window cache.
	if window == models.WindowAll {
		s.saveChart(ctx, scope, png)
	}
	return png, nil
}

// GetInsight returns the cached persona commentary, regenerating it
// when the privileged caller forces or the cache entry is stale.
func (s *Service) GetInsight(ctx context.Context, scope string, force bool) (*models.Insight, error) {
	holdings, err := s.GetHoldings(ctx, scope)
	if err != nil {
		return nil, err
	}
	return s.insight.Get(ctx, scope, holdings, force)
}

// cacheChart renders and stores the full-window chart as a refresh
// side-effect so dashboard loads don't pay the render cost.
func (s *Service) cacheChart(ctx context.Context, scope string, series []models.SeriesPoint) {
	png, err := RenderSeriesChart(scope, series)
	if err != nil {
		s.logger.Debug().Str("scope", scope).Err(err).Msg("Chart not rendered")
		return
	}
	s.saveChart(ctx, scope, png)
}

func (s *Service) saveChart(ctx context.Context, scope string, png []byte) {
	if err := s.storage.FileStore().SaveFile(ctx, "charts", scope, png, "image/png"); err != nil {
		s.logger.Warn().Str("scope", scope).Err(err).Msg("Chart cache write failed")
	}
}

// ListScopes returns all scopes, guaranteeing the default exists.
func (s *Service) ListScopes(ctx context.Context) ([]models.Scope, error) {
	if _, err := s.storage.PortfolioStore().EnsureScope(ctx, models.DefaultScope); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistenceFailed, err)
	}
	return s.storage.PortfolioStore().ListScopes(ctx)
}

// CreateScope creates a new named scope.
func (s *Service) CreateScope(ctx context.Context, name string) (*models.Scope, error) {
	if !common.IsPrivileged(ctx) {
		return nil, models.ErrNotPrivileged
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if !scopeNamePattern.MatchString(name) {
		return nil, fmt.Errorf("invalid scope name %q", name)
	}

	scope, err := s.storage.PortfolioStore().EnsureScope(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistenceFailed, err)
	}
	s.logger.Info().Str("scope", name).Msg("Scope created")
	return scope, nil
}

// DeleteScope removes a scope and everything under it. The default
// scope is protected.
func (s *Service) DeleteScope(ctx context.Context, name string) error {
	if !common.IsPrivileged(ctx) {
		return models.ErrNotPrivileged
	}

	scope, err := s.storage.PortfolioStore().GetScope(ctx, name)
	if err != nil {
		if errors.Is(err, models.ErrScopeNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", models.ErrPersistenceFailed, err)
	}
	if scope.IsProtected() {
		return models.ErrScopeProtected
	}

	if err := s.storage.PortfolioStore().DeleteScope(ctx, name); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistenceFailed, err)
	}
	if ok, err := s.storage.FileStore().HasFile(ctx, "charts", name); err == nil && ok {
		if err := s.storage.FileStore().DeleteFile(ctx, "charts", name); err != nil {
			s.logger.Warn().Str("scope", name).Err(err).Msg("Chart cache delete failed")
		}
	}
	s.logger.Info().Str("scope", name).Msg("Scope deleted")
	return nil
}

// Ensure Service implements PortfolioService
var _ interfaces.PortfolioService = (*Service)(nil)
