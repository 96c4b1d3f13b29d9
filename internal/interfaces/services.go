package interfaces

import (
	"context"
	"time"

	"github.com/big0725/portfolio-pro/internal/models"
)

// MarketDataService normalizes vendor quotes and history into the
// canonical per-refresh snapshot.
type MarketDataService interface {
	// Refresh fetches current and reference prices plus up to one
	// trailing year of daily history for the given internal symbols.
	// costBasis supplies the last-resort price per symbol. Partial
	// vendor failures degrade silently; only a total current-price
	// failure returns models.ErrMarketDataUnavailable.
	Refresh(ctx context.Context, symbols []string, costBasis map[string]float64) (*models.QuoteSnapshot, []models.HistoryRow, error)
}

// InsightService is the date-keyed cache gate in front of the
// commentary vendor.
type InsightService interface {
	// Get returns the cached persona commentary for the scope, or
	// triggers at most one regeneration per (scope, day) when called
	// under the privileged identity. force bypasses the cache hit check
	// but never the privilege check.
	Get(ctx context.Context, scope string, holdings map[string]models.Holding, force bool) (*models.Insight, error)
}

// RefreshResult is the outcome of one orchestrated refresh cycle.
type RefreshResult struct {
	Stats      *models.PortfolioStats `json:"stats"`
	Series     []models.SeriesPoint   `json:"series"`
	SyncStatus models.SyncStatus      `json:"sync_status"`
	Warnings   []string               `json:"warnings,omitempty"`
}

// PortfolioService is the orchestrator invoked on defined triggers:
// transaction mutation, manual refresh, or scheduler tick.
type PortfolioService interface {
	// Transactions
	AddTransaction(ctx context.Context, scope string, tx *models.Transaction) (*models.Transaction, error)
	DeleteTransaction(ctx context.Context, scope, id string) error
	ListTransactions(ctx context.Context, scope string) ([]models.Transaction, error)

	// Holdings and valuation
	GetHoldings(ctx context.Context, scope string) (map[string]models.Holding, error)
	Refresh(ctx context.Context, scope string) (*RefreshResult, error)
	GetOverview(ctx context.Context, scope string) (*RefreshResult, error)

	// Reconciled value series
	GetSeries(ctx context.Context, scope string, window models.SeriesWindow) ([]models.SeriesPoint, error)
	ResetSnapshots(ctx context.Context, scope string) error

	// Chart export
	GetChart(ctx context.Context, scope string, window models.SeriesWindow) ([]byte, error)

	// Persona commentary
	GetInsight(ctx context.Context, scope string, force bool) (*models.Insight, error)

	// Scopes
	ListScopes(ctx context.Context) ([]models.Scope, error)
	CreateScope(ctx context.Context, name string) (*models.Scope, error)
	DeleteScope(ctx context.Context, name string) error
}

// Clock is an injectable time source; production uses time.Now.
type Clock func() time.Time
