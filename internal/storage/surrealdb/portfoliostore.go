package surrealdb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/big0725/portfolio-pro/internal/common"
	"github.com/big0725/portfolio-pro/internal/interfaces"
	"github.com/big0725/portfolio-pro/internal/models"
)

// PortfolioStore persists per-scope portfolio documents: the transaction
// log, the value-snapshot list, and the cached insight.
type PortfolioStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewPortfolioStore creates a new PortfolioStore.
func NewPortfolioStore(db *surrealdb.DB, logger *common.Logger) *PortfolioStore {
	return &PortfolioStore{db: db, logger: logger}
}

// transactionRecord is the transactions table shape: the transaction
// fields inline plus the owning scope.
type transactionRecord struct {
	models.Transaction
	Scope string `json:"scope"`
}

// seriesRecord holds a scope's whole snapshot list as one document.
// ReplaceSnapshots overwrites it wholesale; the read-modify-write
// discipline lives in the reconciler, not here.
type seriesRecord struct {
	Scope     string                 `json:"scope"`
	Snapshots []models.ValueSnapshot `json:"snapshots"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// insightRecord is the insight table shape, one entry per scope.
type insightRecord struct {
	Scope     string         `json:"scope"`
	Insight   models.Insight `json:"insight"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func txRecordID(scope, id string) string {
	return scope + "_" + id
}

// EnsureScope returns the named scope, creating it if absent.
func (s *PortfolioStore) EnsureScope(ctx context.Context, name string) (*models.Scope, error) {
	existing, err := surrealdb.Select[models.Scope](ctx, s.db, surrealmodels.NewRecordID("scope", name))
	if err != nil && !isNotFoundError(err) {
		return nil, fmt.Errorf("failed to select scope: %w", err)
	}
	if existing != nil && existing.Name != "" {
		return existing, nil
	}

	scope := &models.Scope{Name: name, CreatedAt: time.Now()}
	sql := "UPSERT $rid CONTENT $scope"
	vars := map[string]any{
		"rid":   surrealmodels.NewRecordID("scope", name),
		"scope": scope,
	}
	if _, err := surrealdb.Query[[]models.Scope](ctx, s.db, sql, vars); err != nil {
		return nil, fmt.Errorf("failed to create scope %s: %w", name, err)
	}
	return scope, nil
}

// GetScope fetches one scope by name.
func (s *PortfolioStore) GetScope(ctx context.Context, name string) (*models.Scope, error) {
	scope, err := surrealdb.Select[models.Scope](ctx, s.db, surrealmodels.NewRecordID("scope", name))
	if err != nil {
		if isNotFoundError(err) {
			return nil, models.ErrScopeNotFound
		}
		return nil, fmt.Errorf("failed to select scope: %w", err)
	}
	if scope == nil || scope.Name == "" {
		return nil, models.ErrScopeNotFound
	}
	return scope, nil
}

// ListScopes returns all scopes sorted by name.
func (s *PortfolioStore) ListScopes(ctx context.Context) ([]models.Scope, error) {
	list, err := surrealdb.Select[[]models.Scope](ctx, s.db, surrealmodels.Table("scope"))
	if err != nil {
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}

	var scopes []models.Scope
	if list != nil {
		for _, scope := range *list {
			if scope.Name != "" {
				scopes = append(scopes, scope)
			}
		}
	}
	sort.Slice(scopes, func(i, j int) bool { return scopes[i].Name < scopes[j].Name })
	return scopes, nil
}

// DeleteScope removes the scope and everything recorded under it.
func (s *PortfolioStore) DeleteScope(ctx context.Context, name string) error {
	sql := "DELETE transactions WHERE scope = $scope"
	vars := map[string]any{"scope": name}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to delete scope transactions: %w", err)
	}

	if _, err := surrealdb.Delete[seriesRecord](ctx, s.db, surrealmodels.NewRecordID("value_series", name)); err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete scope snapshots: %w", err)
	}
	if _, err := surrealdb.Delete[insightRecord](ctx, s.db, surrealmodels.NewRecordID("insight", name)); err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete scope insight: %w", err)
	}
	if _, err := surrealdb.Delete[models.Scope](ctx, s.db, surrealmodels.NewRecordID("scope", name)); err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete scope: %w", err)
	}
	return nil
}

// AppendTransaction stores one transaction under the scope.
func (s *PortfolioStore) AppendTransaction(ctx context.Context, scope string, tx *models.Transaction) error {
	record := transactionRecord{Transaction: *tx, Scope: scope}
	sql := "UPSERT $rid CONTENT $record"
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID("transactions", txRecordID(scope, tx.ID)),
		"record": record,
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if _, err := surrealdb.Query[[]transactionRecord](ctx, s.db, sql, vars); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("failed to append transaction after retries: %w", lastErr)
}

// DeleteTransaction removes one transaction by id.
func (s *PortfolioStore) DeleteTransaction(ctx context.Context, scope, id string) error {
	rid := surrealmodels.NewRecordID("transactions", txRecordID(scope, id))
	if _, err := surrealdb.Delete[transactionRecord](ctx, s.db, rid); err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return nil
}

// ListTransactions returns the scope's log in chronological order.
func (s *PortfolioStore) ListTransactions(ctx context.Context, scope string) ([]models.Transaction, error) {
	sql := "SELECT * FROM transactions WHERE scope = $scope ORDER BY recorded_at ASC"
	vars := map[string]any{"scope": scope}

	results, err := surrealdb.Query[[]transactionRecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	var txs []models.Transaction
	if results != nil && len(*results) > 0 {
		for _, record := range (*results)[0].Result {
			txs = append(txs, record.Transaction)
		}
	}
	return txs, nil
}

// GetSnapshots returns the scope's value-snapshot list, ascending by date.
func (s *PortfolioStore) GetSnapshots(ctx context.Context, scope string) ([]models.ValueSnapshot, error) {
	record, err := surrealdb.Select[seriesRecord](ctx, s.db, surrealmodels.NewRecordID("value_series", scope))
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to select snapshots: %w", err)
	}
	if record == nil {
		return nil, nil
	}
	return record.Snapshots, nil
}

// ReplaceSnapshots overwrites the scope's whole snapshot list.
func (s *PortfolioStore) ReplaceSnapshots(ctx context.Context, scope string, snaps []models.ValueSnapshot) error {
	record := seriesRecord{Scope: scope, Snapshots: snaps, UpdatedAt: time.Now()}
	sql := "UPSERT $rid CONTENT $record"
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID("value_series", scope),
		"record": record,
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if _, err := surrealdb.Query[[]seriesRecord](ctx, s.db, sql, vars); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("failed to replace snapshots after retries: %w", lastErr)
}

// GetInsight returns the scope's cached insight, or nil when absent.
func (s *PortfolioStore) GetInsight(ctx context.Context, scope string) (*models.Insight, error) {
	record, err := surrealdb.Select[insightRecord](ctx, s.db, surrealmodels.NewRecordID("insight", scope))
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to select insight: %w", err)
	}
	if record == nil || record.Insight.Date == "" {
		return nil, nil
	}
	insight := record.Insight
	return &insight, nil
}

// SaveInsight replaces the scope's cached insight.
func (s *PortfolioStore) SaveInsight(ctx context.Context, scope string, insight *models.Insight) error {
	record := insightRecord{Scope: scope, Insight: *insight, UpdatedAt: time.Now()}
	sql := "UPSERT $rid CONTENT $record"
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID("insight", scope),
		"record": record,
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if _, err := surrealdb.Query[[]insightRecord](ctx, s.db, sql, vars); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("failed to save insight after retries: %w", lastErr)
}

// Close is a no-op; the manager owns the connection.
func (s *PortfolioStore) Close() error { return nil }

// Compile-time check
var _ interfaces.PortfolioStore = (*PortfolioStore)(nil)
