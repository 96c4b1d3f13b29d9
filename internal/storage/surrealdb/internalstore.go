package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/big0725/portfolio-pro/internal/common"
	"github.com/big0725/portfolio-pro/internal/interfaces"
)

// InternalStore holds system-level key/value settings (default scope,
// vendor API keys).
type InternalStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewInternalStore creates a new InternalStore.
func NewInternalStore(db *surrealdb.DB, logger *common.Logger) *InternalStore {
	return &InternalStore{db: db, logger: logger}
}

type systemKV struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetSystemKV returns the value for key, or "" when unset.
func (s *InternalStore) GetSystemKV(ctx context.Context, key string) (string, error) {
	kv, err := surrealdb.Select[systemKV](ctx, s.db, surrealmodels.NewRecordID("system_kv", key))
	if err != nil {
		if isNotFoundError(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to select system KV: %w", err)
	}
	if kv == nil {
		return "", nil
	}
	return kv.Value, nil
}

// SetSystemKV stores a system setting.
func (s *InternalStore) SetSystemKV(ctx context.Context, key, value string) error {
	kv := systemKV{Key: key, Value: value, UpdatedAt: time.Now()}
	sql := "UPSERT $rid CONTENT $kv"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("system_kv", key),
		"kv":  kv,
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if _, err := surrealdb.Query[[]systemKV](ctx, s.db, sql, vars); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("failed to set system KV after retries: %w", lastErr)
}

// Close is a no-op; the manager owns the connection.
func (s *InternalStore) Close() error { return nil }

// Compile-time check
var _ interfaces.InternalStore = (*InternalStore)(nil)
