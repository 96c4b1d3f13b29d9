package interfaces

import (
	"context"

	"github.com/big0725/portfolio-pro/internal/models"
)

// StorageManager coordinates all storage backends
type StorageManager interface {
	PortfolioStore() PortfolioStore
	InternalStore() InternalStore
	FileStore() FileStore

	// Lifecycle
	Close() error
}

// PortfolioStore persists per-scope portfolio documents: the
// transaction log, the value-snapshot list, and the cached insight.
type PortfolioStore interface {
	// Scopes
	EnsureScope(ctx context.Context, name string) (*models.Scope, error)
	GetScope(ctx context.Context, name string) (*models.Scope, error)
	ListScopes(ctx context.Context) ([]models.Scope, error)
	DeleteScope(ctx context.Context, name string) error

	// Transaction log (append and delete only; entries are immutable)
	AppendTransaction(ctx context.Context, scope string, tx *models.Transaction) error
	DeleteTransaction(ctx context.Context, scope, id string) error
	ListTransactions(ctx context.Context, scope string) ([]models.Transaction, error)

	// Value snapshots. ReplaceSnapshots overwrites the whole list —
	// the write-path acceptance rules run before this is called.
	GetSnapshots(ctx context.Context, scope string) ([]models.ValueSnapshot, error)
	ReplaceSnapshots(ctx context.Context, scope string, snaps []models.ValueSnapshot) error

	// Insight cache, one entry per scope
	GetInsight(ctx context.Context, scope string) (*models.Insight, error)
	SaveInsight(ctx context.Context, scope string, insight *models.Insight) error

	Close() error
}

// InternalStore manages system-level key-value configuration.
type InternalStore interface {
	GetSystemKV(ctx context.Context, key string) (string, error)
	SetSystemKV(ctx context.Context, key, value string) error

	Close() error
}

// FileStore provides binary file storage in the database.
type FileStore interface {
	SaveFile(ctx context.Context, category, key string, data []byte, contentType string) error
	GetFile(ctx context.Context, category, key string) ([]byte, string, error) // data, contentType, error
	DeleteFile(ctx context.Context, category, key string) error
	HasFile(ctx context.Context, category, key string) (bool, error)
}
