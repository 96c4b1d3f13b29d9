// Package app wires configuration, storage, clients, and services into
// a running application instance.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/big0725/portfolio-pro/internal/clients/gemini"
	"github.com/big0725/portfolio-pro/internal/clients/yahoo"
	"github.com/big0725/portfolio-pro/internal/common"
	"github.com/big0725/portfolio-pro/internal/interfaces"
	"github.com/big0725/portfolio-pro/internal/services/insight"
	"github.com/big0725/portfolio-pro/internal/services/marketdata"
	"github.com/big0725/portfolio-pro/internal/services/portfolio"
	surrealdbstorage "github.com/big0725/portfolio-pro/internal/storage/surrealdb"
)

// App holds all initialized components.
type App struct {
	Config           *common.Config
	Logger           *common.Logger
	Storage          interfaces.StorageManager
	YahooClient      interfaces.QuoteClient
	GeminiClient     interfaces.InsightClient
	MarketService    interfaces.MarketDataService
	InsightService   interfaces.InsightService
	PortfolioService interfaces.PortfolioService
	StartupTime      time.Time

	schedulerCancel context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes storage, clients, and services. configPath may be
// empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	// Load version from .version file (fallback if ldflags not set)
	common.LoadVersionFromFile()

	binDir := getBinaryDir()

	// Load configuration - check provided path, FOLIO_CONFIG, then binary dir, then fallback
	if configPath == "" {
		configPath = os.Getenv("FOLIO_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "folio.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/folio.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	storageManager, err := surrealdbstorage.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	ctx := context.Background()

	// Resolve the Gemini key from system KV with config fallback
	geminiKey, err := common.ResolveAPIKey(ctx, storageManager.InternalStore(), "gemini_api_key", config.Clients.Gemini.APIKey)
	if err != nil {
		logger.Warn().Msg("Gemini API key not configured - insight generation will be unavailable")
	}

	yahooClient := yahoo.NewClient(
		yahoo.WithLogger(logger),
		yahoo.WithBaseURL(config.Clients.Yahoo.BaseURL),
		yahoo.WithRelays(config.Clients.Yahoo.Relays),
		yahoo.WithRateLimit(config.Clients.Yahoo.RateLimit),
		yahoo.WithAttemptTimeout(config.Clients.Yahoo.GetRelayTimeout()),
	)

	var geminiClient *gemini.Client
	if geminiKey != "" {
		geminiClient, err = gemini.NewClient(ctx, geminiKey,
			gemini.WithLogger(logger),
			gemini.WithModel(config.Clients.Gemini.Model),
		)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize Gemini client")
		}
	}

	marketService := marketdata.NewService(yahooClient, logger)

	// A typed-nil client must not leak into the interface field
	var insightClient interfaces.InsightClient
	if geminiClient != nil {
		insightClient = geminiClient
	}
	insightService := insight.NewService(storageManager.PortfolioStore(), insightClient, logger)

	portfolioService := portfolio.NewService(storageManager, marketService, insightService, logger)

	a := &App{
		Config:           config,
		Logger:           logger,
		Storage:          storageManager,
		YahooClient:      yahooClient,
		GeminiClient:     insightClient,
		MarketService:    marketService,
		InsightService:   insightService,
		PortfolioService: portfolioService,
		StartupTime:      startupStart,
	}

	if config.Scheduler.Enabled {
		schedCtx, cancel := context.WithCancel(context.Background())
		a.schedulerCancel = cancel
		go startRefreshScheduler(schedCtx, portfolioService, storageManager, config, logger, config.Scheduler.GetInterval())
	}

	logger.Info().
		Str("version", common.GetFullVersion()).
		Dur("startup", time.Since(startupStart)).
		Msg("Application initialized")

	return a, nil
}

// Close shuts down background work and releases storage connections.
func (a *App) Close() error {
	if a.schedulerCancel != nil {
		a.schedulerCancel()
	}
	if closer, ok := a.GeminiClient.(interface{ Close() error }); ok && closer != nil {
		closer.Close()
	}
	if a.Storage != nil {
		return a.Storage.Close()
	}
	return nil
}
