// Package interfaces defines service contracts for Portfolio Pro
package interfaces

import (
	"context"

	"github.com/big0725/portfolio-pro/internal/models"
)

// QuoteClient provides access to the finance-quote vendor through the
// relay fallback chain.
type QuoteClient interface {
	// GetQuote retrieves the live quote for one vendor-format symbol.
	GetQuote(ctx context.Context, symbol string) (*models.VendorQuote, error)

	// GetDailyHistory retrieves up to days of trailing daily bars for
	// one vendor-format symbol, oldest first.
	GetDailyHistory(ctx context.Context, symbol string, days int) ([]models.VendorBar, error)
}

// InsightClient provides access to the commentary-generation vendor.
type InsightClient interface {
	// GenerateContent generates free text from a prompt.
	GenerateContent(ctx context.Context, prompt string) (string, error)

	// GenerateWithSearch generates free text with the vendor's web
	// search tool enabled, for commentary grounded in current markets.
	GenerateWithSearch(ctx context.Context, prompt string) (string, error)
}
