// Package marketdata normalizes vendor quotes and history into the
// canonical per-refresh snapshot.
package marketdata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/big0725/portfolio-pro/internal/common"
	"github.com/big0725/portfolio-pro/internal/interfaces"
	"github.com/big0725/portfolio-pro/internal/models"
)

// HistoryDays is the trailing window requested from the vendor.
const HistoryDays = 365

// cryptoSymbols is the fixed allow-list of tickers quoted under the
// vendor's crypto convention (SYMBOL-USD).
var cryptoSymbols = map[string]bool{
	"BTC": true, "ETH": true, "SOL": true, "XRP": true, "ADA": true,
	"DOGE": true, "DOT": true, "AVAX": true, "LINK": true, "MATIC": true,
	"LTC": true, "BCH": true, "UNI": true, "ATOM": true, "XLM": true,
}

const cryptoSuffix = "-USD"

// ToVendorSymbol canonicalizes an internal symbol for vendor queries:
// uppercase, with the crypto suffix applied for allow-listed tickers.
func ToVendorSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if cryptoSymbols[symbol] {
		return symbol + cryptoSuffix
	}
	return symbol
}

// FromVendorSymbol strips the crypto convention from a vendor symbol.
func FromVendorSymbol(symbol string) string {
	return strings.TrimSuffix(strings.ToUpper(symbol), cryptoSuffix)
}

// Service implements MarketDataService
type Service struct {
	client interfaces.QuoteClient
	logger *common.Logger
	now    func() time.Time // injectable clock for testing
}

// NewService creates a new market data service
func NewService(client interfaces.QuoteClient, logger *common.Logger) *Service {
	return &Service{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Refresh fetches current and reference prices plus trailing daily
// history for the given internal symbols. Per-symbol requests run as an
// unordered concurrent batch; a symbol whose requests fail simply
// contributes no data. Only a total current-price failure is an error.
func (s *Service) Refresh(ctx context.Context, symbols []string, costBasis map[string]float64) (*models.QuoteSnapshot, []models.HistoryRow, error) {
	start := s.now()

	canonical := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		canonical = append(canonical, sym)
	}

	if len(canonical) == 0 {
		return models.NewQuoteSnapshot(s.now()), nil, nil
	}

	quotes, quoteErrs := s.fetchQuotes(ctx, canonical)
	rows := s.fetchHistory(ctx, canonical)

	// Hard failure only when no symbol's current-price request succeeded.
	if len(quotes) == 0 && quoteErrs == len(canonical) {
		return nil, nil, fmt.Errorf("%w: all %d symbols failed", models.ErrMarketDataUnavailable, len(canonical))
	}

	snapshot := s.buildSnapshot(canonical, quotes, rows, costBasis)

	s.logger.Info().
		Int("symbols", len(canonical)).
		Int("quoted", len(quotes)).
		Int("history_days", len(rows)).
		Dur("elapsed", s.now().Sub(start)).
		Msg("Market data refresh complete")

	return snapshot, rows, nil
}

// fetchQuotes runs the current-price batch. Returns resolved quotes by
// internal symbol and the count of failed requests.
func (s *Service) fetchQuotes(ctx context.Context, symbols []string) (map[string]*models.VendorQuote, int) {
	var mu sync.Mutex
	var wg sync.WaitGroup
	quotes := make(map[string]*models.VendorQuote, len(symbols))
	failures := 0

	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			quote, err := s.client.GetQuote(ctx, ToVendorSymbol(sym))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				s.logger.Debug().Str("symbol", sym).Err(err).Msg("Quote fetch failed")
				return
			}
			quotes[sym] = quote
		}(sym)
	}
	wg.Wait()

	return quotes, failures
}

// fetchHistory runs the per-symbol history batch and merges bars into
// one ascending row per local calendar day. Failed symbols contribute
// nothing; the batch itself never fails.
func (s *Service) fetchHistory(ctx context.Context, symbols []string) []models.HistoryRow {
	var mu sync.Mutex
	var wg sync.WaitGroup
	byDate := make(map[string]*models.HistoryRow)

	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			bars, err := s.client.GetDailyHistory(ctx, ToVendorSymbol(sym), HistoryDays)
			if err != nil {
				s.logger.Debug().Str("symbol", sym).Err(err).Msg("History fetch failed")
				return
			}

			mu.Lock()
			defer mu.Unlock()
			for _, bar := range bars {
				// Local calendar day, not UTC — avoids the off-by-one
				// when a bar is stamped near midnight.
				date := common.LocalDay(bar.Timestamp)
				row := byDate[date]
				if row == nil {
					row = &models.HistoryRow{
						Date:   date,
						Closes: make(map[string]float64),
					}
					byDate[date] = row
				}
				row.Closes[sym] = bar.Close
				if bar.Open > 0 {
					if row.Opens == nil {
						row.Opens = make(map[string]float64)
					}
					row.Opens[sym] = bar.Open
				}
			}
		}(sym)
	}
	wg.Wait()

	rows := make([]models.HistoryRow, 0, len(byDate))
	for _, row := range byDate {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })

	return rows
}

// buildSnapshot applies the documented price precedence per symbol.
func (s *Service) buildSnapshot(symbols []string, quotes map[string]*models.VendorQuote, rows []models.HistoryRow, costBasis map[string]float64) *models.QuoteSnapshot {
	snapshot := models.NewQuoteSnapshot(s.now())

	for _, sym := range symbols {
		quote := quotes[sym]

		current := resolveCurrent(quote, rows, sym, costBasis[sym])
		if current > 0 {
			snapshot.Current[sym] = current
		}

		reference := resolveReference(quote, rows, sym, current)
		if reference > 0 {
			snapshot.Reference[sym] = reference
		}

		if quote != nil {
			snapshot.States[sym] = quote.State
		}
	}

	return snapshot
}

// resolveCurrent: live/real-time field, then post/pre-market, then the
// most recent history close, then the caller's cost basis.
func resolveCurrent(quote *models.VendorQuote, rows []models.HistoryRow, symbol string, costBasis float64) float64 {
	if quote != nil {
		if quote.RegularPrice > 0 {
			return quote.RegularPrice
		}
		if quote.PostMarketPrice > 0 {
			return quote.PostMarketPrice
		}
		if quote.PreMarketPrice > 0 {
			return quote.PreMarketPrice
		}
	}
	if close, ok := models.LastClose(rows, symbol); ok {
		return close
	}
	return costBasis
}

// resolveReference: session open, then previous close, then the latest
// dated open scanned backward, then the latest close, then current.
func resolveReference(quote *models.VendorQuote, rows []models.HistoryRow, symbol string, current float64) float64 {
	if quote != nil {
		if quote.SessionOpen > 0 {
			return quote.SessionOpen
		}
		if quote.PreviousClose > 0 {
			return quote.PreviousClose
		}
	}
	if open, ok := models.LastOpen(rows, symbol); ok {
		return open
	}
	if close, ok := models.LastClose(rows, symbol); ok {
		return close
	}
	return current
}

// Ensure Service implements MarketDataService
var _ interfaces.MarketDataService = (*Service)(nil)
