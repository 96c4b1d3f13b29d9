// Package valuation computes the point-in-time portfolio statistics from
// the derived holdings, the current quote snapshot, and the daily price
// history.
package valuation

import (
	"sort"

	"github.com/big0725/portfolio-pro/internal/models"
)

// Engine derives PortfolioStats. Stateless; safe for concurrent use.
type Engine struct{}

// NewEngine creates a valuation engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Compute values the holdings against the quote snapshot and fills every
// period statistic the price history supports. rows must be ascending by
// date; snapshots are the persisted per-day totals, ascending; today is
// the canonical local calendar day of the computation.
func (e *Engine) Compute(holdings map[string]models.Holding, quotes *models.QuoteSnapshot, rows []models.HistoryRow, snapshots []models.ValueSnapshot, today string) *models.PortfolioStats {
	stats := &models.PortfolioStats{}

	for _, holding := range holdings {
		value := holding.NetQuantity * e.priceFor(quotes, rows, holding)
		stats.TotalValue += value
		stats.TotalCost += holding.CostBasis()

		stats.Distribution = append(stats.Distribution, models.DistributionEntry{
			Symbol: holding.Symbol,
			Value:  value,
		})
	}

	stats.UnrealizedPnL = stats.TotalValue - stats.TotalCost
	if stats.TotalCost > 0 {
		stats.MarginPct = stats.UnrealizedPnL / stats.TotalCost * 100
	}

	sort.Slice(stats.Distribution, func(i, j int) bool {
		if stats.Distribution[i].Value != stats.Distribution[j].Value {
			return stats.Distribution[i].Value > stats.Distribution[j].Value
		}
		return stats.Distribution[i].Symbol < stats.Distribution[j].Symbol
	})
	if stats.TotalValue > 0 {
		for i := range stats.Distribution {
			stats.Distribution[i].Percent = stats.Distribution[i].Value / stats.TotalValue * 100
		}
	}

	stats.DailyChange, stats.DailyChangePct = e.dailyChange(stats.TotalValue, holdings, quotes, snapshots, today)

	stats.Weekly = periodStats(stats.TotalValue, holdings, rows, 7)
	stats.Monthly = periodStats(stats.TotalValue, holdings, rows, 30)
	if len(rows) > 0 {
		stats.Inception = periodStats(stats.TotalValue, holdings, rows, len(rows)-1)
	}

	return stats
}

// priceFor follows the adapter's precedence for a symbol the live
// snapshot missed: most recent history close, then the holding's own
// average cost. Never another symbol's price.
func (e *Engine) priceFor(quotes *models.QuoteSnapshot, rows []models.HistoryRow, holding models.Holding) float64 {
	if price, ok := quotes.Price(holding.Symbol); ok && price > 0 {
		return price
	}
	if close, ok := models.LastClose(rows, holding.Symbol); ok {
		return close
	}
	return holding.AverageCost
}

// dailyChange compares the current total against the most recent
// recorded snapshot strictly before today. With no prior snapshot it
// falls back to revaluing the holdings at reference prices, so a brand
// new portfolio still shows an intraday move.
func (e *Engine) dailyChange(total float64, holdings map[string]models.Holding, quotes *models.QuoteSnapshot, snapshots []models.ValueSnapshot, today string) (float64, float64) {
	var baseline float64
	found := false
	for i := len(snapshots) - 1; i >= 0; i-- {
		if snapshots[i].Date < today {
			baseline = snapshots[i].Value
			found = true
			break
		}
	}

	if !found {
		for _, holding := range holdings {
			ref, ok := quotes.Reference[holding.Symbol]
			if !ok || ref <= 0 {
				ref = holding.AverageCost
			}
			baseline += holding.NetQuantity * ref
		}
	}

	if baseline <= 0 {
		return 0, 0
	}
	change := total - baseline
	return change, change / baseline * 100
}

// periodStats revalues today's holdings at the prices of the history row
// daysAgo entries back, clamped to the earliest available day. Symbols
// missing from that row fall back to their average cost, never to the
// current live price.
func periodStats(total float64, holdings map[string]models.Holding, rows []models.HistoryRow, daysAgo int) *models.PeriodStats {
	if len(rows) == 0 {
		return nil
	}

	idx := len(rows) - 1 - daysAgo
	if idx < 0 {
		idx = 0
	}
	row := rows[idx]

	var past float64
	for _, holding := range holdings {
		price, ok := row.Close(holding.Symbol)
		if !ok || price <= 0 {
			price = holding.AverageCost
		}
		past += holding.NetQuantity * price
	}

	stats := &models.PeriodStats{
		DaysAgo:   daysAgo,
		PastValue: past,
		Change:    total - past,
	}
	if past > 0 {
		stats.Percent = stats.Change / past * 100
	}
	return stats
}
