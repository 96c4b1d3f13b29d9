package valuation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/big0725/portfolio-pro/internal/models"
)

func holdings() map[string]models.Holding {
	return map[string]models.Holding{
		"AAPL": {Symbol: "AAPL", NetQuantity: 10, AverageCost: 150, TotalBuyQuantity: 10, TotalBuyCost: 1500},
		"BTC":  {Symbol: "BTC", NetQuantity: 0.5, AverageCost: 40000, TotalBuyQuantity: 0.5, TotalBuyCost: 20000},
	}
}

func quotes() *models.QuoteSnapshot {
	q := models.NewQuoteSnapshot(time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC))
	q.Current["AAPL"] = 200
	q.Current["BTC"] = 110000
	q.Reference["AAPL"] = 195
	q.Reference["BTC"] = 108000
	return q
}

func TestComputeTotalsAndMargin(t *testing.T) {
	stats := NewEngine().Compute(holdings(), quotes(), nil, nil, "2026-08-28")

	// 10*200 + 0.5*110000 = 57000; cost 1500 + 20000 = 21500
	assert.InDelta(t, 57000, stats.TotalValue, 1e-9)
	assert.InDelta(t, 21500, stats.TotalCost, 1e-9)
	assert.InDelta(t, 35500, stats.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 35500.0/21500*100, stats.MarginPct, 1e-9)
}

func TestComputeDistributionSortedDescending(t *testing.T) {
	stats := NewEngine().Compute(holdings(), quotes(), nil, nil, "2026-08-28")

	require.Len(t, stats.Distribution, 2)
	assert.Equal(t, "BTC", stats.Distribution[0].Symbol)
	assert.InDelta(t, 55000, stats.Distribution[0].Value, 1e-9)
	assert.InDelta(t, 55000.0/57000*100, stats.Distribution[0].Percent, 1e-9)
	assert.Equal(t, "AAPL", stats.Distribution[1].Symbol)
}

func TestComputeMissingQuoteFallsBackToHistoryClose(t *testing.T) {
	q := models.NewQuoteSnapshot(time.Now())
	q.Current["BTC"] = 110000
	rows := []models.HistoryRow{
		{Date: "2026-08-27", Closes: map[string]float64{"AAPL": 198}},
	}

	stats := NewEngine().Compute(holdings(), q, rows, nil, "2026-08-28")

	// AAPL priced at its last close, not its cost basis.
	assert.InDelta(t, 10*198+0.5*110000, stats.TotalValue, 1e-9)
}

func TestComputeMissingEverywhereFallsBackToAverageCost(t *testing.T) {
	stats := NewEngine().Compute(holdings(), models.NewQuoteSnapshot(time.Now()), nil, nil, "2026-08-28")

	assert.InDelta(t, stats.TotalCost, stats.TotalValue, 1e-9)
	assert.InDelta(t, 0, stats.UnrealizedPnL, 1e-9)
}

func TestComputeDailyChangeAgainstPriorSnapshot(t *testing.T) {
	history := []models.ValueSnapshot{
		{Date: "2026-08-26", Value: 54000},
		{Date: "2026-08-27", Value: 56000},
		{Date: "2026-08-28", Value: 56900}, // same-day entry must be skipped
	}

	stats := NewEngine().Compute(holdings(), quotes(), nil, history, "2026-08-28")

	assert.InDelta(t, 1000, stats.DailyChange, 1e-9)
	assert.InDelta(t, 1000.0/56000*100, stats.DailyChangePct, 1e-9)
}

func TestComputeDailyChangeFallsBackToReferencePrices(t *testing.T) {
	stats := NewEngine().Compute(holdings(), quotes(), nil, nil, "2026-08-28")

	// 10*195 + 0.5*108000 = 55950
	assert.InDelta(t, 57000-55950, stats.DailyChange, 1e-9)
}

func TestComputePeriodStatsFromHistory(t *testing.T) {
	rows := []models.HistoryRow{
		{Date: "2026-08-25", Closes: map[string]float64{"AAPL": 190, "BTC": 100000}},
		{Date: "2026-08-26", Closes: map[string]float64{"AAPL": 192, "BTC": 104000}},
		{Date: "2026-08-27", Closes: map[string]float64{"AAPL": 198, "BTC": 108000}},
	}

	stats := NewEngine().Compute(holdings(), quotes(), rows, nil, "2026-08-28")

	require.NotNil(t, stats.Weekly)
	// Only 3 rows: the 7-day lookback clamps to the earliest day.
	assert.InDelta(t, 10*190+0.5*100000, stats.Weekly.PastValue, 1e-9)
	assert.InDelta(t, 57000-51900, stats.Weekly.Change, 1e-9)

	require.NotNil(t, stats.Inception)
	assert.Equal(t, 2, stats.Inception.DaysAgo)
	assert.InDelta(t, 51900, stats.Inception.PastValue, 1e-9)
}

func TestComputePeriodStatsMissingSymbolUsesAverageCost(t *testing.T) {
	rows := []models.HistoryRow{
		{Date: "2026-08-27", Closes: map[string]float64{"AAPL": 198}},
	}

	stats := NewEngine().Compute(holdings(), quotes(), rows, nil, "2026-08-28")

	require.NotNil(t, stats.Weekly)
	// BTC absent from the row: valued at its cost basis, not its live price.
	assert.InDelta(t, 10*198+0.5*40000, stats.Weekly.PastValue, 1e-9)
}

func TestComputeNoHistoryNoPeriodStats(t *testing.T) {
	stats := NewEngine().Compute(holdings(), quotes(), nil, nil, "2026-08-28")

	assert.Nil(t, stats.Weekly)
	assert.Nil(t, stats.Monthly)
	assert.Nil(t, stats.Inception)
}

func TestComputeEmptyHoldings(t *testing.T) {
	stats := NewEngine().Compute(nil, models.NewQuoteSnapshot(time.Now()), nil, nil, "2026-08-28")

	assert.Zero(t, stats.TotalValue)
	assert.Zero(t, stats.MarginPct)
	assert.Empty(t, stats.Distribution)
	assert.Zero(t, stats.DailyChange)
}
