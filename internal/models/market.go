package models

import "time"

// MarketState tags the trading session a quote was observed in.
type MarketState string

const (
	MarketStateOpen     MarketState = "open"
	MarketStateClosed   MarketState = "closed"
	MarketStateExtended MarketState = "extended"
	MarketStateUnknown  MarketState = ""
)

// QuoteSnapshot is the ephemeral per-refresh view of the market: current
// and reference (prior/opening) prices per symbol. Not persisted;
// rebuilt in full on every refresh cycle.
type QuoteSnapshot struct {
	Current   map[string]float64     `json:"current"`
	Reference map[string]float64     `json:"reference"`
	States    map[string]MarketState `json:"states"`
	FetchedAt time.Time              `json:"fetched_at"`
}

// NewQuoteSnapshot returns an empty snapshot with allocated maps.
func NewQuoteSnapshot(now time.Time) *QuoteSnapshot {
	return &QuoteSnapshot{
		Current:   make(map[string]float64),
		Reference: make(map[string]float64),
		States:    make(map[string]MarketState),
		FetchedAt: now,
	}
}

// Price returns the live price for symbol, or (0, false) when the
// refresh produced nothing for it.
func (q *QuoteSnapshot) Price(symbol string) (float64, bool) {
	if q == nil {
		return 0, false
	}
	p, ok := q.Current[symbol]
	return p, ok
}

// HistoryRow holds one calendar day's per-symbol prices. Closes always
// carries the day's closing price; Opens is present only when the
// vendor supplied a session open for that day.
type HistoryRow struct {
	Date   string             `json:"date"` // canonical YYYY-MM-DD, local calendar day
	Closes map[string]float64 `json:"closes"`
	Opens  map[string]float64 `json:"opens,omitempty"`
}

// Close returns the closing price for symbol on this row, or (0, false).
func (r *HistoryRow) Close(symbol string) (float64, bool) {
	if r == nil || r.Closes == nil {
		return 0, false
	}
	p, ok := r.Closes[symbol]
	return p, ok
}

// Open returns the opening price for symbol on this row, or (0, false).
func (r *HistoryRow) Open(symbol string) (float64, bool) {
	if r == nil || r.Opens == nil {
		return 0, false
	}
	p, ok := r.Opens[symbol]
	return p, ok
}

// LastClose scans rows backward for the most recent close of symbol.
func LastClose(rows []HistoryRow, symbol string) (float64, bool) {
	for i := len(rows) - 1; i >= 0; i-- {
		if p, ok := rows[i].Close(symbol); ok && p > 0 {
			return p, true
		}
	}
	return 0, false
}

// LastOpen scans rows backward for the most recent session open of symbol.
func LastOpen(rows []HistoryRow, symbol string) (float64, bool) {
	for i := len(rows) - 1; i >= 0; i-- {
		if p, ok := rows[i].Open(symbol); ok && p > 0 {
			return p, true
		}
	}
	return 0, false
}
