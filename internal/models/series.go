package models

// ValueSnapshot is one authoritative recorded total-portfolio-value
// observation for a calendar date. At most one per trading day.
type ValueSnapshot struct {
	Date  string  `json:"date"` // canonical YYYY-MM-DD
	Value float64 `json:"value"`
}

// SeriesPoint is one chart-ready point of the merged value series.
type SeriesPoint struct {
	FullDate  string  `json:"full_date"`  // YYYY-MM-DD
	ShortDate string  `json:"short_date"` // "Jan 2" axis label
	Value     float64 `json:"value"`      // rounded to nearest currency unit
}

// SeriesWindow selects how much of the merged series a caller wants.
type SeriesWindow int

const (
	WindowAll   SeriesWindow = 0
	Window7D    SeriesWindow = 7
	Window30D   SeriesWindow = 30
	Window1Y    SeriesWindow = 365
)

// DistributionEntry is one symbol's share of the portfolio value.
type DistributionEntry struct {
	Symbol  string  `json:"symbol"`
	Value   float64 `json:"value"`
	Percent float64 `json:"percent"` // of total value, 0 when total is 0
}

// PeriodStats is the period-over-period return for one lookback window.
type PeriodStats struct {
	DaysAgo   int     `json:"days_ago"`
	PastValue float64 `json:"past_value"`
	Change    float64 `json:"change"`
	Percent   float64 `json:"percent"`
}

// PortfolioStats is the full valuation output for one refresh cycle.
type PortfolioStats struct {
	TotalValue    float64             `json:"total_value"`
	TotalCost     float64             `json:"total_cost"`
	UnrealizedPnL float64             `json:"unrealized_pnl"`
	MarginPct     float64             `json:"margin_pct"`
	Distribution  []DistributionEntry `json:"distribution"`

	DailyChange    float64 `json:"daily_change"`
	DailyChangePct float64 `json:"daily_change_pct"`

	// nil when no history exists for the window
	Weekly    *PeriodStats `json:"weekly,omitempty"`
	Monthly   *PeriodStats `json:"monthly,omitempty"`
	Inception *PeriodStats `json:"inception,omitempty"`
}

// SyncStatus reflects the outcome of the most recent persistence attempt.
// Local in-memory state is mutated optimistically; a failed write leaves
// it in place and only flips this status.
type SyncStatus string

const (
	SyncStatusSaving SyncStatus = "saving"
	SyncStatusSynced SyncStatus = "synced"
	SyncStatusError  SyncStatus = "error"
)
