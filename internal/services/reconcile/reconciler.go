// Package reconcile merges the reconstructed historical valuation series
// with the recorded daily snapshots into one authoritative time series,
// and guards the snapshot write path against corrupted captures.
package reconcile

import (
	"fmt"
	"math"
	"sort"

	"github.com/big0725/portfolio-pro/internal/common"
	"github.com/big0725/portfolio-pro/internal/models"
)

const (
	// corruptionRatio rejects a recorded snapshot that undershoots the
	// reconstructed value for the same date by more than this factor.
	corruptionRatio = 0.7

	// catastrophicDropRatio refuses to persist a new total more than
	// 50% below the last recorded value. Treated as a data-acquisition
	// failure, not a real crash.
	catastrophicDropRatio = 0.5

	// backfillThreshold is the snapshot count below which the series is
	// considered too thin and gets seeded from the reconstruction.
	backfillThreshold = 10

	// minPlausibleValue filters sentinel near-zero totals out of seeded
	// snapshots.
	minPlausibleValue = 100.0
)

// Reconciler produces the chartable series and applies the snapshot
// acceptance rules.
type Reconciler struct {
	logger *common.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(logger *common.Logger) *Reconciler {
	return &Reconciler{logger: logger}
}

// Reconstruct walks the history rows in ascending date order and values
// the current holdings day by day, carrying each symbol's last-seen
// price forward across gaps and falling back to average cost for symbols
// not yet seen. Weekends and pure carry-forward days are dropped: no
// symbol traded, so the day is a holiday, not an observation.
func (r *Reconciler) Reconstruct(holdings map[string]models.Holding, rows []models.HistoryRow) []models.ValueSnapshot {
	if len(holdings) == 0 {
		return nil
	}

	lastKnown := make(map[string]float64, len(holdings))
	var series []models.ValueSnapshot

	for _, row := range rows {
		fresh := false
		for symbol := range holdings {
			if price, ok := row.Close(symbol); ok && price > 0 {
				lastKnown[symbol] = price
				fresh = true
			}
		}

		if !fresh || common.IsWeekend(row.Date) {
			continue
		}

		var total float64
		for symbol, holding := range holdings {
			price, ok := lastKnown[symbol]
			if !ok {
				price = holding.AverageCost
			}
			total += holding.NetQuantity * price
		}
		if total <= 0 {
			continue
		}

		series = append(series, models.ValueSnapshot{Date: row.Date, Value: total})
	}

	return series
}

// MergeSeries overlays the recorded snapshots onto the reconstructed
// series and returns the chart-ready window. Recorded values win over
// reconstructed ones for the same date unless they look corrupted
// (below corruptionRatio of the reconstruction, a partial capture).
func (r *Reconciler) MergeSeries(holdings map[string]models.Holding, rows []models.HistoryRow, snapshots []models.ValueSnapshot, window models.SeriesWindow) []models.SeriesPoint {
	merged := make(map[string]float64)
	for _, entry := range r.Reconstruct(holdings, rows) {
		merged[entry.Date] = entry.Value
	}

	for _, snap := range snapshots {
		date := common.NormalizeDate(snap.Date)
		if date == "" || common.IsWeekend(date) {
			continue
		}
		if reconstructed, ok := merged[date]; ok && snap.Value < reconstructed*corruptionRatio {
			r.logger.Warn().
				Str("date", date).
				Float64("recorded", snap.Value).
				Float64("reconstructed", reconstructed).
				Msg("Discarding corrupted snapshot")
			continue
		}
		merged[date] = snap.Value
	}

	dates := make([]string, 0, len(merged))
	for date := range merged {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	if window > 0 && len(dates) > int(window) {
		dates = dates[len(dates)-int(window):]
	}

	points := make([]models.SeriesPoint, 0, len(dates))
	for _, date := range dates {
		points = append(points, models.SeriesPoint{
			FullDate:  date,
			ShortDate: common.ShortDate(date),
			Value:     math.Round(merged[date]),
		})
	}

	return points
}

// AcceptSnapshot applies the write-path acceptance rules and returns the
// updated series plus whether anything changed. A rejection is reported
// as ErrSnapshotRejected for operator visibility; callers log it and
// keep going, it is expected steady-state behavior.
func (r *Reconciler) AcceptSnapshot(snapshots []models.ValueSnapshot, today string, totalValue float64) ([]models.ValueSnapshot, bool, error) {
	if common.IsWeekend(today) {
		return snapshots, false, fmt.Errorf("%w: %s is not a trading day", models.ErrSnapshotRejected, today)
	}
	if totalValue <= 0 {
		return snapshots, false, fmt.Errorf("%w: non-positive total %v", models.ErrSnapshotRejected, totalValue)
	}

	if last := latestBefore(snapshots, today); last != nil && totalValue < last.Value*catastrophicDropRatio {
		return snapshots, false, fmt.Errorf("%w: total %v is more than 50%% below last recorded %v",
			models.ErrSnapshotRejected, totalValue, last.Value)
	}

	rounded := math.Round(totalValue)

	for _, snap := range snapshots {
		if snap.Date != today {
			continue
		}
		if rounded < snap.Value {
			// Same-day recomputation that lost value: keep the existing
			// observation, idempotent no-op.
			return snapshots, false, nil
		}
		break
	}

	updated := make([]models.ValueSnapshot, 0, len(snapshots)+1)
	updated = append(updated, snapshots...)
	updated = append(updated, models.ValueSnapshot{Date: today, Value: rounded})

	return dedupeSorted(updated), true, nil
}

// Backfill seeds the snapshot series from the reconstruction when fewer
// than backfillThreshold entries exist. Implausibly small reconstructed
// values are sentinels for missing data and are never seeded. Existing
// recorded entries are kept as-is.
func (r *Reconciler) Backfill(holdings map[string]models.Holding, rows []models.HistoryRow, snapshots []models.ValueSnapshot) ([]models.ValueSnapshot, bool) {
	if len(snapshots) >= backfillThreshold {
		return snapshots, false
	}

	existing := make(map[string]bool, len(snapshots))
	for _, snap := range snapshots {
		existing[snap.Date] = true
	}

	seeded := append([]models.ValueSnapshot(nil), snapshots...)
	added := 0
	for _, entry := range r.Reconstruct(holdings, rows) {
		if existing[entry.Date] || entry.Value < minPlausibleValue {
			continue
		}
		seeded = append(seeded, models.ValueSnapshot{Date: entry.Date, Value: math.Round(entry.Value)})
		added++
	}
	if added == 0 {
		return snapshots, false
	}

	r.logger.Info().Int("seeded", added).Msg("Backfilled snapshot series from reconstruction")
	return dedupeSorted(seeded), true
}

// latestBefore returns the most recent snapshot dated strictly before
// today, or nil.
func latestBefore(snapshots []models.ValueSnapshot, today string) *models.ValueSnapshot {
	var latest *models.ValueSnapshot
	for i := range snapshots {
		if snapshots[i].Date >= today {
			continue
		}
		if latest == nil || snapshots[i].Date > latest.Date {
			latest = &snapshots[i]
		}
	}
	return latest
}

// dedupeSorted de-duplicates by date (last write wins) and re-sorts
// ascending.
func dedupeSorted(snapshots []models.ValueSnapshot) []models.ValueSnapshot {
	byDate := make(map[string]float64, len(snapshots))
	for _, snap := range snapshots {
		byDate[snap.Date] = snap.Value
	}

	out := make([]models.ValueSnapshot, 0, len(byDate))
	for date, value := range byDate {
		out = append(out, models.ValueSnapshot{Date: date, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
