// Package consumption computes trailing consumption averages and classifies
// the current reading against them.
package consumption

import (
	"sort"

	"github.com/enel-control/enel-cli/internal/model"
)

// WindowSize is the number of prior periods in the trailing average.
const WindowSize = 6

// Average is the result of TrailingAverage.
type Average struct {
	Current          float64
	Trailing         float64
	DeviationPercent float64
	// Samples is how many prior periods contributed to Trailing.
	Samples int
}

// TrailingAverage expects history sorted by period descending; entry 0 is the
// current reading. Entries 1..WindowSize with positive consumption form the
// average. With fewer than two entries or no valid prior entries the average
// and deviation are zero.
func TrailingAverage(history []model.HistoryEntry) Average {
	if len(history) == 0 {
		return Average{}
	}
	avg := Average{Current: history[0].ConsumptionKWh}
	if len(history) < 2 {
		return avg
	}

	end := min(len(history), WindowSize+1)
	var sum float64
	for _, h := range history[1:end] {
		if h.ConsumptionKWh > 0 {
			sum += h.ConsumptionKWh
			avg.Samples++
		}
	}
	if avg.Samples == 0 {
		return avg
	}

	avg.Trailing = sum / float64(avg.Samples)
	if avg.Trailing > 0 {
		avg.DeviationPercent = (avg.Current - avg.Trailing) / avg.Trailing * 100
	}
	return avg
}

// SortHistory orders entries by period, most recent first. The sort is stable
// so equal periods keep their input order.
func SortHistory(history []model.HistoryEntry) {
	sort.SliceStable(history, func(i, j int) bool {
		return history[j].Period.Before(history[i].Period)
	})
}

// PrepareHistory builds the series TrailingAverage expects: the current
// reading first, followed by stored history for earlier periods only. Stored
// entries for the current period or later are dropped, so a re-run never
// averages a reading with itself.
func PrepareHistory(current model.HistoryEntry, stored []model.HistoryEntry) []model.HistoryEntry {
	out := make([]model.HistoryEntry, 0, len(stored)+1)
	out = append(out, current)
	prior := make([]model.HistoryEntry, 0, len(stored))
	for _, h := range stored {
		if current.Period.IsZero() || h.Period.Before(current.Period) {
			prior = append(prior, h)
		}
	}
	SortHistory(prior)
	return append(out, prior...)
}
