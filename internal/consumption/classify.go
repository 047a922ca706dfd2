package consumption

import "github.com/enel-control/enel-cli/internal/model"

// Tier thresholds, in percent of the trailing average.
const (
	CriticalAbove = 150.0
	HighFrom      = 100.0
	AboveFrom     = 50.0
)

// Classify maps a reading and its trailing average to a tier.
//
//	current <= 0        no-data
//	average <= 0        no-history (percent of average reported as 100)
//	pct > 150           critical
//	100 <= pct <= 150   high
//	50 <= pct < 100     above-average
//	pct < 50            moderate
func Classify(current, average float64) model.ClassificationResult {
	if current <= 0 {
		return model.ClassificationResult{Tier: model.TierNoData}
	}
	if average <= 0 {
		return model.ClassificationResult{Tier: model.TierNoHistory, PercentOfAverage: 100}
	}

	pct := current / average * 100
	res := model.ClassificationResult{
		PercentOfAverage:  pct,
		DeviationPercent:  (current - average) / average * 100,
		DeviationAbsolute: current - average,
	}
	switch {
	case pct > CriticalAbove:
		res.Tier = model.TierCritical
	case pct >= HighFrom:
		res.Tier = model.TierHigh
	case pct >= AboveFrom:
		res.Tier = model.TierAboveAverage
	default:
		res.Tier = model.TierModerate
	}
	return res
}

// Analyze is the single evaluation path used by both the ledger and the
// notifications. history must already be prepared (see PrepareHistory).
func Analyze(history []model.HistoryEntry) model.Analysis {
	avg := TrailingAverage(history)
	return model.Analysis{
		Current:          avg.Current,
		TrailingAverage:  avg.Trailing,
		DeviationPercent: avg.DeviationPercent,
		Samples:          avg.Samples,
		Classification:   Classify(avg.Current, avg.Trailing),
	}
}
