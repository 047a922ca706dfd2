package model

// Tier is the escalation class of a consumption deviation.
type Tier string

const (
	TierNoData       Tier = "no-data"
	TierNoHistory    Tier = "no-history"
	TierModerate     Tier = "moderate"
	TierAboveAverage Tier = "above-average"
	TierHigh         Tier = "high"
	TierCritical     Tier = "critical"
)

// Tiers lists every tier from least to most urgent.
var Tiers = []Tier{
	TierNoData,
	TierNoHistory,
	TierModerate,
	TierAboveAverage,
	TierHigh,
	TierCritical,
}

var tierLabels = map[Tier]string{
	TierNoData:       "Sem dados",
	TierNoHistory:    "Sem histórico",
	TierModerate:     "Consumo moderado",
	TierAboveAverage: "Acima da média",
	TierHigh:         "Consumo alto",
	TierCritical:     "Consumo crítico",
}

// Label returns the human label written to the ledger export.
func (t Tier) Label() string {
	if l, ok := tierLabels[t]; ok {
		return l
	}
	return string(t)
}

// Urgent reports whether the tier calls for action.
func (t Tier) Urgent() bool {
	return t == TierHigh || t == TierCritical
}

// ParseTier maps either the tier code or its label back to a Tier.
func ParseTier(s string) (Tier, bool) {
	for _, t := range Tiers {
		if string(t) == s || t.Label() == s {
			return t, true
		}
	}
	return "", false
}

// ClassificationResult is derived from (current, trailing average) and never
// stored on its own.
type ClassificationResult struct {
	Tier              Tier    `json:"tier"`
	DeviationPercent  float64 `json:"deviation_percent"`
	DeviationAbsolute float64 `json:"deviation_absolute"`
	PercentOfAverage  float64 `json:"percent_of_average"`
}

// Analysis is the one consumption evaluation shared by the ledger and the
// notification templates.
type Analysis struct {
	Current          float64              `json:"current"`
	TrailingAverage  float64              `json:"trailing_average"`
	DeviationPercent float64              `json:"deviation_percent"`
	Samples          int                  `json:"samples"`
	Classification   ClassificationResult `json:"classification"`
}
