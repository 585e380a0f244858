package models

// ThresholdSet holds per-symbol volatility percentile boundaries computed
// offline from a long historical series. The zero value is the documented
// fallback for symbols without computed thresholds: any positive volatility
// then classifies as the highest level.
type ThresholdSet struct {
	Q25 float64 `json:"q25"`
	Q50 float64 `json:"q50"`
	Q75 float64 `json:"q75"`
}

// IsZero reports whether no thresholds have been computed.
func (t ThresholdSet) IsZero() bool {
	return t.Q25 == 0 && t.Q50 == 0 && t.Q75 == 0
}
