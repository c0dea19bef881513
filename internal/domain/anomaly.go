package domain

import "fmt"

// ExtremeDelta compares an observed value to its baseline. Negative deviations
// are clamped to 0 and never extreme; otherwise the day is extreme only when
// the delta strictly exceeds deltaParam.
func ExtremeDelta(value, baseline, deltaParam float64) (float64, bool) {
	delta := value - baseline
	if delta < 0 {
		return 0, false
	}
	return delta, delta > deltaParam
}

// ComputeDeltas fills Delta and Extreme on every record from its cell's
// baseline curve. A record whose cell or day is not covered by thresholds is
// a hard failure; nothing is defaulted.
func ComputeDeltas(records []DailyRecord, thresholds ThresholdMap, deltaParam float64) error {
	for i := range records {
		r := &records[i]
		key := r.Cell()
		curve, ok := thresholds[key]
		if !ok {
			return newEngineError("compute delta", fmt.Sprintf("no baseline for cell %s", key), ErrLookup)
		}
		if r.Day < 1 || r.Day > len(curve) {
			return newEngineError("compute delta",
				fmt.Sprintf("day %d outside baseline of length %d for cell %s", r.Day, len(curve), key), ErrLookup)
		}
		r.Delta, r.Extreme = ExtremeDelta(r.Value, curve[r.Day-1], deltaParam)
	}
	return nil
}

// InitializeNonExtreme zeroes severity and ranking on every non-extreme record
// and marks it scored. Extreme records are reset to unscored for SeverityRanking.
func InitializeNonExtreme(records []DailyRecord) {
	for i := range records {
		r := &records[i]
		r.Severity = 0
		r.Ranking = 0
		r.Scored = !r.Extreme
	}
}
