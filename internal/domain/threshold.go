package domain

import (
	"cmp"
	"math"
	"slices"
)

// ComputeThresholds builds the day-of-year baseline curve for every distinct
// grid cell in records. Dates must already be expanded with ExtractTimescales.
//
// Each year of a cell is ordered by day and smoothed with a centered rolling
// mean of the given window; edge windows average only the values present.
// The smoothed years are then averaged per position, with shorter years
// contributing 0 where they have no value. The curve length is the longest
// year's day count.
func ComputeThresholds(records []DailyRecord, window int) (ThresholdMap, error) {
	if window <= 0 {
		return nil, newEngineError("compute thresholds", "rolling window must be positive", ErrSchema)
	}

	byCell := make(map[CellKey][]int)
	order := make([]CellKey, 0)
	for i := range records {
		k := records[i].Cell()
		if _, ok := byCell[k]; !ok {
			order = append(order, k)
		}
		byCell[k] = append(byCell[k], i)
	}

	thresholds := make(ThresholdMap, len(order))
	for _, k := range order {
		thresholds[k] = cellBaseline(records, byCell[k], window)
	}
	return thresholds, nil
}

// cellBaseline averages the rolling means of every year observed for one cell.
func cellBaseline(records []DailyRecord, idx []int, window int) []float64 {
	byYear := make(map[int][]int)
	var years []int
	for _, i := range idx {
		y := records[i].Year
		if _, ok := byYear[y]; !ok {
			years = append(years, y)
		}
		byYear[y] = append(byYear[y], i)
	}

	smoothed := make([][]float64, 0, len(years))
	longest := 0
	for _, y := range years {
		rows := byYear[y]
		slices.SortStableFunc(rows, func(a, b int) int {
			return cmp.Compare(records[a].Day, records[b].Day)
		})
		values := make([]float64, len(rows))
		for j, i := range rows {
			values[j] = records[i].Value
		}
		s := centeredRollingMean(values, window)
		smoothed = append(smoothed, s)
		longest = max(longest, len(s))
	}

	curve := make([]float64, longest)
	for pos := range curve {
		var sum float64
		for _, s := range smoothed {
			if pos < len(s) {
				sum += s[pos]
			}
		}
		curve[pos] = sum / float64(len(smoothed))
	}
	return curve
}

// centeredRollingMean returns the mean over [i-window/2, i-window/2+window-1]
// for every position, using only the in-range non-NaN values. Positions with
// no usable value are 0.
func centeredRollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	offset := window / 2
	for i := range values {
		lo := max(i-offset, 0)
		hi := min(i-offset+window-1, len(values)-1)

		var sum float64
		var n int
		for j := lo; j <= hi; j++ {
			if math.IsNaN(values[j]) {
				continue
			}
			sum += values[j]
			n++
		}
		if n > 0 {
			out[i] = sum / float64(n)
		}
	}
	return out
}
