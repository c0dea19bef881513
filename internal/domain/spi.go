package domain

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// spiWindow is the trailing window, in days, of the precipitation mean (~3 months).
	spiWindow = 90
	// spiOffset keeps the rolling mean strictly positive for the gamma fit.
	spiOffset = 0.001
	// spiProbClamp bounds cumulative probabilities so the normal quantile stays finite.
	spiProbClamp = 1e-12
)

// ComputeSPI fills the SPI column of every record with the 3-month
// Standardized Precipitation Index of its grid cell.
//
// Per cell, records are ordered by date and the trailing 90-day mean of Value
// (partial windows allowed) is fitted to a gamma distribution with location 0.
// SPI is the standard normal quantile of each mean's gamma CDF.
func ComputeSPI(records []DailyRecord) {
	byCell := make(map[CellKey][]int)
	var order []CellKey
	for i := range records {
		k := records[i].Cell()
		if _, ok := byCell[k]; !ok {
			order = append(order, k)
		}
		byCell[k] = append(byCell[k], i)
	}

	for _, k := range order {
		idx := byCell[k]
		slices.SortStableFunc(idx, func(a, b int) int {
			return records[a].Date.Compare(records[b].Date)
		})

		values := make([]float64, len(idx))
		for j, i := range idx {
			values[j] = records[i].Value
		}
		means := trailingRollingMean(values, spiWindow)
		for j := range means {
			means[j] += spiOffset
		}

		spi := standardize(means)
		for j, i := range idx {
			records[i].SPI = spi[j]
		}
	}
}

// standardize maps samples to SPI values through a fitted gamma distribution.
func standardize(samples []float64) []float64 {
	out := make([]float64, len(samples))
	shape, scale, ok := fitGamma(samples)
	if !ok {
		return out
	}

	g := distuv.Gamma{Alpha: shape, Beta: 1 / scale}
	for i, x := range samples {
		p := g.CDF(x)
		p = math.Min(math.Max(p, spiProbClamp), 1-spiProbClamp)
		out[i] = distuv.UnitNormal.Quantile(p)
	}
	return out
}

// fitGamma estimates gamma shape and scale (location fixed at 0) by maximum
// likelihood. ok is false when the samples are degenerate (empty, non-positive
// or all identical).
func fitGamma(samples []float64) (shape, scale float64, ok bool) {
	if len(samples) == 0 {
		return 0, 0, false
	}
	var sum, sumLog float64
	for _, x := range samples {
		if x <= 0 {
			return 0, 0, false
		}
		sum += x
		sumLog += math.Log(x)
	}
	n := float64(len(samples))
	mean := sum / n
	s := math.Log(mean) - sumLog/n
	if s <= 1e-12 {
		return 0, 0, false
	}

	// Thom's estimator, then Newton on ln(a) - digamma(a) = s.
	a := (1 + math.Sqrt(1+4*s/3)) / (4 * s)
	for range 50 {
		f := math.Log(a) - mathext.Digamma(a) - s
		h := 1e-6 * a
		df := (math.Log(a+h) - mathext.Digamma(a+h) - math.Log(a-h) + mathext.Digamma(a-h)) / (2 * h)
		if df == 0 {
			break
		}
		next := a - f/df
		if next <= 0 {
			next = a / 2
		}
		if math.Abs(next-a) < 1e-10*a {
			a = next
			break
		}
		a = next
	}
	return a, mean / a, true
}

// trailingRollingMean averages values[i-window+1..i], using fewer values at the start.
func trailingRollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		out[i] = sum / float64(min(i+1, window))
	}
	return out
}

// SPI drought/wetness classes, bounded at -2, -1.5, -1, 1, 1.5 and 2 (upper bound inclusive).
const (
	SPIExtremelyDry  = "Extremely Dry"
	SPIModeratelyDry = "Moderately Dry"
	SPIDry           = "Dry"
	SPINeutral       = "Neutral"
	SPIWet           = "Wet"
	SPIModeratelyWet = "Moderately Wet"
	SPIExtremelyWet  = "Extremely Wet"
)

type spiBin struct {
	upper float64
	label string
}

var spiBins = []spiBin{
	{-2, SPIExtremelyDry},
	{-1.5, SPIModeratelyDry},
	{-1, SPIDry},
	{1, SPINeutral},
	{1.5, SPIWet},
	{2, SPIModeratelyWet},
	{math.Inf(1), SPIExtremelyWet},
}

// SPICategory labels an SPI value with its drought/wetness class. NaN has no class.
func SPICategory(spi float64) string {
	if math.IsNaN(spi) {
		return ""
	}
	i, _ := slices.BinarySearchFunc(spiBins, spi, func(b spiBin, v float64) int {
		return cmp.Compare(b.upper, v)
	})
	return spiBins[i].label
}
