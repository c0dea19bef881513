package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// heatwaveTable is five non-leap years of a constant 30 at one cell with a
// four-day spike to 40 starting on day 150 of the third year.
func heatwaveTable() *Table {
	var records []DailyRecord
	for _, year := range []int{2001, 2002, 2003, 2005, 2006} {
		yr := fullYear(3, 7, year, 30)
		if year == 2003 {
			for d := 149; d < 153; d++ {
				yr[d].Value = 40
			}
		}
		records = append(records, yr...)
	}
	return NewTable("temperature", records)
}

func TestHeatwaveScenario(t *testing.T) {
	table := heatwaveTable()
	records := table.Records

	thresholds, err := ComputeThresholds(records, 3)
	require.NoError(t, err)
	require.NoError(t, ComputeDeltas(records, thresholds, 5))
	InitializeNonExtreme(records)
	require.NoError(t, ComputeSeverityRanking(records, 3))

	var spike []DailyRecord
	var runSum float64
	for _, r := range records {
		assert.GreaterOrEqual(t, r.Delta, 0.0)
		assert.True(t, r.Scored)
		if r.Year == 2003 && r.Day >= 150 && r.Day <= 153 {
			spike = append(spike, r)
			runSum += r.Delta
			continue
		}
		assert.False(t, r.Extreme, "year %d day %d", r.Year, r.Day)
		assert.Equal(t, 0.0, r.Severity, "year %d day %d", r.Year, r.Day)
		assert.Equal(t, 0, r.Ranking, "year %d day %d", r.Year, r.Day)
	}

	require.Len(t, spike, 4)
	for _, r := range spike {
		assert.True(t, r.Extreme, "day %d", r.Day)
		assert.InDelta(t, runSum, r.Severity, 1e-9, "day %d", r.Day)
		assert.Equal(t, 2, r.Ranking, "day %d", r.Day)
	}
}
