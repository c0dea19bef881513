package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// series builds consecutive daily records for one cell starting on January 1 of year.
func series(lon, lat float64, year int, values []float64) []DailyRecord {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	out := make([]DailyRecord, len(values))
	for i, v := range values {
		out[i] = DailyRecord{Lon: lon, Lat: lat, Date: start.AddDate(0, 0, i), Value: v}
	}
	ExtractTimescales(out)
	return out
}

// fullYear builds a whole calendar year of constant values for one cell.
func fullYear(lon, lat float64, year int, value float64) []DailyRecord {
	days := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
	values := make([]float64, days)
	for i := range values {
		values[i] = value
	}
	return series(lon, lat, year, values)
}

func TestNewCellKey(t *testing.T) {
	tests := []struct {
		name     string
		lon, lat float64
		expected CellKey
	}{
		{"integers", 3, 7, "3-7"},
		{"fractions", 3.25, 7.5, "3.25-7.5"},
		{"negative lon", -0.5, 12.1, "-0.5-12.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NewCellKey(tt.lon, tt.lat))
		})
	}
}

func TestNewTable(t *testing.T) {
	records := append(series(3, 7, 2001, []float64{1, 2}), series(3, 7.5, 1999, []float64{3})...)
	table := NewTable("temperature", records)

	for i, r := range table.Records {
		assert.Equal(t, i, r.ID)
	}
	assert.Equal(t, []int{1999, 2001}, table.Years())
	assert.Equal(t, []CellKey{"3-7", "3-7.5"}, table.Cells())
}

func TestExtractTimescales(t *testing.T) {
	records := []DailyRecord{
		{Date: time.Date(2004, time.March, 1, 0, 0, 0, 0, time.UTC)},
		{Date: time.Date(2003, time.December, 31, 0, 0, 0, 0, time.UTC)},
	}
	ExtractTimescales(records)

	assert.Equal(t, 61, records[0].Day, "leap year counts February 29")
	assert.Equal(t, 3, records[0].Month)
	assert.Equal(t, 2004, records[0].Year)
	assert.Equal(t, 365, records[1].Day)
}

func TestBatching(t *testing.T) {
	years := []int{2001, 2002, 2003, 2004, 2005, 2006, 2007}

	assert.Equal(t, [][]int{{2001, 2002, 2003}, {2004, 2005, 2006}, {2007}}, Batching(years, 3))
	assert.Equal(t, [][]int{years}, Batching(years, 0))
	assert.Equal(t, [][]int{years}, Batching(years, 10))
	assert.Empty(t, Batching([]int{}, 3))
}

func TestEventProfile(t *testing.T) {
	profiles := DefaultProfiles()
	require.Len(t, profiles, 2)
	temp, precip := profiles[0], profiles[1]

	t.Run("defaults validate", func(t *testing.T) {
		require.NoError(t, temp.Validate())
		require.NoError(t, precip.Validate())
		assert.False(t, temp.SPI)
		assert.True(t, precip.SPI)
	})

	t.Run("cache names", func(t *testing.T) {
		assert.Equal(t, "daily_averaging_temperature_interpolated_thresholds", temp.ThresholdCacheName())
		assert.Equal(t, "all_temperature_interpolated_indicators", temp.IndicatorCacheName())
		assert.Equal(t, "daily_averaging_precipitation_thresholds", precip.ThresholdCacheName())
		assert.Equal(t, "all_precipitation_indicators", precip.IndicatorCacheName())

		wind := EventProfile{Name: "wind"}
		assert.Equal(t, "all_wind_indicators", wind.IndicatorCacheName())
		assert.Equal(t, "daily_averaging_wind_thresholds", wind.ThresholdCacheName())

		tmax := EventProfile{Name: "temperature_max"}
		assert.Equal(t, "all_temperature_max_indicators", tmax.IndicatorCacheName())
		assert.Equal(t, "daily_averaging_temperature_max_thresholds", tmax.ThresholdCacheName())
		assert.NotEqual(t, temp.IndicatorCacheName(), tmax.IndicatorCacheName())

		precipDaily := EventProfile{Name: "precip_daily"}
		assert.NotEqual(t, precip.IndicatorCacheName(), precipDaily.IndicatorCacheName())
	})

	t.Run("invalid profiles", func(t *testing.T) {
		tests := []struct {
			name    string
			mutate  func(p *EventProfile)
			message string
		}{
			{"missing name", func(p *EventProfile) { p.Name = "" }, "event name is required"},
			{"missing column", func(p *EventProfile) { p.Column = "" }, "event column is required"},
			{"zero days", func(p *EventProfile) { p.DaysParam = 0 }, "days must be positive"},
			{"negative window", func(p *EventProfile) { p.RollingWindow = -1 }, "window must be positive"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				p := temp
				tt.mutate(&p)
				err := p.Validate()
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrSchema))
				assert.Contains(t, err.Error(), tt.message)
			})
		}
	})
}

func TestEngineError(t *testing.T) {
	err := newEngineError("compute delta", "no baseline for cell 3-7", ErrLookup)

	var engineErr *EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, "compute delta", engineErr.Op)
	assert.ErrorIs(t, err, ErrLookup)
	assert.NotErrorIs(t, err, ErrSchema)
	assert.Equal(t, "compute delta: no baseline for cell 3-7: threshold lookup error", err.Error())

	bare := &EngineError{Op: "load", Msg: "empty"}
	assert.Equal(t, "load: empty", bare.Error())
}
