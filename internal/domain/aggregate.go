package domain

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/montanaflynn/stats"
)

// Level is the temporal resolution of an aggregation.
type Level string

const (
	LevelMonth  Level = "month"
	LevelSeason Level = "season"
	LevelYear   Level = "year"
)

// ParseLevel validates a level name.
func ParseLevel(s string) (Level, error) {
	switch l := Level(s); l {
	case LevelMonth, LevelSeason, LevelYear:
		return l, nil
	default:
		return "", newEngineError("parse level", fmt.Sprintf("unknown aggregation level %q", s), ErrSchema)
	}
}

// Column names a numeric record column that can be aggregated.
type Column string

const (
	ColumnValue    Column = "value"
	ColumnDelta    Column = "delta"
	ColumnSeverity Column = "severity"
	ColumnSPI      Column = "spi"
)

// ParseColumn validates a column name.
func ParseColumn(s string) (Column, error) {
	switch c := Column(s); c {
	case ColumnValue, ColumnDelta, ColumnSeverity, ColumnSPI:
		return c, nil
	default:
		return "", newEngineError("parse column", fmt.Sprintf("unknown aggregation column %q", s), ErrSchema)
	}
}

func (c Column) of(r *DailyRecord) float64 {
	switch c {
	case ColumnDelta:
		return r.Delta
	case ColumnSeverity:
		return r.Severity
	case ColumnSPI:
		return r.SPI
	default:
		return r.Value
	}
}

// SeasonScheme maps a calendar month to a season label.
type SeasonScheme string

const (
	// SeasonsMeteorological uses Spring MAM, Summer JJA, Autumn SON and Winter
	// DJF. December stays in its own calendar year.
	SeasonsMeteorological SeasonScheme = "meteorological"
	// SeasonsNigeria uses the Wet season April-September and Dry otherwise.
	SeasonsNigeria SeasonScheme = "nigeria"
)

// ParseSeasonScheme validates a season scheme name.
func ParseSeasonScheme(s string) (SeasonScheme, error) {
	switch sc := SeasonScheme(s); sc {
	case SeasonsMeteorological, SeasonsNigeria:
		return sc, nil
	default:
		return "", newEngineError("parse season scheme", fmt.Sprintf("unknown season scheme %q", s), ErrSchema)
	}
}

// Season returns the season label of month under the scheme.
func (s SeasonScheme) Season(month int) string {
	if s == SeasonsNigeria {
		if month >= 4 && month <= 9 {
			return "Wet"
		}
		return "Dry"
	}
	switch month {
	case 3, 4, 5:
		return "Spring"
	case 6, 7, 8:
		return "Summer"
	case 9, 10, 11:
		return "Autumn"
	default:
		return "Winter"
	}
}

// AggregatedPeriod summarizes one column over a (period, cell) group.
type AggregatedPeriod struct {
	Event  string  `json:"event"`
	Column Column  `json:"column"`
	Level  Level   `json:"level"`
	Year   int     `json:"year"`
	Month  int     `json:"month,omitempty"`
	Season string  `json:"season,omitempty"`
	Lon    float64 `json:"lon"`
	Lat    float64 `json:"lat"`
	Mean   float64 `json:"mean"`
	Max    float64 `json:"max"`
	Min    float64 `json:"min"`
}

// Key identifies the period and cell, e.g. "temperature|delta|month|2012|4|7.5-9".
func (p AggregatedPeriod) Key() string {
	period := p.Season
	if p.Level == LevelMonth {
		period = fmt.Sprint(p.Month)
	}
	return fmt.Sprintf("%s|%s|%s|%d|%s|%s", p.Event, p.Column, p.Level, p.Year, period, NewCellKey(p.Lon, p.Lat))
}

type periodKey struct {
	year   int
	month  int
	season string
	lon    float64
	lat    float64
}

// AggregateMonthly summarizes column by (year, month, lon, lat).
func AggregateMonthly(t *Table, column Column) ([]AggregatedPeriod, error) {
	if err := checkColumn(t, column); err != nil {
		return nil, err
	}
	return aggregate(t, column, LevelMonth, func(r *DailyRecord) periodKey {
		return periodKey{year: r.Year, month: r.Month, lon: r.Lon, lat: r.Lat}
	})
}

// AggregateYearly summarizes column by (year, lon, lat).
func AggregateYearly(t *Table, column Column) ([]AggregatedPeriod, error) {
	if err := checkColumn(t, column); err != nil {
		return nil, err
	}
	return aggregate(t, column, LevelYear, func(r *DailyRecord) periodKey {
		return periodKey{year: r.Year, lon: r.Lon, lat: r.Lat}
	})
}

// AggregateSeasonal averages monthly mean, max and min by (season, lat, lon, year).
func AggregateSeasonal(monthly []AggregatedPeriod, scheme SeasonScheme) ([]AggregatedPeriod, error) {
	groups := make(map[periodKey][]AggregatedPeriod)
	for _, m := range monthly {
		if m.Level != LevelMonth {
			return nil, newEngineError("aggregate seasonal", "input must be monthly periods", ErrSchema)
		}
		k := periodKey{year: m.Year, season: scheme.Season(m.Month), lon: m.Lon, lat: m.Lat}
		groups[k] = append(groups[k], m)
	}

	out := make([]AggregatedPeriod, 0, len(groups))
	for k, months := range groups {
		means := make([]float64, len(months))
		maxes := make([]float64, len(months))
		mins := make([]float64, len(months))
		for i, m := range months {
			means[i], maxes[i], mins[i] = m.Mean, m.Max, m.Min
		}
		p := AggregatedPeriod{
			Event:  months[0].Event,
			Column: months[0].Column,
			Level:  LevelSeason,
			Year:   k.year,
			Season: k.season,
			Lon:    k.lon,
			Lat:    k.lat,
		}
		var err error
		if p.Mean, err = stats.Mean(means); err != nil {
			return nil, fmt.Errorf("aggregate seasonal mean: %w", err)
		}
		if p.Max, err = stats.Mean(maxes); err != nil {
			return nil, fmt.Errorf("aggregate seasonal max: %w", err)
		}
		if p.Min, err = stats.Mean(mins); err != nil {
			return nil, fmt.Errorf("aggregate seasonal min: %w", err)
		}
		out = append(out, p)
	}

	slices.SortFunc(out, func(a, b AggregatedPeriod) int {
		return cmp.Or(
			cmp.Compare(a.Season, b.Season),
			cmp.Compare(a.Lat, b.Lat),
			cmp.Compare(a.Lon, b.Lon),
			cmp.Compare(a.Year, b.Year),
		)
	})
	return out, nil
}

// Aggregate builds the periods of one level. Seasonal periods are derived
// from the monthly ones.
func Aggregate(t *Table, column Column, level Level, scheme SeasonScheme) ([]AggregatedPeriod, error) {
	switch level {
	case LevelMonth:
		return AggregateMonthly(t, column)
	case LevelYear:
		return AggregateYearly(t, column)
	case LevelSeason:
		monthly, err := AggregateMonthly(t, column)
		if err != nil {
			return nil, err
		}
		return AggregateSeasonal(monthly, scheme)
	default:
		return nil, newEngineError("aggregate", fmt.Sprintf("unknown aggregation level %q", level), ErrSchema)
	}
}

func checkColumn(t *Table, column Column) error {
	if _, err := ParseColumn(string(column)); err != nil {
		return err
	}
	if column == ColumnSPI && !t.HasSPI {
		return newEngineError("aggregate", fmt.Sprintf("table %q has no spi column", t.Event), ErrSchema)
	}
	return nil
}

func aggregate(t *Table, column Column, level Level, keyOf func(*DailyRecord) periodKey) ([]AggregatedPeriod, error) {
	groups := make(map[periodKey][]float64)
	for i := range t.Records {
		r := &t.Records[i]
		k := keyOf(r)
		groups[k] = append(groups[k], column.of(r))
	}

	out := make([]AggregatedPeriod, 0, len(groups))
	for k, values := range groups {
		p := AggregatedPeriod{
			Event:  t.Event,
			Column: column,
			Level:  level,
			Year:   k.year,
			Month:  k.month,
			Lon:    k.lon,
			Lat:    k.lat,
		}
		var err error
		if p.Mean, err = stats.Mean(values); err != nil {
			return nil, fmt.Errorf("aggregate %s mean: %w", level, err)
		}
		if p.Max, err = stats.Max(values); err != nil {
			return nil, fmt.Errorf("aggregate %s max: %w", level, err)
		}
		if p.Min, err = stats.Min(values); err != nil {
			return nil, fmt.Errorf("aggregate %s min: %w", level, err)
		}
		out = append(out, p)
	}

	slices.SortFunc(out, func(a, b AggregatedPeriod) int {
		return cmp.Or(
			cmp.Compare(a.Year, b.Year),
			cmp.Compare(a.Month, b.Month),
			cmp.Compare(a.Lon, b.Lon),
			cmp.Compare(a.Lat, b.Lat),
		)
	})
	return out, nil
}
