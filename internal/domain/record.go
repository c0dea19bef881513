package domain

import (
	"slices"
	"strconv"
	"time"
)

// CellKey identifies a grid cell by its exact coordinate pair, formatted as "{lon}-{lat}".
type CellKey string

// NewCellKey builds the key for a (lon, lat) pair using the shortest float
// representation that round-trips, so equal coordinates always map to the same key.
func NewCellKey(lon, lat float64) CellKey {
	return CellKey(formatCoord(lon) + "-" + formatCoord(lat))
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// DailyRecord is one grid cell on one calendar day, plus the indicator
// columns filled in by the engine.
type DailyRecord struct {
	// ID is the arena identifier assigned at ingestion. Sub-computations
	// report results keyed by ID, never by slice position.
	ID int `json:"id"`

	Lon   float64   `json:"lon"`
	Lat   float64   `json:"lat"`
	Date  time.Time `json:"date"`
	Day   int       `json:"day"` // 1-based day of year
	Month int       `json:"month"`
	Year  int       `json:"year"`
	Value float64   `json:"value"`

	Delta    float64 `json:"delta"`
	Extreme  bool    `json:"extreme"`
	Severity float64 `json:"severity"`
	Ranking  int     `json:"ranking"`

	// Scored reports whether Severity and Ranking have been assigned.
	Scored bool `json:"-"`

	SPI float64 `json:"spi,omitempty"`
}

// Cell returns the record's grid cell key.
func (r DailyRecord) Cell() CellKey {
	return NewCellKey(r.Lon, r.Lat)
}

// Table is the full record set for one climate variable.
type Table struct {
	Event   string
	Records []DailyRecord
	HasSPI  bool
}

// NewTable assigns arena IDs 0..n-1 to records in their ingestion order.
func NewTable(event string, records []DailyRecord) *Table {
	for i := range records {
		records[i].ID = i
	}
	return &Table{Event: event, Records: records}
}

// Years returns the distinct years present in the table, sorted ascending.
func (t *Table) Years() []int {
	seen := make(map[int]struct{})
	var years []int
	for i := range t.Records {
		y := t.Records[i].Year
		if _, ok := seen[y]; ok {
			continue
		}
		seen[y] = struct{}{}
		years = append(years, y)
	}
	slices.Sort(years)
	return years
}

// Cells returns the distinct grid cells in first-appearance order.
func (t *Table) Cells() []CellKey {
	return distinctCells(t.Records)
}

func distinctCells(records []DailyRecord) []CellKey {
	seen := make(map[CellKey]struct{})
	var cells []CellKey
	for i := range records {
		k := records[i].Cell()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		cells = append(cells, k)
	}
	return cells
}

// ThresholdMap holds one baseline curve per grid cell; index 0 is day-of-year 1.
type ThresholdMap map[CellKey][]float64

// SeverityMap maps day-of-year to a severity value within one (cell, year).
type SeverityMap map[int]float64

// EventProfile bundles the parameters used to derive indicators for one climate variable.
type EventProfile struct {
	Name          string  `yaml:"name"`
	Column        string  `yaml:"column"`
	Input         string  `yaml:"input"`
	DeltaParam    float64 `yaml:"delta"`
	DaysParam     int     `yaml:"days"`
	RollingWindow int     `yaml:"window"`
	SPI           bool    `yaml:"spi"`
	IndexName     string  `yaml:"index_name"`
}

// DefaultProfiles returns the heatwave and heavy-rain profiles used in the
// Nigeria deployment.
func DefaultProfiles() []EventProfile {
	return []EventProfile{
		{
			Name:          "temperature",
			Column:        "temperature",
			Input:         "data/raw/temperature.csv",
			DeltaParam:    5,
			DaysParam:     3,
			RollingWindow: 3,
			IndexName:     "heatwave_index",
		},
		{
			Name:          "precipitation",
			Column:        "precipitation",
			Input:         "data/raw/precipitation.csv",
			DeltaParam:    15,
			DaysParam:     3,
			RollingWindow: 3,
			SPI:           true,
			IndexName:     "heavy_rain_index",
		},
	}
}

// Validate checks that the profile can drive the engine.
func (p EventProfile) Validate() error {
	switch {
	case p.Name == "":
		return newEngineError("validate profile", "event name is required", ErrSchema)
	case p.Column == "":
		return newEngineError("validate profile", "event column is required for "+p.Name, ErrSchema)
	case p.DaysParam <= 0:
		return newEngineError("validate profile", "days must be positive for "+p.Name, ErrSchema)
	case p.RollingWindow <= 0:
		return newEngineError("validate profile", "window must be positive for "+p.Name, ErrSchema)
	}
	return nil
}

// legacyCacheNames keeps the cache names of the two default events stable so
// existing caches and exports stay valid.
var legacyCacheNames = map[string]struct{ thresholds, indicators string }{
	"temperature":   {"daily_averaging_temperature_interpolated_thresholds", "all_temperature_interpolated_indicators"},
	"precipitation": {"daily_averaging_precipitation_thresholds", "all_precipitation_indicators"},
}

// ThresholdCacheName is the cache name of the profile's baseline curves.
func (p EventProfile) ThresholdCacheName() string {
	if legacy, ok := legacyCacheNames[p.Name]; ok {
		return legacy.thresholds
	}
	return "daily_averaging_" + p.Name + "_thresholds"
}

// IndicatorCacheName is the cache name of the profile's full indicator table.
// It also names the profile's indicator export.
func (p EventProfile) IndicatorCacheName() string {
	if legacy, ok := legacyCacheNames[p.Name]; ok {
		return legacy.indicators
	}
	return "all_" + p.Name + "_indicators"
}
