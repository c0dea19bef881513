package domain

import (
	"math"
	"time"
)

// ExposureRow is the compact per-day view joined against household surveys.
// Index carries the record's delta under the profile's index name.
type ExposureRow struct {
	Date  time.Time
	Lat   float64
	Lon   float64
	Month int
	Year  int
	Value float64
	Index float64
	SPI   float64
}

// ExposureTable is an indicator table projected for survey exposure joins.
type ExposureTable struct {
	Event     string
	IndexName string
	HasSPI    bool
	Rows      []ExposureRow
}

// ProjectExposure keeps the columns used downstream and rounds every float
// column to one decimal.
func ProjectExposure(t *Table, p EventProfile) *ExposureTable {
	out := &ExposureTable{
		Event:     t.Event,
		IndexName: p.IndexName,
		HasSPI:    t.HasSPI,
		Rows:      make([]ExposureRow, len(t.Records)),
	}
	if out.IndexName == "" {
		out.IndexName = t.Event + "_index"
	}
	for i := range t.Records {
		r := &t.Records[i]
		row := ExposureRow{
			Date:  r.Date,
			Lat:   round1(r.Lat),
			Lon:   round1(r.Lon),
			Month: r.Month,
			Year:  r.Year,
			Value: round1(r.Value),
			Index: round1(r.Delta),
		}
		if t.HasSPI {
			row.SPI = round1(r.SPI)
		}
		out.Rows[i] = row
	}
	return out
}

func round1(v float64) float64 {
	return math.RoundToEven(v*10) / 10
}
