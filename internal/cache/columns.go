package cache

import (
	"fmt"
	"time"

	"github.com/couchcryptid/weather-indicator-etl/internal/domain"
)

// indicatorColumns is the columnar cache layout of an indicator table.
type indicatorColumns struct {
	Event    string      `json:"event"`
	HasSPI   bool        `json:"has_spi"`
	Lon      []float64   `json:"lon"`
	Lat      []float64   `json:"lat"`
	Date     []time.Time `json:"date"`
	Value    []float64   `json:"value"`
	Delta    []float64   `json:"delta"`
	Extreme  []bool      `json:"extreme"`
	Severity []float64   `json:"severity"`
	Ranking  []int       `json:"ranking"`
	SPI      []float64   `json:"spi,omitempty"`
}

func newIndicatorColumns(t *domain.Table) indicatorColumns {
	n := len(t.Records)
	c := indicatorColumns{
		Event:    t.Event,
		HasSPI:   t.HasSPI,
		Lon:      make([]float64, n),
		Lat:      make([]float64, n),
		Date:     make([]time.Time, n),
		Value:    make([]float64, n),
		Delta:    make([]float64, n),
		Extreme:  make([]bool, n),
		Severity: make([]float64, n),
		Ranking:  make([]int, n),
	}
	if t.HasSPI {
		c.SPI = make([]float64, n)
	}
	for i := range t.Records {
		r := &t.Records[i]
		c.Lon[i], c.Lat[i], c.Date[i] = r.Lon, r.Lat, r.Date
		c.Value[i], c.Delta[i], c.Extreme[i] = r.Value, r.Delta, r.Extreme
		c.Severity[i], c.Ranking[i] = r.Severity, r.Ranking
		if t.HasSPI {
			c.SPI[i] = r.SPI
		}
	}
	return c
}

func (c indicatorColumns) table() (*domain.Table, error) {
	n := len(c.Lon)
	for name, l := range map[string]int{
		"lat": len(c.Lat), "date": len(c.Date), "value": len(c.Value), "delta": len(c.Delta),
		"extreme": len(c.Extreme), "severity": len(c.Severity), "ranking": len(c.Ranking),
	} {
		if l != n {
			return nil, fmt.Errorf("column %s has %d rows, want %d", name, l, n)
		}
	}
	if c.HasSPI && len(c.SPI) != n {
		return nil, fmt.Errorf("column spi has %d rows, want %d", len(c.SPI), n)
	}

	records := make([]domain.DailyRecord, n)
	for i := range records {
		records[i] = domain.DailyRecord{
			Lon:      c.Lon[i],
			Lat:      c.Lat[i],
			Date:     c.Date[i],
			Value:    c.Value[i],
			Delta:    c.Delta[i],
			Extreme:  c.Extreme[i],
			Severity: c.Severity[i],
			Ranking:  c.Ranking[i],
			Scored:   true,
		}
		if c.HasSPI {
			records[i].SPI = c.SPI[i]
		}
	}
	domain.ExtractTimescales(records)
	table := domain.NewTable(c.Event, records)
	table.HasSPI = c.HasSPI
	return table, nil
}
