// Package csv reads gridded daily climate CSV files and writes indicator tables.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/weather-indicator-etl/internal/config"
	"github.com/couchcryptid/weather-indicator-etl/internal/domain"
)

var dateLayouts = []string{
	time.DateOnly,
	time.DateTime,
	time.RFC3339,
	"2006/01/02",
}

// Reader loads one event table per profile from the profile's input file.
type Reader struct {
	columns config.Columns
	logger  *slog.Logger
}

// NewReader creates a Reader for files using the given column names.
func NewReader(columns config.Columns, logger *slog.Logger) *Reader {
	return &Reader{columns: columns, logger: logger}
}

// Extract reads p.Input and returns its records as a table with arena IDs assigned.
func (r *Reader) Extract(ctx context.Context, p domain.EventProfile) (*domain.Table, error) {
	f, err := os.Open(p.Input)
	if err != nil {
		return nil, fmt.Errorf("open %s input: %w", p.Name, err)
	}
	defer f.Close()

	table, err := r.Read(ctx, f, p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.Input, err)
	}
	r.logger.Info("input loaded", "event", p.Name, "path", p.Input, "rows", len(table.Records))
	return table, nil
}

// Read parses CSV records from src. Missing columns, unparseable dates and
// unparseable values are schema errors.
func (r *Reader) Read(ctx context.Context, src io.Reader, p domain.EventProfile) (*domain.Table, error) {
	cr := csv.NewReader(src)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, schemaError("read header", err)
	}
	idx, err := columnIndex(header, r.columns.Lon, r.columns.Lat, r.columns.Date, p.Column)
	if err != nil {
		return nil, err
	}
	lonIdx, latIdx, dateIdx, valueIdx := idx[0], idx[1], idx[2], idx[3]

	var records []domain.DailyRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, schemaError(fmt.Sprintf("line %d", line), err)
		}
		if line%100_000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		rec := domain.DailyRecord{}
		if rec.Lon, err = parseFloat(row[lonIdx]); err != nil {
			return nil, schemaError(fmt.Sprintf("line %d column %s", line, r.columns.Lon), err)
		}
		if rec.Lat, err = parseFloat(row[latIdx]); err != nil {
			return nil, schemaError(fmt.Sprintf("line %d column %s", line, r.columns.Lat), err)
		}
		if rec.Date, err = parseDate(row[dateIdx]); err != nil {
			return nil, schemaError(fmt.Sprintf("line %d column %s", line, r.columns.Date), err)
		}
		if rec.Value, err = parseFloat(row[valueIdx]); err != nil {
			return nil, schemaError(fmt.Sprintf("line %d column %s", line, p.Column), err)
		}
		records = append(records, rec)
	}

	domain.ExtractTimescales(records)
	return domain.NewTable(p.Name, records), nil
}

// columnIndex resolves the position of every named column in header.
func columnIndex(header []string, names ...string) ([]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}
	out := make([]int, len(names))
	for i, name := range names {
		j, ok := pos[name]
		if !ok {
			return nil, fmt.Errorf("missing column %q: %w", name, domain.ErrSchema)
		}
		out[i] = j
	}
	return out, nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) {
		return 0, errors.New("value is NaN")
	}
	if math.IsInf(v, 0) {
		return 0, errors.New("value is infinite")
	}
	return v, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func schemaError(where string, err error) error {
	return fmt.Errorf("%s: %w: %w", where, domain.ErrSchema, err)
}
