package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/weather-indicator-etl/internal/config"
	"github.com/couchcryptid/weather-indicator-etl/internal/domain"
)

// Writer exports processed tables as CSV files under a directory.
type Writer struct {
	dir    string
	format string
	logger *slog.Logger
}

// NewWriter creates a Writer. format is config.ExportIndicators or config.ExportExposure.
func NewWriter(dir, format string, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, format: format, logger: logger}
}

// LoadIndicators writes the table for p to <dir>/<name>.csv, replacing any
// previous export atomically.
func (w *Writer) LoadIndicators(ctx context.Context, p domain.EventProfile, t *domain.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	name := p.IndicatorCacheName()
	if w.format == config.ExportExposure {
		name = p.Name + "_exposure"
	}
	path := filepath.Join(w.dir, name+".csv")

	tmp, err := os.CreateTemp(w.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	if w.format == config.ExportExposure {
		err = WriteExposure(tmp, domain.ProjectExposure(t, p), p.Column)
	} else {
		err = WriteIndicators(tmp, t, p.Column)
	}
	if err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}

	w.logger.Info("indicators exported", "event", p.Name, "path", path, "rows", len(t.Records), "format", w.format)
	return nil
}

// WriteIndicators writes the full indicator table. valueColumn names the
// event value column in the header.
func WriteIndicators(dst io.Writer, t *domain.Table, valueColumn string) error {
	cw := csv.NewWriter(dst)
	header := []string{"date", "lon", "lat", valueColumn, "month", "year", "delta", "extreme", "severity", "ranking"}
	if t.HasSPI {
		header = append(header, "spi", "spi_category")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for i := range t.Records {
		r := &t.Records[i]
		row[0] = r.Date.Format(time.DateOnly)
		row[1] = formatFloat(r.Lon)
		row[2] = formatFloat(r.Lat)
		row[3] = formatFloat(r.Value)
		row[4] = strconv.Itoa(r.Month)
		row[5] = strconv.Itoa(r.Year)
		row[6] = formatFloat(r.Delta)
		row[7] = strconv.FormatBool(r.Extreme)
		row[8] = formatFloat(r.Severity)
		row[9] = strconv.Itoa(r.Ranking)
		if t.HasSPI {
			row[10] = formatFloat(r.SPI)
			row[11] = domain.SPICategory(r.SPI)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteExposure writes the exposure projection used for survey joins.
func WriteExposure(dst io.Writer, e *domain.ExposureTable, valueColumn string) error {
	cw := csv.NewWriter(dst)
	header := []string{"date", "lat", "lon", "month", "year", valueColumn, e.IndexName}
	if e.HasSPI {
		header = append(header, "spi_index")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for i := range e.Rows {
		r := &e.Rows[i]
		row[0] = r.Date.Format(time.DateOnly)
		row[1] = formatFloat(r.Lat)
		row[2] = formatFloat(r.Lon)
		row[3] = strconv.Itoa(r.Month)
		row[4] = strconv.Itoa(r.Year)
		row[5] = formatFloat(r.Value)
		row[6] = formatFloat(r.Index)
		if e.HasSPI {
			row[7] = formatFloat(r.SPI)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadIndicators parses a table written by WriteIndicators. Every record is
// marked scored.
func ReadIndicators(src io.Reader, event, valueColumn string) (*domain.Table, error) {
	cr := csv.NewReader(src)
	header, err := cr.Read()
	if err != nil {
		return nil, schemaError("read header", err)
	}
	idx, err := columnIndex(header, "date", "lon", "lat", valueColumn, "delta", "extreme", "severity", "ranking")
	if err != nil {
		return nil, err
	}
	spiIdx, err := columnIndex(header, "spi")
	hasSPI := err == nil

	var records []domain.DailyRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, schemaError(fmt.Sprintf("line %d", line), err)
		}
		rec, err := parseIndicatorRow(row, idx)
		if err != nil {
			return nil, schemaError(fmt.Sprintf("line %d", line), err)
		}
		if hasSPI {
			if rec.SPI, err = parseFloat(row[spiIdx[0]]); err != nil {
				return nil, schemaError(fmt.Sprintf("line %d column spi", line), err)
			}
		}
		records = append(records, rec)
	}

	domain.ExtractTimescales(records)
	table := domain.NewTable(event, records)
	table.HasSPI = hasSPI
	return table, nil
}

func parseIndicatorRow(row []string, idx []int) (domain.DailyRecord, error) {
	var rec domain.DailyRecord
	var err error
	if rec.Date, err = parseDate(row[idx[0]]); err != nil {
		return rec, err
	}
	floats := []*float64{&rec.Lon, &rec.Lat, &rec.Value, &rec.Delta}
	for i, dst := range floats {
		if *dst, err = parseFloat(row[idx[i+1]]); err != nil {
			return rec, err
		}
	}
	if rec.Extreme, err = strconv.ParseBool(row[idx[5]]); err != nil {
		return rec, err
	}
	if rec.Severity, err = parseFloat(row[idx[6]]); err != nil {
		return rec, err
	}
	if rec.Ranking, err = strconv.Atoi(row[idx[7]]); err != nil {
		return rec, err
	}
	rec.Scored = true
	return rec, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
