// Package postgres persists indicator rows and aggregated periods.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/weather-indicator-etl/internal/domain"
)

// rowsPerBatch bounds the statements queued in one pgx.Batch.
const rowsPerBatch = 5000

const schema = `
CREATE TABLE IF NOT EXISTS grid_indicators (
	event     TEXT             NOT NULL,
	lon       DOUBLE PRECISION NOT NULL,
	lat       DOUBLE PRECISION NOT NULL,
	day       DATE             NOT NULL,
	value     DOUBLE PRECISION NOT NULL,
	delta     DOUBLE PRECISION NOT NULL,
	extreme   BOOLEAN          NOT NULL,
	severity  DOUBLE PRECISION NOT NULL,
	ranking   SMALLINT         NOT NULL,
	spi       DOUBLE PRECISION,
	PRIMARY KEY (event, lon, lat, day)
);

CREATE TABLE IF NOT EXISTS indicator_aggregates (
	event       TEXT             NOT NULL,
	column_name TEXT             NOT NULL,
	level       TEXT             NOT NULL,
	year        INTEGER          NOT NULL,
	period      TEXT             NOT NULL,
	lon         DOUBLE PRECISION NOT NULL,
	lat         DOUBLE PRECISION NOT NULL,
	mean        DOUBLE PRECISION NOT NULL,
	max         DOUBLE PRECISION NOT NULL,
	min         DOUBLE PRECISION NOT NULL,
	run_id      TEXT             NOT NULL,
	PRIMARY KEY (event, column_name, level, year, period, lon, lat)
);`

// Store writes to PostgreSQL through a connection pool.
// It implements pipeline.IndicatorLoader and pipeline.AggregateLoader.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects, pings and creates the tables if they do not exist.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// LoadIndicators upserts every record of the table.
func (s *Store) LoadIndicators(ctx context.Context, p domain.EventProfile, t *domain.Table) error {
	for _, chunk := range domain.Batching(t.Records, rowsPerBatch) {
		batch := &pgx.Batch{}
		for i := range chunk {
			r := &chunk[i]
			var spi *float64
			if t.HasSPI {
				spi = &r.SPI
			}
			batch.Queue(
				`INSERT INTO grid_indicators (event, lon, lat, day, value, delta, extreme, severity, ranking, spi)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				 ON CONFLICT (event, lon, lat, day) DO UPDATE SET
				   value = $5, delta = $6, extreme = $7, severity = $8, ranking = $9, spi = $10`,
				p.Name, r.Lon, r.Lat, r.Date, r.Value, r.Delta, r.Extreme, r.Severity, r.Ranking, spi,
			)
		}
		if err := s.sendBatch(ctx, batch, len(chunk), "upsert indicator"); err != nil {
			return err
		}
	}
	s.logger.Info("indicators stored", "event", p.Name, "rows", len(t.Records))
	return nil
}

// LoadAggregates upserts the periods of one run.
func (s *Store) LoadAggregates(ctx context.Context, run domain.RunInfo, periods []domain.AggregatedPeriod) error {
	for _, chunk := range domain.Batching(periods, rowsPerBatch) {
		batch := &pgx.Batch{}
		for _, a := range chunk {
			batch.Queue(
				`INSERT INTO indicator_aggregates (event, column_name, level, year, period, lon, lat, mean, max, min, run_id)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				 ON CONFLICT (event, column_name, level, year, period, lon, lat) DO UPDATE SET
				   mean = $8, max = $9, min = $10, run_id = $11`,
				a.Event, string(a.Column), string(a.Level), a.Year, periodLabel(a), a.Lon, a.Lat, a.Mean, a.Max, a.Min, run.ID,
			)
		}
		if err := s.sendBatch(ctx, batch, len(chunk), "upsert aggregate"); err != nil {
			return err
		}
	}
	return nil
}

// Aggregates returns the stored periods of one event, level and column. It
// backs the results API when no run has completed in this process.
func (s *Store) Aggregates(ctx context.Context, event string, level domain.Level, column domain.Column) ([]domain.AggregatedPeriod, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT year, period, lon, lat, mean, max, min
		 FROM indicator_aggregates
		 WHERE event = $1 AND level = $2 AND column_name = $3
		 ORDER BY year, length(period), period, lon, lat`,
		event, string(level), string(column),
	)
	if err != nil {
		return nil, fmt.Errorf("query aggregates: %w", err)
	}
	defer rows.Close()

	var out []domain.AggregatedPeriod
	for rows.Next() {
		a := domain.AggregatedPeriod{Event: event, Level: level, Column: column}
		var period string
		if err := rows.Scan(&a.Year, &period, &a.Lon, &a.Lat, &a.Mean, &a.Max, &a.Min); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		if level == domain.LevelMonth {
			a.Month, _ = strconv.Atoi(period)
		} else if level == domain.LevelSeason {
			a.Season = period
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int, what string) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range n {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("%s: %w", what, err)
		}
	}
	return nil
}

// periodLabel is the month number, the season name, or "" for yearly periods.
func periodLabel(a domain.AggregatedPeriod) string {
	switch a.Level {
	case domain.LevelMonth:
		return strconv.Itoa(a.Month)
	case domain.LevelSeason:
		return a.Season
	default:
		return ""
	}
}
