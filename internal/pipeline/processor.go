package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/couchcryptid/weather-indicator-etl/internal/cache"
	"github.com/couchcryptid/weather-indicator-etl/internal/domain"
	"github.com/couchcryptid/weather-indicator-etl/internal/observability"
)

// ArtifactStore persists baselines and indicator tables between runs.
// *cache.Store implements it.
type ArtifactStore interface {
	LoadThresholds(ctx context.Context, name, fingerprint string) (domain.ThresholdMap, error)
	SaveThresholds(ctx context.Context, name, fingerprint string, thresholds domain.ThresholdMap) error
	LoadIndicators(ctx context.Context, name, fingerprint string) (*domain.Table, error)
	SaveIndicators(ctx context.Context, name, fingerprint string, table *domain.Table) error
}

// Processor derives the indicator table of one event, a few years at a time.
type Processor struct {
	store     ArtifactStore
	batchSize int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewProcessor creates a Processor. Datasets spanning more than batchSize
// years are processed in consecutive year batches.
func NewProcessor(store ArtifactStore, batchSize int, logger *slog.Logger, metrics *observability.Metrics) *Processor {
	return &Processor{
		store:     store,
		batchSize: batchSize,
		logger:    logger,
		metrics:   metrics,
	}
}

// Result is a processed table and whether it came from the cache.
type Result struct {
	Table     *domain.Table
	FromCache bool
}

// Process returns the indicator table for the event described by p. A cached
// table is returned as is when the store allows it; otherwise baselines are
// loaded or built, every year batch is scored in isolation, and the
// concatenated table is cached.
func (p *Processor) Process(ctx context.Context, table *domain.Table, profile domain.EventProfile) (Result, error) {
	if err := profile.Validate(); err != nil {
		return Result{}, err
	}
	log := p.logger.With("event", profile.Name)

	indicatorName := profile.IndicatorCacheName()
	indicatorFP := cache.IndicatorFingerprint(table.Records, profile)
	cached, err := p.store.LoadIndicators(ctx, indicatorName, indicatorFP)
	switch {
	case err == nil:
		p.metrics.CacheLookups.WithLabelValues("indicators", "hit").Inc()
		log.Info("indicators loaded from cache", "name", indicatorName, "rows", len(cached.Records))
		return Result{Table: cached, FromCache: true}, nil
	case errors.Is(err, cache.ErrCacheMiss):
		p.metrics.CacheLookups.WithLabelValues("indicators", "miss").Inc()
	default:
		return Result{}, fmt.Errorf("load indicators: %w", err)
	}

	domain.ExtractTimescales(table.Records)
	thresholds, err := p.thresholds(ctx, table, profile, log)
	if err != nil {
		return Result{}, err
	}

	years := table.Years()
	batches := [][]int{years}
	if len(years) > p.batchSize {
		batches = domain.Batching(years, p.batchSize)
	}

	out := make([]domain.DailyRecord, 0, len(table.Records))
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		start := domain.Now()
		scored, err := scoreBatch(table.Records, batch, thresholds, profile)
		if err != nil {
			return Result{}, fmt.Errorf("%s years %d-%d: %w", profile.Name, batch[0], batch[len(batch)-1], err)
		}
		out = append(out, scored...)

		p.metrics.YearBatches.WithLabelValues(profile.Name).Inc()
		p.metrics.BatchProcessingDuration.Observe(domain.Now().Sub(start).Seconds())
		log.Debug("year batch processed", "batch", i+1, "of", len(batches), "years", batch, "rows", len(scored))
	}

	result := domain.NewTable(profile.Name, out)
	if profile.SPI {
		domain.ComputeSPI(result.Records)
		result.HasSPI = true
	}

	if err := p.store.SaveIndicators(ctx, indicatorName, indicatorFP, result); err != nil {
		return Result{}, fmt.Errorf("save indicators: %w", err)
	}
	log.Info("indicators computed", "rows", len(result.Records), "batches", len(batches))
	return Result{Table: result}, nil
}

func (p *Processor) thresholds(ctx context.Context, table *domain.Table, profile domain.EventProfile, log *slog.Logger) (domain.ThresholdMap, error) {
	name := profile.ThresholdCacheName()
	fp := cache.ThresholdFingerprint(table.Records, profile.RollingWindow)

	thresholds, err := p.store.LoadThresholds(ctx, name, fp)
	switch {
	case err == nil:
		p.metrics.CacheLookups.WithLabelValues("thresholds", "hit").Inc()
		log.Info("thresholds loaded from cache", "name", name, "cells", len(thresholds))
		return thresholds, nil
	case errors.Is(err, cache.ErrCacheMiss):
		p.metrics.CacheLookups.WithLabelValues("thresholds", "miss").Inc()
	default:
		return nil, fmt.Errorf("load thresholds: %w", err)
	}

	thresholds, err = domain.ComputeThresholds(table.Records, profile.RollingWindow)
	if err != nil {
		return nil, err
	}
	if err := p.store.SaveThresholds(ctx, name, fp, thresholds); err != nil {
		return nil, fmt.Errorf("save thresholds: %w", err)
	}
	log.Info("thresholds computed", "name", name, "cells", len(thresholds))
	return thresholds, nil
}

// scoreBatch copies the records of the given years and runs anomaly
// detection and severity ranking on the copy.
func scoreBatch(records []domain.DailyRecord, years []int, thresholds domain.ThresholdMap, profile domain.EventProfile) ([]domain.DailyRecord, error) {
	var batch []domain.DailyRecord
	for i := range records {
		if slices.Contains(years, records[i].Year) {
			batch = append(batch, records[i])
		}
	}
	if err := domain.ComputeDeltas(batch, thresholds, profile.DeltaParam); err != nil {
		return nil, err
	}
	domain.InitializeNonExtreme(batch)
	if err := domain.ComputeSeverityRanking(batch, profile.DaysParam); err != nil {
		return nil, err
	}
	return batch, nil
}
