package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/weather-indicator-etl/internal/domain"
	"github.com/couchcryptid/weather-indicator-etl/internal/observability"
)

// RecordSource reads the raw daily table of one event.
type RecordSource interface {
	Extract(ctx context.Context, p domain.EventProfile) (*domain.Table, error)
}

// IndicatorLoader writes a processed indicator table to a destination.
type IndicatorLoader interface {
	LoadIndicators(ctx context.Context, p domain.EventProfile, t *domain.Table) error
}

// AggregateLoader writes aggregated periods to a destination.
type AggregateLoader interface {
	LoadAggregates(ctx context.Context, run domain.RunInfo, periods []domain.AggregatedPeriod) error
}

// AggregationConfig selects the periods built after processing.
type AggregationConfig struct {
	Levels  []domain.Level
	Columns []domain.Column
	Scheme  domain.SeasonScheme
}

type aggregateKey struct {
	event  string
	level  domain.Level
	column domain.Column
}

// Runner orchestrates extract, process, aggregate and load for every event
// profile. Runs are sequential.
type Runner struct {
	source      RecordSource
	processor   *Processor
	indicators  []IndicatorLoader
	aggregates  []AggregateLoader
	aggregation AggregationConfig
	logger      *slog.Logger
	metrics     *observability.Metrics
	retryDelay  time.Duration

	ready   atomic.Bool
	running sync.Mutex

	mu      sync.RWMutex
	latest  *domain.RunSummary
	periods map[aggregateKey][]domain.AggregatedPeriod
}

// NewRunner creates a Runner with the given stages and observability.
func NewRunner(source RecordSource, processor *Processor, indicators []IndicatorLoader, aggregates []AggregateLoader,
	aggregation AggregationConfig, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		source:      source,
		processor:   processor,
		indicators:  indicators,
		aggregates:  aggregates,
		aggregation: aggregation,
		logger:      logger,
		metrics:     metrics,
		retryDelay:  initialBackoff,
		periods:     make(map[aggregateKey][]domain.AggregatedPeriod),
	}
}

// CheckReadiness returns nil once a run has completed, or an error
// describing why the service is not yet ready.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no indicator run has completed yet")
	}
	return nil
}

// Run processes every profile in order and publishes the results. Any stage
// failure aborts the run; results of earlier runs stay available.
func (r *Runner) Run(ctx context.Context, profiles []domain.EventProfile) (*domain.RunSummary, error) {
	r.running.Lock()
	defer r.running.Unlock()

	run := domain.RunInfo{ID: uuid.NewString(), StartedAt: domain.Now().UTC()}
	log := r.logger.With("run_id", run.ID)
	log.Info("run started", "events", len(profiles))
	r.metrics.PipelineRunning.Set(1)
	defer r.metrics.PipelineRunning.Set(0)

	summary := &domain.RunSummary{RunInfo: run}
	periods := make(map[aggregateKey][]domain.AggregatedPeriod)

	for _, profile := range profiles {
		if err := ctx.Err(); err != nil {
			log.Info("run stopping", "reason", err)
			return nil, err
		}
		es, err := r.runEvent(ctx, run, profile, periods, log.With("event", profile.Name))
		if err != nil {
			return nil, err
		}
		summary.Events = append(summary.Events, es)
	}

	summary.FinishedAt = domain.Now().UTC()
	r.mu.Lock()
	r.latest = summary
	r.periods = periods
	r.mu.Unlock()
	r.ready.Store(true)

	r.metrics.RunDuration.Observe(summary.FinishedAt.Sub(run.StartedAt).Seconds())
	r.metrics.LastRunTimestamp.Set(float64(summary.FinishedAt.Unix()))
	log.Info("run finished", "events", len(summary.Events))
	return summary, nil
}

// Start runs profiles in the background. The returned channel receives the
// run's error, nil on success, and is closed once Run has returned, so callers
// can wait for in-flight sinks before closing them.
func (r *Runner) Start(ctx context.Context, profiles []domain.EventProfile) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		_, err := r.Run(ctx, profiles)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("indicator run failed", "error", err)
		}
		done <- err
	}()
	return done
}

func (r *Runner) runEvent(ctx context.Context, run domain.RunInfo, profile domain.EventProfile,
	periods map[aggregateKey][]domain.AggregatedPeriod, log *slog.Logger) (domain.EventSummary, error) {
	table, err := r.source.Extract(ctx, profile)
	if err != nil {
		r.metrics.RunErrors.WithLabelValues(profile.Name, "extract").Inc()
		return domain.EventSummary{}, fmt.Errorf("extract %s: %w", profile.Name, err)
	}

	result, err := r.processor.Process(ctx, table, profile)
	if err != nil {
		r.metrics.RunErrors.WithLabelValues(profile.Name, "process").Inc()
		return domain.EventSummary{}, fmt.Errorf("process %s: %w", profile.Name, err)
	}
	processed := result.Table
	summary := domain.Summarize(processed, profile)
	summary.FromCache = result.FromCache
	r.metrics.RecordsProcessed.WithLabelValues(profile.Name).Add(float64(summary.Rows))
	r.metrics.ExtremeDays.WithLabelValues(profile.Name, rankingLabel(1)).Add(float64(summary.ExtremeDays - summary.SustainedDays))
	r.metrics.ExtremeDays.WithLabelValues(profile.Name, rankingLabel(2)).Add(float64(summary.SustainedDays))

	var all []domain.AggregatedPeriod
	for _, level := range r.aggregation.Levels {
		for _, column := range r.aggregation.Columns {
			if column == domain.ColumnSPI && !processed.HasSPI {
				continue
			}
			agg, err := domain.Aggregate(processed, column, level, r.aggregation.Scheme)
			if err != nil {
				r.metrics.RunErrors.WithLabelValues(profile.Name, "aggregate").Inc()
				return domain.EventSummary{}, fmt.Errorf("aggregate %s by %s: %w", column, level, err)
			}
			periods[aggregateKey{event: profile.Name, level: level, column: column}] = agg
			all = append(all, agg...)
			r.metrics.AggregatesPublished.WithLabelValues(profile.Name, string(level)).Add(float64(len(agg)))
		}
	}

	for _, loader := range r.indicators {
		err := withRetry(ctx, maxAttempts, r.retryDelay, func(ctx context.Context) error {
			return loader.LoadIndicators(ctx, profile, processed)
		})
		if err != nil {
			r.metrics.RunErrors.WithLabelValues(profile.Name, "load").Inc()
			return domain.EventSummary{}, fmt.Errorf("load %s indicators: %w", profile.Name, err)
		}
	}
	for _, loader := range r.aggregates {
		err := withRetry(ctx, maxAttempts, r.retryDelay, func(ctx context.Context) error {
			return loader.LoadAggregates(ctx, run, all)
		})
		if err != nil {
			r.metrics.RunErrors.WithLabelValues(profile.Name, "load").Inc()
			return domain.EventSummary{}, fmt.Errorf("load %s aggregates: %w", profile.Name, err)
		}
	}

	log.Info("event processed",
		"rows", summary.Rows,
		"extreme_days", summary.ExtremeDays,
		"sustained_days", summary.SustainedDays,
		"aggregates", len(all),
		"from_cache", summary.FromCache,
	)
	return summary, nil
}

// LatestRun returns the summary of the last completed run.
func (r *Runner) LatestRun() (domain.RunSummary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.latest == nil {
		return domain.RunSummary{}, false
	}
	return *r.latest, true
}

// Aggregates returns the periods of the last completed run for one event,
// level and column.
func (r *Runner) Aggregates(event string, level domain.Level, column domain.Column) ([]domain.AggregatedPeriod, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	periods, ok := r.periods[aggregateKey{event: event, level: level, column: column}]
	return periods, ok
}

// rankingLabel is the metric label of a ranking bucket.
func rankingLabel(ranking int) string {
	return strconv.Itoa(ranking)
}
