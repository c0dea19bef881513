package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-indicator-etl/internal/cache"
	"github.com/couchcryptid/weather-indicator-etl/internal/domain"
	"github.com/couchcryptid/weather-indicator-etl/internal/pipeline"
)

// --- mocks ---

type mockSource struct {
	years []int
	err   error
	calls []string
}

func (m *mockSource) Extract(_ context.Context, p domain.EventProfile) (*domain.Table, error) {
	m.calls = append(m.calls, p.Name)
	if m.err != nil {
		return nil, m.err
	}
	return gridTable(p.Name, m.years, testCells), nil
}

// blockingSource holds Extract until the context is cancelled.
type blockingSource struct {
	started  chan struct{}
	once     sync.Once
	returned atomic.Bool
}

func (m *blockingSource) Extract(ctx context.Context, _ domain.EventProfile) (*domain.Table, error) {
	m.once.Do(func() { close(m.started) })
	<-ctx.Done()
	m.returned.Store(true)
	return nil, ctx.Err()
}

type mockIndicatorLoader struct {
	mu       sync.Mutex
	failures int
	err      error
	attempts int
	loaded   map[string]int
}

func (m *mockIndicatorLoader) LoadIndicators(_ context.Context, p domain.EventProfile, t *domain.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.err != nil {
		return m.err
	}
	if m.failures > 0 {
		m.failures--
		return errors.New("sink unavailable")
	}
	if m.loaded == nil {
		m.loaded = make(map[string]int)
	}
	m.loaded[p.Name] = len(t.Records)
	return nil
}

type mockAggregateLoader struct {
	mu      sync.Mutex
	runs    []domain.RunInfo
	periods []domain.AggregatedPeriod
}

func (m *mockAggregateLoader) LoadAggregates(_ context.Context, run domain.RunInfo, periods []domain.AggregatedPeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	m.periods = append(m.periods, periods...)
	return nil
}

func testAggregation() pipeline.AggregationConfig {
	return pipeline.AggregationConfig{
		Levels:  []domain.Level{domain.LevelMonth, domain.LevelSeason, domain.LevelYear},
		Columns: []domain.Column{domain.ColumnValue, domain.ColumnDelta, domain.ColumnSPI},
		Scheme:  domain.SeasonsNigeria,
	}
}

func testProfiles() []domain.EventProfile {
	precip := domain.EventProfile{
		Name:          "precipitation",
		Column:        "precipitation",
		DeltaParam:    15,
		DaysParam:     3,
		RollingWindow: 3,
		SPI:           true,
		IndexName:     "heavy_rain_index",
	}
	return []domain.EventProfile{temperatureProfile(), precip}
}

func newTestRunner(t *testing.T, src pipeline.RecordSource, ind pipeline.IndicatorLoader, agg pipeline.AggregateLoader) *pipeline.Runner {
	t.Helper()
	proc := pipeline.NewProcessor(newMemoryStore(t, cache.PolicyVerify), 3, testLogger(), newTestMetrics())
	var inds []pipeline.IndicatorLoader
	if ind != nil {
		inds = append(inds, ind)
	}
	var aggs []pipeline.AggregateLoader
	if agg != nil {
		aggs = append(aggs, agg)
	}
	r := pipeline.NewRunner(src, proc, inds, aggs, testAggregation(), testLogger(), newTestMetrics())
	r.SetRetryDelay(time.Millisecond)
	return r
}

// --- tests ---

func TestRunner_Run_HappyPath(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	domain.SetClock(fake)
	t.Cleanup(func() { domain.SetClock(nil) })

	src := &mockSource{years: []int{2001, 2002}}
	ind := &mockIndicatorLoader{}
	agg := &mockAggregateLoader{}
	r := newTestRunner(t, src, ind, agg)

	require.Error(t, r.CheckReadiness(context.Background()))
	_, ok := r.LatestRun()
	assert.False(t, ok)

	summary, err := r.Run(context.Background(), testProfiles())
	require.NoError(t, err)

	assert.Equal(t, []string{"temperature", "precipitation"}, src.calls)
	assert.NotEmpty(t, summary.ID)
	assert.Equal(t, fake.Now(), summary.StartedAt)
	require.Len(t, summary.Events, 2)
	assert.Equal(t, "temperature", summary.Events[0].Event)
	assert.False(t, summary.Events[0].HasSPI)
	assert.True(t, summary.Events[1].HasSPI)
	assert.Equal(t, 3, summary.Events[0].Cells)

	rows := 3 * (365 + 365)
	assert.Equal(t, map[string]int{"temperature": rows, "precipitation": rows}, ind.loaded)

	require.Len(t, agg.runs, 2)
	assert.Equal(t, summary.RunInfo, agg.runs[0])

	require.NoError(t, r.CheckReadiness(context.Background()))
	latest, ok := r.LatestRun()
	require.True(t, ok)
	assert.Equal(t, summary.ID, latest.ID)
}

func TestRunner_Aggregates(t *testing.T) {
	r := newTestRunner(t, &mockSource{years: []int{2001, 2002}}, nil, nil)
	_, err := r.Run(context.Background(), testProfiles())
	require.NoError(t, err)

	monthly, ok := r.Aggregates("temperature", domain.LevelMonth, domain.ColumnValue)
	require.True(t, ok)
	// 2 years x 12 months x 3 cells.
	assert.Len(t, monthly, 72)

	yearly, ok := r.Aggregates("precipitation", domain.LevelYear, domain.ColumnSPI)
	require.True(t, ok)
	assert.Len(t, yearly, 6)

	seasonal, ok := r.Aggregates("temperature", domain.LevelSeason, domain.ColumnDelta)
	require.True(t, ok)
	// Wet and Dry per year and cell.
	assert.Len(t, seasonal, 12)

	_, ok = r.Aggregates("temperature", domain.LevelYear, domain.ColumnSPI)
	assert.False(t, ok, "spi is skipped for events without it")
	_, ok = r.Aggregates("wind", domain.LevelYear, domain.ColumnValue)
	assert.False(t, ok)
}

func TestRunner_Run_RetriesLoader(t *testing.T) {
	ind := &mockIndicatorLoader{failures: 2}
	r := newTestRunner(t, &mockSource{years: []int{2001}}, ind, nil)

	_, err := r.Run(context.Background(), testProfiles()[:1])
	require.NoError(t, err)
	assert.Equal(t, 3, ind.attempts)
	assert.Contains(t, ind.loaded, "temperature")
}

func TestRunner_Run_LoaderGivesUp(t *testing.T) {
	ind := &mockIndicatorLoader{err: errors.New("disk full")}
	r := newTestRunner(t, &mockSource{years: []int{2001}}, ind, nil)

	_, err := r.Run(context.Background(), testProfiles())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 3, ind.attempts)

	require.Error(t, r.CheckReadiness(context.Background()))
}

func TestRunner_Run_ExtractError(t *testing.T) {
	src := &mockSource{err: domain.ErrSchema}
	r := newTestRunner(t, src, nil, nil)

	_, err := r.Run(context.Background(), testProfiles())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSchema)
	assert.Len(t, src.calls, 1, "run stops at the first failing event")
}

func TestRunner_Run_KeepsPreviousResultsOnFailure(t *testing.T) {
	src := &mockSource{years: []int{2001}}
	r := newTestRunner(t, src, nil, nil)

	first, err := r.Run(context.Background(), testProfiles())
	require.NoError(t, err)

	src.err = errors.New("input missing")
	_, err = r.Run(context.Background(), testProfiles())
	require.Error(t, err)

	latest, ok := r.LatestRun()
	require.True(t, ok)
	assert.Equal(t, first.ID, latest.ID)
	assert.NoError(t, r.CheckReadiness(context.Background()))
}

func TestRunner_Run_SecondRunUsesCache(t *testing.T) {
	r := newTestRunner(t, &mockSource{years: []int{2001}}, nil, nil)

	_, err := r.Run(context.Background(), testProfiles())
	require.NoError(t, err)
	second, err := r.Run(context.Background(), testProfiles())
	require.NoError(t, err)

	for _, e := range second.Events {
		assert.True(t, e.FromCache, e.Event)
	}
}

func TestRunner_Run_CancelledContext(t *testing.T) {
	src := &mockSource{years: []int{2001}}
	r := newTestRunner(t, src, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, testProfiles())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, src.calls)
}

func TestRunner_StartReportsCompletion(t *testing.T) {
	r := newTestRunner(t, &mockSource{years: []int{2001}}, &mockIndicatorLoader{}, nil)

	select {
	case err, ok := <-r.Start(context.Background(), testProfiles()):
		require.True(t, ok)
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("run did not finish")
	}
	assert.NoError(t, r.CheckReadiness(context.Background()))
}

func TestRunner_StartDoneWaitsForCancelledRun(t *testing.T) {
	src := &blockingSource{started: make(chan struct{})}
	r := newTestRunner(t, src, &mockIndicatorLoader{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := r.Start(ctx, testProfiles())
	<-src.started

	select {
	case <-done:
		t.Fatal("done closed while the run was still extracting")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
	assert.True(t, src.returned.Load(), "extract returned before done")
	assert.Error(t, r.CheckReadiness(context.Background()))

	_, open := <-done
	assert.False(t, open, "done is closed after the error")
}
