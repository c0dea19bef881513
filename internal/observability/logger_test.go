package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Levels(t *testing.T) {
	ctx := context.Background()

	logger := NewLogger("warn", "text")
	require.NotNil(t, logger)
	assert.False(t, logger.Enabled(ctx, slog.LevelInfo))
	assert.True(t, logger.Enabled(ctx, slog.LevelWarn))

	logger = NewLogger("debug", "json")
	assert.True(t, logger.Enabled(ctx, slog.LevelDebug))

	logger = NewLogger("bogus", "json")
	assert.False(t, logger.Enabled(ctx, slog.LevelDebug))
	assert.True(t, logger.Enabled(ctx, slog.LevelInfo))
}

func TestNewMetricsForTesting(t *testing.T) {
	m := NewMetricsForTesting()
	m.CacheLookups.WithLabelValues("thresholds", "hit").Inc()
	m.RecordsProcessed.WithLabelValues("temperature").Add(10)

	assert.Equal(t, 1.0, counterValue(t, m.CacheLookups.WithLabelValues("thresholds", "hit")))
	assert.Equal(t, 10.0, counterValue(t, m.RecordsProcessed.WithLabelValues("temperature")))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, c.Write(&metric))
	return metric.GetCounter().GetValue()
}
