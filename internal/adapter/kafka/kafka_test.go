package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-indicator-etl/internal/domain"
)

type recordingWriter struct {
	calls  [][]kafkago.Message
	err    error
	closed bool
}

func (r *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, msgs)
	return nil
}

func (r *recordingWriter) Close() error {
	r.closed = true
	return nil
}

func testRun() domain.RunInfo {
	return domain.RunInfo{ID: "run-1", StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func samplePeriod() domain.AggregatedPeriod {
	return domain.AggregatedPeriod{
		Event: "temperature", Column: domain.ColumnDelta, Level: domain.LevelSeason,
		Year: 2012, Season: "Wet", Lon: 7.5, Lat: 9, Mean: 1.25, Max: 6, Min: 0,
	}
}

func TestSerializeToMessage(t *testing.T) {
	msg, err := serializeToMessage(testRun(), samplePeriod())
	require.NoError(t, err)

	assert.Equal(t, []byte("temperature|delta|season|2012|Wet|7.5-9"), msg.Key)
	assert.JSONEq(t, `{
		"run_id":"run-1","event":"temperature","column":"delta","level":"season",
		"year":2012,"season":"Wet","lon":7.5,"lat":9,"mean":1.25,"max":6,"min":0
	}`, string(msg.Value))

	require.Len(t, msg.Headers, 4)
	assert.Equal(t, "event", msg.Headers[0].Key)
	assert.Equal(t, []byte("temperature"), msg.Headers[0].Value)
	assert.Equal(t, "level", msg.Headers[1].Key)
	assert.Equal(t, []byte("season"), msg.Headers[1].Value)
	assert.Equal(t, "run_id", msg.Headers[2].Key)
	assert.Equal(t, []byte("run-1"), msg.Headers[2].Value)
	assert.Equal(t, []byte("2026-03-01T12:00:00Z"), msg.Headers[3].Value)
}

func TestWriter_LoadAggregates(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("splits large loads", func(t *testing.T) {
		rec := &recordingWriter{}
		w := &Writer{writer: rec, logger: logger}
		periods := make([]domain.AggregatedPeriod, maxMessagesPerWrite+5)
		for i := range periods {
			periods[i] = samplePeriod()
			periods[i].Year = 1900 + i
		}

		require.NoError(t, w.LoadAggregates(context.Background(), testRun(), periods))
		require.Len(t, rec.calls, 2)
		assert.Len(t, rec.calls[0], maxMessagesPerWrite)
		assert.Len(t, rec.calls[1], 5)
	})

	t.Run("empty is a no-op", func(t *testing.T) {
		rec := &recordingWriter{}
		w := &Writer{writer: rec, logger: logger}
		require.NoError(t, w.LoadAggregates(context.Background(), testRun(), nil))
		assert.Empty(t, rec.calls)
	})

	t.Run("write failure", func(t *testing.T) {
		rec := &recordingWriter{err: errors.New("broker down")}
		w := &Writer{writer: rec, logger: logger}
		err := w.LoadAggregates(context.Background(), testRun(), []domain.AggregatedPeriod{samplePeriod()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broker down")
	})

	t.Run("close", func(t *testing.T) {
		rec := &recordingWriter{}
		w := &Writer{writer: rec, logger: logger}
		require.NoError(t, w.Close())
		assert.True(t, rec.closed)
	})
}
