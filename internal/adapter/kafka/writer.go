package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/weather-indicator-etl/internal/config"
	"github.com/couchcryptid/weather-indicator-etl/internal/domain"
)

// maxMessagesPerWrite caps a single WriteMessages call.
const maxMessagesPerWrite = 1000

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes aggregated periods to a Kafka topic.
// It implements pipeline.AggregateLoader.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured aggregate topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadAggregates serializes and publishes the periods of one run. Messages
// are keyed by period so a cell's history stays on one partition.
func (w *Writer) LoadAggregates(ctx context.Context, run domain.RunInfo, periods []domain.AggregatedPeriod) error {
	if len(periods) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(periods))
	for i := range periods {
		msg, err := serializeToMessage(run, periods[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	for _, batch := range domain.Batching(msgs, maxMessagesPerWrite) {
		if err := w.writer.WriteMessages(ctx, batch...); err != nil {
			return fmt.Errorf("publish aggregates: %w", err)
		}
	}
	w.logger.Debug("aggregates published", "run_id", run.ID, "messages", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

type aggregateMessage struct {
	RunID string `json:"run_id"`
	domain.AggregatedPeriod
}

// serializeToMessage marshals one aggregated period into a Kafka message.
func serializeToMessage(run domain.RunInfo, p domain.AggregatedPeriod) (kafkago.Message, error) {
	data, err := json.Marshal(aggregateMessage{RunID: run.ID, AggregatedPeriod: p})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize aggregate %s: %w", p.Key(), err)
	}
	return kafkago.Message{
		Key:   []byte(p.Key()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event", Value: []byte(p.Event)},
			{Key: "level", Value: []byte(p.Level)},
			{Key: "run_id", Value: []byte(run.ID)},
			{Key: "run_started_at", Value: []byte(run.StartedAt.Format(time.RFC3339))},
		},
	}, nil
}
