// Package kafka publishes job lifecycle events to the configured topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/lidar-raster-etl/internal/config"
	"github.com/couchcryptid/lidar-raster-etl/internal/domain"
)

// Writer produces dataset state-transition events to a Kafka topic.
// It implements pipeline.EventPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured events topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishTransition serializes and publishes one job event. Events are keyed
// by job id so all transitions of a job land on one partition in order.
func (w *Writer) PublishTransition(ctx context.Context, event domain.JobEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a JobEvent into a Kafka message.
func serializeToMessage(event domain.JobEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize job event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.JobID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "dataset", Value: []byte(event.Dataset)},
			{Key: "state", Value: []byte(event.State)},
		},
	}, nil
}
