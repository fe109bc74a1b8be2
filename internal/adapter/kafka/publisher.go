// Package kafka publishes pipeline lifecycle events so downstream
// consumers (dashboards, alerting) can react without polling the API.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/surge-forecast/internal/config"
	"github.com/couchcryptid/surge-forecast/internal/domain"
	"github.com/couchcryptid/surge-forecast/internal/observability"
)

// Event types carried in the event_type message header.
const (
	EventReadingRefreshed  = "reading.refreshed"
	EventPredictionCreated = "prediction.created"
)

// Publisher produces reading and prediction events to their topics.
type Publisher struct {
	readings    *kafkago.Writer
	predictions *kafkago.Writer
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewPublisher creates a Kafka producer for the configured event topics.
func NewPublisher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		readings:    newWriter(cfg.KafkaBrokers, cfg.ReadingsTopic),
		predictions: newWriter(cfg.KafkaBrokers, cfg.PredictionsTopic),
		logger:      logger,
		metrics:     metrics,
	}
}

func newWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
}

// ReadingRefreshed publishes a reading event keyed by location so all
// events for one city land on the same partition in order.
func (p *Publisher) ReadingRefreshed(ctx context.Context, reading domain.Reading) error {
	msg, err := serializeReading(reading)
	if err != nil {
		return err
	}
	return p.publish(ctx, p.readings, msg)
}

// PredictionCreated publishes a prediction event keyed by location.
func (p *Publisher) PredictionCreated(ctx context.Context, prediction domain.Prediction) error {
	msg, err := serializePrediction(prediction)
	if err != nil {
		return err
	}
	return p.publish(ctx, p.predictions, msg)
}

func (p *Publisher) publish(ctx context.Context, w *kafkago.Writer, msg kafkago.Message) error {
	if err := w.WriteMessages(ctx, msg); err != nil {
		p.metrics.EventsPublished.WithLabelValues(w.Topic, "error").Inc()
		p.logger.Error("publish event failed", "topic", w.Topic, "error", err)
		return fmt.Errorf("publish to %s: %w", w.Topic, err)
	}
	p.metrics.EventsPublished.WithLabelValues(w.Topic, "success").Inc()
	return nil
}

// Close flushes and closes both topic writers.
func (p *Publisher) Close() error {
	rerr := p.readings.Close()
	perr := p.predictions.Close()
	if rerr != nil {
		return rerr
	}
	return perr
}

// serializeReading marshals a Reading into a Kafka message.
func serializeReading(reading domain.Reading) (kafkago.Message, error) {
	data, err := json.Marshal(reading)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize reading event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(reading.Location),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(EventReadingRefreshed)},
			{Key: "signal", Value: []byte(reading.Signal)},
			{Key: "captured_at", Value: []byte(reading.CapturedAt.Format(time.RFC3339))},
		},
	}, nil
}

// serializePrediction marshals a Prediction into a Kafka message.
func serializePrediction(prediction domain.Prediction) (kafkago.Message, error) {
	data, err := json.Marshal(prediction)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize prediction event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(prediction.Location),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(EventPredictionCreated)},
			{Key: "engine_version", Value: []byte(prediction.EngineVersion)},
			{Key: "generated_at", Value: []byte(prediction.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}

// Noop satisfies the publisher contracts when Kafka is disabled.
type Noop struct{}

func (Noop) ReadingRefreshed(context.Context, domain.Reading) error     { return nil }
func (Noop) PredictionCreated(context.Context, domain.Prediction) error { return nil }
func (Noop) Close() error                                               { return nil }
