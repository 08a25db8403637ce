// Package kafka publishes successful in-memory mutations as a JSON event
// stream: one message per registered user or provisioned weather record.
// Consumers use it to keep downstream copies current without polling the
// server's flat files.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nimbusline/weatherline/internal/config"
	"github.com/nimbusline/weatherline/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	eventUserRegistered     = "user_registered"
	eventWeatherProvisioned = "weather_provisioned"
)

// Publisher produces mutation events to a Kafka topic.
// It implements domain.Sink.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured sink topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// UserRegistered publishes one event keyed by username. The password is
// deliberately not part of the payload.
func (p *Publisher) UserRegistered(ctx context.Context, user domain.User) error {
	payload := struct {
		Username string      `json:"username"`
		Role     domain.Role `json:"role"`
	}{user.Username, user.Role}

	msg, err := serializeToMessage(eventUserRegistered, user.Username, payload)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// WeatherProvisioned publishes one event per record, keyed by location, in a
// single WriteMessages call so a batch lands atomically from the producer's
// point of view.
func (p *Publisher) WeatherProvisioned(ctx context.Context, records []domain.WeatherRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(eventWeatherProvisioned, records[i].Location, records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals an event payload into a Kafka message with
// event-type and timestamp headers.
func serializeToMessage(eventType, key string, payload any) (kafkago.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s event: %w", eventType, err)
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "occurred_at", Value: []byte(domain.Clock().Now().UTC().Format(time.RFC3339))},
		},
	}, nil
}
