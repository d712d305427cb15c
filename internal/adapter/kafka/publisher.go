package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/quake-intensity-service/internal/config"
	"github.com/couchcryptid/quake-intensity-service/internal/domain"
)

// Publisher produces quake messages to the source topic.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured source topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	return &Publisher{writer: newKafkaWriter(cfg.KafkaBrokers, cfg.KafkaSourceTopic), logger: logger}
}

// PublishQuakes writes one message per quake, keyed by quake ID so that
// re-publications of a report land on the same partition.
func (p *Publisher) PublishQuakes(ctx context.Context, quakes []domain.QuakeMessage) error {
	if len(quakes) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(quakes))
	for i := range quakes {
		msg, err := serializeQuake(quakes[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish quakes: %w", err)
	}
	p.logger.Debug("quakes published", "count", len(quakes))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func serializeQuake(q domain.QuakeMessage) (kafkago.Message, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize quake %s: %w", q.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(q.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte(q.Source)},
		},
	}, nil
}
