package kafka

import (
	"context"
	"encoding/json"
	"log"

	"github.com/segmentio/kafka-go"

	"ms-checkin/internal/models"
)

type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a Kafka consumer for external monitors that cannot hold
// an SSE connection to this service.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

// Start consumes check-in events until the context is cancelled.
func (c *Consumer) Start(ctx context.Context, handler func(event models.CheckInEvent)) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("kafka: error reading message: %v", err)
			continue
		}

		var event models.CheckInEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Printf("kafka: failed to unmarshal check-in event: %v", err)
			continue
		}

		handler(event)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
